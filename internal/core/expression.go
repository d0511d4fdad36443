package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/vm"

	"github.com/JonMunkholm/mapexport/internal/record"
)

// Expression phases reported by ExpressionError.
const (
	PhaseCompile = "compile"
	PhaseEval    = "eval"
)

// resolverFunc is the env name the col accessor is rewritten to.
const resolverFunc = "__col"

// ExpressionError wraps a failure to compile or evaluate a user expression.
type ExpressionError struct {
	Source string
	Phase  string // PhaseCompile or PhaseEval
	Err    error
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("expression %s error in %q: %v", e.Phase, e.Source, e.Err)
}

func (e *ExpressionError) Unwrap() error {
	return e.Err
}

// Expression is a compiled transform or filter expression.
// Eval is safe for concurrent use.
type Expression struct {
	source        string
	program       *vm.Program
	sourceColumns []string
	usesRow       bool
}

// ExpressionFunc is a helper callable from expressions.
type ExpressionFunc func(args ...any) (any, error)

var (
	funcMu    sync.RWMutex
	functions = make(map[string]ExpressionFunc)
)

// RegisterFunction makes fn callable by name inside every expression
// compiled afterwards. Called from init functions; panics on duplicates.
func RegisterFunction(name string, fn ExpressionFunc) {
	funcMu.Lock()
	defer funcMu.Unlock()

	if _, exists := functions[name]; exists {
		panic(fmt.Sprintf("expression function %q already registered", name))
	}
	functions[name] = fn
}

// FunctionNames returns the registered helper names, sorted.
func FunctionNames() []string {
	funcMu.RLock()
	defer funcMu.RUnlock()

	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// reservedNames cannot be bound as column letters because the expression
// language or the env already uses them.
var reservedNames = map[string]bool{
	"in": true, "or": true, "if": true, "and": true, "not": true, "nil": true,
	"let": true, "abs": true, "all": true, "any": true, "int": true, "len": true,
	"max": true, "min": true, "now": true, "one": true, "map": true, "sum": true,
	"get": true, "col": true, "row": true, "else": true, "true": true,
	"false": true, "date": true, "trim": true, "type": true, "keys": true,
	"none": true, "find": true, "sort": true, "join": true, "last": true,
	"ceil": true, "uniq": true, "take": true, "mean": true,
	"value": true,
}

// CompileExpression compiles source against the given source columns.
//
// Inside the expression, value (also Value, VALUE) is the raw cell being
// transformed and col[ref] (also Col, COL, and col.Name) resolves ref
// against the current row with Resolve. Each spreadsheet letter A..Z, and
// beyond when there are more columns, is a constant holding its 0-based
// index in both cases, so col[B] reads the second column. row is the raw
// row as a map. A leading "return" and trailing ";" are ignored.
func CompileExpression(source string, sourceColumns []string) (*Expression, error) {
	body := normalizeSource(source)
	if body == "" {
		return nil, &ExpressionError{Source: source, Phase: PhaseCompile, Err: errors.New("empty expression")}
	}

	declared := make(map[string]bool)
	patcher := &columnPatcher{letters: letterBindings(len(sourceColumns)), declared: declared}
	opts := []expr.Option{
		expr.Env(compileEnv()),
		expr.Patch(declarationCollector(declared)),
		expr.Patch(patcher),
	}

	funcMu.RLock()
	for name, fn := range functions {
		opts = append(opts, expr.Function(name, fn))
	}
	funcMu.RUnlock()

	program, err := expr.Compile(body, opts...)
	if err != nil {
		return nil, &ExpressionError{Source: source, Phase: PhaseCompile, Err: err}
	}

	cols := make([]string, len(sourceColumns))
	copy(cols, sourceColumns)

	return &Expression{source: source, program: program, sourceColumns: cols, usesRow: patcher.usesRow}, nil
}

// Source returns the expression text as given.
func (e *Expression) Source() string {
	return e.source
}

// Eval runs the expression for row with value bound as the current cell.
func (e *Expression) Eval(row *record.Row, value any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &ExpressionError{Source: e.source, Phase: PhaseEval, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	accessor := func(ref any) any {
		v, _ := Resolve(row, e.sourceColumns, ref)
		return v
	}

	// The row map is a copy, so only build it for expressions that read it.
	var raw map[string]any
	if e.usesRow {
		raw = map[string]any{}
		if row != nil {
			raw = row.Map()
		}
	}

	env := map[string]any{
		"value":      value,
		"Value":      value,
		"VALUE":      value,
		"col":        accessor,
		"Col":        accessor,
		"COL":        accessor,
		resolverFunc: accessor,
		"row":        raw,
	}

	out, err := expr.Run(e.program, env)
	if err != nil {
		return nil, &ExpressionError{Source: e.source, Phase: PhaseEval, Err: err}
	}
	return out, nil
}

func compileEnv() map[string]any {
	accessor := func(ref any) any { return nil }
	return map[string]any{
		"value":      nil,
		"Value":      nil,
		"VALUE":      nil,
		"col":        accessor,
		"Col":        accessor,
		"COL":        accessor,
		resolverFunc: accessor,
		"row":        map[string]any{},
	}
}

// normalizeSource strips a function-body style "return" and trailing semicolons.
func normalizeSource(source string) string {
	s := strings.TrimSpace(source)
	if rest, ok := strings.CutPrefix(s, "return"); ok && (rest == "" || rest[0] == ' ' || rest[0] == '\t' || rest[0] == '\n' || rest[0] == '(') {
		s = strings.TrimSpace(rest)
	}
	for strings.HasSuffix(s, ";") {
		s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	}
	return s
}

// letterBindings returns letter name to index for max(columns, 26) columns,
// in upper and lower case. Names that read as a keyword, builtin or env
// binding in either case are left unbound.
func letterBindings(columns int) map[string]int {
	n := columns
	if n < 26 {
		n = 26
	}

	funcMu.RLock()
	defer funcMu.RUnlock()

	out := make(map[string]int, 2*n)
	for i := 0; i < n; i++ {
		upper := ColumnLetter(i)
		lower := strings.ToLower(upper)
		if reservedNames[lower] {
			continue
		}
		out[upper] = i
		if _, isFunc := functions[lower]; !isFunc {
			out[lower] = i
		}
	}
	return out
}

// declarationCollector records every name bound with let. It runs as its
// own pass because the walk visits a declaration after its body.
type declarationCollector map[string]bool

func (d declarationCollector) Visit(node *ast.Node) {
	if n, ok := (*node).(*ast.VariableDeclaratorNode); ok {
		d[n.Name] = true
	}
}

// columnPatcher rewrites col[x], Col.x and COL[x] into resolver calls and
// replaces column letter identifiers with their index. Names in declared
// are user variables and keep their binding.
type columnPatcher struct {
	letters  map[string]int
	declared map[string]bool
	usesRow  bool
}

func (p *columnPatcher) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		if n.Value == "row" {
			p.usesRow = true
			return
		}
		if p.declared[n.Value] {
			return
		}
		if idx, ok := p.letters[n.Value]; ok {
			ast.Patch(node, &ast.IntegerNode{Value: idx})
		}
	case *ast.MemberNode:
		id, ok := n.Node.(*ast.IdentifierNode)
		if !ok || !isAccessorName(id.Value) {
			return
		}
		ast.Patch(node, &ast.CallNode{
			Callee:    &ast.IdentifierNode{Value: resolverFunc},
			Arguments: []ast.Node{n.Property},
		})
	}
}

func isAccessorName(name string) bool {
	return name == "col" || name == "Col" || name == "COL"
}
