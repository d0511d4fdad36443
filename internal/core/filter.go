package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JonMunkholm/mapexport/internal/record"
)

// ConditionOperator names a basic-mode comparison.
type ConditionOperator string

const (
	CondEquals      ConditionOperator = "equals"
	CondContains    ConditionOperator = "contains"
	CondStartsWith  ConditionOperator = "startsWith"
	CondEndsWith    ConditionOperator = "endsWith"
	CondGreaterThan ConditionOperator = "greaterThan"
	CondLessThan    ConditionOperator = "lessThan"
	CondIsEmpty     ConditionOperator = "isEmpty"
	CondIsNotEmpty  ConditionOperator = "isNotEmpty"
)

// Combinator joins the conditions of one group.
type Combinator string

const (
	CombineAnd Combinator = "AND"
	CombineOr  Combinator = "OR"
)

// Condition tests one column reference against a literal.
type Condition struct {
	Column   string            `json:"column"`
	Operator ConditionOperator `json:"operator"`
	Value    string            `json:"value"`
}

// FilterGroup combines conditions with AND or OR. Groups are OR-ed together.
type FilterGroup struct {
	Conditions []Condition `json:"conditions"`
	Combinator Combinator  `json:"combinator"`
}

// FilterSpec is a row filter in basic (condition groups) or advanced
// (boolean expression) mode.
type FilterSpec struct {
	AdvancedMode bool          `json:"advancedMode"`
	Groups       []FilterGroup `json:"groups,omitempty"`
	Expression   string        `json:"expression,omitempty"`
}

// IsEmpty reports whether the spec filters nothing.
func (s *FilterSpec) IsEmpty() bool {
	if s == nil {
		return true
	}
	if s.AdvancedMode {
		return strings.TrimSpace(s.Expression) == ""
	}
	for _, g := range s.Groups {
		if len(g.Conditions) > 0 {
			return false
		}
	}
	return true
}

// FilterError reports a filter that could not be compiled or evaluated.
// An evaluation failure is never treated as "row excluded".
type FilterError struct {
	Reason string
	Err    error
}

func (e *FilterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("filter error: %s: %v", e.Reason, e.Err)
	}
	return "filter error: " + e.Reason
}

func (e *FilterError) Unwrap() error {
	return e.Err
}

// Filter is a compiled FilterSpec. A nil *Filter passes every row.
type Filter struct {
	groups        []FilterGroup
	expression    *Expression
	sourceColumns []string
}

// CompileFilter validates spec and compiles its expression. It returns a
// nil Filter when the spec filters nothing.
func CompileFilter(spec *FilterSpec, sourceColumns []string) (*Filter, error) {
	if spec.IsEmpty() {
		return nil, nil
	}

	f := &Filter{sourceColumns: sourceColumns}

	if spec.AdvancedMode {
		e, err := CompileExpression(spec.Expression, sourceColumns)
		if err != nil {
			return nil, &FilterError{Reason: "invalid filter expression", Err: err}
		}
		f.expression = e
		return f, nil
	}

	for gi, g := range spec.Groups {
		if len(g.Conditions) == 0 {
			continue
		}
		switch g.Combinator {
		case CombineAnd, CombineOr:
		case "":
			g.Combinator = CombineAnd
		default:
			return nil, &FilterError{Reason: fmt.Sprintf("group %d: unknown combinator %q", gi+1, g.Combinator)}
		}
		for ci, c := range g.Conditions {
			if !validOperator(c.Operator) {
				return nil, &FilterError{Reason: fmt.Sprintf("group %d condition %d: unknown operator %q", gi+1, ci+1, c.Operator)}
			}
		}
		f.groups = append(f.groups, g)
	}

	return f, nil
}

// Test reports whether row passes the filter.
func (f *Filter) Test(row *record.Row) (bool, error) {
	if f == nil {
		return true, nil
	}

	if f.expression != nil {
		out, err := f.expression.Eval(row, nil)
		if err != nil {
			return false, &FilterError{Reason: "evaluation failed", Err: err}
		}
		b, ok := out.(bool)
		if !ok {
			return false, &FilterError{Reason: fmt.Sprintf("expression returned %T, want bool", out)}
		}
		return b, nil
	}

	for _, g := range f.groups {
		if f.testGroup(row, g) {
			return true, nil
		}
	}
	return false, nil
}

func (f *Filter) testGroup(row *record.Row, g FilterGroup) bool {
	if g.Combinator == CombineOr {
		for _, c := range g.Conditions {
			if f.testCondition(row, c) {
				return true
			}
		}
		return false
	}
	for _, c := range g.Conditions {
		if !f.testCondition(row, c) {
			return false
		}
	}
	return true
}

func (f *Filter) testCondition(row *record.Row, c Condition) bool {
	v, _ := Resolve(row, f.sourceColumns, c.Column)
	s := record.FormatValue(v)

	switch c.Operator {
	case CondEquals:
		return s == c.Value
	case CondContains:
		return strings.Contains(s, c.Value)
	case CondStartsWith:
		return strings.HasPrefix(s, c.Value)
	case CondEndsWith:
		return strings.HasSuffix(s, c.Value)
	case CondGreaterThan, CondLessThan:
		a, okA := parseNumber(s)
		b, okB := parseNumber(c.Value)
		if !okA || !okB {
			return false
		}
		if c.Operator == CondGreaterThan {
			return a > b
		}
		return a < b
	case CondIsEmpty:
		return record.IsBlank(v)
	case CondIsNotEmpty:
		return !record.IsBlank(v)
	}
	return false
}

func validOperator(op ConditionOperator) bool {
	switch op {
	case CondEquals, CondContains, CondStartsWith, CondEndsWith,
		CondGreaterThan, CondLessThan, CondIsEmpty, CondIsNotEmpty:
		return true
	}
	return false
}

// parseNumber parses a trimmed decimal. NaN is not a number here.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || n != n {
		return 0, false
	}
	return n, true
}
