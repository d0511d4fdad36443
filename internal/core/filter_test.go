package core

import (
	"errors"
	"testing"

	"github.com/JonMunkholm/mapexport/internal/record"
)

var filterCols = []string{"name", "state", "amount", "note"}

func filterRow(name, state string, amount any, note any) *record.Row {
	return record.FromMap(filterCols, map[string]any{
		"name":   name,
		"state":  state,
		"amount": amount,
		"note":   note,
	})
}

func TestFilter_Operators(t *testing.T) {
	row := filterRow("Alice Smith", "CA", "120.5", "  ")

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"equals match", Condition{"state", CondEquals, "CA"}, true},
		{"equals is case-sensitive", Condition{"state", CondEquals, "ca"}, false},
		{"contains", Condition{"name", CondContains, "ce S"}, true},
		{"contains case-sensitive", Condition{"name", CondContains, "alice"}, false},
		{"startsWith", Condition{"name", CondStartsWith, "Ali"}, true},
		{"endsWith", Condition{"name", CondEndsWith, "Smith"}, true},
		{"endsWith miss", Condition{"name", CondEndsWith, "Alice"}, false},
		{"greaterThan", Condition{"amount", CondGreaterThan, "100"}, true},
		{"greaterThan equal", Condition{"amount", CondGreaterThan, "120.5"}, false},
		{"lessThan", Condition{"amount", CondLessThan, "200"}, true},
		{"greaterThan non-numeric operand", Condition{"name", CondGreaterThan, "1"}, false},
		{"lessThan non-numeric value", Condition{"amount", CondLessThan, "abc"}, false},
		{"isEmpty whitespace", Condition{"note", CondIsEmpty, ""}, true},
		{"isEmpty missing column", Condition{"nope", CondIsEmpty, ""}, true},
		{"isNotEmpty", Condition{"name", CondIsNotEmpty, ""}, true},
		{"isNotEmpty on blank", Condition{"note", CondIsNotEmpty, ""}, false},
		{"column by letter", Condition{"B", CondEquals, "CA"}, true},
		{"column by index", Condition{"0", CondStartsWith, "Alice"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := CompileFilter(&FilterSpec{Groups: []FilterGroup{{Conditions: []Condition{tt.cond}}}}, filterCols)
			if err != nil {
				t.Fatalf("CompileFilter: %v", err)
			}
			got, err := f.Test(row)
			if err != nil {
				t.Fatalf("Test: %v", err)
			}
			if got != tt.want {
				t.Errorf("Test = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_NumericValuesCompareNumerically(t *testing.T) {
	f, err := CompileFilter(&FilterSpec{Groups: []FilterGroup{{
		Conditions: []Condition{{Column: "amount", Operator: CondGreaterThan, Value: "9"}},
	}}}, filterCols)
	if err != nil {
		t.Fatal(err)
	}

	// "10" > "9" is false as strings but true as numbers.
	ok, err := f.Test(filterRow("a", "b", int64(10), nil))
	if err != nil || !ok {
		t.Errorf("Test(10 > 9) = %v, %v; want true", ok, err)
	}
}

func TestFilter_GroupsAreOred(t *testing.T) {
	spec := &FilterSpec{Groups: []FilterGroup{
		{Conditions: []Condition{{Column: "state", Operator: CondEquals, Value: "CA"}}, Combinator: CombineAnd},
		{Conditions: []Condition{{Column: "state", Operator: CondEquals, Value: "NY"}}, Combinator: CombineAnd},
	}}
	f, err := CompileFilter(spec, filterCols)
	if err != nil {
		t.Fatal(err)
	}

	for state, want := range map[string]bool{"CA": true, "NY": true, "TX": false} {
		got, err := f.Test(filterRow("x", state, "1", nil))
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("state %s: got %v, want %v", state, got, want)
		}
	}
}

func TestFilter_Combinators(t *testing.T) {
	conds := []Condition{
		{Column: "state", Operator: CondEquals, Value: "CA"},
		{Column: "amount", Operator: CondGreaterThan, Value: "100"},
	}
	rows := []struct {
		row     *record.Row
		wantAnd bool
		wantOr  bool
	}{
		{filterRow("a", "CA", "150", nil), true, true},
		{filterRow("b", "CA", "50", nil), false, true},
		{filterRow("c", "NY", "150", nil), false, true},
		{filterRow("d", "NY", "50", nil), false, false},
	}

	and, err := CompileFilter(&FilterSpec{Groups: []FilterGroup{{Conditions: conds, Combinator: CombineAnd}}}, filterCols)
	if err != nil {
		t.Fatal(err)
	}
	or, err := CompileFilter(&FilterSpec{Groups: []FilterGroup{{Conditions: conds, Combinator: CombineOr}}}, filterCols)
	if err != nil {
		t.Fatal(err)
	}
	dflt, err := CompileFilter(&FilterSpec{Groups: []FilterGroup{{Conditions: conds}}}, filterCols)
	if err != nil {
		t.Fatal(err)
	}

	for i, r := range rows {
		if got, _ := and.Test(r.row); got != r.wantAnd {
			t.Errorf("row %d AND = %v, want %v", i, got, r.wantAnd)
		}
		if got, _ := or.Test(r.row); got != r.wantOr {
			t.Errorf("row %d OR = %v, want %v", i, got, r.wantOr)
		}
		if got, _ := dflt.Test(r.row); got != r.wantAnd {
			t.Errorf("row %d default combinator = %v, want AND result %v", i, got, r.wantAnd)
		}
	}
}

func TestFilter_EmptySpecPassesEverything(t *testing.T) {
	specs := []*FilterSpec{
		nil,
		{},
		{Groups: []FilterGroup{{Combinator: CombineAnd}}},
		{AdvancedMode: true, Expression: "  "},
	}
	for i, spec := range specs {
		f, err := CompileFilter(spec, filterCols)
		if err != nil {
			t.Fatalf("spec %d: %v", i, err)
		}
		if f != nil {
			t.Errorf("spec %d: expected nil filter", i)
		}
		ok, err := f.Test(filterRow("", "", nil, nil))
		if err != nil || !ok {
			t.Errorf("spec %d: nil filter Test = %v, %v", i, ok, err)
		}
	}
}

func TestFilter_EmptyGroupsSkipped(t *testing.T) {
	spec := &FilterSpec{Groups: []FilterGroup{
		{},
		{Conditions: []Condition{{Column: "state", Operator: CondEquals, Value: "CA"}}},
	}}
	f, err := CompileFilter(spec, filterCols)
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := f.Test(filterRow("a", "NY", "1", nil)); ok {
		t.Error("empty group must not match every row")
	}
}

func TestFilter_CompileErrors(t *testing.T) {
	specs := map[string]*FilterSpec{
		"unknown operator": {Groups: []FilterGroup{{Conditions: []Condition{{Column: "a", Operator: "between"}}}}},
		"unknown combinator": {Groups: []FilterGroup{{
			Conditions: []Condition{{Column: "a", Operator: CondEquals}},
			Combinator: "XOR",
		}}},
		"bad expression": {AdvancedMode: true, Expression: "row[ =="},
	}
	for name, spec := range specs {
		t.Run(name, func(t *testing.T) {
			_, err := CompileFilter(spec, filterCols)
			var fe *FilterError
			if !errors.As(err, &fe) {
				t.Fatalf("error = %v, want *FilterError", err)
			}
		})
	}
}

func TestFilter_AdvancedMode(t *testing.T) {
	f, err := CompileFilter(&FilterSpec{
		AdvancedMode: true,
		Expression:   `row["state"] == "CA" && lower(col[A]) startsWith "al"`,
	}, filterCols)
	if err != nil {
		t.Fatal(err)
	}

	ok, err := f.Test(filterRow("Alice", "CA", nil, nil))
	if err != nil || !ok {
		t.Errorf("Test(Alice, CA) = %v, %v; want true", ok, err)
	}
	ok, err = f.Test(filterRow("Bob", "CA", nil, nil))
	if err != nil || ok {
		t.Errorf("Test(Bob, CA) = %v, %v; want false", ok, err)
	}
}

func TestFilter_AdvancedNonBoolIsError(t *testing.T) {
	f, err := CompileFilter(&FilterSpec{AdvancedMode: true, Expression: `row["name"]`}, filterCols)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := f.Test(filterRow("Alice", "CA", nil, nil))
	if err == nil {
		t.Fatal("non-bool result must be an error, not an implicit false")
	}
	if ok {
		t.Error("errored Test must not report a match")
	}
	var fe *FilterError
	if !errors.As(err, &fe) {
		t.Errorf("error %T is not *FilterError", err)
	}
}

func TestFilter_AdvancedEvalErrorPropagates(t *testing.T) {
	f, err := CompileFilter(&FilterSpec{AdvancedMode: true, Expression: `1 / row["name"] > 0`}, filterCols)
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.Test(filterRow("Alice", "CA", nil, nil))
	var exprErr *ExpressionError
	if !errors.As(err, &exprErr) {
		t.Errorf("error = %v, want wrapped *ExpressionError", err)
	}
}

func TestFilterSpec_IsEmpty(t *testing.T) {
	var nilSpec *FilterSpec
	if !nilSpec.IsEmpty() {
		t.Error("nil spec should be empty")
	}
	if (&FilterSpec{AdvancedMode: true, Expression: "true"}).IsEmpty() {
		t.Error("advanced spec with expression should not be empty")
	}
	if (&FilterSpec{Groups: []FilterGroup{{Conditions: []Condition{{Column: "a", Operator: CondIsEmpty}}}}}).IsEmpty() {
		t.Error("spec with a condition should not be empty")
	}
}
