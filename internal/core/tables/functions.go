package tables

import (
	"fmt"
	"time"

	"github.com/JonMunkholm/mapexport/internal/core"
	"github.com/JonMunkholm/mapexport/internal/record"
)

// Now is the clock used by toDate for two-digit year pivoting.
var Now = time.Now

func init() {
	core.RegisterFunction("usState", stringFunc(NormalizeUsState))
	core.RegisterFunction("digits", stringFunc(Digits))
	core.RegisterFunction("phone", stringFunc(NormalizePhone))
	core.RegisterFunction("titleCase", stringFunc(TitleCase))
	core.RegisterFunction("clean", stringFunc(CleanCell))
	core.RegisterFunction("toNumber", toNumber)
	core.RegisterFunction("toDate", toDate)
	core.RegisterFunction("toBool", toBool)
	core.RegisterFunction("coalesce", coalesce)
}

// stringFunc adapts a string normalizer to an expression helper taking one
// argument. nil stays nil.
func stringFunc(fn func(string) string) core.ExpressionFunc {
	return func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("expected 1 argument, got %d", len(args))
		}
		if args[0] == nil {
			return nil, nil
		}
		return fn(record.FormatValue(args[0])), nil
	}
}

// toNumber returns a float64, or nil when the value is blank or not a number.
// Numbers pass through.
func toNumber(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("toNumber: expected 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	}
	if f, ok := ParseNumber(record.FormatValue(args[0])); ok {
		return f, nil
	}
	return nil, nil
}

// toDate returns a time.Time, or nil when no layout matches. Dates pass
// through. An optional second argument is an explicit Go layout.
func toDate(args ...any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("toDate: expected 1 or 2 arguments, got %d", len(args))
	}
	if t, ok := args[0].(time.Time); ok {
		return t, nil
	}
	if args[0] == nil {
		return nil, nil
	}
	s := record.FormatValue(args[0])

	if len(args) == 2 {
		layout, ok := args[1].(string)
		if !ok {
			return nil, fmt.Errorf("toDate: layout must be a string, got %T", args[1])
		}
		t, err := time.Parse(layout, s)
		if err != nil {
			return nil, nil
		}
		return t, nil
	}

	if t, ok := ParseDate(s, Now()); ok {
		return t, nil
	}
	return nil, nil
}

// toBool returns true or false for recognised spellings, else nil.
func toBool(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("toBool: expected 1 argument, got %d", len(args))
	}
	if b, ok := args[0].(bool); ok {
		return b, nil
	}
	if b, ok := ParseBool(record.FormatValue(args[0])); ok {
		return b, nil
	}
	return nil, nil
}

// coalesce returns the first argument that is not blank.
func coalesce(args ...any) (any, error) {
	for _, a := range args {
		if !record.IsBlank(a) {
			return a, nil
		}
	}
	return nil, nil
}
