package nodes

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Comparators.
const (
	CompareEQ  = "eq"
	CompareNEQ = "neq"
	CompareLT  = "lt"
	CompareLTE = "lte"
	CompareGT  = "gt"
	CompareGTE = "gte"
)

// Condition compares the item state against Value.
//
// Type selects how the two sides are compared:
//   - "num": both sides must be numbers, otherwise the condition fails
//   - "str": plain string comparison
//   - "": numeric when both sides are numbers, string otherwise
type Condition struct {
	Comparator string `yaml:"comparator"`
	Type       string `yaml:"type"`
	Value      string `yaml:"value"`
}

func validComparator(c string) error {
	switch c {
	case CompareEQ, CompareNEQ, CompareLT, CompareLTE, CompareGT, CompareGTE:
		return nil
	}
	return fmt.Errorf("%w: unknown comparator %q", ErrInvalidSettings, c)
}

func (c Condition) validate() error {
	if err := validComparator(c.Comparator); err != nil {
		return err
	}
	switch c.Type {
	case "", TypeString:
	case TypeNumber:
		if _, ok := parseNumber(c.Value); !ok {
			return fmt.Errorf("%w: condition value %q is not a number", ErrInvalidSettings, c.Value)
		}
	default:
		return fmt.Errorf("%w: unknown condition type %q", ErrInvalidSettings, c.Type)
	}
	return nil
}

// Holds reports whether state satisfies the condition. NaN never counts
// as a number.
func (c Condition) Holds(state string) bool {
	cmp, ok := compareValues(state, c.Value, c.Type)
	if !ok {
		return false
	}
	switch c.Comparator {
	case CompareEQ:
		return cmp == 0
	case CompareNEQ:
		return cmp != 0
	case CompareLT:
		return cmp < 0
	case CompareLTE:
		return cmp <= 0
	case CompareGT:
		return cmp > 0
	case CompareGTE:
		return cmp >= 0
	}
	return false
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func compareNumbers(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// compareValues orders a against b. ok is false when typ is "num" and
// either side is not a number.
func compareValues(a, b, typ string) (cmp int, ok bool) {
	if typ == TypeString {
		return strings.Compare(a, b), true
	}
	fa, okA := parseNumber(a)
	fb, okB := parseNumber(b)
	if okA && okB {
		return compareNumbers(fa, fb), true
	}
	if typ == TypeNumber {
		return 0, false
	}
	return strings.Compare(a, b), true
}

// Logic joins conditions.
const (
	LogicOR  = "OR"
	LogicAND = "AND"
)

func parseLogic(logic, def string) (string, error) {
	logic = strings.ToUpper(logic)
	if logic == "" {
		logic = def
	}
	if logic != LogicOR && logic != LogicAND {
		return "", fmt.Errorf("%w: unknown logic %q", ErrInvalidSettings, logic)
	}
	return logic, nil
}

// join combines n results with logic; n must be positive.
func join(n int, logic string, holds func(i int) bool) bool {
	if logic == LogicAND {
		for i := 0; i < n; i++ {
			if !holds(i) {
				return false
			}
		}
		return true
	}
	for i := 0; i < n; i++ {
		if holds(i) {
			return true
		}
	}
	return false
}

func evaluate(conds []Condition, logic, state string) bool {
	if len(conds) == 0 {
		return false
	}
	return join(len(conds), logic, func(i int) bool { return conds[i].Holds(state) })
}

// VariableCondition compares a flow or global variable against Value.
//
// Type is "num", "str" or "" as for Condition, or names where the
// right-hand side comes from: "flow" and "global" read the variable
// named by Value, "ohPayload" uses the trigger item state.
type VariableCondition struct {
	Scope      string `yaml:"scope"` // flow or global
	Variable   string `yaml:"variable"`
	Comparator string `yaml:"comparator"`
	Type       string `yaml:"type"`
	Value      string `yaml:"value"`
}

func (v VariableCondition) validate() error {
	if v.Scope != TypeFlow && v.Scope != TypeGlobal {
		return fmt.Errorf("%w: variable scope must be flow or global, got %q", ErrInvalidSettings, v.Scope)
	}
	if v.Variable == "" {
		return fmt.Errorf("%w: variable name is required", ErrInvalidSettings)
	}
	switch v.Type {
	case TypeFlow, TypeGlobal:
		if v.Value == "" {
			return fmt.Errorf("%w: variable %q compares against an unnamed variable", ErrInvalidSettings, v.Variable)
		}
		return validComparator(v.Comparator)
	case TypePayload:
		return validComparator(v.Comparator)
	}
	return Condition{Comparator: v.Comparator, Type: v.Type, Value: v.Value}.validate()
}

// Frequencies of additional condition checks.
const (
	// FrequencyFirst checks additional conditions only when the trigger
	// conditions begin to hold.
	FrequencyFirst = "first"
	// FrequencyAlways checks them on every evaluation, so they can also
	// end a running trigger.
	FrequencyAlways = "always"
)
