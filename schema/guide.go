package schema

import (
	"fmt"
	"regexp"

	"github.com/hupe1980/modelbridge/core"
)

// GuideKind identifies one of the supported constraint families.
type GuideKind int

const (
	// GuideAnyOf constrains a string property to a closed set of values.
	GuideAnyOf GuideKind = iota
	// GuideConstant constrains a string property to exactly one value.
	GuideConstant
	// GuideCount constrains an array property to an exact element count.
	GuideCount
	// GuideMinimum sets a lower bound on a numeric property.
	GuideMinimum
	// GuideMaximum sets an upper bound on a numeric property.
	GuideMaximum
	// GuideRange sets both bounds on a numeric property.
	GuideRange
	// GuideMinItems sets a lower bound on an array property's length.
	GuideMinItems
	// GuideMaxItems sets an upper bound on an array property's length.
	GuideMaxItems
	// GuidePattern constrains a string property to a regular expression.
	GuidePattern
)

// String returns a human-readable name for the guide kind.
func (k GuideKind) String() string {
	switch k {
	case GuideAnyOf:
		return "anyOf"
	case GuideConstant:
		return "constant"
	case GuideCount:
		return "count"
	case GuideMinimum:
		return "minimum"
	case GuideMaximum:
		return "maximum"
	case GuideRange:
		return "range"
	case GuideMinItems:
		return "minItems"
	case GuideMaxItems:
		return "maxItems"
	case GuidePattern:
		return "pattern"
	default:
		return fmt.Sprintf("guide(%d)", int(k))
	}
}

// Guide is a single validation constraint attached to a property. Build one
// with the constructor matching its kind, then attach it with
// Property.AddGuide.
//
// A wrapped guide applies to the elements of an array property rather than
// to the property itself; wrap any guide with Element.
type Guide struct {
	Kind    GuideKind
	Choices []string
	Count   int
	Min     float64
	Max     float64
	Pattern string
	Wrapped bool
}

// AnyOf constrains a string property to one of the given choices.
func AnyOf(choices ...string) Guide {
	return Guide{Kind: GuideAnyOf, Choices: choices}
}

// Constant constrains a string property to exactly the given value.
func Constant(value string) Guide {
	return Guide{Kind: GuideConstant, Choices: []string{value}}
}

// Count constrains an array property to exactly n elements.
func Count(n int) Guide {
	return Guide{Kind: GuideCount, Count: n}
}

// Minimum sets an inclusive lower bound on a numeric property.
func Minimum(v float64) Guide {
	return Guide{Kind: GuideMinimum, Min: v}
}

// Maximum sets an inclusive upper bound on a numeric property.
func Maximum(v float64) Guide {
	return Guide{Kind: GuideMaximum, Max: v}
}

// Range sets inclusive lower and upper bounds on a numeric property.
func Range(min, max float64) Guide {
	return Guide{Kind: GuideRange, Min: min, Max: max}
}

// MinItems sets a lower bound on an array property's length.
func MinItems(n int) Guide {
	return Guide{Kind: GuideMinItems, Count: n}
}

// MaxItems sets an upper bound on an array property's length.
func MaxItems(n int) Guide {
	return Guide{Kind: GuideMaxItems, Count: n}
}

// Pattern constrains a string property to match the given regular expression.
func Pattern(expr string) Guide {
	return Guide{Kind: GuidePattern, Pattern: expr}
}

// Element wraps a guide so it applies to the elements of an array property
// instead of the array itself. Element(AnyOf("a", "b")) on an array<string>
// property constrains every element to "a" or "b".
func Element(g Guide) Guide {
	g.Wrapped = true
	return g
}

// validate checks the guide's own well-formedness, independent of the
// property it will be attached to.
func (g Guide) validate() error {
	switch g.Kind {
	case GuideAnyOf:
		if len(g.Choices) == 0 {
			return core.NewBridgeError(core.StatusInvalidSchema, "anyOf guide requires at least one choice")
		}
		for _, c := range g.Choices {
			if c == "" {
				return core.NewBridgeError(core.StatusInvalidSchema, "anyOf guide choices must be non-empty strings")
			}
		}
	case GuideConstant:
		if len(g.Choices) != 1 || g.Choices[0] == "" {
			return core.NewBridgeError(core.StatusInvalidSchema, "constant guide requires a non-empty value")
		}
	case GuideCount:
		if g.Count <= 0 {
			return core.NewBridgeError(core.StatusInvalidSchema, "count guide requires a positive count, got %d", g.Count)
		}
	case GuideMinItems, GuideMaxItems:
		if g.Count < 0 {
			return core.NewBridgeError(core.StatusInvalidSchema, "%s guide requires a non-negative count, got %d", g.Kind, g.Count)
		}
	case GuideRange:
		if g.Min > g.Max {
			return core.NewBridgeError(core.StatusInvalidSchema, "range guide requires minimum <= maximum, got (%v, %v)", g.Min, g.Max)
		}
	case GuideMinimum, GuideMaximum:
		// Any float is a valid bound.
	case GuidePattern:
		if g.Pattern == "" {
			return core.NewBridgeError(core.StatusInvalidSchema, "pattern guide requires a non-empty expression")
		}
		if _, err := regexp.Compile(g.Pattern); err != nil {
			return core.NewBridgeError(core.StatusInvalidSchema, "pattern guide is not a valid regular expression: %v", err)
		}
	default:
		return core.NewBridgeError(core.StatusUnsupportedGuide, "unknown guide kind %d", int(g.Kind))
	}

	return nil
}
