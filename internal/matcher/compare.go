package matcher

import (
	"slices"
	"strconv"
	"strings"

	"tracking-cog/internal/domain/entity"
)

// Satisfies reports whether a decoded parameter meets an expectation. A
// missing parameter only satisfies "not be set".
func Satisfies(exp entity.Expectation, actual string, present bool) bool {
	if exp.Operator == entity.OpNotSet {
		return !present
	}
	if !present {
		return false
	}

	switch exp.Operator {
	case entity.OpSet:
		return true
	case entity.OpBe, "":
		return actual == exp.Value
	case entity.OpNotBe:
		return actual != exp.Value
	case entity.OpContain:
		return strings.Contains(actual, exp.Value)
	case entity.OpNotContain:
		return !strings.Contains(actual, exp.Value)
	case entity.OpGreaterThan, entity.OpLessThan:
		n, err := strconv.ParseFloat(strings.TrimSpace(actual), 64)
		if err != nil {
			return false
		}
		if exp.Operator == entity.OpGreaterThan {
			return n > exp.Number
		}
		return n < exp.Number
	case entity.OpOneOf:
		return slices.Contains(exp.Values, actual)
	case entity.OpNotOneOf:
		return !slices.Contains(exp.Values, actual)
	case entity.OpMatch, entity.OpNotMatch:
		if exp.Pattern == nil {
			return false
		}
		return exp.Pattern.MatchString(actual) == (exp.Operator == entity.OpMatch)
	default:
		return false
	}
}

// SatisfiesAll checks every expectation of the set against decoded params.
func SatisfiesAll(set entity.ParameterSet, params map[string]string) bool {
	for key, exp := range set {
		actual, present := params[key]
		if !Satisfies(exp, actual, present) {
			return false
		}
	}
	return true
}
