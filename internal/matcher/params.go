package matcher

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"tracking-cog/internal/domain/entity"
)

// ParseParameterSet converts step input into a ParameterSet. Scalars become
// equality checks; a map with an "operator" key becomes a directive:
//
//	{"tid": "UA-1", "ev": {"operator": "be greater than", "value": 10}}
//
// A nil input yields an empty set.
func ParseParameterSet(raw map[string]any) (entity.ParameterSet, error) {
	out := make(entity.ParameterSet, len(raw))
	for key, v := range raw {
		exp, err := parseExpectation(v)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", key, err)
		}
		out[key] = exp
	}
	return out, nil
}

// NewExpectation validates and compiles a directive.
func NewExpectation(op entity.Operator, value any) (entity.Expectation, error) {
	exp := entity.Expectation{Operator: entity.Operator(strings.ToLower(strings.TrimSpace(string(op))))}
	if exp.Operator == "" {
		exp.Operator = entity.OpBe
	}

	switch exp.Operator {
	case entity.OpSet, entity.OpNotSet:
		return exp, nil
	case entity.OpOneOf, entity.OpNotOneOf:
		values, err := listValue(value)
		if err != nil {
			return exp, err
		}
		exp.Values = values
		return exp, nil
	}

	s, err := scalarValue(value)
	if err != nil {
		return exp, err
	}
	exp.Value = s

	switch exp.Operator {
	case entity.OpBe, entity.OpNotBe, entity.OpContain, entity.OpNotContain:
	case entity.OpGreaterThan, entity.OpLessThan:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return exp, fmt.Errorf("%w: %q is not a number", ErrInvalidExpectation, s)
		}
		exp.Number = n
	case entity.OpMatch, entity.OpNotMatch:
		re, err := regexp.Compile(s)
		if err != nil {
			return exp, fmt.Errorf("%w: %v", ErrInvalidExpectation, err)
		}
		exp.Pattern = re
	default:
		return exp, fmt.Errorf("%w: unknown operator %q", ErrInvalidExpectation, exp.Operator)
	}
	return exp, nil
}

func parseExpectation(v any) (entity.Expectation, error) {
	directive, ok := v.(map[string]any)
	if !ok {
		return NewExpectation(entity.OpBe, v)
	}

	rawOp, ok := directive["operator"]
	if !ok {
		return entity.Expectation{}, fmt.Errorf("%w: directive without operator", ErrInvalidExpectation)
	}
	op, ok := rawOp.(string)
	if !ok {
		return entity.Expectation{}, fmt.Errorf("%w: operator must be a string", ErrInvalidExpectation)
	}

	value := directive["value"]
	if values, ok := directive["values"]; ok {
		value = values
	}
	return NewExpectation(entity.Operator(op), value)
}

func scalarValue(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case nil:
		return "", fmt.Errorf("%w: missing value", ErrInvalidExpectation)
	default:
		return "", fmt.Errorf("%w: unsupported value type %T", ErrInvalidExpectation, v)
	}
}

func listValue(v any) ([]string, error) {
	switch x := v.(type) {
	case []string:
		return x, nil
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, err := scalarValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	default:
		s, err := scalarValue(v)
		if err != nil {
			return nil, err
		}
		parts := strings.Split(s, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
