package entity

import "regexp"

type Operator string

const (
	OpBe          Operator = "be"
	OpNotBe       Operator = "not be"
	OpContain     Operator = "contain"
	OpNotContain  Operator = "not contain"
	OpGreaterThan Operator = "be greater than"
	OpLessThan    Operator = "be less than"
	OpOneOf       Operator = "be one of"
	OpNotOneOf    Operator = "not be one of"
	OpMatch       Operator = "match"
	OpNotMatch    Operator = "not match"
	OpSet         Operator = "be set"
	OpNotSet      Operator = "not be set"
)

// Expectation is a single comparison directive for one parameter.
type Expectation struct {
	Operator Operator
	Value    string
	Values   []string
	Pattern  *regexp.Regexp
	Number   float64
}

// Equals builds the default string-equality expectation.
func Equals(value string) Expectation {
	return Expectation{Operator: OpBe, Value: value}
}

// ParameterSet maps parameter names to expectations. Order is not significant.
type ParameterSet map[string]Expectation

// Clone returns a shallow copy safe to extend.
func (p ParameterSet) Clone() ParameterSet {
	out := make(ParameterSet, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
