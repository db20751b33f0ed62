package step

import (
	"context"
	"strings"
	"time"

	"tracking-cog/internal/application/port/output"
	"tracking-cog/internal/domain/entity"
	"tracking-cog/internal/matcher"
)

type CheckCookie struct{}

func NewCheckCookie(Deps) *CheckCookie {
	return &CheckCookie{}
}

func (s *CheckCookie) Definition() entity.StepDefinition {
	return entity.StepDefinition{
		StepID:     "CheckCookie",
		Name:       "Check a cookie value",
		Expression: `the (?<name>.+) cookie should (?<operator>be set|not be set|be less than|be greater than|be one of|be|contain|not be one of|not be|not contain|match|not match) ?(?<expectation>.+)?`,
		Type:       entity.StepTypeValidation,
		ExpectedFields: []entity.FieldDefinition{
			{Key: "name", Type: entity.FieldTypeString, Optionality: entity.Required, Description: "Cookie name"},
			{Key: "operator", Type: entity.FieldTypeString, Optionality: entity.Optional, Description: "Check to perform (default be)"},
			{Key: "expectation", Type: entity.FieldTypeAnyScalar, Optionality: entity.Optional, Description: "Expected value"},
		},
	}
}

func (s *CheckCookie) Execute(ctx context.Context, sess output.Session, data map[string]any) (*entity.StepResponse, error) {
	name, err := stringField(data, "name")
	if err != nil {
		return errored("%s", err.Error()), nil
	}
	op, _ := optionalString(data, "operator")
	exp, err := matcher.NewExpectation(entity.Operator(op), data["expectation"])
	if err != nil {
		return withRecords(errored("Invalid cookie expectation: %s", err.Error()), errorRecord(err)), nil
	}

	cookies, err := sess.Cookies(ctx)
	if err != nil {
		return withRecords(errored("There was a problem reading cookies: %s", err.Error()), errorRecord(err)), nil
	}

	var found *entity.Cookie
	for i := range cookies {
		if cookies[i].Name == name {
			found = &cookies[i]
			break
		}
	}

	actual := ""
	if found != nil {
		actual = found.Value
	}
	if matcher.Satisfies(exp, actual, found != nil) {
		resp := passed("The %s cookie is %s", name, describe(exp))
		if found != nil {
			withRecords(resp, cookieRecord(*found))
		}
		return resp, nil
	}

	if found == nil {
		return failed("Expected the %s cookie to %s, but it was not set", name, describe(exp)), nil
	}
	return withRecords(
		failed("Expected the %s cookie to %s, but its value was %s", name, describe(exp), actual),
		cookieRecord(*found),
	), nil
}

func describe(exp entity.Expectation) string {
	switch exp.Operator {
	case entity.OpSet, entity.OpNotSet:
		return string(exp.Operator)
	case entity.OpOneOf, entity.OpNotOneOf:
		return string(exp.Operator) + " " + strings.Join(exp.Values, ", ")
	}
	return string(exp.Operator) + " " + exp.Value
}

func cookieRecord(c entity.Cookie) entity.Record {
	m := map[string]any{
		"name":     c.Name,
		"value":    c.Value,
		"domain":   c.Domain,
		"path":     c.Path,
		"httpOnly": c.HTTPOnly,
		"secure":   c.Secure,
	}
	if !c.Expires.IsZero() {
		m["expires"] = c.Expires.UTC().Format(time.RFC3339)
	}
	return keyValueRecord("cookie", "Cookie", m)
}

type CheckPageResponse struct{}

func NewCheckPageResponse(Deps) *CheckPageResponse {
	return &CheckPageResponse{}
}

func (s *CheckPageResponse) Definition() entity.StepDefinition {
	return entity.StepDefinition{
		StepID:     "CheckPageResponse",
		Name:       "Check the page response status",
		Expression: `the page should have responded with status (?<status>\d+)`,
		Type:       entity.StepTypeValidation,
		ExpectedFields: []entity.FieldDefinition{
			{Key: "status", Type: entity.FieldTypeNumeric, Optionality: entity.Required, Description: "Expected HTTP status code"},
		},
	}
}

func (s *CheckPageResponse) Execute(_ context.Context, sess output.Session, data map[string]any) (*entity.StepResponse, error) {
	want, err := intField(data, "status")
	if err != nil {
		return errored("%s", err.Error()), nil
	}

	last, ok := sess.LastResponse()
	if !ok {
		return failed("No page response was recorded; navigate to a page first"), nil
	}
	evidence := keyValueRecord("response", "Page response", map[string]any{
		"url":        last.URL,
		"status":     last.Status,
		"statusText": last.StatusText,
		"mimeType":   last.MimeType,
	})
	if last.Status != want {
		return withRecords(failed("Expected %s to respond with status %d, but it responded with %d", last.URL, want, last.Status), evidence), nil
	}
	return withRecords(passed("%s responded with status %d", last.URL, want), evidence), nil
}
