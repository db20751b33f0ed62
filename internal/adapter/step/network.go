package step

import (
	"context"
	"errors"
	"iter"
	"slices"
	"strings"

	"tracking-cog/internal/application/port/output"
	"tracking-cog/internal/domain/entity"
	"tracking-cog/internal/infrastructure/browser/htmlscan"
	"tracking-cog/internal/matcher"
	"tracking-cog/internal/pixel"
)

// verify waits for the network to settle and matches the request log against
// q. A nil count means at least one match; otherwise the match count must
// equal *count.
func verify(ctx context.Context, d Deps, sess output.Session, q matcher.Query, count *int, subject string) *entity.StepResponse {
	if err := sess.WaitIdle(ctx, d.IdleTimeout); err != nil {
		return withRecords(errored("There was a problem waiting for network activity: %s", err.Error()), errorRecord(err))
	}

	result, err := matcher.Match(sess.Requests(), q)
	if err != nil {
		return withRecords(errored("There was a problem checking %s: %s", subject, err.Error()), errorRecord(err))
	}

	got := result.Count()
	ok := got > 0
	if count != nil {
		ok = got == *count
	}
	if ok {
		return withRecords(
			passed("Found %d matching requests for %s", got, subject),
			matchTable("matches", "Matching requests", result.Matches, q.Params),
		)
	}

	var resp *entity.StepResponse
	switch {
	case result.Candidates == 0:
		resp = failed("No requests were made to %s", subject)
	case count != nil:
		resp = failed("Expected %d matching requests for %s, but found %d", *count, subject, got)
	default:
		resp = failed("Found %d requests to %s, but none had the expected parameters", result.Candidates, subject)
	}
	if got > 0 {
		withRecords(resp, matchTable("matches", "Matching requests", result.Matches, q.Params))
	}
	if rec, ok := candidateTable(q, sess); ok {
		withRecords(resp, rec)
	}
	return resp
}

// resolve turns a vendor name into a matcher query, answering an unknown
// vendor with an ERROR response.
func resolve(d Deps, name string, params entity.ParameterSet, customDomain string) (matcher.Query, *entity.StepResponse) {
	q, err := d.Pixels.Resolve(name, params, customDomain)
	if err != nil {
		return q, pixelError(d, name, err)
	}
	return q, nil
}

func pixelError(d Deps, name string, err error) *entity.StepResponse {
	if errors.Is(err, pixel.ErrUnknownPixel) {
		return withRecords(
			errored("Unknown pixel %s", name),
			keyValueRecord("pixels", "Known pixels", map[string]any{"names": d.Pixels.Names()}),
		)
	}
	return withRecords(errored("%s", err.Error()), errorRecord(err))
}

func parameters(data map[string]any, key string) (entity.ParameterSet, *entity.StepResponse) {
	raw, err := mapField(data, key)
	if err != nil {
		return nil, errored("%s", err.Error())
	}
	set, err := matcher.ParseParameterSet(raw)
	if err != nil {
		return nil, withRecords(errored("Invalid expected parameters: %s", err.Error()), errorRecord(err))
	}
	return set, nil
}

func expectedCount(data map[string]any) (*int, *entity.StepResponse) {
	n, ok, err := optionalInt(data, "count")
	if err != nil {
		return nil, errored("%s", err.Error())
	}
	if !ok {
		return nil, nil
	}
	if n < 0 {
		return nil, errored("Expected count must not be negative, got %d", n)
	}
	return &n, nil
}

type CheckNetworkRequest struct {
	deps Deps
}

func NewCheckNetworkRequest(d Deps) *CheckNetworkRequest {
	return &CheckNetworkRequest{deps: d}
}

func (s *CheckNetworkRequest) Definition() entity.StepDefinition {
	return entity.StepDefinition{
		StepID:     "CheckNetworkRequest",
		Name:       "Check network request",
		Expression: `there should be (?<count>\d+) matching network requests for (?<baseUrl>.+)`,
		Type:       entity.StepTypeValidation,
		ExpectedFields: []entity.FieldDefinition{
			{Key: "baseUrl", Type: entity.FieldTypeURL, Optionality: entity.Required, Description: "URL prefix of the request"},
			{Key: "count", Type: entity.FieldTypeNumeric, Optionality: entity.Optional, Description: "Exact number of matching requests"},
			{Key: "requestParameters", Type: entity.FieldTypeMap, Optionality: entity.Optional, Description: "Expected request parameters"},
			{Key: "pathContains", Type: entity.FieldTypeString, Optionality: entity.Optional, Description: "Substring the request URL must contain"},
		},
	}
}

func (s *CheckNetworkRequest) Execute(ctx context.Context, sess output.Session, data map[string]any) (*entity.StepResponse, error) {
	base, err := stringField(data, "baseUrl")
	if err != nil {
		return errored("%s", err.Error()), nil
	}
	count, resp := expectedCount(data)
	if resp != nil {
		return resp, nil
	}
	params, resp := parameters(data, "requestParameters")
	if resp != nil {
		return resp, nil
	}
	path, _ := optionalString(data, "pathContains")

	q := matcher.Query{BaseURLs: []string{base}, PathContains: path, Params: params}
	return verify(ctx, s.deps, sess, q, count, base), nil
}

type CheckPixel struct {
	deps Deps
}

func NewCheckPixel(d Deps) *CheckPixel {
	return &CheckPixel{deps: d}
}

func (s *CheckPixel) Definition() entity.StepDefinition {
	return entity.StepDefinition{
		StepID:     "CheckPixel",
		Name:       "Check a vendor tracking pixel",
		Expression: `the (?<pixelName>.+) pixel should have fired`,
		Type:       entity.StepTypeValidation,
		ExpectedFields: []entity.FieldDefinition{
			{Key: "pixelName", Type: entity.FieldTypeString, Optionality: entity.Required, Description: "Vendor name, one of: " + joinNames(s.deps.Pixels)},
			{Key: "pixelParams", Type: entity.FieldTypeMap, Optionality: entity.Optional, Description: "Expected pixel parameters"},
			{Key: "customDomain", Type: entity.FieldTypeString, Optionality: entity.Optional, Description: "First-party tracking domain"},
			{Key: "count", Type: entity.FieldTypeNumeric, Optionality: entity.Optional, Description: "Exact number of matching requests"},
		},
	}
}

func (s *CheckPixel) Execute(ctx context.Context, sess output.Session, data map[string]any) (*entity.StepResponse, error) {
	name, err := stringField(data, "pixelName")
	if err != nil {
		return errored("%s", err.Error()), nil
	}
	params, resp := parameters(data, "pixelParams")
	if resp != nil {
		return resp, nil
	}
	count, resp := expectedCount(data)
	if resp != nil {
		return resp, nil
	}
	domain, _ := optionalString(data, "customDomain")

	q, resp := resolve(s.deps, name, params, domain)
	if resp != nil {
		return resp, nil
	}
	return verify(ctx, s.deps, sess, q, count, "the "+name+" pixel"), nil
}

var floodlightFields = []struct{ field, param string }{
	{"advertiserId", "src"},
	{"groupTagString", "type"},
	{"activityTagString", "cat"},
}

type CheckFloodlight struct {
	deps Deps
}

func NewCheckFloodlight(d Deps) *CheckFloodlight {
	return &CheckFloodlight{deps: d}
}

func (s *CheckFloodlight) Definition() entity.StepDefinition {
	return entity.StepDefinition{
		StepID:     "CheckFloodlight",
		Name:       "Check a Floodlight tag",
		Expression: `the floodlight tag for advertiser (?<advertiserId>.+), group (?<groupTagString>.+), and activity (?<activityTagString>.+) should have fired`,
		Type:       entity.StepTypeValidation,
		ExpectedFields: []entity.FieldDefinition{
			{Key: "advertiserId", Type: entity.FieldTypeString, Optionality: entity.Required, Description: "Advertiser ID (src)"},
			{Key: "groupTagString", Type: entity.FieldTypeString, Optionality: entity.Required, Description: "Group tag string (type)"},
			{Key: "activityTagString", Type: entity.FieldTypeString, Optionality: entity.Required, Description: "Activity tag string (cat)"},
			{Key: "floodlightParams", Type: entity.FieldTypeMap, Optionality: entity.Optional, Description: "Additional expected parameters"},
		},
	}
}

func (s *CheckFloodlight) Execute(ctx context.Context, sess output.Session, data map[string]any) (*entity.StepResponse, error) {
	params, resp := parameters(data, "floodlightParams")
	if resp != nil {
		return resp, nil
	}
	if params == nil {
		params = entity.ParameterSet{}
	}
	for _, f := range floodlightFields {
		v, err := stringField(data, f.field)
		if err != nil {
			return errored("%s", err.Error()), nil
		}
		params[f.param] = entity.Equals(v)
	}

	q, resp := resolve(s.deps, "floodlight", params, "")
	if resp != nil {
		return resp, nil
	}
	return verify(ctx, s.deps, sess, q, nil, "the floodlight tag"), nil
}

type CheckLinkedIn struct {
	deps Deps
}

func NewCheckLinkedIn(d Deps) *CheckLinkedIn {
	return &CheckLinkedIn{deps: d}
}

func (s *CheckLinkedIn) Definition() entity.StepDefinition {
	return entity.StepDefinition{
		StepID:     "CheckLinkedIn",
		Name:       "Check the LinkedIn Insight tag",
		Expression: `the linkedin insight tag for partner (?<pid>.+) should have fired`,
		Type:       entity.StepTypeValidation,
		ExpectedFields: []entity.FieldDefinition{
			{Key: "pid", Type: entity.FieldTypeString, Optionality: entity.Required, Description: "Partner ID"},
			{Key: "conversionId", Type: entity.FieldTypeString, Optionality: entity.Optional, Description: "Conversion ID"},
		},
	}
}

func (s *CheckLinkedIn) Execute(ctx context.Context, sess output.Session, data map[string]any) (*entity.StepResponse, error) {
	pid, err := stringField(data, "pid")
	if err != nil {
		return errored("%s", err.Error()), nil
	}
	params := entity.ParameterSet{"pid": entity.Equals(pid)}
	if conv, ok := optionalString(data, "conversionId"); ok && conv != "" {
		params["conversionId"] = entity.Equals(conv)
	}

	q, resp := resolve(s.deps, "linkedin insight", params, "")
	if resp != nil {
		return resp, nil
	}
	return verify(ctx, s.deps, sess, q, nil, "the linkedin insight tag"), nil
}

type CheckTagScript struct {
	deps Deps
}

func NewCheckTagScript(d Deps) *CheckTagScript {
	return &CheckTagScript{deps: d}
}

func (s *CheckTagScript) Definition() entity.StepDefinition {
	return entity.StepDefinition{
		StepID:     "CheckTagScript",
		Name:       "Check a vendor tag script is loaded",
		Expression: `the page should load the (?<pixelName>.+) tag script`,
		Type:       entity.StepTypeValidation,
		ExpectedFields: []entity.FieldDefinition{
			{Key: "pixelName", Type: entity.FieldTypeString, Optionality: entity.Required, Description: "Vendor name"},
		},
	}
}

// Execute looks for the vendor's loader both in fetched scripts and in the
// page markup, so a tag blocked by the network still shows up as embedded.
func (s *CheckTagScript) Execute(ctx context.Context, sess output.Session, data map[string]any) (*entity.StepResponse, error) {
	name, err := stringField(data, "pixelName")
	if err != nil {
		return errored("%s", err.Error()), nil
	}
	desc, err := s.deps.Pixels.Lookup(name)
	if err != nil {
		return pixelError(s.deps, name, err), nil
	}
	if len(desc.ScriptURLs) == 0 {
		return errored("No tag script is known for the %s pixel", desc.Name), nil
	}
	if err := sess.WaitIdle(ctx, s.deps.IdleTimeout); err != nil {
		return withRecords(errored("There was a problem waiting for network activity: %s", err.Error()), errorRecord(err)), nil
	}

	var loaded []string
	for req := range sess.Requests() {
		if req.ResourceType == "Script" {
			loaded = append(loaded, req.URL)
		}
	}
	markup, err := sess.HTML(ctx)
	if err != nil {
		return withRecords(errored("There was a problem reading the page: %s", err.Error()), errorRecord(err)), nil
	}
	embedded, err := htmlscan.ScriptURLs(markup, sess.CurrentURL())
	if err != nil {
		return withRecords(errored("There was a problem parsing the page: %s", err.Error()), errorRecord(err)), nil
	}

	q := matcher.Query{BaseURLs: desc.ScriptURLs}
	found := matcher.Candidates(pseudoRequests(loaded, embedded), q)
	evidence := keyValueRecord("scripts", "Scripts", map[string]any{
		"expected": desc.ScriptURLs,
		"loaded":   loaded,
		"embedded": embedded,
	})
	if len(found) == 0 {
		return withRecords(failed("The %s tag script was not found on %s", desc.Name, sess.CurrentURL()), evidence), nil
	}
	return withRecords(passed("The %s tag script was found at %s", desc.Name, found[0].URL), evidence), nil
}

func pseudoRequests(groups ...[]string) iter.Seq[entity.CapturedRequest] {
	urls := slices.Concat(groups...)
	return func(yield func(entity.CapturedRequest) bool) {
		for _, u := range urls {
			if !yield(entity.CapturedRequest{URL: u, Method: "GET"}) {
				return
			}
		}
	}
}

func joinNames(p output.PixelLookup) string {
	if p == nil {
		return ""
	}
	return strings.Join(p.Names(), ", ")
}
