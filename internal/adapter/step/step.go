// Package step holds the step handlers published in the manifest. Each step
// reads its typed fields from the opaque request data, drives the session
// and renders a PASSED, FAILED or ERROR response with evidence.
package step

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"tracking-cog/internal/application/port/output"
	"tracking-cog/internal/domain/entity"
	"tracking-cog/internal/matcher"
)

var errMissingField = errors.New("missing required field")

// Deps are the collaborators shared by every step.
type Deps struct {
	Pixels      output.PixelLookup
	Log         output.LoggerPort
	IdleTimeout time.Duration
}

// All returns every step in manifest order.
func All(d Deps) []output.StepPort {
	if d.IdleTimeout <= 0 {
		d.IdleTimeout = 10 * time.Second
	}
	return []output.StepPort{
		NewNavigateToPage(d),
		NewEnterValueIntoField(d),
		NewClickOnElement(d),
		NewScrollTo(d),
		NewFocusOnFrame(d),
		NewTakeScreenshot(d),
		NewCheckNetworkRequest(d),
		NewCheckPixel(d),
		NewCheckFloodlight(d),
		NewCheckLinkedIn(d),
		NewCheckTagScript(d),
		NewCheckCookie(d),
		NewCheckPageResponse(d),
	}
}

func passed(format string, args ...any) *entity.StepResponse {
	return &entity.StepResponse{Outcome: entity.OutcomePassed, MessageFormat: format, MessageArgs: args}
}

func failed(format string, args ...any) *entity.StepResponse {
	return &entity.StepResponse{Outcome: entity.OutcomeFailed, MessageFormat: format, MessageArgs: args}
}

func errored(format string, args ...any) *entity.StepResponse {
	return &entity.StepResponse{Outcome: entity.OutcomeError, MessageFormat: format, MessageArgs: args}
}

func withRecords(resp *entity.StepResponse, records ...entity.Record) *entity.StepResponse {
	resp.Records = append(resp.Records, records...)
	return resp
}

func keyValueRecord(id, name string, m map[string]any) entity.Record {
	return entity.Record{ID: id, Name: name, KeyValue: &entity.KeyValue{Map: m}}
}

func binaryRecord(id, name, mimeType string, data []byte) entity.Record {
	return entity.Record{ID: id, Name: name, Binary: &entity.Binary{MimeType: mimeType, Data: data}}
}

// matchTable renders matched requests with their decoded parameters. Only
// expected keys get their own column; the full parameter map is kept too.
func matchTable(id, name string, matches []entity.Match, expected entity.ParameterSet) entity.Record {
	headers := map[string]string{"url": "URL", "method": "Method", "status": "Status", "params": "Parameters"}
	keys := sortedKeys(expected)
	for _, k := range keys {
		headers["param:"+k] = k
	}

	rows := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		row := map[string]any{
			"url":    m.Request.URL,
			"method": m.Request.Method,
			"status": m.Request.Status,
			"params": m.Params,
		}
		for _, k := range keys {
			row["param:"+k] = m.Params[k]
		}
		rows = append(rows, row)
	}
	return entity.Record{ID: id, Name: name, Table: &entity.Table{Headers: headers, Rows: rows}}
}

// candidateTable shows what did reach the vendor endpoint when nothing
// matched. Undecodable candidates are listed with the decode error.
func candidateTable(q matcher.Query, sess output.NetworkCapture) (entity.Record, bool) {
	cands := matcher.Candidates(sess.Requests(), q)
	if len(cands) == 0 {
		return entity.Record{}, false
	}

	matches := make([]entity.Match, 0, len(cands))
	for _, c := range cands {
		params, err := matcher.Decode(c, q.ParamStyle)
		if err != nil {
			params = map[string]string{"error": err.Error()}
		}
		matches = append(matches, entity.Match{Request: c, Params: params})
	}
	return matchTable("candidates", "Requests to the expected endpoint", matches, q.Params), true
}

func errorRecord(err error) entity.Record {
	return keyValueRecord("error", "Error", map[string]any{"error": err.Error()})
}

func sortedKeys(set entity.ParameterSet) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringField(data map[string]any, key string) (string, error) {
	s, ok := optionalString(data, key)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %s", errMissingField, key)
	}
	return s, nil
}

// optionalString renders any scalar as text; absent or null values report
// false.
func optionalString(data map[string]any, key string) (string, bool) {
	v, ok := data[key]
	if !ok || v == nil {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return fmt.Sprint(x), true
	}
}

func intField(data map[string]any, key string) (int, error) {
	n, ok, err := optionalInt(data, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s", errMissingField, key)
	}
	return n, nil
}

func optionalInt(data map[string]any, key string) (int, bool, error) {
	s, ok := optionalString(data, key)
	if !ok || s == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, false, fmt.Errorf("field %s: %q is not a whole number", key, s)
	}
	return int(f), true, nil
}

func mapField(data map[string]any, key string) (map[string]any, error) {
	v, ok := data[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("field %s: expected an object, got %T", key, v)
	}
	return m, nil
}
