package entity

import (
	"strings"
	"time"
)

// CapturedRequest is one network exchange observed on a page. Values are
// copied into the request log and never modified afterwards.
type CapturedRequest struct {
	ID           string
	URL          string
	Method       string
	ResourceType string
	PostBody     string
	HasPostBody  bool
	Headers      map[string]string
	Status       int
	FrameID      string
	Failed       bool
	FailureText  string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Header returns a request header value. Keys are stored lower-cased.
func (r CapturedRequest) Header(name string) string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers[strings.ToLower(name)]
}

func (r CapturedRequest) ContentType() string {
	return r.Header("content-type")
}

func (r CapturedRequest) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Match is a captured request that satisfied a parameter set, together with
// the parameters decoded from it.
type Match struct {
	Request CapturedRequest
	Params  map[string]string
}

type MatchResult struct {
	Candidates int
	Matches    []Match
}

func (r *MatchResult) Count() int {
	if r == nil {
		return 0
	}
	return len(r.Matches)
}
