// Package matcher decides whether captured network requests represent a given
// tracking call.
package matcher

import (
	"iter"
	"strings"

	"tracking-cog/internal/domain/entity"
)

// Query describes which requests are candidates and what parameters they
// must carry.
type Query struct {
	BaseURLs     []string
	PathContains string
	Params       entity.ParameterSet
	ParamStyle   entity.ParamStyle
}

// Candidates filters requests by base URL prefix and path substring,
// preserving order.
func Candidates(requests iter.Seq[entity.CapturedRequest], q Query) []entity.CapturedRequest {
	prefixes := make([]urlPrefix, 0, len(q.BaseURLs))
	for _, base := range q.BaseURLs {
		if base = strings.TrimSpace(base); base != "" {
			prefixes = append(prefixes, parsePrefix(base))
		}
	}

	var out []entity.CapturedRequest
	for req := range requests {
		if q.PathContains != "" && !strings.Contains(urlPath(req.URL), q.PathContains) {
			continue
		}
		for _, p := range prefixes {
			if p.matches(req.URL) {
				out = append(out, req)
				break
			}
		}
	}
	return out
}

// Match returns every candidate whose decoded parameters satisfy q.Params.
// A request whose method or content type cannot be decoded fails the whole
// call; with no candidates nothing is decoded.
func Match(requests iter.Seq[entity.CapturedRequest], q Query) (*entity.MatchResult, error) {
	candidates := Candidates(requests, q)
	result := &entity.MatchResult{Candidates: len(candidates)}
	if len(candidates) == 0 {
		return result, nil
	}

	for _, req := range candidates {
		params, err := Decode(req, q.ParamStyle)
		if err != nil {
			return nil, err
		}
		if SatisfiesAll(q.Params, params) {
			result.Matches = append(result.Matches, entity.Match{Request: req, Params: params})
		}
	}
	return result, nil
}

type urlPrefix struct {
	raw      string
	scheme   string
	host     string
	path     string
	wildcard bool
}

func parsePrefix(base string) urlPrefix {
	scheme, host, rest, ok := splitURL(base)
	if !ok {
		return urlPrefix{raw: base}
	}
	p := urlPrefix{raw: base, scheme: strings.ToLower(scheme), host: strings.ToLower(host), path: rest}
	if strings.HasPrefix(p.host, "*.") {
		p.wildcard = true
		p.host = p.host[1:]
	}
	return p
}

func (p urlPrefix) matches(rawURL string) bool {
	if p.scheme == "" {
		return strings.HasPrefix(rawURL, p.raw)
	}
	scheme, host, rest, ok := splitURL(rawURL)
	if !ok || !strings.EqualFold(scheme, p.scheme) {
		return false
	}
	host = strings.ToLower(host)

	switch {
	case p.wildcard:
		if !strings.HasSuffix(host, p.host) {
			return false
		}
	case p.path == "":
		// A base URL without a path is a plain prefix, so it may stop mid-host.
		return strings.HasPrefix(host, p.host)
	case host != p.host:
		return false
	}
	return strings.HasPrefix(rest, p.path)
}

// splitURL splits "scheme://host/rest" without normalising the rest.
// urlPath returns the path of raw without its query or fragment. An
// unparseable URL is returned whole.
func urlPath(raw string) string {
	_, _, rest, ok := splitURL(raw)
	if !ok {
		return raw
	}
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

func splitURL(raw string) (scheme, host, rest string, ok bool) {
	i := strings.Index(raw, "://")
	if i <= 0 {
		return "", "", "", false
	}
	scheme = raw[:i]
	remainder := raw[i+3:]
	end := strings.IndexAny(remainder, "/?#;")
	if end < 0 {
		return scheme, remainder, "", true
	}
	return scheme, remainder[:end], remainder[end:], true
}
