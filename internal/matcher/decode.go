package matcher

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"tracking-cog/internal/domain/entity"
)

// Decode extracts the flat parameter map of a captured request.
//
// GET parameters come from the query string. POST, PATCH and PUT start from
// the query string and then overlay the body, decoded according to its
// content type. Duplicate keys resolve to the last occurrence.
func Decode(req entity.CapturedRequest, style entity.ParamStyle) (map[string]string, error) {
	params := make(map[string]string)
	if style == entity.ParamStyleMatrix {
		decodeMatrix(params, req.URL)
	}
	decodeQuery(params, rawQuery(req.URL))

	switch strings.ToUpper(req.Method) {
	case "GET":
		return params, nil
	case "POST", "PATCH", "PUT":
		if err := decodeBody(params, req); err != nil {
			return nil, err
		}
		return params, nil
	default:
		return nil, fmt.Errorf("%w %q for %s", ErrUnknownMethod, req.Method, req.URL)
	}
}

func decodeBody(dst map[string]string, req entity.CapturedRequest) error {
	if req.PostBody == "" {
		return nil
	}

	contentType := req.ContentType()
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))

	switch mediaType {
	case "application/json":
		return decodeJSON(dst, req.PostBody)
	case "text/plain":
		body := strings.TrimSpace(req.PostBody)
		if strings.HasPrefix(body, "{") || strings.HasPrefix(body, "[") {
			return decodeJSON(dst, body)
		}
		// Beacon payloads may batch several hits, one query string per line.
		for _, line := range strings.Split(body, "\n") {
			decodeQuery(dst, strings.TrimSpace(line))
		}
		return nil
	case "application/x-www-form-urlencoded":
		decodeQuery(dst, req.PostBody)
		return nil
	default:
		return fmt.Errorf("%w %q for %s", ErrUnknownContentType, contentType, req.URL)
	}
}

func decodeJSON(dst map[string]string, body string) error {
	if !gjson.Valid(body) {
		return fmt.Errorf("%w: invalid JSON", ErrUnparseableBody)
	}
	flatten(dst, "", gjson.Parse(body))
	return nil
}

// flatten writes nested values under dotted keys. Composite values also keep
// their raw JSON at their own key.
func flatten(dst map[string]string, prefix string, v gjson.Result) {
	switch {
	case v.IsObject():
		if prefix != "" {
			dst[prefix] = v.Raw
		}
		v.ForEach(func(k, child gjson.Result) bool {
			flatten(dst, joinKey(prefix, k.String()), child)
			return true
		})
	case v.IsArray():
		if prefix != "" {
			dst[prefix] = v.Raw
		}
		for i, child := range v.Array() {
			flatten(dst, joinKey(prefix, strconv.Itoa(i)), child)
		}
	default:
		if prefix == "" {
			return
		}
		switch v.Type {
		case gjson.String:
			dst[prefix] = v.Str
		case gjson.Null:
			dst[prefix] = "null"
		default:
			dst[prefix] = v.Raw
		}
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func rawQuery(rawURL string) string {
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		rawURL = rawURL[:i]
	}
	i := strings.IndexByte(rawURL, '?')
	if i < 0 {
		return ""
	}
	return rawURL[i+1:]
}

func decodeQuery(dst map[string]string, query string) {
	if query == "" {
		return
	}
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		key = unescape(key)
		if key == "" {
			continue
		}
		dst[key] = unescape(value)
	}
}

// decodeMatrix reads ";key=value" path parameters as used by Floodlight.
func decodeMatrix(dst map[string]string, rawURL string) {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		rawURL = rawURL[:i]
	}
	if i := strings.Index(rawURL, "://"); i >= 0 {
		rawURL = rawURL[i+3:]
	}
	slash := strings.IndexByte(rawURL, '/')
	if slash < 0 {
		return
	}
	path := rawURL[slash:]
	semi := strings.IndexByte(path, ';')
	if semi < 0 {
		return
	}
	for _, seg := range strings.Split(path[semi+1:], ";") {
		key, value, ok := strings.Cut(seg, "=")
		if !ok || key == "" {
			continue
		}
		dst[unescape(key)] = unescape(value)
	}
}

func unescape(s string) string {
	if out, err := url.QueryUnescape(s); err == nil {
		return out
	}
	return s
}
