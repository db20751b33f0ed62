// Package htmlscan pulls script URLs out of a rendered document.
package htmlscan

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// inlineURL finds absolute or scheme-relative URL literals in inline loader
// snippets, e.g. 'https://www.googletagmanager.com/gtm.js?id='+i.
var inlineURL = regexp.MustCompile(`(?:https?:)?//[A-Za-z0-9][A-Za-z0-9.\-]*\.[A-Za-z]{2,}[^\s'"<>()\\]*`)

// ScriptURLs returns, in document order and without duplicates, the src of
// every <script> element and every URL literal found inside inline scripts.
// Relative and scheme-relative URLs are resolved against base.
func ScriptURLs(rawHTML, base string) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var baseURL *url.URL
	if base != "" {
		baseURL, _ = url.Parse(base)
	}

	s := &scanner{base: baseURL, seen: make(map[string]struct{})}
	s.walk(doc)
	return s.out, nil
}

type scanner struct {
	base *url.URL
	seen map[string]struct{}
	out  []string
}

func (s *scanner) walk(n *html.Node) {
	if n.Type == html.ElementNode && n.Data == "script" {
		if src := attr(n, "src"); src != "" {
			s.add(src)
		} else if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			for _, m := range inlineURL.FindAllString(n.FirstChild.Data, -1) {
				s.add(m)
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		s.walk(c)
	}
}

func (s *scanner) add(raw string) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "//") {
		scheme := "https"
		if s.base != nil && s.base.Scheme != "" {
			scheme = s.base.Scheme
		}
		raw = scheme + ":" + raw
	}

	if s.base != nil {
		if ref, err := url.Parse(raw); err == nil {
			raw = s.base.ResolveReference(ref).String()
		}
	}

	if _, dup := s.seen[raw]; dup {
		return
	}
	s.seen[raw] = struct{}{}
	s.out = append(s.out, raw)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
