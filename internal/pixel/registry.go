// Package pixel maps vendor names to the URL and parameter rules that identify
// their tracking calls.
package pixel

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"tracking-cog/internal/domain/entity"
	"tracking-cog/internal/matcher"
)

var ErrUnknownPixel = errors.New("unknown pixel")

// Registry is immutable after construction and safe for concurrent use.
type Registry struct {
	byName map[string]entity.PixelDescriptor
	names  []string
}

// NewRegistry indexes descriptors by name and alias. Later descriptors
// replace earlier ones with the same name, and an alias never shadows a
// canonical name.
func NewRegistry(descriptors ...entity.PixelDescriptor) *Registry {
	canonical := make(map[string]entity.PixelDescriptor, len(descriptors))
	for _, d := range descriptors {
		d = normalizeDescriptor(d)
		if d.Name == "" {
			continue
		}
		canonical[d.Name] = d
	}

	r := &Registry{byName: make(map[string]entity.PixelDescriptor, len(canonical))}
	for name, d := range canonical {
		r.names = append(r.names, name)
		r.byName[name] = d
	}
	slices.Sort(r.names)

	for _, name := range r.names {
		d := canonical[name]
		for _, alias := range d.Aliases {
			a := normalizeName(alias)
			if _, isName := canonical[a]; a == "" || isName {
				continue
			}
			if _, taken := r.byName[a]; !taken {
				r.byName[a] = d
			}
		}
	}
	return r
}

// Default returns a registry with the built-in vendor table.
func Default() *Registry {
	return NewRegistry(builtins...)
}

func (r *Registry) Lookup(name string) (entity.PixelDescriptor, error) {
	d, ok := r.byName[normalizeName(name)]
	if !ok {
		return entity.PixelDescriptor{}, fmt.Errorf("%w %q", ErrUnknownPixel, name)
	}
	return d, nil
}

// Names lists canonical vendor names in sorted order.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

// Resolve builds the matcher query for a vendor. Caller parameters are
// merged first and fixed vendor parameters are applied on top, so vendor
// invariants win. A custom domain adds base URLs, it never replaces them.
func (r *Registry) Resolve(name string, params entity.ParameterSet, customDomain string) (matcher.Query, error) {
	d, err := r.Lookup(name)
	if err != nil {
		return matcher.Query{}, err
	}

	merged := params.Clone()
	for k, v := range d.FixedParams {
		merged[k] = entity.Equals(v)
	}

	return matcher.Query{
		BaseURLs:     withCustomDomain(d.BaseURLs, customDomain),
		PathContains: d.PathContains,
		Params:       merged,
		ParamStyle:   d.ParamStyle,
	}, nil
}

// withCustomDomain appends first-party variants of the vendor endpoints. A
// full URL is used as-is; a bare host replaces the host of each base URL.
func withCustomDomain(bases []string, domain string) []string {
	out := slices.Clone(bases)
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return out
	}
	if strings.Contains(domain, "://") {
		if !slices.Contains(out, domain) {
			out = append(out, domain)
		}
		return out
	}

	domain = strings.TrimSuffix(domain, "/")
	for _, base := range bases {
		scheme, rest, ok := strings.Cut(base, "://")
		if !ok {
			continue
		}
		path := ""
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			path = rest[i:]
		}
		candidate := scheme + "://" + domain + path
		if !slices.Contains(out, candidate) {
			out = append(out, candidate)
		}
	}
	return out
}

func normalizeDescriptor(d entity.PixelDescriptor) entity.PixelDescriptor {
	d.Name = normalizeName(d.Name)
	d.BaseURLs = slices.Clone(d.BaseURLs)
	d.Aliases = slices.Clone(d.Aliases)
	d.ScriptURLs = slices.Clone(d.ScriptURLs)
	if d.ParamStyle == "" {
		d.ParamStyle = entity.ParamStyleQuery
	}
	if d.FixedParams != nil {
		fixed := make(map[string]string, len(d.FixedParams))
		for k, v := range d.FixedParams {
			fixed[k] = v
		}
		d.FixedParams = fixed
	}
	return d
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
