package pixel

import (
	"fmt"
	"slices"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	"tracking-cog/internal/domain/entity"
)

// Fixed parameter names may contain dots (ep.value), so the key path
// delimiter must be something that never appears in a pixel definition.
const keyDelim = "/"

type descriptorConfig struct {
	Aliases      []string          `koanf:"aliases"`
	BaseURLs     []string          `koanf:"base_urls"`
	PathContains string            `koanf:"path_contains"`
	FixedParams  map[string]string `koanf:"fixed_params"`
	ParamStyle   string            `koanf:"param_style"`
	ScriptURLs   []string          `koanf:"script_urls"`
}

type registryFile struct {
	Pixels map[string]descriptorConfig `koanf:"pixels"`
}

// Load builds a registry from the built-in table merged with the YAML file
// at path. File entries override built-ins field by field; new names extend
// the table. An empty path yields the built-in registry.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}

	k := koanf.New(keyDelim)
	if err := k.Load(structs.Provider(builtinFile(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load built-in pixels: %w", err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load pixel registry %s: %w", path, err)
	}

	var cfg registryFile
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal pixel registry %s: %w", path, err)
	}

	descriptors, err := cfg.descriptors()
	if err != nil {
		return nil, fmt.Errorf("pixel registry %s: %w", path, err)
	}
	return NewRegistry(descriptors...), nil
}

func builtinFile() registryFile {
	f := registryFile{Pixels: make(map[string]descriptorConfig, len(builtins))}
	for _, d := range builtins {
		f.Pixels[d.Name] = descriptorConfig{
			Aliases:      d.Aliases,
			BaseURLs:     d.BaseURLs,
			PathContains: d.PathContains,
			FixedParams:  d.FixedParams,
			ParamStyle:   string(d.ParamStyle),
			ScriptURLs:   d.ScriptURLs,
		}
	}
	return f
}

func (f registryFile) descriptors() ([]entity.PixelDescriptor, error) {
	keys := make([]string, 0, len(f.Pixels))
	for name := range f.Pixels {
		keys = append(keys, name)
	}
	slices.Sort(keys)

	seen := make(map[string]string, len(keys))
	out := make([]entity.PixelDescriptor, 0, len(keys))
	for _, key := range keys {
		name := normalizeName(key)
		if prev, dup := seen[name]; dup {
			return nil, fmt.Errorf("pixel %q is defined twice (%q)", name, prev)
		}
		seen[name] = key

		c := f.Pixels[key]
		if len(c.BaseURLs) == 0 {
			return nil, fmt.Errorf("pixel %q has no base_urls", name)
		}
		style := entity.ParamStyle(c.ParamStyle)
		switch style {
		case "", entity.ParamStyleQuery, entity.ParamStyleMatrix:
		default:
			return nil, fmt.Errorf("pixel %q: unknown param_style %q", name, c.ParamStyle)
		}

		out = append(out, entity.PixelDescriptor{
			Name:         name,
			Aliases:      c.Aliases,
			BaseURLs:     c.BaseURLs,
			PathContains: c.PathContains,
			FixedParams:  c.FixedParams,
			ParamStyle:   style,
			ScriptURLs:   c.ScriptURLs,
		})
	}
	return out, nil
}
