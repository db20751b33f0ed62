package entity

type ParamStyle string

const (
	ParamStyleQuery  ParamStyle = "query"
	ParamStyleMatrix ParamStyle = "matrix"
)

// PixelDescriptor describes how a vendor's tracking call is recognised.
type PixelDescriptor struct {
	Name         string
	Aliases      []string
	BaseURLs     []string
	PathContains string
	FixedParams  map[string]string
	ParamStyle   ParamStyle
	// ScriptURLs are prefixes of the vendor's tag loader script.
	ScriptURLs []string
}
