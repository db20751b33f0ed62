package entity

import "time"

type Screenshot struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

// NavigationResponse is the main document response of the last navigation.
type NavigationResponse struct {
	URL        string
	Status     int
	StatusText string
	MimeType   string
	Headers    map[string]string
}

type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  time.Time
	HTTPOnly bool
	Secure   bool
}
