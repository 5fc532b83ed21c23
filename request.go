package grantway

// WebRequest is everything the engine needs to read from an inbound request.
// Host applications adapt their transport to this; the bundled net/http
// Handler provides one such adapter.
type WebRequest interface {
	// Query returns a query parameter.
	Query(name string) (value string, ok bool)

	// Form returns a form-body parameter.
	Form(name string) (value string, ok bool)

	// Authorization returns the Authorization header, or "" when absent.
	Authorization() string
}

// WebResponse is everything the engine needs to write an outbound response.
// Exactly one of WriteJSON, WriteHTML, Redirect, or WriteEmpty concludes a
// response; SetStatus and SetHeader must be called before it.
type WebResponse interface {
	// SetStatus sets the HTTP status code.
	SetStatus(code int)

	// SetHeader sets a response header.
	SetHeader(name, value string)

	// WriteJSON serializes v as the JSON response body.
	WriteJSON(v any) error

	// WriteHTML writes an HTML response body.
	WriteHTML(body string) error

	// Redirect issues a 302 redirect to location.
	Redirect(location string) error

	// WriteEmpty concludes the response with no body.
	WriteEmpty() error
}

// formView exposes a request's form parameters as an extension request.
type formView struct {
	req WebRequest
}

func (v formView) Param(name string) (string, bool) {
	return v.req.Form(name)
}
