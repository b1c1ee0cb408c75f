package http

// Request is a parsed HTTP/1.1 request. Parse builds it in one pass and
// nothing mutates it afterwards, so it is safe to share between goroutines.
type Request struct {
	Method Method
	// Path is the endpoint path after Sanitize
	Path string

	// Query parameters, keys unique
	Query map[string]string

	// Headers as sent, split on the first ':' with surrounding blanks trimmed
	Headers map[string]string

	// Body is nil when nothing follows the blank line
	Body []byte
}

// QueryValue returns the query parameter for key
func (r *Request) QueryValue(key string) string {
	return r.Query[key]
}

// Header returns the header value for key (exact match)
func (r *Request) Header(key string) string {
	return r.Headers[key]
}

// HasBody reports whether the request carried a body
func (r *Request) HasBody() bool {
	return r.Body != nil
}
