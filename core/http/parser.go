package http

import (
	"bytes"
	"errors"
	"strings"
)

// Parse errors
var (
	ErrInvalidMethod  = errors.New("http: invalid method")
	ErrMissingPath    = errors.New("http: missing path")
	ErrMissingQuery   = errors.New("http: missing query")
	ErrMalformedQuery = errors.New("http: malformed query")
	ErrMissingBody    = errors.New("http: missing header/body separator")
)

// ParseError reports where a raw request failed to parse.
// Kind is one of the Err* sentinels above, Detail the offending fragment.
type ParseError struct {
	Kind   error
	Detail string
}

func (e *ParseError) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Detail
}

func (e *ParseError) Unwrap() error {
	return e.Kind
}

// Reason returns a short label for the failure kind
func (e *ParseError) Reason() string {
	switch e.Kind {
	case ErrInvalidMethod:
		return "invalid_method"
	case ErrMissingPath:
		return "missing_path"
	case ErrMissingQuery:
		return "missing_query"
	case ErrMalformedQuery:
		return "malformed_query"
	case ErrMissingBody:
		return "missing_body"
	default:
		return "unknown"
	}
}

var (
	crlf      = []byte("\r\n")
	separator = []byte("\r\n\r\n")
)

// Parse turns a complete, fully buffered request into a Request.
// Nothing is read incrementally: the whole message must already be in data.
func Parse(data []byte) (*Request, error) {
	// Start line
	lineEnd := bytes.Index(data, crlf)
	line := data
	if lineEnd != -1 {
		line = data[:lineEnd]
	}

	sp1 := bytes.IndexByte(line, ' ')
	if sp1 == -1 {
		return nil, &ParseError{Kind: ErrInvalidMethod, Detail: truncate(line)}
	}
	method := ParseMethod(string(line[:sp1]))
	if method == MethodUnknown {
		return nil, &ParseError{Kind: ErrInvalidMethod, Detail: truncate(line[:sp1])}
	}

	endpoint := line[sp1+1:]
	if sp2 := bytes.IndexByte(endpoint, ' '); sp2 != -1 {
		endpoint = endpoint[:sp2]
	}
	if len(endpoint) == 0 {
		return nil, &ParseError{Kind: ErrMissingPath}
	}

	req := &Request{Method: method}

	rawPath, rawQuery, hasQuery := strings.Cut(string(endpoint), "?")
	req.Path = Sanitize(rawPath)
	if hasQuery {
		query, err := splitQuery(rawQuery)
		if err != nil {
			return nil, err
		}
		req.Query = query
	} else {
		req.Query = make(map[string]string)
	}

	// Headers run from the end of the start line to the blank line
	sep := bytes.Index(data, separator)
	req.Headers = make(map[string]string)
	if lineEnd != -1 && sep > lineEnd {
		parseHeaders(req.Headers, data[lineEnd+2:sep])
	}

	if sep == -1 {
		return nil, &ParseError{Kind: ErrMissingBody}
	}
	if body := data[sep+len(separator):]; len(body) > 0 {
		req.Body = append([]byte(nil), body...)
	}

	return req, nil
}

// ParseQuery extracts the query parameters from an endpoint (path?query).
// An endpoint without '?' fails with ErrMissingQuery.
func ParseQuery(endpoint string) (map[string]string, error) {
	_, rawQuery, ok := strings.Cut(endpoint, "?")
	if !ok {
		return nil, &ParseError{Kind: ErrMissingQuery, Detail: endpoint}
	}
	return splitQuery(rawQuery)
}

// splitQuery is all-or-nothing: one pair without '=' rejects the whole query
func splitQuery(raw string) (map[string]string, error) {
	query := make(map[string]string)
	if raw == "" {
		return query, nil
	}

	for _, pair := range strings.Split(raw, "&") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, &ParseError{Kind: ErrMalformedQuery, Detail: pair}
		}
		query[key] = value
	}
	return query, nil
}

// parseHeaders is lenient: lines without ':' are dropped
func parseHeaders(headers map[string]string, data []byte) {
	for len(data) > 0 {
		var line []byte
		if i := bytes.Index(data, crlf); i != -1 {
			line, data = data[:i], data[i+2:]
		} else {
			line, data = data, nil
		}

		colon := bytes.IndexByte(line, ':')
		if colon == -1 {
			continue
		}
		key := string(bytes.Trim(line[:colon], " \t"))
		value := string(bytes.Trim(line[colon+1:], " \t"))
		headers[key] = value
	}
}

func truncate(b []byte) string {
	const limit = 32
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
