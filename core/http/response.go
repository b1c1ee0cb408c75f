package http

import (
	"strconv"

	"github.com/valyala/bytebufferpool"
	"golang.org/x/net/http/httpguts"
)

// DefaultContentType is used when a TaskResponse leaves ContentType empty
const DefaultContentType = "text/plain; charset=utf-8"

// TaskResponse is the outcome of one handler execution: a status and
// optional textual content. An empty Content means no content.
type TaskResponse struct {
	Status      StatusCode
	Content     string
	ContentType string
}

// OK returns a 200 response carrying content
func OK(content string) TaskResponse {
	return TaskResponse{Status: StatusOK, Content: content}
}

// NewResponse returns a response with the given status and content
func NewResponse(status StatusCode, content string) TaskResponse {
	return TaskResponse{Status: status, Content: content}
}

// StatusResponse returns a response whose content is the reason phrase
func StatusResponse(status StatusCode) TaskResponse {
	return TaskResponse{Status: status, Content: status.Text()}
}

// BadRequest is the generic response for requests that fail to parse
func BadRequest() TaskResponse {
	return StatusResponse(StatusBadRequest)
}

// NotFound is the response for requests with no registered route
func NotFound() TaskResponse {
	return StatusResponse(StatusNotFound)
}

// InternalServerError is the response for handlers that panic
func InternalServerError() TaskResponse {
	return StatusResponse(StatusInternalServerError)
}

// HasContent reports whether the response carries content
func (r TaskResponse) HasContent() bool {
	return r.Content != ""
}

// contentType falls back to the default when the handler's value would not
// be a valid header field value (CR/LF and other control bytes).
func (r TaskResponse) contentType() string {
	if r.ContentType == "" || !httpguts.ValidHeaderFieldValue(r.ContentType) {
		return DefaultContentType
	}
	return r.ContentType
}

// AppendResponse serializes r as a complete HTTP/1.1 response into buf.
// Every response closes the connection. Statuses that cannot carry a body
// (1xx, 204, 304) are sent without one.
func AppendResponse(buf *bytebufferpool.ByteBuffer, r TaskResponse) {
	appendResponse(buf, r, false)
}

// AppendHeadResponse serializes r as the answer to a HEAD request: the
// headers a GET would get, no body.
func AppendHeadResponse(buf *bytebufferpool.ByteBuffer, r TaskResponse) {
	appendResponse(buf, r, true)
}

func appendResponse(buf *bytebufferpool.ByteBuffer, r TaskResponse, head bool) {
	status := r.Status
	if status < 100 || status > 999 {
		status = StatusInternalServerError
	}

	buf.B = append(buf.B, "HTTP/1.1 "...)
	buf.B = strconv.AppendInt(buf.B, int64(status), 10)
	buf.B = append(buf.B, ' ')
	buf.B = append(buf.B, status.Text()...)

	if !status.AllowsBody() {
		buf.B = append(buf.B, "\r\nConnection: close\r\n\r\n"...)
		return
	}

	buf.B = append(buf.B, "\r\nContent-Type: "...)
	buf.B = append(buf.B, r.contentType()...)
	buf.B = append(buf.B, "\r\nContent-Length: "...)
	buf.B = strconv.AppendInt(buf.B, int64(len(r.Content)), 10)
	buf.B = append(buf.B, "\r\nConnection: close\r\n\r\n"...)
	if !head && r.HasContent() {
		buf.B = append(buf.B, r.Content...)
	}
}

// Encode returns r serialized as a fresh byte slice
func (r TaskResponse) Encode() []byte {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	AppendResponse(buf, r)
	return append([]byte(nil), buf.B...)
}
