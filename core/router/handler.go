package router

import (
	"github.com/searchktools/helium/core/codec"
	"github.com/searchktools/helium/core/http"
	"google.golang.org/protobuf/proto"
)

// Handler is the single capability every route target satisfies:
// produce a TaskResponse for a request. Handlers are shared by all workers,
// so any state they mutate needs its own synchronization.
type Handler interface {
	Execute(req *http.Request) http.TaskResponse
}

// HandlerFunc adapts a request-taking function to Handler
type HandlerFunc func(req *http.Request) http.TaskResponse

// Execute calls f(req)
func (f HandlerFunc) Execute(req *http.Request) http.TaskResponse {
	return f(req)
}

// Static adapts a zero-argument function to Handler. The request is ignored
// and the result is always sent with 200 OK, e.g. a handler that returns the
// HTML of an index page.
type Static func() string

// Execute calls f and wraps its result in a 200 response
func (f Static) Execute(*http.Request) http.TaskResponse {
	return http.OK(f())
}

// Encoded renders whatever fn returns through a codec. Encoding failures
// become 500 responses.
type Encoded struct {
	Codec codec.Codec
	Fn    func(req *http.Request) (http.StatusCode, any)
}

// Execute runs Fn and encodes its value
func (h Encoded) Execute(req *http.Request) http.TaskResponse {
	status, v := h.Fn(req)

	data, err := h.Codec.Encode(v)
	if err != nil {
		return http.InternalServerError()
	}
	return http.TaskResponse{
		Status:      status,
		Content:     string(data),
		ContentType: h.Codec.ContentType(),
	}
}

// JSON returns a handler that encodes fn's value as JSON
func JSON(fn func(req *http.Request) (http.StatusCode, any)) Handler {
	return Encoded{Codec: codec.JSON{}, Fn: fn}
}

// Proto returns a handler that encodes fn's message with protojson
func Proto(fn func(req *http.Request) (http.StatusCode, proto.Message)) Handler {
	return Encoded{
		Codec: codec.Proto{},
		Fn: func(req *http.Request) (http.StatusCode, any) {
			return fn(req)
		},
	}
}
