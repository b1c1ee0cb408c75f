package core

import (
	"errors"
	"time"

	"github.com/searchktools/helium/core/correlator"
	"github.com/searchktools/helium/core/http"
	"github.com/searchktools/helium/core/router"
)

// WorkItem is one buffered request waiting for a worker
type WorkItem struct {
	Ticket correlator.Ticket
	Data   []byte
}

// Delivery carries a finished response back to the acceptor loop.
// Head marks the answer to a HEAD request, sent without its body.
type Delivery struct {
	Ticket   correlator.Ticket
	Response http.TaskResponse
	Head     bool
}

// process runs on a worker. Exactly one Delivery is produced per item
// unless the server is closing.
func (s *Server) process(_ int, item WorkItem) {
	resp, method := s.respond(item.Data)
	s.metrics.RecordResponse(resp.Status.Int())

	d := Delivery{Ticket: item.Ticket, Response: resp, Head: method == http.HEAD}
	select {
	case s.results <- d:
	case <-s.done:
	}
}

// respond produces the response for one raw request, along with the
// request method when it parsed
func (s *Server) respond(data []byte) (http.TaskResponse, http.Method) {
	req, err := http.Parse(data)
	if err != nil {
		reason := "unknown"
		var perr *http.ParseError
		if errors.As(err, &perr) {
			reason = perr.Reason()
		}
		s.metrics.RecordParseError(reason)
		return http.BadRequest(), http.MethodUnknown
	}

	h, ok := s.router.Lookup(req.Method, req.Path)
	if !ok {
		return http.NotFound(), req.Method
	}
	return s.execute(router.RouteKey{Path: req.Path, Method: req.Method}, h, req), req.Method
}

// execute runs the handler once. A panic becomes a 500.
func (s *Server) execute(route router.RouteKey, h router.Handler, req *http.Request) (resp http.TaskResponse) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveHandler(route.String(), time.Since(start))
		if r := recover(); r != nil {
			s.log.Printf("❌ Handler %s panicked: %v", route, r)
			resp = http.InternalServerError()
		}
	}()
	return h.Execute(req)
}
