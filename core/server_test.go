package core

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	nethttp "net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/net/nettest"
	"golang.org/x/sync/errgroup"

	"github.com/searchktools/helium/core/correlator"
	"github.com/searchktools/helium/core/http"
	"github.com/searchktools/helium/core/middleware"
	"github.com/searchktools/helium/core/router"
)

func quietServer(workers uint) *Server {
	return quietServerWith(Config{MaxWorkers: workers})
}

func quietServerWith(cfg Config) *Server {
	cfg.Logger = log.New(io.Discard, "", 0)
	return NewWithConfig(cfg)
}

func registerRoutes(s *Server) {
	s.GET("/", router.Static(func() string { return "Index route" }))
	s.GET("/hello", router.HandlerFunc(func(req *http.Request) http.TaskResponse {
		return http.OK("hello " + req.QueryValue("name"))
	}))
	s.POST("/echo", router.HandlerFunc(func(req *http.Request) http.TaskResponse {
		return http.OK(string(req.Body))
	}))
	s.GET("/json", router.JSON(func(*http.Request) (http.StatusCode, any) {
		return http.StatusCreated, map[string]int{"n": 1}
	}))
	s.GET("/panic", router.HandlerFunc(func(*http.Request) http.TaskResponse {
		panic("boom")
	}))
}

// startServer serves s on a local listener until the test ends
func startServer(t *testing.T, s *Server) string {
	t.Helper()

	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ln) }()

	t.Cleanup(func() {
		s.Close()
		if err := <-errc; !errors.Is(err, ErrServerClosed) {
			t.Errorf("Expected ErrServerClosed, got %v", err)
		}
	})
	return ln.Addr().String()
}

func roundTrip(t *testing.T, addr, raw string) (*nethttp.Response, string) {
	t.Helper()
	resp, body, err := exchange(addr, raw)
	if err != nil {
		t.Fatalf("Round trip failed: %v", err)
	}
	return resp, body
}

func exchange(addr, raw string) (*nethttp.Response, string, error) {
	c, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return nil, "", err
	}
	defer c.Close()
	c.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := io.WriteString(c, raw); err != nil {
		return nil, "", err
	}

	resp, err := nethttp.ReadResponse(bufio.NewReader(c), nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return resp, string(body), nil
}

func TestServerIndexRoute(t *testing.T) {
	s := quietServer(2)
	registerRoutes(s)
	addr := startServer(t, s)

	resp, body := roundTrip(t, addr, "GET /?a=1 HTTP/1.1\r\nHost: x\r\n\r\n")

	if resp.StatusCode != 200 {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if body != "Index route" {
		t.Errorf("Expected 'Index route', got %q", body)
	}
	if !resp.Close {
		t.Error("Expected Connection: close")
	}
	if ct := resp.Header.Get("Content-Type"); ct != http.DefaultContentType {
		t.Errorf("Expected %q, got %q", http.DefaultContentType, ct)
	}
}

func TestServerStatusCodes(t *testing.T) {
	s := quietServer(2)
	registerRoutes(s)
	addr := startServer(t, s)

	tests := []struct {
		name   string
		raw    string
		status int
		body   string
	}{
		{"not found", "GET /missing HTTP/1.1\r\n\r\n", 404, "Not Found"},
		{"wrong method", "DELETE / HTTP/1.1\r\n\r\n", 404, "Not Found"},
		{"garbage", "GARBAGE\r\n\r\n", 400, "Bad Request"},
		{"malformed query", "GET /hello?name HTTP/1.1\r\n\r\n", 400, "Bad Request"},
		{"no separator", "GET / HTTP/1.1\r\nHost: x", 400, "Bad Request"},
		{"query", "GET /hello?name=helium HTTP/1.1\r\n\r\n", 200, "hello helium"},
		{"body", "POST /echo HTTP/1.1\r\nContent-Length: 4\r\n\r\nping", 200, "ping"},
		{"json", "GET /json HTTP/1.1\r\n\r\n", 201, `{"n":1}`},
		{"panic", "GET /panic HTTP/1.1\r\n\r\n", 500, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := roundTrip(t, addr, tt.raw)
			if resp.StatusCode != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, resp.StatusCode)
			}
			if strings.TrimSpace(body) != tt.body {
				t.Errorf("Expected body %q, got %q", tt.body, body)
			}
		})
	}
}

func TestServerSurvivesPanics(t *testing.T) {
	s := quietServer(1)
	registerRoutes(s)
	addr := startServer(t, s)

	for i := 0; i < 3; i++ {
		if resp, _ := roundTrip(t, addr, "GET /panic HTTP/1.1\r\n\r\n"); resp.StatusCode != 500 {
			t.Fatalf("Expected 500, got %d", resp.StatusCode)
		}
	}

	resp, body := roundTrip(t, addr, "GET / HTTP/1.1\r\n\r\n")
	if resp.StatusCode != 200 || body != "Index route" {
		t.Errorf("Expected worker to keep serving, got %d %q", resp.StatusCode, body)
	}
	if alive := s.workers.Alive(); alive != 1 {
		t.Errorf("Expected 1 live worker, got %d", alive)
	}
}

func TestServerConcurrentClients(t *testing.T) {
	const clients = 64

	s := quietServer(4)
	registerRoutes(s)
	addr := startServer(t, s)

	var g errgroup.Group
	for i := 0; i < clients; i++ {
		g.Go(func() error {
			raw := fmt.Sprintf("GET /hello?name=c%d HTTP/1.1\r\n\r\n", i)
			resp, body, err := exchange(addr, raw)
			if err != nil {
				return err
			}
			if want := fmt.Sprintf("hello c%d", i); resp.StatusCode != 200 || body != want {
				return fmt.Errorf("client %d: expected %q, got %d %q", i, want, resp.StatusCode, body)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Stats().Written < clients && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if st := s.Stats(); st.Written != clients || st.Accepted != clients {
		t.Errorf("Expected %d accepted and written, got %d and %d", clients, st.Accepted, st.Written)
	}
}

func TestServerParseErrorMetrics(t *testing.T) {
	s := quietServer(1)
	registerRoutes(s)
	addr := startServer(t, s)

	roundTrip(t, addr, "BREW / HTTP/1.1\r\n\r\n")
	roundTrip(t, addr, "GET /hello?x HTTP/1.1\r\n\r\n")

	reg := s.Metrics().Registry()
	if n, err := testutil.GatherAndCount(reg, "helium_parse_errors_total"); err != nil || n != 2 {
		t.Errorf("Expected 2 parse error series, got %d (%v)", n, err)
	}
	if n, err := testutil.GatherAndCount(reg, "helium_requests_total"); err != nil || n != 1 {
		t.Errorf("Expected only the 400 series, got %d (%v)", n, err)
	}
}

// dialSilent opens a connection that the test controls by hand
func dialSilent(t *testing.T, addr string) net.Conn {
	t.Helper()
	c, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, within time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func registerBig(s *Server) {
	big := strings.Repeat("x", 32<<20)
	s.GET("/big", router.Static(func() string { return big }))
	s.GET("/", router.Static(func() string { return "Index route" }))
}

func TestServerNonReadingPeerDoesNotStall(t *testing.T) {
	s := quietServerWith(Config{MaxWorkers: 2, WriteTimeout: 10 * time.Second})
	registerBig(s)
	addr := startServer(t, s)

	slow := dialSilent(t, addr)
	io.WriteString(slow, "GET /big HTTP/1.1\r\n\r\n")
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	resp, body := roundTrip(t, addr, "GET / HTTP/1.1\r\n\r\n")
	elapsed := time.Since(start)

	if resp.StatusCode != 200 || body != "Index route" {
		t.Errorf("Expected 200 'Index route', got %d %q", resp.StatusCode, body)
	}
	if elapsed > time.Second {
		t.Errorf("Expected fast client to be served while a peer is not reading, took %s", elapsed)
	}
}

func TestServerWriteTimeout(t *testing.T) {
	s := quietServerWith(Config{MaxWorkers: 1, WriteTimeout: 300 * time.Millisecond})
	registerBig(s)
	addr := startServer(t, s)

	slow := dialSilent(t, addr)
	io.WriteString(slow, "GET /big HTTP/1.1\r\n\r\n")

	if !waitFor(t, 3*time.Second, func() bool { return s.Stats().TimedOut == 1 }) {
		t.Fatalf("Expected the stuck write to time out, got %+v", s.Stats())
	}
	if st := s.Stats(); st.Written != 0 {
		t.Errorf("Expected nothing fully written, got %d", st.Written)
	}

	if resp, _ := roundTrip(t, addr, "GET / HTTP/1.1\r\n\r\n"); resp.StatusCode != 200 {
		t.Errorf("Expected server to keep serving, got %d", resp.StatusCode)
	}
}

func TestServerIdlePeerDoesNotStall(t *testing.T) {
	s := quietServer(1)
	registerRoutes(s)
	addr := startServer(t, s)

	dialSilent(t, addr)
	io.WriteString(dialSilent(t, addr), "GET /hel")
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	resp, body := roundTrip(t, addr, "GET / HTTP/1.1\r\n\r\n")
	if resp.StatusCode != 200 || body != "Index route" {
		t.Errorf("Expected 200 'Index route', got %d %q", resp.StatusCode, body)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Expected idle peers not to delay others, took %s", elapsed)
	}
}

func TestServerReadTimeout(t *testing.T) {
	s := quietServerWith(Config{MaxWorkers: 1, ReadTimeout: 100 * time.Millisecond})
	registerRoutes(s)
	addr := startServer(t, s)

	idle := dialSilent(t, addr)
	idle.SetReadDeadline(time.Now().Add(3 * time.Second))

	start := time.Now()
	_, err := idle.Read(make([]byte, 1))
	if err != io.EOF {
		t.Fatalf("Expected server to close the idle connection, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Expected close shortly after the read timeout, took %s", elapsed)
	}
	if !waitFor(t, time.Second, func() bool { return s.Stats().TimedOut == 1 }) {
		t.Errorf("Expected 1 timed out connection, got %+v", s.Stats())
	}
}

func TestServerBodilessResponses(t *testing.T) {
	s := quietServer(1)
	s.HEAD("/", router.Static(func() string { return "Index route" }))
	s.GET("/empty", router.HandlerFunc(func(*http.Request) http.TaskResponse {
		return http.StatusResponse(http.StatusNoContent)
	}))
	addr := startServer(t, s)

	readAll := func(raw string) string {
		c := dialSilent(t, addr)
		c.SetDeadline(time.Now().Add(5 * time.Second))
		io.WriteString(c, raw)
		wire, err := io.ReadAll(c)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		return string(wire)
	}

	head := readAll("HEAD / HTTP/1.1\r\n\r\n")
	if !strings.HasPrefix(head, "HTTP/1.1 200 OK") || !strings.Contains(head, "Content-Length: 11") {
		t.Errorf("Expected 200 with GET's Content-Length, got %q", head)
	}
	if !strings.HasSuffix(head, "\r\n\r\n") {
		t.Errorf("Expected HEAD answer without body, got %q", head)
	}

	empty := readAll("GET /empty HTTP/1.1\r\n\r\n")
	if !strings.HasPrefix(empty, "HTTP/1.1 204 No Content") || !strings.HasSuffix(empty, "\r\n\r\n") {
		t.Errorf("Expected bodiless 204, got %q", empty)
	}
}

func TestDeliverStaleTicketDropped(t *testing.T) {
	s := quietServer(1)
	s.table = correlator.NewTable[*conn](fixedKey(7))

	older, _, _ := s.table.Register(&conn{fd: -1})
	newer, _, replaced := s.table.Register(&conn{fd: -1})
	if !replaced {
		t.Fatal("Expected the shared key to collide")
	}

	s.deliver(Delivery{Ticket: older, Response: http.OK("for the evicted client")})

	if st := s.Stats(); st.Dropped != 1 {
		t.Errorf("Expected the evicted response to be dropped, got %+v", st)
	}
	if _, ok := s.table.Take(newer); !ok {
		t.Error("Expected the newer connection to still wait for its own response")
	}
}

type fixedKey correlator.Key

func (k fixedKey) Next() correlator.Key { return correlator.Key(k) }

func TestServerMiddleware(t *testing.T) {
	s := quietServer(1)
	s.GET("/open", router.Static(func() string { return "open" }))
	s.Use(middleware.MaxBody(2))
	s.POST("/echo", router.HandlerFunc(func(req *http.Request) http.TaskResponse {
		return http.OK(string(req.Body))
	}))
	addr := startServer(t, s)

	resp, _ := roundTrip(t, addr, "POST /echo HTTP/1.1\r\n\r\nping")
	if resp.StatusCode != 413 {
		t.Errorf("Expected 413 from middleware, got %d", resp.StatusCode)
	}
	resp, body := roundTrip(t, addr, "POST /echo HTTP/1.1\r\n\r\nok")
	if resp.StatusCode != 200 || body != "ok" {
		t.Errorf("Expected 200 'ok', got %d %q", resp.StatusCode, body)
	}
	if resp, _ := roundTrip(t, addr, "GET /open HTTP/1.1\r\n\r\n"); resp.StatusCode != 200 {
		t.Errorf("Expected route registered before Use to be unwrapped, got %d", resp.StatusCode)
	}
}

func TestServerRoutesFrozen(t *testing.T) {
	s := quietServer(1)
	registerRoutes(s)
	addr := startServer(t, s)
	roundTrip(t, addr, "GET / HTTP/1.1\r\n\r\n")

	err := s.Handle(http.GET, "/late", router.Static(func() string { return "" }))
	if !errors.Is(err, router.ErrRouterFrozen) {
		t.Errorf("Expected ErrRouterFrozen, got %v", err)
	}
}

func TestServerDuplicateRoutePanics(t *testing.T) {
	s := quietServer(1)
	s.GET("/", router.Static(func() string { return "a" }))

	defer func() {
		if recover() == nil {
			t.Error("Expected duplicate GET to panic")
		}
	}()
	s.GET("/", router.Static(func() string { return "b" }))
}

func TestRunBindFailure(t *testing.T) {
	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer ln.Close()

	s := quietServer(1)
	err = s.Run(ln.Addr().String())
	if err == nil || errors.Is(err, ErrServerClosed) {
		t.Errorf("Expected bind error, got %v", err)
	}
}

func TestServeUnsupportedListener(t *testing.T) {
	if !nettest.TestableNetwork("unix") {
		t.Skip("unix sockets not available")
	}
	ln, err := nettest.NewLocalListener("unix")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	s := quietServer(1)
	if err := s.Serve(ln); !errors.Is(err, ErrUnsupportedListener) {
		t.Errorf("Expected ErrUnsupportedListener, got %v", err)
	}
}

func TestCloseBeforeServe(t *testing.T) {
	s := quietServer(1)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	s.Close()

	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	if err := s.Serve(ln); !errors.Is(err, ErrServerClosed) {
		t.Errorf("Expected ErrServerClosed, got %v", err)
	}
}

func TestRespond(t *testing.T) {
	s := quietServer(1)
	registerRoutes(s)

	tests := []struct {
		raw    string
		status http.StatusCode
	}{
		{"GET / HTTP/1.1\r\n\r\n", http.StatusOK},
		{"GET /nope HTTP/1.1\r\n\r\n", http.StatusNotFound},
		{"get / HTTP/1.1\r\n\r\n", http.StatusBadRequest},
		{"GET\r\n\r\n", http.StatusBadRequest},
		{"GET /panic HTTP/1.1\r\n\r\n", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got, _ := s.respond([]byte(tt.raw)); got.Status != tt.status {
			t.Errorf("respond(%q): expected %d, got %d", tt.raw, tt.status, got.Status)
		}
	}
}

func TestDeliverDropsUnknownKey(t *testing.T) {
	s := quietServer(1)
	s.deliver(Delivery{Ticket: correlator.Ticket{Key: 12345, Gen: 1}, Response: http.OK("lost")})

	if st := s.Stats(); st.Dropped != 1 || st.Written != 0 {
		t.Errorf("Expected 1 dropped, got %+v", st)
	}
	if n, _ := testutil.GatherAndCount(s.Metrics().Registry(), "helium_responses_dropped_total"); n != 1 {
		t.Errorf("Expected dropped counter to be exported, got %d", n)
	}
}

func TestStatsOutput(t *testing.T) {
	s := quietServer(3)
	registerRoutes(s)

	if st := s.Stats(); st.Routes != 5 || st.Workers.NumWorkers != 3 {
		t.Errorf("Expected 5 routes and 3 workers, got %+v", st)
	}
	if js := s.StatsJSON(); !strings.Contains(js, `"routes": 5`) {
		t.Errorf("Expected routes in JSON, got %s", js)
	}
	if txt := s.StatsText(); !strings.Contains(txt, "Server Statistics") {
		t.Errorf("Expected text header, got %s", txt)
	}
}

func BenchmarkRespond(b *testing.B) {
	s := quietServer(1)
	registerRoutes(s)
	raw := []byte("GET /hello?name=bench HTTP/1.1\r\nHost: x\r\n\r\n")

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		s.respond(raw)
	}
}
