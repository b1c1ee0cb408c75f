package core

import (
	"time"

	"github.com/valyala/bytebufferpool"
	"golang.org/x/sys/unix"

	"github.com/searchktools/helium/core/http"
)

// reapInterval is how often the loop looks for expired connections
const reapInterval = 10 * time.Millisecond

// loop is the acceptor loop. It never blocks for longer than PollInterval
// and never waits on a single socket, so finished responses go out
// promptly whatever any one peer is doing.
func (s *Server) loop(lfd int) {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		fds, err := s.poller.Wait(s.cfg.PollInterval)
		if err != nil {
			s.log.Printf("Poller wait error: %v", err)
		}

		for _, fd := range fds {
			if fd == lfd {
				s.acceptConnections(lfd)
			} else if c, ok := s.writing[fd]; ok {
				s.flush(c)
			} else {
				s.readConnection(fd)
			}
		}

		s.drainResults()
		s.reapExpired(time.Now())

		s.metrics.SetQueueDepth(s.queue.Len())
		s.metrics.SetInFlight(s.table.Len() + len(s.writing))
	}
}

// acceptConnections accepts every pending connection
func (s *Server) acceptConnections(lfd int) {
	now := time.Now()
	for {
		nfd, sa, err := unix.Accept(lfd)
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return
			case unix.EINTR, unix.ECONNABORTED:
				continue
			}
			s.log.Printf("Accept error: %v", err)
			s.metrics.RecordIOError("accept")
			return
		}
		unix.CloseOnExec(nfd)

		if err := unix.SetNonblock(nfd, true); err != nil {
			unix.Close(nfd)
			continue
		}

		// TCP_NODELAY: responses go out without waiting on Nagle
		unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

		if err := s.poller.Add(nfd); err != nil {
			s.log.Printf("Poller add error: %v", err)
			unix.Close(nfd)
			continue
		}

		c := newConn(nfd, sa)
		c.deadline = deadline(now, s.cfg.ReadTimeout)
		s.pending[nfd] = c
		s.stats.accepted.Add(1)
	}
}

// readConnection takes the single read for fd, then hands the connection
// to the correlator table and its bytes to the worker pool
func (s *Server) readConnection(fd int) {
	c, ok := s.pending[fd]
	if !ok {
		s.poller.Remove(fd)
		return
	}

	buf := s.bufs.Get(s.cfg.ReadBufferSize)
	defer s.bufs.Put(buf)

	n, err := unix.Read(fd, buf)
	if err == unix.EAGAIN || err == unix.EINTR {
		return
	}

	delete(s.pending, fd)
	s.poller.Remove(fd)

	if err != nil || n <= 0 {
		if err != nil {
			s.log.Printf("Read error from %s: %v", c.remote, err)
			s.metrics.RecordIOError("read")
		}
		s.stats.failed.Add(1)
		c.close()
		return
	}

	data := make([]byte, n)
	copy(data, buf[:n])
	c.deadline = time.Time{}

	ticket, evicted, replaced := s.table.Register(c)
	if replaced {
		s.log.Printf("⚠️  Correlation key %d reused, dropping %s", ticket.Key, evicted.remote)
		s.metrics.RecordCollision()
		evicted.close()
	}

	if err := s.workers.Submit(WorkItem{Ticket: ticket, Data: data}); err != nil {
		if c, ok := s.table.Take(ticket); ok {
			c.close()
		}
	}
}

// drainResults starts writing every response that is ready without
// waiting for more
func (s *Server) drainResults() {
	for {
		select {
		case d := <-s.results:
			s.deliver(d)
		default:
			return
		}
	}
}

func (s *Server) deliver(d Delivery) {
	c, ok := s.table.Take(d.Ticket)
	if !ok {
		s.metrics.RecordDropped()
		s.stats.dropped.Add(1)
		return
	}

	c.out = bytebufferpool.Get()
	if d.Head {
		http.AppendHeadResponse(c.out, d.Response)
	} else {
		http.AppendResponse(c.out, d.Response)
	}
	c.deadline = deadline(time.Now(), s.cfg.WriteTimeout)
	s.flush(c)
}

// flush pushes c's response out. What the socket does not take now is
// parked until the poller reports room or the write deadline passes.
func (s *Server) flush(c *conn) {
	done, err := c.flush()
	switch {
	case err != nil:
		s.log.Printf("Write error to %s: %v", c.remote, err)
		s.metrics.RecordIOError("write")
		s.stats.failed.Add(1)
	case done:
		s.stats.written.Add(1)
	default:
		if _, parked := s.writing[c.fd]; parked {
			return
		}
		if err := s.poller.AddWrite(c.fd); err != nil {
			s.log.Printf("Poller add error: %v", err)
			s.stats.failed.Add(1)
			c.close()
			return
		}
		s.writing[c.fd] = c
		return
	}
	s.release(c)
}

// release closes a connection the loop owns
func (s *Server) release(c *conn) {
	if _, parked := s.writing[c.fd]; parked {
		delete(s.writing, c.fd)
		s.poller.Remove(c.fd)
	}
	c.close()
}

// reapExpired closes connections that sat on a read or a write past
// their deadline
func (s *Server) reapExpired(now time.Time) {
	if len(s.pending) == 0 && len(s.writing) == 0 {
		return
	}
	if now.Sub(s.lastReap) < reapInterval {
		return
	}
	s.lastReap = now

	for fd, c := range s.pending {
		if c.expired(now) {
			delete(s.pending, fd)
			s.poller.Remove(fd)
			s.metrics.RecordIOError("read_timeout")
			s.stats.timedOut.Add(1)
			c.close()
		}
	}
	for _, c := range s.writing {
		if c.expired(now) {
			s.log.Printf("Write error to %s: %v after %d/%d bytes", c.remote, ErrWriteTimeout, c.sent, len(c.out.B))
			s.metrics.RecordIOError("write_timeout")
			s.stats.timedOut.Add(1)
			s.release(c)
		}
	}
}
