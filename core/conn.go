package core

import (
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/valyala/bytebufferpool"
	"golang.org/x/sys/unix"
)

// conn is an accepted socket. It is owned by the acceptor loop until its
// request is read, then by the correlator table until its response is
// dequeued, then by the loop again until the response is flushed.
type conn struct {
	fd     int
	remote string

	// deadline bounds the current phase: the request read while pending,
	// the whole response write while flushing. Zero means none.
	deadline time.Time

	out  *bytebufferpool.ByteBuffer
	sent int
}

func newConn(fd int, sa unix.Sockaddr) *conn {
	return &conn{fd: fd, remote: sockaddrString(sa)}
}

// expired reports whether the current phase ran past its deadline
func (c *conn) expired(now time.Time) bool {
	return !c.deadline.IsZero() && now.After(c.deadline)
}

// flush writes as much of out as the non-blocking socket accepts.
// done is false when the send buffer filled up first.
func (c *conn) flush() (done bool, err error) {
	for c.sent < len(c.out.B) {
		n, err := unix.Write(c.fd, c.out.B[c.sent:])
		if err != nil {
			switch err {
			case unix.EINTR:
				continue
			case unix.EAGAIN:
				return false, nil
			}
			return false, err
		}
		if n == 0 {
			return false, nil
		}
		c.sent += n
	}
	return true, nil
}

func (c *conn) close() error {
	if c.out != nil {
		bytebufferpool.Put(c.out)
		c.out = nil
	}
	return unix.Close(c.fd)
}

func deadline(now time.Time, timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return now.Add(timeout)
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(netip.AddrFrom4(a.Addr).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(netip.AddrFrom16(a.Addr).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrUnix:
		return a.Name
	default:
		return "unknown"
	}
}
