//go:build darwin || freebsd || netbsd || openbsd

package poller

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// KqueuePoller is a kqueue-based I/O multiplexer
type KqueuePoller struct {
	kqfd   int
	events []unix.Kevent_t
	ready  []int
}

// New creates a new Poller (BSD/macOS)
func New() (Poller, error) {
	kqfd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kqfd)

	return &KqueuePoller{
		kqfd:   kqfd,
		events: make([]unix.Kevent_t, maxEvents),
		ready:  make([]int, 0, maxEvents),
	}, nil
}

func (p *KqueuePoller) change(fd, filter, flags int) error {
	changes := make([]unix.Kevent_t, 1)
	// Level-triggered (no EV_CLEAR)
	unix.SetKevent(&changes[0], fd, filter, flags)

	_, err := unix.Kevent(p.kqfd, changes, nil, nil)
	return err
}

// Add adds a file descriptor to the watch list
func (p *KqueuePoller) Add(fd int) error {
	return p.change(fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE)
}

// AddWrite adds a file descriptor waiting for writability
func (p *KqueuePoller) AddWrite(fd int) error {
	return p.change(fd, unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_ENABLE)
}

// Remove removes a file descriptor from the watch list. Only one filter is
// registered at a time; ENOENT from the other is ignored.
func (p *KqueuePoller) Remove(fd int) error {
	rerr := p.change(fd, unix.EVFILT_READ, unix.EV_DELETE)
	werr := p.change(fd, unix.EVFILT_WRITE, unix.EV_DELETE)
	switch {
	case rerr == nil || werr == nil:
		return nil
	case !errors.Is(rerr, unix.ENOENT):
		return rerr
	default:
		return werr
	}
}

// Wait waits for I/O events
func (p *KqueuePoller) Wait(timeout time.Duration) ([]int, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}

	n, err := unix.Kevent(p.kqfd, nil, p.events, ts)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, err
	}

	p.ready = p.ready[:0]
	for i := 0; i < n; i++ {
		p.ready = append(p.ready, int(p.events[i].Ident))
	}
	return p.ready, nil
}

// Close closes the Poller
func (p *KqueuePoller) Close() error {
	return unix.Close(p.kqfd)
}
