package poller

import "time"

// Poller is the I/O multiplexing interface. Registered descriptors are
// watched in level-triggered mode, either for readability (and peer
// hang-up) or for writability.
type Poller interface {
	Add(fd int) error
	// AddWrite watches fd for room in its send buffer
	AddWrite(fd int) error
	// Remove stops watching fd, whichever way it was added
	Remove(fd int) error
	// Wait blocks for at most timeout and returns the ready descriptors.
	// The returned slice is reused by the next call.
	Wait(timeout time.Duration) ([]int, error)
	Close() error
}

// maxEvents bounds how many ready descriptors one Wait reports
const maxEvents = 1024

func timeoutMillis(d time.Duration) int {
	if d < 0 {
		return -1
	}
	ms := int(d / time.Millisecond)
	if ms == 0 && d > 0 {
		ms = 1
	}
	return ms
}
