package core

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/searchktools/helium/core/pools"
)

// Stats is a point-in-time snapshot of server activity
type Stats struct {
	Accepted uint64                `json:"accepted"`
	Written  uint64                `json:"written"`
	Dropped  uint64                `json:"dropped"`
	Failed   uint64                `json:"failed"`
	TimedOut uint64                `json:"timed_out"`
	InFlight int                   `json:"in_flight"`
	Routes   int                   `json:"routes"`
	Workers  pools.WorkerPoolStats `json:"workers"`
	Buffers  pools.BytePoolStats   `json:"buffers"`
}

// Stats returns current server statistics
func (s *Server) Stats() Stats {
	return Stats{
		Accepted: s.stats.accepted.Load(),
		Written:  s.stats.written.Load(),
		Dropped:  s.stats.dropped.Load(),
		Failed:   s.stats.failed.Load(),
		TimedOut: s.stats.timedOut.Load(),
		InFlight: s.table.Len(),
		Routes:   s.router.Len(),
		Workers:  s.workers.Stats(),
		Buffers:  s.bufs.Stats(),
	}
}

// StatsJSON returns server statistics as an indented JSON string
func (s *Server) StatsJSON() string {
	data, _ := json.MarshalIndent(s.Stats(), "", "  ")
	return string(data)
}

// StatsText returns server statistics as human-readable text
func (s *Server) StatsText() string {
	st := s.Stats()
	return fmt.Sprintf(`Server Statistics
=================

Connections:
  Accepted:  %d
  Written:   %d
  Dropped:   %d
  Failed:    %d
  Timed out: %d
  In flight: %d

Workers:
  Alive:     %d/%d
  Processed: %d
  Panics:    %d
  Queued:    %d

Read Buffers:
  Gets:      %d
  Misses:    %d
`,
		st.Accepted, st.Written, st.Dropped, st.Failed, st.TimedOut, st.InFlight,
		st.Workers.Alive, st.Workers.NumWorkers, st.Workers.Processed, st.Workers.Panics, st.Workers.Queued,
		st.Buffers.Gets, st.Buffers.Misses,
	)
}
