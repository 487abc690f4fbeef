package engine

import "github.com/SkyeWong/social-segregation-simulator/internal/grid"

// SnapshotSink receives the grid once per iteration, before relocation.
// Calls are synchronous and in increasing iteration order. The view is only
// valid for the duration of the call; sinks that keep it must copy it.
type SnapshotSink interface {
	Snapshot(iteration int, v grid.View, happyPct float64)
}

// SinkFunc adapts a function to SnapshotSink.
type SinkFunc func(iteration int, v grid.View, happyPct float64)

// Snapshot calls f.
func (f SinkFunc) Snapshot(iteration int, v grid.View, happyPct float64) {
	f(iteration, v, happyPct)
}

// MultiSink fans a snapshot out to each sink in order. Nil entries are skipped.
type MultiSink []SnapshotSink

// Snapshot forwards to every sink.
func (m MultiSink) Snapshot(iteration int, v grid.View, happyPct float64) {
	for _, s := range m {
		if s != nil {
			s.Snapshot(iteration, v, happyPct)
		}
	}
}
