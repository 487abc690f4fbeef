package persistence

import (
	"fmt"
	"log/slog"

	"github.com/SkyeWong/social-segregation-simulator/internal/engine"
	"github.com/SkyeWong/social-segregation-simulator/internal/grid"
)

// Recorder is a snapshot sink bound to one run. Store failures are logged
// and the first one is kept for Err; they never interrupt the simulation.
type Recorder struct {
	db    *DB
	runID string
	all   bool
	saved int
	err   error
}

// RunID returns the ID of the run being recorded.
func (r *Recorder) RunID() string {
	return r.runID
}

// Saved returns the number of distinct iterations stored so far.
func (r *Recorder) Saved() int {
	return r.saved
}

// Snapshot stores iteration 0 always and later iterations when recording all.
func (r *Recorder) Snapshot(iteration int, v grid.View, happyPct float64) {
	if !r.all && iteration != 0 {
		return
	}
	r.save(iteration, v, happyPct)
}

// Finish stores the final grid under iteration res.Rounds and the outcome.
func (r *Recorder) Finish(res engine.Result) error {
	r.save(res.Rounds, res.Grid, res.Final.Percentage())
	if err := r.db.FinishRun(r.runID, res); err != nil {
		r.fail(err)
	}
	if r.err != nil {
		return fmt.Errorf("record run %s: %w", r.runID, r.err)
	}
	slog.Info("run recorded", "run_id", r.runID, "snapshots", r.saved)
	return nil
}

// Err returns the first store error, if any.
func (r *Recorder) Err() error {
	return r.err
}

func (r *Recorder) save(iteration int, v grid.View, happyPct float64) {
	added, err := r.db.SaveSnapshot(r.runID, iteration, v, happyPct)
	if err != nil {
		r.fail(err)
		return
	}
	if added {
		r.saved++
	}
}

func (r *Recorder) fail(err error) {
	slog.Error("run store failed", "run_id", r.runID, "error", err)
	if r.err == nil {
		r.err = err
	}
}
