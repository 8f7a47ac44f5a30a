package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/kastheco/specwave/config/auditlog"
	"github.com/kastheco/specwave/config/metadata"
	"github.com/kastheco/specwave/internal/sentry"
	"github.com/kastheco/specwave/internal/wave"
	"github.com/kastheco/specwave/log"
	"golang.org/x/sync/errgroup"
)

// Work processes one unit. It runs under the unit's record lock and edits
// the record in place; the runner writes it back and sets the stage flag
// when Work returns nil.
type Work func(ctx context.Context, r *metadata.Record) error

// UnitFailure is one failed unit of a wave.
type UnitFailure struct {
	Unit string
	Err  error
}

// WaveError reports the failed units of a wave. The run stops at the
// barrier after the wave.
type WaveError struct {
	Wave     int
	Failures []UnitFailure
}

func (e *WaveError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "wave %d: %d unit(s) failed", e.Wave, len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&sb, "\n  %s: %v", f.Unit, f.Err)
	}
	return sb.String()
}

func (e *WaveError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Report summarises a stage run.
type Report struct {
	RunID        string
	Stage        metadata.Stage
	Status       Status
	Waves        [][]string
	Completed    []string
	Ineligible   []string
	BrokenCycles []wave.BrokenCycle
}

// Runner executes a stage over every eligible record, wave by wave.
type Runner struct {
	Store       *metadata.Store
	Audit       auditlog.Logger
	Project     string
	Parallelism int
}

func (r *Runner) audit() auditlog.Logger {
	if r.Audit == nil {
		return auditlog.NopLogger()
	}
	return r.Audit
}

func (r *Runner) parallelism() int {
	if r.Parallelism < 1 {
		return 1
	}
	return r.Parallelism
}

func (r *Runner) emit(kind auditlog.EventKind, msg string, opts ...auditlog.EventOption) {
	r.audit().Emit(auditlog.New(kind, r.Project, msg, opts...))
}

// Run executes work for stage. Members of a wave run in parallel, bounded by
// Parallelism; every member of a wave runs to completion even when another
// fails, and any failure stops the run before the next wave with a
// *WaveError. Cancelling ctx stops new units from starting.
//
// The returned status is skipped when no record is eligible and error
// whenever the returned error is non-nil.
func (r *Runner) Run(ctx context.Context, stage metadata.Stage, work Work) (*Report, error) {
	rep := &Report{RunID: uuid.NewString(), Stage: stage}
	ctx = WithRunID(ctx, rep.RunID)
	runOpts := []auditlog.EventOption{auditlog.WithRun(rep.RunID), auditlog.WithStage(string(stage))}
	r.emit(auditlog.EventRunStarted, fmt.Sprintf("%s run started", stage), runOpts...)

	fail := func(err error) (*Report, error) {
		rep.Status = StatusError
		r.emit(auditlog.EventStageFailed, err.Error(), append(runOpts, auditlog.WithLevel("error"))...)
		log.ErrorLog.Printf("%s: %v", stage, err)
		return rep, err
	}

	records, failed, err := r.Store.LoadAll()
	if err != nil {
		return fail(err)
	}
	if len(failed) > 0 {
		return fail(joinSorted(failed))
	}

	sel, err := Select(records, stage)
	if err != nil {
		return fail(err)
	}
	rep.Ineligible = sel.Ineligible
	if len(sel.Eligible) == 0 {
		rep.Status = StatusSkipped
		r.emit(auditlog.EventStageSkipped, "no eligible units", runOpts...)
		log.InfoLog.Printf("%s: skipped, no eligible units", stage)
		return rep, nil
	}

	nodes, edges, index := metadata.Graph(sel.Eligible)
	schedule := wave.Compute(nodes, edges)
	rep.BrokenCycles = schedule.BrokenCycles
	for _, w := range schedule.Waves {
		units := make([]string, len(w))
		for j, id := range w {
			units[j] = index[id].Slug
		}
		rep.Waves = append(rep.Waves, units)
	}
	r.recordBrokenCycles(schedule, index, runOpts)

	orch := NewWaveOrchestrator(schedule.Waves)
	for {
		ids := orch.StartNextWave()
		if ids == nil {
			break
		}
		waveNum := orch.CurrentWave()
		waveOpts := append(append([]auditlog.EventOption{}, runOpts...), auditlog.WithWave(waveNum))
		r.emit(auditlog.EventWaveStarted, fmt.Sprintf("wave %d: %d unit(s)", waveNum, len(ids)), waveOpts...)

		failures := r.runWave(ctx, stage, waveNum, ids, index, orch, work)
		if len(failures) > 0 {
			werr := &WaveError{Wave: waveNum, Failures: failures}
			r.emit(auditlog.EventWaveFailed, werr.Error(), append(waveOpts, auditlog.WithLevel("error"))...)
			rep.Status = StatusError
			log.ErrorLog.Printf("%s: %v", stage, werr)
			return rep, werr
		}
		for _, id := range ids {
			rep.Completed = append(rep.Completed, index[id].Slug)
		}
		r.emit(auditlog.EventWaveCompleted, fmt.Sprintf("wave %d complete", waveNum), waveOpts...)
	}

	rep.Status = StatusSuccess
	r.emit(auditlog.EventRunCompleted, fmt.Sprintf("%s run complete: %d unit(s)", stage, len(rep.Completed)), runOpts...)
	return rep, nil
}

func (r *Runner) runWave(ctx context.Context, stage metadata.Stage, waveNum int, ids []string, index map[string]*metadata.Record, orch *WaveOrchestrator, work Work) []UnitFailure {
	var (
		mu       sync.Mutex
		failures []UnitFailure
	)
	addFailure := func(id string, err error) {
		orch.MarkUnitFailed(id)
		mu.Lock()
		failures = append(failures, UnitFailure{Unit: index[id].Slug, Err: err})
		mu.Unlock()
	}

	// No derived context: one failing unit must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(r.parallelism())
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			addFailure(id, fmt.Errorf("not started: %w", err))
			continue
		}
		rec := index[id]
		g.Go(func() error {
			if err := r.runUnit(ctx, stage, waveNum, rec.Slug, work); err != nil {
				addFailure(id, err)
				return nil
			}
			orch.MarkUnitComplete(id)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(failures, func(i, j int) bool { return failures[i].Unit < failures[j].Unit })
	return failures
}

func (r *Runner) runUnit(ctx context.Context, stage metadata.Stage, waveNum int, slug string, work Work) error {
	opts := []auditlog.EventOption{
		auditlog.WithRun(RunID(ctx)),
		auditlog.WithStage(string(stage)),
		auditlog.WithUnit(slug),
		auditlog.WithWave(waveNum),
	}

	_, err := r.Store.Update(slug, func(rec *metadata.Record) error {
		if err := work(ctx, rec); err != nil {
			return err
		}
		rec.MarkCompleted(stage)
		return nil
	})
	if err != nil {
		if _, uerr := r.Store.Update(slug, func(rec *metadata.Record) error {
			rec.AddError(fmt.Sprintf("%s: %v", stage, err))
			return nil
		}); uerr != nil {
			log.WarningLog.Printf("could not record failure on %s: %v", slug, uerr)
		}
		r.emit(auditlog.EventUnitFailed, err.Error(), append(opts, auditlog.WithLevel("error"))...)
		sentry.CaptureError(err, slug, string(stage))
		return err
	}

	r.emit(auditlog.EventUnitCompleted, fmt.Sprintf("%s complete", slug), opts...)
	log.InfoLog.Printf("%s: %s complete (wave %d)", stage, slug, waveNum)
	return nil
}

func (r *Runner) recordBrokenCycles(s wave.Schedule, index map[string]*metadata.Record, runOpts []auditlog.EventOption) {
	for _, bc := range s.BrokenCycles {
		rec := index[bc.Node]
		msg := bc.String()
		log.WarningLog.Printf("%s", msg)
		r.emit(auditlog.EventCycleBroken, msg, append(runOpts, auditlog.WithUnit(rec.Slug), auditlog.WithLevel("warn"))...)
		if _, err := r.Store.Update(rec.Slug, func(cur *metadata.Record) error {
			cur.AddWarning(msg)
			return nil
		}); err != nil {
			log.WarningLog.Printf("could not record cycle warning on %s: %v", rec.Slug, err)
		}
	}
}

func joinSorted(failed map[string]error) error {
	keys := make([]string, 0, len(failed))
	for k := range failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	errs := make([]error, len(keys))
	for i, k := range keys {
		errs[i] = failed[k]
	}
	return errors.Join(errs...)
}
