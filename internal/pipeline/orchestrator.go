package pipeline

import (
	"sort"
	"sync"
)

// WaveState represents the current state of wave orchestration for a run.
type WaveState int

const (
	WaveStateIdle         WaveState = iota // Not started
	WaveStateRunning                       // Current wave's units are running
	WaveStateWaveComplete                  // Current wave finished, next wave may start
	WaveStateBlocked                       // Current wave finished with failures
	WaveStateAllComplete                   // All waves finished
)

func (s WaveState) String() string {
	switch s {
	case WaveStateIdle:
		return "idle"
	case WaveStateRunning:
		return "running"
	case WaveStateWaveComplete:
		return "wave complete"
	case WaveStateBlocked:
		return "blocked"
	case WaveStateAllComplete:
		return "all complete"
	}
	return "unknown"
}

// unitStatus tracks the completion state of a single unit.
type unitStatus int

const (
	unitPending unitStatus = iota
	unitRunning
	unitComplete
	unitFailed
)

// WaveOrchestrator tracks which units of which wave are running. It never
// advances past a wave with failed units; RetryFailedUnits puts them back to
// running. It is safe for concurrent use.
type WaveOrchestrator struct {
	mu          sync.Mutex
	waves       [][]string
	state       WaveState
	currentWave int // 0-indexed into waves
	units       map[string]unitStatus
}

// NewWaveOrchestrator creates an orchestrator for the given waves.
func NewWaveOrchestrator(waves [][]string) *WaveOrchestrator {
	return &WaveOrchestrator{
		waves: waves,
		state: WaveStateIdle,
		units: make(map[string]unitStatus),
	}
}

// State returns the current orchestration state.
func (o *WaveOrchestrator) State() WaveState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// TotalWaves returns the number of waves.
func (o *WaveOrchestrator) TotalWaves() int {
	return len(o.waves)
}

// TotalUnits returns the total number of units across all waves.
func (o *WaveOrchestrator) TotalUnits() int {
	total := 0
	for _, w := range o.waves {
		total += len(w)
	}
	return total
}

// CurrentWave returns the 0-indexed wave currently active, or -1 once every
// wave is done.
func (o *WaveOrchestrator) CurrentWave() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.currentWave >= len(o.waves) {
		return -1
	}
	return o.currentWave
}

// StartNextWave advances to the next wave and returns its units. It returns
// nil when every wave is done or when the current wave is still running or
// blocked on failures.
func (o *WaveOrchestrator) StartNextWave() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case WaveStateAllComplete, WaveStateRunning, WaveStateBlocked:
		return nil
	case WaveStateWaveComplete:
		o.currentWave++
	}
	if o.currentWave >= len(o.waves) {
		o.state = WaveStateAllComplete
		return nil
	}

	o.state = WaveStateRunning
	units := o.waves[o.currentWave]
	for _, u := range units {
		o.units[u] = unitRunning
	}
	if len(units) == 0 {
		o.checkWaveComplete()
	}
	return units
}

// MarkUnitComplete marks a unit as successfully completed.
// Idempotent: calling again on an already-resolved unit is a no-op.
func (o *WaveOrchestrator) MarkUnitComplete(unit string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.units[unit] != unitRunning {
		return
	}
	o.units[unit] = unitComplete
	o.checkWaveComplete()
}

// MarkUnitFailed marks a unit as failed. Other units in the wave continue;
// the wave resolves once every unit has.
// Idempotent: calling again on an already-resolved unit is a no-op.
func (o *WaveOrchestrator) MarkUnitFailed(unit string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.units[unit] != unitRunning {
		return
	}
	o.units[unit] = unitFailed
	o.checkWaveComplete()
}

// RetryFailedUnits transitions every failed unit of the current wave back to
// running and returns them. Returns nil if there is nothing to retry.
func (o *WaveOrchestrator) RetryFailedUnits() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.currentWave >= len(o.waves) {
		return nil
	}
	var units []string
	for _, u := range o.waves[o.currentWave] {
		if o.units[u] == unitFailed {
			o.units[u] = unitRunning
			units = append(units, u)
		}
	}
	if len(units) > 0 {
		o.state = WaveStateRunning
	}
	return units
}

// FailedUnits returns the failed units of the current wave, sorted.
func (o *WaveOrchestrator) FailedUnits() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.currentWaveByStatus(unitFailed)
}

// CompletedUnitCount returns the number of completed units in the current
// wave.
func (o *WaveOrchestrator) CompletedUnitCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.currentWaveByStatus(unitComplete))
}

func (o *WaveOrchestrator) checkWaveComplete() {
	if o.currentWave >= len(o.waves) {
		return
	}
	failed := false
	for _, u := range o.waves[o.currentWave] {
		switch o.units[u] {
		case unitRunning, unitPending:
			return // still in progress
		case unitFailed:
			failed = true
		}
	}
	switch {
	case failed:
		o.state = WaveStateBlocked
	case o.currentWave+1 >= len(o.waves):
		o.state = WaveStateAllComplete
	default:
		o.state = WaveStateWaveComplete
	}
}

func (o *WaveOrchestrator) currentWaveByStatus(s unitStatus) []string {
	if o.currentWave >= len(o.waves) {
		return nil
	}
	var out []string
	for _, u := range o.waves[o.currentWave] {
		if o.units[u] == s {
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out
}
