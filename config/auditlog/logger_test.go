package auditlog_test

import (
	"testing"

	"github.com/kastheco/specwave/config/auditlog"
	"github.com/stretchr/testify/assert"
)

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "wave_started", auditlog.EventWaveStarted.String())
	assert.Equal(t, "cycle_broken", auditlog.EventCycleBroken.String())
}

func TestNopLogger_DoesNotPanic(t *testing.T) {
	l := auditlog.NopLogger()
	assert.NotPanics(t, func() {
		l.Emit(auditlog.Event{Kind: auditlog.EventRunStarted})
	})
}

func TestNew_AppliesOptions(t *testing.T) {
	e := auditlog.New(auditlog.EventUnitFailed, "shop", "verify failed",
		auditlog.WithRun("r1"), auditlog.WithStage("architect"), auditlog.WithUnit("app_models_user"),
		auditlog.WithWave(2), auditlog.WithLevel("error"), auditlog.WithDetail(`{"exit":1}`))

	assert.Equal(t, auditlog.EventUnitFailed, e.Kind)
	assert.Equal(t, "shop", e.Project)
	assert.Equal(t, "r1", e.RunID)
	assert.Equal(t, "architect", e.Stage)
	assert.Equal(t, "app_models_user", e.Unit)
	assert.Equal(t, 2, e.WaveNumber)
	assert.Equal(t, "error", e.Level)
	assert.Equal(t, `{"exit":1}`, e.Detail)
}
