package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kastheco/specwave/config/auditlog"
)

func TestExecuteAudit(t *testing.T) {
	logger, err := auditlog.NewSQLiteLogger(":memory:")
	require.NoError(t, err)
	defer logger.Close()

	out, err := executeAudit(logger, auditlog.QueryFilter{})
	require.NoError(t, err)
	assert.Equal(t, "no events\n", out)

	logger.Emit(auditlog.New(auditlog.EventRunStarted, "shop", "architect run started", auditlog.WithRun("r1")))
	logger.Emit(auditlog.New(auditlog.EventUnitFailed, "shop", "boom\ndetails", auditlog.WithRun("r1"),
		auditlog.WithUnit("app_models_user"), auditlog.WithLevel("error")))
	logger.Emit(auditlog.New(auditlog.EventRunStarted, "other", "discovery run started", auditlog.WithRun("r2")))

	out, err = executeAudit(logger, auditlog.QueryFilter{Project: "shop"})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, out, "architect run started")
	assert.Contains(t, out, "error unit_failed")
	assert.Contains(t, out, "app_models_user  boom …")
	assert.NotContains(t, out, "details")
	assert.NotContains(t, out, "discovery run started")

	out, err = executeAudit(logger, auditlog.QueryFilter{Kinds: []auditlog.EventKind{auditlog.EventUnitFailed}})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "one", firstLine("one"))
	assert.Equal(t, "one …", firstLine("one\ntwo"))
	assert.Equal(t, "info", levelOrInfo(""))
	assert.Equal(t, "warn", levelOrInfo("warn"))
}
