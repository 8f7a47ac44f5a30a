package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kastheco/specwave/config/metadata"
	"github.com/kastheco/specwave/internal/model"
)

// newTestProject opens a project in a fresh directory with an isolated home
// and an audit log inside the project.
func newTestProject(t *testing.T) *project {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SPECWAVE_METADATA_DIR", "")
	root := t.TempDir()
	writeFile(t, root, ".specwave.toml", "audit_db = \"audit.db\"\nparallelism = 2\n")

	p, err := openProject(root)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// paymentRecord is an analysed unit ready for the architect.
func paymentRecord() *metadata.Record {
	r := metadata.NewRecord("app/services/payment_service.rb", "PaymentService")
	r.Methods = []model.Method{{
		Name:       "charge",
		MethodMode: model.ModeNew,
		Characteristics: []model.Characteristic{
			{
				Name: "authenticated", Type: model.TypeBoolean, Level: 1,
				Values: []model.Value{{Value: "true"}, {Value: "false", Terminal: true, BehaviorID: "denied"}},
			},
			{
				Name: "balance", Type: model.TypeBoolean, Level: 2, DependsOn: "authenticated",
				Values: []model.Value{
					{Value: "true", Description: "sufficient balance", BehaviorID: "charged"},
					{Value: "false", Description: "insufficient balance", Terminal: true, BehaviorID: "declined"},
				},
			},
		},
	}}
	r.Behaviors = []model.Behavior{
		{ID: "denied", Description: "raises AccessDenied", Type: model.BehaviorTerminal},
		{ID: "charged", Description: "charges the card", Type: model.BehaviorSuccess},
		{ID: "declined", Description: "returns a decline", Type: model.BehaviorTerminal},
	}
	r.MarkCompleted(metadata.StageDiscovery)
	r.MarkCompleted(metadata.StageCodeAnalyzer)
	return r
}

func TestOpenProject(t *testing.T) {
	p := newTestProject(t)

	assert.Equal(t, filepath.Join(p.cfg.Root, "tmp", "specwave", "metadata"), p.store.Dir)
	assert.Equal(t, 2, p.cfg.Parallelism)
	assert.Equal(t, 2, p.runner().Parallelism)

	arch := p.architect()
	assert.Equal(t, p.cfg.Root, arch.Root)
	assert.Equal(t, "error", string(arch.Conflict))
	assert.False(t, arch.Verify.Enabled())
	assert.Equal(t, "spec/services/payment_service_spec.rb", filepath.ToSlash(arch.SpecPathFor("app/services/payment_service.rb")))
}

func TestOpenProject_InvalidConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	root := t.TempDir()
	writeFile(t, root, ".specwave.toml", "conflict_policy = \"merge\"\n")

	_, err := openProject(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflict_policy")
}

func TestWithHint(t *testing.T) {
	assert.NoError(t, withHint(nil))

	err := withHint(metadata.ErrNotFound)
	assert.ErrorIs(t, err, metadata.ErrNotFound)
	assert.Equal(t, metadata.ErrNotFound.Error(), err.Error())
}
