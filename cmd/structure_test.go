package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kastheco/specwave/internal/pipeline"
	"github.com/kastheco/specwave/internal/structure"
)

func TestExecuteStructure(t *testing.T) {
	p := newTestProject(t)
	require.NoError(t, p.store.Save(paymentRecord()))
	slug := "app_services_payment_service"
	base := structureOptions{Structure: p.structureOptions(), Render: p.renderOptions()}

	t.Run("outline", func(t *testing.T) {
		out, status, err := executeStructure(p.store, slug, base)
		require.NoError(t, err)
		assert.Equal(t, pipeline.StatusSuccess, status)
		assert.Contains(t, out, "#charge\n")
		assert.Contains(t, out, "  when authenticated\n")
		assert.Contains(t, out, "    with sufficient balance\n")
		assert.Contains(t, out, "- raises AccessDenied")
	})

	t.Run("yaml", func(t *testing.T) {
		opts := base
		opts.Format = formatYAML
		out, _, _, err := executeStructure(p.store, slug, opts)
		require.NoError(t, err)
		var trees []structure.Tree
		require.NoError(t, yaml.Unmarshal([]byte(out), &trees))
		require.Len(t, trees, 1)
		assert.Equal(t, "#charge", trees[0].Descriptor)
		assert.Len(t, trees[0].Contexts, 2)
	})

	t.Run("json", func(t *testing.T) {
		opts := base
		opts.Format = formatJSON
		out, _, _, err := executeStructure(p.store, slug, opts)
		require.NoError(t, err)
		var trees []map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &trees))
		require.Len(t, trees, 1)
		assert.Equal(t, "charge", trees[0]["method"])
	})

	t.Run("rspec", func(t *testing.T) {
		opts := base
		opts.Format = formatRSpec
		out, _, _, err := executeStructure(p.store, slug, opts)
		require.NoError(t, err)
		assert.Contains(t, out, `# specwave:method_begin method_id="charge" descriptor="#charge"`)
		assert.Contains(t, out, "describe '#charge' do")
	})

	t.Run("method filter", func(t *testing.T) {
		opts := base
		opts.Method = "#charge"
		_, _, err := executeStructure(p.store, slug, opts)
		require.NoError(t, err)

		opts.Method = "refund"
		_, _, err = executeStructure(p.store, slug, opts)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `no selected method "refund"`)
	})

	t.Run("unknown format", func(t *testing.T) {
		opts := base
		opts.Format = "xml"
		_, _, err := executeStructure(p.store, slug, opts)
		require.Error(t, err)
	})

	t.Run("unknown unit", func(t *testing.T) {
		_, _, err := executeStructure(p.store, "app_models_nope", base)
		require.Error(t, err)
	})

	t.Run("gated on code analysis", func(t *testing.T) {
		r := paymentRecord()
		r.Slug = "app_services_refund_service"
		r.SourceFile = "app/services/refund_service.rb"
		r.Automation.Flags = map[string]bool{}
		require.NoError(t, p.store.Save(r))

		out, status, err := executeStructure(p.store, r.Slug, base)
		require.Error(t, err)
		assert.Equal(t, pipeline.StatusError, status)
		assert.Contains(t, err.Error(), "automation.code_analyzer_completed")
		assert.Empty(t, out)
	})

	t.Run("no selected methods is skipped", func(t *testing.T) {
		r := paymentRecord()
		r.Slug = "app_services_void_service"
		r.SourceFile = "app/services/void_service.rb"
		off := false
		for i := range r.Methods {
			r.Methods[i].Selected = &off
		}
		require.NoError(t, p.store.Save(r))

		out, status, err := executeStructure(p.store, r.Slug, base)
		require.NoError(t, err)
		assert.Equal(t, pipeline.StatusSkipped, status)
		assert.Empty(t, out)
	})
}
