package discover

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kastheco/specwave/config/auditlog"
	"github.com/kastheco/specwave/config/metadata"
	"github.com/kastheco/specwave/internal/model"
	"github.com/kastheco/specwave/internal/wave"
)

func setupProject(t *testing.T) (string, Options) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "app/models/money.rb", "class Money\n  def cents\n    @cents\n  end\nend\n")
	writeFile(t, root, "app/models/user.rb", "class User\n  def balance\n    Money.new(0)\n  end\nend\n")
	writeFile(t, root, "app/controllers/payments_controller.rb",
		"class PaymentsController\n  def create\n    PaymentService.new(User.find(1)).charge\n  end\nend\n")
	writeFile(t, root, "app/services/payment_service.rb",
		"class PaymentService\n  def charge\n    user.balance - Money.new(100)\n  end\nend\n")
	writeFile(t, root, "config/boot.rb", "require 'bundler/setup'\n")

	ep, err := wave.CompileEntryPoints([]string{"Controller$"})
	require.NoError(t, err)
	opts := Options{
		Root:       root,
		Store:      metadata.NewStore(filepath.Join(root, "tmp", "metadata")),
		SourceDirs: []string{"app", "config"},
		SpecPathFor: func(source string) string {
			return "spec/" + strings.TrimSuffix(strings.TrimPrefix(source, "app/"), ".rb") + "_spec.rb"
		},
		EntryPoints: ep,
		Parallelism: 2,
		Project:     "shop",
	}
	return root, opts
}

func TestDiscover_SchedulesAndWritesRecords(t *testing.T) {
	root, opts := setupProject(t)
	audit, err := auditlog.NewSQLiteLogger(":memory:")
	require.NoError(t, err)
	defer audit.Close()
	opts.Audit = audit

	_, err = FromPaths(root, []string{"app", "config", "README.md"})
	require.Error(t, err, "README.md does not exist")

	changes, err := FromPaths(root, []string{"app", "config"})
	require.NoError(t, err)
	changes = append(changes, Change{Path: "lib/old.rb", Status: ChangeDeleted})

	res, err := Discover(context.Background(), changes, opts)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"Money"}, {"PaymentService", "User"}, {"PaymentsController"}}, res.Schedule.Waves)
	assert.Empty(t, res.Schedule.BrokenCycles)
	assert.Equal(t, []Skip{
		{Path: "config/boot.rb", Reason: ErrNoUnit.Error()},
		{Path: "lib/old.rb", Reason: "deleted"},
	}, res.Skipped)

	rec, err := opts.Store.Load("app_services_payment_service")
	require.NoError(t, err)
	assert.Equal(t, "PaymentService", rec.ClassName)
	assert.Equal(t, 1, rec.Wave)
	assert.Equal(t, []string{"Money"}, rec.Dependencies)
	assert.Equal(t, "spec/services/payment_service_spec.rb", rec.SpecPath)
	assert.Len(t, rec.SourceSHA256, 64)
	assert.True(t, rec.Completed(metadata.StageDiscovery))
	require.Len(t, rec.Methods, 1)
	assert.Equal(t, "charge", rec.Methods[0].Name)
	assert.Equal(t, model.ModeModified, rec.Methods[0].MethodMode)

	ctrl, err := opts.Store.Load("app_controllers_payments_controller")
	require.NoError(t, err)
	assert.True(t, ctrl.EntryPoint)
	assert.Equal(t, []string{"PaymentService", "User"}, ctrl.Dependencies)
	assert.Empty(t, metadata.Validate(ctrl))

	events, err := audit.Query(auditlog.QueryFilter{Kinds: []auditlog.EventKind{auditlog.EventRecordWritten}})
	require.NoError(t, err)
	assert.Len(t, events, 4)
}

func TestDiscover_ReusesUnchangedSources(t *testing.T) {
	root, opts := setupProject(t)
	changes, err := FromPaths(root, []string{"app/models"})
	require.NoError(t, err)

	_, err = Discover(context.Background(), changes, opts)
	require.NoError(t, err)

	// Simulate the analyzer.
	_, err = opts.Store.Update("app_models_user", func(r *metadata.Record) error {
		r.Methods[0].Characteristics = []model.Characteristic{{
			Name: "zero", Type: model.TypeBoolean, Level: 1,
			Values: []model.Value{{Value: "true"}, {Value: "false"}},
		}}
		r.MarkCompleted(metadata.StageCodeAnalyzer)
		return nil
	})
	require.NoError(t, err)

	res, err := Discover(context.Background(), changes, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"app_models_money", "app_models_user"}, res.Reused)

	user, err := opts.Store.Load("app_models_user")
	require.NoError(t, err)
	require.Len(t, user.Methods[0].Characteristics, 1)
	assert.True(t, user.Completed(metadata.StageCodeAnalyzer))
	assert.Empty(t, user.Automation.Warnings)

	// A content change re-extracts methods but keeps the analysis of
	// methods that still exist, and flags it as stale.
	writeFile(t, root, "app/models/user.rb", "class User\n  def balance\n    Money.new(1)\n  end\n\n  def name; end\nend\n")
	res, err = Discover(context.Background(), changes, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"app_models_money"}, res.Reused)

	user, err = opts.Store.Load("app_models_user")
	require.NoError(t, err)
	require.Len(t, user.Methods, 2)
	assert.Len(t, user.Methods[0].Characteristics, 1)
	assert.Equal(t, "name", user.Methods[1].Name)
	assert.Equal(t, 6, user.Methods[1].LineStart)
	require.Len(t, user.Automation.Warnings, 1)
	assert.Contains(t, user.Automation.Warnings[0], "#balance, #name")
}

func TestDiscover_CycleIsBrokenWithWarning(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app/models/order.rb", "class Order\n  def invoice\n    Invoice.build(self)\n  end\nend\n")
	writeFile(t, root, "app/models/invoice.rb", "class Invoice\n  def order\n    Order.find(1)\n  end\nend\n")
	opts := Options{Root: root, Store: metadata.NewStore(filepath.Join(root, "meta"))}

	changes, err := FromPaths(root, []string{"app"})
	require.NoError(t, err)
	res, err := Discover(context.Background(), changes, opts)
	require.NoError(t, err)

	require.Len(t, res.Schedule.BrokenCycles, 1)
	assert.Equal(t, "Invoice", res.Schedule.BrokenCycles[0].Node)
	assert.Equal(t, [][]string{{"Invoice"}, {"Order"}}, res.Schedule.Waves)

	inv, err := opts.Store.Load("app_models_invoice")
	require.NoError(t, err)
	require.Len(t, inv.Automation.Warnings, 1)
	assert.Contains(t, inv.Automation.Warnings[0], "Invoice -> Order")
}

func TestDiscover_NamespacedReferences(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app/models/billing/charge.rb",
		"module Billing\n  class Charge\n    def capture\n      Ledger.record(self)\n    end\n  end\nend\n")
	writeFile(t, root, "app/models/billing/ledger.rb",
		"module Billing\n  class Ledger\n    def self.record(entry); end\n  end\nend\n")
	writeFile(t, root, "app/models/ledger.rb", "class Ledger\nend\n")
	opts := Options{Root: root, Store: metadata.NewStore(filepath.Join(root, "meta"))}

	changes, err := FromPaths(root, []string{"app"})
	require.NoError(t, err)
	res, err := Discover(context.Background(), changes, opts)
	require.NoError(t, err)

	charge, err := opts.Store.Load("app_models_billing_charge")
	require.NoError(t, err)
	assert.Equal(t, []string{"Billing::Ledger"}, charge.Dependencies)
	assert.Equal(t, 2, res.Schedule.Len())
	assert.Equal(t, []Skip{{Path: "app/models/ledger.rb", Reason: ErrNoMethods.Error()}}, res.Skipped)
	assert.False(t, opts.Store.Exists("app_models_ledger"))
}

func TestSkipReason(t *testing.T) {
	dirs := []string{"app", "lib/"}
	assert.Equal(t, "", skipReason(Change{Path: "app/models/user.rb"}, dirs))
	assert.Equal(t, "", skipReason(Change{Path: "lib/money.rb"}, dirs))
	assert.Equal(t, "spec file", skipReason(Change{Path: "app/models/user_spec.rb"}, dirs))
	assert.Equal(t, "not a Ruby source", skipReason(Change{Path: "app/views/index.erb"}, dirs))
	assert.Equal(t, "outside source_dirs", skipReason(Change{Path: "application.rb"}, dirs))
	assert.Equal(t, "deleted", skipReason(Change{Path: "app/a.rb", Status: ChangeDeleted}, dirs))
	assert.Equal(t, "", skipReason(Change{Path: "anywhere.rb"}, nil))
}
