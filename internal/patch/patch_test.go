package patch

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const paymentSpec = `require "rails_helper"

RSpec.describe Payment do
  describe '#refund' do
    it 'refunds the charge' do
      expect(subject.refund).to be_truthy
    end
  end
end
`

const chargeBlock = `describe '#charge' do
  # specwave:method_begin method_id="charge" descriptor="#charge"
  context 'when authenticated' do
    it 'charges the card' do
      pending
    end
  end
  # specwave:method_end method_id="charge"
end
`

func TestApply_InsertBeforeTopLevelEnd(t *testing.T) {
	out, rep, err := Apply(paymentSpec, chargeBlock, Options{Mode: ModeInsert})
	require.NoError(t, err)

	want := `require "rails_helper"

RSpec.describe Payment do
  describe '#refund' do
    it 'refunds the charge' do
      expect(subject.refund).to be_truthy
    end
  end

  describe '#charge' do
    # specwave:method_begin method_id="charge" descriptor="#charge"
    context 'when authenticated' do
      it 'charges the card' do
        pending
      end
    end
    # specwave:method_end method_id="charge"
  end
end
`
	assert.Equal(t, want, out)
	require.Len(t, rep.Entries, 1)
	assert.Equal(t, Entry{MethodID: "charge", Action: ActionInserted, Line: 10}, rep.Entries[0])
	assert.True(t, rep.Changed)
}

func TestApply_UpsertIsIdempotent(t *testing.T) {
	once, rep1, err := Apply(paymentSpec, chargeBlock, Options{Mode: ModeUpsert})
	require.NoError(t, err)
	assert.Equal(t, ActionInserted, rep1.Entries[0].Action)

	twice, rep2, err := Apply(once, chargeBlock, Options{Mode: ModeUpsert})
	require.NoError(t, err)
	assert.Equal(t, once, twice)
	assert.Equal(t, ActionReplaced, rep2.Entries[0].Action)
	assert.False(t, rep2.Changed)
}

func TestApply_ReplaceKeepsOutsideUntouched(t *testing.T) {
	target, _, err := Apply(paymentSpec, chargeBlock, Options{})
	require.NoError(t, err)
	// Hand edits: a custom header comment and an edited neighbour.
	target = strings.Replace(target, "describe '#charge' do", "describe '#charge' do # billing", 1)
	target = strings.Replace(target, "refunds the charge", "refunds the whole charge", 1)

	updated := strings.Replace(chargeBlock, "charges the card", "charges the saved card", 1)
	out, rep, err := Apply(target, updated, Options{Mode: ModeReplace})
	require.NoError(t, err)
	assert.Equal(t, ActionReplaced, rep.Entries[0].Action)

	assert.Contains(t, out, "describe '#charge' do # billing")
	assert.Contains(t, out, "      it 'charges the saved card' do")

	tl, ol := strings.Split(target, "\n"), strings.Split(out, "\n")
	require.Equal(t, len(tl), len(ol))
	differ := 0
	for i := range tl {
		if tl[i] != ol[i] {
			differ++
		}
	}
	assert.Equal(t, 1, differ)
}

func TestApply_InsertConflict(t *testing.T) {
	target, _, err := Apply(paymentSpec, chargeBlock, Options{})
	require.NoError(t, err)

	t.Run("error is the default policy", func(t *testing.T) {
		out, _, err := Apply(target, chargeBlock, Options{Mode: ModeInsert})
		var ce *ConflictError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, "charge", ce.MethodID)
		assert.Equal(t, 10, ce.Line)
		assert.Equal(t, target, out)
		assert.Contains(t, err.Error(), "overwrite")
	})

	t.Run("skip leaves the target alone", func(t *testing.T) {
		out, rep, err := Apply(target, strings.Replace(chargeBlock, "charges", "bills", 1), Options{Mode: ModeInsert, Conflict: ConflictSkip})
		require.NoError(t, err)
		assert.Equal(t, target, out)
		assert.Equal(t, ActionSkipped, rep.Entries[0].Action)
		assert.False(t, rep.Changed)
	})

	t.Run("overwrite replaces", func(t *testing.T) {
		out, rep, err := Apply(target, strings.Replace(chargeBlock, "charges", "bills", 1), Options{Mode: ModeInsert, Conflict: ConflictOverwrite})
		require.NoError(t, err)
		assert.Contains(t, out, "bills the card")
		assert.Equal(t, ActionReplaced, rep.Entries[0].Action)
	})
}

func TestApply_ReplaceMissingTarget(t *testing.T) {
	out, _, err := Apply(paymentSpec, chargeBlock, Options{Mode: ModeReplace})
	var ae *ApplyError
	require.True(t, errors.As(err, &ae))
	assert.Contains(t, ae.Error(), "missing target block")
	assert.Equal(t, paymentSpec, out)
}

func TestApply_FallsBackToDescriptorHeader(t *testing.T) {
	target := `RSpec.describe Payment do
  describe '#charge' do
    it 'was written by hand' do
    end
  end
end
`
	out, rep, err := Apply(target, chargeBlock, Options{Mode: ModeUpsert})
	require.NoError(t, err)
	assert.Equal(t, ActionReplaced, rep.Entries[0].Action)
	assert.NotContains(t, out, "written by hand")
	assert.Contains(t, out, `    # specwave:method_begin method_id="charge" descriptor="#charge"`)
	assert.Equal(t, 1, strings.Count(out, "describe '#charge'"))

	again, _, err := Apply(out, chargeBlock, Options{Mode: ModeUpsert})
	require.NoError(t, err)
	assert.Equal(t, out, again)

	_, _, err = Apply(target, chargeBlock, Options{Mode: ModeInsert})
	var ce *ConflictError
	assert.True(t, errors.As(err, &ce))
}

func TestApply_AmbiguousHeaderFallback(t *testing.T) {
	target := `RSpec.describe Payment do
  describe '#charge' do
  end
  describe '#charge' do
  end
end
`
	out, _, err := Apply(target, chargeBlock, Options{})
	var be *BlockParseError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, target, out)
}

func TestApply_MultipleBlocksKeepSourceOrder(t *testing.T) {
	source := chargeBlock + "\n" + strings.ReplaceAll(chargeBlock, "charge", "capture")
	out, rep, err := Apply(paymentSpec, source, Options{})
	require.NoError(t, err)
	require.Len(t, rep.Entries, 2)
	assert.Less(t, strings.Index(out, "'#charge'"), strings.Index(out, "'#capture'"))
	assert.Less(t, rep.Entries[0].Line, rep.Entries[1].Line)

	ids, err := Blocks(out, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"charge", "capture"}, ids)
}

func TestApply_OnlyIDs(t *testing.T) {
	source := chargeBlock + "\n" + strings.ReplaceAll(chargeBlock, "charge", "capture")

	out, rep, err := Apply(paymentSpec, source, Options{Only: []string{"capture"}})
	require.NoError(t, err)
	require.Len(t, rep.Entries, 1)
	assert.NotContains(t, out, "'#charge'")
	assert.Contains(t, out, "'#capture'")

	_, _, err = Apply(paymentSpec, source, Options{Only: []string{"void"}})
	var ae *ApplyError
	assert.True(t, errors.As(err, &ae))
}

func TestApply_AtomicOnLaterFailure(t *testing.T) {
	target, _, err := Apply(paymentSpec, chargeBlock, Options{})
	require.NoError(t, err)

	// capture would insert fine, charge conflicts: nothing may be applied.
	source := strings.ReplaceAll(chargeBlock, "charge", "capture") + "\n" + chargeBlock
	out, _, err := Apply(target, source, Options{Mode: ModeInsert})
	require.Error(t, err)
	assert.Equal(t, target, out)
}

func TestApply_UngroupedBlock(t *testing.T) {
	source := `# specwave:method_begin method_id="helpers"
let(:user) { create(:user) }
# specwave:method_end method_id="helpers"
`
	out, rep, err := Apply(paymentSpec, source, Options{})
	require.NoError(t, err)
	assert.Equal(t, ActionInserted, rep.Entries[0].Action)
	assert.Contains(t, out, "  let(:user) { create(:user) }\n  # specwave:method_end")

	again, _, err := Apply(out, source, Options{})
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestApply_UpsertGroupsBareMarkers(t *testing.T) {
	target := `RSpec.describe Payment do
  # specwave:method_begin method_id="charge"
  it 'charges' do
    pending
  end
  # specwave:method_end method_id="charge"
end
`
	once, rep, err := Apply(target, chargeBlock, Options{Mode: ModeUpsert})
	require.NoError(t, err)

	want := `RSpec.describe Payment do
  describe '#charge' do
    # specwave:method_begin method_id="charge" descriptor="#charge"
    context 'when authenticated' do
      it 'charges the card' do
        pending
      end
    end
    # specwave:method_end method_id="charge"
  end
end
`
	assert.Equal(t, want, once)
	require.Len(t, rep.Entries, 1)
	assert.Equal(t, Entry{MethodID: "charge", Action: ActionReplaced, Line: 2}, rep.Entries[0])

	twice, rep, err := Apply(once, chargeBlock, Options{Mode: ModeUpsert})
	require.NoError(t, err)
	assert.Equal(t, once, twice)
	assert.False(t, rep.Changed)
}

func TestApply_InsertWithoutTopLevelGroup(t *testing.T) {
	target := "module Helpers\n  def x\n  end\nend\n"
	out, _, err := Apply(target, chargeBlock, Options{})
	require.NoError(t, err)
	assert.Contains(t, out, "  end\n\n  describe '#charge' do\n")
	assert.True(t, strings.HasSuffix(out, "  end\nend\n"))

	_, _, err = Apply("puts 1\n", chargeBlock, Options{})
	var ae *ApplyError
	assert.True(t, errors.As(err, &ae))
}

func TestApply_SourceErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "mismatched end",
			source: "# specwave:method_begin method_id=\"a\"\n# specwave:method_end method_id=\"b\"\n",
			check: func(t *testing.T, err error) {
				var be *BlockParseError
				require.True(t, errors.As(err, &be))
				assert.Equal(t, 2, be.Line)
			},
		},
		{
			name:   "nested begin",
			source: "# specwave:method_begin method_id=\"a\"\n# specwave:method_begin method_id=\"b\"\n",
			check: func(t *testing.T, err error) {
				var be *BlockParseError
				assert.True(t, errors.As(err, &be))
			},
		},
		{
			name: "duplicate id",
			source: "# specwave:method_begin method_id=\"a\"\n# specwave:method_end method_id=\"a\"\n" +
				"# specwave:method_begin method_id=\"a\"\n# specwave:method_end method_id=\"a\"\n",
			check: func(t *testing.T, err error) {
				var be *BlockParseError
				require.True(t, errors.As(err, &be))
				assert.Contains(t, be.Error(), "unique method_id")
			},
		},
		{
			name:   "unterminated",
			source: "# specwave:method_begin method_id=\"a\"\nfoo\n",
			check: func(t *testing.T, err error) {
				var be *BlockParseError
				require.True(t, errors.As(err, &be))
				assert.Contains(t, be.Error(), "end of input")
			},
		},
		{
			name:   "malformed attributes",
			source: "# specwave:method_begin method_id=charge\n",
			check: func(t *testing.T, err error) {
				var me *MarkerParseError
				require.True(t, errors.As(err, &me))
				assert.Equal(t, 1, me.Line)
			},
		},
		{
			name:   "unknown marker kind",
			source: "# specwave:method_middle method_id=\"a\"\n",
			check: func(t *testing.T, err error) {
				var me *MarkerParseError
				assert.True(t, errors.As(err, &me))
			},
		},
		{
			name:   "missing enclosing group",
			source: "# specwave:method_begin method_id=\"a\" descriptor=\"#a\"\n# specwave:method_end method_id=\"a\"\n",
			check: func(t *testing.T, err error) {
				var be *BlockParseError
				require.True(t, errors.As(err, &be))
				assert.Contains(t, be.Error(), `enclosing group named "#a"`)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := Apply(paymentSpec, tt.source, Options{})
			require.Error(t, err)
			assert.Equal(t, paymentSpec, out)
			tt.check(t, err)
		})
	}
}

func TestApply_CustomPrefix(t *testing.T) {
	source := strings.ReplaceAll(chargeBlock, "specwave:", "acme:")
	out, rep, err := Apply(paymentSpec, source, Options{Prefix: "acme"})
	require.NoError(t, err)
	assert.Equal(t, ActionInserted, rep.Entries[0].Action)

	// Under the default prefix the source has no blocks at all.
	_, rep, err = Apply(out, source, Options{})
	require.NoError(t, err)
	assert.Empty(t, rep.Entries)
}

func TestMarkers(t *testing.T) {
	assert.Equal(t, `# specwave:method_begin method_id="charge" descriptor="#charge"`, BeginMarker(RSpec, DefaultPrefix, "charge", "#charge"))
	assert.Equal(t, `# specwave:method_begin method_id="x"`, BeginMarker(RSpec, DefaultPrefix, "x", ""))
	assert.Equal(t, `# specwave:method_end method_id="charge"`, EndMarker(RSpec, DefaultPrefix, "charge"))
}

func TestRSpecHeader(t *testing.T) {
	tests := []struct {
		line string
		name string
		ok   bool
	}{
		{"RSpec.describe Payment do", "Payment", true},
		{"  describe '#charge' do", "#charge", true},
		{`  context "when authenticated" do`, "when authenticated", true},
		{"  describe '.call', :aggregate_failures do", ".call", true},
		{"  describe('#charge') do", "#charge", true},
		{"  it 'charges' do", "", false},
		{"  end", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			name, ok := RSpec.Header(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.name, name)
		})
	}
}

func TestParseModeAndPolicy(t *testing.T) {
	m, err := ParseMode("UPSERT")
	require.NoError(t, err)
	assert.Equal(t, ModeUpsert, m)
	_, err = ParseMode("merge")
	assert.Error(t, err)

	p, err := ParseConflictPolicy("skip")
	require.NoError(t, err)
	assert.Equal(t, ConflictSkip, p)
	_, err = ParseConflictPolicy("ask")
	assert.Error(t, err)

	p, err = ParseConflictPolicy("error")
	require.NoError(t, err)
	assert.Equal(t, ConflictAbort, p)
	assert.Equal(t, ConflictAbort, Options{}.withDefaults().Conflict)
}
