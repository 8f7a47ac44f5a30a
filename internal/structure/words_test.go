package structure

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kastheco/specwave/internal/model"
)

func TestOrderValues(t *testing.T) {
	t.Run("boolean positive first, terminal last", func(t *testing.T) {
		c := model.Characteristic{Type: model.TypeBoolean, Values: []model.Value{
			{Value: "false", Terminal: true, BehaviorID: "x"},
			{Value: "true"},
		}}
		got := OrderValues(c)
		assert.Equal(t, model.Scalar("true"), got[0].Value)
		assert.Equal(t, model.Scalar("false"), got[1].Value)
	})

	t.Run("presence without terminal flags", func(t *testing.T) {
		c := model.Characteristic{Type: model.TypePresence, Values: []model.Value{{Value: "nil"}, {Value: "present"}}}
		got := OrderValues(c)
		assert.Equal(t, model.Scalar("present"), got[0].Value)
	})

	t.Run("enum keeps input order inside partitions", func(t *testing.T) {
		c := model.Characteristic{Type: model.TypeEnum, Values: []model.Value{
			{Value: "c", Terminal: true}, {Value: "b"}, {Value: "a", Terminal: true}, {Value: "d"},
		}}
		var got []model.Scalar
		for _, v := range OrderValues(c) {
			got = append(got, v.Value)
		}
		assert.Equal(t, []model.Scalar{"b", "d", "c", "a"}, got)
	})

	t.Run("does not mutate input", func(t *testing.T) {
		c := model.Characteristic{Type: model.TypeBoolean, Values: []model.Value{{Value: "false"}, {Value: "true"}}}
		OrderValues(c)
		assert.Equal(t, model.Scalar("false"), c.Values[0].Value)
	})
}

func TestContextWord(t *testing.T) {
	two := []model.Value{{Value: "low"}, {Value: "high"}}
	three := []model.Value{{Value: "1"}, {Value: "2"}, {Value: "3"}}

	tests := []struct {
		name     string
		c        model.Characteristic
		v        model.Value
		position int
		want     Word
	}{
		{"root is always when", model.Characteristic{Type: model.TypeEnum, Level: 1}, model.Value{}, 2, WordWhen},
		{"boolean first", model.Characteristic{Type: model.TypeBoolean, Level: 2}, model.Value{Value: "true"}, 0, WordWith},
		{"boolean alternate", model.Characteristic{Type: model.TypeBoolean, Level: 2}, model.Value{Value: "false"}, 1, WordBut},
		{"presence absent", model.Characteristic{Type: model.TypePresence, Level: 3}, model.Value{Value: "nil"}, 1, WordWithout},
		{"absence by description", model.Characteristic{Type: model.TypeBoolean, Level: 2}, model.Value{Value: "false", Description: "no coupon"}, 1, WordWithout},
		{"enum", model.Characteristic{Type: model.TypeEnum, Level: 2}, model.Value{Value: "admin"}, 0, WordAnd},
		{"sequential", model.Characteristic{Type: model.TypeSequential, Level: 2}, model.Value{Value: "paid"}, 1, WordAnd},
		{"two-value range reads as boolean", model.Characteristic{Type: model.TypeRange, Level: 2, Values: two}, two[1], 1, WordBut},
		{"wider range reads as enum", model.Characteristic{Type: model.TypeRange, Level: 2, Values: three}, three[0], 0, WordAnd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContextWord(tt.c, tt.v, tt.position))
		})
	}
}

func TestPhrase(t *testing.T) {
	flag := model.Characteristic{Name: "authenticated", Type: model.TypeBoolean, Level: 1}
	card := model.Characteristic{Name: "payment_method", Type: model.TypePresence, Level: 2}
	status := model.Characteristic{Name: "status", Type: model.TypeSequential, Level: 2}

	assert.Equal(t, "authenticated", Phrase(flag, model.Value{Value: "true"}, WordWhen))
	assert.Equal(t, "NOT authenticated", Phrase(flag, model.Value{Value: "false"}, WordWhen))
	assert.Equal(t, "NOT authenticated", Phrase(flag, model.Value{Value: "false", Description: "not authenticated"}, WordWhen))
	assert.Equal(t, "user is NOT an admin", Phrase(flag, model.Value{Value: "false", Description: "user is not an admin"}, WordBut))
	assert.Equal(t, "notification sent", Phrase(flag, model.Value{Value: "true", Description: "notification sent"}, WordWhen))

	assert.Equal(t, "payment method", Phrase(card, model.Value{Value: "present"}, WordWith))
	assert.Equal(t, "payment method", Phrase(card, model.Value{Value: "nil"}, WordWithout))
	assert.Equal(t, "saved card", Phrase(card, model.Value{Value: "nil", Description: "no saved card"}, WordWithout))

	root := card
	root.Level = 1
	assert.Equal(t, "payment method is present", Phrase(root, model.Value{Value: "present"}, WordWhen))
	assert.Equal(t, "payment method is NOT present", Phrase(root, model.Value{Value: "nil"}, WordWhen))

	assert.Equal(t, "status is paid", Phrase(status, model.Value{Value: "paid"}, WordAnd))
}
