package fancy_test

import (
	"testing"

	"github.com/atlanticdynamic/usercode/internal/fancy"
	"github.com/stretchr/testify/assert"
)

func TestStyledText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fn   func(string) string
	}{
		{"ActionText", fancy.ActionText},
		{"HookText", fancy.HookText},
		{"BotText", fancy.BotText},
		{"ValidText", fancy.ValidText},
		{"ErrorText", fancy.ErrorText},
		{"PathText", fancy.PathText},
		{"CountText", fancy.CountText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, tt.fn("sample"), "sample")
		})
	}
}

func TestStatusText(t *testing.T) {
	t.Parallel()

	assert.Contains(t, fancy.StatusText("completed", true), "completed")
	assert.Contains(t, fancy.StatusText("failed", false), "failed")
	assert.NotPanics(t, func() {
		fancy.RootStyle.Render("x")
		fancy.HeaderStyle.Render("x")
		fancy.BranchStyle.Render("x")
	})
}
