package fancy_test

import (
	"testing"

	"github.com/atlanticdynamic/usercode/internal/fancy"
	"github.com/stretchr/testify/assert"
)

func TestTree(t *testing.T) {
	t.Parallel()

	tree := fancy.Tree()
	assert.NotNil(t, tree)

	tree.Root("Root Node")
	child := tree.Child("Child Node")
	child.Child("Grandchild")

	out := tree.String()
	assert.Contains(t, out, "Root Node")
	assert.Contains(t, out, "Child Node")
	assert.Contains(t, out, "Grandchild")
}

func TestBranchNode(t *testing.T) {
	t.Parallel()

	out := fancy.BranchNode("Bots", "(5)").String()
	assert.Contains(t, out, "Bots")
	assert.Contains(t, out, "(5)")

	assert.Contains(t, fancy.BranchNode("Logging", "").String(), "Logging")
}

func TestScopeTree(t *testing.T) {
	t.Parallel()

	st := fancy.NewScopeTree("global")
	st.AddChild(fancy.ActionText("greet"))
	st.AddChild(fancy.HookText("after_bot_mount"))

	out := st.String()
	assert.Contains(t, out, "global")
	assert.Contains(t, out, "greet")
	assert.Contains(t, out, "after_bot_mount")
	assert.Same(t, st.Tree(), st.Tree())
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		max    int
		expect string
	}{
		{"shorter", "short", 20, "short"},
		{"exact", "exactly twenty chars", 20, "exactly twenty chars"},
		{"longer", "this string is definitely too long", 10, "this stri…"},
		{"multibyte", "héllo wörld", 6, "héllo…"},
		{"one rune", "abcdef", 1, "a"},
		{"zero", "abcdef", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, fancy.TruncateString(tt.input, tt.max))
		})
	}
}
