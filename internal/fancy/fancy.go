// Package fancy renders the styled trees and labels of the CLI.
package fancy

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"
)

// Tree returns an empty tree with rounded, dimmed branches.
func Tree() *tree.Tree {
	return tree.New().
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(BranchStyle)
}

// BranchNode returns a subtree headed by title, followed by count when set.
func BranchNode(title, count string) *tree.Tree {
	header := HeaderStyle.Render(title)
	if count != "" {
		header = lipgloss.JoinHorizontal(lipgloss.Top, header, " ", InfoStyle.Render(count))
	}
	return Tree().Root(header)
}

// TruncateString shortens s to at most maxRunes runes, marking the cut with
// an ellipsis.
func TruncateString(s string, maxRunes int) string {
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	if maxRunes <= 1 {
		return string(r[:max(maxRunes, 0)])
	}
	return string(r[:maxRunes-1]) + "…"
}
