package fancy

import (
	"github.com/charmbracelet/lipgloss/tree"
)

// ScopeTree groups script listings under one scope header, such as
// "global" or a bot id.
type ScopeTree struct {
	tree *tree.Tree
}

// NewScopeTree creates a tree rooted at a styled scope title.
func NewScopeTree(title string) *ScopeTree {
	return &ScopeTree{tree: Tree().Root(RootStyle.Render(title))}
}

// Tree returns the underlying tree
func (s *ScopeTree) Tree() *tree.Tree {
	return s.tree
}

// AddChild adds a child node to the root
func (s *ScopeTree) AddChild(child any) *tree.Tree {
	return s.tree.Child(child)
}

// String renders the tree.
func (s *ScopeTree) String() string {
	return s.tree.String()
}
