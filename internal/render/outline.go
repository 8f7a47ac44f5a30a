package render

import (
	"fmt"
	"strings"

	"github.com/kastheco/specwave/internal/model"
	"github.com/kastheco/specwave/internal/structure"
)

// Outline renders tree as an indented outline for the terminal.
func Outline(tree *structure.Tree, st Styles) string {
	var sb strings.Builder
	sb.WriteString(st.paint(st.Header, tree.Descriptor))
	sb.WriteString("\n")

	if tree.Empty() {
		sb.WriteString(st.paint(st.Muted, "  (no characteristics)"))
		sb.WriteString("\n")
	}
	tree.Walk(func(c *structure.Context, depth int) bool {
		pad := strings.Repeat(indentUnit, depth+1)
		title := c.Title()
		if c.Terminal {
			title = st.paint(st.Terminal, title)
		} else {
			title = st.paint(st.Context, title)
		}
		sb.WriteString(pad + title + "\n")
		for _, ex := range c.Examples {
			sb.WriteString(pad + indentUnit + exampleLine(ex, st) + "\n")
		}
		return true
	})

	if len(tree.Shared) > 0 {
		sb.WriteString(st.paint(st.Muted, "  shared:") + "\n")
		for _, s := range tree.Shared {
			fmt.Fprintf(&sb, "    %s (%d sites)\n", s.Name, s.Sites)
		}
	}
	for _, w := range tree.Warnings {
		sb.WriteString(st.paint(st.Warning, "  ! "+w.String()) + "\n")
	}
	return sb.String()
}

func exampleLine(ex structure.Example, st Styles) string {
	text := "- " + ex.Description
	if ex.Include != "" {
		text = "- (shared) " + ex.Include
	}
	switch ex.Kind {
	case model.BehaviorTerminal:
		return st.paint(st.Terminal, text)
	case model.BehaviorSideEffect:
		return st.paint(st.Effect, text)
	default:
		return st.paint(st.Success, text)
	}
}
