package tree

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/brettbedarf/h5browse"
)

// PrintOptions controls [Print]
type PrintOptions struct {
	// Match is a doublestar glob over full paths without the leading "/",
	// e.g. "**/temp*". Ancestors of matching nodes are kept for context.
	Match string
	// Tooltips appends each group's tooltip as a fourth column
	Tooltips bool
}

// Marker returns the disclosure marker of a node: "+" for an unexpanded
// expandable group, "-" for an expanded group with children and " " otherwise
func Marker(n h5browse.NodeInfo) string {
	if n.Kind() != h5browse.KindGroup {
		return " "
	}
	if n.Populated() {
		if len(n.Children()) > 0 {
			return "-"
		}
		return " "
	}
	if n.Expandable() {
		return "+"
	}
	return " "
}

// Print writes the already materialized part of the tree under root as an
// indented listing with name, size and type columns. It never expands nodes.
func Print(w io.Writer, root h5browse.NodeInfo, opts PrintOptions) error {
	pattern := strings.TrimPrefix(opts.Match, "/")
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("invalid match pattern %q", opts.Match)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	var lines []string
	collect(root, 0, pattern, opts.Tooltips, &lines)
	for _, l := range lines {
		if _, err := io.WriteString(tw, l); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// collect appends the lines for n and its subtree and reports whether anything
// was kept
func collect(n h5browse.NodeInfo, depth int, pattern string, tooltips bool, lines *[]string) bool {
	name := n.Name()
	if name == "" {
		name = "/"
	}
	line := fmt.Sprintf("%s%s %s\t%s\t%s", strings.Repeat("  ", depth), Marker(n), name, n.SizeStr(), n.TypeStr())
	if tooltips {
		line += "\t" + n.Tooltip()
	}
	line += "\n"

	at := len(*lines)
	*lines = append(*lines, line)

	keep := pattern == "" || matches(pattern, n.Path())
	for _, ch := range n.Children() {
		if collect(ch, depth+1, pattern, tooltips, lines) {
			keep = true
		}
	}
	if !keep {
		*lines = (*lines)[:at]
	}
	return keep
}

func matches(pattern, path string) bool {
	ok, err := doublestar.Match(pattern, strings.TrimPrefix(path, "/"))
	return err == nil && ok
}
