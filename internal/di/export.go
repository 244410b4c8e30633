package di

import (
	"fmt"
	"io"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/loomdi/loom/internal/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Export formats.
const (
	FormatDOT  = "dot"
	FormatJSON = "json"
)

// ExportOptions controls graph serialization.
type ExportOptions struct {
	Format            string
	Title             string
	Rankdir           string
	IncludeScopes     bool
	IncludeQualifiers bool
}

type exportNode struct {
	Key        string   `json:"key"`
	Scope      string   `json:"scope,omitempty"`
	Lazy       bool     `json:"lazy,omitempty"`
	Qualifiers []string `json:"qualifiers,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

type exportEdge struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Parameter string `json:"parameter,omitempty"`
	Optional  bool   `json:"optional,omitempty"`
}

type exportGraph struct {
	Title string       `json:"title,omitempty"`
	Nodes []exportNode `json:"nodes"`
	Edges []exportEdge `json:"edges"`
}

// ExportGraph serializes the container's static dependency graph.
func (c *Container) ExportGraph(opts ExportOptions) (string, error) {
	g := BuildGraph(c.Locator())
	switch opts.Format {
	case "", FormatDOT:
		return exportDOT(g, opts), nil
	case FormatJSON:
		return exportJSON(g, opts)
	default:
		return "", errors.ErrSerialization("unsupported graph format: "+opts.Format, nil)
	}
}

// ExportGraphTo serializes the graph into a writer.
func (c *Container) ExportGraphTo(w io.Writer, opts ExportOptions) error {
	out, err := c.ExportGraph(opts)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, out); err != nil {
		return errors.ErrSerialization("failed to write dependency graph", err)
	}
	return nil
}

func exportJSON(g *Graph, opts ExportOptions) (string, error) {
	out := exportGraph{Title: opts.Title, Nodes: []exportNode{}, Edges: []exportEdge{}}
	for _, n := range g.Nodes {
		en := exportNode{Key: n.Key.String(), Lazy: n.Lazy, Tags: n.Tags}
		if opts.IncludeScopes {
			en.Scope = n.Scope
		}
		if opts.IncludeQualifiers {
			en.Qualifiers = n.Qualifiers
		}
		out.Nodes = append(out.Nodes, en)
	}
	for _, e := range g.Edges {
		out.Edges = append(out.Edges, exportEdge{
			From:      e.From.String(),
			To:        e.To.String(),
			Parameter: e.Parameter,
			Optional:  e.Optional,
		})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", errors.ErrSerialization("failed to marshal dependency graph", err)
	}
	return string(data), nil
}

func exportDOT(g *Graph, opts ExportOptions) string {
	var b strings.Builder
	b.WriteString("digraph dependencies {\n")
	if opts.Rankdir != "" {
		fmt.Fprintf(&b, "  rankdir=%s;\n", opts.Rankdir)
	}
	if opts.Title != "" {
		fmt.Fprintf(&b, "  label=%q;\n", opts.Title)
	}

	nodes := make([]GraphNode, len(g.Nodes))
	copy(nodes, g.Nodes)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Key.String() < nodes[j].Key.String() })
	for _, n := range nodes {
		label := n.Key.String()
		var extras []string
		if opts.IncludeScopes && n.Scope != "" {
			extras = append(extras, n.Scope)
		}
		if n.Lazy {
			extras = append(extras, "lazy")
		}
		if opts.IncludeQualifiers {
			extras = append(extras, n.Qualifiers...)
		}
		if len(extras) > 0 {
			label += "\\n[" + strings.Join(extras, ",") + "]"
		}
		fmt.Fprintf(&b, "  %q [label=%q];\n", n.Key.String(), label)
	}

	edges := make([]GraphEdge, len(g.Edges))
	copy(edges, g.Edges)
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From.String() != edges[j].From.String() {
			return edges[i].From.String() < edges[j].From.String()
		}
		return edges[i].To.String() < edges[j].To.String()
	})
	for _, e := range edges {
		attrs := ""
		if e.Optional {
			attrs = " [style=dashed]"
		} else if e.Parameter != "" {
			attrs = fmt.Sprintf(" [label=%q]", e.Parameter)
		}
		fmt.Fprintf(&b, "  %q -> %q%s;\n", e.From.String(), e.To.String(), attrs)
	}
	b.WriteString("}\n")
	return b.String()
}
