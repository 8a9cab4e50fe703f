// Package document models a parsed PLC configuration export: an ordered
// list of named blocks (variable declarations, type declarations,
// executable routines) with source line ranges and cross-references.
package document

import (
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// BlockKind tags the kind of a top-level block.
type BlockKind string

const (
	KindVariable BlockKind = "variable-declaration"
	KindType     BlockKind = "type-declaration"
	KindRoutine  BlockKind = "routine"
)

// LineRange is a 1-based inclusive range of source lines.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Lines returns the number of lines covered by the range.
func (r LineRange) Lines() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Block is one named top-level element of the export.
type Block struct {
	Name       string    `json:"name"`
	Kind       BlockKind `json:"kind"`
	Range      LineRange `json:"line_range"`
	Content    string    `json:"content"`
	References []string  `json:"references"` // names this block reads or writes
	TokenCount int       `json:"token_estimate"`
}

// Document is the parsed representation of one export file.
type Document struct {
	Path       string
	Lines      []string // raw source lines, index 0 = line 1
	Blocks     []*Block // source order
	byName     map[string]*Block
	depGraph   *simple.DirectedGraph
	graphIDs   map[string]int64
	graphNames map[int64]string
}

// TotalLines returns the line count of the source document.
func (d *Document) TotalLines() int { return len(d.Lines) }

// BlockByName resolves a block name, nil when external.
func (d *Document) BlockByName(name string) *Block {
	return d.byName[name]
}

// ResolvedReferences splits a block's references into blocks defined in
// this document and external names. External names are preserved, never
// dropped: shard context reports them verbatim.
func (d *Document) ResolvedReferences(b *Block) (internal []*Block, external []string) {
	for _, ref := range b.References {
		if target, ok := d.byName[ref]; ok && target != b {
			internal = append(internal, target)
		} else if !ok {
			external = append(external, ref)
		}
	}
	return internal, external
}

// buildGraph constructs the block dependency graph: nodes are blocks,
// edges point from a block to the blocks it references.
func (d *Document) buildGraph() {
	d.depGraph = simple.NewDirectedGraph()
	d.graphIDs = make(map[string]int64, len(d.Blocks))
	d.graphNames = make(map[int64]string, len(d.Blocks))

	for i, b := range d.Blocks {
		id := int64(i)
		d.graphIDs[b.Name] = id
		d.graphNames[id] = b.Name
		d.depGraph.AddNode(simple.Node(id))
	}
	for _, b := range d.Blocks {
		from := d.graphIDs[b.Name]
		for _, ref := range b.References {
			to, ok := d.graphIDs[ref]
			if !ok || to == from {
				continue
			}
			d.depGraph.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(to)})
		}
	}
}

// DependencyOrder returns block names in dependency-first order.
// Reference cycles are tolerated: unorderable blocks are appended in
// source order after the orderable ones.
func (d *Document) DependencyOrder() []string {
	sorted, err := topo.Sort(d.depGraph)
	names := make([]string, 0, len(d.Blocks))
	if err != nil {
		if unord, ok := err.(topo.Unorderable); ok {
			seen := make(map[string]bool)
			for _, n := range sorted {
				if n == nil {
					continue
				}
				names = append(names, d.graphNames[n.ID()])
				seen[d.graphNames[n.ID()]] = true
			}
			// Cycle members keep their source order.
			cyclic := make([]string, 0)
			for _, scc := range unord {
				for _, n := range scc {
					cyclic = append(cyclic, d.graphNames[n.ID()])
				}
			}
			sort.Slice(cyclic, func(i, j int) bool {
				return d.byName[cyclic[i]].Range.Start < d.byName[cyclic[j]].Range.Start
			})
			for _, name := range cyclic {
				if !seen[name] {
					names = append(names, name)
				}
			}
			// topo.Sort emits referenced-last; the sharder wants definitions first.
			reverse(names)
			return names
		}
		// Should not happen for a simple directed graph.
		for _, b := range d.Blocks {
			names = append(names, b.Name)
		}
		return names
	}
	for _, n := range sorted {
		names = append(names, d.graphNames[n.ID()])
	}
	reverse(names)
	return names
}

// Dependents returns the names of blocks that reference the given block.
func (d *Document) Dependents(name string) []string {
	id, ok := d.graphIDs[name]
	if !ok {
		return nil
	}
	var out []string
	it := d.depGraph.To(id)
	for it.Next() {
		out = append(out, d.graphNames[it.Node().ID()])
	}
	sort.Strings(out)
	return out
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// Summary captures document-level context sent along with every shard.
type Summary struct {
	TotalBlocks   int                    `json:"total_blocks"`
	CountsByKind  map[BlockKind]int      `json:"counts_by_kind"`
	NamesByKind   map[BlockKind][]string `json:"names_by_kind"` // capped per kind
	TotalLines    int                    `json:"total_lines"`
	TokenEstimate int                    `json:"token_estimate"`
}

// summaryNameCap bounds per-kind name lists in the document summary.
const summaryNameCap = 50

// Summarize produces the global context summary for the document.
func (d *Document) Summarize() Summary {
	s := Summary{
		TotalBlocks:  len(d.Blocks),
		CountsByKind: make(map[BlockKind]int),
		NamesByKind:  make(map[BlockKind][]string),
		TotalLines:   len(d.Lines),
	}
	for _, b := range d.Blocks {
		s.CountsByKind[b.Kind]++
		if len(s.NamesByKind[b.Kind]) < summaryNameCap {
			s.NamesByKind[b.Kind] = append(s.NamesByKind[b.Kind], b.Name)
		}
		s.TokenEstimate += b.TokenCount
	}
	return s
}
