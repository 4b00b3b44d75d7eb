package mir

import (
	"fmt"
	"strings"
)

// DepEdge is a resolved dependence for rendering: From is the querying
// instruction, To is the instruction it depends on.
type DepEdge struct {
	From *MIR
	To   *MIR
}

// ToDot returns a Graphviz DOT representation of the CFG.
func (c *CFG) ToDot() string {
	return c.ToDotWithDeps(nil)
}

// ToDotWithDeps renders the CFG with one node per instruction, grouped into
// block clusters, and overlays the given dependence edges in red.
func (c *CFG) ToDotWithDeps(deps []DepEdge) string {
	var sb strings.Builder
	sb.WriteString("digraph MemDep {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, fontname=\"Courier\"];\n")

	nodeID := func(m *MIR) string {
		return fmt.Sprintf("n%d_%d", m.block.blockNum, m.idx)
	}

	for _, block := range c.basicBlocks {
		fmt.Fprintf(&sb, "  subgraph cluster_%d {\n", block.blockNum)
		label := fmt.Sprintf("Block %d\\nPC: %d..%d", block.blockNum, block.firstPC, block.lastPC)
		if block.unresolvedJump {
			label += "\\n(unresolved jump)"
		}
		fmt.Fprintf(&sb, "    label=\"%s\";\n", label)
		if len(block.instructions) == 0 {
			// Placeholder node so cluster edges have an anchor.
			fmt.Fprintf(&sb, "    n%d_empty [label=\"(empty)\"];\n", block.blockNum)
		}
		for i, m := range block.instructions {
			fmt.Fprintf(&sb, "    %s [label=\"%d: %s\"];\n", nodeID(m), i, m)
		}
		// Invisible chain keeps instructions in program order.
		for i := 1; i < len(block.instructions); i++ {
			fmt.Fprintf(&sb, "    %s -> %s [style=invis];\n",
				nodeID(block.instructions[i-1]), nodeID(block.instructions[i]))
		}
		sb.WriteString("  }\n")
	}

	anchor := func(b *BasicBlock, last bool) string {
		if len(b.instructions) == 0 {
			return fmt.Sprintf("n%d_empty", b.blockNum)
		}
		if last {
			return nodeID(b.instructions[len(b.instructions)-1])
		}
		return nodeID(b.instructions[0])
	}

	for _, block := range c.basicBlocks {
		for _, child := range block.children {
			fmt.Fprintf(&sb, "  %s -> %s [color=gray];\n",
				anchor(block, true), anchor(child, false))
		}
	}

	for _, d := range deps {
		if d.From == nil || d.To == nil || d.From.block == nil || d.To.block == nil {
			continue
		}
		fmt.Fprintf(&sb, "  %s -> %s [color=red, style=dashed, constraint=false];\n",
			nodeID(d.From), nodeID(d.To))
	}

	sb.WriteString("}\n")
	return sb.String()
}
