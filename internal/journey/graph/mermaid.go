// Package graph renders a journey's branches as a Mermaid flowchart.
package graph

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"memberportal/internal/journey/models"
)

type edge struct {
	from, to string
}

type edgeInfo struct {
	branches []int
	active   bool
	deadEnd  bool
}

// GenerateMermaid produces a "graph TD" flowchart of every branch. Edges on
// the active branch are solid, edges only on inactive branches are dotted,
// and each edge is labelled with the branch numbers that take it. The page
// the member stands on is styled as current; pages behind a dead-end flag
// are styled as dead ends.
func GenerateMermaid[T models.Payload](j *models.Journey[T]) string {
	snap := j.Snapshot()

	var (
		pages []string
		ids   = map[string]string{}
		edges []edge
		info  = map[edge]*edgeInfo{}
	)
	node := func(page string) string {
		if nid, ok := ids[page]; ok {
			return nid
		}
		nid := "p" + strconv.Itoa(len(pages))
		ids[page] = nid
		pages = append(pages, page)
		return nid
	}

	for _, b := range snap.Branches {
		for _, st := range b.Steps {
			node(st.CurrentPageKey)
			if strings.TrimSpace(st.NextPageKey) == "" {
				continue
			}
			node(st.NextPageKey)
			e := edge{from: st.CurrentPageKey, to: st.NextPageKey}
			ei, ok := info[e]
			if !ok {
				ei = &edgeInfo{}
				info[e] = ei
				edges = append(edges, e)
			}
			if !slices.Contains(ei.branches, b.Number) {
				ei.branches = append(ei.branches, b.Number)
			}
			if b.Number == snap.ActiveBranch {
				ei.active = true
			}
			ei.deadEnd = ei.deadEnd || st.IsNextPageDeadEnd
		}
	}

	var sb strings.Builder
	sb.WriteString("graph TD\n")
	for _, page := range pages {
		fmt.Fprintf(&sb, "    %s[\"%s\"]\n", ids[page], escapeLabel(page))
	}
	for _, e := range edges {
		ei := info[e]
		label := branchLabel(ei.branches)
		arrow := fmt.Sprintf("-- \"%s\" -->", label)
		if !ei.active {
			arrow = fmt.Sprintf("-. \"%s\" .->", label)
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", ids[e.from], arrow, ids[e.to])
	}

	sb.WriteString("\n    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
	sb.WriteString("    classDef deadend fill:#ffcdd2,stroke:#b71c1c,stroke-dasharray:4,color:#000;\n")
	for _, e := range edges {
		if info[e].deadEnd {
			fmt.Fprintf(&sb, "    class %s deadend;\n", ids[e.to])
		}
	}
	if current, ok := j.CurrentPageKey(); ok {
		fmt.Fprintf(&sb, "    class %s current;\n", ids[current])
	}
	return sb.String()
}

func branchLabel(branches []int) string {
	parts := make([]string, len(branches))
	for i, n := range branches {
		parts[i] = "b" + strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

// escapeLabel keeps page keys from breaking the quoted Mermaid label.
func escapeLabel(s string) string {
	return strings.NewReplacer(`"`, "'", "\n", " ").Replace(s)
}
