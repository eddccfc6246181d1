// Package graph implements the typed-link traversal engine of spec §4.8:
// budget-bounded BFS/Dijkstra expansion, shortest-path search, semantic
// inversion of inbound edges, and compaction-transparent canonicalization.
// It shares a single frontier-expansion engine between the tree and path
// operations, grounded on the teacher's use of a shared worklist in
// internal/git/worktree.go and generalized to a priority-queue frontier.
package graph

import (
	"container/heap"
	"sort"

	"github.com/mwaldstein/qipu/internal/compact"
	"github.com/mwaldstein/qipu/internal/index"
	"github.com/mwaldstein/qipu/internal/ontology"
)

// Direction selects which edges a traversal follows.
type Direction string

const (
	DirOut  Direction = "out"
	DirIn   Direction = "in"
	DirBoth Direction = "both"
)

// TruncationReason names why an expansion stopped early (§4.8).
type TruncationReason string

const (
	ReasonMaxHops    TruncationReason = "max_hops"
	ReasonMaxNodes   TruncationReason = "max_nodes"
	ReasonMaxEdges   TruncationReason = "max_edges"
	ReasonMaxFanout  TruncationReason = "max_fanout"
	ReasonMinValue   TruncationReason = "min_value filter excluded root"
	ReasonNone       TruncationReason = ""
)

// TreeOptions bundles every budget and filter a traversal accepts (§4.8).
type TreeOptions struct {
	Direction         Direction
	MaxHops           float64 // accumulated cost, not raw edge count; <=0 means unbounded
	MaxNodes          int     // <=0 means unbounded
	MaxEdges          int     // <=0 means unbounded
	MaxFanout         int     // <=0 means unbounded
	MinValue          int
	IgnoreValue       bool
	SemanticInversion bool
	TypeWhitelist     map[string]bool
	TypeBlacklist     map[string]bool
	SourceFilter      string // "typed", "inline", or "" for any
}

func defaultValue(v *int) int {
	if v == nil {
		return 50
	}
	return *v
}

// valuePenalty is the monotone decreasing cost curve for Dijkstra
// traversal: a value of 100 costs nothing extra, a value of 0 costs 1.0
// extra, linear in between. Documented here as the stable, versioned
// shape referenced by spec §4.8's "implementation-defined but stable"
// clause.
func valuePenalty(value int) float64 {
	if value < 0 {
		value = 0
	}
	if value > 100 {
		value = 100
	}
	return 1.0 - float64(value)/100.0
}

func edgeCost(ont *ontology.Ontology, linkType string, targetValue int, ignoreValue bool) float64 {
	base := ont.Cost(linkType)
	if ignoreValue {
		return base
	}
	return base + valuePenalty(targetValue)
}

// Node is one discovered vertex in a tree/path result.
type Node struct {
	ID       string
	Hop      int
	Cost     float64
	Via      string // pre-canonical id, set only when canonicalization changed it
	PredEdge *TreeEdge
}

// TreeEdge is one traversed edge, possibly semantically inverted.
type TreeEdge struct {
	From     string
	To       string
	LinkType string
	Inverted bool
}

// Tree is the result of a budget-bounded expansion from one root.
type Tree struct {
	Root      string
	Nodes     []Node
	Edges     []TreeEdge
	Truncated bool
	Reason    TruncationReason
}

// neighbor is a candidate edge before cost accounting, used for the
// deterministic (link_type, neighbor_id) sort required before applying
// max_fanout (§4.8).
type neighbor struct {
	to       string
	linkType string
	inverted bool
	value    int
}

// Engine bundles the read-only graph state a traversal needs: the index's
// adjacency, the ontology (for inverse/cost lookup), and an optional
// compaction context for canonicalization.
type Engine struct {
	Idx     *index.Index
	Ont     *ontology.Ontology
	Compact *compact.Context
}

func (e *Engine) canon(id string) string {
	if e.Compact == nil {
		return id
	}
	if c, err := e.Compact.Canon(id); err == nil {
		return c
	}
	return id
}

// neighbors returns id's filtered, sorted neighbors under opts, and
// whether max_fanout cut the result (§4.8 "Apply max_fanout after sort").
func (e *Engine) neighbors(id string, opts TreeOptions) ([]neighbor, bool) {
	var out []neighbor

	passFilter := func(linkType string, source string) bool {
		if len(opts.TypeWhitelist) > 0 && !opts.TypeWhitelist[linkType] {
			return false
		}
		if opts.TypeBlacklist[linkType] {
			return false
		}
		if opts.SourceFilter != "" && opts.SourceFilter != source {
			return false
		}
		return true
	}

	if opts.Direction == DirOut || opts.Direction == DirBoth {
		for _, edge := range e.Idx.Outbound[id] {
			if !passFilter(edge.LinkType, string(edge.Source)) {
				continue
			}
			target := e.Idx.Metadata[edge.To]
			out = append(out, neighbor{to: e.canon(edge.To), linkType: edge.LinkType, value: defaultValue(valuePtr(target))})
		}
	}
	if opts.Direction == DirIn || opts.Direction == DirBoth {
		for _, edge := range e.Idx.Inbound[id] {
			if !passFilter(edge.LinkType, string(edge.Source)) {
				continue
			}
			linkType := edge.LinkType
			inverted := false
			if opts.SemanticInversion {
				linkType = e.Ont.Inverse(edge.LinkType)
				inverted = true
			}
			target := e.Idx.Metadata[edge.From]
			out = append(out, neighbor{to: e.canon(edge.From), linkType: linkType, inverted: inverted, value: defaultValue(valuePtr(target))})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].linkType != out[j].linkType {
			return out[i].linkType < out[j].linkType
		}
		return out[i].to < out[j].to
	})

	if opts.MaxFanout > 0 && len(out) > opts.MaxFanout {
		out = out[:opts.MaxFanout]
		return out, true
	}
	return out, false
}

func valuePtr(m index.Metadata) *int {
	v := m.Value
	return &v
}

// Tree performs a budget-bounded expansion from root, choosing BFS when
// IgnoreValue is set and Dijkstra otherwise (§4.8).
func (e *Engine) Tree(root string, opts TreeOptions) *Tree {
	root = e.canon(root)
	rootMeta, hasRoot := e.Idx.Metadata[root]
	minValue := opts.MinValue
	if minValue == 0 {
		minValue = 50
	}
	if hasRoot && defaultValue(valuePtr(rootMeta)) < minValue {
		return &Tree{Root: root, Truncated: true, Reason: ReasonMinValue}
	}

	if opts.IgnoreValue {
		return e.bfs(root, opts)
	}
	return e.dijkstra(root, opts)
}

func (e *Engine) bfs(root string, opts TreeOptions) *Tree {
	type queued struct {
		id   string
		hop  int
		cost float64
		pred *TreeEdge
	}
	t := &Tree{Root: root}
	visited := map[string]bool{root: true}
	t.Nodes = append(t.Nodes, Node{ID: root, Hop: 0})
	queue := []queued{{id: root, hop: 0, cost: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		nbs, fanoutCut := e.neighbors(cur.id, opts)
		if fanoutCut {
			t.Truncated = true
			if t.Reason == ReasonNone {
				t.Reason = ReasonMaxFanout
			}
		}
		for _, nb := range nbs {
			if nb.to == cur.id {
				continue // drop self-loops created by contraction
			}
			cost := e.Ont.Cost(nb.linkType)
			newCost := cur.cost + cost
			if opts.MaxHops > 0 && newCost > opts.MaxHops {
				t.Truncated = true
				t.Reason = ReasonMaxHops
				continue
			}
			edge := TreeEdge{From: cur.id, To: nb.to, LinkType: nb.linkType, Inverted: nb.inverted}
			if visited[nb.to] {
				t.Edges = append(t.Edges, edge)
				continue
			}
			if opts.MaxNodes > 0 && len(t.Nodes) >= opts.MaxNodes {
				t.Truncated = true
				t.Reason = ReasonMaxNodes
				continue
			}
			if opts.MaxEdges > 0 && len(t.Edges) >= opts.MaxEdges {
				t.Truncated = true
				t.Reason = ReasonMaxEdges
				continue
			}
			visited[nb.to] = true
			t.Edges = append(t.Edges, edge)
			t.Nodes = append(t.Nodes, Node{ID: nb.to, Hop: cur.hop + 1, Cost: newCost, PredEdge: &edge})
			queue = append(queue, queued{id: nb.to, hop: cur.hop + 1, cost: newCost, pred: &edge})
		}
	}
	return t
}

// pqItem is one entry in the Dijkstra min-heap.
type pqItem struct {
	id   string
	cost float64
	hop  int
	pred *TreeEdge
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].cost != pq[j].cost {
		return pq[i].cost < pq[j].cost
	}
	return pq[i].id < pq[j].id
}
func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

func (e *Engine) dijkstra(root string, opts TreeOptions) *Tree {
	t := &Tree{Root: root}
	best := map[string]float64{root: 0}
	preds := map[string]*TreeEdge{}
	hops := map[string]int{root: 0}
	settled := map[string]bool{}

	pq := &priorityQueue{{id: root, cost: 0, hop: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pqItem)
		if settled[cur.id] {
			continue
		}
		if opts.MaxNodes > 0 && len(settled) >= opts.MaxNodes {
			// Settling cur would exceed the node budget: stop here rather
			// than admit it, so an already-relaxed-but-unsettled node never
			// leaks into the result (§8 "max_nodes=1 returns only the root").
			t.Truncated = true
			t.Reason = ReasonMaxNodes
			break
		}
		settled[cur.id] = true

		nbs, fanoutCut := e.neighbors(cur.id, opts)
		if fanoutCut {
			t.Truncated = true
			if t.Reason == ReasonNone {
				t.Reason = ReasonMaxFanout
			}
		}
		for _, nb := range nbs {
			if nb.to == cur.id {
				continue
			}
			cost := edgeCost(e.Ont, nb.linkType, nb.value, opts.IgnoreValue)
			newCost := cur.cost + cost
			if opts.MaxHops > 0 && newCost > opts.MaxHops {
				t.Truncated = true
				t.Reason = ReasonMaxHops
				continue
			}
			if existing, ok := best[nb.to]; !ok || newCost < existing {
				best[nb.to] = newCost
				hops[nb.to] = cur.hop + 1
				edge := TreeEdge{From: cur.id, To: nb.to, LinkType: nb.linkType, Inverted: nb.inverted}
				preds[nb.to] = &edge
				if opts.MaxEdges > 0 && len(preds) > opts.MaxEdges {
					t.Truncated = true
					t.Reason = ReasonMaxEdges
					continue
				}
				heap.Push(pq, pqItem{id: nb.to, cost: newCost, hop: cur.hop + 1})
			}
		}
	}

	// Nodes are emitted from the settled set, not every relaxed candidate:
	// a node can be relaxed into best/preds without ever being admitted
	// (e.g. the node budget runs out before it's popped and settled), and
	// such candidates must not appear in the result (§8 max_nodes).
	ids := make([]string, 0, len(settled))
	for id := range settled {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		t.Nodes = append(t.Nodes, Node{ID: id, Hop: hops[id], Cost: best[id], PredEdge: preds[id]})
		if edge := preds[id]; edge != nil {
			t.Edges = append(t.Edges, *edge)
		}
	}
	sort.Slice(t.Edges, func(i, j int) bool {
		a, b := t.Edges[i], t.Edges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.LinkType != b.LinkType {
			return a.LinkType < b.LinkType
		}
		return a.To < b.To
	})
	return t
}

// Path is the result of a shortest-path search between two notes (§4.8).
type Path struct {
	Found      bool
	PathLength float64
	Nodes      []string
	Edges      []TreeEdge
}

// ShortestPath finds the shortest path from src to dst: BFS in unweighted
// mode (IgnoreValue), Dijkstra otherwise. It reconstructs the path via a
// predecessor table, stopping at first arrival at dst.
func (e *Engine) ShortestPath(src, dst string, opts TreeOptions) *Path {
	src, dst = e.canon(src), e.canon(dst)
	if src == dst {
		return &Path{Found: true, Nodes: []string{src}}
	}

	preds := map[string]*TreeEdge{}
	dist := map[string]float64{src: 0}
	visited := map[string]bool{src: true}

	if opts.IgnoreValue {
		queue := []string{src}
		for len(queue) > 0 && !visited[dst] {
			cur := queue[0]
			queue = queue[1:]
			nbs, _ := e.neighbors(cur, opts)
			for _, nb := range nbs {
				if visited[nb.to] {
					continue
				}
				visited[nb.to] = true
				edge := TreeEdge{From: cur, To: nb.to, LinkType: nb.linkType, Inverted: nb.inverted}
				preds[nb.to] = &edge
				dist[nb.to] = dist[cur] + e.Ont.Cost(nb.linkType)
				queue = append(queue, nb.to)
				if nb.to == dst {
					break
				}
			}
		}
	} else {
		pq := &priorityQueue{{id: src, cost: 0}}
		heap.Init(pq)
		settled := map[string]bool{}
		for pq.Len() > 0 {
			cur := heap.Pop(pq).(pqItem)
			if settled[cur.id] {
				continue
			}
			settled[cur.id] = true
			if cur.id == dst {
				break
			}
			nbs, _ := e.neighbors(cur.id, opts)
			for _, nb := range nbs {
				cost := edgeCost(e.Ont, nb.linkType, nb.value, false)
				newCost := cur.cost + cost
				if existing, ok := dist[nb.to]; !ok || newCost < existing {
					dist[nb.to] = newCost
					edge := TreeEdge{From: cur.id, To: nb.to, LinkType: nb.linkType, Inverted: nb.inverted}
					preds[nb.to] = &edge
					heap.Push(pq, pqItem{id: nb.to, cost: newCost})
				}
			}
		}
	}

	if _, ok := dist[dst]; !ok {
		return &Path{Found: false}
	}

	var nodes []string
	var edges []TreeEdge
	cur := dst
	for cur != src {
		edge := preds[cur]
		edges = append([]TreeEdge{*edge}, edges...)
		nodes = append([]string{cur}, nodes...)
		cur = edge.From
	}
	nodes = append([]string{src}, nodes...)

	return &Path{Found: true, PathLength: dist[dst], Nodes: nodes, Edges: edges}
}

// Reachable returns the sorted ids reachable from root along outbound
// links within maxHops accumulated link cost, using the same BFS as Tree
// with IgnoreValue set. It returns ids only: no edges and no truncation
// reason. compact.CompactedIDs does not call it; compaction has its own
// traversal.
func (e *Engine) Reachable(root string, maxHops int) []string {
	opts := TreeOptions{Direction: DirOut, IgnoreValue: true, MaxHops: float64(maxHops)}
	t := e.bfs(root, opts)
	ids := make([]string, 0, len(t.Nodes))
	for _, n := range t.Nodes {
		ids = append(ids, n.ID)
	}
	sort.Strings(ids)
	return ids
}
