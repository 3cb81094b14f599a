// Package social provides agent identity and the undirected social network
// that introductions grow over a run.
package social

import (
	"sort"
)

// AgentID is a unique, immutable identifier for an agent.
type AgentID uint64

// Edge is an undirected link between two agents, stored with A < B.
type Edge struct {
	A AgentID `json:"source"`
	B AgentID `json:"target"`
}

// NewEdge normalizes the endpoint order so (a,b) and (b,a) compare equal.
func NewEdge(a, b AgentID) Edge {
	if b < a {
		a, b = b, a
	}
	return Edge{A: a, B: b}
}

// Network is an undirected graph over agent IDs. Edges are only ever added.
// Adjacency is stored in both directions so membership is symmetric by construction.
type Network struct {
	adj   map[AgentID]map[AgentID]struct{}
	edges int
}

// NewNetwork creates a graph with the given isolated nodes.
func NewNetwork(nodes []AgentID) *Network {
	n := &Network{adj: make(map[AgentID]map[AgentID]struct{}, len(nodes))}
	for _, id := range nodes {
		n.AddNode(id)
	}
	return n
}

// AddNode adds an isolated node if it is not already present.
func (n *Network) AddNode(id AgentID) {
	if _, ok := n.adj[id]; !ok {
		n.adj[id] = make(map[AgentID]struct{})
	}
}

// AddEdge links a and b. It returns false for self-loops and existing edges.
func (n *Network) AddEdge(a, b AgentID) bool {
	if a == b || n.HasEdge(a, b) {
		return false
	}
	n.AddNode(a)
	n.AddNode(b)
	n.adj[a][b] = struct{}{}
	n.adj[b][a] = struct{}{}
	n.edges++
	return true
}

// HasEdge reports whether a and b are linked.
func (n *Network) HasEdge(a, b AgentID) bool {
	nbrs, ok := n.adj[a]
	if !ok {
		return false
	}
	_, ok = nbrs[b]
	return ok
}

// Neighbors returns the neighbors of id in ascending order.
func (n *Network) Neighbors(id AgentID) []AgentID {
	out := make([]AgentID, 0, len(n.adj[id]))
	for nb := range n.adj[id] {
		out = append(out, nb)
	}
	sortIDs(out)
	return out
}

// Degree returns the number of neighbors of id.
func (n *Network) Degree(id AgentID) int {
	return len(n.adj[id])
}

// Nodes returns every node in ascending order.
func (n *Network) Nodes() []AgentID {
	out := make([]AgentID, 0, len(n.adj))
	for id := range n.adj {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}

// NodeCount returns the number of nodes.
func (n *Network) NodeCount() int {
	return len(n.adj)
}

// EdgeCount returns the number of undirected edges.
func (n *Network) EdgeCount() int {
	return n.edges
}

// Edges returns every edge once, ordered by (A, B).
func (n *Network) Edges() []Edge {
	out := make([]Edge, 0, n.edges)
	for a, nbrs := range n.adj {
		for b := range nbrs {
			if a < b {
				out = append(out, Edge{A: a, B: b})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

// Copy returns an independent copy of the graph.
func (n *Network) Copy() *Network {
	c := &Network{adj: make(map[AgentID]map[AgentID]struct{}, len(n.adj)), edges: n.edges}
	for id, nbrs := range n.adj {
		m := make(map[AgentID]struct{}, len(nbrs))
		for nb := range nbrs {
			m[nb] = struct{}{}
		}
		c.adj[id] = m
	}
	return c
}

func sortIDs(ids []AgentID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
