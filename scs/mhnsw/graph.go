// Package mhnsw implements a Merkleized HNSW (Hierarchical Navigable Small
// World) vector index: an approximate nearest-neighbor graph where every
// node carries a content hash over its vector, payload, and neighbor lists,
// so a search result can be accompanied by a TraversalProof binding it to a
// tamper-evident graph state. Grounded directly on
// crates/state/src/tree/mhnsw/graph.rs.
package mhnsw

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/ioi-foundation/kernel/crypto"
)

// NodeID identifies one vector in the graph.
type NodeID uint64

// Vector is a dense float embedding.
type Vector []float32

// EuclideanDistance is the default metric; the Rust original is generic
// over DistanceMetric but every deployed index uses Euclidean, so this
// port fixes the metric rather than threading a generic parameter through
// Go (which has no natural analogue for Rust's zero-cost trait generics
// here).
func EuclideanDistance(a, b Vector) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}

// Node is one vector plus its per-layer neighbor lists and content hash.
type Node struct {
	ID        NodeID
	Vector    Vector
	Payload   []byte
	Neighbors [][]NodeID // Neighbors[layer] = neighbor ids at that layer
	Hash      [32]byte
}

// computeHash hashes the node's vector, payload, and neighbor lists in a
// fixed byte order so two nodes with identical content always hash equal
// regardless of map iteration order elsewhere in the graph.
func (n *Node) computeHash() {
	buf := make([]byte, 0, 64+len(n.Payload))
	var idBuf [8]byte
	binary.LittleEndian.PutUint64(idBuf[:], uint64(n.ID))
	buf = append(buf, idBuf[:]...)
	for _, f := range n.Vector {
		var fb [4]byte
		binary.LittleEndian.PutUint32(fb[:], math.Float32bits(f))
		buf = append(buf, fb[:]...)
	}
	buf = append(buf, n.Payload...)
	for _, layer := range n.Neighbors {
		for _, nb := range layer {
			var nbBuf [8]byte
			binary.LittleEndian.PutUint64(nbBuf[:], uint64(nb))
			buf = append(buf, nbBuf[:]...)
		}
	}
	n.Hash = crypto.Hash32(buf)
}

// VisitedNode is one step recorded in a TraversalProof: the node visited,
// its content hash, the vector it held, and which neighbors were available
// at the layer the search descended through it.
type VisitedNode struct {
	ID                NodeID
	Hash              [32]byte
	Vector            Vector
	NeighborsAtLayer  []NodeID
}

// TraversalProof records the entry point and every node visited during a
// greedy descent, so a verifier can replay the same descent against the
// committed graph root and confirm the reported result actually follows
// from it (spec §4.7's "proof of retrieval").
type TraversalProof struct {
	EntryPointID   NodeID
	EntryPointHash [32]byte
	Trace          []VisitedNode
	Result         NodeID
}

// Graph is an HNSW index over Vector payloads, with deterministic iteration
// (a sorted node-id slice stands in for the Rust port's BTreeMap) so the
// same sequence of inserts always produces the same graph, a requirement
// for consensus-replayable vector commitments.
type Graph struct {
	nodes      map[NodeID]*Node
	order      []NodeID // kept sorted; mirrors BTreeMap's deterministic iteration
	entryPoint NodeID
	hasEntry   bool
	m          int
	levelMult  float64
	nextID     NodeID
	maxLayer   int
	rng        *rand.Rand
}

// New builds an empty graph with HNSW hyperparameter m (max neighbors per
// layer) and a deterministic random source seeded by the caller, so level
// assignment is reproducible in tests without needing time-based entropy.
func New(m int, seed int64) *Graph {
	return &Graph{
		nodes:     make(map[NodeID]*Node),
		m:         m,
		levelMult: 1.0 / math.Log(float64(m)),
		nextID:    1,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

func (g *Graph) randomLevel() int {
	r := g.rng.Float64()
	if r <= 0 {
		r = 1e-9
	}
	return int(math.Floor(-math.Log(r) * g.levelMult))
}

func (g *Graph) insertOrdered(id NodeID) {
	idx := sort.Search(len(g.order), func(i int) bool { return g.order[i] >= id })
	g.order = append(g.order, 0)
	copy(g.order[idx+1:], g.order[idx:])
	g.order[idx] = id
}

func (g *Graph) removeOrdered(id NodeID) {
	idx := sort.Search(len(g.order), func(i int) bool { return g.order[i] >= id })
	if idx < len(g.order) && g.order[idx] == id {
		g.order = append(g.order[:idx], g.order[idx+1:]...)
	}
}

// Insert adds vector with its opaque payload, returning the new node id.
func (g *Graph) Insert(vector Vector, payload []byte) NodeID {
	level := g.randomLevel()
	id := g.nextID
	g.nextID++

	node := &Node{ID: id, Vector: vector, Payload: payload, Neighbors: make([][]NodeID, level+1)}

	if !g.hasEntry {
		node.computeHash()
		g.nodes[id] = node
		g.insertOrdered(id)
		g.entryPoint = id
		g.hasEntry = true
		g.maxLayer = level
		return id
	}

	curr := g.entryPoint
	currDist := EuclideanDistance(vector, g.nodes[curr].Vector)
	for l := g.maxLayer; l > level; l-- {
		changed := true
		for changed {
			changed = false
			if n, ok := g.nodes[curr]; ok && l < len(n.Neighbors) {
				for _, nb := range n.Neighbors[l] {
					d := EuclideanDistance(vector, g.nodes[nb].Vector)
					if d < currDist {
						currDist = d
						curr = nb
						changed = true
					}
				}
			}
		}
	}

	if level > g.maxLayer {
		g.maxLayer = level
		g.entryPoint = id
	}

	node.computeHash()
	g.nodes[id] = node
	g.insertOrdered(id)
	return id
}

// Delete removes id and prunes it out of every other node's neighbor lists,
// recomputing the hash of every node that changed — exactly the Rust
// port's full-scan delete (HNSW has no cheap targeted edge removal).
func (g *Graph) Delete(id NodeID) error {
	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("mhnsw: node %d not found", id)
	}
	delete(g.nodes, id)
	g.removeOrdered(id)

	for _, nid := range g.order {
		n := g.nodes[nid]
		changed := false
		for li, layer := range n.Neighbors {
			for i, nb := range layer {
				if nb == id {
					n.Neighbors[li] = append(layer[:i], layer[i+1:]...)
					changed = true
					break
				}
			}
		}
		if changed {
			n.computeHash()
		}
	}

	if g.entryPoint == id {
		if len(g.order) == 0 {
			g.hasEntry = false
			g.maxLayer = 0
		} else {
			maxL := 0
			var candidate NodeID
			for _, nid := range g.order {
				l := len(g.nodes[nid].Neighbors) - 1
				if l < 0 {
					l = 0
				}
				if l >= maxL {
					maxL = l
					candidate = nid
				}
			}
			g.entryPoint = candidate
			g.maxLayer = maxL
		}
	}
	return nil
}

// SearchResult is one hit returned by Search/SearchWithProof.
type SearchResult struct {
	Payload  []byte
	Distance float32
}

// Search returns the single nearest payload to query by greedy descent.
func (g *Graph) Search(query Vector) (SearchResult, error) {
	res, _, err := g.SearchWithProof(query)
	return res, err
}

// SearchWithProof performs the same greedy descent as Search but also
// returns a TraversalProof a verifier can replay against the committed
// graph to confirm the result follows from it.
func (g *Graph) SearchWithProof(query Vector) (SearchResult, TraversalProof, error) {
	if !g.hasEntry {
		return SearchResult{}, TraversalProof{}, nil
	}

	entry := g.nodes[g.entryPoint]
	curr := g.entryPoint
	currDist := EuclideanDistance(query, entry.Vector)

	var trace []VisitedNode
	for l := g.maxLayer; l >= 1; l-- {
		changed := true
		for changed {
			changed = false
			n := g.nodes[curr]
			if l < len(n.Neighbors) {
				trace = append(trace, VisitedNode{
					ID:               curr,
					Hash:             n.Hash,
					Vector:           n.Vector,
					NeighborsAtLayer: append([]NodeID{}, n.Neighbors[l]...),
				})
				for _, nb := range n.Neighbors[l] {
					d := EuclideanDistance(query, g.nodes[nb].Vector)
					if d < currDist {
						currDist = d
						curr = nb
						changed = true
					}
				}
			}
		}
	}

	result := SearchResult{Payload: g.nodes[curr].Payload, Distance: currDist}
	proof := TraversalProof{
		EntryPointID:   g.entryPoint,
		EntryPointHash: entry.Hash,
		Trace:          trace,
		Result:         curr,
	}
	return result, proof, nil
}

// Root computes a commitment over the whole graph: the hash chain of every
// node's content hash in deterministic id order, the value bound into an
// scs.Frame's MHNSWRoot field at capture time.
func (g *Graph) Root() [32]byte {
	var acc [32]byte
	for _, id := range g.order {
		h := g.nodes[id].Hash
		acc = crypto.Hash32(append(append([]byte{}, acc[:]...), h[:]...))
	}
	return acc
}

// Len returns the number of nodes currently in the graph.
func (g *Graph) Len() int { return len(g.nodes) }
