package causal

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"tremor/pkg/contracts/domain"
)

// Network is an immutable directed graph over named market variables. It
// is built once from the Granger edge table and passed by handle wherever
// downstream relationships are queried; reads need no locking.
type Network struct {
	nodes        []string
	nodeIndex    map[string]bool
	successors   map[string][]string
	predecessors map[string][]string
	edges        map[string]map[string]domain.EdgeMetadata
}

// NewNetwork builds a network from edge rows. Self-loops are kept as-is.
// A repeated (cause, effect) row overwrites the earlier edge's attributes
// rather than merging them.
func NewNetwork(rows []domain.GrangerEdge) *Network {
	n := &Network{
		nodeIndex:    make(map[string]bool),
		successors:   make(map[string][]string),
		predecessors: make(map[string][]string),
		edges:        make(map[string]map[string]domain.EdgeMetadata),
	}
	for _, row := range rows {
		n.addEdge(row)
	}
	return n
}

func (n *Network) addEdge(row domain.GrangerEdge) {
	n.addNode(row.Cause)
	n.addNode(row.Effect)

	if n.edges[row.Cause] == nil {
		n.edges[row.Cause] = make(map[string]domain.EdgeMetadata)
	}
	_, exists := n.edges[row.Cause][row.Effect]
	n.edges[row.Cause][row.Effect] = domain.EdgeMetadata{
		FStatistic: row.FStatistic,
		PValue:     row.PValue,
		Lag:        row.Lag,
	}
	if !exists {
		n.successors[row.Cause] = append(n.successors[row.Cause], row.Effect)
		n.predecessors[row.Effect] = append(n.predecessors[row.Effect], row.Cause)
	}
}

func (n *Network) addNode(name string) {
	if !n.nodeIndex[name] {
		n.nodeIndex[name] = true
		n.nodes = append(n.nodes, name)
	}
}

// Nodes returns all node names in insertion order.
func (n *Network) Nodes() []string {
	out := make([]string, len(n.nodes))
	copy(out, n.nodes)
	return out
}

// HasNode reports whether the node exists in the network.
func (n *Network) HasNode(name string) bool {
	return n.nodeIndex[name]
}

// Downstream returns the direct successors of a node, one hop only, in
// edge insertion order. An unknown node yields an empty slice: absence is
// a valid query outcome, not an error.
func (n *Network) Downstream(node string) []string {
	out := make([]string, len(n.successors[node]))
	copy(out, n.successors[node])
	return out
}

// Upstream returns the direct predecessors of a node.
func (n *Network) Upstream(node string) []string {
	out := make([]string, len(n.predecessors[node]))
	copy(out, n.predecessors[node])
	return out
}

// Edge returns the metadata on the cause→effect edge, if it exists.
func (n *Network) Edge(cause, effect string) (domain.EdgeMetadata, bool) {
	meta, ok := n.edges[cause][effect]
	return meta, ok
}

// Edges returns every edge with its metadata, cause-major in insertion
// order.
func (n *Network) Edges() []domain.GrangerEdge {
	var out []domain.GrangerEdge
	for _, cause := range n.nodes {
		for _, effect := range n.successors[cause] {
			meta := n.edges[cause][effect]
			out = append(out, domain.GrangerEdge{
				Cause:      cause,
				Effect:     effect,
				FStatistic: meta.FStatistic,
				PValue:     meta.PValue,
				Lag:        meta.Lag,
			})
		}
	}
	return out
}

// NumEdges returns the number of directed edges.
func (n *Network) NumEdges() int {
	total := 0
	for _, succ := range n.successors {
		total += len(succ)
	}
	return total
}

// LoadNetworkCSV loads the edge table from a Granger results CSV with a
// header of cause,effect,f_statistic,p_value,lag.
func LoadNetworkCSV(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open network file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse network csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("network csv %s is empty", path)
	}

	header := make(map[string]int, len(rows[0]))
	for i, col := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"cause", "effect"} {
		if _, ok := header[required]; !ok {
			return nil, fmt.Errorf("network csv missing %q column", required)
		}
	}

	var edges []domain.GrangerEdge
	for i, row := range rows[1:] {
		edge := domain.GrangerEdge{
			Cause:  strings.TrimSpace(row[header["cause"]]),
			Effect: strings.TrimSpace(row[header["effect"]]),
			PValue: 1,
			Lag:    1,
		}
		if idx, ok := header["f_statistic"]; ok {
			if v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64); err == nil {
				edge.FStatistic = v
			}
		}
		if idx, ok := header["p_value"]; ok {
			if v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64); err == nil {
				edge.PValue = v
			}
		}
		if idx, ok := header["lag"]; ok {
			if v, err := strconv.Atoi(strings.TrimSpace(row[idx])); err == nil {
				edge.Lag = v
			}
		}
		if edge.Cause == "" || edge.Effect == "" {
			return nil, fmt.Errorf("network csv row %d: empty cause or effect", i+2)
		}
		edges = append(edges, edge)
	}

	return NewNetwork(edges), nil
}
