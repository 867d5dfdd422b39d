// Package neomap maps the results of Neo4j graph queries onto connected Go
// object graphs. It hydrates registered domain structs from node and
// relationship records, keeps a per-session identity registry so repeated
// loads return the same live objects, and tracks the set of relationships
// known to exist in the graph so that a persistence layer can later diff
// in-memory state against it.
package neomap

import (
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Direction describes which way a relationship points relative to the entity
// that declares the field.
type Direction string

const (
	// Outgoing matches relationships that start at the declaring entity.
	Outgoing Direction = "OUTGOING"
	// Incoming matches relationships that end at the declaring entity.
	Incoming Direction = "INCOMING"
	// Undirected matches relationships regardless of which end the
	// declaring entity occupies.
	Undirected Direction = "UNDIRECTED"
)

// NodeRecord is the flattened wire representation of a single graph node as
// returned by one query execution.
type NodeRecord struct {
	// ID is the database-assigned identity of the node. It is immutable
	// once assigned and unique among nodes.
	ID int64

	// Labels holds the node's labels in the order the database reported
	// them. The first label with a registered domain type decides which
	// struct the node hydrates into.
	Labels []string

	// Props maps property keys to their scalar or array values.
	Props map[string]any
}

// RelationshipRecord is the flattened wire representation of a single
// relationship. Props may be empty; relationships without properties are the
// common case and hydrate directly onto their endpoint entities, while typed
// relationship entities additionally materialize an object of their own.
type RelationshipRecord struct {
	// ID is the database-assigned identity of the relationship, unique
	// among relationships.
	ID int64

	// Type is the relationship type, e.g. "ACTS_IN".
	Type string

	// StartNode and EndNode are the identities of the endpoint nodes.
	StartNode int64
	EndNode   int64

	// Props maps property keys to values.
	Props map[string]any
}

// GraphModel is one query execution's worth of graph data: an unordered set
// of nodes plus an unordered set of relationships between them. Several
// GraphModels may be mapped one after another into the same session; the
// mapper is idempotent for entities it has already materialized, so
// paginated or depth-limited loads merge cleanly.
type GraphModel struct {
	Nodes         []*NodeRecord
	Relationships []*RelationshipRecord

	seenNodes map[int64]bool
	seenRels  map[int64]bool
}

// NewGraphModel returns an empty GraphModel ready to accumulate records.
func NewGraphModel() *GraphModel {
	return &GraphModel{
		seenNodes: make(map[int64]bool),
		seenRels:  make(map[int64]bool),
	}
}

// AddNode appends a node record unless a record with the same identity is
// already present.
func (g *GraphModel) AddNode(n *NodeRecord) {
	if g.seenNodes == nil {
		g.seenNodes = make(map[int64]bool)
	}
	if g.seenNodes[n.ID] {
		return
	}
	g.seenNodes[n.ID] = true
	g.Nodes = append(g.Nodes, n)
}

// AddRelationship appends a relationship record unless a record with the
// same identity is already present.
func (g *GraphModel) AddRelationship(r *RelationshipRecord) {
	if g.seenRels == nil {
		g.seenRels = make(map[int64]bool)
	}
	if g.seenRels[r.ID] {
		return
	}
	g.seenRels[r.ID] = true
	g.Relationships = append(g.Relationships, r)
}

// GraphFromResult extracts every node and relationship that appears anywhere
// in an eagerly buffered query result and collects them into a single
// GraphModel.
//
// The function walks each value of each record and recognizes nodes,
// relationships, paths and nested lists (as produced by collect()). Values of
// any other type, such as plain columns returned alongside graph elements,
// are ignored. Graph elements are de-duplicated by identity, so an element
// returned in several rows appears exactly once in the result.
func GraphFromResult(result *neo4j.EagerResult) *GraphModel {
	graph := NewGraphModel()
	if result == nil {
		return graph
	}
	for _, record := range result.Records {
		for _, value := range record.Values {
			collectGraphValue(graph, value)
		}
	}
	return graph
}

// collectGraphValue folds one record value into the graph, recursing through
// paths and lists.
func collectGraphValue(graph *GraphModel, value any) {
	switch v := value.(type) {
	case neo4j.Node:
		graph.AddNode(&NodeRecord{
			ID:     v.GetId(),
			Labels: v.Labels,
			Props:  v.Props,
		})

	case neo4j.Relationship:
		graph.AddRelationship(&RelationshipRecord{
			ID:        v.GetId(),
			Type:      v.Type,
			StartNode: v.StartId,
			EndNode:   v.EndId,
			Props:     v.Props,
		})

	case neo4j.Path:
		for _, node := range v.Nodes {
			collectGraphValue(graph, node)
		}
		for _, rel := range v.Relationships {
			collectGraphValue(graph, rel)
		}

	case []any:
		for _, element := range v {
			collectGraphValue(graph, element)
		}
	}
}
