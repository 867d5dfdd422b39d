package neomap

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"github.com/saulfrancisco-ruizacevedo/gocypher"
	"go.uber.org/zap"
)

// Session is the central orchestrator for the mapping layer. It owns an
// identity registry scoped to its lifetime, so within one session every
// graph node corresponds to exactly one live object, across any number of
// loads. Writes performed through the session stamp database identities back
// onto the staged objects, keeping the registry consistent with the graph.
//
// Sessions are cheap; open one per unit of work and Clear or discard it when
// the work is done.
type Session struct {
	id      string
	runner  DBRunner
	meta    *Metadata
	mapper  *Mapper
	context *MappingContext
	log     *zap.Logger
}

// NewSession creates a session executing against the given runner, mapping
// through the given schema registry. A nil logger disables diagnostics.
func NewSession(runner DBRunner, meta *Metadata, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	logger = logger.With(zap.String("session", id))
	mctx := NewMappingContext()
	return &Session{
		id:      id,
		runner:  runner,
		meta:    meta,
		mapper:  NewMapper(meta, mctx, logger),
		context: mctx,
		log:     logger,
	}
}

// ID returns the session's unique identifier, mainly for log correlation.
func (s *Session) ID() string { return s.id }

// Context returns the session's identity registry.
func (s *Session) Context() *MappingContext { return s.context }

// Clear forgets every object the session has loaded. Subsequent loads
// produce fresh instances.
func (s *Session) Clear() {
	s.context.Clear()
	s.log.Debug("session cleared")
}

// LoadOne loads the entity with the given graph identity. Node entities
// hydrate their neighbourhood to the given depth: depth 0 loads the bare
// node, depth n follows up to n relationships out, and a negative depth
// follows the graph without limit. Relationship entities load together with
// their two endpoint nodes; depth does not apply to them.
//
// Returns ErrNotFound when no element with that identity exists or its type
// does not map to T.
func LoadOne[T any](ctx context.Context, s *Session, id int64, depth int) (*T, error) {
	info, ok := s.meta.typeInfoFor(reflect.TypeFor[T]())
	if !ok {
		return nil, fmt.Errorf("type %s is not registered", reflect.TypeFor[T]().Name())
	}

	query := depthQueryByID(depth)
	if info.IsRelationshipEntity() {
		query = fmt.Sprintf("MATCH (a)-[r:%s]->(b) WHERE id(r) = $id RETURN a, r, b", info.RelationshipType())
	}
	result, err := s.runner.Run(ctx, query, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if _, err := MapAll[T](s.mapper, GraphFromResult(result)); err != nil {
		return nil, err
	}

	if info.IsRelationshipEntity() {
		if entity, ok := s.context.RelationshipEntity(id).(*T); ok {
			return entity, nil
		}
	} else if entity, ok := s.context.NodeEntity(id).(*T); ok {
		return entity, nil
	}
	return nil, ErrNotFound
}

// LoadAll loads every entity of type T. Node entities load by their
// registered labels, hydrating each one's neighbourhood to the given depth;
// relationship entities load together with their two endpoint nodes, and
// depth does not apply to them. An empty database yields an empty slice,
// not an error.
func LoadAll[T any](ctx context.Context, s *Session, depth int) ([]*T, error) {
	info, ok := s.meta.typeInfoFor(reflect.TypeFor[T]())
	if !ok {
		return nil, fmt.Errorf("type %s is not registered", reflect.TypeFor[T]().Name())
	}

	var query string
	if info.IsRelationshipEntity() {
		query = fmt.Sprintf("MATCH (a)-[r:%s]->(b) RETURN a, r, b", info.RelationshipType())
	} else {
		query = depthQueryByLabel(strings.Join(info.Labels(), ":"), depth)
	}

	result, err := s.runner.Run(ctx, query, map[string]any{})
	if err != nil {
		return nil, err
	}
	return MapAll[T](s.mapper, GraphFromResult(result))
}

// LoadWith executes a caller-built query and hydrates whatever graph
// elements it returns, giving back the objects of type T among them. The
// query's RETURN clause decides what is hydrated; returning paths or
// node/relationship variables both work.
//
// Returns ErrNotFound when the query yields no records.
func LoadWith[T any](ctx context.Context, s *Session, qb *gocypher.QueryBuilder) ([]*T, error) {
	query, params, err := qb.Build()
	if err != nil {
		return nil, fmt.Errorf("could not build query: %w", err)
	}

	result, err := s.runner.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, ErrNotFound
	}
	return MapAll[T](s.mapper, GraphFromResult(result))
}

// depthQueryByID matches a single element by identity and expands paths
// around it up to the requested depth. The zero-length lower bound keeps
// isolated nodes in the result.
func depthQueryByID(depth int) string {
	switch {
	case depth == 0:
		return "MATCH (n) WHERE id(n) = $id RETURN n"
	case depth < 0:
		return "MATCH (n) WHERE id(n) = $id WITH n MATCH p=(n)-[*0..]-(m) RETURN collect(distinct p)"
	default:
		return fmt.Sprintf("MATCH (n) WHERE id(n) = $id WITH n MATCH p=(n)-[*0..%d]-(m) RETURN collect(distinct p)", depth)
	}
}

func depthQueryByLabel(label string, depth int) string {
	switch {
	case depth == 0:
		return fmt.Sprintf("MATCH (n:%s) RETURN n", label)
	case depth < 0:
		return fmt.Sprintf("MATCH (n:%s) WITH n MATCH p=(n)-[*0..]-(m) RETURN collect(distinct p)", label)
	default:
		return fmt.Sprintf("MATCH (n:%s) WITH n MATCH p=(n)-[*0..%d]-(m) RETURN collect(distinct p)", label, depth)
	}
}
