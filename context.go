package neomap

import (
	"fmt"
	"sync"
)

// MappedRelationship records one relationship the mapper has reconciled:
// start node identity, relationship type and end node identity, plus the
// relationship's own identity when one is known.
type MappedRelationship struct {
	StartNodeID    int64
	Type           string
	EndNodeID      int64
	RelationshipID *int64
}

// relKey identifies a mapped relationship by its endpoint/type triple.
type relKey struct {
	start int64
	typ   string
	end   int64
}

// MappingContext is the session-scoped identity registry. It guarantees that
// one graph node maps to exactly one live object: loading the same node twice
// hands back the same pointer, and relationships already reconciled are not
// reprocessed. It also keeps a shadow log of every object that passed through
// the session, for change tracking by a persistence layer. It is safe for
// concurrent use.
type MappingContext struct {
	mu            sync.RWMutex
	nodeEntities  map[int64]any
	relEntities   map[int64]any
	relationships map[relKey]*MappedRelationship
	order         []relKey
	log           []any
	logged        map[any]bool
}

// NewMappingContext creates an empty identity registry.
func NewMappingContext() *MappingContext {
	return &MappingContext{
		nodeEntities:  make(map[int64]any),
		relEntities:   make(map[int64]any),
		relationships: make(map[relKey]*MappedRelationship),
		logged:        make(map[any]bool),
	}
}

// RegisterNodeEntity records the live object for a node identity. The first
// registration wins; re-registering the same identity keeps the original
// object so the registry stays canonical.
func (c *MappingContext) RegisterNodeEntity(id int64, entity any) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.nodeEntities[id]; ok {
		c.remember(existing)
		return existing
	}
	c.nodeEntities[id] = entity
	c.remember(entity)
	return entity
}

// NodeEntity returns the live object registered for a node identity, or nil.
func (c *MappingContext) NodeEntity(id int64) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nodeEntities[id]
}

// RegisterRelationshipEntity records the live object for a relationship
// identity.
func (c *MappingContext) RegisterRelationshipEntity(id int64, entity any) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.relEntities[id]; ok {
		c.remember(existing)
		return existing
	}
	c.relEntities[id] = entity
	c.remember(entity)
	return entity
}

// Remember adds an object to the session's shadow log. The log holds each
// object once, in the order it was first seen, and is what a change-tracking
// component walks to find objects touched in this unit of work. Registration
// remembers automatically; call Remember directly for objects refreshed
// outside the registries.
func (c *MappingContext) Remember(entity any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remember(entity)
}

func (c *MappingContext) remember(entity any) {
	if entity == nil || c.logged[entity] {
		return
	}
	c.logged[entity] = true
	c.log = append(c.log, entity)
}

// Log returns the shadow log in first-seen order.
func (c *MappingContext) Log() []any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]any, len(c.log))
	copy(out, c.log)
	return out
}

func (c *MappingContext) forget(entity any) {
	if entity == nil || !c.logged[entity] {
		return
	}
	delete(c.logged, entity)
	kept := c.log[:0]
	for _, logged := range c.log {
		if logged == entity {
			continue
		}
		kept = append(kept, logged)
	}
	c.log = kept
}

// RelationshipEntity returns the live object registered for a relationship
// identity, or nil.
func (c *MappingContext) RelationshipEntity(id int64) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.relEntities[id]
}

// RegisterRelationship records a reconciled relationship. When the same
// triple is registered twice, the entry carrying a relationship identity
// wins over one without.
func (c *MappingContext) RegisterRelationship(rel MappedRelationship) {
	key := relKey{start: rel.StartNodeID, typ: rel.Type, end: rel.EndNodeID}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.relationships[key]; ok {
		if existing.RelationshipID == nil && rel.RelationshipID != nil {
			existing.RelationshipID = rel.RelationshipID
		}
		return
	}
	c.relationships[key] = &rel
	c.order = append(c.order, key)
}

// HasRelationship reports whether a start/type/end triple has already been
// reconciled in this session.
func (c *MappingContext) HasRelationship(start int64, relType string, end int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.relationships[relKey{start: start, typ: relType, end: end}]
	return ok
}

// MappedRelationships returns the reconciled relationships in registration
// order.
func (c *MappingContext) MappedRelationships() []MappedRelationship {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]MappedRelationship, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, *c.relationships[key])
	}
	return out
}

// ForgetNode drops a node's registration along with every mapped
// relationship touching it. The object also leaves the shadow log: a deleted
// entity must not resurface in change tracking.
func (c *MappingContext) ForgetNode(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forget(c.nodeEntities[id])
	delete(c.nodeEntities, id)
	kept := c.order[:0]
	for _, key := range c.order {
		if key.start == id || key.end == id {
			delete(c.relationships, key)
			continue
		}
		kept = append(kept, key)
	}
	c.order = kept
}

// ForgetRelationshipEntity drops a relationship entity's registration along
// with the mapped relationship carrying its identity.
func (c *MappingContext) ForgetRelationshipEntity(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forget(c.relEntities[id])
	delete(c.relEntities, id)
	kept := c.order[:0]
	for _, key := range c.order {
		rel := c.relationships[key]
		if rel.RelationshipID != nil && *rel.RelationshipID == id {
			delete(c.relationships, key)
			continue
		}
		kept = append(kept, key)
	}
	c.order = kept
}

// Clear forgets every registered object and relationship. Objects loaded
// before Clear are no longer canonical: loading their nodes again produces
// fresh instances.
func (c *MappingContext) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodeEntities = make(map[int64]any)
	c.relEntities = make(map[int64]any)
	c.relationships = make(map[relKey]*MappedRelationship)
	c.order = nil
	c.log = nil
	c.logged = make(map[any]bool)
}

// Ref points at a graph element taking part in a pending write: either an
// element whose identity is already known, or one staged under a query
// variable awaiting an identity from the database.
type Ref struct {
	id       *int64
	variable string
}

// IdentityRef refers to an element by a known graph identity.
func IdentityRef(id int64) Ref {
	return Ref{id: &id}
}

// VariableRef refers to a staged element by its query variable.
func VariableRef(name string) Ref {
	return Ref{variable: name}
}

// Resolve returns the concrete identity behind the reference, consulting the
// variable table for staged elements.
func (r Ref) Resolve(vars map[string]int64) (int64, bool) {
	if r.id != nil {
		return *r.id, true
	}
	id, ok := vars[r.variable]
	return id, ok
}

// TransientRelationship is a relationship created during a write whose
// endpoints may still be staged under query variables. Once the database
// returns identities for the staged variables it converts into a
// MappedRelationship.
type TransientRelationship struct {
	Start Ref
	Type  string
	End   Ref
	Rel   Ref
}

// Convert resolves the staged references against the returned identities.
// Unresolvable endpoints are an error: the write reported success but the
// response named no identity for a variable the relationship depends on.
func (t TransientRelationship) Convert(vars map[string]int64) (MappedRelationship, error) {
	start, ok := t.Start.Resolve(vars)
	if !ok {
		return MappedRelationship{}, fmt.Errorf("no identity for start of %s relationship", t.Type)
	}
	end, ok := t.End.Resolve(vars)
	if !ok {
		return MappedRelationship{}, fmt.Errorf("no identity for end of %s relationship", t.Type)
	}
	mapped := MappedRelationship{StartNodeID: start, Type: t.Type, EndNodeID: end}
	if relID, ok := t.Rel.Resolve(vars); ok {
		mapped.RelationshipID = &relID
	}
	return mapped, nil
}
