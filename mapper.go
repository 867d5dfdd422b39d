package neomap

import (
	"errors"
	"fmt"
	"reflect"

	"go.uber.org/zap"
)

// Mapper hydrates graph query results into registered domain objects. It
// works in two passes: nodes first, so every object exists before any
// relationship is touched, then relationships, wiring objects together
// through their declared fields.
//
// Hydration is additive and idempotent. Mapping the same graph twice leaves
// objects unchanged; mapping overlapping graphs merges collection fields
// without duplicating or dropping elements. Properties always take the most
// recently seen value.
//
// Graph content that merely fails to line up with the registered types, such
// as nodes with unmapped labels or relationships without a matching field, is
// logged at debug level and skipped. Malformed models and unconvertible
// values abort with a MappingError.
type Mapper struct {
	meta    *Metadata
	context *MappingContext
	factory entityFactory
	log     *zap.Logger
}

// NewMapper creates a mapper hydrating into the given identity registry. A
// nil logger disables diagnostics.
func NewMapper(meta *Metadata, mctx *MappingContext, logger *zap.Logger) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mapper{
		meta:    meta,
		context: mctx,
		factory: entityFactory{meta: meta},
		log:     logger,
	}
}

// Context returns the identity registry the mapper hydrates into.
func (m *Mapper) Context() *MappingContext {
	return m.context
}

// MapAll hydrates a graph model and returns the objects of type T it
// produced, in node order with one entry per graph identity. When no nodes
// map to T the relationships are consulted instead, so relationship-entity
// queries return their entities directly.
func MapAll[T any](m *Mapper, g *GraphModel) ([]*T, error) {
	if err := m.mapGraph(g); err != nil {
		return nil, &MappingError{TypeName: reflect.TypeFor[T]().Name(), Err: err}
	}

	want := reflect.TypeFor[*T]()
	var out []*T
	seen := make(map[int64]bool)
	for _, node := range g.Nodes {
		if seen[node.ID] {
			continue
		}
		seen[node.ID] = true
		entity := m.context.NodeEntity(node.ID)
		if entity != nil && reflect.TypeOf(entity) == want {
			out = append(out, entity.(*T))
		}
	}
	if len(out) == 0 {
		seen = make(map[int64]bool)
		for _, rel := range g.Relationships {
			if seen[rel.ID] {
				continue
			}
			seen[rel.ID] = true
			entity := m.context.RelationshipEntity(rel.ID)
			if entity != nil && reflect.TypeOf(entity) == want {
				out = append(out, entity.(*T))
			}
		}
	}
	return out, nil
}

func (m *Mapper) mapGraph(g *GraphModel) error {
	if err := m.mapNodes(g); err != nil {
		return err
	}
	return m.mapRelationships(g)
}

// mapNodes materializes or refreshes one object per node. Nodes whose labels
// match no registered type are skipped.
func (m *Mapper) mapNodes(g *GraphModel) error {
	for _, node := range g.Nodes {
		entity := m.context.NodeEntity(node.ID)
		if entity == nil {
			fresh, _, err := m.factory.nodeInstance(node)
			if err != nil {
				var unregistered *UnregisteredTypeError
				if errors.As(err, &unregistered) {
					m.log.Debug("skipping node with no registered type",
						zap.Int64("node", node.ID),
						zap.Strings("labels", node.Labels))
					continue
				}
				return err
			}
			entity = m.context.RegisterNodeEntity(node.ID, fresh)
		}

		info, err := m.meta.TypeInfoOf(entity)
		if err != nil {
			return err
		}
		if err := info.setIdentity(entity, node.ID); err != nil {
			return err
		}
		if err := m.setProperties(node.Props, entity, info); err != nil {
			return err
		}
		m.context.Remember(entity)
	}
	return nil
}

// mapRelationships wires hydrated objects together. Each relationship is
// first offered to scalar fields on its endpoints; whatever cannot be placed
// one-to-one is deferred and hydrated in bulk into collection fields, one
// merged write per owner, type and direction.
func (m *Mapper) mapRelationships(g *GraphModel) error {
	var deferred []*RelationshipRecord
	queued := make(map[int64]bool)
	queue := func(rel *RelationshipRecord) {
		if !queued[rel.ID] {
			queued[rel.ID] = true
			deferred = append(deferred, rel)
		}
	}

	for _, rel := range g.Relationships {
		source := m.context.NodeEntity(rel.StartNode)
		target := m.context.NodeEntity(rel.EndNode)
		if source == nil || target == nil {
			m.log.Debug("skipping relationship with unmapped endpoints",
				zap.Int64("relationship", rel.ID),
				zap.String("type", rel.Type))
			continue
		}

		if reInfo := m.meta.ResolveRelationshipEntity(rel.Type); reInfo != nil {
			if err := m.mapRelationshipEntity(rel, source, target, reInfo, queue); err != nil {
				return err
			}
		} else if err := m.mapRelationship(rel, source, target, queue); err != nil {
			return err
		}
	}

	return m.mapOneToMany(deferred)
}

// mapRelationship places a plain relationship into scalar fields on both
// endpoints. The relationship is marked reconciled only when both sides
// accept it one-to-one; otherwise it is deferred for collection hydration.
func (m *Mapper) mapRelationship(rel *RelationshipRecord, source, target any, queue func(*RelationshipRecord)) error {
	sourceInfo, err := m.meta.TypeInfoOf(source)
	if err != nil {
		return err
	}
	targetInfo, err := m.meta.TypeInfoOf(target)
	if err != nil {
		return err
	}

	oneToOne := true
	if writer := sourceInfo.relationalWriter(rel.Type, Outgoing, target); writer != nil {
		if err := writer.Write(source, target); err != nil {
			return err
		}
	} else {
		queue(rel)
		oneToOne = false
	}
	if writer := targetInfo.relationalWriter(rel.Type, Incoming, source); writer != nil {
		if err := writer.Write(target, source); err != nil {
			return err
		}
	} else {
		queue(rel)
		oneToOne = false
	}

	if oneToOne {
		m.context.RegisterRelationship(MappedRelationship{
			StartNodeID:    rel.StartNode,
			Type:           rel.Type,
			EndNodeID:      rel.EndNode,
			RelationshipID: relIDOf(rel),
		})
	}
	return nil
}

// mapRelationshipEntity materializes the entity backing a relationship
// record, stamps its endpoints, and offers it to scalar fields on both
// endpoint objects. Sides without a scalar field defer the relationship for
// collection hydration.
func (m *Mapper) mapRelationshipEntity(rel *RelationshipRecord, source, target any, reInfo *TypeInfo, queue func(*RelationshipRecord)) error {
	re := m.context.RelationshipEntity(rel.ID)
	if re == nil {
		fresh, _, err := m.factory.relationshipInstance(rel)
		if err != nil {
			return err
		}
		re = m.context.RegisterRelationshipEntity(rel.ID, fresh)
	}
	if err := m.refreshRelationshipEntity(re, reInfo, rel, source, target); err != nil {
		return err
	}
	m.context.Remember(re)

	sourceInfo, err := m.meta.TypeInfoOf(source)
	if err != nil {
		return err
	}
	targetInfo, err := m.meta.TypeInfoOf(target)
	if err != nil {
		return err
	}

	if writer := sourceInfo.relationalWriter(rel.Type, Outgoing, re); writer != nil {
		if err := writer.Write(source, re); err != nil {
			return err
		}
		m.context.RegisterRelationship(MappedRelationship{
			StartNodeID:    rel.StartNode,
			Type:           rel.Type,
			EndNodeID:      rel.EndNode,
			RelationshipID: relIDOf(rel),
		})
	} else {
		queue(rel)
	}

	if writer := targetInfo.relationalWriter(rel.Type, Incoming, re); writer != nil {
		if err := writer.Write(target, re); err != nil {
			return err
		}
	} else {
		queue(rel)
	}
	return nil
}

// refreshRelationshipEntity stamps identity, properties and both endpoint
// references onto a relationship entity. A relationship-entity type without
// usable endpoint fields cannot represent the record and aborts the mapping.
func (m *Mapper) refreshRelationshipEntity(re any, reInfo *TypeInfo, rel *RelationshipRecord, source, target any) error {
	if err := reInfo.setIdentity(re, rel.ID); err != nil {
		return err
	}
	if err := m.setProperties(rel.Props, re, reInfo); err != nil {
		return err
	}
	if reInfo.startNode == nil {
		return &MissingEndpointError{TypeName: reInfo.Name(), Endpoint: "start node"}
	}
	if err := reInfo.startNode.Write(re, source); err != nil {
		return err
	}
	if reInfo.endNode == nil {
		return &MissingEndpointError{TypeName: reInfo.Name(), Endpoint: "end node"}
	}
	return reInfo.endNode.Write(re, target)
}

// mapOneToMany hydrates the deferred relationships into collection fields.
// Values are grouped per owner, relationship type and direction so each
// collection receives one merged write. A side whose owner has no matching
// collection field is dropped; only relationships that hydrated at least
// one side are marked reconciled.
func (m *Mapper) mapOneToMany(deferred []*RelationshipRecord) error {
	collector := newEntityCollector()
	var placed []*RelationshipRecord
	for _, rel := range deferred {
		source := m.context.NodeEntity(rel.StartNode)
		target := m.context.NodeEntity(rel.EndNode)
		sourceValue, targetValue := target, source
		if re := m.context.RelationshipEntity(rel.ID); re != nil {
			sourceValue, targetValue = re, re
		}

		mapped := m.collectIterable(collector, rel.StartNode, source, rel.Type, Outgoing, sourceValue)
		if m.collectIterable(collector, rel.EndNode, target, rel.Type, Incoming, targetValue) {
			mapped = true
		}
		if mapped {
			placed = append(placed, rel)
		}
	}

	var failure error
	collector.forEach(func(ownerID int64, relType string, direction Direction, elem reflect.Type, values []any) {
		if failure != nil {
			return
		}
		owner := m.context.NodeEntity(ownerID)
		if owner == nil {
			return
		}
		info, err := m.meta.TypeInfoOf(owner)
		if err != nil {
			failure = err
			return
		}
		if writer := info.iterableWriter(relType, direction, elem); writer != nil {
			if err := writer.WriteAll(owner, values); err != nil {
				failure = err
			}
		}
	})
	if failure != nil {
		return failure
	}

	for _, rel := range placed {
		m.context.RegisterRelationship(MappedRelationship{
			StartNodeID:    rel.StartNode,
			Type:           rel.Type,
			EndNodeID:      rel.EndNode,
			RelationshipID: relIDOf(rel),
		})
	}
	return nil
}

// collectIterable queues a value for the owner's matching collection field,
// reporting whether one exists. A side without one is dropped with a
// diagnostic.
func (m *Mapper) collectIterable(collector *entityCollector, ownerID int64, owner any, relType string, direction Direction, value any) bool {
	info, err := m.meta.TypeInfoOf(owner)
	if err != nil {
		return false
	}
	if info.iterableWriter(relType, direction, reflect.TypeOf(value)) == nil {
		m.log.Debug("no collection field for relationship group",
			zap.Int64("owner", ownerID),
			zap.String("type", relType),
			zap.String("direction", string(direction)))
		return false
	}
	collector.collect(ownerID, relType, direction, value)
	return true
}

// setProperties writes record properties onto an entity. Properties the type
// does not map are skipped.
func (m *Mapper) setProperties(props map[string]any, entity any, info *TypeInfo) error {
	for key, value := range props {
		writer := info.propertyWriter(key)
		if writer == nil {
			m.log.Debug("no field for property",
				zap.String("property", key),
				zap.String("entity", info.Name()))
			continue
		}
		if err := writer.Write(entity, value); err != nil {
			return fmt.Errorf("%s: %w", info.Name(), err)
		}
	}
	return nil
}

func relIDOf(rel *RelationshipRecord) *int64 {
	id := rel.ID
	return &id
}
