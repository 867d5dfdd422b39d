package neomap

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// WriteContext tracks the objects and relationships staged by one write, so
// the identities the database assigns can be stamped back onto them. Staged
// objects are keyed by the query variable they were created under.
type WriteContext struct {
	objects    map[string]any
	staged     map[any]string
	order      []string
	transients []TransientRelationship
}

// NewWriteContext creates an empty staging context.
func NewWriteContext() *WriteContext {
	return &WriteContext{
		objects: make(map[string]any),
		staged:  make(map[any]string),
	}
}

// RegisterNew stages an object under a query variable. Staging the same
// object twice keeps its first variable.
func (w *WriteContext) RegisterNew(variable string, entity any) {
	if _, ok := w.staged[entity]; ok {
		return
	}
	w.objects[variable] = entity
	w.staged[entity] = variable
	w.order = append(w.order, variable)
}

// NewObject returns the object staged under a variable, or nil.
func (w *WriteContext) NewObject(variable string) any {
	return w.objects[variable]
}

// VariableOf returns the variable an object was staged under.
func (w *WriteContext) VariableOf(entity any) (string, bool) {
	variable, ok := w.staged[entity]
	return variable, ok
}

// Variables returns the staged variables in staging order.
func (w *WriteContext) Variables() []string {
	return w.order
}

// RegisterTransientRelationship stages a relationship whose endpoints may
// not have identities yet.
func (w *WriteContext) RegisterTransientRelationship(t TransientRelationship) {
	w.transients = append(w.transients, t)
}

// TransientLog returns the staged relationships in staging order.
func (w *WriteContext) TransientLog() []TransientRelationship {
	return w.transients
}

// CreateNodes persists entities that do not yet have a graph identity, in
// one round trip, and stamps the returned identities back onto them. Each
// created entity is registered with the session so later loads of the same
// node hand back the same object. Entities already carrying an identity are
// left untouched.
func (s *Session) CreateNodes(ctx context.Context, entities ...any) error {
	wctx := NewWriteContext()
	var patterns, returns []string
	params := make(map[string]any)

	for _, entity := range entities {
		info, err := s.meta.TypeInfoOf(entity)
		if err != nil {
			return err
		}
		if info.IsRelationshipEntity() {
			return fmt.Errorf("cannot create %s as a node: it maps a relationship, use Relate", info.Name())
		}
		if info.identityOf(entity) != nil {
			s.log.Debug("skipping entity that already has an identity",
				zap.String("entity", info.Name()))
			continue
		}
		if _, ok := wctx.VariableOf(entity); ok {
			continue
		}

		variable := fmt.Sprintf("_%d", len(wctx.Variables()))
		wctx.RegisterNew(variable, entity)
		patterns = append(patterns, fmt.Sprintf("(%s:%s $%s_props)", variable, strings.Join(info.Labels(), ":"), variable))
		returns = append(returns, fmt.Sprintf("id(%s) AS %s", variable, variable))
		params[variable+"_props"] = info.propertiesOf(entity)
	}

	if len(patterns) == 0 {
		return nil
	}

	query := fmt.Sprintf("CREATE %s RETURN %s", strings.Join(patterns, ", "), strings.Join(returns, ", "))
	result, err := s.runner.Run(ctx, query, params)
	if err != nil {
		return err
	}
	if len(result.Records) == 0 {
		return fmt.Errorf("create returned no rows")
	}

	rows := make([][]any, 0, len(result.Records))
	for _, record := range result.Records {
		rows = append(rows, record.Values)
	}
	_, err = s.reconcileRows(wctx, result.Records[0].Keys, rows)
	return err
}

// Relate creates a relationship of the given type between two persisted
// entities and returns its graph identity. The relationship is recorded in
// the session's registry so a later hydration of the same triple is not
// reprocessed.
func (s *Session) Relate(ctx context.Context, from, to any, relType string, props map[string]any) (int64, error) {
	fromInfo, err := s.meta.TypeInfoOf(from)
	if err != nil {
		return 0, err
	}
	toInfo, err := s.meta.TypeInfoOf(to)
	if err != nil {
		return 0, err
	}
	fromID := fromInfo.identityOf(from)
	if fromID == nil {
		return 0, fmt.Errorf("cannot relate unsaved entity: %s has no graph identity", fromInfo.Name())
	}
	toID := toInfo.identityOf(to)
	if toID == nil {
		return 0, fmt.Errorf("cannot relate unsaved entity: %s has no graph identity", toInfo.Name())
	}
	if props == nil {
		props = map[string]any{}
	}

	wctx := NewWriteContext()
	wctx.RegisterTransientRelationship(TransientRelationship{
		Start: IdentityRef(*fromID),
		Type:  relType,
		End:   IdentityRef(*toID),
		Rel:   VariableRef("r"),
	})

	query := fmt.Sprintf(
		"MATCH (a), (b) WHERE id(a) = $from AND id(b) = $to CREATE (a)-[r:%s $props]->(b) RETURN id(r) AS r",
		relType,
	)
	result, err := s.runner.Run(ctx, query, map[string]any{
		"from":  *fromID,
		"to":    *toID,
		"props": props,
	})
	if err != nil {
		return 0, err
	}
	if len(result.Records) == 0 {
		return 0, fmt.Errorf("relate matched no nodes for ids %d and %d", *fromID, *toID)
	}

	rows := make([][]any, 0, len(result.Records))
	for _, record := range result.Records {
		rows = append(rows, record.Values)
	}
	refs, err := s.reconcileRows(wctx, result.Records[0].Keys, rows)
	if err != nil {
		return 0, err
	}
	return refs["r"], nil
}

// Delete removes a persisted entity from the graph and forgets it in the
// session. Node entities are detach-deleted, taking their relationships with
// them; relationship entities delete only the relationship.
func (s *Session) Delete(ctx context.Context, entity any) error {
	info, err := s.meta.TypeInfoOf(entity)
	if err != nil {
		return err
	}
	id := info.identityOf(entity)
	if id == nil {
		return fmt.Errorf("cannot delete unsaved entity: %s has no graph identity", info.Name())
	}

	if info.IsRelationshipEntity() {
		_, err = s.runner.Run(ctx, "MATCH ()-[r]->() WHERE id(r) = $id DELETE r", map[string]any{"id": *id})
		if err != nil {
			return err
		}
		s.context.ForgetRelationshipEntity(*id)
		return nil
	}

	_, err = s.runner.Run(ctx, "MATCH (n) WHERE id(n) = $id DETACH DELETE n", map[string]any{"id": *id})
	if err != nil {
		return err
	}
	s.context.ForgetNode(*id)
	return nil
}

// reconcileRows folds a write response back into the session: every column
// names a staged variable and every value is the identity the database
// assigned to it. Staged objects receive their identity and join the
// registry; staged relationships resolve their references and are recorded.
// A relationship keeps its own identity only when a relationship entity is
// registered under it.
func (s *Session) reconcileRows(wctx *WriteContext, columns []string, rows [][]any) (map[string]int64, error) {
	refs := make(map[string]int64, len(columns))
	for _, row := range rows {
		for i, column := range columns {
			if i >= len(row) {
				continue
			}
			id, ok := asInt64(row[i])
			if !ok {
				return nil, fmt.Errorf("column %s holds %T, not an identity", column, row[i])
			}
			refs[column] = id

			entity := wctx.NewObject(column)
			if entity == nil {
				continue
			}
			info, err := s.meta.TypeInfoOf(entity)
			if err != nil {
				return nil, err
			}
			if err := info.setIdentity(entity, id); err != nil {
				return nil, err
			}
			if info.IsRelationshipEntity() {
				s.context.RegisterRelationshipEntity(id, entity)
			} else {
				s.context.RegisterNodeEntity(id, entity)
			}
			s.log.Debug("assigned identity to staged entity",
				zap.String("variable", column),
				zap.Int64("id", id))
		}
	}

	for _, transient := range wctx.TransientLog() {
		mapped, err := transient.Convert(refs)
		if err != nil {
			return nil, err
		}
		if mapped.RelationshipID != nil && s.context.RelationshipEntity(*mapped.RelationshipID) == nil {
			mapped.RelationshipID = nil
		}
		s.context.RegisterRelationship(mapped)
	}
	return refs, nil
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}
