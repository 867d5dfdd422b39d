package neomap

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// entityKind distinguishes node-backed from relationship-backed domain types.
type entityKind int

const (
	nodeEntity entityKind = iota
	relationshipEntity
)

// Metadata is the schema registry: a startup-time table mapping domain struct
// types to their persistence descriptors. Types are registered once, before
// mapping begins; lookups are safe for concurrent use afterwards.
//
// Registration parses the `graph` struct tags of a type exactly once and
// pre-computes every field accessor, so the mapping hot path never probes
// struct shapes at runtime.
type Metadata struct {
	mu        sync.RWMutex
	byType    map[reflect.Type]*TypeInfo
	byLabel   map[string]*TypeInfo
	byRelType map[string]*TypeInfo
}

// NewMetadata creates an empty schema registry.
func NewMetadata() *Metadata {
	return &Metadata{
		byType:    make(map[reflect.Type]*TypeInfo),
		byLabel:   make(map[string]*TypeInfo),
		byRelType: make(map[string]*TypeInfo),
	}
}

// RegisterNode registers a node-backed domain type. The entity argument must
// be a pointer to a struct carrying `graph` tags; labels default to the
// struct's type name when none are given.
//
// Registering the same type again is a no-op; registering a label already
// owned by a different type is an error.
func (m *Metadata) RegisterNode(entity any, labels ...string) error {
	typ, err := structTypeOf(entity)
	if err != nil {
		return err
	}
	if len(labels) == 0 {
		labels = []string{typ.Name()}
	}

	info, err := parseType(typ, nodeEntity)
	if err != nil {
		return err
	}
	info.labels = labels

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byType[typ]; ok {
		return nil
	}
	for _, label := range labels {
		if owner, ok := m.byLabel[label]; ok && owner.typ != typ {
			return fmt.Errorf("label %s is already registered to %s", label, owner.name)
		}
	}
	m.byType[typ] = info
	for _, label := range labels {
		m.byLabel[label] = info
	}
	return nil
}

// RegisterRelationship registers a relationship-entity type: a domain struct
// materialized from relationship records of the given type, carrying its own
// properties and start/end node fields.
func (m *Metadata) RegisterRelationship(entity any, relType string) error {
	typ, err := structTypeOf(entity)
	if err != nil {
		return err
	}
	if relType == "" {
		return fmt.Errorf("relationship entity %s needs a relationship type", typ.Name())
	}

	info, err := parseType(typ, relationshipEntity)
	if err != nil {
		return err
	}
	info.relType = relType

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byType[typ]; ok {
		return nil
	}
	if owner, ok := m.byRelType[relType]; ok && owner.typ != typ {
		return fmt.Errorf("relationship type %s is already registered to %s", relType, owner.name)
	}
	m.byType[typ] = info
	m.byRelType[relType] = info
	return nil
}

// TypeInfoOf returns the descriptor for an entity instance, or an error when
// its type was never registered.
func (m *Metadata) TypeInfoOf(entity any) (*TypeInfo, error) {
	typ, err := structTypeOf(entity)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.byType[typ]
	if !ok {
		return nil, fmt.Errorf("type %s is not registered", typ.Name())
	}
	return info, nil
}

// typeInfoFor returns the descriptor for a struct type, if registered.
func (m *Metadata) typeInfoFor(typ reflect.Type) (*TypeInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.byType[typ]
	return info, ok
}

// typeForLabel returns the descriptor owning a node label, if any.
func (m *Metadata) typeForLabel(label string) (*TypeInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.byLabel[label]
	return info, ok
}

// ResolveRelationshipEntity reports whether a relationship type is backed by
// a registered relationship-entity type. It returns nil for plain
// relationships, which hydrate directly onto their endpoints.
func (m *Metadata) ResolveRelationshipEntity(relType string) *TypeInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byRelType[relType]
}

// structTypeOf unwraps a registration argument down to its struct type.
func structTypeOf(entity any) (reflect.Type, error) {
	if entity == nil {
		return nil, fmt.Errorf("entity must be a non-nil pointer to struct")
	}
	typ := reflect.TypeOf(entity)
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("type %s is not a struct", typ.Name())
	}
	return typ, nil
}

// TypeInfo is the immutable persistence descriptor of one registered domain
// type: its identity field, property fields keyed by property key, declared
// relationship fields, and, for relationship entities, the two endpoint
// fields.
type TypeInfo struct {
	name    string
	typ     reflect.Type
	kind    entityKind
	labels  []string
	relType string

	identity   *FieldInfo
	properties map[string]*FieldInfo
	relations  []*FieldInfo
	startNode  *FieldInfo
	endNode    *FieldInfo
}

// Name returns the Go type name of the described struct.
func (t *TypeInfo) Name() string { return t.name }

// Labels returns the node labels the type was registered under. It is empty
// for relationship entities.
func (t *TypeInfo) Labels() []string { return t.labels }

// RelationshipType returns the relationship type a relationship entity was
// registered under, or the empty string for node types.
func (t *TypeInfo) RelationshipType() string { return t.relType }

// IsRelationshipEntity reports whether the type materializes from
// relationship records rather than node records.
func (t *TypeInfo) IsRelationshipEntity() bool { return t.kind == relationshipEntity }

// newInstance allocates a fresh zero value of the described type.
func (t *TypeInfo) newInstance() any {
	return reflect.New(t.typ).Interface()
}

// fieldRole classifies what a tagged struct field holds.
type fieldRole int

const (
	roleIdentity fieldRole = iota
	roleProperty
	roleRelationship
	roleStartNode
	roleEndNode
)

// FieldInfo is a pre-resolved accessor for one tagged struct field. It is
// computed once at registration and carries everything the mapper needs to
// read and write the field without re-inspecting the struct: the field index,
// its role, the relationship type and direction where applicable, and the
// element type used to match candidate values.
type FieldInfo struct {
	name      string
	index     int
	role      fieldRole
	key       string
	relType   string
	direction Direction
	typ       reflect.Type
	elem      reflect.Type
	iterable  bool
}

// Name returns the struct field name.
func (f *FieldInfo) Name() string { return f.name }

// Scalar reports whether the field holds at most one related object.
func (f *FieldInfo) Scalar() bool { return !f.iterable }

// Iterable reports whether the field holds a collection of related objects.
func (f *FieldInfo) Iterable() bool { return f.iterable }

// Direction returns the declared relationship direction of the field.
func (f *FieldInfo) Direction() Direction { return f.direction }

// the tag key shared by all neomap field annotations.
const tagKey = "graph"

// parseType inspects a struct type and extracts its persistence descriptor
// from `graph` struct tags. Fields without a tag are not part of the mapping.
//
// Recognized tag forms:
//
//	graph:"id"                          identity field, must be *int64
//	graph:"property:<key>"              property field
//	graph:"rel:<TYPE>"                  relationship field, outgoing by default
//	graph:"rel:<TYPE>,direction:<dir>"  relationship field with explicit direction
//	graph:"startNode" / graph:"endNode" endpoint fields of a relationship entity
func parseType(typ reflect.Type, kind entityKind) (*TypeInfo, error) {
	info := &TypeInfo{
		name:       typ.Name(),
		typ:        typ,
		kind:       kind,
		properties: make(map[string]*FieldInfo),
	}

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag := field.Tag.Get(tagKey)
		if tag == "" {
			continue
		}

		parsed, err := parseField(field, i, tag)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", typ.Name(), field.Name, err)
		}

		switch parsed.role {
		case roleIdentity:
			if info.identity != nil {
				return nil, fmt.Errorf("%s declares more than one identity field", typ.Name())
			}
			info.identity = parsed
		case roleProperty:
			if _, ok := info.properties[parsed.key]; ok {
				return nil, fmt.Errorf("%s maps property %s twice", typ.Name(), parsed.key)
			}
			info.properties[parsed.key] = parsed
		case roleRelationship:
			if kind == relationshipEntity {
				return nil, fmt.Errorf("%s.%s: relationship entities cannot declare relationship fields", typ.Name(), field.Name)
			}
			info.relations = append(info.relations, parsed)
		case roleStartNode:
			if kind != relationshipEntity {
				return nil, fmt.Errorf("%s.%s: startNode is only valid on relationship entities", typ.Name(), field.Name)
			}
			if info.startNode != nil {
				return nil, fmt.Errorf("%s declares more than one startNode field", typ.Name())
			}
			info.startNode = parsed
		case roleEndNode:
			if kind != relationshipEntity {
				return nil, fmt.Errorf("%s.%s: endNode is only valid on relationship entities", typ.Name(), field.Name)
			}
			if info.endNode != nil {
				return nil, fmt.Errorf("%s declares more than one endNode field", typ.Name())
			}
			info.endNode = parsed
		}
	}

	if info.identity == nil {
		return nil, fmt.Errorf("no identity field ('graph:\"id\"') defined for struct %s", typ.Name())
	}
	return info, nil
}

// parseField interprets one field's tag into a FieldInfo.
func parseField(field reflect.StructField, index int, tag string) (*FieldInfo, error) {
	fi := &FieldInfo{
		name:      field.Name,
		index:     index,
		typ:       field.Type,
		direction: Outgoing,
	}

	roleSet := false
	setRole := func(role fieldRole) error {
		if roleSet {
			return fmt.Errorf("tag %q declares more than one field role", tag)
		}
		roleSet = true
		fi.role = role
		return nil
	}

	for _, part := range strings.Split(tag, ",") {
		switch {
		case part == "id":
			if err := setRole(roleIdentity); err != nil {
				return nil, err
			}
		case part == "startNode":
			if err := setRole(roleStartNode); err != nil {
				return nil, err
			}
		case part == "endNode":
			if err := setRole(roleEndNode); err != nil {
				return nil, err
			}
		case strings.HasPrefix(part, "property:"):
			if err := setRole(roleProperty); err != nil {
				return nil, err
			}
			fi.key = strings.TrimPrefix(part, "property:")
		case strings.HasPrefix(part, "rel:"):
			if err := setRole(roleRelationship); err != nil {
				return nil, err
			}
			fi.relType = strings.TrimPrefix(part, "rel:")
		case strings.HasPrefix(part, "direction:"):
			dir, err := parseDirection(strings.TrimPrefix(part, "direction:"))
			if err != nil {
				return nil, err
			}
			fi.direction = dir
		default:
			return nil, fmt.Errorf("unrecognized tag component %q", part)
		}
	}
	if !roleSet {
		return nil, fmt.Errorf("tag %q does not declare what the field maps", tag)
	}

	switch fi.role {
	case roleIdentity:
		if field.Type.Kind() != reflect.Ptr || field.Type.Elem().Kind() != reflect.Int64 {
			return nil, fmt.Errorf("identity field must be *int64, not %s", field.Type)
		}
		fi.elem = field.Type.Elem()

	case roleProperty:
		if fi.key == "" {
			return nil, fmt.Errorf("property tag is missing its key")
		}
		fi.elem = field.Type

	case roleRelationship:
		if fi.relType == "" {
			return nil, fmt.Errorf("rel tag is missing its relationship type")
		}
		switch field.Type.Kind() {
		case reflect.Ptr:
			if field.Type.Elem().Kind() != reflect.Struct {
				return nil, fmt.Errorf("scalar relationship field must point at a struct, not %s", field.Type)
			}
			fi.elem = field.Type
		case reflect.Slice:
			elem := field.Type.Elem()
			if elem.Kind() != reflect.Ptr || elem.Elem().Kind() != reflect.Struct {
				return nil, fmt.Errorf("collection relationship field must be a slice of struct pointers, not %s", field.Type)
			}
			fi.iterable = true
			fi.elem = elem
		default:
			return nil, fmt.Errorf("relationship field must be *T or []*T, not %s", field.Type)
		}

	case roleStartNode, roleEndNode:
		if field.Type.Kind() != reflect.Ptr || field.Type.Elem().Kind() != reflect.Struct {
			return nil, fmt.Errorf("endpoint field must point at a struct, not %s", field.Type)
		}
		fi.elem = field.Type
	}

	return fi, nil
}

// parseDirection maps a tag value onto a Direction.
func parseDirection(raw string) (Direction, error) {
	switch strings.ToLower(raw) {
	case "outgoing":
		return Outgoing, nil
	case "incoming":
		return Incoming, nil
	case "undirected":
		return Undirected, nil
	default:
		return "", fmt.Errorf("unknown direction %q", raw)
	}
}
