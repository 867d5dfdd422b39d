package neomap

// entityFactory allocates fresh domain objects for incoming graph records.
type entityFactory struct {
	meta *Metadata
}

// nodeInstance creates the domain object registered for a node's labels. The
// first label owned by a registered type wins; a node whose labels match no
// registered type yields an UnregisteredTypeError.
func (f entityFactory) nodeInstance(node *NodeRecord) (any, *TypeInfo, error) {
	for _, label := range node.Labels {
		if info, ok := f.meta.typeForLabel(label); ok {
			return info.newInstance(), info, nil
		}
	}
	return nil, nil, &UnregisteredTypeError{Labels: node.Labels}
}

// relationshipInstance creates the relationship entity registered for a
// relationship record's type.
func (f entityFactory) relationshipInstance(rel *RelationshipRecord) (any, *TypeInfo, error) {
	info := f.meta.ResolveRelationshipEntity(rel.Type)
	if info == nil {
		return nil, nil, &UnregisteredTypeError{Labels: []string{rel.Type}}
	}
	return info.newInstance(), info, nil
}
