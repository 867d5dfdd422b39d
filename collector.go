package neomap

import "reflect"

// collectorKey groups queued values by the owner they hydrate into and the
// relationship type, direction and element type they arrived through.
type collectorKey struct {
	ownerID   int64
	relType   string
	direction Direction
	elem      reflect.Type
}

type collectorGroup struct {
	values []any
	seen   map[any]bool
}

// entityCollector batches related objects destined for collection fields, so
// that every owner receives a single merged write per relationship type and
// direction instead of one write per edge. Groups preserve first-seen order
// and never hold the same object twice.
type entityCollector struct {
	groups map[collectorKey]*collectorGroup
	order  []collectorKey
}

func newEntityCollector() *entityCollector {
	return &entityCollector{groups: make(map[collectorKey]*collectorGroup)}
}

// collect queues one related object for an owner.
func (ec *entityCollector) collect(ownerID int64, relType string, direction Direction, related any) {
	key := collectorKey{
		ownerID:   ownerID,
		relType:   relType,
		direction: direction,
		elem:      reflect.TypeOf(related),
	}
	group, ok := ec.groups[key]
	if !ok {
		group = &collectorGroup{seen: make(map[any]bool)}
		ec.groups[key] = group
		ec.order = append(ec.order, key)
	}
	if !group.seen[related] {
		group.seen[related] = true
		group.values = append(group.values, related)
	}
}

// forEach visits the collected groups in first-collection order.
func (ec *entityCollector) forEach(fn func(ownerID int64, relType string, direction Direction, elem reflect.Type, values []any)) {
	for _, key := range ec.order {
		group := ec.groups[key]
		fn(key.ownerID, key.relType, key.direction, key.elem, group.values)
	}
}
