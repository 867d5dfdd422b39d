package neomap

import (
	"fmt"
	"math"
	"reflect"
)

// Write assigns a value to the field on the given entity, coercing stored
// graph values (int64, float64, []any and friends) into the field's Go type.
// A value that cannot be represented in the field is an error.
func (f *FieldInfo) Write(entity any, value any) error {
	field, err := f.fieldOf(entity)
	if err != nil {
		return err
	}
	coerced, err := coerce(value, field.Type())
	if err != nil {
		return fmt.Errorf("writing field %s: %w", f.name, err)
	}
	field.Set(coerced)
	return nil
}

// WriteAll merges values into a collection field. Elements already present
// are kept in place, new ones append in encounter order, and an element
// never appears twice. Only iterable fields accept WriteAll.
func (f *FieldInfo) WriteAll(entity any, values []any) error {
	if !f.iterable {
		return fmt.Errorf("field %s is not a collection", f.name)
	}
	field, err := f.fieldOf(entity)
	if err != nil {
		return err
	}

	merged := reflect.MakeSlice(field.Type(), 0, field.Len()+len(values))
	seen := make(map[any]bool, field.Len()+len(values))
	for i := 0; i < field.Len(); i++ {
		elem := field.Index(i)
		if key := elem.Interface(); !seen[key] {
			seen[key] = true
			merged = reflect.Append(merged, elem)
		}
	}
	for _, value := range values {
		rv := reflect.ValueOf(value)
		if !rv.IsValid() || !rv.Type().AssignableTo(f.elem) {
			return fmt.Errorf("field %s cannot hold a %T", f.name, value)
		}
		if key := rv.Interface(); !seen[key] {
			seen[key] = true
			merged = reflect.Append(merged, rv)
		}
	}
	field.Set(merged)
	return nil
}

// Read returns the field's current value from the given entity.
func (f *FieldInfo) Read(entity any) any {
	field, err := f.fieldOf(entity)
	if err != nil {
		return nil
	}
	return field.Interface()
}

// fieldOf locates the addressable field value inside an entity pointer.
func (f *FieldInfo) fieldOf(entity any) (reflect.Value, error) {
	rv := reflect.ValueOf(entity)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return reflect.Value{}, fmt.Errorf("entity must be a non-nil pointer")
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("entity must point at a struct")
	}
	return rv.Field(f.index), nil
}

// coerce converts a stored graph value into the target field type. Exact
// matches pass through, pointers allocate, numeric widths convert when the
// value fits, and []any unpacks element-wise into typed slices. Anything
// else is an error.
func coerce(value any, target reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(target), nil
	}
	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(target) {
		return rv, nil
	}

	switch {
	case target.Kind() == reflect.Ptr:
		inner, err := coerce(value, target.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(target.Elem())
		ptr.Elem().Set(inner)
		return ptr, nil

	case isNumeric(rv.Kind()) && isNumeric(target.Kind()):
		return convertNumeric(rv, target)

	case target.Kind() == reflect.Slice && rv.Kind() == reflect.Slice:
		out := reflect.MakeSlice(target, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elem := rv.Index(i).Interface()
			coerced, err := coerce(elem, target.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out = reflect.Append(out, coerced)
		}
		return out, nil
	}

	return reflect.Value{}, fmt.Errorf("cannot store %T into %s", value, target)
}

// convertNumeric moves a numeric value across widths and kinds. Integer
// targets take only values they can represent exactly; fractional floats
// and out-of-range values are errors rather than silent truncations. Float
// targets take any numeric source within their range.
func convertNumeric(rv reflect.Value, target reflect.Type) (reflect.Value, error) {
	out := reflect.New(target).Elem()
	lossy := func() (reflect.Value, error) {
		return reflect.Value{}, fmt.Errorf("cannot store %v into %s exactly", rv.Interface(), target)
	}

	switch target.Kind() {
	case reflect.Float32, reflect.Float64:
		f := rv.Convert(reflect.TypeOf(float64(0))).Float()
		if out.OverflowFloat(f) {
			return lossy()
		}
		out.SetFloat(f)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var u uint64
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64:
			f := rv.Float()
			if f != math.Trunc(f) || f < 0 || f >= float64(math.MaxUint64) {
				return lossy()
			}
			u = uint64(f)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			u = rv.Uint()
		default:
			if rv.Int() < 0 {
				return lossy()
			}
			u = uint64(rv.Int())
		}
		if out.OverflowUint(u) {
			return lossy()
		}
		out.SetUint(u)

	default:
		var i int64
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64:
			f := rv.Float()
			if f != math.Trunc(f) || f < float64(math.MinInt64) || f >= float64(math.MaxInt64) {
				return lossy()
			}
			i = int64(f)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if rv.Uint() > math.MaxInt64 {
				return lossy()
			}
			i = int64(rv.Uint())
		default:
			i = rv.Int()
		}
		if out.OverflowInt(i) {
			return lossy()
		}
		out.SetInt(i)
	}
	return out, nil
}

func isNumeric(kind reflect.Kind) bool {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// propertyWriter returns the field mapped to a property key, or nil when the
// type does not map it.
func (t *TypeInfo) propertyWriter(key string) *FieldInfo {
	return t.properties[key]
}

// relationalWriter returns the scalar relationship field that can hold the
// given value for a relationship of the given type and direction. A field
// declared undirected accepts either direction. Returns nil when no scalar
// field fits; the relationship may still land in a collection field later.
func (t *TypeInfo) relationalWriter(relType string, direction Direction, value any) *FieldInfo {
	valueType := reflect.TypeOf(value)
	for _, field := range t.relations {
		if field.iterable || field.relType != relType {
			continue
		}
		if !directionMatches(field.direction, direction) {
			continue
		}
		if valueType != nil && !valueType.AssignableTo(field.elem) {
			continue
		}
		return field
	}
	return nil
}

// iterableWriter returns the collection field that holds elements of the
// given type for a relationship of the given type and direction, or nil.
func (t *TypeInfo) iterableWriter(relType string, direction Direction, elem reflect.Type) *FieldInfo {
	for _, field := range t.relations {
		if !field.iterable || field.relType != relType {
			continue
		}
		if !directionMatches(field.direction, direction) {
			continue
		}
		if elem != nil && !elem.AssignableTo(field.elem) {
			continue
		}
		return field
	}
	return nil
}

// directionMatches reports whether a field declared with one direction can
// receive a relationship arriving with another.
func directionMatches(declared, requested Direction) bool {
	return declared == requested || declared == Undirected
}

// propertiesOf reads the mapped property fields of an entity into a map
// keyed by property key. Nil pointer fields are left out rather than stored
// as nulls.
func (t *TypeInfo) propertiesOf(entity any) map[string]any {
	props := make(map[string]any, len(t.properties))
	for key, field := range t.properties {
		value := field.Read(entity)
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Ptr {
			if rv.IsNil() {
				continue
			}
			value = rv.Elem().Interface()
		}
		props[key] = value
	}
	return props
}

// identityOf reads the identity pointer of an entity, nil when unsaved.
func (t *TypeInfo) identityOf(entity any) *int64 {
	id, _ := t.identity.Read(entity).(*int64)
	return id
}

// setIdentity stamps a graph identity onto an entity.
func (t *TypeInfo) setIdentity(entity any, id int64) error {
	return t.identity.Write(entity, id)
}
