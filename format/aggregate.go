package format

// Aggregate types compose primitive formatters themselves rather than
// being discovered by reflection: a type implements FieldEncoder and
// FieldDecoder, writing/reading its fields in declaration order (or
// whatever explicit order its methods choose) and skipping any field it
// considers ignored. This keeps dispatch at the registry's O(1)
// primitive lookup instead of paying a per-field reflection cost for
// composites, at the price of a few lines of boilerplate per aggregate
// type.
//
// Example:
//
//	type Greeting struct {
//	    Name string
//	    Age  int32
//	}
//
//	func (g Greeting) EncodeFields(reg *Registry, w Writer) error {
//	    if err := WriteField(reg, w, g.Name); err != nil {
//	        return err
//	    }
//	    return WriteField(reg, w, g.Age)
//	}
type FieldEncoder interface {
	EncodeFields(reg *Registry, w Writer) error
}

// FieldDecoder mirrors FieldEncoder for decoding; implementations
// typically take a pointer receiver so fields can be assigned in place.
type FieldDecoder interface {
	DecodeFields(reg *Registry, r Reader) error
}

// EncodeAggregate writes v's fields via its FieldEncoder implementation.
func EncodeAggregate(reg *Registry, w Writer, v FieldEncoder) error {
	return v.EncodeFields(reg, w)
}

// DecodeAggregate reads into v's fields via its FieldDecoder
// implementation.
func DecodeAggregate(reg *Registry, r Reader, v FieldDecoder) error {
	return v.DecodeFields(reg, r)
}

// WriteField is a convenience for FieldEncoder implementations: it
// resolves T's formatter from reg and serializes v.
func WriteField[T any](reg *Registry, w Writer, v T) error {
	f, err := Get[T](reg)
	if err != nil {
		return err
	}
	return f.Serialize(w, v)
}

// ReadField is a convenience for FieldDecoder implementations: it
// resolves T's formatter from reg and deserializes the next value.
func ReadField[T any](reg *Registry, r Reader) (T, error) {
	f, err := Get[T](reg)
	if err != nil {
		var zero T
		return zero, err
	}
	return f.Deserialize(r)
}
