package format

import "io"

// Nullable wraps a value of type T with a present/absent flag, encoded
// on the wire as a single flag byte (0 = absent, 1 = present) followed
// by the inner encoding when present.
//
// String nullability does not use Nullable: the string wire format has
// its own null sentinel baked into its length prefix (see
// WriteNullableString / ReadNullableString).
type Nullable[T any] struct {
	Valid bool
	Value T
}

// GetNullable derives a Formatter[Nullable[T]] from the registry's
// Formatter[T], without requiring a separate Register call per T.
func GetNullable[T any](reg *Registry) (Formatter[Nullable[T]], error) {
	inner, err := Get[T](reg)
	if err != nil {
		return Formatter[Nullable[T]]{}, err
	}

	return Formatter[Nullable[T]]{
		Serialize: func(w Writer, v Nullable[T]) error {
			if !v.Valid {
				_, err := w.Write([]byte{0})
				return err
			}
			if _, err := w.Write([]byte{1}); err != nil {
				return err
			}
			return inner.Serialize(w, v.Value)
		},
		Deserialize: func(r Reader) (Nullable[T], error) {
			var flag [1]byte
			if _, err := io.ReadFull(asReader(r), flag[:]); err != nil {
				return Nullable[T]{}, err
			}
			switch flag[0] {
			case 0:
				return Nullable[T]{}, nil
			case 1:
				val, err := inner.Deserialize(r)
				if err != nil {
					return Nullable[T]{}, err
				}
				return Nullable[T]{Valid: true, Value: val}, nil
			default:
				return Nullable[T]{}, ErrInvalidNullable
			}
		},
	}, nil
}
