package di

import "reflect"

// Key is the fundamental addressing unit of the container: either a
// nominal type or an opaque string name. Keys are comparable values and
// safe to use as map keys.
type Key struct {
	name string
	typ  reflect.Type
}

// Named creates a key addressed by an opaque name.
func Named(name string) Key {
	return Key{name: name}
}

// TypeKey creates a key addressed by a type.
func TypeKey(t reflect.Type) Key {
	return Key{typ: t}
}

// KeyOf creates a type key for T. Works for interface types as well as
// concrete ones.
func KeyOf[T any]() Key {
	return Key{typ: reflect.TypeOf((*T)(nil)).Elem()}
}

// KeyFor creates a type key from a live value's dynamic type.
func KeyFor(v any) Key {
	return Key{typ: reflect.TypeOf(v)}
}

// IsZero reports whether the key addresses nothing.
func (k Key) IsZero() bool {
	return k.name == "" && k.typ == nil
}

// IsType reports whether the key is a type key.
func (k Key) IsType() bool {
	return k.typ != nil
}

// IsName reports whether the key is a name key.
func (k Key) IsName() bool {
	return k.typ == nil && k.name != ""
}

// Type returns the key's type, or nil for name keys.
func (k Key) Type() reflect.Type {
	return k.typ
}

// Name returns the key's name, or "" for type keys.
func (k Key) Name() string {
	return k.name
}

// String renders the key for diagnostics: the type's string form for type
// keys, the quoted name for name keys.
func (k Key) String() string {
	if k.typ != nil {
		return k.typ.String()
	}
	if k.name != "" {
		return k.name
	}
	return "<zero key>"
}
