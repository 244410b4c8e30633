package di

import (
	"reflect"
	"sync"
)

// index names used by the locator's secondary indexes.
const (
	indexQualifier = "qualifier"
	indexTag       = "tag"
	indexName      = "name"
	indexPrimary   = "primary"
	indexLazy      = "lazy"
)

type compatPair struct {
	candidate reflect.Type
	required  reflect.Type
}

// Locator is the read-only query facade over the descriptor table.
// Filter methods return a narrowed view sharing the underlying table;
// the table itself is never mutated through a Locator.
type Locator struct {
	metadata map[Key]*Descriptor
	order    []Key
	indexes  map[string]map[string][]Key

	// candidates is the filter-chain selection; nil means "all keys".
	candidates map[Key]struct{}

	// compat memoizes type-compatibility checks per (candidate, required)
	// pair so structural matching is evaluated once per query shape.
	compatMu *sync.RWMutex
	compat   map[compatPair]bool
}

// NewLocator builds a locator over a descriptor table. The order slice is
// the registration order, used as the final tie-break everywhere.
func NewLocator(metadata map[Key]*Descriptor, order []Key) *Locator {
	l := &Locator{
		metadata: metadata,
		order:    order,
		indexes:  make(map[string]map[string][]Key),
		compatMu: &sync.RWMutex{},
		compat:   make(map[compatPair]bool),
	}
	l.rebuildIndexes()
	return l
}

func (l *Locator) rebuildIndexes() {
	add := func(idx, val string, key Key) {
		bucket := l.indexes[idx]
		if bucket == nil {
			bucket = make(map[string][]Key)
			l.indexes[idx] = bucket
		}
		bucket[val] = append(bucket[val], key)
	}
	for _, k := range l.order {
		md, ok := l.metadata[k]
		if !ok {
			continue
		}
		for _, q := range md.Qualifiers {
			add(indexQualifier, q, k)
		}
		for _, t := range md.Tags {
			add(indexTag, t, k)
		}
		if md.Name != "" {
			add(indexName, md.Name, k)
		}
		if md.Primary {
			add(indexPrimary, "true", k)
		}
		if md.Lazy {
			add(indexLazy, "true", k)
		} else {
			add(indexLazy, "false", k)
		}
	}
}

// Descriptor returns the registration record for an exact key.
func (l *Locator) Descriptor(key Key) (*Descriptor, bool) {
	md, ok := l.metadata[key]
	return md, ok
}

// Len returns the number of descriptors in the table.
func (l *Locator) Len() int {
	return len(l.metadata)
}

func (l *Locator) selected() map[Key]struct{} {
	if l.candidates != nil {
		return l.candidates
	}
	all := make(map[Key]struct{}, len(l.metadata))
	for k := range l.metadata {
		all[k] = struct{}{}
	}
	return all
}

func (l *Locator) narrowed(candidates map[Key]struct{}) *Locator {
	nl := *l
	nl.candidates = candidates
	return &nl
}

func (l *Locator) selectIndex(name string, values ...string) map[Key]struct{} {
	out := make(map[Key]struct{})
	idx := l.indexes[name]
	for _, v := range values {
		for _, k := range idx[v] {
			out[k] = struct{}{}
		}
	}
	return out
}

// WithIndexAny narrows to keys matching any of the given index values.
func (l *Locator) WithIndexAny(name string, values ...string) *Locator {
	base := l.selected()
	sel := l.selectIndex(name, values...)
	out := make(map[Key]struct{})
	for k := range base {
		if _, ok := sel[k]; ok {
			out[k] = struct{}{}
		}
	}
	return l.narrowed(out)
}

// WithIndexAll narrows to keys matching every one of the given index values.
func (l *Locator) WithIndexAll(name string, values ...string) *Locator {
	cur := l.selected()
	for _, v := range values {
		sel := l.selectIndex(name, v)
		next := make(map[Key]struct{})
		for k := range cur {
			if _, ok := sel[k]; ok {
				next[k] = struct{}{}
			}
		}
		cur = next
	}
	return l.narrowed(cur)
}

// WithQualifierAny narrows to descriptors carrying any of the qualifiers.
func (l *Locator) WithQualifierAny(qs ...string) *Locator {
	return l.WithIndexAny(indexQualifier, qs...)
}

// WithQualifierAll narrows to descriptors carrying all of the qualifiers.
func (l *Locator) WithQualifierAll(qs ...string) *Locator {
	return l.WithIndexAll(indexQualifier, qs...)
}

// WithTagAny narrows to descriptors carrying any of the tags.
func (l *Locator) WithTagAny(tags ...string) *Locator {
	return l.WithIndexAny(indexTag, tags...)
}

// PrimaryOnly narrows to descriptors flagged primary.
func (l *Locator) PrimaryOnly() *Locator {
	return l.WithIndexAny(indexPrimary, "true")
}

// LazyOnly narrows by the lazy flag.
func (l *Locator) LazyOnly(lazy bool) *Locator {
	if lazy {
		return l.WithIndexAny(indexLazy, "true")
	}
	return l.WithIndexAny(indexLazy, "false")
}

// ByName narrows to descriptors with the given declared names.
func (l *Locator) ByName(names ...string) *Locator {
	return l.WithIndexAny(indexName, names...)
}

// Keys returns the current candidate set in registration order.
func (l *Locator) Keys() []Key {
	sel := l.selected()
	out := make([]Key, 0, len(sel))
	for _, k := range l.order {
		if _, ok := sel[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// Compatible reports whether a candidate type satisfies a required type:
// identical, assignable (subtype), or implementing the required interface
// with either value or pointer receivers. Results are memoized per pair;
// the check runs against the descriptor table only, never live instances.
func (l *Locator) Compatible(candidate, required reflect.Type) bool {
	if candidate == nil || required == nil {
		return false
	}
	if candidate == required {
		return true
	}
	pair := compatPair{candidate: candidate, required: required}
	l.compatMu.RLock()
	if ok, hit := l.compat[pair]; hit {
		l.compatMu.RUnlock()
		return ok
	}
	l.compatMu.RUnlock()

	ok := compatibleTypes(candidate, required)

	l.compatMu.Lock()
	l.compat[pair] = ok
	l.compatMu.Unlock()
	return ok
}

func compatibleTypes(candidate, required reflect.Type) bool {
	if candidate.AssignableTo(required) {
		return true
	}
	if required.Kind() == reflect.Interface {
		if candidate.Implements(required) {
			return true
		}
		if candidate.Kind() != reflect.Pointer && reflect.PointerTo(candidate).Implements(required) {
			return true
		}
	}
	return false
}

// CollectByType returns, in registration order, every candidate key whose
// component type is compatible with t, optionally filtered by qualifier.
func (l *Locator) CollectByType(t reflect.Type, qualifier string) []Key {
	var out []Key
	sel := l.selected()
	for _, k := range l.order {
		if _, ok := sel[k]; !ok {
			continue
		}
		md := l.metadata[k]
		typ := md.ComponentType()
		if typ == nil {
			continue
		}
		if !l.Compatible(typ, t) {
			continue
		}
		if qualifier != "" && !md.HasQualifier(qualifier) {
			continue
		}
		out = append(out, k)
	}
	return out
}

// FindKeyByName resolves a declared name (or bare type name) to a bound
// key. Declared names win over type-name matches.
func (l *Locator) FindKeyByName(name string) (Key, bool) {
	for _, k := range l.order {
		if md, ok := l.metadata[k]; ok && md.Name == name {
			return k, true
		}
	}
	for _, k := range l.order {
		md, ok := l.metadata[k]
		if !ok {
			continue
		}
		typ := md.ComponentType()
		if typ != nil && typ.Name() == name {
			return k, true
		}
	}
	return Key{}, false
}

// CanonicalKey maps a requested key to the concrete registry key the
// orchestrator will use. Exact bindings win; type keys fall back to a
// compatible-type search (primary first, then first registered); name
// keys fall back to declared-name lookup. Unresolvable keys pass through
// unchanged and fail at the provider-lookup step.
func (l *Locator) CanonicalKey(key Key) Key {
	if _, ok := l.metadata[key]; ok {
		return key
	}
	if key.IsType() {
		matches := l.CollectByType(key.Type(), "")
		if len(matches) == 0 {
			return key
		}
		for _, k := range matches {
			if l.metadata[k].Primary {
				return k
			}
		}
		return matches[0]
	}
	if key.IsName() {
		if mapped, ok := l.FindKeyByName(key.Name()); ok {
			return mapped
		}
	}
	return key
}

// CanonicalKeyQualified is CanonicalKey with a qualifier filter applied
// to type keys: only bindings carrying the qualifier are candidates, and
// an exact type binding without the qualifier is skipped in favor of a
// qualified compatible one. Name keys and empty qualifiers fall back to
// plain canonicalization.
func (l *Locator) CanonicalKeyQualified(key Key, qualifier string) Key {
	if qualifier == "" || !key.IsType() {
		return l.CanonicalKey(key)
	}
	if md, ok := l.metadata[key]; ok && md.HasQualifier(qualifier) {
		return key
	}
	matches := l.CollectByType(key.Type(), qualifier)
	if len(matches) == 0 {
		return key
	}
	for _, k := range matches {
		if l.metadata[k].Primary {
			return k
		}
	}
	return matches[0]
}

// DependencyKeysFor expands a descriptor's dependency requests into the
// static list of keys it will pull: collection requests expand to every
// compatible binding, single requests map to their canonical key.
func (l *Locator) DependencyKeysFor(d *Descriptor) []Key {
	var out []Key
	for _, dep := range d.Dependencies {
		switch dep.Kind {
		case DepList, DepMap:
			if dep.Key.IsType() {
				out = append(out, l.CollectByType(dep.Key.Type(), dep.Qualifier)...)
			}
		default:
			out = append(out, l.CanonicalKey(dep.Key))
		}
	}
	return out
}
