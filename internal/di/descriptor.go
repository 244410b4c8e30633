package di

import "reflect"

// DepKind is the cardinality of a dependency request.
type DepKind int

const (
	// DepSingle requests exactly one instance.
	DepSingle DepKind = iota
	// DepList requests every matching binding as a slice.
	DepList
	// DepMap requests every matching binding as a map keyed by declared name.
	DepMap
)

// DepRequest describes one constructor parameter: what key it needs, its
// cardinality, and whether its absence is tolerated. Derived once at
// registration and never recomputed per resolution.
type DepRequest struct {
	Parameter string
	Key       Key
	Kind      DepKind
	Qualifier string
	Optional  bool
}

// InterceptorRef identifies an interceptor: either a container key to
// resolve at call time, or a ready instance.
type InterceptorRef struct {
	Key   Key
	Value MethodInterceptor
}

// InterceptorBinding attaches one interceptor to one method, with an
// activation order. Lower orders run closer to the caller.
type InterceptorBinding struct {
	Method string
	Ref    InterceptorRef
	Order  int
}

// Descriptor is the immutable registration record for one provider.
// Created when a provider is registered and never mutated afterward;
// re-registration replaces the whole record.
type Descriptor struct {
	Key           Key
	Provided      reflect.Type
	Concrete      reflect.Type
	FactoryType   reflect.Type
	FactoryMethod string
	Name          string
	Qualifiers    []string
	Tags          []string
	Primary       bool
	Lazy          bool
	Override      bool
	Scope         string
	Dependencies  []DepRequest
	Interceptors  []InterceptorBinding
}

// ComponentType returns the type this descriptor produces: the provided
// type when declared, else the concrete implementation type.
func (d *Descriptor) ComponentType() reflect.Type {
	if d.Provided != nil {
		return d.Provided
	}
	return d.Concrete
}

// HasQualifier reports whether q is in the descriptor's qualifier set.
func (d *Descriptor) HasQualifier(q string) bool {
	for _, have := range d.Qualifiers {
		if have == q {
			return true
		}
	}
	return false
}

// HasTag reports whether tag is in the descriptor's tag set.
func (d *Descriptor) HasTag(tag string) bool {
	for _, have := range d.Tags {
		if have == tag {
			return true
		}
	}
	return false
}

// MethodInterceptors returns the bindings declared for one method, in
// activation order.
func (d *Descriptor) MethodInterceptors(method string) []InterceptorBinding {
	var out []InterceptorBinding
	for _, b := range d.Interceptors {
		if b.Method == method {
			out = append(out, b)
		}
	}
	sortBindings(out)
	return out
}

// Intercepted reports whether any method on this descriptor declares
// interceptors.
func (d *Descriptor) Intercepted() bool {
	return len(d.Interceptors) > 0
}

func sortBindings(bs []InterceptorBinding) {
	// Stable insertion sort; binding lists are short and declaration
	// order must break ties.
	for i := 1; i < len(bs); i++ {
		for j := i; j > 0 && bs[j].Order < bs[j-1].Order; j-- {
			bs[j], bs[j-1] = bs[j-1], bs[j]
		}
	}
}
