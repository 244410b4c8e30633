package di

import (
	"sync"

	"github.com/loomdi/loom/internal/errors"
)

// DeferredProvider is a provider source whose bindings are not known
// until a container exists, such as configuration trees expanded into
// per-path bindings. Attach runs once at Build.
type DeferredProvider struct {
	name string
	fill func(c *Container) ([]*Candidate, error)

	mu       sync.Mutex
	attached bool
}

// NewDeferredProvider creates a deferred source. fill is called with the
// built container and returns the candidates to bind.
func NewDeferredProvider(name string, fill func(c *Container) ([]*Candidate, error)) *DeferredProvider {
	return &DeferredProvider{name: name, fill: fill}
}

// Name identifies the source in diagnostics.
func (d *DeferredProvider) Name() string {
	return d.name
}

func (d *DeferredProvider) attach(c *Container) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.attached {
		return nil
	}
	cands, err := d.fill(c)
	if err != nil {
		return errors.ErrCreationFailed(d.name, err)
	}
	for _, cand := range cands {
		if cand == nil || cand.Descriptor == nil || cand.Provider == nil {
			return errors.ErrInvalidProvider(d.name, errors.New("deferred candidate is incomplete"))
		}
		if err := c.Bind(cand.Descriptor.Key, cand.Descriptor, cand.Provider); err != nil {
			return err
		}
	}
	d.attached = true
	return nil
}
