package hardware

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownComponentClass is returned for class names that are not in the catalog
var ErrUnknownComponentClass = errors.New("unknown component class")

// Catalog maps permitted class names to their factories.
// It is safe for concurrent use.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{
		factories: make(map[string]Factory),
	}
}

// Register adds a class to the catalog. Registering the same name twice is an error.
func (c *Catalog) Register(class string, factory Factory) error {
	if class == "" {
		return fmt.Errorf("catalog: class name must not be empty")
	}
	if factory == nil {
		return fmt.Errorf("catalog: factory for %s is nil", class)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.factories[class]; ok {
		return fmt.Errorf("catalog: class %s already registered", class)
	}
	c.factories[class] = factory
	return nil
}

// MustRegister is like Register but panics on error. Meant for package init code.
func (c *Catalog) MustRegister(class string, factory Factory) *Catalog {
	if err := c.Register(class, factory); err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the factory for a class name
func (c *Catalog) Lookup(class string) (Factory, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	factory, ok := c.factories[class]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownComponentClass, class)
	}
	return factory, nil
}

// Classes returns all registered class names, sorted
func (c *Catalog) Classes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	classes := make([]string, 0, len(c.factories))
	for class := range c.factories {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	return classes
}

// Restrict returns a new catalog containing only the named classes.
// An empty list returns a copy of the full catalog. Naming a class that is
// not registered is an error, so a typo in the allow-list fails at startup.
func (c *Catalog) Restrict(classes []string) (*Catalog, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	restricted := NewCatalog()
	if len(classes) == 0 {
		for class, factory := range c.factories {
			restricted.factories[class] = factory
		}
		return restricted, nil
	}

	for _, class := range classes {
		factory, ok := c.factories[class]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownComponentClass, class)
		}
		restricted.factories[class] = factory
	}
	return restricted, nil
}
