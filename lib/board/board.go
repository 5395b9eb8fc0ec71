package board

import (
	"github.com/ValentinKolb/hwbridge/lib/hardware"
	"github.com/puzpuzpuz/xsync/v3"
	"io"
	"sync"
)

// Board is a connected board together with its component cache.
// Boards are created by the Registry only.
type Board struct {
	handle     hardware.BoardHandle
	catalog    *hardware.Catalog
	observer   IObserver
	components *xsync.MapOf[string, *Component]
	closeOnce  sync.Once
	closeErr   error
}

func newBoard(handle hardware.BoardHandle, catalog *hardware.Catalog, observer IObserver) *Board {
	return &Board{
		handle:     handle,
		catalog:    catalog,
		observer:   observer,
		components: xsync.NewMapOf[string, *Component](),
	}
}

// ID returns the board id
func (b *Board) ID() string {
	return b.handle.ID()
}

// EnsureComponent returns the component of class constructed with args,
// constructing it on first use. Construction for one key happens at most once
// even under concurrent calls; a failed construction leaves no cache entry.
func (b *Board) EnsureComponent(class string, args []any) (*Component, error) {
	if args == nil {
		args = []any{}
	}

	key, err := ComponentKey(class, args)
	if err != nil {
		return nil, &ConstructError{BoardID: b.ID(), Class: class, Args: args, Err: err}
	}

	// fast path without taking the bucket lock
	if c, ok := b.components.Load(key); ok {
		return c, nil
	}

	var constructErr error
	c, _ := b.components.Compute(key, func(old *Component, loaded bool) (*Component, bool) {
		if loaded {
			return old, false
		}
		inst, err := b.construct(class, args)
		if err != nil {
			constructErr = err
			return nil, true
		}
		return inst, false
	})
	if constructErr != nil {
		Logger.Warningf("board %s: %v", b.ID(), constructErr)
		return nil, constructErr
	}
	return c, nil
}

// construct runs inside the cache bucket lock, so a panicking factory is
// recovered here rather than escaping with the lock held
func (b *Board) construct(class string, args []any) (c *Component, err error) {
	defer func() {
		if r := recover(); r != nil {
			c, err = nil, &ConstructError{BoardID: b.ID(), Class: class, Args: args, Err: panicError(r)}
		}
	}()

	factory, err := b.catalog.Lookup(class)
	if err != nil {
		return nil, &ConstructError{BoardID: b.ID(), Class: class, Args: args, Err: err}
	}

	inst, err := factory(b.handle, args)
	if err != nil {
		return nil, &ConstructError{BoardID: b.ID(), Class: class, Args: args, Err: err}
	}
	if inst == nil {
		return nil, &ConstructError{BoardID: b.ID(), Class: class, Args: args, Err: errNilComponent}
	}

	Logger.Debugf("board %s: new %s%s", b.ID(), class, formatArgs(args))
	b.observer.ComponentConstructed(b.ID(), class)
	return newComponent(inst), nil
}

// Components returns the number of cached components
func (b *Board) Components() int {
	return b.components.Size()
}

// Close closes every component implementing io.Closer and then the board handle
func (b *Board) Close() error {
	b.closeOnce.Do(func() {
		b.components.Range(func(_ string, c *Component) bool {
			if closer, ok := c.inst.(io.Closer); ok {
				if err := closer.Close(); err != nil {
					Logger.Warningf("board %s: closing %s: %v", b.ID(), c.Class(), err)
				}
			}
			return true
		})
		b.closeErr = b.handle.Close()
		Logger.Infof("board %s closed", b.ID())
	})
	return b.closeErr
}
