package packstream

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// OpenFunc opens the source identified by key.
type OpenFunc func(ctx context.Context, key string) (Source, error)

// Group shares one lazily opened, cached stream per key.
//
// The first Get for a key opens its source and wraps it in a Stream; later
// calls return the same ReaderAt. Concurrent first calls for the same key
// open the source only once.
type Group struct {
	open    OpenFunc
	opts    []Option
	cfg     config
	mu      sync.Mutex
	members map[string]*ReaderAt
	closed  bool
	flight  singleflight.Group
}

// NewGroup returns a Group that opens sources with open. The options are
// applied to every Stream the Group creates.
func NewGroup(open OpenFunc, opts ...Option) *Group {
	return &Group{
		open:    open,
		opts:    opts,
		cfg:     newConfig(opts),
		members: make(map[string]*ReaderAt),
	}
}

// Get returns the shared reader for key, opening it on first use.
//
// The member outlives the call, so it is opened with a context that keeps
// ctx's values but not its cancellation or deadline. Sources that fetch
// lazily would otherwise fail for every caller once the first one returns.
func (g *Group) Get(ctx context.Context, key string) (*ReaderAt, error) {
	if ra, err := g.lookup(key); ra != nil || err != nil {
		return ra, err
	}

	v, err, shared := g.flight.Do(key, func() (any, error) {
		if ra, err := g.lookup(key); ra != nil || err != nil {
			return ra, err
		}
		return g.openMember(context.WithoutCancel(ctx), key)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		g.cfg.log().Debug("group open shared", "key", key)
	}
	ra, _ := v.(*ReaderAt) //nolint:errcheck // type assertion always succeeds when err is nil
	return ra, nil
}

func (g *Group) lookup(key string) (*ReaderAt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, ErrClosed
	}
	return g.members[key], nil
}

func (g *Group) openMember(ctx context.Context, key string) (*ReaderAt, error) {
	src, err := g.open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	s, err := New(src, g.opts...)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	ra := NewReaderAt(s)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		_ = ra.Close()
		return nil, ErrClosed
	}
	g.members[key] = ra
	g.cfg.log().Debug("group opened", "key", key, "size", s.Len())
	return ra, nil
}

// Len returns the number of open members.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

// Forget closes and removes the member for key, if any.
func (g *Group) Forget(key string) error {
	g.mu.Lock()
	ra, ok := g.members[key]
	delete(g.members, key)
	g.mu.Unlock()
	if !ok {
		return nil
	}
	return ra.Close()
}

// Close closes every member. Later calls to Get fail with ErrClosed.
func (g *Group) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	members := g.members
	g.members = nil
	g.mu.Unlock()

	var errs []error
	for key, ra := range members {
		if err := ra.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
