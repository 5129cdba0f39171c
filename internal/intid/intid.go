// Package intid assigns process-wide integer ids to content objects and
// resolves them back. Ids are assigned once and never reused.
package intid

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/content"
	apperrors "github.com/Adithya-Monish-Kumar-K/entity-search/pkg/errors"
)

// ID is a stable document id. It fits a roaring bitmap slot.
type ID = uint32

// Resolver maps objects to ids and back. ResolveObject returns (nil, nil)
// when the id no longer names a live object.
type Resolver interface {
	ResolveID(ctx context.Context, obj *content.Object) (ID, error)
	LookupID(ctx context.Context, key string) (ID, bool, error)
	ResolveObject(ctx context.Context, id ID) (*content.Object, error)
}

// Key renders the external doc key for id within namespace,
// e.g. 0xd8:53657373696f6e73 for id 216 in "Sessions".
func Key(id ID, namespace string) string {
	return fmt.Sprintf("%#x:%s", id, hex.EncodeToString([]byte(namespace)))
}

// Registry is an in-memory Resolver.
type Registry struct {
	namespace string
	next      atomic.Uint32
	ids       *xsync.MapOf[string, ID]
	objects   *xsync.MapOf[ID, *content.Object]
}

// NewRegistry returns a Registry whose first assigned id is start.
func NewRegistry(namespace string, start ID) *Registry {
	r := &Registry{
		namespace: namespace,
		ids:       xsync.NewMapOf[string, ID](),
		objects:   xsync.NewMapOf[ID, *content.Object](),
	}
	r.next.Store(start)
	return r
}

// Namespace returns the key namespace of the registry.
func (r *Registry) Namespace() string {
	return r.namespace
}

// ResolveID returns the id for obj, assigning one on first sight. The stored
// object is replaced with obj so later resolutions see the latest state.
func (r *Registry) ResolveID(_ context.Context, obj *content.Object) (ID, error) {
	if obj.IsEmpty() {
		return 0, fmt.Errorf("resolving id: %w", apperrors.ErrInvalidInput)
	}
	id, _ := r.ids.LoadOrCompute(obj.Key, func() ID {
		return r.next.Add(1) - 1
	})
	r.objects.Store(id, obj)
	return id, nil
}

func (r *Registry) LookupID(_ context.Context, key string) (ID, bool, error) {
	id, ok := r.ids.Load(key)
	return id, ok, nil
}

func (r *Registry) ResolveObject(_ context.Context, id ID) (*content.Object, error) {
	obj, ok := r.objects.Load(id)
	if !ok {
		return nil, nil
	}
	return obj, nil
}

// Forget drops the object behind key while keeping its id reserved, which is
// how a storage layer loses an object without telling the index.
func (r *Registry) Forget(key string) {
	if id, ok := r.ids.Load(key); ok {
		r.objects.Delete(id)
	}
}

// Len returns the number of ids assigned so far.
func (r *Registry) Len() int {
	return r.ids.Size()
}
