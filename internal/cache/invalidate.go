package cache

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/online_catalog/internal/logging"
)

const (
	AllProductsKey = "products:all"
	AllUsersKey    = "all:users"
)

func ProductKey(id uuid.UUID) string     { return "product:" + id.String() }
func UserProfileKey(id uuid.UUID) string { return "user:profile:" + id.String() }

type Mutation uint8

const (
	ProductCreated Mutation = iota
	ProductUpdated
	ProductDeleted
	UserCreated
	UserUpdated
	UserDeleted
)

func (m Mutation) String() string {
	switch m {
	case ProductCreated:
		return "product_created"
	case ProductUpdated:
		return "product_updated"
	case ProductDeleted:
		return "product_deleted"
	case UserCreated:
		return "user_created"
	case UserUpdated:
		return "user_updated"
	case UserDeleted:
		return "user_deleted"
	default:
		return "unknown"
	}
}

// KeysFor lists every key whose value may include the mutated record.
func KeysFor(m Mutation, id uuid.UUID) []string {
	switch m {
	case ProductCreated:
		return []string{AllProductsKey}
	case ProductUpdated, ProductDeleted:
		return []string{ProductKey(id), AllProductsKey}
	case UserCreated:
		return []string{AllUsersKey}
	case UserUpdated, UserDeleted:
		return []string{UserProfileKey(id), AllUsersKey}
	default:
		return nil
	}
}

// Invalidator applies the KeysFor policy. It narrows staleness but cannot close
// the race with a concurrent Fetch (see Fetch); the cache TTL bounds that window.
type Invalidator struct {
	store   Store
	timeout time.Duration
}

const defaultInvalidateTimeout = 2 * time.Second

func NewInvalidator(store Store, timeout time.Duration) *Invalidator {
	if timeout <= 0 {
		timeout = defaultInvalidateTimeout
	}
	return &Invalidator{store: store, timeout: timeout}
}

// Invalidate drops the keys for m. Call it only after the durable write has
// committed. It does not follow the caller's cancellation, and a failure is
// logged rather than returned: the entries then live until their TTL.
func (i *Invalidator) Invalidate(ctx context.Context, m Mutation, id uuid.UUID) {
	keys := KeysFor(m, id)
	if len(keys) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.timeout)
	defer cancel()

	if err := i.store.Delete(ctx, keys...); err != nil {
		logging.FromContext(ctx).Error("cache_invalidate_failed",
			"component", "cache.invalidate",
			"mutation", m.String(),
			"keys", keys,
			"error", err,
		)
	}
}
