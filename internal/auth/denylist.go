package auth

import (
	"context"
	"time"

	"github.com/xhifi/brainloggers-backend-sub001/internal/cache"
)

const denylistKeyPrefix = "auth:denylist:"

// Denylist records access-token ids revoked before their natural expiry.
// Access tokens are otherwise stateless; this is the one deliberate
// exception, consulted by the request guard on every protected call.
type Denylist struct {
	cache *cache.Client
}

// NewDenylist builds a denylist over the shared cache client.
func NewDenylist(c *cache.Client) *Denylist {
	return &Denylist{cache: c}
}

// Revoke marks a token id revoked until its natural expiry, after which the
// entry is moot and allowed to lapse.
func (d *Denylist) Revoke(ctx context.Context, jti string, until time.Time) error {
	if jti == "" {
		return nil
	}
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return d.cache.Set(ctx, denylistKeyPrefix+jti, []byte("1"), ttl)
}

// Revoked reports whether a token id has been denylisted. Cache errors read
// as not revoked; the token still carries a valid signature and a short TTL.
func (d *Denylist) Revoked(ctx context.Context, jti string) bool {
	if jti == "" {
		return false
	}
	data, _ := d.cache.Get(ctx, denylistKeyPrefix+jti)
	return data != nil
}
