package auth

import (
	"context"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xhifi/brainloggers-backend-sub001/internal/cache"
	"github.com/xhifi/brainloggers-backend-sub001/internal/obs"
)

const (
	cacheKeyUserRoles = "auth:roles:user:"
	cacheKeyRoleIDs   = "auth:roleids:"
	cacheKeyPerms     = "auth:perms:"
)

// Resolver maps users to role names, role names to ids and role-id sets to
// permission maps. Each layer is cached independently: the user and
// permission layers on a short TTL, the name-to-id layer without expiry
// since roles are near-static reference data.
//
// Entries are written whole and replaced whole; concurrent misses for the
// same key may race to populate, which is fine; the backing queries are
// idempotent.
type Resolver struct {
	store RoleStore
	cache *cache.Client
	ttl   time.Duration
}

// NewResolver builds a resolver. ttl bounds the staleness of the user-roles
// and permission-map layers.
func NewResolver(store RoleStore, c *cache.Client, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Resolver{store: store, cache: c, ttl: ttl}
}

// RolesForUser returns the user's role names, cached for the resolver TTL.
func (r *Resolver) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	key := cacheKeyUserRoles + userID
	if data, _ := r.cache.Get(ctx, key); data != nil {
		var roles []string
		if err := json.Unmarshal(data, &roles); err == nil {
			obs.RecordCacheLookup("user_roles", true)
			return roles, nil
		}
	}
	obs.RecordCacheLookup("user_roles", false)

	roles, err := r.store.RoleNamesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []string{}
	}
	if data, err := json.Marshal(roles); err == nil {
		_ = r.cache.Set(ctx, key, data, r.ttl)
	}
	return roles, nil
}

// RoleIDsByName maps role names to ids. The mapping is cached without expiry;
// role creation is rare and goes through InvalidateAll. Name sets that
// resolve to nothing are never cached, so a role created later is picked up
// on the next query.
func (r *Resolver) RoleIDsByName(ctx context.Context, names []string) ([]int64, error) {
	names = dedupeRoles(names)
	if len(names) == 0 {
		return nil, nil
	}
	key := cacheKeyRoleIDs + joinRoleNames(names)
	if data, _ := r.cache.Get(ctx, key); data != nil {
		var ids []int64
		if err := json.Unmarshal(data, &ids); err == nil {
			obs.RecordCacheLookup("role_ids", true)
			return ids, nil
		}
	}
	obs.RecordCacheLookup("role_ids", false)

	ids, err := r.store.RoleIDsByName(ctx, names)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		if data, err := json.Marshal(ids); err == nil {
			_ = r.cache.Set(ctx, key, data, 0)
		}
	}
	return ids, nil
}

// PermissionsForRoleIDs resolves the union permission map for a role-id set.
// The cache key is the canonical form of the set, so equivalent sets hit the
// same entry regardless of input order.
func (r *Resolver) PermissionsForRoleIDs(ctx context.Context, roleIDs []int64) (PermissionMap, error) {
	ids := canonicalRoleIDs(roleIDs)
	if len(ids) == 0 {
		return PermissionMap{}, nil
	}
	key := cacheKeyPerms + joinRoleIDs(ids)
	if data, _ := r.cache.Get(ctx, key); data != nil {
		if m, err := decodePermissionMap(data); err == nil {
			obs.RecordCacheLookup("permissions", true)
			return m, nil
		}
	}
	obs.RecordCacheLookup("permissions", false)

	m, err := r.store.PermissionsForRoleIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = PermissionMap{}
	}
	if data, err := encodePermissionMap(m); err == nil {
		_ = r.cache.Set(ctx, key, data, r.ttl)
	}
	return m, nil
}

// PermissionsForUser composes the three layers. A user with no roles or no
// grants resolves to an empty map: default deny, not an error.
func (r *Resolver) PermissionsForUser(ctx context.Context, userID string) (PermissionMap, error) {
	roles, err := r.RolesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return PermissionMap{}, nil
	}
	ids, err := r.RoleIDsByName(ctx, roles)
	if err != nil {
		return nil, err
	}
	return r.PermissionsForRoleIDs(ctx, ids)
}

// InvalidateUser drops the cached role names for a user. Call after any
// role-assignment mutation for that user.
func (r *Resolver) InvalidateUser(ctx context.Context, userID string) {
	_ = r.cache.Delete(ctx, cacheKeyUserRoles+userID)
}

// InvalidateAll drops every resolver cache entry. Call after role creation or
// role-permission mutations, which can affect arbitrary cached sets.
func (r *Resolver) InvalidateAll(ctx context.Context) {
	_ = r.cache.DeletePrefix(ctx, cacheKeyUserRoles)
	_ = r.cache.DeletePrefix(ctx, cacheKeyRoleIDs)
	_ = r.cache.DeletePrefix(ctx, cacheKeyPerms)
}

// canonicalRoleIDs sorts and deduplicates so every equivalent set shares a key.
func canonicalRoleIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// joinRoleNames builds a collision-free cache key segment: each name is
// escaped before joining so a comma inside a role name cannot alias the key
// of a different name set.
func joinRoleNames(names []string) string {
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = url.QueryEscape(name)
	}
	return strings.Join(parts, ",")
}

func joinRoleIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func encodePermissionMap(m PermissionMap) ([]byte, error) {
	flat := make(map[string][]string, len(m))
	for resource, actions := range m {
		list := make([]string, 0, len(actions))
		for action := range actions {
			list = append(list, action)
		}
		sort.Strings(list)
		flat[resource] = list
	}
	return json.Marshal(flat)
}

func decodePermissionMap(data []byte) (PermissionMap, error) {
	var flat map[string][]string
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, err
	}
	m := make(PermissionMap, len(flat))
	for resource, actions := range flat {
		for _, action := range actions {
			m.Add(resource, action)
		}
	}
	return m, nil
}
