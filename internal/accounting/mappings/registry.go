package mappings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Registry resolves roles to account ids. Explicit mappings win over the default chart
// code. Resolved tables are cached in redis per tenant.
type Registry struct {
	repo   Repository
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewRegistry wires the registry. A nil client disables caching.
func NewRegistry(repo Repository, client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Registry{repo: repo, client: client, ttl: ttl, logger: logger}
}

// Resolve returns the account id bound to role for the tenant.
func (r *Registry) Resolve(ctx context.Context, tenantID string, role Role) (int64, error) {
	if !role.Valid() {
		return 0, fmt.Errorf("role %q: %w", role, shared.ErrMappingNotFound)
	}
	table, err := r.ResolveAll(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	id, ok := table[role]
	if !ok {
		return 0, fmt.Errorf("role %s (code %s): %w", role, role.DefaultCode(), shared.ErrMappingNotFound)
	}
	return id, nil
}

// ResolveAll returns every role the tenant can resolve.
func (r *Registry) ResolveAll(ctx context.Context, tenantID string) (map[Role]int64, error) {
	if tenantID == "" {
		return nil, shared.ErrTenantRequired
	}
	if table, ok := r.cached(ctx, tenantID); ok {
		return table, nil
	}
	// The load is shared by every coalesced caller, so one caller's cancellation must not end it.
	loadCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(tenantID, func() (interface{}, error) {
		table, err := r.load(loadCtx, tenantID)
		if err != nil {
			return nil, err
		}
		r.store(loadCtx, tenantID, table)
		return table, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return copyTable(res.Val.(map[Role]int64)), nil
	}
}

// Assign overrides the account of role and drops the cached table.
func (r *Registry) Assign(ctx context.Context, tenantID string, role Role, accountID int64) (AccountMapping, error) {
	if tenantID == "" {
		return AccountMapping{}, shared.ErrTenantRequired
	}
	if !role.Valid() {
		return AccountMapping{}, fmt.Errorf("role %q: %w", role, shared.ErrMappingNotFound)
	}
	m, err := r.repo.Upsert(ctx, AccountMapping{TenantID: tenantID, Role: role, AccountID: accountID})
	if err != nil {
		return AccountMapping{}, err
	}
	r.Invalidate(ctx, tenantID)
	return m, nil
}

// Unassign restores the default code for role.
func (r *Registry) Unassign(ctx context.Context, tenantID string, role Role) error {
	if err := r.repo.Delete(ctx, tenantID, role); err != nil {
		return err
	}
	r.Invalidate(ctx, tenantID)
	return nil
}

// Invalidate drops the cached table. The account service calls it after the chart changed.
func (r *Registry) Invalidate(ctx context.Context, tenantID string) {
	if r.client == nil {
		return
	}
	if err := r.client.Del(ctx, internalShared.RoleCacheKey(tenantID)).Err(); err != nil {
		r.logger.Warn("role cache invalidate", slog.String("tenant", tenantID), slog.Any("error", err))
	}
}

func (r *Registry) load(ctx context.Context, tenantID string) (map[Role]int64, error) {
	explicit, err := r.repo.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	table := make(map[Role]int64, len(defaultCodes))
	for _, m := range explicit {
		if m.Role.Valid() {
			table[m.Role] = m.AccountID
		}
	}
	var codes []string
	for _, role := range Roles() {
		if _, ok := table[role]; !ok {
			codes = append(codes, role.DefaultCode())
		}
	}
	if len(codes) == 0 {
		return table, nil
	}
	byCode, err := r.repo.AccountIDsByCode(ctx, tenantID, codes)
	if err != nil {
		return nil, err
	}
	for _, role := range Roles() {
		if _, ok := table[role]; ok {
			continue
		}
		if id, ok := byCode[role.DefaultCode()]; ok {
			table[role] = id
		}
	}
	return table, nil
}

// cached reads the table; redis failures degrade to a database load.
func (r *Registry) cached(ctx context.Context, tenantID string) (map[Role]int64, bool) {
	if r.client == nil {
		return nil, false
	}
	payload, err := r.client.Get(ctx, internalShared.RoleCacheKey(tenantID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("role cache read", slog.String("tenant", tenantID), slog.Any("error", err))
		}
		return nil, false
	}
	var table map[Role]int64
	if err := json.Unmarshal(payload, &table); err != nil {
		return nil, false
	}
	return table, true
}

func (r *Registry) store(ctx context.Context, tenantID string, table map[Role]int64) {
	if r.client == nil {
		return
	}
	raw, err := json.Marshal(table)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, internalShared.RoleCacheKey(tenantID), raw, r.ttl).Err(); err != nil {
		r.logger.Warn("role cache write", slog.String("tenant", tenantID), slog.Any("error", err))
	}
}

func copyTable(in map[Role]int64) map[Role]int64 {
	out := make(map[Role]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
