package binding

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mapruntime/client/internal/providerbind"
)

// PostgresDescriptorCache is an additive DescriptorCache backend:
// the spec names only a file cache, but a shared multi-instance
// deployment benefits from a durable table-backed one, following the
// teacher's pgxpool wiring for its own persistence layer.
type PostgresDescriptorCache struct {
	pool *pgxpool.Pool
}

// NewPostgresDescriptorCache wraps an existing pool. Callers are
// responsible for having run the provider_descriptors migration
// (name text primary key, descriptor jsonb not null, updated_at
// timestamptz not null default now()).
func NewPostgresDescriptorCache(pool *pgxpool.Pool) *PostgresDescriptorCache {
	return &PostgresDescriptorCache{pool: pool}
}

// Get reads one row by provider name. A missing row is a cache miss,
// not an error, matching FileDescriptorCache's contract.
func (c *PostgresDescriptorCache) Get(providerName string) (providerbind.ProviderDescriptor, bool, error) {
	ctx := context.Background()

	var raw []byte
	err := c.pool.QueryRow(ctx,
		`SELECT descriptor FROM provider_descriptors WHERE name = $1`, providerName,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return providerbind.ProviderDescriptor{}, false, nil
		}
		return providerbind.ProviderDescriptor{}, false, err
	}

	desc, err := decodeProviderJSON(raw)
	if err != nil {
		return providerbind.ProviderDescriptor{}, false, nil
	}
	return desc, true, nil
}

// Put upserts the descriptor's JSON encoding, best-effort like the
// file cache — failures are logged by the Binder, never fatal to Bind.
func (c *PostgresDescriptorCache) Put(providerName string, desc providerbind.ProviderDescriptor) error {
	raw, err := encodeProviderJSON(desc)
	if err != nil {
		return err
	}

	_, err = c.pool.Exec(context.Background(), `
		INSERT INTO provider_descriptors (name, descriptor, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET descriptor = EXCLUDED.descriptor, updated_at = now()
	`, providerName, raw)
	return err
}
