package db

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-payments/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	require.NoError(t, bunDB.ResetModel(context.Background(), (*models.PaymentMethodSetting)(nil)))
	return &DB{Bun: bunDB}
}

func TestSettingsRoundTrip(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	// No rows yet; the empty map means provider defaults apply.
	overrides, err := d.GetSettings(ctx, "shop_1")
	require.NoError(t, err)
	assert.Empty(t, overrides)

	require.NoError(t, d.SetEnabled(ctx, "shop_1", "stripe", false))
	require.NoError(t, d.SetEnabled(ctx, "shop_1", "banktransfer", true))

	overrides, err = d.GetSettings(ctx, "shop_1")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"stripe": false, "banktransfer": true}, overrides)

	// Settings are scoped per shop.
	overrides, err = d.GetSettings(ctx, "shop_2")
	require.NoError(t, err)
	assert.Empty(t, overrides)
}

func TestSetEnabled_UpsertsExistingRow(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, d.SetEnabled(ctx, "shop_1", "stripe", false))
	require.NoError(t, d.SetEnabled(ctx, "shop_1", "stripe", true))

	overrides, err := d.GetSettings(ctx, "shop_1")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"stripe": true}, overrides)
}
