package db

import (
	"context"
	"time"

	"ms-payments/internal/models"

	"github.com/uptrace/bun"
)

// DB persists per-shop payment method settings.
type DB struct {
	Bun *bun.DB
}

// GetSettings returns the shop's persisted overrides keyed by method name.
// Methods without a row fall back to the provider default.
func (d *DB) GetSettings(ctx context.Context, shopID string) (map[string]bool, error) {
	var settings []models.PaymentMethodSetting
	err := d.Bun.NewSelect().
		Model(&settings).
		Where("shop_id = ?", shopID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	overrides := make(map[string]bool, len(settings))
	for _, s := range settings {
		overrides[s.MethodName] = s.Enabled
	}
	return overrides, nil
}

// SetEnabled upserts the shop's override for one method.
func (d *DB) SetEnabled(ctx context.Context, shopID, methodName string, enabled bool) error {
	setting := models.PaymentMethodSetting{
		ShopID:     shopID,
		MethodName: methodName,
		Enabled:    enabled,
		UpdatedAt:  time.Now(),
	}
	_, err := d.Bun.NewInsert().
		Model(&setting).
		On("CONFLICT (shop_id, method_name) DO UPDATE").
		Set("enabled = EXCLUDED.enabled").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}
