package registry_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-payments/internal/logger"
	"ms-payments/internal/models"
	"ms-payments/internal/provider"
	"ms-payments/internal/registry"
)

// memorySettings is an in-memory settings store for registry tests.
type memorySettings struct {
	mu        sync.Mutex
	overrides map[string]map[string]bool
}

func newMemorySettings() *memorySettings {
	return &memorySettings{overrides: make(map[string]map[string]bool)}
}

func (m *memorySettings) GetSettings(ctx context.Context, shopID string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.overrides[shopID]))
	for k, v := range m.overrides[shopID] {
		out[k] = v
	}
	return out, nil
}

func (m *memorySettings) SetEnabled(ctx context.Context, shopID, methodName string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.overrides[shopID] == nil {
		m.overrides[shopID] = make(map[string]bool)
	}
	m.overrides[shopID][methodName] = enabled
	return nil
}

// fakeProvider lets each test shape name, default, and availability.
type fakeProvider struct {
	name           string
	defaultEnabled bool
	currencies     map[string]bool
}

func (f fakeProvider) Name() string                          { return f.name }
func (f fakeProvider) PluginName() string                    { return "payments-" + f.name }
func (f fakeProvider) DisplayName() string                   { return f.name }
func (f fakeProvider) CanRefund() bool                       { return true }
func (f fakeProvider) EnabledByDefault() bool                { return f.defaultEnabled }
func (f fakeProvider) MethodData() models.MethodData         { return nil }
func (f fakeProvider) Available(ctx models.CheckoutContext) bool {
	if f.currencies == nil {
		return true
	}
	return f.currencies[ctx.Currency]
}
func (f fakeProvider) Capture(ctx context.Context, p *models.Payment) (*provider.CaptureResult, error) {
	return &provider.CaptureResult{TransactionID: "txn_fake"}, nil
}
func (f fakeProvider) Refund(ctx context.Context, p *models.Payment, amount int64) (*provider.RefundResult, error) {
	return &provider.RefundResult{RefundID: "ref_fake", Status: "succeeded"}, nil
}

func newTestRegistry(t *testing.T) (*registry.Registry, *memorySettings) {
	log := logger.NewLogger()
	t.Cleanup(log.Close)
	settings := newMemorySettings()
	return registry.NewRegistry(settings, log), settings
}

func TestRegister_RejectsDuplicateName(t *testing.T) {
	reg, _ := newTestRegistry(t)

	require.NoError(t, reg.Register(fakeProvider{name: "stripe", defaultEnabled: true}))

	err := reg.Register(fakeProvider{name: "stripe", defaultEnabled: false})
	assert.ErrorIs(t, err, registry.ErrDuplicateMethodName)

	// The original registration must survive the rejected duplicate.
	p, err := reg.Lookup("stripe")
	require.NoError(t, err)
	assert.True(t, p.EnabledByDefault())
}

func TestLookup_UnknownName(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Lookup("no-such-method")
	assert.ErrorIs(t, err, registry.ErrUnknownMethodName)
}

func TestListAll_OverrideBeatsProviderDefault(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(fakeProvider{name: "stripe", defaultEnabled: true}))
	require.NoError(t, reg.Register(fakeProvider{name: "banktransfer", defaultEnabled: false}))

	methods, err := reg.ListAll(ctx, "shop_1")
	require.NoError(t, err)
	require.Len(t, methods, 2)
	assert.Equal(t, "banktransfer", methods[0].Name, "listing is sorted by name")
	assert.False(t, methods[0].IsEnabled, "no override, provider default applies")
	assert.True(t, methods[1].IsEnabled)

	// Shop flips both away from their defaults.
	require.NoError(t, reg.SetEnabled(ctx, "shop_1", "banktransfer", true))
	require.NoError(t, reg.SetEnabled(ctx, "shop_1", "stripe", false))

	methods, err = reg.ListAll(ctx, "shop_1")
	require.NoError(t, err)
	assert.True(t, methods[0].IsEnabled)
	assert.False(t, methods[1].IsEnabled)

	// Another shop still sees the defaults.
	methods, err = reg.ListAll(ctx, "shop_2")
	require.NoError(t, err)
	assert.False(t, methods[0].IsEnabled)
	assert.True(t, methods[1].IsEnabled)
}

func TestSetEnabled_UnknownMethod(t *testing.T) {
	reg, settings := newTestRegistry(t)

	err := reg.SetEnabled(context.Background(), "shop_1", "no-such-method", true)
	assert.ErrorIs(t, err, registry.ErrUnknownMethodName)
	assert.Empty(t, settings.overrides, "nothing may be persisted for an unknown method")
}

func TestAvailableFor_NeverReturnsDisabledMethods(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(fakeProvider{name: "stripe", defaultEnabled: true}))
	require.NoError(t, reg.Register(fakeProvider{
		name:           "banktransfer",
		defaultEnabled: true,
		currencies:     map[string]bool{"EUR": true},
	}))

	checkout := models.CheckoutContext{Currency: "EUR", Region: "DE"}

	available, err := reg.AvailableFor(ctx, "shop_1", checkout)
	require.NoError(t, err)
	assert.Len(t, available, 2)

	require.NoError(t, reg.SetEnabled(ctx, "shop_1", "stripe", false))

	available, err = reg.AvailableFor(ctx, "shop_1", checkout)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, "banktransfer", available[0].Name)
	for _, m := range available {
		assert.True(t, m.IsEnabled, "a disabled method must never be offered")
	}
}

func TestAvailableFor_ProviderContextFilter(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(fakeProvider{
		name:           "banktransfer",
		defaultEnabled: true,
		currencies:     map[string]bool{"EUR": true},
	}))

	available, err := reg.AvailableFor(ctx, "shop_1", models.CheckoutContext{Currency: "USD"})
	require.NoError(t, err)
	assert.Empty(t, available, "an empty result is a valid answer for an unsupported checkout")
}
