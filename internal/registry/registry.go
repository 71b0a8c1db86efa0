package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"ms-payments/internal/logger"
	"ms-payments/internal/models"
	"ms-payments/internal/provider"
)

var (
	ErrDuplicateMethodName = errors.New("payment method name already registered")
	ErrUnknownMethodName   = errors.New("unknown payment method name")
)

// SettingsStore persists the per-shop enable/disable overrides.
type SettingsStore interface {
	GetSettings(ctx context.Context, shopID string) (map[string]bool, error)
	SetEnabled(ctx context.Context, shopID, methodName string, enabled bool) error
}

// Registry holds the registered payment-method providers. Plugins register
// at load time; afterwards the set is read-mostly, guarded for the rare
// late registration.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]provider.Provider
	settings  SettingsStore
	log       *logger.Logger
}

func NewRegistry(settings SettingsStore, log *logger.Logger) *Registry {
	return &Registry{
		providers: make(map[string]provider.Provider),
		settings:  settings,
		log:       log,
	}
}

// Register adds a provider keyed by its unique method name.
func (r *Registry) Register(p provider.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateMethodName, name)
	}

	r.providers[name] = p
	r.log.Info("REGISTRY", fmt.Sprintf("Registered payment method %q from plugin %q", name, p.PluginName()))
	return nil
}

// Lookup resolves a provider by method name.
func (r *Registry) Lookup(name string) (provider.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethodName, name)
	}
	return p, nil
}

// ListAll returns every registered method with the shop's enablement
// resolved: persisted override first, provider default otherwise.
func (r *Registry) ListAll(ctx context.Context, shopID string) ([]models.PaymentMethod, error) {
	overrides, err := r.settings.GetSettings(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to load method settings for shop %s: %w", shopID, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	methods := make([]models.PaymentMethod, 0, len(r.providers))
	for name, p := range r.providers {
		enabled, overridden := overrides[name]
		if !overridden {
			enabled = p.EnabledByDefault()
		}
		methods = append(methods, models.PaymentMethod{
			Name:        name,
			PluginName:  p.PluginName(),
			DisplayName: p.DisplayName(),
			CanRefund:   p.CanRefund(),
			IsEnabled:   enabled,
			Data:        p.MethodData(),
		})
	}

	sort.Slice(methods, func(i, j int) bool { return methods[i].Name < methods[j].Name })
	return methods, nil
}

// SetEnabled persists the per-shop override. Pure configuration write, no
// payment side effects.
func (r *Registry) SetEnabled(ctx context.Context, shopID, name string, enabled bool) error {
	r.mu.RLock()
	_, registered := r.providers[name]
	r.mu.RUnlock()

	if !registered {
		return fmt.Errorf("%w: %s", ErrUnknownMethodName, name)
	}

	if err := r.settings.SetEnabled(ctx, shopID, name, enabled); err != nil {
		return fmt.Errorf("failed to persist method setting: %w", err)
	}

	r.log.Info("REGISTRY", fmt.Sprintf("Shop %s set method %q enabled=%t", shopID, name, enabled))
	return nil
}
