package registry

import (
	"context"

	"ms-payments/internal/models"
)

// AvailableFor computes the methods usable for one checkout: the enabled
// subset of ListAll further filtered by each provider's own context
// predicate. Pure read; an empty result is a valid answer, not an error.
func (r *Registry) AvailableFor(ctx context.Context, shopID string, checkout models.CheckoutContext) ([]models.PaymentMethod, error) {
	all, err := r.ListAll(ctx, shopID)
	if err != nil {
		return nil, err
	}

	available := make([]models.PaymentMethod, 0, len(all))
	for _, m := range all {
		if !m.IsEnabled {
			continue
		}

		p, err := r.Lookup(m.Name)
		if err != nil {
			// Unregistered between ListAll and here; skip rather than fail
			// the whole availability read.
			continue
		}
		if !p.Available(checkout) {
			continue
		}

		available = append(available, m)
	}

	return available, nil
}
