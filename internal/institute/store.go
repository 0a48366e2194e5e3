package institute

import (
	"context"
	"errors"

	"instituteos.app/internal/tenancy"
)

// Store persists institutes and their subscriptions.
// Lookups return ErrNotFound for missing rows.
type Store interface {
	FindInstitute(ctx context.Context, id string) (*Institute, error)
	FindInstituteByDomain(ctx context.Context, domain string) (*Institute, error)
	ListInstitutes(ctx context.Context) ([]Summary, error)
	// UpdateInstitute saves name and domain. A duplicate domain yields ErrDomainTaken.
	UpdateInstitute(ctx context.Context, inst *Institute) error
	// Provision writes all rows of p atomically. A duplicate domain yields
	// ErrDomainTaken and nothing is written.
	Provision(ctx context.Context, p *Provisioning) error

	FindSubscription(ctx context.Context, instituteID string) (*Subscription, error)
	UpdateSubscriptionFee(ctx context.Context, instituteID string, annualFee float64) error
}

// DomainLookup adapts s to the tenant resolver's lookup.
func DomainLookup(s Store) tenancy.Lookup {
	return tenancy.LookupFunc(func(ctx context.Context, domain string) (string, error) {
		inst, err := s.FindInstituteByDomain(ctx, domain)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return "", tenancy.ErrNotFound
			}
			return "", err
		}
		return inst.ID, nil
	})
}
