package alert

import (
	"context"
	"fmt"

	"github.com/evairo/aqmon/backend/internal/pipeline"
	"github.com/evairo/aqmon/backend/internal/station"
)

// RegistryResolver resolves subscriptions against the station store:
// a direct station reference wins, otherwise all active stations in
// the subscription's city.
type RegistryResolver struct {
	stations station.Store
}

// NewRegistryResolver creates a new resolver backed by the station store.
func NewRegistryResolver(stations station.Store) *RegistryResolver {
	return &RegistryResolver{stations: stations}
}

var _ StationResolver = (*RegistryResolver)(nil)

// Resolve returns the station indices a subscription covers.
func (r *RegistryResolver) Resolve(ctx context.Context, sub Subscription) ([]string, error) {
	if sub.StationIdx != nil && *sub.StationIdx != "" {
		s, err := r.stations.Get(ctx, *sub.StationIdx)
		if err != nil {
			return nil, fmt.Errorf("resolve station %s: %w", *sub.StationIdx, err)
		}
		if s == nil || !s.Active {
			return nil, nil
		}
		return []string{s.StationIdx}, nil
	}

	if sub.City != nil && *sub.City != "" {
		stations, err := r.stations.ByCity(ctx, *sub.City)
		if err != nil {
			return nil, fmt.Errorf("resolve city %s: %w", *sub.City, err)
		}
		idxs := make([]string, 0, len(stations))
		for _, s := range stations {
			idxs = append(idxs, s.StationIdx)
		}
		return idxs, nil
	}

	return nil, &pipeline.ValidationError{Field: "subscription", Reason: "no station or city reference"}
}
