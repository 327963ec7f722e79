package external

import (
	"context"

	"climatewatch/internal/types"
)

// Provider is the capability every weather source implements. FetchCurrent
// makes exactly one request and never retries.
type Provider interface {
	ID() types.ProviderID
	FetchCurrent(ctx context.Context, loc types.Location) (types.RawPayload, error)
}

// HistoricalProvider is implemented by sources that expose an archive.
type HistoricalProvider interface {
	Provider
	FetchHistorical(ctx context.Context, loc types.Location, r types.DateRange) ([]types.RawPayload, error)
}
