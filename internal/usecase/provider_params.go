package usecase

import (
	"fmt"
	"strings"

	"candlestick/internal/domain/models"
	"candlestick/pkg/resolution"
)

// ProviderParams is what the provider needs to serve one resolution.
type ProviderParams struct {
	Interval string
	Lookback string
}

// providerParams is keyed by the canonical resolution first and by the bare
// unit second, so "3M" has its own row while "2M" falls back to "M".
var providerParams = map[string]ProviderParams{
	"M":  {Interval: "1mo", Lookback: "max"},
	"W":  {Interval: "1wk", Lookback: "max"},
	"D":  {Interval: "1d", Lookback: "max"},
	"H":  {Interval: "60m", Lookback: "2y"},
	"m":  {Interval: "1m", Lookback: "7d"},
	"3M": {Interval: "3mo", Lookback: "max"},
	"5D": {Interval: "5d", Lookback: "max"},
}

// SupportedResolutions lists the table keys in display order.
var SupportedResolutions = []string{"M", "W", "D", "H", "m", "3M", "5D"}

// ParamsFor resolves the provider query parameters for r.
func ParamsFor(r resolution.Resolution) (ProviderParams, error) {
	if p, ok := providerParams[r.String()]; ok {
		return p, nil
	}
	if p, ok := providerParams[r.Unit.String()]; ok {
		return p, nil
	}
	return ProviderParams{}, fmt.Errorf("%w: %s, valid resolutions are %s",
		models.ErrUnsupportedResolution, r, strings.Join(SupportedResolutions, ", "))
}
