package models

import (
	"fmt"
	"math"
	"time"

	"candlestick/pkg/resolution"

	"github.com/shopspring/decimal"
)

const (
	// PricePlaces is the fixed number of decimal places stored for prices.
	PricePlaces = 6
	// PriceDigits is the total number of significant digits a price may have.
	PriceDigits = 15
)

var maxPrice = decimal.New(1, PriceDigits-PricePlaces)

// Bar is the price of an instrument over one period. Timestamp is the UNIX
// second the period starts at; for D, W, M and Y resolutions it must be a UTC
// midnight.
type Bar struct {
	ID           int64           `json:"-"`
	InstrumentID int64           `json:"-"`
	Timestamp    int64           `json:"timestamp"`
	Resolution   string          `json:"resolution"`
	Open         decimal.Decimal `json:"open"`
	Low          decimal.Decimal `json:"low"`
	High         decimal.Decimal `json:"high"`
	Close        decimal.Decimal `json:"close"`
	Volume       int64           `json:"volume"`
}

// NewBar validates b, rounds its prices to PricePlaces and returns a copy.
func NewBar(b Bar) (*Bar, error) {
	b.Open = b.Open.Round(PricePlaces)
	b.Low = b.Low.Round(PricePlaces)
	b.High = b.High.Round(PricePlaces)
	b.Close = b.Close.Round(PricePlaces)
	if err := ValidateBar(&b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ValidateBar checks the invariants every persisted bar must satisfy.
func ValidateBar(b *Bar) error {
	res, err := resolution.Parse(b.Resolution)
	if err != nil {
		return err
	}
	if res.Daily() && !resolution.MidnightAligned(b.Timestamp) {
		return fmt.Errorf("%w: timestamp %d is invalid for resolution %s",
			ErrInvalidTimestampForResolution, b.Timestamp, b.Resolution)
	}
	if b.InstrumentID == 0 {
		return fmt.Errorf("%w: bar has no instrument", ErrInvalidBar)
	}
	if b.Volume < 0 {
		return fmt.Errorf("%w: negative volume %d", ErrInvalidBar, b.Volume)
	}
	for name, p := range map[string]decimal.Decimal{"open": b.Open, "low": b.Low, "high": b.High, "close": b.Close} {
		if p.Abs().GreaterThanOrEqual(maxPrice) {
			return fmt.Errorf("%w: %s %s exceeds %d digits", ErrInvalidBar, name, p, PriceDigits)
		}
	}
	return nil
}

func (b *Bar) String() string {
	return fmt.Sprintf("%d: %s", b.Timestamp, b.Close)
}

func (b *Bar) parsed() resolution.Resolution {
	res, err := resolution.Parse(b.Resolution)
	if err != nil {
		// unvalidated bar; treat it as a zero-length period
		return resolution.Resolution{Multiplier: 0, Unit: resolution.Second}
	}
	return res
}

// EndTimestamp is the exclusive end of the bar's period.
func (b *Bar) EndTimestamp() int64 {
	return b.parsed().EndTimestamp(b.Timestamp)
}

// Datetime renders the start of the period for the owning instrument.
func (b *Bar) Datetime(inst *Instrument) resolution.Moment {
	return resolution.Render(b.Timestamp, inst.Location(), b.parsed())
}

// EndDatetime renders the end of the period for the owning instrument.
func (b *Bar) EndDatetime(inst *Instrument) resolution.Moment {
	return resolution.Render(b.EndTimestamp(), inst.Location(), b.parsed())
}

// BarView is a bar with its derived attributes, as returned to API clients.
type BarView struct {
	*Bar
	EndTimestamp int64             `json:"end_timestamp"`
	Datetime     resolution.Moment `json:"datetime"`
	EndDatetime  resolution.Moment `json:"end_datetime"`
}

// View computes the derived attributes of b for inst.
func (b *Bar) View(inst *Instrument) BarView {
	return BarView{
		Bar:          b,
		EndTimestamp: b.EndTimestamp(),
		Datetime:     b.Datetime(inst),
		EndDatetime:  b.EndDatetime(inst),
	}
}

// RawBar is one period record as returned by a data provider.
type RawBar struct {
	PeriodStart time.Time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64 // NaN when the provider has no volume
}

// BarFromRaw converts a provider record into a validated bar. Missing or NaN
// volume becomes 0.
func BarFromRaw(instrumentID int64, res string, raw RawBar) (*Bar, error) {
	prices := [4]float64{raw.Open, raw.High, raw.Low, raw.Close}
	for _, p := range prices {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, fmt.Errorf("%w: non-finite price at %s", ErrInvalidBar, raw.PeriodStart.UTC().Format(time.RFC3339))
		}
	}
	volume := int64(0)
	if !math.IsNaN(raw.Volume) && !math.IsInf(raw.Volume, 0) && raw.Volume > 0 {
		volume = int64(raw.Volume)
	}
	return NewBar(Bar{
		InstrumentID: instrumentID,
		Timestamp:    raw.PeriodStart.Unix(),
		Resolution:   res,
		Open:         decimal.NewFromFloat(raw.Open),
		High:         decimal.NewFromFloat(raw.High),
		Low:          decimal.NewFromFloat(raw.Low),
		Close:        decimal.NewFromFloat(raw.Close),
		Volume:       volume,
	})
}
