package models

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Instrument is a tradeable entity. (Symbol, Exchange) is unique across the
// catalogue; an empty Exchange is a value of its own.
type Instrument struct {
	ID       int64  `json:"id" yaml:"-"`
	Symbol   string `json:"symbol" yaml:"symbol" validate:"required,max=10"`
	Name     string `json:"name,omitempty" yaml:"name" validate:"max=100"`
	Exchange string `json:"exchange,omitempty" yaml:"exchange" validate:"max=20"`
	Currency string `json:"currency" yaml:"currency" validate:"required,max=20"`
	Timezone string `json:"timezone,omitempty" yaml:"timezone" validate:"omitempty,timezone"`
	Category string `json:"category,omitempty" yaml:"category" validate:"max=100"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// NewInstrument validates in and returns a copy ready to be persisted.
func NewInstrument(in Instrument) (*Instrument, error) {
	in.Symbol = strings.TrimSpace(in.Symbol)
	in.Exchange = strings.TrimSpace(in.Exchange)
	if err := ValidateInstrument(&in); err != nil {
		return nil, err
	}
	return &in, nil
}

// ValidateInstrument checks field constraints.
func ValidateInstrument(i *Instrument) error {
	if err := validatorInstance().Struct(i); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidInstrument, strings.ToLower(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidInstrument, err)
	}
	return nil
}

func (i *Instrument) String() string {
	return i.Symbol
}

// Key identifies the instrument by its unique pair.
func (i *Instrument) Key() string {
	if i.Exchange == "" {
		return i.Symbol
	}
	return i.Symbol + "@" + i.Exchange
}

// Location returns the instrument timezone, or nil when none is set.
func (i *Instrument) Location() *time.Location {
	if i == nil || i.Timezone == "" {
		return nil
	}
	loc, err := time.LoadLocation(i.Timezone)
	if err != nil {
		return nil
	}
	return loc
}

// InstrumentPatch holds the fields a caller may change; nil means unchanged.
type InstrumentPatch struct {
	Name     *string `json:"name"`
	Exchange *string `json:"exchange"`
	Currency *string `json:"currency"`
	Timezone *string `json:"timezone"`
	Category *string `json:"category"`
}

// Apply returns a validated copy of i with the patch applied.
func (p InstrumentPatch) Apply(i Instrument) (*Instrument, error) {
	if p.Name != nil {
		i.Name = *p.Name
	}
	if p.Exchange != nil {
		i.Exchange = *p.Exchange
	}
	if p.Currency != nil {
		i.Currency = *p.Currency
	}
	if p.Timezone != nil {
		i.Timezone = *p.Timezone
	}
	if p.Category != nil {
		i.Category = *p.Category
	}
	return NewInstrument(i)
}
