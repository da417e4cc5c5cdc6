package models

// Requests for the HTTP API. Bound by echo and completed with defaults before validation.

type InstrumentRequest struct {
	Symbol   string `json:"symbol" validate:"required,max=10"`
	Name     string `json:"name" validate:"max=100"`
	Exchange string `json:"exchange" validate:"max=20"`
	Currency string `json:"currency" validate:"required,max=20"`
	Timezone string `json:"timezone" validate:"omitempty,timezone"`
	Category string `json:"category" validate:"max=100"`
}

// Instrument converts the request into an unsaved instrument.
func (r InstrumentRequest) Instrument() Instrument {
	return Instrument{
		Symbol:   r.Symbol,
		Name:     r.Name,
		Exchange: r.Exchange,
		Currency: r.Currency,
		Timezone: r.Timezone,
		Category: r.Category,
	}
}

type InstrumentListRequest struct {
	Exchange string `query:"exchange"`
	Category string `query:"category"`
}

type InstrumentRef struct {
	Symbol   string `param:"symbol" validate:"required,max=10"`
	Exchange string `query:"exchange" validate:"max=20"`
}

type BarsRequest struct {
	Symbol     string `param:"symbol" validate:"required,max=10"`
	Exchange   string `query:"exchange" validate:"max=20"`
	Resolution string `query:"resolution" default:"D" validate:"required,resolution"`
	From       string `query:"from" validate:"omitempty,instant"`
	To         string `query:"to" validate:"omitempty,instant"`
	Limit      int    `query:"limit" default:"1000" validate:"gte=1,lte=50000"`
}

type SyncRequest struct {
	Symbol     string `param:"symbol" validate:"required,max=10"`
	Exchange   string `query:"exchange" validate:"max=20"`
	Resolution string `query:"resolution" default:"D" validate:"required,resolution"`
}

type BatchUpdateRequest struct {
	Symbols    []string `json:"symbols"`
	All        bool     `json:"all"`
	Resolution string   `json:"resolution" default:"D" validate:"required,resolution"`
}
