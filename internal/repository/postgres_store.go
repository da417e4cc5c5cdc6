package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"candlestick/internal/domain/models"
	domrepo "candlestick/internal/domain/repository"
	applogger "candlestick/pkg/logger"
	"candlestick/pkg/postgres"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// PostgresSchema creates the instruments and bars tables.
var PostgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS instruments (
        id       BIGSERIAL PRIMARY KEY,
        symbol   VARCHAR(10)  NOT NULL,
        name     VARCHAR(100) NOT NULL DEFAULT '',
        exchange VARCHAR(20)  NOT NULL DEFAULT '',
        currency VARCHAR(20)  NOT NULL,
        timezone VARCHAR(64)  NOT NULL DEFAULT '',
        category VARCHAR(100) NOT NULL DEFAULT '',
        CONSTRAINT instruments_symbol_exchange_key UNIQUE (symbol, exchange)
    )`,
	`CREATE TABLE IF NOT EXISTS bars (
        id            BIGSERIAL PRIMARY KEY,
        instrument_id BIGINT NOT NULL REFERENCES instruments (id) ON DELETE CASCADE,
        resolution    VARCHAR(3) NOT NULL,
        ts            BIGINT NOT NULL,
        open          NUMERIC(15, 6) NOT NULL,
        low           NUMERIC(15, 6) NOT NULL,
        high          NUMERIC(15, 6) NOT NULL,
        close         NUMERIC(15, 6) NOT NULL,
        volume        BIGINT NOT NULL DEFAULT 0
    )`,
	`CREATE INDEX IF NOT EXISTS bars_series_idx ON bars (instrument_id, resolution, ts)`,
}

// Prices are read back as text; NUMERIC(15, 6) never exceeds float64 precision on the way in.
const pgBarColumns = "id, instrument_id, resolution, ts, open::text, low::text, high::text, close::text, volume"

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	client *postgres.Client
	l      *applogger.Logger
}

func NewPostgresStore(pg *postgres.Client) *PostgresStore {
	return &PostgresStore{client: pg}
}

var _ domrepo.Store = (*PostgresStore)(nil)

// SetLogger injects a structured logger.
func (s *PostgresStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *PostgresStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, PostgresSchema)
}

func (s *PostgresStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *PostgresStore) Close() error {
	return s.client.Close()
}

func (s *PostgresStore) CreateInstrument(ctx context.Context, inst *models.Instrument) error {
	const q = `INSERT INTO instruments (symbol, name, exchange, currency, timezone, category)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := s.client.Pool().QueryRow(ctx, q,
		inst.Symbol, inst.Name, inst.Exchange, inst.Currency, inst.Timezone, inst.Category,
	).Scan(&inst.ID)
	if postgres.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s", models.ErrDuplicateInstrument, inst.Key())
	}
	if err != nil {
		return fmt.Errorf("insert instrument: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateInstrument(ctx context.Context, inst *models.Instrument) error {
	const q = `UPDATE instruments
        SET symbol = $1, name = $2, exchange = $3, currency = $4, timezone = $5, category = $6
        WHERE id = $7`
	tag, err := s.client.Pool().Exec(ctx, q,
		inst.Symbol, inst.Name, inst.Exchange, inst.Currency, inst.Timezone, inst.Category, inst.ID)
	if postgres.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s", models.ErrDuplicateInstrument, inst.Key())
	}
	if err != nil {
		return fmt.Errorf("update instrument: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", models.ErrInstrumentNotFound, inst.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteInstrument(ctx context.Context, id int64) error {
	tag, err := s.client.Pool().Exec(ctx, "DELETE FROM instruments WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete instrument: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", models.ErrInstrumentNotFound, id)
	}
	return nil
}

func (s *PostgresStore) GetInstrument(ctx context.Context, symbol, exchange string) (*models.Instrument, error) {
	var inst models.Instrument
	err := s.client.Pool().QueryRow(ctx,
		"SELECT "+instrumentColumns+" FROM instruments WHERE symbol = $1 AND exchange = $2",
		symbol, exchange,
	).Scan(&inst.ID, &inst.Symbol, &inst.Name, &inst.Exchange, &inst.Currency, &inst.Timezone, &inst.Category)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrInstrumentNotFound, (&models.Instrument{Symbol: symbol, Exchange: exchange}).Key())
	}
	if err != nil {
		return nil, fmt.Errorf("get instrument: %w", err)
	}
	return &inst, nil
}

func (s *PostgresStore) ListInstruments(ctx context.Context, filter domrepo.InstrumentFilter) ([]*models.Instrument, error) {
	b := newPgWhere()
	if filter.Symbol != "" {
		b.add("symbol", filter.Symbol)
	}
	if filter.Exchange != "" {
		b.add("exchange", filter.Exchange)
	}
	if filter.Category != "" {
		b.add("category", filter.Category)
	}
	q := "SELECT " + instrumentColumns + " FROM instruments" + b.clause() + " ORDER BY symbol, exchange"

	rows, err := s.client.Pool().Query(ctx, q, b.args...)
	if err != nil {
		return nil, fmt.Errorf("query instruments: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Instrument, error) {
		var inst models.Instrument
		err := row.Scan(&inst.ID, &inst.Symbol, &inst.Name, &inst.Exchange, &inst.Currency, &inst.Timezone, &inst.Category)
		return &inst, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan instruments: %w", err)
	}
	return out, nil
}

// InsertBars bulk loads bars with COPY.
func (s *PostgresStore) InsertBars(ctx context.Context, bars []*models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	n, err := s.client.Pool().CopyFrom(ctx,
		pgx.Identifier{"bars"},
		[]string{"instrument_id", "resolution", "ts", "open", "low", "high", "close", "volume"},
		pgx.CopyFromSlice(len(bars), func(i int) ([]any, error) {
			b := bars[i]
			return []any{b.InstrumentID, b.Resolution, b.Timestamp,
				b.Open.InexactFloat64(), b.Low.InexactFloat64(), b.High.InexactFloat64(), b.Close.InexactFloat64(),
				b.Volume}, nil
		}),
	)
	if err != nil {
		s.l.Error("postgres insert_bars error", applogger.Int("rows", len(bars)), applogger.Error(err))
		return fmt.Errorf("copy bars: %w", err)
	}
	s.l.Debug("postgres insert_bars ok", applogger.Int64("rows", n))
	return nil
}

func (s *PostgresStore) DeleteBars(ctx context.Context, instrumentID int64, resolution string, from, to int64) (int64, error) {
	tag, err := s.client.Pool().Exec(ctx,
		"DELETE FROM bars WHERE instrument_id = $1 AND resolution = $2 AND ts >= $3 AND ts <= $4",
		instrumentID, resolution, from, to)
	if err != nil {
		return 0, fmt.Errorf("delete bars: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) ListBars(ctx context.Context, q domrepo.BarQuery) ([]*models.Bar, error) {
	b := newPgWhere()
	b.add("instrument_id", q.InstrumentID)
	if q.Resolution != "" {
		b.add("resolution", q.Resolution)
	}
	if q.From != 0 {
		b.addOp("ts", ">=", q.From)
	}
	if q.To != 0 {
		b.addOp("ts", "<=", q.To)
	}
	stmt := "SELECT " + pgBarColumns + " FROM bars" + b.clause() + " ORDER BY ts ASC"
	if q.Limit > 0 {
		b.args = append(b.args, q.Limit)
		stmt += fmt.Sprintf(" LIMIT $%d", len(b.args))
	}
	return s.queryBars(ctx, stmt, b.args...)
}

func (s *PostgresStore) LatestBar(ctx context.Context, instrumentID int64, resolution string) (*models.Bar, error) {
	b := newPgWhere()
	b.add("instrument_id", instrumentID)
	if resolution != "" {
		b.add("resolution", resolution)
	}
	bars, err := s.queryBars(ctx, "SELECT "+pgBarColumns+" FROM bars"+b.clause()+" ORDER BY ts DESC LIMIT 1", b.args...)
	if err != nil || len(bars) == 0 {
		return nil, err
	}
	return bars[0], nil
}

func (s *PostgresStore) queryBars(ctx context.Context, q string, args ...any) ([]*models.Bar, error) {
	rows, err := s.client.Pool().Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanPgBar)
	if err != nil {
		return nil, fmt.Errorf("scan bars: %w", err)
	}
	return out, nil
}

func scanPgBar(row pgx.CollectableRow) (*models.Bar, error) {
	var (
		b      models.Bar
		prices [4]string
	)
	if err := row.Scan(&b.ID, &b.InstrumentID, &b.Resolution, &b.Timestamp,
		&prices[0], &prices[1], &prices[2], &prices[3], &b.Volume); err != nil {
		return nil, err
	}
	dst := [4]*decimal.Decimal{&b.Open, &b.Low, &b.High, &b.Close}
	for i, p := range prices {
		d, err := decimal.NewFromString(p)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", p, err)
		}
		*dst[i] = d
	}
	return &b, nil
}

// pgWhere accumulates numbered placeholders for a WHERE clause.
type pgWhere struct {
	conds []string
	args  []any
}

func newPgWhere() *pgWhere { return &pgWhere{} }

func (w *pgWhere) add(col string, v any) { w.addOp(col, "=", v) }

func (w *pgWhere) addOp(col, op string, v any) {
	w.args = append(w.args, v)
	w.conds = append(w.conds, fmt.Sprintf("%s %s $%d", col, op, len(w.args)))
}

func (w *pgWhere) clause() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}
