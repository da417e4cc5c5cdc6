package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"candlestick/internal/domain/models"
	domrepo "candlestick/internal/domain/repository"
	pkgch "candlestick/pkg/clickhouse"
	applogger "candlestick/pkg/logger"
)

// ClickHouseSchema creates the instruments and bars tables.
var ClickHouseSchema = []string{
	`CREATE TABLE IF NOT EXISTS instruments (
        id       Int64,
        symbol   String,
        name     String,
        exchange String,
        currency String,
        timezone String,
        category String
    ) ENGINE = MergeTree ORDER BY id`,
	`CREATE TABLE IF NOT EXISTS bars (
        id            Int64,
        instrument_id Int64,
        resolution    LowCardinality(String),
        ts            Int64,
        open          Decimal(15, 6),
        low           Decimal(15, 6),
        high          Decimal(15, 6),
        close         Decimal(15, 6),
        volume        Int64
    ) ENGINE = MergeTree ORDER BY (instrument_id, resolution, ts)`,
}

const (
	instrumentColumns = "id, symbol, name, exchange, currency, timezone, category"
	barColumns        = "id, instrument_id, resolution, ts, open, low, high, close, volume"
	insertChunkSize   = 2000
)

// ClickHouseStore implements Store backed by ClickHouse. ClickHouse has no
// unique constraints or sequences, so writes that allocate IDs or check
// uniqueness are serialised in process.
type ClickHouseStore struct {
	client *pkgch.Client
	db     *sql.DB
	l      *applogger.Logger
	mu     sync.Mutex
}

func NewClickHouseStore(ch *pkgch.Client) *ClickHouseStore {
	return &ClickHouseStore{client: ch, db: ch.DB()}
}

var _ domrepo.Store = (*ClickHouseStore)(nil)

// SetLogger injects a structured logger.
func (s *ClickHouseStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *ClickHouseStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, ClickHouseSchema)
}

func (s *ClickHouseStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *ClickHouseStore) Close() error {
	return s.client.Close()
}

func (s *ClickHouseStore) CreateInstrument(ctx context.Context, inst *models.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.findInstrument(ctx, inst.Symbol, inst.Exchange)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", models.ErrDuplicateInstrument, inst.Key())
	}
	id, err := s.nextID(ctx, "instruments")
	if err != nil {
		return err
	}

	q := "INSERT INTO instruments (" + instrumentColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?)"
	if _, err := s.db.ExecContext(ctx, q,
		id, inst.Symbol, inst.Name, inst.Exchange, inst.Currency, inst.Timezone, inst.Category,
	); err != nil {
		return fmt.Errorf("insert instrument: %w", err)
	}
	inst.ID = id
	return nil
}

func (s *ClickHouseStore) UpdateInstrument(ctx context.Context, inst *models.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.instrumentByID(ctx, inst.ID); err != nil {
		return err
	}
	other, err := s.findInstrument(ctx, inst.Symbol, inst.Exchange)
	if err != nil {
		return err
	}
	if other != nil && other.ID != inst.ID {
		return fmt.Errorf("%w: %s", models.ErrDuplicateInstrument, inst.Key())
	}

	const q = `ALTER TABLE instruments
        UPDATE symbol = ?, name = ?, exchange = ?, currency = ?, timezone = ?, category = ?
        WHERE id = ?
        SETTINGS mutations_sync = 1`
	if _, err := s.db.ExecContext(ctx, q,
		inst.Symbol, inst.Name, inst.Exchange, inst.Currency, inst.Timezone, inst.Category, inst.ID,
	); err != nil {
		return fmt.Errorf("update instrument: %w", err)
	}
	return nil
}

func (s *ClickHouseStore) DeleteInstrument(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.instrumentByID(ctx, id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM bars WHERE instrument_id = ?", id); err != nil {
		return fmt.Errorf("delete instrument bars: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM instruments WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete instrument: %w", err)
	}
	return nil
}

func (s *ClickHouseStore) GetInstrument(ctx context.Context, symbol, exchange string) (*models.Instrument, error) {
	inst, err := s.findInstrument(ctx, symbol, exchange)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrInstrumentNotFound, (&models.Instrument{Symbol: symbol, Exchange: exchange}).Key())
	}
	return inst, nil
}

func (s *ClickHouseStore) ListInstruments(ctx context.Context, filter domrepo.InstrumentFilter) ([]*models.Instrument, error) {
	var (
		where []string
		args  []any
	)
	if filter.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, filter.Symbol)
	}
	if filter.Exchange != "" {
		where = append(where, "exchange = ?")
		args = append(args, filter.Exchange)
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	q := "SELECT " + instrumentColumns + " FROM instruments"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY symbol, exchange"
	return s.queryInstruments(ctx, q, args...)
}

func (s *ClickHouseStore) InsertBars(ctx context.Context, bars []*models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.nextID(ctx, "bars")
	if err != nil {
		return err
	}
	for from := 0; from < len(bars); from += insertChunkSize {
		to := min(from+insertChunkSize, len(bars))

		values := make([]string, 0, to-from)
		args := make([]any, 0, (to-from)*9)
		for _, b := range bars[from:to] {
			b.ID = id
			id++
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, b.ID, b.InstrumentID, b.Resolution, b.Timestamp,
				b.Open, b.Low, b.High, b.Close, b.Volume)
		}
		q := "INSERT INTO bars (" + barColumns + ") VALUES " + strings.Join(values, ",")
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse insert_bars error",
				applogger.Int("rows", to-from),
				applogger.Error(err),
			)
			return fmt.Errorf("insert bars: %w", err)
		}
	}
	s.l.Debug("clickhouse insert_bars ok",
		applogger.Int("rows", len(bars)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func (s *ClickHouseStore) DeleteBars(ctx context.Context, instrumentID int64, resolution string, from, to int64) (int64, error) {
	const where = "instrument_id = ? AND resolution = ? AND ts >= ? AND ts <= ?"

	var n uint64
	if err := s.db.QueryRowContext(ctx, "SELECT count() FROM bars WHERE "+where,
		instrumentID, resolution, from, to).Scan(&n); err != nil {
		return 0, fmt.Errorf("count bars: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM bars WHERE "+where,
		instrumentID, resolution, from, to); err != nil {
		return 0, fmt.Errorf("delete bars: %w", err)
	}
	return int64(n), nil
}

func (s *ClickHouseStore) ListBars(ctx context.Context, q domrepo.BarQuery) ([]*models.Bar, error) {
	start := time.Now()
	where := []string{"instrument_id = ?"}
	args := []any{q.InstrumentID}
	if q.Resolution != "" {
		where = append(where, "resolution = ?")
		args = append(args, q.Resolution)
	}
	if q.From != 0 {
		where = append(where, "ts >= ?")
		args = append(args, q.From)
	}
	if q.To != 0 {
		where = append(where, "ts <= ?")
		args = append(args, q.To)
	}
	stmt := "SELECT " + barColumns + " FROM bars WHERE " + strings.Join(where, " AND ") + " ORDER BY ts ASC"
	if q.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, q.Limit)
	}

	out, err := s.queryBars(ctx, stmt, args...)
	if err != nil {
		s.l.Error("clickhouse list_bars error",
			applogger.Int64("instrument_id", q.InstrumentID),
			applogger.String("resolution", q.Resolution),
			applogger.Error(err),
		)
		return nil, err
	}
	s.l.Debug("clickhouse list_bars ok",
		applogger.Int64("instrument_id", q.InstrumentID),
		applogger.String("resolution", q.Resolution),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *ClickHouseStore) LatestBar(ctx context.Context, instrumentID int64, resolution string) (*models.Bar, error) {
	stmt := "SELECT " + barColumns + " FROM bars WHERE instrument_id = ?"
	args := []any{instrumentID}
	if resolution != "" {
		stmt += " AND resolution = ?"
		args = append(args, resolution)
	}
	stmt += " ORDER BY ts DESC LIMIT 1"

	bars, err := s.queryBars(ctx, stmt, args...)
	if err != nil || len(bars) == 0 {
		return nil, err
	}
	return bars[0], nil
}

func (s *ClickHouseStore) nextID(ctx context.Context, table string) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, "SELECT max(id) FROM "+table).Scan(&id); err != nil {
		return 0, fmt.Errorf("next %s id: %w", table, err)
	}
	return id + 1, nil
}

func (s *ClickHouseStore) findInstrument(ctx context.Context, symbol, exchange string) (*models.Instrument, error) {
	out, err := s.queryInstruments(ctx,
		"SELECT "+instrumentColumns+" FROM instruments WHERE symbol = ? AND exchange = ? LIMIT 1",
		symbol, exchange)
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return out[0], nil
}

func (s *ClickHouseStore) instrumentByID(ctx context.Context, id int64) (*models.Instrument, error) {
	var inst models.Instrument
	err := s.db.QueryRowContext(ctx,
		"SELECT "+instrumentColumns+" FROM instruments WHERE id = ?", id).
		Scan(&inst.ID, &inst.Symbol, &inst.Name, &inst.Exchange, &inst.Currency, &inst.Timezone, &inst.Category)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", models.ErrInstrumentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get instrument: %w", err)
	}
	return &inst, nil
}

func (s *ClickHouseStore) queryInstruments(ctx context.Context, q string, args ...any) ([]*models.Instrument, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query instruments: %w", err)
	}
	defer rows.Close()

	var out []*models.Instrument
	for rows.Next() {
		var inst models.Instrument
		if err := rows.Scan(&inst.ID, &inst.Symbol, &inst.Name, &inst.Exchange, &inst.Currency, &inst.Timezone, &inst.Category); err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		out = append(out, &inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *ClickHouseStore) queryBars(ctx context.Context, q string, args ...any) ([]*models.Bar, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var out []*models.Bar
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.ID, &b.InstrumentID, &b.Resolution, &b.Timestamp,
			&b.Open, &b.Low, &b.High, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		out = append(out, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
