package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/pkg/postgres"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// SignalSchema creates the signals table and its lookup indexes.
var SignalSchema = []string{
	`create table if not exists signals (
		id bigserial primary key,
		symbol text not null,
		timeframe text not null,
		signal_type text not null,
		confidence double precision not null,
		algorithms_triggered text[] not null default '{}',
		entry_price double precision not null,
		stop_loss double precision not null,
		take_profit double precision not null,
		risk_reward_ratio double precision not null,
		status text not null default 'PENDING',
		generated_at timestamptz not null,
		valid_until timestamptz not null,
		updated_at timestamptz not null default now()
	);`,
	`create index if not exists signals_symbol_timeframe_status_idx on signals(symbol, timeframe, status);`,
	`create index if not exists signals_generated_valid_idx on signals(generated_at, valid_until);`,
}

const signalColumns = `id, symbol, timeframe, signal_type, confidence, algorithms_triggered,
	entry_price, stop_loss, take_profit, risk_reward_ratio, status, generated_at, valid_until`

// PostgresSignalStore implements SignalStore on pgx.
type PostgresSignalStore struct {
	db postgres.Querier
}

func NewPostgresSignalStore(db postgres.Querier) *PostgresSignalStore {
	return &PostgresSignalStore{db: db}
}

func (s *PostgresSignalStore) Save(ctx context.Context, sig *models.Signal) error {
	if sig == nil {
		return errors.New("nil signal")
	}
	row := s.db.QueryRow(ctx, `
		insert into signals(
			symbol, timeframe, signal_type, confidence, algorithms_triggered,
			entry_price, stop_loss, take_profit, risk_reward_ratio, status, generated_at, valid_until
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		returning id
	`,
		sig.Symbol,
		string(sig.Timeframe),
		string(sig.SignalType),
		sig.Confidence,
		sig.AlgorithmsTriggered,
		sig.EntryPrice,
		sig.StopLoss,
		sig.TakeProfit,
		sig.RiskRewardRatio,
		string(sig.Status),
		sig.GeneratedAt,
		sig.ValidUntil,
	)
	if err := row.Scan(&sig.ID); err != nil {
		return persistErr("save", errors.Wrap(err, "insert signal"))
	}
	return nil
}

func (s *PostgresSignalStore) Get(ctx context.Context, id int64) (*models.Signal, error) {
	row := s.db.QueryRow(ctx, `select `+signalColumns+` from signals where id = $1`, id)
	sig, err := scanSignal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domrepo.ErrSignalNotFound
		}
		return nil, persistErr("get", errors.Wrapf(err, "select signal %d", id))
	}
	return sig, nil
}

func (s *PostgresSignalStore) Query(ctx context.Context, f domrepo.SignalFilter) ([]models.Signal, int, error) {
	where, args := buildSignalWhere(f)

	var total int
	if err := s.db.QueryRow(ctx, `select count(*) from signals`+where, args...).Scan(&total); err != nil {
		return nil, 0, persistErr("query", errors.Wrap(err, "count signals"))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}
	args = append(args, limit, f.Offset)
	q := fmt.Sprintf(`select %s from signals%s order by generated_at desc, id desc limit $%d offset $%d`,
		signalColumns, where, len(args)-1, len(args))

	out, err := s.collect(ctx, q, args...)
	if err != nil {
		return nil, 0, persistErr("query", err)
	}
	return out, total, nil
}

func (s *PostgresSignalStore) ListOpen(ctx context.Context) ([]models.Signal, error) {
	out, err := s.collect(ctx, `select `+signalColumns+` from signals where status = any($1) order by generated_at asc`,
		statusStrings(models.OpenStatuses))
	if err != nil {
		return nil, persistErr("list_open", err)
	}
	return out, nil
}

func (s *PostgresSignalStore) UpdateStatus(ctx context.Context, id int64, from, to models.SignalStatus) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		update signals set status = $3, updated_at = now()
		where id = $1 and status = $2
	`, id, string(from), string(to))
	if err != nil {
		return false, persistErr("update_status", errors.Wrapf(err, "update signal %d", id))
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresSignalStore) BulkUpdateExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		update signals set status = $1, updated_at = now()
		where status = any($2) and valid_until < $3
	`, string(models.StatusExpired), statusStrings(models.OpenStatuses), now)
	if err != nil {
		return 0, persistErr("cleanup_expired", errors.Wrap(err, "expire signals"))
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresSignalStore) collect(ctx context.Context, q string, args ...any) ([]models.Signal, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select signals")
	}
	defer rows.Close()

	out := make([]models.Signal, 0)
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan signal")
		}
		out = append(out, *sig)
	}
	return out, errors.Wrap(rows.Err(), "iterate signals")
}

func buildSignalWhere(f domrepo.SignalFilter) (string, []any) {
	var conds []string
	var args []any
	if f.Symbol != "" {
		args = append(args, f.Symbol)
		conds = append(conds, fmt.Sprintf("symbol = $%d", len(args)))
	}
	if f.Timeframe != "" {
		args = append(args, string(f.Timeframe))
		conds = append(conds, fmt.Sprintf("timeframe = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		args = append(args, statusStrings(f.Statuses))
		conds = append(conds, fmt.Sprintf("status = any($%d)", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " where " + strings.Join(conds, " and "), args
}

func statusStrings(ss []models.SignalStatus) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

func scanSignal(row pgx.Row) (*models.Signal, error) {
	var (
		sig                   models.Signal
		tf, sigType, status   string
		generated, validUntil time.Time
	)
	if err := row.Scan(
		&sig.ID,
		&sig.Symbol,
		&tf,
		&sigType,
		&sig.Confidence,
		&sig.AlgorithmsTriggered,
		&sig.EntryPrice,
		&sig.StopLoss,
		&sig.TakeProfit,
		&sig.RiskRewardRatio,
		&status,
		&generated,
		&validUntil,
	); err != nil {
		return nil, err
	}
	sig.Timeframe = models.Timeframe(tf)
	sig.SignalType = models.SignalType(sigType)
	sig.Status = models.SignalStatus(status)
	sig.GeneratedAt = generated.UTC()
	sig.ValidUntil = validUntil.UTC()
	return &sig, nil
}
