package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/updownlabs/updownbot/internal/domain"
)

// TradeLog implements domain.TradeLog.
type TradeLog struct {
	pool *pgxpool.Pool
}

func NewTradeLog(pool *pgxpool.Pool) *TradeLog {
	return &TradeLog{pool: pool}
}

func (s *TradeLog) InsertClosed(ctx context.Context, pos domain.ClosedPosition) error {
	const query = `
		INSERT INTO closed_positions (
			id, market_id, asset, timeframe, side, token_id,
			entry_price, size, cost_basis, conviction, tier, probe_key,
			opened_at, end_time, reason, exit_price, realized_pnl, won, closed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19
		) ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		pos.ID, pos.MarketID, pos.Asset, string(pos.Timeframe), string(pos.Side), pos.TokenID,
		pos.EntryPrice, pos.Size, pos.CostBasis, pos.Conviction, string(pos.Tier), pos.Probe.String(),
		pos.OpenedAt, pos.EndTime, string(pos.Reason), pos.ExitPrice, pos.RealizedPnL, pos.Won, pos.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert closed position %s: %w", pos.ID, err)
	}
	return nil
}

func (s *TradeLog) UpsertProbe(ctx context.Context, key domain.ProbeKey, rec domain.ProbeRecord) error {
	const query = `
		INSERT INTO probe_records (probe_key, wins, losses, rolling, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (probe_key) DO UPDATE SET
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			rolling = EXCLUDED.rolling,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, key.String(), rec.Wins, rec.Losses, rec.Rolling); err != nil {
		return fmt.Errorf("postgres: upsert probe %s: %w", key, err)
	}
	return nil
}

func (s *TradeLog) LoadProbes(ctx context.Context) (map[domain.ProbeKey]domain.ProbeRecord, error) {
	rows, err := s.pool.Query(ctx, "SELECT probe_key, wins, losses, rolling FROM probe_records")
	if err != nil {
		return nil, fmt.Errorf("postgres: load probes: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.ProbeKey]domain.ProbeRecord)
	for rows.Next() {
		var raw string
		var rec domain.ProbeRecord
		if err := rows.Scan(&raw, &rec.Wins, &rec.Losses, &rec.Rolling); err != nil {
			return nil, fmt.Errorf("postgres: scan probe: %w", err)
		}
		if key, ok := domain.ParseProbeKey(raw); ok {
			out[key] = rec
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load probes: %w", err)
	}
	return out, nil
}

func (s *TradeLog) ListClosed(ctx context.Context, limit int) ([]domain.ClosedPosition, error) {
	const query = `
		SELECT id, market_id, asset, timeframe, side, token_id,
			entry_price, size, cost_basis, conviction, tier, probe_key,
			opened_at, end_time, reason, exit_price, realized_pnl, won, closed_at
		FROM closed_positions
		ORDER BY closed_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed: %w", err)
	}
	defer rows.Close()

	var out []domain.ClosedPosition
	for rows.Next() {
		var p domain.ClosedPosition
		var tf, side, tier, probeRaw, reason string
		if err := rows.Scan(
			&p.ID, &p.MarketID, &p.Asset, &tf, &side, &p.TokenID,
			&p.EntryPrice, &p.Size, &p.CostBasis, &p.Conviction, &tier, &probeRaw,
			&p.OpenedAt, &p.EndTime, &reason, &p.ExitPrice, &p.RealizedPnL, &p.Won, &p.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan closed position: %w", err)
		}
		p.Timeframe = domain.Timeframe(tf)
		p.Side = domain.Side(side)
		p.Tier = domain.BetTier(tier)
		p.Reason = domain.CloseReason(reason)
		if key, ok := domain.ParseProbeKey(probeRaw); ok {
			p.Probe = key
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list closed: %w", err)
	}
	return out, nil
}

var _ domain.TradeLog = (*TradeLog)(nil)
