package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/models"
)

const insertPickQuery = `
	INSERT INTO picks (
		batch_id, ai_name, symbol, entry_price, target_price, stop_loss,
		confidence_score, reasoning, timeframe, sector, catalyst,
		is_top_pick, rank, is_reviewer, learned_from, contrarian_bet, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
`

// SavePicks stores the primary-source picks of one batch in a single transaction.
func (db *DB) SavePicks(ctx context.Context, batchID string, picks []models.Pick) error {
	rows := make([]models.ReviewerPick, len(picks))
	for i, p := range picks {
		rows[i] = models.ReviewerPick{Pick: p}
	}
	if err := db.insertPicks(ctx, batchID, rows, false); err != nil {
		return fmt.Errorf("failed to save picks: %w", err)
	}
	return nil
}

// SaveReviewerPicks stores the reviewer's picks of one batch.
func (db *DB) SaveReviewerPicks(ctx context.Context, batchID string, picks []models.ReviewerPick) error {
	if err := db.insertPicks(ctx, batchID, picks, true); err != nil {
		return fmt.Errorf("failed to save reviewer picks: %w", err)
	}
	return nil
}

func (db *DB) insertPicks(ctx context.Context, batchID string, picks []models.ReviewerPick, reviewer bool) error {
	if len(picks) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertPickQuery)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range picks {
		learnedFrom := p.LearnedFrom
		if learnedFrom == nil {
			learnedFrom = []string{}
		}
		createdAt := p.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := stmt.ExecContext(ctx,
			batchID, p.AIName, p.Symbol, p.EntryPrice, p.TargetPrice, p.StopLoss,
			p.ConfidenceScore, p.Reasoning, p.Timeframe, p.Sector, p.Catalyst,
			p.IsTopPick, p.Rank, reviewer, pq.Array(learnedFrom), p.ContrarianBet, createdAt,
		)
		if err != nil {
			return fmt.Errorf("insert %s/%s: %w", p.AIName, p.Symbol, err)
		}
	}

	return tx.Commit()
}

// ListPicksSince returns every pick created at or after since, oldest first.
func (db *DB) ListPicksSince(ctx context.Context, since time.Time) ([]models.Pick, error) {
	query := `
		SELECT ai_name, symbol, entry_price, target_price, stop_loss,
		       confidence_score, reasoning, timeframe, sector, catalyst,
		       is_top_pick, rank, created_at
		FROM picks
		WHERE created_at >= $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list picks: %w", err)
	}
	defer rows.Close()

	picks := []models.Pick{}
	for rows.Next() {
		var p models.Pick
		var stopLoss decimal.NullDecimal
		var reasoning, timeframe, sector, catalyst sql.NullString
		err := rows.Scan(
			&p.AIName, &p.Symbol, &p.EntryPrice, &p.TargetPrice, &stopLoss,
			&p.ConfidenceScore, &reasoning, &timeframe, &sector, &catalyst,
			&p.IsTopPick, &p.Rank, &p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pick: %w", err)
		}
		if stopLoss.Valid {
			p.StopLoss = stopLoss.Decimal
		}
		p.Reasoning = reasoning.String
		p.Timeframe = timeframe.String
		p.Sector = sector.String
		p.Catalyst = catalyst.String
		picks = append(picks, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate picks: %w", err)
	}

	return picks, nil
}
