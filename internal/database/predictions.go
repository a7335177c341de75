package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/models"
)

// InsertPrediction stores a new prediction and fills in its ID and CreatedAt.
func (db *DB) InsertPrediction(ctx context.Context, p *models.Prediction) error {
	query := `
		INSERT INTO predictions (
			symbol, prediction_type, confidence, target_price, timeframe_days,
			reasoning, predicted_at, actual_outcome
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	var targetPrice sql.NullFloat64
	if p.TargetPrice != nil {
		targetPrice = sql.NullFloat64{Float64: *p.TargetPrice, Valid: true}
	}
	var timeframe sql.NullInt64
	if p.TimeframeDays != nil {
		timeframe = sql.NullInt64{Int64: int64(*p.TimeframeDays), Valid: true}
	}

	err := db.conn.QueryRowContext(ctx, query,
		p.Symbol, string(p.PredictionType), p.Confidence, targetPrice, timeframe,
		p.Reasoning, p.PredictedAt, string(p.ActualOutcome),
	).Scan(&p.ID, &p.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}
	return nil
}

// ListPredictions returns predictions matching filter, most recent first.
func (db *DB) ListPredictions(ctx context.Context, filter models.PredictionFilter) ([]*models.Prediction, error) {
	query := `
		SELECT id, symbol, prediction_type, confidence, target_price, timeframe_days,
		       reasoning, predicted_at, actual_outcome, resolved_at, created_at
		FROM predictions
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.Symbol != "" {
		query += fmt.Sprintf(" AND symbol = $%d", argIdx)
		args = append(args, filter.Symbol)
		argIdx++
	}

	if filter.Outcome != "" {
		query += fmt.Sprintf(" AND actual_outcome = $%d", argIdx)
		args = append(args, string(filter.Outcome))
		argIdx++
	}

	query += " ORDER BY predicted_at DESC, id DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	defer rows.Close()

	predictions := []*models.Prediction{}
	for rows.Next() {
		var p models.Prediction
		var predictionType, outcome string
		var targetPrice sql.NullFloat64
		var timeframe sql.NullInt64
		var reasoning sql.NullString
		var resolvedAt sql.NullTime
		err := rows.Scan(
			&p.ID, &p.Symbol, &predictionType, &p.Confidence, &targetPrice, &timeframe,
			&reasoning, &p.PredictedAt, &outcome, &resolvedAt, &p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		p.PredictionType = models.PredictionType(predictionType)
		p.ActualOutcome = models.Outcome(outcome)
		if targetPrice.Valid {
			v := targetPrice.Float64
			p.TargetPrice = &v
		}
		if timeframe.Valid {
			v := int(timeframe.Int64)
			p.TimeframeDays = &v
		}
		p.Reasoning = reasoning.String
		if resolvedAt.Valid {
			v := resolvedAt.Time
			p.ResolvedAt = &v
		}
		predictions = append(predictions, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate predictions: %w", err)
	}

	return predictions, nil
}

// ResolvePrediction sets a terminal outcome on a pending prediction. It
// reports false when the prediction does not exist or is already resolved.
func (db *DB) ResolvePrediction(ctx context.Context, id int64, outcome models.Outcome, at time.Time) (bool, error) {
	query := `
		UPDATE predictions
		SET actual_outcome = $1, resolved_at = $2
		WHERE id = $3 AND actual_outcome = 'pending'
	`
	result, err := db.conn.ExecContext(ctx, query, string(outcome), at, id)
	if err != nil {
		return false, fmt.Errorf("failed to resolve prediction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to resolve prediction: %w", err)
	}
	return affected > 0, nil
}
