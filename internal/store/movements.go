package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/kitstok/internal/model"
)

// RecordMovements appends movements to the movement log in one transaction.
// Movements without an ID get a fresh UUID.
func RecordMovements(ctx context.Context, db *sql.DB, moves []model.Movement) error {
	if len(moves) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range moves {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.MovedAt.IsZero() {
			m.MovedAt = time.Now()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO movements (id, lot_number, test_name, quantity, expiry_date, from_status, to_status, actor, moved_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.LotNumber, m.TestName, m.Quantity, m.ExpiryDate, string(m.From), string(m.To), m.Actor, m.MovedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("recording movement of %s/%s: %w", m.LotNumber, m.TestName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing movements: %w", err)
	}
	return nil
}

// ListMovements returns the most recent movements, newest first.
// A limit of 0 returns all movements.
func ListMovements(ctx context.Context, db *sql.DB, limit int) ([]model.Movement, error) {
	query := `SELECT id, lot_number, test_name, quantity, expiry_date, from_status, to_status, actor, moved_at
	          FROM movements ORDER BY moved_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing movements: %w", err)
	}
	defer rows.Close()

	var moves []model.Movement
	for rows.Next() {
		var m model.Movement
		var from, to string
		if err := rows.Scan(&m.ID, &m.LotNumber, &m.TestName, &m.Quantity, &m.ExpiryDate, &from, &to, &m.Actor, &m.MovedAt); err != nil {
			return nil, fmt.Errorf("scanning movement: %w", err)
		}
		m.From = model.Status(from)
		m.To = model.Status(to)
		moves = append(moves, m)
	}
	return moves, rows.Err()
}
