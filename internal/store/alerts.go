package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/kitstok/internal/model"
)

// RecordAlert appends a notification attempt to the alert log.
func RecordAlert(ctx context.Context, db *sql.DB, a model.Alert) error {
	if a.SentAt.IsZero() {
		a.SentAt = time.Now()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO alerts (lot_number, test_name, expiry_date, days_left, destination, outcome, reason, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.LotNumber, a.TestName, a.ExpiryDate, a.DaysLeft, a.Destination, a.Outcome, a.Reason, a.SentAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording alert: %w", err)
	}
	return nil
}

// ListAlerts returns the most recent alert attempts, newest first.
func ListAlerts(ctx context.Context, db *sql.DB, limit int) ([]model.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, lot_number, test_name, expiry_date, days_left, destination, outcome, reason, sent_at
		 FROM alerts ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var a model.Alert
		var reason sql.NullString
		if err := rows.Scan(&a.ID, &a.LotNumber, &a.TestName, &a.ExpiryDate, &a.DaysLeft, &a.Destination, &a.Outcome, &reason, &a.SentAt); err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		a.Reason = reason.String
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
