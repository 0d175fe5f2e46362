package model

import "time"

// Movement records a kit leaving one partition for another. Movements are
// only ever appended.
type Movement struct {
	ID         string    `json:"id"`
	LotNumber  string    `json:"lot_number"`
	TestName   string    `json:"test_name"`
	Quantity   int       `json:"quantity"`
	ExpiryDate string    `json:"expiry_date"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	Actor      string    `json:"actor"`
	MovedAt    time.Time `json:"moved_at"`
}

// NewMovement describes moving k from its current status to to.
func NewMovement(k Kit, to Status, actor string) Movement {
	from := k.Status
	if from == "" {
		from = StatusActive
	}
	return Movement{
		LotNumber:  k.LotNumber,
		TestName:   k.TestName,
		Quantity:   k.Quantity,
		ExpiryDate: k.ExpiryText(),
		From:       from,
		To:         to,
		Actor:      actor,
	}
}

// Alert records one expiry notification attempt.
type Alert struct {
	ID          int64     `json:"id"`
	LotNumber   string    `json:"lot_number"`
	TestName    string    `json:"test_name"`
	ExpiryDate  string    `json:"expiry_date"`
	DaysLeft    int       `json:"days_left"`
	Destination string    `json:"destination"`
	Outcome     string    `json:"outcome"`
	Reason      string    `json:"reason,omitempty"`
	SentAt      time.Time `json:"sent_at"`
}
