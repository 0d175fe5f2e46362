package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kit represents one physical batch (lot) of a diagnostic reagent kit.
type Kit struct {
	LotNumber string    `json:"lot_number"`
	TestName  string    `json:"test_name"`
	Quantity  int       `json:"quantity"`
	Expiry    time.Time `json:"-"`
	AlertSent bool      `json:"alert_sent"`
	Status    Status    `json:"status"`

	// ExpiryRaw holds the stored text when it could not be parsed as a date,
	// so that the value survives a rewrite unchanged.
	ExpiryRaw string `json:"-"`
}

// Status is the lifecycle state of a kit record.
type Status string

// Kit statuses. Transitions only go from active to expired or deleted.
const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusDeleted Status = "deleted"
)

// ParseStatus parses a stored status value. Empty input returns fallback.
func ParseStatus(s string, fallback Status) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return fallback, nil
	case StatusActive:
		return StatusActive, nil
	case StatusExpired:
		return StatusExpired, nil
	case StatusDeleted:
		return StatusDeleted, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// Key is the natural key of a kit record.
type Key struct {
	LotNumber string
	TestName  string
}

func (k Key) String() string {
	return k.LotNumber + "/" + k.TestName
}

// Key returns the natural key of the kit.
func (k Kit) Key() Key {
	return Key{LotNumber: k.LotNumber, TestName: k.TestName}
}

// HasExpiry reports whether the kit carries a valid expiry date.
func (k Kit) HasExpiry() bool {
	return !k.Expiry.IsZero()
}

// ExpiryText returns the expiry as stored: an ISO date, or the raw text if
// the stored value was not a valid date.
func (k Kit) ExpiryText() string {
	if k.HasExpiry() {
		return FormatDate(k.Expiry)
	}
	return k.ExpiryRaw
}

// Validate checks the fields a user must supply when adding a kit.
func (k Kit) Validate() error {
	var errs []error
	if strings.TrimSpace(k.LotNumber) == "" {
		errs = append(errs, errors.New("lot number required"))
	}
	if !IsCatalogTest(k.TestName) {
		errs = append(errs, fmt.Errorf("unknown test %q", k.TestName))
	}
	if k.Quantity <= 0 {
		errs = append(errs, errors.New("quantity must be positive"))
	}
	if !k.HasExpiry() {
		errs = append(errs, errors.New("expiry date required"))
	}
	return errors.Join(errs...)
}
