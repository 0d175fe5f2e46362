// Package inventory runs the kit workflows: the expiry sweep, adding and
// deleting kits, and the read-only views over the datasets.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/erazemk/kitstok/internal/blob"
	"github.com/erazemk/kitstok/internal/lifecycle"
	"github.com/erazemk/kitstok/internal/model"
	"github.com/erazemk/kitstok/internal/notify"
	"github.com/erazemk/kitstok/internal/recordstore"
	"github.com/erazemk/kitstok/internal/store"
)

var (
	ErrValidation  = errors.New("invalid kit")
	ErrDuplicate   = errors.New("kit already exists")
	ErrKitNotFound = errors.New("kit not found")
)

var sweepKitsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kitstok_sweep_kits_total",
		Help: "Kits alerted or expired by the expiry sweep.",
	},
	[]string{"action"},
)

// DuplicatePolicy decides whether a second active kit with the same lot
// number and test may be added.
type DuplicatePolicy string

const (
	DuplicatesReject DuplicatePolicy = "reject"
	DuplicatesAllow  DuplicatePolicy = "allow"
)

// ParseDuplicatePolicy parses a policy name. Empty input means reject.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DuplicatesReject:
		return DuplicatesReject, nil
	case DuplicatesAllow:
		return DuplicatesAllow, nil
	default:
		return "", fmt.Errorf("unknown duplicate policy %q", s)
	}
}

// Config holds the datasets and rules the service works with.
type Config struct {
	Active      recordstore.Dataset
	Expired     recordstore.Dataset
	Deleted     recordstore.Dataset
	WarnHorizon int
	Duplicates  DuplicatePolicy
	AlertTo     string
	Location    *time.Location
	Now         func() time.Time
}

// Service orchestrates the record store, classifier and notifier. The
// movement and alert logs are kept in db.
type Service struct {
	records  *recordstore.Client
	notifier notify.Notifier
	db       *sql.DB
	cfg      Config
	logger   *slog.Logger
}

// New creates an inventory service.
func New(records *recordstore.Client, notifier notify.Notifier, db *sql.DB, cfg Config, logger *slog.Logger) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Duplicates == "" {
		cfg.Duplicates = DuplicatesReject
	}
	return &Service{
		records:  records,
		notifier: notifier,
		db:       db,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "inventory")),
	}
}

// Today returns the current calendar date in the configured time zone.
func (s *Service) Today() time.Time {
	return lifecycle.Today(s.cfg.Now(), s.cfg.Location)
}

// WarnHorizon returns the alert horizon in days.
func (s *Service) WarnHorizon() int {
	return s.cfg.WarnHorizon
}

// AlertedKit is a kit the sweep sent an alert for.
type AlertedKit struct {
	Kit      model.Kit
	DaysLeft int
	Result   notify.Result
}

// SweepReport describes what a sweep changed.
type SweepReport struct {
	Today   time.Time
	Alerted []AlertedKit
	Expired []model.Kit
}

// Changed reports whether the sweep wrote anything.
func (r *SweepReport) Changed() bool {
	return len(r.Alerted) > 0 || len(r.Expired) > 0
}

// snapshot is the active dataset as last read or written.
type snapshot struct {
	kits  []model.Kit
	token string
}

// Sweep alerts kits close to expiry and moves expired kits to the expired
// dataset.
func (s *Service) Sweep(ctx context.Context, actor string) (*SweepReport, error) {
	_, report, err := s.sweep(ctx, actor)
	return report, err
}

// Preview classifies the active kits without notifying or writing.
func (s *Service) Preview(ctx context.Context) (lifecycle.Classification, error) {
	kits, _, err := s.records.Load(ctx, s.cfg.Active)
	if err != nil {
		return lifecycle.Classification{}, err
	}
	return lifecycle.Classify(kits, s.Today(), s.cfg.WarnHorizon), nil
}

func (s *Service) sweep(ctx context.Context, actor string) (snapshot, *SweepReport, error) {
	active, token, err := s.records.Load(ctx, s.cfg.Active)
	if err != nil {
		return snapshot{}, nil, err
	}

	today := s.Today()
	report := &SweepReport{Today: today}
	next := make([]model.Kit, 0, len(active))

	for _, k := range active {
		switch lifecycle.Place(k, today, s.cfg.WarnHorizon) {
		case lifecycle.Expire:
			report.Expired = append(report.Expired, k)
			continue
		case lifecycle.Alert:
			days, _ := lifecycle.DaysLeft(k, today)
			res := s.notifier.Notify(ctx, notify.RenderAlert(k, days), s.cfg.AlertTo)
			s.recordAlert(ctx, k, days, res)
			// Set whatever the outcome, so a failed alert is not retried.
			k.AlertSent = true
			report.Alerted = append(report.Alerted, AlertedKit{Kit: k, DaysLeft: days, Result: res})
		}
		next = append(next, k)
	}

	if !report.Changed() {
		return snapshot{kits: active, token: token}, report, nil
	}

	if len(report.Expired) > 0 {
		if err := s.appendTo(ctx, s.cfg.Expired, model.StatusExpired, report.Expired,
			fmt.Sprintf("Expire %d kit(s)", len(report.Expired))); err != nil {
			return snapshot{}, nil, err
		}
	}

	token, err = s.records.Save(ctx, next, token, s.cfg.Active, sweepMessage(report))
	if err != nil {
		return snapshot{}, nil, err
	}

	if len(report.Expired) > 0 {
		s.recordMovements(ctx, report.Expired, model.StatusExpired, actor)
	}

	sweepKitsTotal.WithLabelValues("alerted").Add(float64(len(report.Alerted)))
	sweepKitsTotal.WithLabelValues("expired").Add(float64(len(report.Expired)))
	s.logger.Info("sweep applied",
		"user", actor,
		"today", model.FormatDate(today),
		"alerted", len(report.Alerted),
		"expired", len(report.Expired),
	)
	return snapshot{kits: next, token: token}, report, nil
}

func sweepMessage(r *SweepReport) string {
	switch {
	case len(r.Expired) > 0 && len(r.Alerted) > 0:
		return fmt.Sprintf("Remove %d expired kit(s), mark %d alerted", len(r.Expired), len(r.Alerted))
	case len(r.Expired) > 0:
		return fmt.Sprintf("Remove %d expired kit(s)", len(r.Expired))
	default:
		return fmt.Sprintf("Mark %d kit(s) alerted", len(r.Alerted))
	}
}

// appendTo adds kits to a target dataset, creating the dataset if needed.
func (s *Service) appendTo(ctx context.Context, ds recordstore.Dataset, status model.Status, kits []model.Kit, message string) error {
	existing, token, err := s.loadOrCreate(ctx, ds)
	if err != nil {
		return err
	}
	for _, k := range kits {
		k.Status = status
		existing = append(existing, k)
	}
	if _, err := s.records.Save(ctx, existing, token, ds, message); err != nil {
		return err
	}
	return nil
}

func (s *Service) loadOrCreate(ctx context.Context, ds recordstore.Dataset) ([]model.Kit, string, error) {
	kits, token, err := s.records.Load(ctx, ds)
	if err == nil {
		return kits, token, nil
	}
	if !errors.Is(err, blob.ErrNotFound) {
		return nil, "", err
	}
	if _, err := s.records.Ensure(ctx, ds, "Create "+ds.Name+" dataset"); err != nil {
		return nil, "", err
	}
	return s.records.Load(ctx, ds)
}

// Add sweeps the active dataset and then appends k to it.
func (s *Service) Add(ctx context.Context, actor string, k model.Kit) (*SweepReport, error) {
	k.LotNumber = strings.TrimSpace(k.LotNumber)
	k.TestName = strings.TrimSpace(k.TestName)
	if err := k.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	k.Status = model.StatusActive
	k.AlertSent = false

	snap, report, err := s.sweep(ctx, actor)
	if err != nil {
		return nil, err
	}

	if s.cfg.Duplicates == DuplicatesReject {
		for _, existing := range snap.kits {
			if existing.Key() == k.Key() {
				return report, fmt.Errorf("%w: %s", ErrDuplicate, k.Key())
			}
		}
	}

	kits := append(snap.kits, k)
	if _, err := s.records.Save(ctx, kits, snap.token, s.cfg.Active, "Add kit "+k.Key().String()); err != nil {
		return report, err
	}

	s.logger.Info("kit added", "user", actor, "lot", k.LotNumber, "test", k.TestName, "quantity", k.Quantity)
	return report, nil
}

// Delete sweeps the active dataset and then moves the first kit matching key
// to the deleted dataset. If expiry is not empty it must match too.
func (s *Service) Delete(ctx context.Context, actor string, key model.Key, expiry string) (*SweepReport, error) {
	snap, report, err := s.sweep(ctx, actor)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i, k := range snap.kits {
		if k.Key() == key && (expiry == "" || k.ExpiryText() == expiry) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return report, fmt.Errorf("%w: %s", ErrKitNotFound, key)
	}

	removed := snap.kits[idx]
	remaining := make([]model.Kit, 0, len(snap.kits)-1)
	remaining = append(remaining, snap.kits[:idx]...)
	remaining = append(remaining, snap.kits[idx+1:]...)

	if err := s.appendTo(ctx, s.cfg.Deleted, model.StatusDeleted, []model.Kit{removed}, "Delete kit "+key.String()); err != nil {
		return report, err
	}
	if _, err := s.records.Save(ctx, remaining, snap.token, s.cfg.Active, "Delete kit "+key.String()); err != nil {
		return report, err
	}
	s.recordMovements(ctx, []model.Kit{removed}, model.StatusDeleted, actor)

	s.logger.Info("kit deleted", "user", actor, "lot", key.LotNumber, "test", key.TestName)
	return report, nil
}

// KitView is an active kit with its distance to expiry.
type KitView struct {
	model.Kit
	DaysLeft int
	Dated    bool
	Expiring bool
}

// Listing is the active table, optionally filtered by test.
type Listing struct {
	Kits   []KitView
	Total  int
	Test   string
	Report *SweepReport
}

// List sweeps and returns the active kits for test, or all kits if test is
// empty.
func (s *Service) List(ctx context.Context, actor, test string) (*Listing, error) {
	snap, report, err := s.sweep(ctx, actor)
	if err != nil {
		return nil, err
	}

	today := report.Today
	listing := &Listing{Kits: []KitView{}, Test: test, Report: report}
	for _, k := range snap.kits {
		if test != "" && k.TestName != test {
			continue
		}
		days, ok := lifecycle.DaysLeft(k, today)
		listing.Kits = append(listing.Kits, KitView{
			Kit:      k,
			DaysLeft: days,
			Dated:    ok,
			Expiring: ok && days <= s.cfg.WarnHorizon,
		})
		listing.Total += k.Quantity
	}
	return listing, nil
}

// Expired returns the expired dataset.
func (s *Service) Expired(ctx context.Context) ([]model.Kit, error) {
	return s.loadArchive(ctx, s.cfg.Expired)
}

// Deleted returns the deleted dataset.
func (s *Service) Deleted(ctx context.Context) ([]model.Kit, error) {
	return s.loadArchive(ctx, s.cfg.Deleted)
}

func (s *Service) loadArchive(ctx context.Context, ds recordstore.Dataset) ([]model.Kit, error) {
	kits, _, err := s.records.Load(ctx, ds)
	if errors.Is(err, blob.ErrNotFound) {
		return []model.Kit{}, nil
	}
	return kits, err
}

// Movements returns the most recent movements.
func (s *Service) Movements(ctx context.Context, limit int) ([]model.Movement, error) {
	return store.ListMovements(ctx, s.db, limit)
}

// Alerts returns the most recent alert attempts.
func (s *Service) Alerts(ctx context.Context, limit int) ([]model.Alert, error) {
	return store.ListAlerts(ctx, s.db, limit)
}

// Seed creates the datasets that do not exist yet and returns their names.
func (s *Service) Seed(ctx context.Context) ([]string, error) {
	var created []string
	for _, ds := range []recordstore.Dataset{s.cfg.Active, s.cfg.Expired, s.cfg.Deleted} {
		ok, err := s.records.Ensure(ctx, ds, "Create "+ds.Name+" dataset")
		if err != nil {
			return created, err
		}
		if ok {
			created = append(created, ds.Name)
		}
	}
	return created, nil
}

func (s *Service) recordMovements(ctx context.Context, kits []model.Kit, to model.Status, actor string) {
	now := s.cfg.Now()
	moves := make([]model.Movement, 0, len(kits))
	for _, k := range kits {
		m := model.NewMovement(k, to, actor)
		m.MovedAt = now
		moves = append(moves, m)
	}
	// The datasets are already written; a failed log entry must not undo that.
	if err := store.RecordMovements(ctx, s.db, moves); err != nil {
		s.logger.Error("recording movements", "error", err, "count", len(moves))
	}
}

func (s *Service) recordAlert(ctx context.Context, k model.Kit, days int, res notify.Result) {
	err := store.RecordAlert(ctx, s.db, model.Alert{
		LotNumber:   k.LotNumber,
		TestName:    k.TestName,
		ExpiryDate:  k.ExpiryText(),
		DaysLeft:    days,
		Destination: s.cfg.AlertTo,
		Outcome:     string(res.Outcome),
		Reason:      res.Reason,
		SentAt:      s.cfg.Now(),
	})
	if err != nil {
		s.logger.Error("recording alert", "error", err, "lot", k.LotNumber, "test", k.TestName)
	}
}
