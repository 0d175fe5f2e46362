package inventory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/kitstok/internal/blob"
	"github.com/erazemk/kitstok/internal/db"
	"github.com/erazemk/kitstok/internal/model"
	"github.com/erazemk/kitstok/internal/notify"
	"github.com/erazemk/kitstok/internal/recordstore"
	"github.com/erazemk/kitstok/internal/store"
)

var today = model.Date(2025, time.June, 10)

var (
	activeDS  = recordstore.Dataset{Name: "active", Path: "data/kits.csv", Status: model.StatusActive}
	expiredDS = recordstore.Dataset{Name: "expired", Path: "data/expired.csv", Status: model.StatusExpired}
	deletedDS = recordstore.Dataset{Name: "deleted", Path: "data/deleted.csv", Status: model.StatusDeleted}
)

type sentMessage struct {
	message, destination string
}

type fakeNotifier struct {
	mu      sync.Mutex
	outcome notify.Outcome
	sent    []sentMessage
}

func (f *fakeNotifier) Notify(_ context.Context, message, destination string) notify.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{message, destination})
	res := notify.Result{Outcome: f.outcome}
	if f.outcome == notify.Failed {
		res.Reason = "gateway returned 500"
	}
	return res
}

type fixture struct {
	svc      *Service
	records  *recordstore.Client
	backend  blob.Backend
	notifier *fakeNotifier
	database *store.Datasets
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, policy DuplicatePolicy, wrap func(blob.Backend) blob.Backend) *fixture {
	t.Helper()
	database := db.NewTestDB(t)
	datasets := &store.Datasets{DB: database}

	var backend blob.Backend = datasets
	if wrap != nil {
		backend = wrap(datasets)
	}

	records := recordstore.New(backend, testLogger())
	notifier := &fakeNotifier{outcome: notify.Delivered}
	svc := New(records, notifier, database, Config{
		Active:      activeDS,
		Expired:     expiredDS,
		Deleted:     deletedDS,
		WarnHorizon: 5,
		Duplicates:  policy,
		AlertTo:     "+905550000000",
		Location:    time.UTC,
		Now:         func() time.Time { return today.Add(9 * time.Hour) },
	}, testLogger())

	// Seed through the unwrapped backend so wrappers only see the test's calls.
	seeder := recordstore.New(datasets, testLogger())
	_, err := seeder.Ensure(context.Background(), activeDS, "init")
	require.NoError(t, err)

	return &fixture{svc: svc, records: seeder, backend: backend, notifier: notifier, database: datasets}
}

func (f *fixture) put(t *testing.T, ds recordstore.Dataset, kits ...model.Kit) {
	t.Helper()
	ctx := context.Background()
	_, err := f.records.Ensure(ctx, ds, "init")
	require.NoError(t, err)
	_, token, err := f.records.Load(ctx, ds)
	require.NoError(t, err)
	_, err = f.records.Save(ctx, kits, token, ds, "seed")
	require.NoError(t, err)
}

func (f *fixture) load(t *testing.T, ds recordstore.Dataset) []model.Kit {
	t.Helper()
	kits, _, err := f.records.Load(context.Background(), ds)
	require.NoError(t, err)
	return kits
}

func kit(lot, test string, days int) model.Kit {
	return model.Kit{
		LotNumber: lot,
		TestName:  test,
		Quantity:  100,
		Expiry:    today.AddDate(0, 0, days),
		Status:    model.StatusActive,
	}
}

func TestSweepAlertsKitNearExpiry(t *testing.T) {
	f := newFixture(t, DuplicatesReject, nil)
	f.put(t, activeDS, kit("L1", "Glukoz (Serum/Plazma)", 3))
	ctx := context.Background()

	report, err := f.svc.Sweep(ctx, "tester")
	require.NoError(t, err)
	require.Len(t, report.Alerted, 1)
	assert.Empty(t, report.Expired)
	assert.Equal(t, 3, report.Alerted[0].DaysLeft)

	active := f.load(t, activeDS)
	require.Len(t, active, 1)
	assert.True(t, active[0].AlertSent)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "+905550000000", f.notifier.sent[0].destination)
	assert.Contains(t, f.notifier.sent[0].message, "L1")

	alerts, err := f.svc.Alerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "delivered", alerts[0].Outcome)

	// A second sweep on the same day has nothing to do.
	report, err = f.svc.Sweep(ctx, "tester")
	require.NoError(t, err)
	assert.False(t, report.Changed())
	assert.Len(t, f.notifier.sent, 1)
}

func TestSweepMarksAlertSentWhateverTheOutcome(t *testing.T) {
	for _, outcome := range []notify.Outcome{notify.Failed, notify.Skipped} {
		f := newFixture(t, DuplicatesReject, nil)
		f.notifier.outcome = outcome
		f.put(t, activeDS, kit("L1", "TSH", 0))

		report, err := f.svc.Sweep(context.Background(), "tester")
		require.NoError(t, err, string(outcome))
		require.Len(t, report.Alerted, 1)
		assert.Equal(t, outcome, report.Alerted[0].Result.Outcome)

		active := f.load(t, activeDS)
		require.Len(t, active, 1)
		assert.True(t, active[0].AlertSent, "alert_sent after %s", outcome)
	}
}

func TestSweepMovesExpiredKits(t *testing.T) {
	f := newFixture(t, DuplicatesReject, nil)
	f.put(t, activeDS,
		kit("KEEP", "TSH", 30),
		kit("OLD", "LH", -1),
		kit("RAW", "FSH", 0),
	)
	// A row with an unreadable date must survive untouched.
	kits := f.load(t, activeDS)
	kits[2].Expiry = time.Time{}
	kits[2].ExpiryRaw = "31.12.2020"
	_, token, _ := f.records.Load(context.Background(), activeDS)
	_, err := f.records.Save(context.Background(), kits, token, activeDS, "raw date")
	require.NoError(t, err)

	report, err := f.svc.Sweep(context.Background(), "tester")
	require.NoError(t, err)
	require.Len(t, report.Expired, 1)
	assert.Equal(t, "OLD", report.Expired[0].LotNumber)

	active := f.load(t, activeDS)
	require.Len(t, active, 2)
	assert.Equal(t, "KEEP", active[0].LotNumber)
	assert.Equal(t, "RAW", active[1].LotNumber)
	assert.Equal(t, "31.12.2020", active[1].ExpiryRaw)

	expired, err := f.svc.Expired(context.Background())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "OLD", expired[0].LotNumber)
	assert.Equal(t, model.StatusExpired, expired[0].Status)

	moves, err := f.svc.Movements(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, model.StatusActive, moves[0].From)
	assert.Equal(t, model.StatusExpired, moves[0].To)
	assert.Equal(t, "tester", moves[0].Actor)
}

func TestSweepAppendsToExistingExpiredDataset(t *testing.T) {
	f := newFixture(t, DuplicatesReject, nil)
	earlier := kit("E0", "TSH", -100)
	earlier.Status = model.StatusExpired
	f.put(t, expiredDS, earlier)
	f.put(t, activeDS, kit("E1", "TSH", -2))

	_, err := f.svc.Sweep(context.Background(), "tester")
	require.NoError(t, err)

	expired := f.load(t, expiredDS)
	require.Len(t, expired, 2)
	assert.Equal(t, "E0", expired[0].LotNumber)
	assert.Equal(t, "E1", expired[1].LotNumber)
}

func TestPreviewDoesNotWrite(t *testing.T) {
	f := newFixture(t, DuplicatesReject, nil)
	f.put(t, activeDS, kit("A", "TSH", 2), kit("B", "TSH", -2))

	c, err := f.svc.Preview(context.Background())
	require.NoError(t, err)
	assert.Len(t, c.ToAlert, 1)
	assert.Len(t, c.ToExpire, 1)

	assert.Empty(t, f.notifier.sent)
	assert.Len(t, f.load(t, activeDS), 2)
}

func TestAdd(t *testing.T) {
	f := newFixture(t, DuplicatesReject, nil)
	ctx := context.Background()

	_, err := f.svc.Add(ctx, "tester", model.Kit{LotNumber: " L9 ", TestName: "TSH", Quantity: 20, Expiry: today.AddDate(0, 1, 0)})
	require.NoError(t, err)

	active := f.load(t, activeDS)
	require.Len(t, active, 1)
	assert.Equal(t, "L9", active[0].LotNumber)
	assert.Equal(t, model.StatusActive, active[0].Status)
	assert.False(t, active[0].AlertSent)
}

func TestAddValidation(t *testing.T) {
	f := newFixture(t, DuplicatesReject, nil)

	_, err := f.svc.Add(context.Background(), "tester", model.Kit{LotNumber: "L1", TestName: "Unknown", Quantity: 0})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, f.load(t, activeDS))
}

func TestAddDuplicatePolicy(t *testing.T) {
	dup := model.Kit{LotNumber: "L1", TestName: "TSH", Quantity: 5, Expiry: today.AddDate(0, 2, 0)}

	f := newFixture(t, DuplicatesReject, nil)
	f.put(t, activeDS, kit("L1", "TSH", 60))
	_, err := f.svc.Add(context.Background(), "tester", dup)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Len(t, f.load(t, activeDS), 1)

	// Same lot for another test is a different key.
	other := dup
	other.TestName = "LH"
	_, err = f.svc.Add(context.Background(), "tester", other)
	assert.NoError(t, err)

	f = newFixture(t, DuplicatesAllow, nil)
	f.put(t, activeDS, kit("L1", "TSH", 60))
	_, err = f.svc.Add(context.Background(), "tester", dup)
	assert.NoError(t, err)
	assert.Len(t, f.load(t, activeDS), 2)
}

func TestAddAfterSweepThreadsToken(t *testing.T) {
	f := newFixture(t, DuplicatesReject, nil)
	f.put(t, activeDS, kit("OLD", "TSH", -1), kit("SOON", "LH", 1))

	report, err := f.svc.Add(context.Background(), "tester",
		model.Kit{LotNumber: "NEW", TestName: "FSH", Quantity: 10, Expiry: today.AddDate(0, 3, 0)})
	require.NoError(t, err)
	assert.Len(t, report.Expired, 1)
	assert.Len(t, report.Alerted, 1)

	active := f.load(t, activeDS)
	require.Len(t, active, 2)
	assert.Equal(t, "SOON", active[0].LotNumber)
	assert.True(t, active[0].AlertSent)
	assert.Equal(t, "NEW", active[1].LotNumber)
}

// racingBackend lets another writer change a dataset right after it is read.
type racingBackend struct {
	blob.Backend
	once  sync.Once
	after func()
}

func (r *racingBackend) Get(ctx context.Context, path string) ([]byte, string, error) {
	content, version, err := r.Backend.Get(ctx, path)
	if err == nil && path == activeDS.Path {
		r.once.Do(r.after)
	}
	return content, version, err
}

func TestAddConflictsWithConcurrentWriter(t *testing.T) {
	var racer *racingBackend
	f := newFixture(t, DuplicatesReject, func(b blob.Backend) blob.Backend {
		racer = &racingBackend{Backend: b}
		return racer
	})
	f.put(t, activeDS, kit("A", "TSH", 30))
	racer.after = func() {
		_, token, err := f.records.Load(context.Background(), activeDS)
		require.NoError(t, err)
		_, err = f.records.Save(context.Background(), []model.Kit{kit("A", "TSH", 30), kit("OTHER", "LH", 30)}, token, activeDS, "other process")
		require.NoError(t, err)
	}

	_, err := f.svc.Add(context.Background(), "tester",
		model.Kit{LotNumber: "MINE", TestName: "FSH", Quantity: 1, Expiry: today.AddDate(0, 1, 0)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, blob.ErrConflict), "got %v", err)

	active := f.load(t, activeDS)
	require.Len(t, active, 2)
	assert.Equal(t, "OTHER", active[1].LotNumber)
}

func TestDelete(t *testing.T) {
	f := newFixture(t, DuplicatesAllow, nil)
	first := kit("L1", "TSH", 40)
	second := kit("L1", "TSH", 50)
	f.put(t, activeDS, first, second, kit("L2", "TSH", 40))
	ctx := context.Background()

	_, err := f.svc.Delete(ctx, "tester", model.Key{LotNumber: "L1", TestName: "TSH"}, second.ExpiryText())
	require.NoError(t, err)

	active := f.load(t, activeDS)
	require.Len(t, active, 2)
	assert.Equal(t, first.ExpiryText(), active[0].ExpiryText())
	assert.Equal(t, "L2", active[1].LotNumber)

	deleted, err := f.svc.Deleted(ctx)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, model.StatusDeleted, deleted[0].Status)
	assert.Equal(t, second.ExpiryText(), deleted[0].ExpiryText())

	moves, err := f.svc.Movements(ctx, 10)
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, model.StatusDeleted, moves[0].To)

	_, err = f.svc.Delete(ctx, "tester", model.Key{LotNumber: "missing", TestName: "TSH"}, "")
	assert.ErrorIs(t, err, ErrKitNotFound)
}

func TestList(t *testing.T) {
	f := newFixture(t, DuplicatesReject, nil)
	a := kit("A", "TSH", 2)
	a.AlertSent = true
	b := kit("B", "LH", 30)
	b.Quantity = 40
	c := kit("C", "TSH", 60)
	c.Quantity = 25
	f.put(t, activeDS, a, b, c)

	all, err := f.svc.List(context.Background(), "tester", "")
	require.NoError(t, err)
	assert.Len(t, all.Kits, 3)
	assert.Equal(t, 165, all.Total)
	assert.True(t, all.Kits[0].Expiring)
	assert.Equal(t, 2, all.Kits[0].DaysLeft)
	assert.False(t, all.Kits[1].Expiring)

	tsh, err := f.svc.List(context.Background(), "tester", "TSH")
	require.NoError(t, err)
	require.Len(t, tsh.Kits, 2)
	assert.Equal(t, 125, tsh.Total)
	assert.Equal(t, "TSH", tsh.Test)
}

func TestArchivesMissingAreEmpty(t *testing.T) {
	f := newFixture(t, DuplicatesReject, nil)

	expired, err := f.svc.Expired(context.Background())
	require.NoError(t, err)
	assert.Empty(t, expired)

	deleted, err := f.svc.Deleted(context.Background())
	require.NoError(t, err)
	assert.Empty(t, deleted)
}

func TestSeed(t *testing.T) {
	f := newFixture(t, DuplicatesReject, nil)

	created, err := f.svc.Seed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"expired", "deleted"}, created)

	created, err = f.svc.Seed(context.Background())
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestParseDuplicatePolicy(t *testing.T) {
	for in, want := range map[string]DuplicatePolicy{"": DuplicatesReject, "reject": DuplicatesReject, "ALLOW": DuplicatesAllow} {
		got, err := ParseDuplicatePolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseDuplicatePolicy("merge")
	assert.Error(t, err)
}
