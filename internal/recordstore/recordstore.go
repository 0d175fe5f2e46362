// Package recordstore reads and writes kit datasets held in a blob store,
// guarding every write with the version token of the last read.
package recordstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/erazemk/kitstok/internal/blob"
	"github.com/erazemk/kitstok/internal/model"
)

var storeOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kitstok_store_operations_total",
		Help: "Dataset loads and saves by outcome.",
	},
	[]string{"op", "dataset", "result"},
)

// ErrDecode matches any DecodeError.
var ErrDecode = errors.New("dataset is not valid tabular text")

// DecodeError reports a dataset whose content could not be parsed.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// Dataset names one partition file and the status its rows carry.
type Dataset struct {
	Name   string
	Path   string
	Status model.Status
}

// Client loads and saves datasets through a blob backend.
type Client struct {
	backend blob.Backend
	logger  *slog.Logger
}

// New creates a record store client.
func New(backend blob.Backend, logger *slog.Logger) *Client {
	return &Client{
		backend: backend,
		logger:  logger.With(slog.String("component", "recordstore")),
	}
}

// Load fetches a dataset and returns its rows with the version token of the
// content that was read.
func (c *Client) Load(ctx context.Context, ds Dataset) ([]model.Kit, string, error) {
	content, token, err := c.backend.Get(ctx, ds.Path)
	if err != nil {
		count("load", ds, err)
		return nil, "", fmt.Errorf("loading %s: %w", ds.Name, err)
	}

	kits, err := Decode(content, ds.Status)
	if err != nil {
		err = &DecodeError{Path: ds.Path, Err: err}
		count("load", ds, err)
		return nil, "", fmt.Errorf("loading %s: %w", ds.Name, err)
	}

	count("load", ds, nil)
	c.logger.Debug("dataset loaded", "dataset", ds.Name, "rows", len(kits), "version", token)
	return kits, token, nil
}

// Save writes rows to a dataset if token still identifies its stored
// content, and returns the token of the written content. A stale token fails
// with a blob.ConflictError and leaves the stored content untouched.
func (c *Client) Save(ctx context.Context, kits []model.Kit, token string, ds Dataset, message string) (string, error) {
	if token == "" {
		count("save", ds, blob.ErrInvalidToken)
		return "", fmt.Errorf("saving %s: %w", ds.Name, blob.ErrInvalidToken)
	}

	content, err := Encode(kits)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", ds.Name, err)
	}

	newToken, err := c.backend.Put(ctx, ds.Path, content, token, message)
	if err != nil {
		count("save", ds, err)
		return "", fmt.Errorf("saving %s: %w", ds.Name, err)
	}

	count("save", ds, nil)
	c.logger.Info("dataset saved", "dataset", ds.Name, "rows", len(kits), "message", message)
	return newToken, nil
}

// Ensure creates an empty dataset if it does not exist yet. It reports
// whether the dataset was created.
func (c *Client) Ensure(ctx context.Context, ds Dataset, message string) (bool, error) {
	_, _, err := c.backend.Get(ctx, ds.Path)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, blob.ErrNotFound) {
		return false, fmt.Errorf("checking %s: %w", ds.Name, err)
	}

	creator, ok := c.backend.(blob.Creator)
	if !ok {
		return false, fmt.Errorf("creating %s: backend cannot create datasets", ds.Name)
	}

	content, err := Encode(nil)
	if err != nil {
		return false, err
	}
	if _, err := creator.Create(ctx, ds.Path, content, message); err != nil {
		return false, fmt.Errorf("creating %s: %w", ds.Name, err)
	}
	c.logger.Info("dataset created", "dataset", ds.Name, "path", ds.Path)
	return true, nil
}

func count(op string, ds Dataset, err error) {
	storeOperationsTotal.WithLabelValues(op, ds.Name, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, blob.ErrNotFound):
		return "not_found"
	case errors.Is(err, blob.ErrConflict):
		return "conflict"
	case errors.Is(err, blob.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrDecode):
		return "decode"
	default:
		return "transport"
	}
}
