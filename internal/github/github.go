// Package github stores datasets as files in a GitHub repository through the
// contents API. A file's blob sha is its version token.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/erazemk/kitstok/internal/blob"
)

const (
	apiVersion   = "2022-11-28"
	mediaJSON    = "application/vnd.github+json"
	mediaRaw     = "application/vnd.github.raw+json"
	errBodyLimit = 1024
)

var cacheLookupsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kitstok_github_cache_lookups_total",
		Help: "Conditional GET outcomes for dataset reads.",
	},
	[]string{"result"},
)

// Config configures the contents API client.
type Config struct {
	Token     string
	Repo      string // owner/name
	Branch    string // empty means the repository's default branch
	BaseURL   string // defaults to https://api.github.com
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
}

type cachedFile struct {
	etag    string
	sha     string
	content []byte
}

// Backend implements blob.Backend and blob.Creator on a GitHub repository.
type Backend struct {
	owner, repo string
	branch      string
	baseURL     string
	token       string
	httpClient  *http.Client
	cache       *expirable.LRU[string, cachedFile]
	logger      *slog.Logger
}

var (
	_ blob.Backend = (*Backend)(nil)
	_ blob.Creator = (*Backend)(nil)
)

// New creates a GitHub backend.
func New(cfg Config, logger *slog.Logger) (*Backend, error) {
	owner, repo, ok := strings.Cut(cfg.Repo, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return nil, fmt.Errorf("invalid repository %q, want owner/name", cfg.Repo)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.github.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 32
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}

	return &Backend{
		owner:      owner,
		repo:       repo,
		branch:     cfg.Branch,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      expirable.NewLRU[string, cachedFile](cfg.CacheSize, nil, cfg.CacheTTL),
		logger:     logger.With(slog.String("component", "github"), slog.String("repo", cfg.Repo)),
	}, nil
}

type contentResponse struct {
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

type writeRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

type writeResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

type apiError struct {
	Message string `json:"message"`
}

// Get fetches a file and its blob sha. A cached copy is revalidated with
// If-None-Match, which GitHub does not count against the rate limit when
// the file is unchanged.
func (b *Backend) Get(ctx context.Context, path string) ([]byte, string, error) {
	key := b.cacheKey(path)
	cached, haveCached := b.cache.Get(key)

	req, err := b.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, "", err
	}
	if haveCached && cached.etag != "" {
		req.Header.Set("If-None-Match", cached.etag)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: fetching %s: %v", blob.ErrTransport, path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified:
		if haveCached {
			cacheLookupsTotal.WithLabelValues("hit").Inc()
			return bytes.Clone(cached.content), cached.sha, nil
		}
		return nil, "", fmt.Errorf("%w: fetching %s: unexpected 304", blob.ErrTransport, path)
	case http.StatusNotFound:
		b.cache.Remove(key)
		return nil, "", fmt.Errorf("%w: %s", blob.ErrNotFound, path)
	default:
		return nil, "", b.statusError("fetching", path, resp)
	}
	cacheLookupsTotal.WithLabelValues("miss").Inc()

	var body contentResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, "", fmt.Errorf("%w: decoding %s: %v", blob.ErrTransport, path, err)
	}

	var content []byte
	if body.Encoding == "base64" {
		content, err = base64.StdEncoding.DecodeString(strings.ReplaceAll(body.Content, "\n", ""))
		if err != nil {
			return nil, "", fmt.Errorf("%w: decoding %s content: %v", blob.ErrTransport, path, err)
		}
	} else {
		// Files over 1 MB come back without inline content.
		content, err = b.getRaw(ctx, path)
		if err != nil {
			return nil, "", err
		}
	}

	b.cache.Add(key, cachedFile{etag: resp.Header.Get("ETag"), sha: body.SHA, content: bytes.Clone(content)})
	b.logger.Debug("file fetched", "path", path, "sha", body.SHA, "size", len(content))
	return content, body.SHA, nil
}

func (b *Backend) getRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := b.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", mediaRaw)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching raw %s: %v", blob.ErrTransport, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, b.statusError("fetching raw", path, resp)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading raw %s: %v", blob.ErrTransport, path, err)
	}
	return content, nil
}

// Put replaces a file if version is still its blob sha.
func (b *Backend) Put(ctx context.Context, path string, content []byte, version, message string) (string, error) {
	if version == "" {
		return "", blob.ErrInvalidToken
	}
	return b.write(ctx, path, content, version, message)
}

// Create adds a new file. GitHub rejects it if the file already exists.
func (b *Backend) Create(ctx context.Context, path string, content []byte, message string) (string, error) {
	return b.write(ctx, path, content, "", message)
}

func (b *Backend) write(ctx context.Context, path string, content []byte, version, message string) (string, error) {
	payload, err := json.Marshal(writeRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		SHA:     version,
		Branch:  b.branch,
	})
	if err != nil {
		return "", fmt.Errorf("encoding write request: %w", err)
	}

	req, err := b.newRequest(ctx, http.MethodPut, path, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: writing %s: %v", blob.ErrTransport, path, err)
	}
	defer resp.Body.Close()

	// Any write attempt may have changed the file.
	b.cache.Remove(b.cacheKey(path))

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", blob.ErrNotFound, path)
	case http.StatusConflict:
		return "", &blob.ConflictError{Path: path, Expected: version}
	case http.StatusUnprocessableEntity:
		msg := readMessage(resp.Body)
		// Sent a stale sha, or created a file that exists and so needed one.
		if strings.Contains(msg, "sha") {
			return "", &blob.ConflictError{Path: path, Expected: version}
		}
		return "", fmt.Errorf("%w: writing %s: status 422: %s", blob.ErrTransport, path, msg)
	default:
		return "", b.statusError("writing", path, resp)
	}

	var body writeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decoding write response for %s: %v", blob.ErrTransport, path, err)
	}
	if body.Content.SHA == "" {
		return "", fmt.Errorf("%w: write response for %s has no sha", blob.ErrTransport, path)
	}

	b.logger.Info("file written", "path", path, "sha", body.Content.SHA, "message", message)
	return body.Content.SHA, nil
}

func (b *Backend) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u := b.contentsURL(path)
	if method == http.MethodGet && b.branch != "" {
		u += "?ref=" + url.QueryEscape(b.branch)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", path, err)
	}
	req.Header.Set("Accept", mediaJSON)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	return req, nil
}

func (b *Backend) contentsURL(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		b.baseURL, url.PathEscape(b.owner), url.PathEscape(b.repo), strings.Join(segments, "/"))
}

func (b *Backend) cacheKey(path string) string {
	return b.branch + ":" + path
}

func (b *Backend) statusError(op, path string, resp *http.Response) error {
	return fmt.Errorf("%w: %s %s: status %d: %s", blob.ErrTransport, op, path, resp.StatusCode, readMessage(resp.Body))
}

func readMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, errBodyLimit))
	var e apiError
	if err := json.Unmarshal(raw, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(raw))
}
