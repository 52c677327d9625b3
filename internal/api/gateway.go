// Package api talks to the remote deck authority over JSON/HTTP and classifies every outcome into
// the errs taxonomy.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/decksync/internal/convert"
	"github.com/and161185/decksync/internal/errs"
)

// Default deadlines.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultDownloadTimeout = 120 * time.Second
)

const maxResponseBytes = 16 << 20

// Authorizer supplies bearer headers and drops the session when the server rejects it.
// *auth.Session implements it.
type Authorizer interface {
	AuthHeader(ctx context.Context) (string, error)
	Clear() error
}

// Options tune a Gateway. Zero values select the defaults.
type Options struct {
	Timeout         time.Duration
	DownloadTimeout time.Duration
	HTTPClient      *http.Client
}

// Call describes one API request.
type Call struct {
	Method  string
	Path    string
	Body    any           // JSON-encoded when non-nil
	Auth    bool          // attach a bearer header
	Timeout time.Duration // 0 means the gateway default
}

// Gateway performs single HTTP calls. It never retries; the only retry in the system is the token
// refresh performed by the Authorizer.
type Gateway struct {
	base            string
	http            *http.Client
	log             *zap.Logger
	timeout         time.Duration
	downloadTimeout time.Duration

	mu   sync.RWMutex
	auth Authorizer
}

// NewGateway creates a gateway for baseURL (no trailing slash). log may be nil.
func NewGateway(baseURL string, log *zap.Logger, opts Options) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	g := &Gateway{
		base:            baseURL,
		http:            opts.HTTPClient,
		log:             log,
		timeout:         opts.Timeout,
		downloadTimeout: opts.DownloadTimeout,
	}
	if g.http == nil {
		g.http = &http.Client{}
	}
	if g.timeout <= 0 {
		g.timeout = DefaultTimeout
	}
	if g.downloadTimeout <= 0 {
		g.downloadTimeout = DefaultDownloadTimeout
	}
	return g
}

// SetAuthorizer wires the session after construction; the session itself depends on the client
// built on this gateway.
func (g *Gateway) SetAuthorizer(a Authorizer) {
	g.mu.Lock()
	g.auth = a
	g.mu.Unlock()
}

func (g *Gateway) authorizer() Authorizer {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.auth
}

// Do performs c and returns the raw body of a successful (2xx, success:true) JSON response.
func (g *Gateway) Do(ctx context.Context, c Call) ([]byte, error) {
	op := c.Method + " " + c.Path
	authz := g.authorizer()

	var bearer string
	if c.Auth {
		if authz == nil {
			return nil, errs.Auth(op, "Not authenticated. Please login.", errs.ErrNotAuthenticated)
		}
		h, err := authz.AuthHeader(ctx)
		if err != nil {
			if errs.KindOf(err) == errs.KindAuth {
				return nil, err
			}
			return nil, errs.Auth(op, "Session expired. Please login again.", err)
		}
		bearer = h
	}

	var body io.Reader
	if c.Body != nil {
		b, err := json.Marshal(c.Body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = g.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, c.Method, g.base+c.Path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}

	start := time.Now()
	resp, err := g.http.Do(req)
	if err != nil {
		g.log.Warn("api call failed", zap.String("op", op), zap.Duration("took", time.Since(start)), zap.Error(err))
		return nil, errs.Network(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errs.Network(op, err)
	}
	g.log.Debug("api call",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(raw)),
		zap.Duration("took", time.Since(start)))

	return g.classify(op, resp.StatusCode, raw, authz)
}

func (g *Gateway) classify(op string, status int, raw []byte, authz Authorizer) ([]byte, error) {
	var env convert.Envelope
	isJSON := json.Valid(raw) && json.Unmarshal(raw, &env) == nil

	if status == http.StatusUnauthorized {
		if authz != nil {
			if err := authz.Clear(); err != nil {
				g.log.Error("clear session after 401", zap.Error(err))
			}
		}
		msg := "Authentication failed. Please login again."
		if isJSON && env.ErrorText() != "" {
			msg = env.ErrorText()
		}
		return nil, errs.Auth(op, msg, errs.ErrUnauthorized)
	}

	if status < 200 || status > 299 {
		if isJSON && env.ErrorText() != "" {
			return nil, errs.Server(op, env.ErrorText())
		}
		return nil, errs.Server(op, "HTTP "+strconv.Itoa(status))
	}
	if !isJSON {
		return nil, errs.Validation(op, "Unexpected non-JSON response from server", errors.New(snippet(raw)))
	}
	if !env.Success {
		msg := env.ErrorText()
		if msg == "" {
			msg = "request failed"
		}
		return nil, errs.Server(op, msg)
	}
	return raw, nil
}

// Fetch downloads a pre-signed URL into dst without authentication, bounded by the download
// deadline. It returns the number of bytes written.
func (g *Gateway) Fetch(ctx context.Context, url string, dst io.Writer) (int64, error) {
	const op = "GET <download>"
	ctx, cancel := context.WithTimeout(ctx, g.downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errs.Validation(op, "Invalid download URL", err)
	}
	start := time.Now()
	resp, err := g.http.Do(req)
	if err != nil {
		return 0, errs.Network(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, errs.Server(op, fmt.Sprintf("Failed to download deck file: HTTP %d", resp.StatusCode))
	}
	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return n, errs.Network(op, err)
	}
	g.log.Debug("download complete", zap.Int64("bytes", n), zap.Duration("took", time.Since(start)))
	return n, nil
}

func snippet(raw []byte) string {
	const limit = 200
	if len(raw) > limit {
		return string(raw[:limit])
	}
	return string(raw)
}
