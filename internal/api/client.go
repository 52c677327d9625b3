package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/and161185/decksync/internal/convert"
	"github.com/and161185/decksync/internal/errs"
	"github.com/and161185/decksync/internal/model"
)

// Endpoint paths of the remote authority.
const (
	PathLogin         = "/addon-login"
	PathRefresh       = "/addon-refresh-token"
	PathCatalog       = "/addon-get-purchases"
	PathCheckUpdates  = "/addon-check-updates"
	PathDownload      = "/addon-download-deck"
	PathBatchDownload = "/addon-batch-download"
	PathChangelog     = "/addon-get-changelog"
	PathSyncProgress  = "/addon-sync-progress"
	PathNotifications = "/addon-check-notifications"
)

// MaxBatch is the largest number of deck ids accepted by one batch download call.
const MaxBatch = 10

// UpdateCheck is the result of the update-check endpoint.
type UpdateCheck struct {
	Decks            []model.RemoteDeckDescriptor
	UpdatesAvailable int
	TotalDecks       int
}

// BatchResult is the result of one batch download call.
type BatchResult struct {
	Grants []model.DownloadGrant
	Failed []model.DownloadFailure
}

// Client exposes every endpoint as a typed method.
type Client struct {
	gw      *Gateway
	log     *zap.Logger
	schemas schemaSet
}

// NewClient builds a client over gw. It fails only if the embedded schemas do not compile.
func NewClient(gw *Gateway) (*Client, error) {
	set, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	return &Client{gw: gw, log: gw.log, schemas: set}, nil
}

// decode validates raw against the named schema and unmarshals it into dst.
func (c *Client) decode(op, schema string, raw []byte, dst any) error {
	if err := c.schemas.validate(schema, raw); err != nil {
		c.log.Warn("response failed schema validation", zap.String("op", op), zap.Error(err))
		return errs.Validation(op, "Invalid response from server", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errs.Validation(op, "Invalid response from server", err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, call Call, schema string, dst any) error {
	raw, err := c.gw.Do(ctx, call)
	if err != nil {
		return err
	}
	return c.decode(call.Method+" "+call.Path, schema, raw, dst)
}

// Login authenticates with email and password. It does not persist anything.
func (c *Client) Login(ctx context.Context, email, password string) (model.AuthToken, json.RawMessage, error) {
	if email == "" || password == "" {
		return model.AuthToken{}, nil, errors.New("email and password are required")
	}
	var resp convert.LoginResponse
	err := c.call(ctx, Call{
		Method: http.MethodPost,
		Path:   PathLogin,
		Body:   convert.LoginRequest{Email: email, Password: password},
	}, schemaLogin, &resp)
	if err != nil {
		return model.AuthToken{}, nil, err
	}
	return model.AuthToken{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    int64(resp.ExpiresAt),
	}, resp.User, nil
}

// Refresh exchanges a refresh token for a new token triple. It is never authenticated.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (model.AuthToken, error) {
	if refreshToken == "" {
		return model.AuthToken{}, errors.New("no refresh token available")
	}
	var resp convert.RefreshResponse
	err := c.call(ctx, Call{
		Method: http.MethodPost,
		Path:   PathRefresh,
		Body:   convert.RefreshRequest{RefreshToken: refreshToken},
	}, schemaRefresh, &resp)
	if err != nil {
		return model.AuthToken{}, err
	}
	return model.AuthToken{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    int64(resp.ExpiresAt),
	}, nil
}

// Catalog lists the decks the user owns.
func (c *Client) Catalog(ctx context.Context) ([]model.RemoteDeckDescriptor, error) {
	var resp convert.CatalogResponse
	if err := c.call(ctx, Call{Method: http.MethodGet, Path: PathCatalog, Auth: true}, schemaDecks, &resp); err != nil {
		return nil, err
	}
	return c.descriptors(resp.Decks), nil
}

// CheckUpdates asks the server which owned decks have newer versions.
func (c *Client) CheckUpdates(ctx context.Context) (UpdateCheck, error) {
	var resp convert.CheckUpdatesResponse
	err := c.call(ctx, Call{
		Method: http.MethodPost,
		Path:   PathCheckUpdates,
		Body:   struct{}{},
		Auth:   true,
	}, schemaDecks, &resp)
	if err != nil {
		return UpdateCheck{}, err
	}
	return UpdateCheck{
		Decks:            c.descriptors(resp.Decks),
		UpdatesAvailable: resp.UpdatesAvailable,
		TotalDecks:       resp.TotalDecks,
	}, nil
}

func (c *Client) descriptors(in []convert.DeckDTO) []model.RemoteDeckDescriptor {
	out := make([]model.RemoteDeckDescriptor, 0, len(in))
	for i, d := range in {
		desc, ok := d.Descriptor()
		if !ok {
			c.log.Warn("deck entry without id skipped", zap.Int("index", i), zap.String("title", d.Title))
			continue
		}
		out = append(out, desc)
	}
	return out
}

// DownloadDeck requests a pre-signed download for one deck. An empty version means the latest.
func (c *Client) DownloadDeck(ctx context.Context, deckID, version string) (model.DownloadGrant, error) {
	if deckID == "" {
		return model.DownloadGrant{}, errors.New("deck_id is required")
	}
	var resp convert.DownloadResponse
	err := c.call(ctx, Call{
		Method: http.MethodPost,
		Path:   PathDownload,
		Body:   convert.DownloadRequest{DeckID: deckID, Version: version},
		Auth:   true,
	}, schemaDownload, &resp)
	if err != nil {
		return model.DownloadGrant{}, err
	}
	id := resp.DeckID
	if id == "" {
		id = deckID
	}
	return model.DownloadGrant{
		DeckID:      id,
		Title:       resp.Title,
		Version:     resp.Version,
		DownloadURL: resp.DownloadURL,
		ExpiresAt:   int64(resp.ExpiresAt),
	}, nil
}

// BatchDownload requests downloads for up to MaxBatch decks in one call.
func (c *Client) BatchDownload(ctx context.Context, deckIDs []string) (BatchResult, error) {
	if len(deckIDs) == 0 {
		return BatchResult{}, nil
	}
	if len(deckIDs) > MaxBatch {
		return BatchResult{}, fmt.Errorf("batch download: %d ids exceeds the limit of %d", len(deckIDs), MaxBatch)
	}
	var resp convert.BatchDownloadResponse
	err := c.call(ctx, Call{
		Method: http.MethodPost,
		Path:   PathBatchDownload,
		Body:   convert.BatchDownloadRequest{DeckIDs: deckIDs},
		Auth:   true,
	}, schemaBatchDownload, &resp)
	if err != nil {
		return BatchResult{}, err
	}
	var res BatchResult
	for _, it := range resp.Downloads {
		if it.Success && it.DownloadURL != "" {
			res.Grants = append(res.Grants, convert.FromBatchItem(it))
			continue
		}
		msg := it.Error
		if msg == "" {
			msg = "no download URL returned"
		}
		res.Failed = append(res.Failed, model.DownloadFailure{DeckID: it.DeckID, Title: it.Title, Error: msg})
	}
	for _, f := range resp.Failed {
		res.Failed = append(res.Failed, model.DownloadFailure{DeckID: f.DeckID, Title: f.Title, Error: f.Error})
	}
	return res, nil
}

// Changelog returns the version history of a deck.
func (c *Client) Changelog(ctx context.Context, deckID string) (model.Changelog, error) {
	if deckID == "" {
		return model.Changelog{}, errors.New("deck_id is required")
	}
	var resp convert.ChangelogResponse
	err := c.call(ctx, Call{
		Method: http.MethodPost,
		Path:   PathChangelog,
		Body:   convert.ChangelogRequest{DeckID: deckID},
		Auth:   true,
	}, schemaChangelog, &resp)
	if err != nil {
		return model.Changelog{}, err
	}
	cl := convert.FromChangelogResponse(resp)
	if cl.DeckID == "" {
		cl.DeckID = deckID
	}
	return cl, nil
}

// SyncProgress pushes snapshots and returns the server's synced count. An empty batch is not sent.
func (c *Client) SyncProgress(ctx context.Context, snaps []model.ProgressSnapshot) (int, error) {
	if len(snaps) == 0 {
		return 0, nil
	}
	var resp convert.SyncProgressResponse
	err := c.call(ctx, Call{
		Method: http.MethodPost,
		Path:   PathSyncProgress,
		Body:   convert.SyncProgressRequest{Progress: convert.ToProgressDTOs(snaps)},
		Auth:   true,
	}, schemaSyncProgress, &resp)
	if err != nil {
		return 0, err
	}
	return resp.SyncedCount, nil
}

// CheckNotifications fetches up to limit notifications, optionally marking them read.
func (c *Client) CheckNotifications(ctx context.Context, markAsRead bool, limit int) (model.NotificationPage, error) {
	if limit <= 0 {
		limit = 10
	}
	var resp convert.NotificationsResponse
	err := c.call(ctx, Call{
		Method: http.MethodPost,
		Path:   PathNotifications,
		Body:   convert.NotificationsRequest{MarkAsRead: markAsRead, Limit: limit},
		Auth:   true,
	}, schemaNotifications, &resp)
	if err != nil {
		return model.NotificationPage{}, err
	}
	return convert.FromNotificationsResponse(resp), nil
}

// DownloadFile fetches the archive behind a pre-signed URL.
func (c *Client) DownloadFile(ctx context.Context, url string) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := c.gw.Fetch(ctx, url, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
