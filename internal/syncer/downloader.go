package syncer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/decksync/internal/api"
	"github.com/and161185/decksync/internal/collection"
	"github.com/and161185/decksync/internal/errs"
	"github.com/and161185/decksync/internal/model"
)

// DownloadAPI issues download grants and fetches archives.
type DownloadAPI interface {
	DownloadDeck(ctx context.Context, deckID, version string) (model.DownloadGrant, error)
	BatchDownload(ctx context.Context, deckIDs []string) (api.BatchResult, error)
	DownloadFile(ctx context.Context, url string) ([]byte, error)
}

// DownloadReport is the outcome of a multi-deck download.
type DownloadReport struct {
	Installed []model.TrackedDeck
	Failed    []model.DownloadFailure
}

// Downloader fetches granted archives, hands them to the importer and tracks the result.
type Downloader struct {
	api      DownloadAPI
	importer collection.Importer
	reg      Registry
	log      *zap.Logger
}

// NewDownloader wires a downloader. log may be nil.
func NewDownloader(a DownloadAPI, importer collection.Importer, reg Registry, log *zap.Logger) *Downloader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Downloader{api: a, importer: importer, reg: reg, log: log}
}

// Download installs one deck. An empty version requests the latest.
func (d *Downloader) Download(ctx context.Context, deckID, version string) (model.TrackedDeck, error) {
	g, err := d.api.DownloadDeck(ctx, deckID, version)
	if err != nil {
		return model.TrackedDeck{}, err
	}
	return d.install(ctx, g)
}

// DownloadMany installs decks through the batch endpoint, api.MaxBatch ids per call. A failed
// chunk marks its decks failed and the rest continue; an AuthError aborts and is returned along
// with what was installed so far.
func (d *Downloader) DownloadMany(ctx context.Context, deckIDs []string) (DownloadReport, error) {
	var rep DownloadReport
	ids := dedupe(deckIDs)
	for start := 0; start < len(ids); start += api.MaxBatch {
		chunk := ids[start:min(start+api.MaxBatch, len(ids))]
		log := d.log.With(zap.Int("chunk_start", start), zap.Int("chunk_size", len(chunk)))

		res, err := d.api.BatchDownload(ctx, chunk)
		if err != nil {
			if errs.KindOf(err) == errs.KindAuth || errors.Is(err, context.Canceled) {
				return rep, err
			}
			log.Warn("batch download failed", zap.Error(err))
			for _, id := range chunk {
				rep.Failed = append(rep.Failed, model.DownloadFailure{DeckID: id, Error: "batch request failed: " + errs.Message(err)})
			}
			continue
		}

		answered := make(map[string]bool, len(chunk))
		for _, f := range res.Failed {
			answered[f.DeckID] = true
			rep.Failed = append(rep.Failed, f)
		}
		for _, g := range res.Grants {
			answered[g.DeckID] = true
			td, err := d.install(ctx, g)
			if err != nil {
				log.Warn("install failed", zap.String("deck_id", g.DeckID), zap.Error(err))
				rep.Failed = append(rep.Failed, model.DownloadFailure{DeckID: g.DeckID, Title: g.Title, Error: errs.Message(err)})
				continue
			}
			rep.Installed = append(rep.Installed, td)
		}
		for _, id := range chunk {
			if !answered[id] {
				rep.Failed = append(rep.Failed, model.DownloadFailure{DeckID: id, Error: "no result returned for deck"})
			}
		}
	}
	d.log.Info("download finished", zap.Int("installed", len(rep.Installed)), zap.Int("failed", len(rep.Failed)))
	return rep, nil
}

func (d *Downloader) install(ctx context.Context, g model.DownloadGrant) (model.TrackedDeck, error) {
	data, err := d.api.DownloadFile(ctx, g.DownloadURL)
	if err != nil {
		return model.TrackedDeck{}, err
	}
	title := g.Title
	if title == "" {
		title = g.DeckID
	}
	ref, err := d.importer.Import(ctx, title, data)
	if err != nil {
		return model.TrackedDeck{}, fmt.Errorf("import %s: %w", g.DeckID, err)
	}
	return d.reg.Track(ctx, g.DeckID, g.Version, ref)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
