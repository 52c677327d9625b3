package syncer

import (
	"context"

	"go.uber.org/zap"

	"github.com/and161185/decksync/internal/api"
	"github.com/and161185/decksync/internal/model"
	"github.com/and161185/decksync/internal/reconcile"
)

// CatalogAPI lists the user's remote decks.
type CatalogAPI interface {
	Catalog(ctx context.Context) ([]model.RemoteDeckDescriptor, error)
	CheckUpdates(ctx context.Context) (api.UpdateCheck, error)
}

// Updater classifies the remote catalog against the registry.
type Updater struct {
	api CatalogAPI
	reg Registry
	log *zap.Logger
}

// NewUpdater wires an updater. log may be nil.
func NewUpdater(a CatalogAPI, reg Registry, log *zap.Logger) *Updater {
	if log == nil {
		log = zap.NewNop()
	}
	return &Updater{api: a, reg: reg, log: log}
}

// Check calls the update-check endpoint and classifies the result locally. The local registry is
// authoritative; the server's has_update hint is only logged when it disagrees.
func (u *Updater) Check(ctx context.Context) (reconcile.Report, error) {
	uc, err := u.api.CheckUpdates(ctx)
	if err != nil {
		return reconcile.Report{}, err
	}
	rep, err := u.classify(uc.Decks)
	if err != nil {
		return rep, err
	}
	if uc.UpdatesAvailable != rep.UpdateAvailable {
		u.log.Debug("server and local update counts differ",
			zap.Int("server", uc.UpdatesAvailable), zap.Int("local", rep.UpdateAvailable))
	}
	u.log.Info(rep.Summary())
	return rep, nil
}

// Catalog lists the catalog and classifies it.
func (u *Updater) Catalog(ctx context.Context) (reconcile.Report, error) {
	decks, err := u.api.Catalog(ctx)
	if err != nil {
		return reconcile.Report{}, err
	}
	return u.classify(decks)
}

func (u *Updater) classify(decks []model.RemoteDeckDescriptor) (reconcile.Report, error) {
	tracked, err := u.reg.List()
	if err != nil {
		return reconcile.Report{}, err
	}
	return reconcile.ClassifyCatalog(tracked, decks), nil
}
