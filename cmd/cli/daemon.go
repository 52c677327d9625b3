package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/decksync/internal/app"
	"github.com/and161185/decksync/internal/config"
	"github.com/and161185/decksync/internal/errs"
)

const (
	retryMaxInterval = 30 * time.Second
	retryMaxElapsed  = 10 * time.Minute
)

func newDaemonCommand(opts *rootOptions) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Sync progress and check notifications on the auto-sync interval",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.ready(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			d := &daemon{engine: e, log: opts.log.Named("daemon"), newBackOff: defaultBackOff}
			if once {
				return d.cycle(ctx)
			}

			intervals := make(chan time.Duration, 1)
			opts.loader.OnChange(func(s *config.Settings) {
				if !s.AutoSyncEnabled {
					d.log.Warn("auto sync disabled in settings; restart the daemon to stop it")
				}
				select {
				case intervals <- s.AutoSyncInterval():
				default:
				}
			})
			if err := opts.loader.Watch(ctx); err != nil {
				d.log.Warn("settings hot reload unavailable", zap.Error(err))
			} else {
				defer opts.loader.Close()
			}
			if !e.Settings().AutoSyncEnabled {
				return errors.New("auto sync is disabled in settings")
			}
			return d.run(ctx, e.Settings().AutoSyncInterval(), intervals)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single cycle and exit")
	return cmd
}

type daemon struct {
	engine     *app.Engine
	log        *zap.Logger
	newBackOff func() backoff.BackOff
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = retryMaxElapsed
	return b
}

// run performs a cycle immediately and then on every tick until ctx is done. An AuthError stops
// the daemon since no later cycle can succeed without a new login.
func (d *daemon) run(ctx context.Context, interval time.Duration, intervals <-chan time.Duration) error {
	d.log.Info("daemon started", zap.Duration("interval", interval))
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if err := d.cycle(ctx); err != nil {
			if errs.KindOf(err) == errs.KindAuth || errors.Is(err, errs.ErrNotAuthenticated) {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			d.log.Error("cycle failed", zap.Error(err), zap.String("hint", errs.Hint(err)))
		}
		select {
		case <-ctx.Done():
			d.log.Info("daemon stopped")
			return nil
		case iv := <-intervals:
			if iv > 0 && iv != interval {
				interval = iv
				t.Reset(interval)
				d.log.Info("sync interval changed", zap.Duration("interval", interval))
			}
		case <-t.C:
		}
	}
}

// cycle pushes progress and, when due, polls notifications.
func (d *daemon) cycle(ctx context.Context) error {
	err := retryNetwork(ctx, d.newBackOff(), d.log, func() error {
		res, err := d.engine.Coordinator.Sync(ctx)
		if err == nil {
			d.log.Info("sync cycle", zap.String("cycle", res.CycleID), zap.Stringer("status", res.Status),
				zap.Int("synced", res.SyncedCount), zap.Int("skipped", len(res.Skipped)))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	page, checked, err := d.engine.Notifier.CheckIfDue(ctx, 10)
	if err != nil {
		d.log.Warn("notification check failed", zap.Error(err))
		return nil
	}
	if checked && page.UnreadCount > 0 {
		d.log.Info("unread notifications", zap.Int("unread", page.UnreadCount))
	}
	return nil
}

// retryNetwork runs op, retrying with b only while it fails with a NetworkError. Any other error,
// or success, ends the loop immediately.
func retryNetwork(ctx context.Context, b backoff.BackOff, log *zap.Logger, op func() error) error {
	var final error
	err := backoff.RetryNotify(func() error {
		if err := ctx.Err(); err != nil {
			final = err
			return nil
		}
		err := op()
		if err != nil && errs.KindOf(err) == errs.KindNetwork {
			return err
		}
		final = err
		return nil
	}, b, func(err error, next time.Duration) {
		log.Warn("network error, retrying", zap.Duration("next", next), zap.Error(err))
	})
	if err != nil {
		return err
	}
	return final
}
