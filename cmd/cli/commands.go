package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/and161185/decksync/internal/model"
	"github.com/and161185/decksync/internal/syncer"
)

func newLoginCommand(opts *rootOptions) *cobra.Command {
	var email, password string
	var passwordStdin bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if passwordStdin {
				if stdinIsTerminal() {
					fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				}
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if email == "" || password == "" {
				return errors.New("need --email and --password (or --password-stdin)")
			}
			e, err := opts.ready(cmd)
			if err != nil {
				return err
			}
			if _, err := e.Session.Login(cmd.Context(), email, password); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged in.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "u", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func newLogoutCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.ready(cmd)
			if err != nil {
				return err
			}
			if err := e.Session.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session and downloaded decks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.ready(cmd)
			if err != nil {
				return err
			}
			user, err := e.Session.User()
			if err != nil {
				return err
			}
			tracked, err := e.Registry.List()
			if err != nil {
				return err
			}
			v := statusView{
				LoggedIn:     e.Session.LoggedIn(),
				TokenExpired: e.Session.IsExpired(),
				User:         user,
				Tracked:      tracked,
				Unread:       e.Notifier.UnreadCount(),
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), v)
			}
			renderStatus(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func newCatalogCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the decks you own and their local state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.ready(cmd)
			if err != nil {
				return err
			}
			rep, err := e.Updater.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), rep)
			}
			renderReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}
}

func newUpdatesCommand(opts *rootOptions) *cobra.Command {
	var install bool
	cmd := &cobra.Command{
		Use:   "updates",
		Short: "Check downloaded decks for newer versions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.ready(cmd)
			if err != nil {
				return err
			}
			rep, err := e.Updater.Check(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !install {
				if opts.jsonOut {
					return printJSON(out, rep)
				}
				renderReport(out, rep)
				return nil
			}
			var ids []string
			for _, it := range rep.Updates() {
				ids = append(ids, it.Remote.DeckID)
			}
			if len(ids) == 0 {
				fmt.Fprintln(out, "Everything is up to date.")
				return nil
			}
			dl, err := e.Downloader.DownloadMany(cmd.Context(), ids)
			if opts.jsonOut {
				if jerr := printJSON(out, dl); jerr != nil {
					return jerr
				}
			} else {
				renderDownload(out, dl)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&install, "install", false, "download every deck with an update")
	return cmd
}

func newDownloadCommand(opts *rootOptions) *cobra.Command {
	var version string
	var missing bool
	cmd := &cobra.Command{
		Use:   "download [deck-id...]",
		Short: "Download and import decks",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.ready(cmd)
			if err != nil {
				return err
			}
			ctx, out := cmd.Context(), cmd.OutOrStdout()
			ids := args
			if missing {
				rep, err := e.Updater.Catalog(ctx)
				if err != nil {
					return err
				}
				for _, it := range rep.Items {
					if it.Status.State == model.NotDownloaded {
						ids = append(ids, it.Remote.DeckID)
					}
				}
			}
			switch {
			case len(ids) == 0:
				return errors.New("no decks to download")
			case version != "" && len(ids) != 1:
				return errors.New("--version needs exactly one deck id")
			case len(ids) == 1:
				td, err := e.Downloader.Download(ctx, ids[0], version)
				if err != nil {
					return err
				}
				renderDownload(out, syncer.DownloadReport{Installed: []model.TrackedDeck{td}})
				return nil
			}
			rep, err := e.Downloader.DownloadMany(ctx, ids)
			if opts.jsonOut {
				if jerr := printJSON(out, rep); jerr != nil {
					return jerr
				}
			} else {
				renderDownload(out, rep)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "specific version (single deck only)")
	cmd.Flags().BoolVar(&missing, "missing", false, "also download every owned deck not yet downloaded")
	return cmd
}

func newChangelogCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "changelog <deck-id>",
		Short: "Show the version history of a deck",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.ready(cmd)
			if err != nil {
				return err
			}
			cl, err := e.Client.Changelog(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), cl)
			}
			renderChangelog(cmd.OutOrStdout(), cl)
			return nil
		},
	}
}

func newSyncCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push study progress for every downloaded deck",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.ready(cmd)
			if err != nil {
				return err
			}
			res, err := e.Coordinator.Sync(cmd.Context())
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"cycle_id":     res.CycleID,
					"status":       res.Status.String(),
					"synced_count": res.SyncedCount,
					"attempted":    res.Attempted,
					"skipped":      len(res.Skipped),
					"cleaned":      res.Cleaned,
				})
			}
			renderSync(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func newCleanupCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Forget decks that were deleted from the collection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.ready(cmd)
			if err != nil {
				return err
			}
			removed, total, err := e.Registry.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d of %d tracked decks.\n", removed, total)
			return nil
		},
	}
}

func newNotificationsCommand(opts *rootOptions) *cobra.Command {
	var markRead, ifDue bool
	var limit int
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Show notifications",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.ready(cmd)
			if err != nil {
				return err
			}
			var page model.NotificationPage
			if ifDue {
				var checked bool
				page, checked, err = e.Notifier.CheckIfDue(cmd.Context(), limit)
				if err == nil && !checked {
					fmt.Fprintf(cmd.OutOrStdout(), "Checked recently; %d unread.\n", page.UnreadCount)
					return nil
				}
			} else {
				page, err = e.Notifier.Check(cmd.Context(), markRead, limit)
			}
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), page)
			}
			renderNotifications(cmd.OutOrStdout(), page)
			return nil
		},
	}
	cmd.Flags().BoolVar(&markRead, "mark-read", false, "mark the returned notifications as read")
	cmd.Flags().BoolVar(&ifDue, "if-due", false, "only contact the server if the check interval has passed")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum notifications to fetch")
	return cmd
}

// stdinIsTerminal reports whether a prompt is worth printing.
func stdinIsTerminal() bool {
	fi, err := os.Stdin.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
