package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/and161185/decksync/internal/model"
	"github.com/and161185/decksync/internal/reconcile"
	"github.com/and161185/decksync/internal/syncer"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func pretty(b []byte) string {
	var out any
	if json.Unmarshal(b, &out) == nil {
		j, _ := json.MarshalIndent(out, "", "  ")
		return string(j)
	}
	return string(b)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// statusView is what the status command shows.
type statusView struct {
	LoggedIn     bool                `json:"logged_in"`
	TokenExpired bool                `json:"token_expired"`
	User         json.RawMessage     `json:"user,omitempty"`
	Tracked      []model.TrackedDeck `json:"tracked"`
	Unread       int                 `json:"unread_notifications"`
}

func renderStatus(w io.Writer, v statusView) {
	switch {
	case !v.LoggedIn:
		fmt.Fprintln(w, "Not logged in.")
	case v.TokenExpired:
		fmt.Fprintln(w, "Logged in (access token expired, will refresh on next call).")
	default:
		fmt.Fprintln(w, "Logged in.")
	}
	if len(v.User) > 0 {
		fmt.Fprintf(w, "User: %s\n", pretty(v.User))
	}
	fmt.Fprintf(w, "Unread notifications: %d\n", v.Unread)
	if len(v.Tracked) == 0 {
		fmt.Fprintln(w, "No decks downloaded.")
		return
	}
	fmt.Fprintf(w, "Downloaded decks (%d):\n", len(v.Tracked))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DECK\tVERSION\tLOCAL\tDOWNLOADED")
	for _, d := range v.Tracked {
		at := "-"
		if !d.DownloadedAt.IsZero() {
			at = d.DownloadedAt.UTC().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", d.DeckID, dash(d.Version), d.LocalRef, at)
	}
	tw.Flush()
}

func renderReport(w io.Writer, rep reconcile.Report) {
	if rep.Total() == 0 {
		fmt.Fprintln(w, "No decks in your library.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DECK\tTITLE\tREMOTE\tLOCAL\tSTATUS")
	for _, it := range rep.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			it.Remote.DeckID, dash(it.Remote.Title), dash(it.Status.RemoteVersion), dash(it.Status.LocalVersion), it.Status.State)
	}
	tw.Flush()
	fmt.Fprintln(w, rep.Summary())
}

func renderChangelog(w io.Writer, cl model.Changelog) {
	fmt.Fprintf(w, "%s (%s)\n", dash(cl.Title), cl.DeckID)
	fmt.Fprintf(w, "Current version: %s  Your version: %s\n", dash(cl.CurrentVersion), dash(cl.UserSyncedVersion))
	if cl.IsUpToDate {
		fmt.Fprintln(w, "You are up to date.")
	}
	for _, v := range cl.Versions {
		var marks []string
		if v.IsCurrent {
			marks = append(marks, "current")
		}
		if v.IsSynced {
			marks = append(marks, "yours")
		}
		head := "v" + v.Version
		if len(marks) > 0 {
			head += " [" + strings.Join(marks, ", ") + "]"
		}
		if !v.CreatedAt.IsZero() {
			head += " " + v.CreatedAt.UTC().Format(time.DateOnly)
		}
		fmt.Fprintf(w, "\n%s, %d cards\n", head, v.CardCount)
		if v.Notes != "" {
			for _, line := range strings.Split(strings.TrimSpace(v.Notes), "\n") {
				fmt.Fprintf(w, "  %s\n", line)
			}
		}
	}
}

func renderNotifications(w io.Writer, page model.NotificationPage) {
	if len(page.Notifications) == 0 {
		fmt.Fprintln(w, "No notifications.")
	}
	for _, n := range page.Notifications {
		mark := "*"
		if n.Read {
			mark = " "
		}
		when := ""
		if !n.CreatedAt.IsZero() {
			when = " (" + n.CreatedAt.UTC().Format(time.DateTime) + ")"
		}
		fmt.Fprintf(w, "%s [%s] %s%s\n", mark, dash(n.Type), dash(n.Title), when)
		if n.Message != "" {
			fmt.Fprintf(w, "    %s\n", n.Message)
		}
	}
	fmt.Fprintf(w, "%d unread of %d\n", page.UnreadCount, page.TotalCount)
}

func renderDownload(w io.Writer, rep syncer.DownloadReport) {
	for _, d := range rep.Installed {
		fmt.Fprintf(w, "installed %s v%s\n", d.DeckID, d.Version)
	}
	for _, f := range rep.Failed {
		fmt.Fprintf(w, "failed    %s: %s\n", f.DeckID, f.Error)
	}
	fmt.Fprintf(w, "%d installed, %d failed\n", len(rep.Installed), len(rep.Failed))
}

func renderSync(w io.Writer, res syncer.Result) {
	switch res.Status {
	case syncer.StatusNothingToSync:
		fmt.Fprintln(w, "Nothing to sync.")
	case syncer.StatusDisabled:
		fmt.Fprintln(w, "Progress sync is not enabled for this account.")
	default:
		fmt.Fprintf(w, "Synced progress for %d of %d decks.\n", res.SyncedCount, res.Attempted)
	}
	if res.Cleaned > 0 {
		fmt.Fprintf(w, "Removed %d deck(s) no longer in the collection.\n", res.Cleaned)
	}
	for _, err := range res.Skipped {
		fmt.Fprintf(w, "skipped: %v\n", err)
	}
}
