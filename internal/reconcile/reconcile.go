// Package reconcile compares the remote catalog with locally tracked decks. It performs no I/O.
package reconcile

import (
	"fmt"

	"github.com/and161185/decksync/internal/model"
)

// Classify decides the update state of one remote deck given its tracked counterpart, if any.
func Classify(local *model.TrackedDeck, remote model.RemoteDeckDescriptor) model.UpdateStatus {
	st := model.UpdateStatus{RemoteVersion: remote.Version}
	if local == nil {
		st.State = model.NotDownloaded
		return st
	}
	st.LocalVersion = local.Version
	if local.Version == remote.Version {
		st.State = model.UpToDate
	} else {
		st.State = model.UpdateAvailable
	}
	return st
}

// Item is one classified catalog entry.
type Item struct {
	Remote model.RemoteDeckDescriptor
	Local  *model.TrackedDeck
	Status model.UpdateStatus
}

// Report is the classification of a whole catalog.
type Report struct {
	Items           []Item
	NotDownloaded   int
	UpToDate        int
	UpdateAvailable int
}

// Total returns the number of classified decks.
func (r Report) Total() int { return len(r.Items) }

// Summary renders the report as "N updates available out of M decks".
func (r Report) Summary() string {
	return fmt.Sprintf("%d updates available out of %d decks", r.UpdateAvailable, r.Total())
}

// Updates returns the items with an update available.
func (r Report) Updates() []Item {
	var out []Item
	for _, it := range r.Items {
		if it.Status.State == model.UpdateAvailable {
			out = append(out, it)
		}
	}
	return out
}

// ClassifyCatalog classifies every descriptor against tracked, keyed by remote deck id.
// Catalog order is preserved.
func ClassifyCatalog(tracked []model.TrackedDeck, catalog []model.RemoteDeckDescriptor) Report {
	byID := make(map[string]*model.TrackedDeck, len(tracked))
	for i := range tracked {
		byID[tracked[i].DeckID] = &tracked[i]
	}
	rep := Report{Items: make([]Item, 0, len(catalog))}
	for _, d := range catalog {
		local := byID[d.DeckID]
		st := Classify(local, d)
		switch st.State {
		case model.NotDownloaded:
			rep.NotDownloaded++
		case model.UpToDate:
			rep.UpToDate++
		case model.UpdateAvailable:
			rep.UpdateAvailable++
		}
		rep.Items = append(rep.Items, Item{Remote: d, Local: local, Status: st})
	}
	return rep
}
