// Package feed maintains the subscription-feed side index: the per-service
// subscription markers consumed by senders. When a user is erased their
// subscriptions are retracted here so services stop addressing them.
package feed

import (
	"context"
	"sync"

	"github.com/oblivio/oblivio/internal/userdata"
)

// Unsubscription is one retraction entry written to the feed.
type Unsubscription struct {
	FiscalCode string
	// ServiceID is the retracted service, or "*" for the legacy whole-
	// account marker.
	ServiceID string
}

// legacyServiceID marks a whole-account unsubscription for accounts without
// per-service preferences.
const legacyServiceID = "*"

// Updater writes unsubscription entries to the feed.
type Updater interface {
	// Unsubscribe retracts the user's subscriptions. Legacy-mode accounts
	// get a single whole-account marker; opted-in accounts get one entry
	// per prior service preference so each can be individually retracted.
	Unsubscribe(ctx context.Context, fiscalCode string, mode userdata.ServicePreferencesMode, prefs []userdata.ServicePreference) error
}

// entriesFor expands the mode-dependent input into feed entries.
func entriesFor(fiscalCode string, mode userdata.ServicePreferencesMode, prefs []userdata.ServicePreference) []Unsubscription {
	if mode == userdata.ModeLegacy || len(prefs) == 0 {
		return []Unsubscription{{FiscalCode: fiscalCode, ServiceID: legacyServiceID}}
	}
	entries := make([]Unsubscription, 0, len(prefs))
	for _, p := range prefs {
		entries = append(entries, Unsubscription{FiscalCode: fiscalCode, ServiceID: p.ServiceID})
	}
	return entries
}

// MemoryUpdater is an in-memory Updater for tests.
type MemoryUpdater struct {
	mu      sync.Mutex
	entries []Unsubscription

	// FailWith makes Unsubscribe fail with the given error.
	FailWith error
}

// NewMemoryUpdater creates an empty in-memory updater.
func NewMemoryUpdater() *MemoryUpdater {
	return &MemoryUpdater{}
}

// Unsubscribe records the retraction entries.
func (u *MemoryUpdater) Unsubscribe(_ context.Context, fiscalCode string, mode userdata.ServicePreferencesMode, prefs []userdata.ServicePreference) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.FailWith != nil {
		return u.FailWith
	}
	u.entries = append(u.entries, entriesFor(fiscalCode, mode, prefs)...)
	return nil
}

// Entries returns every recorded retraction, in write order.
func (u *MemoryUpdater) Entries() []Unsubscription {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]Unsubscription(nil), u.entries...)
}

var _ Updater = (*MemoryUpdater)(nil)
