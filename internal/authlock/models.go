// Package authlock manages the user's authentication lock records in the
// table store: the unlock codes partitioned by fiscal code that keep an
// account locked out.
package authlock

import "time"

// Record is one authentication lock row, keyed by
// (partition=fiscalCode, row=unlockCode).
type Record struct {
	FiscalCode string     `json:"fiscalCode"`
	UnlockCode string     `json:"unlockCode"`
	CreatedAt  time.Time  `json:"createdAt"`
	Released   *time.Time `json:"released,omitempty"`
}

// ID returns the backup object identifier for this record.
func (r Record) ID() string {
	return r.FiscalCode + "-" + r.UnlockCode
}
