// Package request holds the user data processing request: an append-only,
// versioned record whose latest version is the single durable signal of a
// deletion's outcome.
package request

import (
	"regexp"
	"time"
)

// Choice is the kind of processing the user asked for.
type Choice string

// Choices.
const (
	ChoiceDelete   Choice = "DELETE"
	ChoiceDownload Choice = "DOWNLOAD"
)

// Status is the lifecycle status of a request.
type Status string

// Statuses. Every transition appends a new version; the current status is
// the latest version.
const (
	StatusPending Status = "PENDING"
	StatusWIP     Status = "WIP"
	StatusClosed  Status = "CLOSED"
	StatusFailed  Status = "FAILED"
	StatusAborted Status = "ABORTED"
)

// Request is one version of a user data processing request. Versions are
// never mutated or destroyed; they are kept for audit.
type Request struct {
	FiscalCode string
	Choice     Choice
	Status     Status
	RequestID  string
	Version    int
	Reason     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// fiscalCodePattern matches the Italian fiscal code format.
var fiscalCodePattern = regexp.MustCompile(`^[A-Z]{6}\d{2}[A-Z]\d{2}[A-Z]\d{3}[A-Z]$`)

// ValidFiscalCode reports whether s is a well-formed fiscal code.
func ValidFiscalCode(s string) bool {
	return fiscalCodePattern.MatchString(s)
}

// ValidChoice reports whether c is a known choice.
func ValidChoice(c Choice) bool {
	return c == ChoiceDelete || c == ChoiceDownload
}
