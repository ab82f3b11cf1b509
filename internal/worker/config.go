// Package worker runs the deletion saga: the Pub/Sub intake handler and
// the resume loop that wakes due runs.
package worker

import (
	"os"
	"strconv"
	"time"
)

// Config holds the worker's tunables.
type Config struct {
	// GracePeriod is the user's window to abort a deletion.
	GracePeriod time.Duration

	// DownloadRecheck is the wait before re-checking a concurrent
	// download request.
	DownloadRecheck time.Duration

	// ResumeInterval is how often due saga runs are woken.
	ResumeInterval time.Duration

	// ResumeBatch caps how many runs a single tick advances.
	ResumeBatch int

	// BackupBucket is the destination bucket for pre-deletion backups.
	BackupBucket string

	// SessionAPIBase is the base URL of the session management API.
	SessionAPIBase string

	// SessionSigningKey signs the service tokens sent to the session API.
	SessionSigningKey string

	// ResendAPIKey and EmailFrom configure the completion email.
	ResendAPIKey string
	EmailFrom    string

	// PubSubProjectID and PubSubSubscription locate the deletion job queue.
	PubSubProjectID    string
	PubSubSubscription string
}

// ConfigFromEnv creates a Config from environment variables.
func ConfigFromEnv() Config {
	graceDays, _ := strconv.Atoi(getEnvOrDefault("GRACE_PERIOD_DAYS", "7"))
	recheck, _ := time.ParseDuration(getEnvOrDefault("DOWNLOAD_RECHECK_INTERVAL", "1h"))
	resume, _ := time.ParseDuration(getEnvOrDefault("RESUME_INTERVAL", "30s"))
	batch, _ := strconv.Atoi(getEnvOrDefault("RESUME_BATCH", "50"))

	return Config{
		GracePeriod:        time.Duration(graceDays) * 24 * time.Hour,
		DownloadRecheck:    recheck,
		ResumeInterval:     resume,
		ResumeBatch:        batch,
		BackupBucket:       getEnvOrDefault("BACKUP_BUCKET", "oblivio-user-data-backup"),
		SessionAPIBase:     getEnvOrDefault("SESSION_API_BASE", "http://localhost:8081"),
		SessionSigningKey:  getEnvOrDefault("SESSION_SIGNING_KEY", "local-dev-signing-key-change-in-production"),
		ResendAPIKey:       os.Getenv("RESEND_API_KEY"),
		EmailFrom:          getEnvOrDefault("EMAIL_FROM", "no-reply@oblivio.example"),
		PubSubProjectID:    getEnvOrDefault("PUBSUB_PROJECT_ID", "oblivio-local"),
		PubSubSubscription: getEnvOrDefault("PUBSUB_SUBSCRIPTION", "deletion-jobs-sub"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
