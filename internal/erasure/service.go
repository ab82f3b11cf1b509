package erasure

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/oblivio/oblivio/internal/backup"
	"github.com/oblivio/oblivio/internal/userdata"
)

// Backup folder names, one per entity type.
const (
	folderProfile            = "profile"
	folderMessage            = "messages"
	folderMessageContent     = "message-content"
	folderMessageStatus      = "message-status"
	folderNotification       = "notifications"
	folderNotificationStatus = "notification-status"
)

// Report counts the entities backed up and deleted by one DeleteUserData
// run. Every counted entity has both a backup object and a completed delete.
type Report struct {
	Profiles             int
	Messages             int
	Contents             int
	MessageStatuses      int
	Notifications        int
	NotificationStatuses int
}

// Total returns the total number of processed documents.
func (r Report) Total() int {
	return r.Profiles + r.Messages + r.Contents + r.MessageStatuses +
		r.Notifications + r.NotificationStatuses
}

// ServiceConfig holds configuration for the erasure service.
type ServiceConfig struct {
	Store  userdata.Store
	Writer backup.Writer
	Logger zerolog.Logger

	// PageSize bounds each page read. Default: userdata.DefaultPageSize.
	PageSize int
}

// Service runs the backup-then-delete traversal over a user's document
// hierarchy. Traversal order is fixed: per message, content then statuses
// then notifications (each with its statuses) then the message itself; after
// all messages, every profile version.
type Service struct {
	store    userdata.Store
	writer   backup.Writer
	logger   zerolog.Logger
	pageSize int

	tracer  trace.Tracer
	backups metric.Int64Counter
	deletes metric.Int64Counter
}

// NewService creates a new erasure service.
func NewService(cfg ServiceConfig) *Service {
	pageSize := cfg.PageSize
	if pageSize == 0 {
		pageSize = userdata.DefaultPageSize
	}

	meter := otel.Meter("oblivio/erasure")
	backups, _ := meter.Int64Counter("erasure.backups",
		metric.WithDescription("Entities backed up before deletion"))
	deletes, _ := meter.Int64Counter("erasure.deletes",
		metric.WithDescription("Entities deleted after backup"))

	return &Service{
		store:    cfg.Store,
		writer:   cfg.Writer,
		logger:   cfg.Logger,
		pageSize: pageSize,
		tracer:   otel.Tracer("oblivio/erasure"),
		backups:  backups,
		deletes:  deletes,
	}
}

// DeleteUserData backs up and deletes every document owned by the user,
// children before parents. On the first failure the traversal stops and the
// typed failure is returned; nothing already deleted is restored.
func (s *Service) DeleteUserData(ctx context.Context, fiscalCode, folder string) (*Report, *Failure) {
	ctx, span := s.tracer.Start(ctx, "erasure.DeleteUserData")
	defer span.End()

	rep := &Report{}

	messages, f := backupAndDelete(ctx, s.writer, folder, pipeline[userdata.Message]{
		entity: folderMessage,
		query:  "messages by fiscal code",
		next:   pager(s.pageSize, func(ctx context.Context, cursor string, limit int) ([]userdata.Message, string, error) {
			return s.store.Messages(ctx, fiscalCode, cursor, limit)
		}),
		id: userdata.Message.ID,
		pre: func(ctx context.Context, m userdata.Message) *Failure {
			return s.processMessageChildren(ctx, folder, m, rep)
		},
		remove: func(ctx context.Context, m userdata.Message) error {
			return s.store.DeleteMessage(ctx, m.FiscalCode, m.MessageID)
		},
	})
	if f != nil {
		return nil, f
	}
	rep.Messages = len(messages)
	s.count(ctx, folderMessage, len(messages))

	profiles, f := backupAndDelete(ctx, s.writer, folder, pipeline[userdata.Profile]{
		entity: folderProfile,
		query:  "profile versions by fiscal code",
		next:   pager(s.pageSize, func(ctx context.Context, cursor string, limit int) ([]userdata.Profile, string, error) {
			return s.store.ProfileVersions(ctx, fiscalCode, cursor, limit)
		}),
		id: userdata.Profile.ID,
		remove: func(ctx context.Context, p userdata.Profile) error {
			return s.store.DeleteProfileVersion(ctx, p.FiscalCode, p.Version)
		},
	})
	if f != nil {
		return nil, f
	}
	rep.Profiles = len(profiles)
	s.count(ctx, folderProfile, len(profiles))

	s.logger.Info().
		Int("documents", rep.Total()).
		Int("messages", rep.Messages).
		Int("profile_versions", rep.Profiles).
		Msg("user data backed up and deleted")

	return rep, nil
}

// processMessageChildren fully backs up and deletes everything a message
// owns: its content, its status versions and its notifications with their
// per-channel statuses. Runs before the message itself is touched.
func (s *Service) processMessageChildren(ctx context.Context, folder string, m userdata.Message, rep *Report) *Failure {
	if f := s.processContent(ctx, folder, m, rep); f != nil {
		return f
	}

	statuses, f := backupAndDelete(ctx, s.writer, folder, pipeline[userdata.MessageStatus]{
		entity: folderMessageStatus,
		query:  "message statuses by message id",
		next:   pager(s.pageSize, func(ctx context.Context, cursor string, limit int) ([]userdata.MessageStatus, string, error) {
			return s.store.MessageStatuses(ctx, m.MessageID, cursor, limit)
		}),
		id: userdata.MessageStatus.ID,
		remove: func(ctx context.Context, st userdata.MessageStatus) error {
			return s.store.DeleteMessageStatus(ctx, st.MessageID, st.Version)
		},
	})
	if f != nil {
		return f
	}
	rep.MessageStatuses += len(statuses)
	s.count(ctx, folderMessageStatus, len(statuses))

	notifications, f := backupAndDelete(ctx, s.writer, folder, pipeline[userdata.Notification]{
		entity: folderNotification,
		query:  "notifications by message id",
		next:   pager(s.pageSize, func(ctx context.Context, cursor string, limit int) ([]userdata.Notification, string, error) {
			return s.store.Notifications(ctx, m.MessageID, cursor, limit)
		}),
		id: userdata.Notification.ID,
		pre: func(ctx context.Context, n userdata.Notification) *Failure {
			return s.processNotificationStatuses(ctx, folder, n, rep)
		},
		remove: func(ctx context.Context, n userdata.Notification) error {
			return s.store.DeleteNotification(ctx, n.MessageID, n.NotificationID)
		},
	})
	if f != nil {
		return f
	}
	rep.Notifications += len(notifications)
	s.count(ctx, folderNotification, len(notifications))

	return nil
}

// processContent backs up and deletes the message content. A message with
// no content is a valid state: nothing to back up, nothing to delete.
func (s *Service) processContent(ctx context.Context, folder string, m userdata.Message, rep *Report) *Failure {
	content, err := s.store.MessageContent(ctx, m.MessageID)
	if err != nil {
		return QueryFailure("message content by message id", err)
	}
	if content == nil {
		return nil
	}

	path := backup.ObjectPath(folder, folderMessageContent, content.ID())
	data, err := json.Marshal(content)
	if err != nil {
		return BlobFailure(path, err)
	}
	if err := s.writer.Write(ctx, path, data); err != nil {
		return BlobFailure(path, err)
	}
	if err := s.store.DeleteMessageContent(ctx, content.MessageID); err != nil {
		return DeleteFailure(folderMessageContent, content.ID(), err)
	}

	rep.Contents++
	s.count(ctx, folderMessageContent, 1)
	return nil
}

func (s *Service) processNotificationStatuses(ctx context.Context, folder string, n userdata.Notification, rep *Report) *Failure {
	statuses, f := backupAndDelete(ctx, s.writer, folder, pipeline[userdata.NotificationStatus]{
		entity: folderNotificationStatus,
		query:  "notification statuses by notification id",
		next:   pager(s.pageSize, func(ctx context.Context, cursor string, limit int) ([]userdata.NotificationStatus, string, error) {
			return s.store.NotificationStatuses(ctx, n.NotificationID, cursor, limit)
		}),
		id: userdata.NotificationStatus.ID,
		remove: func(ctx context.Context, st userdata.NotificationStatus) error {
			return s.store.DeleteNotificationStatus(ctx, st.NotificationID, st.Channel)
		},
	})
	if f != nil {
		return f
	}
	rep.NotificationStatuses += len(statuses)
	s.count(ctx, folderNotificationStatus, len(statuses))
	return nil
}

func (s *Service) count(ctx context.Context, entity string, n int) {
	if n == 0 {
		return
	}
	attrs := metric.WithAttributes(attribute.String("entity", entity))
	s.backups.Add(ctx, int64(n), attrs)
	s.deletes.Add(ctx, int64(n), attrs)
}
