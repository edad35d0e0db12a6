// Package storage keeps the room's chat log.
package storage

import (
	"context"

	"billfred/internal/model"
)

// ChatLog is the persistence interface used by the message dispatcher.
// Write never fails from the caller's point of view: records that cannot be
// stored are logged and dropped.
type ChatLog interface {
	Write(ctx context.Context, msg model.ChatMessage)
	Recent(ctx context.Context, limit int) ([]model.LogRecord, error)
	SchemaVersions(ctx context.Context) ([]model.SchemaVersion, error)
	Close() error
}
