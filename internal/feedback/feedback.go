// Package feedback applies reviewer classifications to captured messages.
package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/DJ-Powehi/telegram-secretary/internal/model"
	"github.com/DJ-Powehi/telegram-secretary/internal/storage"
)

// Handler is the sole write path for message labels.
type Handler struct {
	store storage.Storage
	now   func() time.Time
}

// New creates a Handler backed by the given store.
func New(store storage.Storage) *Handler {
	return &Handler{store: store, now: time.Now}
}

// ApplyLabel sets the label and labeled-at time on a message. Relabeling
// overwrites both fields; an unknown message ID surfaces
// storage.ErrNotFound with no mutation.
func (h *Handler) ApplyLabel(ctx context.Context, messageID int64, label model.Label) error {
	if !label.Valid() {
		return fmt.Errorf("invalid label %q", label)
	}
	return h.store.ApplyLabel(ctx, messageID, label, h.now().UTC())
}
