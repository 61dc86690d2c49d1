package chat

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type readStore interface {
	Messages(ctx context.Context, counterpartyID string) ([]Message, error)
	SetRead(ctx context.Context, counterpartyID, messageID string) error
}

type ReadMarker struct {
	store    readStore
	notifier Notifier
	log      *zap.Logger
}

func NewReadMarker(store readStore, notifier Notifier, log *zap.Logger) *ReadMarker {
	return &ReadMarker{store: store, notifier: orNop(notifier), log: log}
}

// MarkAsRead flips isRead on every unread message the counterparty sent.
// Messages from the admin side are left alone, and a second run finds
// nothing to do. Each flip is its own write: if one fails, the flips before
// it stay and the sweep stops. It returns how many messages were flipped.
func (rm *ReadMarker) MarkAsRead(ctx context.Context, counterpartyID string) (int, error) {
	msgs, err := rm.store.Messages(ctx, counterpartyID)
	if err != nil {
		return 0, fmt.Errorf("mark read %s: %w", counterpartyID, err)
	}

	var flipped []string
	for _, m := range msgs {
		if m.SenderID != counterpartyID || m.IsRead {
			continue
		}
		if err := rm.store.SetRead(ctx, counterpartyID, m.ID); err != nil {
			rm.log.Error("mark message read",
				zap.String("counterparty", counterpartyID),
				zap.String("message", m.ID),
				zap.Int("flipped", len(flipped)),
				zap.Error(err))
			if len(flipped) > 0 {
				rm.notifier.MessagesRead(ctx, counterpartyID, flipped)
			}
			return len(flipped), fmt.Errorf("%w: mark %s read: %w", ErrWriteFailed, m.ID, err)
		}
		flipped = append(flipped, m.ID)
	}

	if len(flipped) > 0 {
		rm.notifier.MessagesRead(ctx, counterpartyID, flipped)
	}
	return len(flipped), nil
}
