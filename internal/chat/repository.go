package chat

import (
	"context"
	"fmt"

	"admin-chat/internal/tree"
)

const chatsRoot = "chats"

func messagesPath(counterpartyID string) string {
	return tree.Join(chatsRoot, counterpartyID, "messages")
}

type Repository struct {
	store tree.Store
}

func NewRepository(store tree.Store) *Repository {
	return &Repository{store: store}
}

// ConversationIDs lists every counterparty with a conversation record.
func (r *Repository) ConversationIDs(ctx context.Context) ([]string, error) {
	return r.store.Keys(ctx, chatsRoot)
}

// Messages reads a conversation once, oldest message first.
func (r *Repository) Messages(ctx context.Context, counterpartyID string) ([]Message, error) {
	snap, err := r.store.Get(ctx, messagesPath(counterpartyID))
	if err != nil {
		return nil, fmt.Errorf("messages for %s: %w", counterpartyID, err)
	}
	return DecodeMessages(snap), nil
}

func (r *Repository) WatchMessages(ctx context.Context, counterpartyID string) (*tree.Subscription, error) {
	return r.store.Watch(ctx, messagesPath(counterpartyID))
}

func (r *Repository) NewMessageID(string) string {
	return r.store.PushKey()
}

func (r *Repository) SaveMessage(ctx context.Context, counterpartyID string, msg Message) error {
	return r.store.Set(ctx, tree.Join(messagesPath(counterpartyID), msg.ID), msg)
}

// SetRead flips a single message's isRead field.
func (r *Repository) SetRead(ctx context.Context, counterpartyID, messageID string) error {
	return r.store.Set(ctx, tree.Join(messagesPath(counterpartyID), messageID, "isRead"), true)
}

// DecodeMessages turns a messages snapshot into a sorted slice. Children that
// don't decode as messages are skipped. The child key is the message id.
func DecodeMessages(snap tree.Snapshot) []Message {
	children := snap.Children()
	msgs := make([]Message, 0, len(children))
	for _, child := range children {
		var m Message
		if err := child.Decode(&m); err != nil {
			continue
		}
		m.ID = child.Key()
		msgs = append(msgs, m)
	}
	SortMessages(msgs)
	return msgs
}
