package events

import (
	"context"
	"time"

	"admin-chat/internal/chat"

	"go.uber.org/zap"
)

const (
	KeyMessageSent  = "chat.message.sent"
	KeyMessagesRead = "chat.messages.read"

	publishTimeout = 5 * time.Second
)

type envelopePublisher interface {
	Publish(ctx context.Context, key string, env Envelope) error
}

type MessageSent struct {
	CounterpartyID string       `json:"counterpartyId"`
	Message        chat.Message `json:"message"`
}

type MessagesRead struct {
	CounterpartyID string   `json:"counterpartyId"`
	MessageIDs     []string `json:"messageIds"`
}

// Notifier reports chat writes as events. Publishing failures are logged
// and dropped.
type Notifier struct {
	pub envelopePublisher
	log *zap.Logger
}

func NewNotifier(pub envelopePublisher, log *zap.Logger) *Notifier {
	return &Notifier{pub: pub, log: log}
}

func (n *Notifier) MessageSent(ctx context.Context, counterpartyID string, msg chat.Message) {
	n.publish(ctx, KeyMessageSent, MessageSent{CounterpartyID: counterpartyID, Message: msg})
}

func (n *Notifier) MessagesRead(ctx context.Context, counterpartyID string, messageIDs []string) {
	n.publish(ctx, KeyMessagesRead, MessagesRead{CounterpartyID: counterpartyID, MessageIDs: messageIDs})
}

func (n *Notifier) publish(ctx context.Context, key string, payload any) {
	env, err := NewEnvelope(key, payload)
	if err != nil {
		n.log.Error("encode event", zap.String("key", key), zap.Error(err))
		return
	}
	// the chat write already happened; don't let the caller's deadline drop the event
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := n.pub.Publish(ctx, key, env); err != nil {
		n.log.Warn("publish event", zap.String("key", key), zap.Error(err))
	}
}
