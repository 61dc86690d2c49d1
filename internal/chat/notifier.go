package chat

import "context"

// Notifier is told about completed chat writes. Implementations must not
// fail the write they report on.
type Notifier interface {
	MessageSent(ctx context.Context, counterpartyID string, msg Message)
	MessagesRead(ctx context.Context, counterpartyID string, messageIDs []string)
}

type nopNotifier struct{}

func (nopNotifier) MessageSent(context.Context, string, Message)   {}
func (nopNotifier) MessagesRead(context.Context, string, []string) {}

func orNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}
