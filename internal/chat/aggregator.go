package chat

import (
	"context"
	"errors"
	"fmt"

	"admin-chat/internal/user"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrIndexUnavailable = errors.New("chat index unavailable")

// maxSummaries caps the conversations summarized at once.
const maxSummaries = 32

type ConversationSource interface {
	ConversationIDs(ctx context.Context) ([]string, error)
	Messages(ctx context.Context, counterpartyID string) ([]Message, error)
}

type ProfileSource interface {
	GetProfile(ctx context.Context, uid string) (*user.Profile, error)
}

// Aggregator joins every conversation with its counterparty's profile to
// build the inbox.
type Aggregator struct {
	conversations ConversationSource
	profiles      ProfileSource
	log           *zap.Logger
}

func NewAggregator(conversations ConversationSource, profiles ProfileSource, log *zap.Logger) *Aggregator {
	return &Aggregator{conversations: conversations, profiles: profiles, log: log}
}

// LoadChatList takes one snapshot of the inbox, newest activity first.
//
// Each conversation is summarized in its own task, and the list is published
// only after every task has finished. A conversation whose messages or
// profile can't be read is logged and left out; it never holds up the rest.
// Only a failure to read the conversation index fails the whole load, and
// then the list is empty.
func (a *Aggregator) LoadChatList(ctx context.Context) ([]ChatListItem, error) {
	ids, err := a.conversations.ConversationIDs(ctx)
	if err != nil {
		a.log.Error("load chat index", zap.Error(err))
		return []ChatListItem{}, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}

	// one slot per conversation; the group is the join barrier
	slots := make([]*ChatListItem, len(ids))
	var g errgroup.Group
	g.SetLimit(maxSummaries)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			slots[i] = a.summarizeConversation(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	items := make([]ChatListItem, 0, len(ids))
	for _, it := range slots {
		if it != nil {
			items = append(items, *it)
		}
	}
	SortChatList(items)

	a.log.Debug("chat list loaded", zap.Int("conversations", len(ids)), zap.Int("items", len(items)))
	return items, nil
}

// summarizeConversation fetches messages and profile concurrently. It returns
// nil when the conversation contributes no item.
func (a *Aggregator) summarizeConversation(ctx context.Context, counterpartyID string) *ChatListItem {
	var (
		msgs       []Message
		profile    *user.Profile
		msgErr     error
		profileErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		msgs, msgErr = a.conversations.Messages(ctx, counterpartyID)
		return nil
	})
	g.Go(func() error {
		profile, profileErr = a.profiles.GetProfile(ctx, counterpartyID)
		return nil
	})
	_ = g.Wait()

	log := a.log.With(zap.String("counterparty", counterpartyID))
	if msgErr != nil {
		log.Warn("load conversation messages", zap.Error(msgErr))
		return nil
	}
	if len(msgs) == 0 {
		return nil
	}
	if profileErr != nil {
		log.Warn("load counterparty profile", zap.Error(profileErr))
		return nil
	}

	item, ok := Summarize(counterpartyID, profile, msgs)
	if !ok {
		return nil
	}
	return &item
}
