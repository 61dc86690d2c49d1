package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"admin-chat/internal/tree"
	"admin-chat/internal/user"

	"go.uber.org/zap"
)

var ErrViewClosed = errors.New("conversation view closed")

type UpdateKind string

const (
	UpdateMessages    UpdateKind = "messages"
	UpdateProfile     UpdateKind = "profile"
	UpdateUploadState UpdateKind = "upload_state"
	UpdateError       UpdateKind = "error"
	UpdateChatList    UpdateKind = "chat_list"
)

// Update is one change pushed from a View to its console.
type Update struct {
	Kind           UpdateKind     `json:"type"`
	CounterpartyID string         `json:"counterpartyId,omitempty"`
	Messages       []Message      `json:"messages,omitempty"`
	Profile        *user.Summary  `json:"profile,omitempty"`
	Upload         *GateStatus    `json:"upload,omitempty"`
	ChatList       []ChatListItem `json:"chatList,omitempty"`
	Error          string         `json:"error,omitempty"`
}

type messageWatcher interface {
	WatchMessages(ctx context.Context, counterpartyID string) (*tree.Subscription, error)
}

// ViewDeps are the collaborators shared by every View.
type ViewDeps struct {
	Messages   messageWatcher
	Profiles   ProfileSource
	Marker     *ReadMarker
	Aggregator *Aggregator
	Log        *zap.Logger
}

// View is one console's window onto the chat data: at most one open
// conversation with a live message stream, plus its own send gate.
//
// The view owns its subscription handle. Opening another conversation
// closes the old subscription before the new one is attached, and every
// delivery is checked against the current handle, so a late snapshot from
// the old conversation is dropped.
type View struct {
	deps  ViewDeps
	gate  *Gate
	actor string
	emit  func(Update)
	log   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// switchMu serializes Open and Close.
	switchMu sync.Mutex

	mu             sync.Mutex
	counterpartyID string
	sub            *tree.Subscription
	messages       []Message
	sweeping       bool
	sweepAgain     bool
	closed         bool
}

// NewView creates a view acting as actor. emit is called for every update
// and must not block.
func NewView(deps ViewDeps, gate *Gate, actor string, emit func(Update)) *View {
	if actor == "" {
		actor = user.AdminID
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	v := &View{
		deps:   deps,
		gate:   gate,
		actor:  actor,
		emit:   emit,
		log:    log.With(zap.String("actor", actor)),
		ctx:    ctx,
		cancel: cancel,
	}
	gate.OnChange(func(st GateStatus) {
		v.emit(Update{Kind: UpdateUploadState, CounterpartyID: v.Current(), Upload: &st})
	})
	return v
}

// Current returns the open conversation, or "" when none is open.
func (v *View) Current() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.counterpartyID
}

// Messages returns the last delivered message list, oldest first.
func (v *View) Messages() []Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Message, len(v.messages))
	copy(out, v.messages)
	return out
}

// Open switches the view to counterpartyID. The counterparty's profile is
// loaded and unread messages are swept as part of opening.
func (v *View) Open(counterpartyID string) error {
	counterpartyID = strings.TrimSpace(counterpartyID)
	if counterpartyID == "" {
		return user.ErrInvalidUID
	}

	v.switchMu.Lock()
	defer v.switchMu.Unlock()

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrViewClosed
	}
	prev := v.sub
	v.sub = nil
	v.counterpartyID = counterpartyID
	v.messages = nil
	v.mu.Unlock()

	if prev != nil {
		prev.Close()
	}

	sub, err := v.deps.Messages.WatchMessages(v.ctx, counterpartyID)
	if err != nil {
		v.log.Error("watch conversation", zap.String("counterparty", counterpartyID), zap.Error(err))
		v.mu.Lock()
		v.counterpartyID = ""
		v.mu.Unlock()
		v.emitError(counterpartyID, err)
		return err
	}

	v.mu.Lock()
	v.sub = sub
	v.wg.Add(2)
	v.mu.Unlock()

	go v.pump(sub, sub.C(), counterpartyID)
	go v.loadProfile(counterpartyID)

	v.log.Debug("conversation opened", zap.String("counterparty", counterpartyID))
	return nil
}

// pump turns value events into sorted message lists until sub closes.
func (v *View) pump(sub *tree.Subscription, events <-chan tree.Event, counterpartyID string) {
	defer v.wg.Done()
	for ev := range events {
		v.mu.Lock()
		if v.sub != sub || v.closed {
			v.mu.Unlock()
			continue
		}
		if ev.Err != nil {
			v.emitError(counterpartyID, ev.Err)
			v.mu.Unlock()
			continue
		}
		msgs := DecodeMessages(ev.Snapshot)
		v.messages = msgs
		v.emit(Update{Kind: UpdateMessages, CounterpartyID: counterpartyID, Messages: msgs})
		// a customer viewing their own conversation doesn't read it for the admin
		if v.actor != counterpartyID && HasUnread(counterpartyID, msgs) {
			v.startSweepLocked()
		}
		v.mu.Unlock()
	}
}

func (v *View) loadProfile(counterpartyID string) {
	defer v.wg.Done()
	p, err := v.deps.Profiles.GetProfile(v.ctx, counterpartyID)
	if err != nil {
		if v.ctx.Err() == nil {
			v.log.Warn("load counterparty profile", zap.String("counterparty", counterpartyID), zap.Error(err))
		}
		p = &user.Profile{UID: counterpartyID}
	}
	summary := p.Summary()

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.counterpartyID != counterpartyID || v.closed {
		return
	}
	v.emit(Update{Kind: UpdateProfile, CounterpartyID: counterpartyID, Profile: &summary})
}

// startSweepLocked runs a read sweep for the open conversation, or asks the
// running one to go again once it finishes.
func (v *View) startSweepLocked() {
	if v.sweeping {
		v.sweepAgain = true
		return
	}
	v.sweeping = true
	v.wg.Add(1)
	go v.sweepLoop(v.counterpartyID)
}

func (v *View) sweepLoop(counterpartyID string) {
	defer v.wg.Done()
	for {
		if _, err := v.deps.Marker.MarkAsRead(v.ctx, counterpartyID); err != nil && v.ctx.Err() == nil {
			v.emitError(counterpartyID, err)
		}

		v.mu.Lock()
		if !v.sweepAgain || v.closed || v.counterpartyID == "" {
			v.sweeping = false
			v.sweepAgain = false
			v.mu.Unlock()
			return
		}
		v.sweepAgain = false
		counterpartyID = v.counterpartyID
		v.mu.Unlock()
	}
}

// SendMessage sends into the open conversation. With no open conversation,
// or with blank text and no image, it does nothing.
func (v *View) SendMessage(ctx context.Context, text string, image ImageRef) error {
	counterpartyID := v.Current()
	if counterpartyID == "" {
		return nil
	}
	if strings.TrimSpace(text) == "" && image == nil {
		return nil
	}
	if _, err := v.gate.Send(ctx, counterpartyID, v.actor, text, image); err != nil {
		v.emitError(counterpartyID, err)
		return err
	}
	return nil
}

// MarkAsRead sweeps the open conversation on demand.
func (v *View) MarkAsRead(ctx context.Context) (int, error) {
	counterpartyID := v.Current()
	if counterpartyID == "" {
		return 0, nil
	}
	n, err := v.deps.Marker.MarkAsRead(ctx, counterpartyID)
	if err != nil {
		v.emitError(counterpartyID, err)
	}
	return n, err
}

func (v *View) ClearError() {
	v.gate.ClearError()
}

// LoadChatList pushes a fresh inbox snapshot filtered by query. Calling it
// again is the retry.
func (v *View) LoadChatList(ctx context.Context, query string) error {
	items, err := v.deps.Aggregator.LoadChatList(ctx)
	if err != nil {
		v.emitError("", err)
		return err
	}
	v.emit(Update{Kind: UpdateChatList, ChatList: FilterChatList(items, query)})
	return nil
}

// Close detaches the subscription and waits for background work to stop.
func (v *View) Close() {
	v.switchMu.Lock()
	defer v.switchMu.Unlock()

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	sub := v.sub
	v.sub = nil
	v.mu.Unlock()

	v.cancel()
	if sub != nil {
		sub.Close()
	}
	v.wg.Wait()
}

func (v *View) emitError(counterpartyID string, err error) {
	v.emit(Update{Kind: UpdateError, CounterpartyID: counterpartyID, Error: err.Error()})
}
