package chat

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"admin-chat/internal/tree"
	"admin-chat/internal/user"

	"go.uber.org/zap/zaptest"
)

type fakeConversations struct {
	ids      []string
	indexErr error
	messages map[string][]Message
	msgErr   map[string]error
	// jitter shuffles completion order across conversations
	jitter bool
}

func (f *fakeConversations) ConversationIDs(context.Context) ([]string, error) {
	return f.ids, f.indexErr
}

func (f *fakeConversations) Messages(_ context.Context, id string) ([]Message, error) {
	if f.jitter {
		time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
	}
	if err := f.msgErr[id]; err != nil {
		return nil, err
	}
	return f.messages[id], nil
}

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]*user.Profile
	fail     map[string]bool
	calls    []string
}

func (f *fakeProfiles) GetProfile(_ context.Context, uid string) (*user.Profile, error) {
	f.mu.Lock()
	f.calls = append(f.calls, uid)
	f.mu.Unlock()
	if f.fail[uid] {
		return nil, errors.New("profile backend down")
	}
	if p, ok := f.profiles[uid]; ok {
		return p, nil
	}
	return &user.Profile{UID: uid}, nil
}

func TestLoadChatListExample(t *testing.T) {
	ctx := context.Background()
	store := tree.NewMemory(zaptest.NewLogger(t))
	defer store.Close()

	for id, m := range map[string]Message{
		"m1": {SenderID: "u1", Text: "hi", Timestamp: 100, IsRead: false},
		"m2": {SenderID: user.AdminID, Text: "hello", Timestamp: 200, IsRead: true},
	} {
		if err := store.Set(ctx, "chats/u1/messages/"+id, m); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Set(ctx, "users/u1", map[string]any{"firstName": "Ann", "lastName": "Lee", "profileImage": "http://img/ann.png"}); err != nil {
		t.Fatal(err)
	}

	agg := NewAggregator(NewRepository(store), user.NewRepository(store), zaptest.NewLogger(t))
	items, err := agg.LoadChatList(ctx)
	if err != nil {
		t.Fatalf("LoadChatList: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	want := ChatListItem{
		CounterpartyID:       "u1",
		DisplayName:          "Ann Lee",
		AvatarURL:            "http://img/ann.png",
		LastMessage:          "hello",
		HasUnreadMessages:    true,
		LastMessageTimestamp: 200,
	}
	if items[0] != want {
		t.Errorf("item = %+v\nwant   %+v", items[0], want)
	}
}

func TestLoadChatListOrderingIndependentOfArrival(t *testing.T) {
	conv := &fakeConversations{
		ids: []string{"a", "b", "c", "d", "e"},
		messages: map[string][]Message{
			"a": {{SenderID: "a", Text: "1", Timestamp: 300}},
			"b": {{SenderID: "b", Text: "1", Timestamp: 100}, {SenderID: "admin", Text: "2", Timestamp: 500}},
			"c": {{SenderID: "c", Text: "1", Timestamp: 50}},
			"d": {{SenderID: "d", Text: "1", Timestamp: 400}},
			"e": {{SenderID: "e", Text: "1", Timestamp: 300}},
		},
		jitter: true,
	}
	agg := NewAggregator(conv, &fakeProfiles{}, zaptest.NewLogger(t))

	for run := 0; run < 10; run++ {
		items, err := agg.LoadChatList(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		var got []string
		for _, it := range items {
			got = append(got, it.CounterpartyID)
		}
		want := []string{"b", "d", "a", "e", "c"}
		if len(got) != len(want) {
			t.Fatalf("run %d: got %v, want %v", run, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("run %d: got %v, want %v", run, got, want)
			}
		}
		for i := 1; i < len(items); i++ {
			if items[i-1].LastMessageTimestamp < items[i].LastMessageTimestamp {
				t.Fatalf("run %d: not sorted descending: %v", run, items)
			}
		}
	}
}

func TestLoadChatListAbsorbsPerConversationFailures(t *testing.T) {
	conv := &fakeConversations{
		ids: []string{"ok1", "badprofile", "badmessages", "empty", "ok2"},
		messages: map[string][]Message{
			"ok1":        {{SenderID: "ok1", Text: "x", Timestamp: 1}},
			"badprofile": {{SenderID: "badprofile", Text: "x", Timestamp: 2}},
			"ok2":        {{SenderID: "ok2", Text: "x", Timestamp: 3}},
		},
		msgErr: map[string]error{"badmessages": errors.New("read timeout")},
	}
	profiles := &fakeProfiles{fail: map[string]bool{"badprofile": true}}
	agg := NewAggregator(conv, profiles, zaptest.NewLogger(t))

	done := make(chan []ChatListItem)
	go func() {
		items, err := agg.LoadChatList(context.Background())
		if err != nil {
			t.Error(err)
		}
		done <- items
	}()

	select {
	case items := <-done:
		if len(items) != 2 || items[0].CounterpartyID != "ok2" || items[1].CounterpartyID != "ok1" {
			t.Errorf("items = %+v", items)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("aggregation did not complete")
	}

	// every conversation was processed, including the empty one
	if len(profiles.calls) != len(conv.ids) {
		t.Errorf("profile fetches = %v", profiles.calls)
	}
}

func TestLoadChatListIndexFailure(t *testing.T) {
	conv := &fakeConversations{indexErr: errors.New("permission denied")}
	profiles := &fakeProfiles{}
	agg := NewAggregator(conv, profiles, zaptest.NewLogger(t))

	items, err := agg.LoadChatList(context.Background())
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Fatalf("err = %v, want ErrIndexUnavailable", err)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("items = %v, want empty list", items)
	}
	if len(profiles.calls) != 0 {
		t.Errorf("aggregated after index failure: %v", profiles.calls)
	}
}

func TestLoadChatListNoConversations(t *testing.T) {
	agg := NewAggregator(&fakeConversations{}, &fakeProfiles{}, zaptest.NewLogger(t))
	items, err := agg.LoadChatList(context.Background())
	if err != nil || len(items) != 0 {
		t.Errorf("items = %v, err = %v", items, err)
	}
}

// inFlightConversations records the most Messages calls running at once.
type inFlightConversations struct {
	fakeConversations
	mu      sync.Mutex
	running int
	peak    int
}

func (f *inFlightConversations) Messages(ctx context.Context, id string) ([]Message, error) {
	f.mu.Lock()
	f.running++
	if f.running > f.peak {
		f.peak = f.running
	}
	f.mu.Unlock()

	time.Sleep(2 * time.Millisecond)

	f.mu.Lock()
	f.running--
	f.mu.Unlock()
	return f.fakeConversations.Messages(ctx, id)
}

func TestLoadChatListBoundsFanOut(t *testing.T) {
	conv := &inFlightConversations{fakeConversations: fakeConversations{messages: map[string][]Message{}}}
	for i := 0; i < 3*maxSummaries; i++ {
		id := fmt.Sprintf("u%03d", i)
		conv.ids = append(conv.ids, id)
		conv.messages[id] = []Message{{ID: "m", SenderID: id, Text: "hi", Timestamp: int64(i)}}
	}

	agg := NewAggregator(conv, &fakeProfiles{}, zaptest.NewLogger(t))
	items, err := agg.LoadChatList(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != len(conv.ids) {
		t.Errorf("items = %d, want %d", len(items), len(conv.ids))
	}
	if conv.peak > maxSummaries {
		t.Errorf("peak concurrency = %d, limit %d", conv.peak, maxSummaries)
	}
}
