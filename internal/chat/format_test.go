package chat

import (
	"testing"
	"time"

	"admin-chat/internal/user"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name        string
		msgs        []Message
		wantPreview string
		wantTS      int64
		wantUnread  bool
	}{
		{
			name: "latest text",
			msgs: []Message{
				{SenderID: "u1", Text: "first", Timestamp: 10, IsRead: true},
				{SenderID: "admin", Text: "second", Timestamp: 30},
				{SenderID: "u1", Text: "middle", Timestamp: 20, IsRead: true},
			},
			wantPreview: "second",
			wantTS:      30,
		},
		{
			name: "image only",
			msgs: []Message{
				{SenderID: "u1", ImageURL: "http://i/1.png", Timestamp: 5},
			},
			wantPreview: ImagePreview,
			wantTS:      5,
			wantUnread:  true,
		},
		{
			name: "blank message",
			msgs: []Message{
				{SenderID: "admin", Text: "   ", Timestamp: 7},
			},
			wantPreview: NoMessagePreview,
			wantTS:      7,
		},
		{
			name: "admin unread does not count",
			msgs: []Message{
				{SenderID: "admin", Text: "ping", Timestamp: 1, IsRead: false},
			},
			wantPreview: "ping",
			wantTS:      1,
		},
		{
			name: "zero timestamps",
			msgs: []Message{
				{SenderID: "u1", Text: "a", Timestamp: 0, IsRead: true},
			},
			wantPreview: "a",
			wantTS:      0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, ok := Summarize("u1", nil, tt.msgs)
			if !ok {
				t.Fatal("no item")
			}
			if item.LastMessage != tt.wantPreview {
				t.Errorf("preview = %q, want %q", item.LastMessage, tt.wantPreview)
			}
			if item.LastMessageTimestamp != tt.wantTS {
				t.Errorf("ts = %d, want %d", item.LastMessageTimestamp, tt.wantTS)
			}
			if item.HasUnreadMessages != tt.wantUnread {
				t.Errorf("unread = %v, want %v", item.HasUnreadMessages, tt.wantUnread)
			}
			if item.DisplayName != user.DefaultDisplayName {
				t.Errorf("display name = %q", item.DisplayName)
			}
		})
	}

	if _, ok := Summarize("u1", nil, nil); ok {
		t.Error("empty conversation produced an item")
	}
}

func TestSortMessagesStable(t *testing.T) {
	msgs := []Message{
		{ID: "c", Timestamp: 30},
		{ID: "a", Timestamp: 10},
		{ID: "b1", Timestamp: 20},
		{ID: "b2", Timestamp: 20},
	}
	SortMessages(msgs)
	want := []string{"a", "b1", "b2", "c"}
	for i, m := range msgs {
		if m.ID != want[i] {
			t.Fatalf("order = %v", msgs)
		}
	}
}

func TestFilterChatList(t *testing.T) {
	items := []ChatListItem{
		{CounterpartyID: "1", DisplayName: "Ann Lee"},
		{CounterpartyID: "2", DisplayName: "bob@shop.io"},
		{CounterpartyID: "3", DisplayName: "Annabel"},
	}
	if got := FilterChatList(items, "  "); len(got) != 3 {
		t.Errorf("blank query kept %d", len(got))
	}
	got := FilterChatList(items, "ANN")
	if len(got) != 2 || got[0].CounterpartyID != "1" || got[1].CounterpartyID != "3" {
		t.Errorf("filter ANN = %+v", got)
	}
	if got := FilterChatList(items, "zzz"); len(got) != 0 {
		t.Errorf("filter zzz = %+v", got)
	}
}

func TestFormatTimestamp(t *testing.T) {
	loc := time.FixedZone("test", 7*3600)
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, loc) // a Friday

	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{90 * time.Minute, "10:30"},
		{3 * 24 * time.Hour, "Tue"},
		{10 * 24 * time.Hour, "05/03"},
	}
	for _, tt := range tests {
		ts := now.Add(-tt.ago).UnixMilli()
		if got := FormatTimestamp(ts, now); got != tt.want {
			t.Errorf("FormatTimestamp(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
}
