package chat

import (
	"sort"
	"strings"
	"time"

	"admin-chat/internal/user"
)

// Summarize builds the inbox entry for a conversation. It reports false for a
// conversation without messages, which has no entry.
func Summarize(counterpartyID string, profile *user.Profile, msgs []Message) (ChatListItem, bool) {
	if len(msgs) == 0 {
		return ChatListItem{}, false
	}

	last := msgs[0]
	for _, m := range msgs[1:] {
		if m.Timestamp > last.Timestamp {
			last = m
		}
	}

	item := ChatListItem{
		CounterpartyID:       counterpartyID,
		DisplayName:          profile.DisplayName(),
		LastMessage:          Preview(last),
		HasUnreadMessages:    HasUnread(counterpartyID, msgs),
		LastMessageTimestamp: last.Timestamp,
	}
	if profile != nil {
		item.AvatarURL = profile.ProfileImage
	}
	return item, true
}

// HasUnread reports whether the counterparty authored any message the admin
// side has not read yet. The admin's own messages never count.
func HasUnread(counterpartyID string, msgs []Message) bool {
	for _, m := range msgs {
		if m.SenderID == counterpartyID && !m.IsRead {
			return true
		}
	}
	return false
}

func Preview(m Message) string {
	switch {
	case strings.TrimSpace(m.Text) != "":
		return m.Text
	case strings.TrimSpace(m.ImageURL) != "":
		return ImagePreview
	default:
		return NoMessagePreview
	}
}

// SortChatList orders items by most recent activity first.
func SortChatList(items []ChatListItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].LastMessageTimestamp != items[j].LastMessageTimestamp {
			return items[i].LastMessageTimestamp > items[j].LastMessageTimestamp
		}
		return items[i].CounterpartyID < items[j].CounterpartyID
	})
}

// SortMessages orders messages oldest first. Ties keep their input order.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp < msgs[j].Timestamp
	})
}

// FilterChatList keeps the items whose display name contains query,
// ignoring case. A blank query keeps everything.
func FilterChatList(items []ChatListItem, query string) []ChatListItem {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return items
	}
	out := make([]ChatListItem, 0, len(items))
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.DisplayName), query) {
			out = append(out, it)
		}
	}
	return out
}

// FormatTimestamp renders a message time relative to now: "just now" within
// a minute, clock time within a day, weekday within a week, day/month after.
func FormatTimestamp(ts int64, now time.Time) string {
	diff := now.UnixMilli() - ts
	t := time.UnixMilli(ts).In(now.Location())
	switch {
	case diff < int64(time.Minute/time.Millisecond):
		return "just now"
	case diff < int64(24*time.Hour/time.Millisecond):
		return t.Format("15:04")
	case diff < int64(7*24*time.Hour/time.Millisecond):
		return t.Format("Mon")
	default:
		return t.Format("02/01")
	}
}
