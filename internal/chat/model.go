package chat

// ---------------------------------------------
// Stored records (chats/{counterpartyId}/messages/{messageId})
// ---------------------------------------------

// Message field names follow the customer app's schema, which writes the
// same records from the other side.
type Message struct {
	ID        string `json:"id"`
	SenderID  string `json:"senderId"`
	Text      string `json:"text"`
	ImageURL  string `json:"urlIMG"`
	Timestamp int64  `json:"timestamp"` // unix millis
	IsRead    bool   `json:"isRead"`
}

// ---------------------------------------------
// Projections (recomputed, never stored)
// ---------------------------------------------

// ChatListItem summarizes one conversation for the inbox. The conversation
// is keyed by the counterparty's user id.
type ChatListItem struct {
	CounterpartyID       string `json:"counterpartyId"`
	DisplayName          string `json:"displayName"`
	AvatarURL            string `json:"avatarUrl"`
	LastMessage          string `json:"lastMessage"`
	HasUnreadMessages    bool   `json:"hasUnreadMessages"`
	LastMessageTimestamp int64  `json:"lastMessageTimestamp"`
}

const (
	ImagePreview     = "📷 Image"
	NoMessagePreview = "No messages"
)
