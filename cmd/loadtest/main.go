package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"admin-chat/internal/chat"
	"admin-chat/internal/tree"
	"admin-chat/internal/user"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

var (
	baseURL   = flag.String("base", "http://localhost:8080", "server base url")
	redisAddr = flag.String("redis", "localhost:6379", "redis address shared with the server")
	prefix    = flag.String("prefix", "admin-chat", "REDIS_PREFIX used by the server")
	secret    = flag.String("secret", "", "JWT_SECRET used by the server")
	customers = flag.Int("customers", 200, "number of customers")
	msgCount  = flag.Int("messages", 20, "messages per customer")
)

func main() {
	flag.Parse()
	if *secret == "" {
		log.Fatal("❌ -secret is required to act as customers")
	}
	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
	defer rdb.Close()
	store, err := tree.NewRedis(ctx, rdb, *prefix, nil)
	if err != nil {
		log.Fatalf("❌ redis: %v", err)
	}
	defer store.Close()

	tokens := user.NewService(user.NewRepository(store), *secret)

	log.Printf("🔥 STARTING LOAD TEST: %d customers, %d messages each", *customers, *msgCount)
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < *customers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			uid := fmt.Sprintf("lt_customer_%d", n)
			if err := seedProfile(ctx, store, uid, n); err != nil {
				log.Printf("❌ seed %s: %v", uid, err)
				return
			}
			token, err := tokens.IssueToken(uid, time.Hour)
			if err != nil {
				log.Printf("❌ token %s: %v", uid, err)
				return
			}
			spamChat(token, uid)
		}(i)
	}
	wg.Wait()
	log.Printf("✅ customers done in %v", time.Since(start))

	items := chatList()
	log.Printf("📥 inbox: %d conversations, %d unread", len(items), countUnread(items))

	// an admin opening each conversation sweeps it
	start = time.Now()
	for _, it := range items {
		if it.HasUnreadMessages {
			openAsAdmin(it.CounterpartyID)
		}
	}
	items = chatList()
	log.Printf("✅ sweep done in %v: %d unread left", time.Since(start), countUnread(items))
}

func seedProfile(ctx context.Context, store tree.Store, uid string, n int) error {
	return store.Set(ctx, tree.Join("users", uid), map[string]string{
		"firstName": "Load",
		"lastName":  fmt.Sprintf("Tester %d", n),
		"email":     uid + "@example.com",
	})
}

// spamChat sends as the customer over the websocket.
func spamChat(token, uid string) {
	conn := dial(token)
	if conn == nil {
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(chat.Command{Type: "open", CounterpartyID: uid}); err != nil {
		log.Printf("❌ open [%s]: %v", uid, err)
		return
	}
	for i := 0; i < *msgCount; i++ {
		cmd := chat.Command{Type: "send", Text: fmt.Sprintf("LoadTest Msg %d from %s", i, uid)}
		if err := conn.WriteJSON(cmd); err != nil {
			log.Printf("❌ send [%s]: %v", uid, err)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func openAsAdmin(uid string) {
	conn := dial("")
	if conn == nil {
		return
	}
	defer conn.Close()

	conn.WriteJSON(chat.Command{Type: "open", CounterpartyID: uid})
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var u chat.Update
		if err := conn.ReadJSON(&u); err != nil {
			log.Printf("❌ admin view [%s]: %v", uid, err)
			return
		}
		if u.Kind == chat.UpdateMessages && !chat.HasUnread(uid, u.Messages) {
			return
		}
	}
}

func dial(token string) *websocket.Conn {
	u, _ := url.Parse(*baseURL)
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	if token != "" {
		u.RawQuery = url.Values{"token": {token}}.Encode()
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Printf("❌ WS connect: %v", err)
		return nil
	}
	return conn
}

func chatList() []chat.ChatListItem {
	resp, err := http.Get(*baseURL + "/api/chats")
	if err != nil {
		log.Fatalf("❌ chat list: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Chats []chat.ChatListItem `json:"chats"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	return body.Chats
}

func countUnread(items []chat.ChatListItem) int {
	n := 0
	for _, it := range items {
		if it.HasUnreadMessages {
			n++
		}
	}
	return n
}
