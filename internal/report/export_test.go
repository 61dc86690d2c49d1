package report

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"admin-chat/internal/chat"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"
)

func TestWriteChatList(t *testing.T) {
	ts := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC).UnixMilli()
	items := []chat.ChatListItem{
		{CounterpartyID: "u1", DisplayName: "Ann Lee", LastMessage: "hello", HasUnreadMessages: true, LastMessageTimestamp: ts},
		{CounterpartyID: "u2", DisplayName: "Customer", LastMessage: chat.ImagePreview, LastMessageTimestamp: ts},
	}

	var buf bytes.Buffer
	if err := WriteChatList(&buf, items, time.UTC); err != nil {
		t.Fatalf("WriteChatList: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %v", rows)
	}
	if rows[0][0] != "Counterparty" {
		t.Errorf("header = %v", rows[0])
	}
	want := []string{"u1", "Ann Lee", "hello", "yes", "15.03.2024 09:30"}
	for i, v := range want {
		if rows[1][i] != v {
			t.Errorf("row 1 col %d = %q, want %q", i, rows[1][i], v)
		}
	}
	if rows[2][3] != "no" {
		t.Errorf("row 2 unread = %q", rows[2][3])
	}
}

type stubLoader struct {
	items []chat.ChatListItem
	err   error
}

func (s stubLoader) LoadChatList(context.Context) ([]chat.ChatListItem, error) {
	return s.items, s.err
}

func TestExportChatsHandler(t *testing.T) {
	h := NewHandler(stubLoader{items: []chat.ChatListItem{{CounterpartyID: "u1", DisplayName: "Ann"}}}, zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	h.ExportChats(rec, httptest.NewRequest(http.MethodGet, "/api/chats/export.xlsx", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("content type = %q", ct)
	}
	if _, err := excelize.OpenReader(rec.Body); err != nil {
		t.Errorf("body is not a workbook: %v", err)
	}

	h = NewHandler(stubLoader{err: errors.New("index down")}, zaptest.NewLogger(t))
	rec = httptest.NewRecorder()
	h.ExportChats(rec, httptest.NewRequest(http.MethodGet, "/api/chats/export.xlsx", nil))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d", rec.Code)
	}
}
