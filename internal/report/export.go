// Package report renders the chat inbox as a spreadsheet.
package report

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"admin-chat/internal/chat"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const sheetName = "Chats"

var headers = []string{"Counterparty", "Name", "Last message", "Unread", "Last activity"}

// WriteChatList writes items to w as an .xlsx workbook, one row per
// conversation in the given order.
func WriteChatList(w io.Writer, items []chat.ChatListItem, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, h)
	}

	for i, it := range items {
		row := i + 2
		unread := "no"
		if it.HasUnreadMessages {
			unread = "yes"
		}
		values := []any{
			it.CounterpartyID,
			it.DisplayName,
			it.LastMessage,
			unread,
			time.UnixMilli(it.LastMessageTimestamp).In(loc).Format("02.01.2006 15:04"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return fmt.Errorf("write %s: %w", cell, err)
			}
		}
	}

	return f.Write(w)
}

type chatListLoader interface {
	LoadChatList(ctx context.Context) ([]chat.ChatListItem, error)
}

type Handler struct {
	chats chatListLoader
	log   *zap.Logger
}

func NewHandler(chats chatListLoader, log *zap.Logger) *Handler {
	return &Handler{chats: chats, log: log}
}

// ExportChats serves GET /api/chats/export.xlsx
func (h *Handler) ExportChats(w http.ResponseWriter, r *http.Request) {
	items, err := h.chats.LoadChatList(r.Context())
	if err != nil {
		http.Error(w, "failed to load chat list", http.StatusBadGateway)
		return
	}
	items = chat.FilterChatList(items, r.URL.Query().Get("q"))

	filename := fmt.Sprintf("chats_%s.xlsx", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := WriteChatList(w, items, time.Local); err != nil {
		h.log.Error("write chat export", zap.Error(err))
	}
}
