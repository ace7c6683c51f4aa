// internal/websocket/handler/notification.go
package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"tainment-service/internal/domain/notification"
	wstypes "tainment-service/internal/domain/websocket"
	ws "tainment-service/internal/websocket"
)

// Inbox is the part of the inbox service the socket exposes.
type Inbox interface {
	List(ctx context.Context, accountID int64, filters *notification.ListFilters) (*notification.ListResponse, error)
	MarkAsRead(ctx context.Context, id, accountID int64) error
	UnreadCount(ctx context.Context, accountID int64) (int64, error)
}

type NotificationHandler struct {
	inbox Inbox
}

func NewNotificationHandler(inbox Inbox) *NotificationHandler {
	return &NotificationHandler{inbox: inbox}
}

func (h *NotificationHandler) SupportedEvents() []wstypes.EventType {
	return []wstypes.EventType{
		wstypes.EventTypeNotificationRead,
		wstypes.EventTypeNotificationList,
		wstypes.EventTypeNotificationCount,
	}
}

func (h *NotificationHandler) HandleMessage(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	switch msg.Type {
	case wstypes.EventTypeNotificationRead:
		return h.markAsRead(ctx, client, msg)
	case wstypes.EventTypeNotificationList:
		return h.list(ctx, client, msg)
	case wstypes.EventTypeNotificationCount:
		return h.count(ctx, client)
	}
	return fmt.Errorf("unsupported event type: %s", msg.Type)
}

func (h *NotificationHandler) markAsRead(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	var req struct {
		NotificationID int64 `json:"notification_id"`
	}
	if err := decode(msg.Data, &req); err != nil {
		return fmt.Errorf("invalid mark as read request: %w", err)
	}

	// MarkAsRead pushes the new unread count itself.
	if err := h.inbox.MarkAsRead(ctx, req.NotificationID, client.AccountID()); err != nil {
		return err
	}
	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeNotificationRead, map[string]interface{}{
		"notification_id": req.NotificationID,
		"success":         true,
	}))
	return nil
}

func (h *NotificationHandler) list(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	var req struct {
		Page     int   `json:"page"`
		PageSize int   `json:"page_size"`
		IsRead   *bool `json:"is_read"`
	}
	if msg.Data != nil {
		if err := decode(msg.Data, &req); err != nil {
			return fmt.Errorf("invalid list request: %w", err)
		}
	}

	page, err := h.inbox.List(ctx, client.AccountID(), &notification.ListFilters{
		IsRead:   req.IsRead,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		return err
	}
	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeNotificationList, page))
	return nil
}

func (h *NotificationHandler) count(ctx context.Context, client *ws.Client) error {
	count, err := h.inbox.UnreadCount(ctx, client.AccountID())
	if err != nil {
		return err
	}
	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeNotificationCount, map[string]interface{}{
		"unread_count": count,
	}))
	return nil
}

func decode(data interface{}, target interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}
