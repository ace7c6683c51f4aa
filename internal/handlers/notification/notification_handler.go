// internal/handlers/notification/notification_handler.go
package notification

import (
	"net/http"
	"strconv"

	"tainment-service/internal/domain/notification"
	"tainment-service/internal/middleware"
	xerrors "tainment-service/internal/pkg/errors"
	"tainment-service/internal/pkg/response"
	service "tainment-service/internal/service/notification"

	"github.com/gin-gonic/gin"
)

// NotificationHandler serves the caller's inbox.
type NotificationHandler struct {
	inbox *service.InboxService
}

func NewNotificationHandler(inbox *service.InboxService) *NotificationHandler {
	return &NotificationHandler{inbox: inbox}
}

// GetNotifications lists one page of the inbox, newest first. ?is_read
// filters by read state.
func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	var filters notification.ListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.FromError(c, xerrors.Validation("page, page_size and is_read must be numbers or booleans"))
		return
	}

	page, err := h.inbox.List(c.Request.Context(), middleware.MustGetIdentityID(c), &filters)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, "notifications retrieved", page)
}

func (h *NotificationHandler) GetUnreadCount(c *gin.Context) {
	count, err := h.inbox.UnreadCount(c.Request.Context(), middleware.MustGetIdentityID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, "unread count retrieved", gin.H{"unread_count": count})
}

// MarkAsRead marks one of the caller's notifications read and answers with
// the remaining unread count.
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	accountID := middleware.MustGetIdentityID(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.FromError(c, xerrors.Validation("invalid notification ID", "id", c.Param("id")))
		return
	}

	ctx := c.Request.Context()
	if err := h.inbox.MarkAsRead(ctx, id, accountID); err != nil {
		response.FromError(c, err)
		return
	}
	count, err := h.inbox.UnreadCount(ctx, accountID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, "notification marked as read", gin.H{"unread_count": count})
}
