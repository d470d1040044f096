package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/docqa/internal/store"
)

// HistoryHandler lists past exchanges, newest first.
type HistoryHandler struct {
	Store *store.Store
}

func (h *HistoryHandler) Register(e *echo.Echo) {
	e.GET("/chat-history", h.history)
}

func (h *HistoryHandler) history(c echo.Context) error {
	if h.Store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "chat history requires postgres")
	}
	records, err := h.Store.ListChatHistory(c.Request().Context(), c.QueryParam("session_id"), 0)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if records == nil {
		records = []store.ChatRecord{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"chat_history": records})
}
