package server

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/docqa/internal/pipeline"
	"github.com/mohammad-safakhou/docqa/internal/session"
	"github.com/mohammad-safakhou/docqa/internal/store"
)

// AskHandler answers questions against the indexed documents and records the
// exchange in the chat log and session cache.
type AskHandler struct {
	Pipeline *pipeline.Pipeline
	Store    *store.Store
	Sessions *session.Store
}

type askRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

func (h *AskHandler) Register(e *echo.Echo) {
	e.POST("/ask", h.ask)
}

func (h *AskHandler) ask(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Question) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}

	ctx := c.Request().Context()
	sessionID := req.SessionID
	if h.Sessions != nil {
		sid, err := h.Sessions.EnsureSession(ctx, sessionID)
		if err != nil {
			log.Printf("[HTTP] ensure session: %v", err)
		} else {
			sessionID = sid
		}
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	answer, err := h.Pipeline.Ask(ctx, req.Question)
	if err != nil {
		if errors.Is(err, pipeline.ErrEmptyQuestion) {
			return echo.NewHTTPError(http.StatusBadRequest, "question is required")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	// chat log and session cache are best effort; the answer still goes out
	if h.Store != nil {
		if err := h.Store.AppendChat(ctx, sessionID, req.Question, answer); err != nil {
			log.Printf("[HTTP] append chat: %v", err)
		}
	}
	if h.Sessions != nil {
		if err := h.Sessions.AppendExchange(ctx, sessionID, session.Exchange{Question: req.Question, Answer: answer}); err != nil {
			log.Printf("[HTTP] cache exchange: %v", err)
		}
	}

	return c.JSON(http.StatusOK, map[string]string{
		"answer":     answer,
		"session_id": sessionID,
	})
}
