package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jinford/steuer-rag/internal/core/answer"
	"github.com/jinford/steuer-rag/internal/core/ask"
	"github.com/jinford/steuer-rag/internal/core/retrieval"
)

// Asker は質問応答サービス
// テスト時のモック用に消費者側で定義
type Asker interface {
	Ask(ctx context.Context, params ask.Params) (*ask.Response, error)
}

// AskRequest は POST /api/ask のリクエストボディ
type AskRequest struct {
	Query     string        `json:"query"`
	Condition string        `json:"condition"`
	History   []answer.Turn `json:"history"`
	TaskID    int           `json:"taskId"`
}

// ErrorResponse はエラー時のレスポンスボディ
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler は /api/ask と /healthz を提供する
type Handler struct {
	asker  Asker
	logger *slog.Logger
}

// NewHandler は新しい Handler を作成する
func NewHandler(asker Asker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{asker: asker, logger: logger}
}

// Healthz は稼働確認用のエンドポイント
func (h *Handler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Ask は1ターン分の質問に回答する
// 劣化応答（混雑やタイムアウト）も 200 で返し、error / recoverable フラグで区別する
func (h *Handler) Ask(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
	}

	condition, err := ask.ParseCondition(req.Condition)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	resp, err := h.asker.Ask(c.Request().Context(), ask.Params{
		Query:     req.Query,
		Condition: condition,
		History:   req.History,
		TaskID:    req.TaskID,
	})
	if err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) respondError(c echo.Context, err error) error {
	requestID := c.Response().Header().Get(echo.HeaderXRequestID)

	switch {
	case errors.Is(err, ask.ErrEmptyQuery):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, retrieval.ErrIndexUnavailable):
		h.logger.Error("index unavailable", "requestID", requestID, "error", err)
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "index unavailable"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("request cancelled", "requestID", requestID, "error", err)
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "request cancelled"})
	default:
		h.logger.Error("ask failed", "requestID", requestID, "error", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
