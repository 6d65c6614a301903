package control

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/charging-platform/charge-point-simulator/internal/business/chargepoint"
	"github.com/charging-platform/charge-point-simulator/internal/message"
)

const maxCommandBody = 64 * 1024

// StatusReader 读取引擎快照
type StatusReader interface {
	Snapshot(ctx context.Context) (chargepoint.Snapshot, error)
}

// EngineStatusReader 通过调度循环读取快照
type EngineStatusReader struct {
	Engine Engine
}

// Snapshot 在调度循环中生成快照
func (r EngineStatusReader) Snapshot(ctx context.Context) (chargepoint.Snapshot, error) {
	var snap chargepoint.Snapshot
	err := r.Engine.Submit(ctx, func(e *chargepoint.Engine) error {
		snap = e.Snapshot()
		return nil
	})
	return snap, err
}

type commandResponse struct {
	Status  string `json:"status"`
	Command string `json:"command,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Handler 控制面 HTTP 处理器
type Handler struct {
	dispatcher *Dispatcher
	status     StatusReader
	timeout    time.Duration
}

// NewHandler 创建 HTTP 处理器
func NewHandler(dispatcher *Dispatcher, status StatusReader) *Handler {
	return &Handler{dispatcher: dispatcher, status: status, timeout: 5 * time.Second}
}

// Register 注册路由
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/commands", h.handleCommand)
	mux.HandleFunc("/status", h.handleStatus)
	mux.HandleFunc("/stats", h.handleStats)
	mux.HandleFunc("/health", h.handleHealth)
}

func (h *Handler) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, commandResponse{Status: "error", Error: "method not allowed"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, commandResponse{Status: "error", Error: err.Error()})
		return
	}
	var cmd message.Command
	if err := json.Unmarshal(body, &cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, commandResponse{Status: "error", Error: "invalid command: " + err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.dispatcher.Dispatch(ctx, SourceHTTP, &cmd); err != nil {
		writeJSON(w, statusFor(err), commandResponse{Status: "error", Command: cmd.CommandName, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Status: "ok", Command: cmd.CommandName})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, commandResponse{Status: "error", Error: "method not allowed"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	snap, err := h.status.Snapshot(ctx)
	if err != nil {
		writeJSON(w, statusFor(err), commandResponse{Status: "error", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.dispatcher.GetStats())
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// statusFor 错误到 HTTP 状态码的映射
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, ErrWrongChargePoint):
		return http.StatusMisdirectedRequest
	case errors.Is(err, chargepoint.ErrNotRunning):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, chargepoint.ErrNoActiveTransaction),
		errors.Is(err, chargepoint.ErrChargePointIDPinned):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
