// Package server exposes the agent over HTTP: a chat endpoint streaming
// agent events as SSE, live entity streams backed by the event bus, stored
// screenshots, and a status surface.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alterlabs/alter/internal/bus"
	"github.com/alterlabs/alter/internal/provider"
	"github.com/alterlabs/alter/internal/runtime"
)

const chatHeartbeat = 15 * time.Second

// Server wraps an echo instance around the runtime.
type Server struct {
	echo *echo.Echo
	rt   *runtime.Runtime
	log  *bolt.Logger
}

func New(rt *runtime.Runtime) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, rt: rt, log: rt.Observer.Log()}

	e.POST("/api/chat", s.handleChat)
	e.GET("/api/stream/:stream", s.handleStream)
	e.GET("/api/screenshots/:id", s.handleScreenshot)
	e.GET("/api/status", s.handleStatus)
	e.GET("/api/timeline", s.handleTimeline)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return s
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start(addr string) error {
	s.log.Info().Str("addr", addr).Msg("http server listening")
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type chatRequest struct {
	SessionID string           `json:"session_id"`
	Message   string           `json:"message"`
	Images    []provider.Image `json:"images,omitempty"`
}

// handleChat runs one agent turn and streams its events as SSE.
func (s *Server) handleChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}

	ctx := c.Request().Context()
	events, err := s.rt.Chat(ctx, req.SessionID, req.Message, req.Images)
	if err != nil {
		if errors.Is(err, runtime.ErrBusy) {
			return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}

	heartbeat := time.NewTicker(chatHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			if err := writeSSE(resp, flusher, "heartbeat", nil); err != nil {
				return nil
			}
		case event, open := <-events:
			if !open {
				return nil
			}
			if err := writeSSE(resp, flusher, string(event.Kind), event); err != nil {
				return nil
			}
			if event.Terminal() {
				return nil
			}
		}
	}
}

// handleStream attaches the client to one of the bus streams.
func (s *Server) handleStream(c echo.Context) error {
	stream := c.Param("stream")
	switch stream {
	case bus.StreamThoughts, bus.StreamTasks, bus.StreamTimeline:
	default:
		return echo.NewHTTPError(http.StatusNotFound, "unknown stream: "+stream)
	}

	ctx := c.Request().Context()
	messages := s.rt.Bus.Subscribe(ctx, stream)

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}

	for msg := range messages {
		kind := "update"
		if msg.Heartbeat {
			kind = "heartbeat"
		}
		if err := writeSSE(resp, flusher, kind, msg); err != nil {
			return nil
		}
	}
	return nil
}

func (s *Server) handleScreenshot(c echo.Context) error {
	id := c.Param("id")
	for _, r := range id {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid screenshot id")
		}
	}
	return c.File(s.rt.ScreenshotPath(id))
}

type statusResponse struct {
	ActiveRuns      int     `json:"active_runs"`
	DriverRunning   bool    `json:"driver_running"`
	SurvivalBalance float64 `json:"survival_balance"`
	ThoughtCount    int     `json:"thought_count"`
	KnowledgeCount  int     `json:"knowledge_count"`
	MemoryCount     int     `json:"memory_count"`
	Usage           string  `json:"usage"`
}

func (s *Server) handleStatus(c echo.Context) error {
	balance, _ := s.rt.Store.SurvivalBalance()
	thoughts, _ := s.rt.Store.CountThoughts()
	knowledge, _ := s.rt.Store.CountKnowledge()
	memories, _ := s.rt.Store.CountMemories()

	return c.JSON(http.StatusOK, statusResponse{
		ActiveRuns:      s.rt.ActiveRuns(),
		DriverRunning:   s.rt.Driver.Running(),
		SurvivalBalance: balance,
		ThoughtCount:    thoughts,
		KnowledgeCount:  knowledge,
		MemoryCount:     memories,
		Usage:           s.rt.Usage.Report(),
	})
}

func (s *Server) handleTimeline(c echo.Context) error {
	entries, err := s.rt.Store.Timeline(50)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, entries)
}

func writeSSE(resp *echo.Response, flusher http.Flusher, event string, payload any) error {
	if _, err := resp.Write([]byte("event: " + event + "\n")); err != nil {
		return err
	}
	data := []byte("{}")
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return err
		}
	}
	if _, err := resp.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
