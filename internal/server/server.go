// Package server exposes the document store over HTTP and WebSocket.
//
// The REST surface is a thin document API: collections are returned as
// id-keyed JSON objects, individual documents as their raw bodies. The
// WebSocket endpoint streams full collection snapshots, which is what the
// remote store client consumes. A second WebSocket endpoint carries
// reminder notifications out to connected UI clients.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lawdesk/docket/internal/store"
)

// Config holds the server listen address and timeouts.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the defaults used when no config file is present.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8487",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server serves the document API over a store.
type Server struct {
	cfg   Config
	store store.Store
	log   *zap.SugaredLogger
	echo  *echo.Echo
	hub   *Hub

	unsubscribes []func()
}

// New builds the server and registers all routes. Call Start to listen.
func New(cfg Config, st store.Store, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultConfig().Addr
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		cfg:   cfg,
		store: st,
		log:   logger.With("component", "server"),
		echo:  e,
		hub:   NewHub(logger),
	}

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/v1")
	v1.GET("/ws", s.handleCollectionStream)
	v1.GET("/notifications/ws", s.hub.handleClient)
	v1.GET("/:collection", s.handleGetAll)
	v1.DELETE("/:collection", s.handleDeleteAll)
	v1.GET("/:collection/:id", s.handleGet)
	v1.PUT("/:collection/:id", s.handlePut)
	v1.PATCH("/:collection/:id", s.handlePatch)
	v1.DELETE("/:collection/:id", s.handleDelete)

	return s
}

// Hub returns the notification broadcast hub. It satisfies notify.Platform,
// so the dispatcher can push reminders straight to connected clients.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler exposes the route tree for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start begins listening and blocks until Shutdown or a listen error.
func (s *Server) Start() error {
	s.hub.Start()
	s.echo.Server.ReadTimeout = s.cfg.ReadTimeout
	s.echo.Server.WriteTimeout = s.cfg.WriteTimeout

	s.log.Infow("listening", "addr", s.cfg.Addr)
	if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener, detaches store subscriptions, and closes all
// WebSocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, unsub := range s.unsubscribes {
		unsub()
	}
	s.unsubscribes = nil
	s.hub.Stop()
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.store.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status": "degraded",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

func parseCollection(name string) (store.Collection, error) {
	switch store.Collection(name) {
	case store.Tasks:
		return store.Tasks, nil
	case store.Cases:
		return store.Cases, nil
	default:
		return "", fmt.Errorf("unknown collection %q", name)
	}
}

func (s *Server) handleGetAll(c echo.Context) error {
	col, err := parseCollection(c.Param("collection"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	docs, err := s.store.GetAll(c.Request().Context(), col)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, keyByID(docs))
}

func (s *Server) handleGet(c echo.Context) error {
	col, err := parseCollection(c.Param("collection"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	doc, err := s.store.Get(c.Request().Context(), col, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSONBlob(http.StatusOK, doc.Data)
}

func (s *Server) handlePut(c echo.Context) error {
	col, err := parseCollection(c.Param("collection"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	var body json.RawMessage
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "body must be a JSON document")
	}
	id := c.Param("id")
	if err := s.store.Put(c.Request().Context(), col, id, body); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handlePatch(c echo.Context) error {
	col, err := parseCollection(c.Param("collection"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	var fields map[string]any
	if err := c.Bind(&fields); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "body must be a JSON object of fields")
	}
	id := c.Param("id")
	err = s.store.Patch(c.Request().Context(), col, id, fields)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleDelete(c echo.Context) error {
	col, err := parseCollection(c.Param("collection"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err := s.store.Delete(c.Request().Context(), col, c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDeleteAll(c echo.Context) error {
	col, err := parseCollection(c.Param("collection"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err := s.store.DeleteAll(c.Request().Context(), col); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// SnapshotMessage is one frame on the collection stream: the full current
// contents of one collection, keyed by document id.
type SnapshotMessage struct {
	Collection store.Collection           `json:"collection"`
	Data       map[string]json.RawMessage `json:"data"`
}

// handleCollectionStream upgrades to WebSocket and pushes a snapshot frame
// for every change in the requested collection, starting with the current
// contents. The client never sends anything meaningful; its reads only
// detect disconnect.
func (s *Server) handleCollectionStream(c echo.Context) error {
	col, err := parseCollection(c.QueryParam("collection"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	frames := make(chan []byte, 16)
	unsub, err := s.store.Subscribe(ctx, col, func(docs []store.Document) {
		data, err := json.Marshal(SnapshotMessage{Collection: col, Data: keyByID(docs)})
		if err != nil {
			return
		}
		select {
		case frames <- data:
		case <-ctx.Done():
		}
	}, func(err error) {
		s.log.Warnw("stream subscription error", "collection", col, "error", err)
	})
	if err != nil {
		conn.Close(websocket.StatusInternalError, "subscribe failed")
		return nil
	}
	defer unsub()

	// Reads only serve to notice the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return nil
		case frame := <-frames:
			writeCtx, writeCancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, frame)
			writeCancel()
			if err != nil {
				conn.Close(websocket.StatusAbnormalClosure, "")
				return nil
			}
		}
	}
}

func keyByID(docs []store.Document) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(docs))
	for _, d := range docs {
		out[d.ID] = d.Data
	}
	return out
}
