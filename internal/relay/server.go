package relay

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Ruslan361/task-168/internal/util"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server exposes the relay over HTTP: one WebSocket endpoint per role, plus
// optional static assets for browser endpoints.
type Server struct {
	relay  *Relay
	engine *gin.Engine
}

// NewServer wires the relay into a gin engine. staticDir, when non-empty,
// is served for every path the WebSocket endpoints do not claim.
func NewServer(relay *Relay, staticDir string) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{relay: relay, engine: engine}

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/client", s.upgrade(relay.ServeClient))
	engine.GET("/operator", s.upgrade(relay.ServeOperator))

	if staticDir != "" {
		engine.NoRoute(gin.WrapH(http.FileServer(http.Dir(staticDir))))
	}
	return s
}

func (s *Server) upgrade(serve func(*websocket.Conn)) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			util.LogWarning("relay: upgrade %s: %v", c.Request.URL.Path, err)
			return
		}
		serve(conn)
	}
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	util.LogInfo("relay: listening on %s", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	}
}
