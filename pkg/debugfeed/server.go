package debugfeed

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/QYUbit/revolute/pkg/axlog"
	"github.com/QYUbit/revolute/pkg/render"
	"github.com/gin-gonic/gin"
	"github.com/quic-go/quic-go/http3"
)

var startTime = time.Now()

// FrameSource provides the most recent debug frame.
type FrameSource interface {
	Latest() (render.Frame, bool)
}

type Server struct {
	router *gin.Engine
	hub    *WebSocketHub
	frames FrameSource
	wt     *WebTransportFeed
	logger axlog.Logger
}

type bodyJSON struct {
	Entity      uint64     `json:"entity"`
	Shape       string     `json:"shape"`
	Kind        string     `json:"kind"`
	Asleep      bool       `json:"asleep"`
	Position    [3]float64 `json:"position"`
	Rotation    [4]float64 `json:"rotation"`
	HalfExtents [3]float64 `json:"half_extents"`
	Radius      float64    `json:"radius,omitempty"`
}

type cameraJSON struct {
	Position [3]float64 `json:"position"`
	Forward  [3]float64 `json:"forward"`
}

type sceneJSON struct {
	Frame  uint64     `json:"frame"`
	Camera cameraJSON `json:"camera"`
	Bodies []bodyJSON `json:"bodies"`
}

func NewServer(hub *WebSocketHub, frames FrameSource, logger axlog.Logger) *Server {
	if logger == nil {
		logger = axlog.Nop()
	}

	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router: gin.New(),
		hub:    hub,
		frames: frames,
		logger: logger.With("component", "http"),
	}

	s.router.Use(gin.Recovery(), s.requestLogger())
	s.router.GET("/healthz", s.health)
	s.router.GET("/scene", s.scene)
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.ServeHTTP(c.Writer, c.Request)
	})

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// EnableWebTransport accepts WebTransport sessions for feed on
// WebTransportPath when serving HTTP/3. It must be called before ServeHTTP3.
func (s *Server) EnableWebTransport(feed *WebTransportFeed) {
	s.wt = feed
}

// h3Handler routes extended CONNECT requests to the WebTransport feed and
// everything else to the regular routes.
func (s *Server) h3Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.wt != nil && r.Method == http.MethodConnect && r.URL.Path == WebTransportPath {
			s.wt.ServeHTTP(w, r)
			return
		}
		s.router.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"took", time.Since(start),
		)
	}
}

func (s *Server) health(c *gin.Context) {
	var frame uint64
	if f, ok := s.frames.Latest(); ok {
		frame = f.Number
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"frame":   frame,
		"clients": len(s.hub.Clients()),
		"uptime":  time.Since(startTime).String(),
	})
}

func (s *Server) scene(c *gin.Context) {
	f, ok := s.frames.Latest()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no frame rendered yet"})
		return
	}
	c.JSON(http.StatusOK, toSceneJSON(f))
}

func toSceneJSON(f render.Frame) sceneJSON {
	out := sceneJSON{
		Frame: f.Number,
		Camera: cameraJSON{
			Position: f.Camera.Translation,
			Forward:  f.Camera.Forward(),
		},
		Bodies: make([]bodyJSON, 0, len(f.Bodies)),
	}

	for _, b := range f.Bodies {
		q := b.Transform.Rotation
		out.Bodies = append(out.Bodies, bodyJSON{
			Entity:      b.Entity,
			Shape:       b.Shape.String(),
			Kind:        b.Kind.String(),
			Asleep:      b.Asleep,
			Position:    b.Transform.Translation,
			Rotation:    [4]float64{q.W, q.V[0], q.V[1], q.V[2]},
			HalfExtents: b.HalfExtents,
			Radius:      b.Radius,
		})
	}
	return out
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// ListenAndServeHTTP3 serves the same routes over HTTP/3 on the UDP address
// addr until ctx is done.
func (s *Server) ListenAndServeHTTP3(ctx context.Context, addr string, tlsConf *tls.Config) error {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	return s.ServeHTTP3(ctx, conn, tlsConf)
}

// ServeHTTP3 serves HTTP/3 on conn until ctx is done. The ALPN of tlsConf is
// replaced with h3. conn is not closed.
func (s *Server) ServeHTTP3(ctx context.Context, conn net.PacketConn, tlsConf *tls.Config) error {
	var (
		serve    func(net.PacketConn) error
		shutdown func(context.Context) error
	)
	if s.wt != nil {
		srv := s.wt.bind(s.h3Handler(), tlsConf)
		serve = srv.Serve
		shutdown = func(context.Context) error { return srv.Close() }
	} else {
		srv := &http3.Server{
			Handler:   s.router,
			TLSConfig: tlsConf,
		}
		serve = srv.Serve
		shutdown = srv.Shutdown
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http3 listening", "addr", conn.LocalAddr().String(), "webtransport", s.wt != nil)
		errCh <- serve(conn)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdown(shutdownCtx)
	}
}
