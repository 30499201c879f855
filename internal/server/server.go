package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"approvewatch/internal/monitor"
)

// Loop is satisfied by *monitor.Monitor.
type Loop interface {
	Health() monitor.Health
}

// TriggerState is satisfied by *trigger.Machine.
type TriggerState interface {
	Snapshot() map[string]bool
}

type Config struct {
	Addr string
	// MaxStale is how long a started loop may go without a successful tick.
	MaxStale time.Duration
	// FailThreshold is the number of consecutive failed ticks that makes a
	// loop unhealthy.
	FailThreshold int
}

type Server struct {
	cfg     Config
	loops   []Loop
	trigger TriggerState
	hub     *Hub
	engine  *gin.Engine
}

func New(cfg Config, loops []Loop, trig TriggerState, hub *Hub) *Server {
	if cfg.FailThreshold <= 0 {
		cfg.FailThreshold = 5
	}
	if hub == nil {
		hub = NewHub()
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{cfg: cfg, loops: loops, trigger: trig, hub: hub}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", s.healthz)
	r.GET("/state", s.state)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", gin.WrapF(hub.Handler()))
	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) healthz(c *gin.Context) {
	now := time.Now()
	healthy := true
	loops := make([]monitor.Health, 0, len(s.loops))
	for _, l := range s.loops {
		h := l.Health()
		if !h.Healthy(now, s.cfg.MaxStale, s.cfg.FailThreshold) {
			healthy = false
		}
		loops = append(loops, h)
	}

	status := http.StatusOK
	label := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		label = "unhealthy"
	}
	c.JSON(status, gin.H{"status": label, "loops": loops})
}

func (s *Server) state(c *gin.Context) {
	cursors := make(map[string]uint64, len(s.loops))
	for _, l := range s.loops {
		h := l.Health()
		cursors[h.Name] = h.Cursor
	}
	var armed map[string]bool
	if s.trigger != nil {
		armed = s.trigger.Snapshot()
	}
	c.JSON(http.StatusOK, gin.H{"cursors": cursors, "armed": armed})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[info] http listening on %s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
