package control

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"serialscope/pkg/ingest"
	"serialscope/pkg/metrics"
	"serialscope/pkg/protocol"
	"serialscope/pkg/scope"
)

// Server exposes pause, window and channel controls over HTTP.
type Server struct {
	addr    string
	buf     *scope.Buffer
	win     *scope.Window
	session *ingest.Session
	logger  zerolog.Logger
	started time.Time
	router  *gin.Engine
}

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithSession lets /reset and /status reach the parser.
func WithSession(session *ingest.Session) Option {
	return func(s *Server) {
		s.session = session
	}
}

type windowRequest struct {
	Length    *float64 `json:"length"`
	ShiftStep *float64 `json:"shift_step"`
	Rolling   *bool    `json:"rolling"`
	Pan       *struct {
		Lower float64 `json:"lower"`
		Upper float64 `json:"upper"`
	} `json:"pan"`
}

type visibilityRequest struct {
	Visible bool `json:"visible"`
}

type levelRequest struct {
	Level string `json:"level" binding:"required"`
}

func NewServer(addr string, buf *scope.Buffer, win *scope.Window, opts ...Option) *Server {
	s := &Server{
		addr:    addr,
		buf:     buf,
		win:     win,
		logger:  zerolog.Nop(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))
	s.routes(r)
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	s.logger.Info().Str("addr", s.addr).Msg("control api listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(s.started).String(),
		})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/status", s.status)

	r.POST("/pause", func(c *gin.Context) {
		s.buf.Pause()
		metrics.SetPaused(true)
		c.JSON(http.StatusOK, gin.H{"paused": true})
	})
	r.POST("/resume", func(c *gin.Context) {
		s.buf.Resume()
		metrics.SetPaused(false)
		c.JSON(http.StatusOK, gin.H{"paused": false})
	})
	r.POST("/reset", func(c *gin.Context) {
		if s.session != nil {
			s.session.ClearBuffer()
		}
		s.buf.Reset()
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.PUT("/parser/level", s.setLevel)
	r.POST("/parser/ready", func(c *gin.Context) {
		if s.session == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no parser session"})
			return
		}
		s.session.GetReady()
		c.JSON(http.StatusOK, gin.H{"mode": s.session.Mode().String()})
	})

	r.GET("/window", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.win.State())
	})
	r.PUT("/window", s.updateWindow)

	r.GET("/channels/:ch", s.channel)
	r.POST("/channels/:ch/clear", s.clearChannel)
	r.PUT("/channels/:ch/visible", s.setVisible)
	r.POST("/logic/:group/clear", s.clearLogicGroup)
}

func (s *Server) status(c *gin.Context) {
	body := gin.H{
		"paused": s.buf.Paused(),
		"window": s.win.State(),
	}
	if s.session != nil {
		stats := s.session.Stats()
		body["parser"] = gin.H{
			"mode":               s.session.Mode().String(),
			"bytes":              stats.Bytes,
			"records":            stats.Records,
			"markers":            stats.Markers,
			"not_properly_ended": stats.NotProperlyEnded,
			"invalid":            stats.Invalid,
			"fatal":              stats.Fatal,
		}
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) setLevel(c *gin.Context) {
	if s.session == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no parser session"})
		return
	}
	var req levelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	level, ok := protocol.ParseOutputLevel(req.Level)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown level " + strconv.Quote(req.Level)})
		return
	}
	s.session.SetOutputLevel(level)
	c.JSON(http.StatusOK, gin.H{"level": req.Level})
}

func (s *Server) updateWindow(c *gin.Context) {
	var req windowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Length != nil && *req.Length <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "length must be positive"})
		return
	}
	if req.ShiftStep != nil && (*req.ShiftStep < 0 || *req.ShiftStep > 100) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "shift_step must be within 0..100"})
		return
	}
	if req.Pan != nil && req.Pan.Upper <= req.Pan.Lower {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pan upper must exceed lower"})
		return
	}

	if req.Rolling != nil {
		s.win.SetRolling(*req.Rolling)
	}
	if req.ShiftStep != nil {
		s.win.SetShiftStep(*req.ShiftStep)
	}
	if req.Length != nil {
		s.win.SetLength(*req.Length)
	}
	if req.Pan != nil {
		s.win.Pan(req.Pan.Lower, req.Pan.Upper)
	}
	c.JSON(http.StatusOK, s.win.State())
}

func (s *Server) channel(c *gin.Context) {
	ch, ok := channelParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, scope.ChannelFrame{
		Channel: ch,
		Name:    scope.ChannelName(ch),
		Samples: s.buf.Series(ch),
	})
}

func (s *Server) clearChannel(c *gin.Context) {
	ch, ok := channelParam(c)
	if !ok {
		return
	}
	if err := s.buf.ClearChannel(ch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "channel": ch})
}

func (s *Server) setVisible(c *gin.Context) {
	ch, ok := channelParam(c)
	if !ok {
		return
	}
	var req visibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.buf.SetVisible(ch, req.Visible); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": ch, "visible": req.Visible})
}

// clearLogicGroup clears a logic group, optionally from a bit upwards. Group
// and bit are 1-based like the channel names.
func (s *Server) clearLogicGroup(c *gin.Context) {
	group, err := strconv.Atoi(c.Param("group"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group " + strconv.Quote(c.Param("group"))})
		return
	}
	from, err := strconv.Atoi(c.DefaultQuery("from", "1"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bit " + strconv.Quote(c.Query("from"))})
		return
	}
	if err := s.buf.ClearLogicGroup(group-1, from-1); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "group": group, "from": from})
}

// channelParam reads a channel id or name from the path.
func channelParam(c *gin.Context) (int, bool) {
	ch, err := scope.ParseChannel(c.Param("ch"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return 0, false
	}
	return ch, true
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		event := logger.Debug()
		if status >= 500 {
			event = logger.Error()
		} else if status >= 400 {
			event = logger.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("http_request")
	}
}
