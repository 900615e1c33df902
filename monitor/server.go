// Package monitor serves the progress of a training run over http.
package monitor

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/zeu5/dqn-cartpole/types"
)

// EpisodeRecord is what the server keeps of every analyzed episode
type EpisodeRecord struct {
	Run         string  `json:"run"`
	Episode     int     `json:"episode"`
	Steps       int     `json:"steps"`
	TotalReward float64 `json:"total_reward"`
	Mean        float64 `json:"mean"`
	Solved      bool    `json:"solved"`
}

// Status is the body of GET /status
type Status struct {
	Run        string    `json:"run"`
	Episodes   int       `json:"episodes"`
	Episode    int       `json:"episode"`
	Mean       float64   `json:"mean"`
	Solved     bool      `json:"solved"`
	LastReward float64   `json:"last_reward"`
	StartedAt  time.Time `json:"started_at"`
}

// Server records the episodes it analyzes and serves them. Episodes are
// analyzed on the training goroutine while handlers run on the server's.
type Server struct {
	Addr   string
	server *http.Server
	logger logrus.FieldLogger

	done     chan struct{}
	stopOnce *sync.Once

	lock      *sync.Mutex
	startedAt time.Time
	run       string
	episodes  []EpisodeRecord
}

var _ types.Analyzer = &Server{}

func NewServer(addr string, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		Addr:      addr,
		logger:    logger.WithField("component", "monitor"),
		done:      make(chan struct{}),
		stopOnce:  new(sync.Once),
		lock:      new(sync.Mutex),
		startedAt: time.Now(),
		episodes:  make([]EpisodeRecord, 0),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.GET("/status", s.handleStatus)
	r.GET("/history", s.handleHistory)
	r.GET("/episodes/:n", s.handleEpisode)
	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Handler exposes the routes without listening
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start listens in the background until ctx is done or Stop is called
func (s *Server) Start(ctx context.Context) {
	go func() {
		s.logger.WithField("addr", s.Addr).Info("status server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("status server failed")
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.done:
		}
	}()
}

// Stop shuts the server down, later calls are no-ops
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.WithError(err).Warn("status server shutdown")
		}
	})
}

// Done is closed once the server is stopped
func (s *Server) Done() <-chan struct{} {
	return s.done
}

func (s *Server) Analyze(run string, result *types.EpisodeResult, mean float64, solved bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.run = run
	s.episodes = append(s.episodes, EpisodeRecord{
		Run:         run,
		Episode:     result.Episode,
		Steps:       result.Steps,
		TotalReward: result.TotalReward,
		Mean:        mean,
		Solved:      solved,
	})
}

func (s *Server) DataSet() types.DataSet {
	s.lock.Lock()
	defer s.lock.Unlock()
	out := make([]EpisodeRecord, len(s.episodes))
	copy(out, s.episodes)
	return out
}

func (s *Server) Reset() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.run = ""
	s.startedAt = time.Now()
	s.episodes = make([]EpisodeRecord, 0)
}

func (s *Server) status() Status {
	s.lock.Lock()
	defer s.lock.Unlock()
	status := Status{
		Run:       s.run,
		Episodes:  len(s.episodes),
		Episode:   -1,
		StartedAt: s.startedAt,
	}
	if len(s.episodes) > 0 {
		last := s.episodes[len(s.episodes)-1]
		status.Episode = last.Episode
		status.Mean = last.Mean
		status.Solved = last.Solved
		status.LastReward = last.TotalReward
	}
	return status
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status())
}

func (s *Server) handleHistory(c *gin.Context) {
	c.JSON(http.StatusOK, s.DataSet())
}

func (s *Server) handleEpisode(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "episode must be a number"})
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, e := range s.episodes {
		if e.Episode == n {
			c.JSON(http.StatusOK, e)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "episode not found"})
}
