package tpool

import (
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Server accepts connections and hands each one to the pool as a job. The
// job reads one request line, picks a canned route and writes the body.
type Server struct {
	config    ServerConfig
	mu        sync.Mutex // guards ln against Stop
	ln        net.Listener
	nextID    atomic.Uint64
	router    *Router
	pool      *Pool
	scheduler *Scheduler
	eventBus  *EventBus
	log       *Log
	shutdownC chan struct{}
	stopOnce  sync.Once
}

func NewServerWithConfig(config ServerConfig, opts ...Option) (*Server, error) {
	log := NewLog(config.Log)
	eventBus := NewEventBus()
	pool, err := NewPool(config.PoolSize, append([]Option{WithLog(log), WithEventBus(eventBus)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Server{
		config:    config,
		router:    DefaultRouter(config.SleepDelay),
		pool:      pool,
		scheduler: NewScheduler(pool),
		eventBus:  eventBus,
		log:       log,
		shutdownC: make(chan struct{}),
	}, nil
}

func (s *Server) SetRouter(r *Router) {
	s.router = r
}

func (s *Server) Pool() *Pool {
	return s.pool
}

func (s *Server) On(eventName int, handler func(payload EventPayload) error) {
	s.eventBus.Subscribe(eventName, handler)
}

// Every runs handler on the pool every interval until the server stops.
func (s *Server) Every(interval time.Duration, handler func()) {
	s.scheduler.Every(interval, handler)
}

// Listen binds the configured address. Addr is valid afterwards.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", s.config.Addr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.shutdownC:
		ln.Close()
		return ErrServerStopped
	default:
	}
	s.ln = ln
	return nil
}

func (s *Server) listener() net.Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ln
}

func (s *Server) Addr() net.Addr {
	ln := s.listener()
	if ln == nil {
		return nil
	}
	return ln.Addr()
}

func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Serve accepts connections until Stop is called or MaxConns connections
// have been accepted. It does not wait for the queued jobs; Stop does.
func (s *Server) Serve() error {
	ln := s.listener()
	if ln == nil {
		return errors.New("serve called before listen")
	}
	s.log.App("server started", zap.String("addr", ln.Addr().String()), zap.Int("pool", s.pool.Size()))
	s.eventBus.Publish(ServerEventStarted, &ServerEventStartedPayload{
		Addr: ln.Addr().String(),
		Time: time.Now(),
	})

	if s.config.StatsInterval > 0 {
		s.Every(s.config.StatsInterval, s.logStats)
	}
	s.scheduler.Start(0)

	for s.config.MaxConns <= 0 || s.nextID.Load() < uint64(s.config.MaxConns) {
		sock, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdownC:
				return nil
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.publishError(err, nil)
				continue
			}
			return errors.Wrap(err, "accept")
		}

		c := NewConn(s.nextID.Add(1), sock)
		if err := s.pool.Submit(JobFunc(func() { s.handleConn(c) })); err != nil {
			s.publishError(err, map[string]any{"conn": c.ID})
			c.Close()
		}
	}
	return nil
}

func (s *Server) handleConn(c *Conn) {
	defer c.Close()
	start := time.Now()

	line, err := c.ReadRequestLine(s.config.ReadTimeout)
	if err != nil {
		s.publishError(errors.Wrapf(err, "read request line from %s", c), nil)
		return
	}

	route := s.router.Match(line)
	if route.Delay > 0 {
		time.Sleep(route.Delay)
	}

	resp := &Response{StatusLine: route.Status}
	body, err := os.ReadFile(filepath.Join(s.config.Root, route.File))
	if err != nil {
		s.publishError(errors.Wrapf(err, "load %s", route.File), map[string]any{"conn": c.ID})
		resp = &Response{StatusLine: StatusInternalServerError}
	} else {
		resp.Body = body
	}

	if err := c.WriteResponse(resp); err != nil {
		s.publishError(errors.Wrapf(err, "write response to %s", c), nil)
		return
	}

	elapsed := time.Since(start)
	s.log.Access("request served",
		zap.Uint64("conn", c.ID),
		zap.String("remote", c.RemoteAddr()),
		zap.String("request", line),
		zap.String("status", resp.StatusLine),
		zap.Int("bytes", len(resp.Body)),
		zap.Duration("elapsed", elapsed),
	)
	s.eventBus.PublishAsync(ServerEventRequestServed, &ServerEventRequestServedPayload{
		ConnID:      c.ID,
		RemoteAddr:  c.RemoteAddr(),
		RequestLine: line,
		Status:      resp.StatusLine,
		Elapsed:     elapsed,
	})
}

func (s *Server) logStats() {
	st := s.pool.Stats()
	s.log.App("pool stats",
		zap.Int("size", st.Size),
		zap.Int("running", st.Running),
		zap.Int("pending", st.Pending),
		zap.Uint64("submitted", st.Submitted),
		zap.Uint64("completed", st.Completed),
		zap.Uint64("panicked", st.Panicked),
		zap.Uint64("exited", st.Exited),
	)
}

func (s *Server) publishError(err error, data map[string]any) {
	s.log.Error(err, "server error")
	s.eventBus.Publish(ServerEventError, &ServerEventErrorPayload{
		Err:  err,
		Data: data,
	})
}

// Stop closes the listener, waits for every accepted connection to be
// answered and flushes the logs. It is safe to call more than once.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		close(s.shutdownC)
		ln := s.ln
		s.mu.Unlock()

		if ln != nil {
			if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
				err = multierr.Append(err, cerr)
			}
		}
		s.scheduler.Stop()
		s.pool.Shutdown()

		s.log.App("server stopped", zap.Uint64("accepted", s.nextID.Load()))
		s.eventBus.Publish(ServerEventStopped, &ServerEventStoppedPayload{
			Accepted: s.nextID.Load(),
			Time:     time.Now(),
		})
		s.eventBus.Release()
		err = multierr.Append(err, s.log.Sync())
	})
	return err
}
