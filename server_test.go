package tpool

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const (
	helloBody    = "<h1>Hello!</h1>"
	notFoundBody = "<h1>Oops!</h1>"
)

func setupTestServer(t *testing.T, mutate func(*ServerConfig)) (*Server, *Client) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.html"), []byte(helloBody), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "404.html"), []byte(notFoundBody), 0o644))

	cfg := ServerConfig{
		Addr:        "localhost:0",
		Root:        root,
		PoolSize:    4,
		SleepDelay:  100 * time.Millisecond,
		ReadTimeout: time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	server, err := NewServerWithConfig(cfg)
	require.NoError(t, err)
	require.NoError(t, server.Listen())

	cc := DefaultClientConfig()
	cc.Addr = server.Addr().String()
	return server, NewClientWithConfig(cc)
}

func TestServerRoutes(t *testing.T) {
	server, client := setupTestServer(t, nil)
	go server.Serve()
	defer server.Stop()

	resp, err := client.Get("/")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.StatusLine)
	assert.Equal(t, helloBody, string(resp.Body))

	resp, err = client.Get("/missing")
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, resp.StatusLine)
	assert.Equal(t, notFoundBody, string(resp.Body))

	start := time.Now()
	resp, err = client.Get("/sleep")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.StatusLine)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestServerSleepRequestsRunInParallel(t *testing.T) {
	server, client := setupTestServer(t, func(cfg *ServerConfig) {
		cfg.SleepDelay = 300 * time.Millisecond
	})
	go server.Serve()
	defer server.Stop()

	start := time.Now()
	var g errgroup.Group
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			_, err := client.Get("/sleep")
			return err
		})
	}
	require.NoError(t, g.Wait())

	// four sleepers on four workers overlap instead of queueing up
	assert.Less(t, time.Since(start), 4*300*time.Millisecond)
}

func TestServerMissingBodyAnswers500(t *testing.T) {
	server, client := setupTestServer(t, nil)
	router := NewRouter()
	router.Register("GET / HTTP/1.1", Route{Status: StatusOK, File: "gone.html"})
	server.SetRouter(router)

	var errs atomic.Int32
	server.On(ServerEventError, func(EventPayload) error {
		errs.Add(1)
		return nil
	})
	go server.Serve()
	defer server.Stop()

	resp, err := client.Get("/")
	require.NoError(t, err)
	assert.Equal(t, StatusInternalServerError, resp.StatusLine)
	assert.Empty(t, resp.Body)
	waitFor(t, func() bool { return errs.Load() >= 1 }, "load failure was not published")
}

func TestServerMaxConnsThenDrain(t *testing.T) {
	server, client := setupTestServer(t, func(cfg *ServerConfig) {
		cfg.MaxConns = 2
	})

	served := make(chan struct{})
	var once sync.Once
	var count atomic.Int32
	server.On(ServerEventRequestServed, func(p EventPayload) error {
		if count.Add(1) == 2 {
			once.Do(func() { close(served) })
		}
		return nil
	})

	serveDone := make(chan error, 1)
	go func() { serveDone <- server.Serve() }()

	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			_, err := client.Get("/sleep")
			return err
		})
	}

	select {
	case err := <-serveDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after MaxConns connections")
	}

	require.NoError(t, server.Stop())
	require.NoError(t, g.Wait())
	<-served

	st := server.Pool().Stats()
	assert.Equal(t, uint64(2), st.Completed)
	assert.True(t, server.Pool().Closed())
}

func TestServerStopIsIdempotent(t *testing.T) {
	server, client := setupTestServer(t, nil)

	var stopped atomic.Int32
	server.On(ServerEventStopped, func(EventPayload) error {
		stopped.Add(1)
		return nil
	})
	serveDone := make(chan error, 1)
	go func() { serveDone <- server.Serve() }()

	_, err := client.Get("/")
	require.NoError(t, err)

	require.NoError(t, server.Stop())
	require.NoError(t, server.Stop())
	assert.NoError(t, <-serveDone)
	assert.Equal(t, int32(1), stopped.Load())

	_, err = client.Get("/")
	assert.Error(t, err)
}

func TestServerStopReleasesEventBus(t *testing.T) {
	server, client := setupTestServer(t, nil)
	go server.Serve()

	_, err := client.Get("/")
	require.NoError(t, err)
	require.NoError(t, server.Stop())

	// with the async pool released, late publishes run on the caller
	var late atomic.Int32
	server.On(ServerEventRequestServed, func(EventPayload) error {
		late.Add(1)
		return nil
	})
	server.eventBus.PublishAsync(ServerEventRequestServed, &ServerEventRequestServedPayload{})
	assert.Equal(t, int32(1), late.Load())
}

func TestServerStartRacingStop(t *testing.T) {
	for i := 0; i < 20; i++ {
		server, err := NewServerWithConfig(ServerConfig{Addr: "localhost:0", PoolSize: 1})
		require.NoError(t, err)

		startDone := make(chan error, 1)
		go func() { startDone <- server.Start() }()
		require.NoError(t, server.Stop())

		select {
		case err := <-startDone:
			if err != nil {
				assert.ErrorIs(t, err, ErrServerStopped)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Start kept serving after Stop")
		}
	}
}

func TestListenAfterStop(t *testing.T) {
	server, err := NewServerWithConfig(ServerConfig{Addr: "localhost:0", PoolSize: 1})
	require.NoError(t, err)
	require.NoError(t, server.Stop())

	assert.ErrorIs(t, server.Listen(), ErrServerStopped)
	assert.Nil(t, server.Addr())
}

func TestServeBeforeListen(t *testing.T) {
	server, err := NewServerWithConfig(ServerConfig{PoolSize: 1})
	require.NoError(t, err)
	defer server.Stop()

	assert.Nil(t, server.Addr())
	assert.Error(t, server.Serve())
}

func TestNewServerRejectsZeroPool(t *testing.T) {
	_, err := NewServerWithConfig(ServerConfig{})
	assert.ErrorIs(t, err, ErrInvalidPoolSize)
}

func TestServerStatsSchedule(t *testing.T) {
	server, client := setupTestServer(t, func(cfg *ServerConfig) {
		cfg.StatsInterval = 10 * time.Millisecond
	})
	go server.Serve()
	defer server.Stop()

	_, err := client.Get("/")
	require.NoError(t, err)

	// the stats job itself runs on the pool
	waitFor(t, func() bool { return server.Pool().Stats().Completed >= 3 }, "stats job never ran")
}
