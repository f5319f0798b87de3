package app

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/panorama-game/rating-server/internal/cache"
	"github.com/panorama-game/rating-server/internal/config"
	"github.com/panorama-game/rating-server/internal/leaderboard"
	"github.com/panorama-game/rating-server/internal/leaderboard/inmemory"
	"github.com/panorama-game/rating-server/internal/ranking"
	"github.com/panorama-game/rating-server/internal/refresh"
	sourcemocks "github.com/panorama-game/rating-server/internal/sources/mocks"
	"github.com/panorama-game/rating-server/internal/status"
	statusmocks "github.com/panorama-game/rating-server/internal/status/mocks"
)

// fakeScheduler implements refresh.Scheduler for lifecycle tests
type fakeScheduler struct {
	mu          sync.Mutex
	startCalled bool
	stopCalled  bool
	startErr    error
	stopErr     error
	stop        chan struct{}
	stopOnce    sync.Once
}

var _ refresh.Scheduler = (*fakeScheduler)(nil)

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{stop: make(chan struct{})}
}

func (f *fakeScheduler) Start(ctx context.Context) error {
	f.mu.Lock()
	f.startCalled = true
	err := f.startErr
	f.mu.Unlock()

	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-f.stop:
	}
	return nil
}

func (f *fakeScheduler) Stop() error {
	f.mu.Lock()
	f.stopCalled = true
	err := f.stopErr
	f.mu.Unlock()
	f.stopOnce.Do(func() { close(f.stop) })
	return err
}

func (*fakeScheduler) RefreshNow(context.Context) error {
	return nil
}

func (*fakeScheduler) Status() status.RefreshStatus {
	return status.RefreshStatus{Phase: status.RefreshPhaseIdle}
}

func (f *fakeScheduler) wasStartCalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalled
}

func (f *fakeScheduler) wasStopCalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalled
}

// createTestApp creates a RatingApp around a fake scheduler.
// It constructs the app directly so no source is needed.
func createTestApp(t *testing.T, addr string) *RatingApp {
	t.Helper()

	cfg := createTestAppConfig()
	snapshots := cache.New()
	board, err := inmemory.New(snapshots)
	require.NoError(t, err)
	sched := newFakeScheduler()

	appCfg := &ratingAppConfig{
		config:         cfg,
		address:        addr,
		requestTimeout: 10 * time.Second,
		readTimeout:    10 * time.Second,
		idleTimeout:    60 * time.Second,
	}

	server, err := buildHTTPServer(appCfg, board, sched)
	require.NoError(t, err)

	appCtx, cancel := context.WithCancel(context.Background())

	return &RatingApp{
		config: cfg,
		components: &AppComponents{
			Snapshots:   snapshots,
			Scheduler:   sched,
			Leaderboard: board,
		},
		httpServer: server,
		ctx:        appCtx,
		cancelFunc: cancel,
	}
}

// createTestAppConfig creates a minimal valid config for testing
func createTestAppConfig() *config.Config {
	return &config.Config{
		ServerName: "test-rating-server",
		Source: config.SourceConfig{
			File: &config.FileSourceConfig{Path: "/tmp/players.yaml"},
		},
		Refresh: &config.RefreshConfig{Interval: "30m"},
	}
}

// freeAddr returns a local address that was free a moment ago
func freeAddr(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	return addr
}

func startApp(t *testing.T, app *RatingApp) <-chan error {
	t.Helper()
	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Start()
	}()
	return errChan
}

func waitForStart(t *testing.T, errChan <-chan error) error {
	t.Helper()
	select {
	case err := <-errChan:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return")
		return nil
	}
}

func TestRatingApp_Start(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		addr string
	}{
		{name: "successful start with ephemeral port", addr: ":0"},
		{name: "successful start on localhost", addr: "127.0.0.1:0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app := createTestApp(t, tt.addr)
			errChan := startApp(t, app)

			sched := app.components.Scheduler.(*fakeScheduler)
			require.Eventually(t, sched.wasStartCalled, 5*time.Second, 10*time.Millisecond,
				"refresh scheduler should be started")

			require.NoError(t, app.Stop(5*time.Second))
			require.NoError(t, waitForStart(t, errChan))
		})
	}
}

func TestRatingApp_ServesLeaderboard(t *testing.T) {
	t.Parallel()

	addr := freeAddr(t)
	app := createTestApp(t, addr)

	snap, err := ranking.Build([]ranking.Record{
		ranking.NewRecord("A", 1500, 10, "loginA", 1),
		ranking.NewRecord("B", 1400, 5, "loginB", 2),
	})
	require.NoError(t, err)
	app.components.Snapshots.Publish(snap)

	errChan := startApp(t, app)

	var resp *http.Response
	require.Eventually(t, func() bool {
		r, err := http.Get("http://" + addr + "/v1/leaderboard?pageSize=1")
		if err != nil {
			return false
		}
		resp = r
		return true
	}, 5*time.Second, 20*time.Millisecond)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page leaderboard.PageResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "A", page.Entries[0].Nickname)
	assert.Equal(t, 2, page.TotalCount)
	assert.Equal(t, 2, page.PageCount)

	statusResp, err := http.Get("http://" + addr + "/v1/refresh/status")
	require.NoError(t, err)
	defer statusResp.Body.Close()
	assert.Equal(t, http.StatusOK, statusResp.StatusCode)

	require.NoError(t, app.Stop(5*time.Second))
	require.NoError(t, waitForStart(t, errChan))
}

func TestRatingApp_StopClosesStreams(t *testing.T) {
	t.Parallel()

	addr := freeAddr(t)
	app := createTestApp(t, addr)

	snap, err := ranking.Build([]ranking.Record{ranking.NewRecord("A", 1500, 10, "loginA", 1)})
	require.NoError(t, err)
	app.components.Snapshots.Publish(snap)

	errChan := startApp(t, app)

	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		c, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/v1/leaderboard/ws", nil)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		conn = c
		return true
	}, 5*time.Second, 20*time.Millisecond)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var page leaderboard.PageResult
	require.NoError(t, conn.ReadJSON(&page))

	require.NoError(t, app.Stop(5*time.Second))
	require.NoError(t, waitForStart(t, errChan))

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
}

func TestRatingApp_Stop(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		timeout time.Duration
		start   bool
	}{
		{name: "graceful shutdown with normal timeout", timeout: 5 * time.Second, start: true},
		{name: "graceful shutdown with short timeout", timeout: 1 * time.Second, start: true},
		{name: "stop without starting first", timeout: 5 * time.Second, start: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app := createTestApp(t, ":0")
			sched := app.components.Scheduler.(*fakeScheduler)

			if tt.start {
				startApp(t, app)
				require.Eventually(t, sched.wasStartCalled, 5*time.Second, 10*time.Millisecond)
			}

			require.NoError(t, app.Stop(tt.timeout))
			assert.True(t, sched.wasStopCalled(), "refresh scheduler Stop should be called")
		})
	}
}

func TestRatingApp_StopSchedulerErrorIsLogged(t *testing.T) {
	t.Parallel()

	app := createTestApp(t, ":0")
	app.components.Scheduler.(*fakeScheduler).stopErr = errors.New("stuck")

	require.NoError(t, app.Stop(time.Second))
}

func TestRatingApp_StopIdempotent(t *testing.T) {
	t.Parallel()

	app := createTestApp(t, ":0")
	errChan := startApp(t, app)
	require.Eventually(t, app.components.Scheduler.(*fakeScheduler).wasStartCalled, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, app.Stop(5*time.Second))
	require.NoError(t, waitForStart(t, errChan))

	assert.NotPanics(t, func() {
		_ = app.Stop(5 * time.Second)
	})
}

func TestRatingApp_StopWithNilCancelFunc(t *testing.T) {
	t.Parallel()

	app := createTestApp(t, ":0")
	app.cancelFunc = nil

	require.NoError(t, app.Stop(5*time.Second))
}

func TestRatingApp_Getters(t *testing.T) {
	t.Parallel()

	app := createTestApp(t, ":8080")

	require.NotNil(t, app.GetConfig())
	assert.Equal(t, "test-rating-server", app.GetConfig().ServerName)

	require.NotNil(t, app.GetHTTPServer())
	assert.Equal(t, ":8080", app.GetHTTPServer().Addr)

	require.NotNil(t, app.GetComponents())
	assert.NotNil(t, app.GetComponents().Leaderboard)
}

func TestRatingApp_StartError_AddressInUse(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	app := createTestApp(t, listener.Addr().String())
	errChan := startApp(t, app)

	startErr := waitForStart(t, errChan)
	require.Error(t, startErr)
	assert.Contains(t, startErr.Error(), "HTTP server failed")
	assert.True(t, app.components.Scheduler.(*fakeScheduler).wasStartCalled())
}

func TestRatingApp_StartError_SchedulerFails(t *testing.T) {
	t.Parallel()

	app := createTestApp(t, freeAddr(t))
	app.components.Scheduler.(*fakeScheduler).startErr = refresh.ErrAlreadyStarted

	startErr := waitForStart(t, startApp(t, app))
	require.Error(t, startErr)
	assert.ErrorIs(t, startErr, refresh.ErrAlreadyStarted)
	assert.Contains(t, startErr.Error(), "refresh scheduler failed")
}

func TestNewRatingApp_EndToEnd(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	cfg := createTestAppConfig()

	source := sourcemocks.NewMockRankingSource(ctrl)
	source.EXPECT().Name().Return("file").AnyTimes()
	source.EXPECT().FetchAll(gomock.Any()).Return([]ranking.Record{
		ranking.NewRecord("A", 1500, 10, "loginA", 1),
		ranking.NewRecord("B", 1400, 5, "loginB", 2),
		ranking.NewRecord("C", 1400, 20, "loginC", 3),
	}, nil).MinTimes(1)

	factory := sourcemocks.NewMockFactory(ctrl)
	factory.EXPECT().Create(gomock.Any(), cfg).Return(source, nil)

	persistence := statusmocks.NewMockPersistence(ctrl)
	persistence.EXPECT().Load(gomock.Any()).Return(nil, nil).AnyTimes()
	persistence.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	addr := freeAddr(t)
	app, err := NewRatingApp(context.Background(),
		WithConfig(cfg),
		WithAddress(addr),
		WithSourceFactory(factory),
		WithStatusPersistence(persistence),
	)
	require.NoError(t, err)

	errChan := startApp(t, app)

	require.Eventually(t, func() bool {
		return app.components.Leaderboard.CheckReadiness(context.Background()) == nil
	}, 5*time.Second, 10*time.Millisecond, "first refresh should publish a snapshot")

	resp, err := http.Get("http://" + addr + "/v1/leaderboard/count")
	require.NoError(t, err)
	defer resp.Body.Close()
	var count map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&count))
	assert.Equal(t, 3, count["total"])

	require.NoError(t, app.Stop(5*time.Second))
	require.NoError(t, waitForStart(t, errChan))
}
