package helpers

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/onsi/gomega"

	ratingapp "github.com/panorama-game/rating-server/internal/app"
	"github.com/panorama-game/rating-server/internal/config"
	"github.com/panorama-game/rating-server/internal/leaderboard"
	"github.com/panorama-game/rating-server/internal/status"
)

// ServerTestHelper manages the rating server lifecycle for testing
type ServerTestHelper struct {
	ctx        context.Context
	configPath string
	baseURL    string
	address    string
	httpClient *http.Client
	app        *ratingapp.RatingApp
	dataDir    string
}

// NewServerTestHelper creates a helper bound to a free local port
func NewServerTestHelper(ctx context.Context, configPath string, dataDir string) (*ServerTestHelper, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to reserve port: %w", err)
	}
	address := listener.Addr().String()
	if err := listener.Close(); err != nil {
		return nil, fmt.Errorf("failed to release port: %w", err)
	}

	return &ServerTestHelper{
		ctx:        ctx,
		configPath: configPath,
		address:    address,
		baseURL:    "http://" + address,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		dataDir: dataDir,
	}, nil
}

// StartServer starts the rating server programmatically
func (s *ServerTestHelper) StartServer() error {
	cfg, err := config.LoadConfig(config.WithConfigPath(s.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app, err := ratingapp.NewRatingApp(s.ctx,
		ratingapp.WithConfig(cfg),
		ratingapp.WithAddress(s.address),
		ratingapp.WithDataDirectory(s.dataDir),
	)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}

	s.app = app

	// Start the server in a goroutine (non-blocking)
	go func() {
		if err := app.Start(); err != nil {
			// The test fails when it tries to connect
			fmt.Fprintf(os.Stderr, "Server start failed: %v\n", err)
		}
	}()

	return nil
}

// StopServer gracefully stops the rating server
func (s *ServerTestHelper) StopServer() error {
	if s.app != nil {
		return s.app.Stop(5 * time.Second)
	}
	return nil
}

// WaitForServerReady waits for the server to accept requests
func (s *ServerTestHelper) WaitForServerReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := s.httpClient.Get(s.baseURL + "/health")
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return nil
	}, timeout, 50*time.Millisecond).Should(gomega.Succeed(), "Server should be ready")
}

// WaitForTotal waits until the published leaderboard holds total entries
func (s *ServerTestHelper) WaitForTotal(total int, timeout time.Duration) {
	gomega.Eventually(func() (int, error) {
		var count struct {
			Total int `json:"total"`
		}
		if err := s.getJSON("/v1/leaderboard/count", &count); err != nil {
			return 0, err
		}
		return count.Total, nil
	}, timeout, 50*time.Millisecond).Should(gomega.Equal(total))
}

// WaitForRefreshOutcome waits until the refresh status reports outcome
func (s *ServerTestHelper) WaitForRefreshOutcome(outcome status.RefreshOutcome, timeout time.Duration) status.RefreshStatus {
	var st status.RefreshStatus
	gomega.Eventually(func() (status.RefreshOutcome, error) {
		if err := s.getJSON("/v1/refresh/status", &st); err != nil {
			return "", err
		}
		return st.Outcome, nil
	}, timeout, 50*time.Millisecond).Should(gomega.Equal(outcome))
	return st
}

// GetHealth makes a GET request to /health
func (s *ServerTestHelper) GetHealth() (*http.Response, error) {
	return s.httpClient.Get(s.baseURL + "/health")
}

// GetReadiness makes a GET request to /readiness
func (s *ServerTestHelper) GetReadiness() (*http.Response, error) {
	return s.httpClient.Get(s.baseURL + "/readiness")
}

// GetPage fetches one leaderboard page
func (s *ServerTestHelper) GetPage(page, pageSize int) (*leaderboard.PageResult, error) {
	var result leaderboard.PageResult
	path := fmt.Sprintf("/v1/leaderboard?page=%d&pageSize=%d", page, pageSize)
	if err := s.getJSON(path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Search runs a leaderboard search with the given query parameters
func (s *ServerTestHelper) Search(params url.Values) (*leaderboard.SearchResult, error) {
	var result leaderboard.SearchResult
	if err := s.getJSON("/v1/leaderboard/search?"+params.Encode(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetInfo fetches the published snapshot metadata
func (s *ServerTestHelper) GetInfo() (*leaderboard.Info, error) {
	var info leaderboard.Info
	if err := s.getJSON("/v1/leaderboard/info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Get makes a GET request to path
func (s *ServerTestHelper) Get(path string) (*http.Response, error) {
	return s.httpClient.Get(s.baseURL + path)
}

// DialStream opens the leaderboard websocket stream
func (s *ServerTestHelper) DialStream(pageSize int) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(s.baseURL, "http") + fmt.Sprintf("/v1/leaderboard/ws?pageSize=%d", pageSize)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// GetBaseURL returns the base URL of the server
func (s *ServerTestHelper) GetBaseURL() string {
	return s.baseURL
}

func (s *ServerTestHelper) getJSON(path string, out any) error {
	resp, err := s.httpClient.Get(s.baseURL + path)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
