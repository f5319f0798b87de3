package helpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"
)

// MockPlayersAPI serves a players document and lets tests change it between refreshes
type MockPlayersAPI struct {
	mu       sync.Mutex
	players  []Player
	status   int
	delay    time.Duration
	requests atomic.Int64

	server *httptest.Server
}

// NewMockPlayersAPI creates and starts a mock players endpoint at /players
func NewMockPlayersAPI(players []Player) *MockPlayersAPI {
	m := &MockPlayersAPI{players: players, status: http.StatusOK}
	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// URL returns the players endpoint
func (m *MockPlayersAPI) URL() string {
	return m.server.URL + "/players"
}

// Close stops the server
func (m *MockPlayersAPI) Close() {
	m.server.CloseClientConnections()
	m.server.Close()
}

// Requests returns how many times the endpoint was fetched
func (m *MockPlayersAPI) Requests() int64 {
	return m.requests.Load()
}

// SetPlayers replaces the served players
func (m *MockPlayersAPI) SetPlayers(players []Player) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players = players
	m.status = http.StatusOK
}

// FailWith makes the endpoint answer with status until SetPlayers is called
func (m *MockPlayersAPI) FailWith(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
}

// SetDelay delays every response by d
func (m *MockPlayersAPI) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

func (m *MockPlayersAPI) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/players" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	m.requests.Add(1)

	m.mu.Lock()
	players, status, delay := m.players, m.status, m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(PlayersDocument{Players: players})
}
