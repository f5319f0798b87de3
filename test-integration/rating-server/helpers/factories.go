package helpers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/onsi/gomega"
)

// Player is the wire shape of a player record served by test sources
type Player struct {
	Nickname      string `json:"nickname"`
	Rating        int64  `json:"rating"`
	MatchesNumber int64  `json:"matches_number"`
	Login         string `json:"login"`
	ID            int64  `json:"id"`
}

// PlayersDocument is the document served by the file and api sources
type PlayersDocument struct {
	Players []Player `json:"players"`
}

// CreateOriginalTestPlayers returns the three reference players.
// Ranked order is A, B, C: B and C tie on rating and B has the lower id.
func CreateOriginalTestPlayers() []Player {
	return []Player{
		{Nickname: "A", Rating: 1500, MatchesNumber: 10, Login: "loginA", ID: 1},
		{Nickname: "B", Rating: 1400, MatchesNumber: 5, Login: "loginB", ID: 2},
		{Nickname: "C", Rating: 1400, MatchesNumber: 20, Login: "loginC", ID: 3},
	}
}

// CreateUpdatedTestPlayers returns the reference players after D overtakes everyone
func CreateUpdatedTestPlayers() []Player {
	return append(CreateOriginalTestPlayers(),
		Player{Nickname: "D", Rating: 2000, MatchesNumber: 1, Login: "loginD", ID: 4},
	)
}

// CreateManyTestPlayers returns n players with strictly decreasing ratings
func CreateManyTestPlayers(n int) []Player {
	players := make([]Player, 0, n)
	for i := range n {
		players = append(players, Player{
			Nickname:      fmt.Sprintf("player-%03d", i),
			Rating:        int64(10_000 - i),
			MatchesNumber: int64(i % 50),
			Login:         fmt.Sprintf("login-%03d", i),
			ID:            int64(i + 1),
		})
	}
	return players
}

// WritePlayersFile writes players as a JSON players document to path
func WritePlayersFile(path string, players []Player) {
	data, err := json.MarshalIndent(PlayersDocument{Players: players}, "", "  ")
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	writeAtomically(path, data)
}

// WriteRawFile writes data to path as is
func WriteRawFile(path string, data string) {
	writeAtomically(path, []byte(data))
}

// writeAtomically replaces path so a concurrent refresh never reads a partial file
func writeAtomically(path string, data []byte) {
	tmp := path + ".tmp"
	gomega.Expect(os.WriteFile(tmp, data, 0600)).To(gomega.Succeed())
	gomega.Expect(os.Rename(tmp, path)).To(gomega.Succeed())
}

// WriteConfigYAML writes a rating server configuration file for testing.
// sourceConfig holds the fields of the single source section.
func WriteConfigYAML(dir, sourceType string, sourceConfig map[string]string, refresh map[string]string) string {
	var b strings.Builder
	b.WriteString("serverName: integration-test\n\nsource:\n")
	fmt.Fprintf(&b, "  %s:\n", sourceType)
	for key, value := range sourceConfig {
		fmt.Fprintf(&b, "    %s: %s\n", key, value)
	}

	b.WriteString("\nrefresh:\n")
	if _, ok := refresh["interval"]; !ok {
		b.WriteString("  interval: 1h\n")
	}
	for key, value := range refresh {
		fmt.Fprintf(&b, "  %s: %s\n", key, value)
	}

	b.WriteString("\nleaderboard:\n  defaultPageSize: 2\n  maxPageSize: 50\n")

	path := filepath.Join(dir, "config.yaml")
	gomega.Expect(os.WriteFile(path, []byte(b.String()), 0600)).To(gomega.Succeed())
	return path
}
