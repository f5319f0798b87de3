package integration

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/panorama-game/rating-server/internal/leaderboard"
	"github.com/panorama-game/rating-server/internal/status"
	"github.com/panorama-game/rating-server/test-integration/rating-server/helpers"
)

func nicknames(page *leaderboard.PageResult) []string {
	names := []string{}
	for _, e := range page.Entries {
		names = append(names, e.Nickname)
	}
	return names
}

var _ = Describe("File Source Integration", Label("file"), func() {
	var (
		tempDir      string
		playersFile  string
		configFile   string
		dataDir      string
		serverHelper *helpers.ServerTestHelper
	)

	BeforeEach(func() {
		tempDir = createTempDir("file-test-")
		dataDir = filepath.Join(tempDir, "data")
		Expect(os.MkdirAll(dataDir, 0750)).To(Succeed())

		playersFile = filepath.Join(tempDir, "players.json")
		helpers.WritePlayersFile(playersFile, helpers.CreateOriginalTestPlayers())

		configFile = helpers.WriteConfigYAML(tempDir, "file",
			map[string]string{"path": playersFile},
			map[string]string{"interval": "100ms", "fetchTimeout": "2s"},
		)

		var err error
		serverHelper, err = helpers.NewServerTestHelper(ctx, configFile, dataDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)
	})

	AfterEach(func() {
		_ = serverHelper.StopServer()
		cleanupTempDir(tempDir)
	})

	Context("Loading from Local File", func() {
		It("should rank players by rating and break ties by id", func() {
			serverHelper.WaitForTotal(3, 10*time.Second)

			page, err := serverHelper.GetPage(0, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(nicknames(page)).To(Equal([]string{"A", "B"}))
			Expect(page.PageCount).To(Equal(2))
			Expect(page.TotalCount).To(Equal(3))

			page, err = serverHelper.GetPage(1, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(nicknames(page)).To(Equal([]string{"C"}))
			Expect(page.Entries[0].Rating).To(BeEquivalentTo(1400))
			Expect(page.Entries[0].MatchesNumber).To(BeEquivalentTo(20))
		})

		It("should return an empty page past the end", func() {
			serverHelper.WaitForTotal(3, 10*time.Second)

			page, err := serverHelper.GetPage(5, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Entries).To(BeEmpty())
		})

		It("should reject invalid pagination", func() {
			serverHelper.WaitForTotal(3, 10*time.Second)

			for _, path := range []string{
				"/v1/leaderboard?page=-1",
				"/v1/leaderboard?pageSize=0",
				"/v1/leaderboard?pageSize=51",
				"/v1/leaderboard?page=abc",
			} {
				resp, err := serverHelper.Get(path)
				Expect(err).NotTo(HaveOccurred())
				_ = resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest), path)
			}
		})

		It("should search by substring on every supplied field", func() {
			serverHelper.WaitForTotal(3, 10*time.Second)

			result, err := serverHelper.Search(url.Values{"rating": {"14"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Entries).To(HaveLen(2))
			Expect(result.Entries[0].Nickname).To(Equal("B"))
			Expect(result.Entries[1].Nickname).To(Equal("C"))

			result, err = serverHelper.Search(url.Values{"login": {"A"}, "matchesNumber": {"1"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Entries).To(HaveLen(1))
			Expect(result.Entries[0].Nickname).To(Equal("A"))
		})
	})

	Context("Refreshing", func() {
		It("should publish changes to the file on the next cycle", func() {
			serverHelper.WaitForTotal(3, 10*time.Second)
			before, err := serverHelper.GetInfo()
			Expect(err).NotTo(HaveOccurred())

			helpers.WritePlayersFile(playersFile, helpers.CreateUpdatedTestPlayers())
			serverHelper.WaitForTotal(4, 10*time.Second)

			after, err := serverHelper.GetInfo()
			Expect(err).NotTo(HaveOccurred())
			Expect(after.SnapshotVersion).To(BeNumerically(">", before.SnapshotVersion))
			Expect(after.Hash).NotTo(Equal(before.Hash))

			page, err := serverHelper.GetPage(0, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(nicknames(page)).To(Equal([]string{"D"}))
		})

		It("should keep serving the previous snapshot when the file becomes malformed", func() {
			serverHelper.WaitForTotal(3, 10*time.Second)

			helpers.WriteRawFile(playersFile, `players:
  - nickname: broken
    rating: 1
`)
			st := serverHelper.WaitForRefreshOutcome(status.RefreshOutcomeFailed, 10*time.Second)
			Expect(st.Message).NotTo(BeEmpty())
			Expect(st.EntryCount).To(Equal(3))

			page, err := serverHelper.GetPage(0, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(nicknames(page)).To(Equal([]string{"A", "B", "C"}))

			helpers.WritePlayersFile(playersFile, helpers.CreateOriginalTestPlayers())
			serverHelper.WaitForRefreshOutcome(status.RefreshOutcomeComplete, 10*time.Second)
		})

		It("should persist the refresh status to the data directory", func() {
			serverHelper.WaitForTotal(3, 10*time.Second)

			Eventually(func() error {
				_, err := os.Stat(filepath.Join(dataDir, status.StatusFileName))
				return err
			}, 5*time.Second, 50*time.Millisecond).Should(Succeed())
		})
	})

	Context("Streaming", func() {
		It("should push a new first page when the leaderboard changes", func() {
			serverHelper.WaitForTotal(3, 10*time.Second)

			conn, err := serverHelper.DialStream(2)
			Expect(err).NotTo(HaveOccurred())
			defer func() { _ = conn.Close() }()
			Expect(conn.SetReadDeadline(time.Now().Add(10 * time.Second))).To(Succeed())

			var first leaderboard.PageResult
			Expect(conn.ReadJSON(&first)).To(Succeed())
			Expect(nicknames(&first)).To(Equal([]string{"A", "B"}))

			helpers.WritePlayersFile(playersFile, helpers.CreateUpdatedTestPlayers())

			// Unchanged refreshes still bump the version, so read until D shows up
			Eventually(func() []string {
				var next leaderboard.PageResult
				if err := conn.ReadJSON(&next); err != nil {
					return nil
				}
				return nicknames(&next)
			}, 10*time.Second).Should(Equal([]string{"D", "A"}))
		})
	})
})

var _ = Describe("Missing Source Integration", Label("file"), func() {
	It("should stay unready until a snapshot has been published", func() {
		tempDir := createTempDir("missing-test-")
		defer cleanupTempDir(tempDir)

		playersFile := filepath.Join(tempDir, "players.json")
		configFile := helpers.WriteConfigYAML(tempDir, "file",
			map[string]string{"path": playersFile},
			map[string]string{"interval": "100ms"},
		)

		serverHelper, err := helpers.NewServerTestHelper(ctx, configFile, filepath.Join(tempDir, "data"))
		Expect(err).NotTo(HaveOccurred())
		Expect(serverHelper.StartServer()).To(Succeed())
		defer func() { _ = serverHelper.StopServer() }()
		serverHelper.WaitForServerReady(10 * time.Second)

		serverHelper.WaitForRefreshOutcome(status.RefreshOutcomeFailed, 10*time.Second)

		resp, err := serverHelper.GetReadiness()
		Expect(err).NotTo(HaveOccurred())
		_ = resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))

		page, err := serverHelper.GetPage(0, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(page.Entries).To(BeEmpty())
		Expect(page.TotalCount).To(BeZero())

		helpers.WritePlayersFile(playersFile, helpers.CreateOriginalTestPlayers())
		serverHelper.WaitForTotal(3, 10*time.Second)

		Eventually(func() int {
			resp, err := serverHelper.GetReadiness()
			if err != nil {
				return 0
			}
			_ = resp.Body.Close()
			return resp.StatusCode
		}, 5*time.Second, 50*time.Millisecond).Should(Equal(http.StatusOK))
	})
})
