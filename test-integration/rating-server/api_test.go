package integration

import (
	"net/http"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/panorama-game/rating-server/internal/status"
	"github.com/panorama-game/rating-server/test-integration/rating-server/helpers"
)

var _ = Describe("API Source Integration", Label("api"), func() {
	var (
		tempDir      string
		mockAPI      *helpers.MockPlayersAPI
		serverHelper *helpers.ServerTestHelper
	)

	BeforeEach(func() {
		tempDir = createTempDir("api-test-")
		mockAPI = helpers.NewMockPlayersAPI(helpers.CreateOriginalTestPlayers())

		configFile := helpers.WriteConfigYAML(tempDir, "api",
			map[string]string{"endpoint": mockAPI.URL()},
			map[string]string{"interval": "100ms", "fetchTimeout": "300ms"},
		)

		var err error
		serverHelper, err = helpers.NewServerTestHelper(ctx, configFile, filepath.Join(tempDir, "data"))
		Expect(err).NotTo(HaveOccurred())
		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)
	})

	AfterEach(func() {
		_ = serverHelper.StopServer()
		mockAPI.Close()
		cleanupTempDir(tempDir)
	})

	It("should load players from the endpoint", func() {
		serverHelper.WaitForTotal(3, 10*time.Second)

		page, err := serverHelper.GetPage(0, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(nicknames(page)).To(Equal([]string{"A", "B", "C"}))
		Expect(mockAPI.Requests()).To(BeNumerically(">=", 1))
	})

	It("should keep the previous snapshot while the endpoint fails", func() {
		serverHelper.WaitForTotal(3, 10*time.Second)

		mockAPI.FailWith(http.StatusInternalServerError)
		st := serverHelper.WaitForRefreshOutcome(status.RefreshOutcomeFailed, 10*time.Second)
		Expect(st.AttemptCount).To(BeNumerically(">=", 1))

		page, err := serverHelper.GetPage(0, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(nicknames(page)).To(Equal([]string{"A", "B", "C"}))

		mockAPI.SetPlayers(helpers.CreateUpdatedTestPlayers())
		serverHelper.WaitForTotal(4, 10*time.Second)
		st = serverHelper.WaitForRefreshOutcome(status.RefreshOutcomeComplete, 10*time.Second)
		Expect(st.AttemptCount).To(BeZero())
	})

	It("should abandon fetches that exceed the fetch timeout", func() {
		serverHelper.WaitForTotal(3, 10*time.Second)

		mockAPI.SetDelay(2 * time.Second)
		st := serverHelper.WaitForRefreshOutcome(status.RefreshOutcomeFailed, 10*time.Second)
		Expect(st.Message).To(ContainSubstring("timed out"))

		// Reads are never blocked by the slow source
		start := time.Now()
		page, err := serverHelper.GetPage(0, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(nicknames(page)).To(Equal([]string{"A"}))
		Expect(time.Since(start)).To(BeNumerically("<", time.Second))

		mockAPI.SetDelay(0)
		serverHelper.WaitForRefreshOutcome(status.RefreshOutcomeComplete, 10*time.Second)
	})

	It("should serve many players across pages without gaps", func() {
		mockAPI.SetPlayers(helpers.CreateManyTestPlayers(47))
		serverHelper.WaitForTotal(47, 10*time.Second)

		seen := map[string]bool{}
		for pageNumber := 0; pageNumber < 5; pageNumber++ {
			page, err := serverHelper.GetPage(pageNumber, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(page.PageCount).To(Equal(5))
			for _, e := range page.Entries {
				Expect(seen).NotTo(HaveKey(e.Nickname))
				seen[e.Nickname] = true
			}
		}
		Expect(seen).To(HaveLen(47))
	})
})
