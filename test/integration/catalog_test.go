//go:build integration

package integration

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/notif_mon/internal/catalog"
	"github.com/eliteGoblin/focusd/notif_mon/internal/domain"
	"github.com/eliteGoblin/focusd/notif_mon/internal/infra"
	"github.com/eliteGoblin/focusd/notif_mon/internal/metrics"
	"github.com/eliteGoblin/focusd/notif_mon/internal/policy"
	"github.com/eliteGoblin/focusd/notif_mon/test/fixtures"
)

func names(apps []domain.AppEntry) []string {
	out := make([]string, len(apps))
	for i, a := range apps {
		out[i] = a.DisplayName
	}
	return out
}

var _ = Describe("App catalog over desktop entries", func() {
	var (
		dataDir string
		apps    *fixtures.FakeDesktopApps
		prefs   *infra.EncryptedPreferenceStore
		cat     *catalog.Catalog
		m       *metrics.Metrics
	)

	open := func() {
		var err error
		prefs, err = infra.OpenEncryptedPreferenceStore(dataDir)
		Expect(err).NotTo(HaveOccurred())

		logger := zap.NewNop()
		enumerator := infra.NewDesktopEnumeratorWithDirs([]string{apps.Dir}, "", logger)
		cat = catalog.New(enumerator, policy.NewStore(prefs, logger), m, logger)
	}

	rebuild := func() []domain.AppEntry {
		result := <-cat.Load(context.Background())
		Expect(result.Err).NotTo(HaveOccurred())
		return result.Apps
	}

	BeforeEach(func() {
		dataDir = GinkgoT().TempDir()
		apps = fixtures.NewFakeDesktopApps(GinkgoT().TempDir())
		m = metrics.New()

		Expect(apps.Add("alpha", "Alpha")).To(Succeed())
		Expect(apps.Add("beta", "beta")).To(Succeed())
		Expect(apps.Add("zeta", "Zeta")).To(Succeed())
		Expect(apps.AddHidden("daemon-helper", "Helper")).To(Succeed())
		Expect(apps.AddWithoutName("broken")).To(Succeed())

		open()
	})

	AfterEach(func() {
		Expect(prefs.Close()).To(Succeed())
	})

	It("lists launchable apps by name and skips broken entries", func() {
		list := rebuild()

		Expect(names(list)).To(Equal([]string{"Alpha", "beta", "Zeta"}))
		for _, a := range list {
			Expect(a.NotificationsEnabled).To(BeTrue())
			Expect(a.IsFavorite).To(BeFalse())
		}
	})

	It("puts favorites first and keeps them across restarts", func() {
		list := rebuild()
		fav, err := cat.ToggleFavorite(list, "zeta")
		Expect(err).NotTo(HaveOccurred())
		Expect(fav).To(BeTrue())
		Expect(names(list)).To(Equal([]string{"Zeta", "Alpha", "beta"}))

		Expect(cat.SetNotifications(list, "beta", false)).To(Succeed())

		Expect(prefs.Close()).To(Succeed())
		open()

		list = rebuild()
		Expect(names(list)).To(Equal([]string{"Zeta", "Alpha", "beta"}))
		Expect(list[0].IsFavorite).To(BeTrue())
		Expect(list[2].NotificationsEnabled).To(BeFalse())

		favs := catalog.Filter(list, "", domain.ScopeFavorites)
		Expect(names(favs)).To(Equal([]string{"Zeta"}))
		Expect(catalog.CountLabel(domain.ScopeFavorites, "", len(favs))).To(Equal("Favorite apps: 1"))
	})

	It("filters by case-insensitive substring of name or package", func() {
		list := rebuild()

		found := catalog.Filter(list, "ET", domain.ScopeAll)

		Expect(names(found)).To(Equal([]string{"beta", "Zeta"}))
		Expect(catalog.CountLabel(domain.ScopeAll, "ET", len(found))).To(Equal("Apps found: 2"))
	})
})
