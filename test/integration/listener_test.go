//go:build integration

package integration

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/notif_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/notif_mon/internal/domain"
	"github.com/eliteGoblin/focusd/notif_mon/internal/infra"
	"github.com/eliteGoblin/focusd/notif_mon/internal/listener"
	"github.com/eliteGoblin/focusd/notif_mon/internal/metrics"
	"github.com/eliteGoblin/focusd/notif_mon/internal/policy"
	"github.com/eliteGoblin/focusd/notif_mon/test/fixtures"
)

var _ = Describe("Listener daemon", func() {
	var (
		dataDir string
		host    *fixtures.FakeHost
		prefs   *infra.FilePreferenceStore
		store   *policy.Store
		agent   *listener.Agent
		status  *infra.StatusFile
		runner  *daemon.Runner
		stop    context.CancelFunc
		done    chan error
	)

	BeforeEach(func() {
		dataDir = GinkgoT().TempDir()
		logger := zap.NewNop()

		var err error
		prefs, err = infra.NewFilePreferenceStore(dataDir)
		Expect(err).NotTo(HaveOccurred())

		host = fixtures.NewFakeHost()
		store = policy.NewStore(prefs, logger)
		agent = listener.NewAgent(policy.NewEngine(store), host, metrics.New(), logger)
		status = infra.NewStatusFile(dataDir)

		runner = daemon.NewRunner(daemon.RunnerConfig{
			ReconnectInterval: 20 * time.Millisecond,
			HeartbeatInterval: 20 * time.Millisecond,
			Version:           "integration",
		}, host, agent, status, infra.NewProcessManager(), nil, logger)
	})

	start := func() {
		var ctx context.Context
		ctx, stop = context.WithCancel(context.Background())
		done = make(chan error, 1)
		go func() { done <- runner.Run(ctx) }()
		Eventually(host.Attached).Should(BeTrue())
	}

	AfterEach(func() {
		if stop != nil {
			stop()
			Eventually(done).Should(Receive(BeNil()))
			stop = nil
		}
		Expect(prefs.Close()).To(Succeed())
	})

	Describe("connect sweep", func() {
		It("withdraws notifications posted before attach from disabled apps only", func() {
			Expect(store.SetNotificationsEnabled("chat", false)).To(Succeed())
			chatKey := host.Post("chat")
			mailKey := host.Post("mail")
			otherChat := host.Post("chat")

			start()

			Eventually(host.CancelledPackages).Should(Equal([]string{"chat", "chat"}))
			Expect(host.IsActive(chatKey)).To(BeFalse())
			Expect(host.IsActive(otherChat)).To(BeFalse())
			Expect(host.IsActive(mailKey)).To(BeTrue())
		})
	})

	Describe("posted notifications", func() {
		BeforeEach(func() {
			start()
		})

		It("allows apps never configured", func() {
			key := host.Post("calendar")

			Consistently(func() bool { return host.IsActive(key) }, 100*time.Millisecond).Should(BeTrue())
		})

		It("follows policy changes made by another process", func() {
			// A second store over the same file stands in for the CLI.
			cliPrefs, err := infra.NewFilePreferenceStore(dataDir)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(cliPrefs.Close)
			cli := policy.NewStore(cliPrefs, zap.NewNop())

			Expect(cli.SetNotificationsEnabled("games", false)).To(Succeed())
			blocked := host.Post("games")
			Eventually(func() bool { return host.IsActive(blocked) }).Should(BeFalse())

			Expect(cli.SetNotificationsEnabled("games", true)).To(Succeed())
			allowed := host.Post("games")
			Consistently(func() bool { return host.IsActive(allowed) }, 100*time.Millisecond).Should(BeTrue())
		})

		It("ignores user dismissals", func() {
			key := host.Post("mail")
			host.Dismiss(key)

			Consistently(host.CancelledPackages, 100*time.Millisecond).Should(BeEmpty())
		})
	})

	Describe("status record", func() {
		It("publishes a connected heartbeat and removes it on shutdown", func() {
			start()

			Eventually(func() domain.ListenerState {
				s, err := status.Load()
				if err != nil || s == nil {
					return ""
				}
				return s.State
			}).Should(Equal(domain.StateConnected))

			live, err := daemon.CheckLiveness(status, infra.NewProcessManager(), time.Second, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(live.Connected()).To(BeTrue())

			stop()
			Eventually(done).Should(Receive(BeNil()))
			stop = nil

			s, err := status.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(s).To(BeNil())
		})
	})

	Describe("host restarts", func() {
		It("reattaches and sweeps again", func() {
			start()
			Expect(store.SetNotificationsEnabled("chat", false)).To(Succeed())

			host.Drop(errors.New("notification server restarted"))
			Eventually(host.Serves).Should(BeNumerically(">=", 2))
			Eventually(host.Attached).Should(BeTrue())

			host.Post("chat")
			Eventually(host.CancelledPackages).Should(ContainElement("chat"))
			Expect(agent.Running()).To(BeTrue())
		})
	})
})
