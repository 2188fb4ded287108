package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithRegistry(registry))

			Convey("Then collectors are registered under the livebid namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.giftsTotal.WithLabelValues("accepted").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "livebid_relay_gifts_total")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("sub"),
				WithLatencyBuckets([]float64{0.1, 0.5, 1.0}),
				WithSampleInterval(5*time.Second),
				WithConstLabels(map[string]string{"env": "test"}),
				WithRegistry(registry),
			)

			Convey("Then the options are applied", func() {
				So(manager.SampleInterval(), ShouldEqual, 5*time.Second)
				manager.timerTicks.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_sub_timer_ticks_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "test")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When non-positive or empty options are given", func() {
			manager := NewManager(
				WithNamespace(""),
				WithSampleInterval(0),
				WithLatencyBuckets(nil),
				WithRegistry(prometheus.NewRegistry()),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "livebid")
				So(manager.SampleInterval(), ShouldEqual, defaultSampleInterval)
				So(manager.latencyBuckets, ShouldResemble, prometheus.DefBuckets)
			})
		})
	})
}

func TestGlobalRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		m := Global()
		So(m, ShouldNotBeNil)

		Convey("When gift outcomes are recorded", func() {
			before := testutil.ToFloat64(m.giftsTotal.WithLabelValues("duplicate"))
			RecordGift("duplicate")
			RecordGift("duplicate")

			Convey("Then the labelled counter grows", func() {
				So(testutil.ToFloat64(m.giftsTotal.WithLabelValues("duplicate")), ShouldEqual, before+2)
			})
		})

		Convey("When coins are awarded", func() {
			before := testutil.ToFloat64(m.coinsAwarded)
			RecordCoinsAwarded(100)
			RecordCoinsAwarded(0)
			RecordCoinsAwarded(-5)

			Convey("Then only positive amounts count", func() {
				So(testutil.ToFloat64(m.coinsAwarded), ShouldEqual, before+100)
			})
		})

		Convey("When gauges are updated", func() {
			UpdateActiveSessions(3)
			UpdateConnectedSubscribers(7)
			UpdateDonorCount(4)
			UpdateAuctionPhase(2)
			UpdateQueueSize(12)
			UpdateQueueCapacity(100)

			Convey("Then they hold the last value", func() {
				So(testutil.ToFloat64(m.activeSessions), ShouldEqual, 3)
				So(testutil.ToFloat64(m.connectedSubscribers), ShouldEqual, 7)
				So(testutil.ToFloat64(m.donorCount), ShouldEqual, 4)
				So(testutil.ToFloat64(m.auctionPhase), ShouldEqual, 2)
				So(testutil.ToFloat64(m.queueSize), ShouldEqual, 12)
				So(testutil.ToFloat64(m.queueCapacity), ShouldEqual, 100)
			})
		})

		Convey("When the remaining helpers are called", func() {
			Convey("Then none of them panic", func() {
				So(func() {
					RecordLeaderboardUpdate()
					RecordLeaderboardRejection("frozen")
					RecordTimerTick()
					RecordTieExtension()
					RecordRoundFinished()
					RecordUpstreamConnect("ok")
					RecordUpstreamFailure("room_not_found")
					RecordUpstreamEvent("gift")
					RecordFanoutMessage("global")
					RecordFanoutDeliveryError()
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError()
					RecordWorkerProcessingLatency(1.5)
					RecordWorkerError()
					RecordSinkPublish("ok")
					RecordHTTPRequest("/healthz", "GET", "200")
					RecordHTTPRequestDuration("/healthz", "GET", "200", 2)
					RecordErrorByComponent("registry", "connect")
					CollectSystem()
				}, ShouldNotPanic)
			})
		})

		Convey("When recording is disabled", func() {
			m.enabled = false
			defer func() { m.enabled = true }()
			before := testutil.ToFloat64(m.timerTicks)
			RecordTimerTick()

			Convey("Then nothing is recorded", func() {
				So(testutil.ToFloat64(m.timerTicks), ShouldEqual, before)
			})
		})

		Convey("When the registry is requested", func() {
			Convey("Then the custom registry is returned", func() {
				So(GetRegistry(), ShouldEqual, customRegistry)
			})
		})
	})
}
