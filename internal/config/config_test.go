package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/livebid/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.DedupeWindow(), convey.ShouldEqual, 5*time.Second)
			convey.So(cfg.HighValueThreshold, convey.ShouldEqual, 99)
			convey.So(cfg.LivenessInterval(), convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.InitialDurationSec, convey.ShouldEqual, 60)
			convey.So(cfg.DelayDurationSec, convey.ShouldEqual, 10)
			convey.So(cfg.TieExtensionSec, convey.ShouldEqual, 30)
			convey.So(cfg.MaxTieExtensions, convey.ShouldEqual, 5)
			convey.So(cfg.UpstreamConnectTimeout(), convey.ShouldEqual, 15*time.Second)
			convey.So(cfg.NATSSubject, convey.ShouldEqual, "livebid.auction.results")
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given invalid configs", t, func() {
		cases := []struct {
			name   string
			key    string
			mutate func(*config.Config)
		}{
			{"empty addr", "addr", func(c *config.Config) { c.Addr = "" }},
			{"empty upstream", "upstream_url", func(c *config.Config) { c.UpstreamURL = "" }},
			{"zero queue", "queue_size", func(c *config.Config) { c.QueueSize = 0 }},
			{"negative delay", "delay_duration_sec", func(c *config.Config) { c.DelayDurationSec = -1 }},
			{"negative ties", "max_tie_extensions", func(c *config.Config) { c.MaxTieExtensions = -1 }},
			{"negative window", "dedupe_window_ms", func(c *config.Config) { c.DedupeWindowMS = -5 }},
			{"zero initial", "initial_duration_sec", func(c *config.Config) { c.InitialDurationSec = 0 }},
			{"negative threshold", "high_value_threshold", func(c *config.Config) { c.HighValueThreshold = -1 }},
			{"rule without substrings", "error_rules[0]", func(c *config.Config) { c.ErrorRules = []config.ErrorRule{{Name: "x"}} }},
		}
		for _, tc := range cases {
			convey.Convey("Then "+tc.name+" is rejected", func() {
				cfg := config.New()
				tc.mutate(cfg)
				err := cfg.Validate()

				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				var fe *config.FieldError
				convey.So(errors.As(err, &fe), convey.ShouldBeTrue)
				convey.So(fe.Key, convey.ShouldEqual, tc.key)
			})
		}

		convey.Convey("Then several violations are all reported", func() {
			cfg := config.New()
			cfg.Addr = ""
			cfg.SendBuffer = -1
			err := cfg.Validate()

			convey.So(err.Error(), convey.ShouldContainSubstring, "addr")
			convey.So(err.Error(), convey.ShouldContainSubstring, "send_buffer")
		})

		convey.Convey("A zero delay is allowed", func() {
			cfg := config.New()
			cfg.DelayDurationSec = 0
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}
