package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/flaggy/internal/config"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*2)
			convey.So(cfg.Store, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.GeoDefaultCountry, convey.ShouldEqual, "NG")
			convey.So(cfg.LeaderboardLimit, convey.ShouldEqual, 20)
			convey.So(cfg.SessionTTL(), convey.ShouldEqual, 30*time.Minute)
			convey.So(cfg.CountriesTTL(), convey.ShouldEqual, 6*time.Hour)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given configs with inconsistent settings", t, func() {
		cases := map[string]func(*config.Config){
			"unknown store":         func(c *config.Config) { c.Store = "mongo" },
			"redis without address": func(c *config.Config) { c.Store = config.StoreRedis },
			"postgres without dsn":  func(c *config.Config) { c.Store = config.StorePostgres },
			"zero workers":          func(c *config.Config) { c.WorkerCount = 0 },
			"zero limit":            func(c *config.Config) { c.LeaderboardLimit = 0 },
		}
		for name, mutate := range cases {
			cfg := config.New()
			mutate(cfg)
			convey.Convey("Then "+name+" is rejected", func() {
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}
