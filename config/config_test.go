package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smartystreets/goconvey/convey"

	"github.com/warp/incentive-engine/config"
)

var configEnvVars = []string{
	"INCENTIVE_CONFIG",
	"INCENTIVE_ADDR",
	"INCENTIVE_DB_PATH",
	"INCENTIVE_APPROVAL_LEVEL1_MAX",
	"INCENTIVE_APPROVAL_LEVEL2_MAX",
	"INCENTIVE_SLA_LEVEL1_HOURS",
	"INCENTIVE_SWEEP_ENABLED",
	"INCENTIVE_REDIS_ADDR",
}

func clearConfigEnvVars() {
	for _, k := range configEnvVars {
		_ = os.Unsetenv(k)
	}
}

func writeConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "incentive.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then the documented defaults apply", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.SLALevel1Hours, convey.ShouldEqual, 72)
				convey.So(cfg.SweepEnabled, convey.ShouldBeFalse)
				convey.So(cfg.RedisAddr, convey.ShouldBeEmpty)

				ac, err := cfg.Approval()
				convey.So(err, convey.ShouldBeNil)
				convey.So(ac.Level1Max.Equal(decimal.NewFromInt(50000)), convey.ShouldBeTrue)
				convey.So(ac.Level3SLA, convey.ShouldEqual, 24*time.Hour)
			})
		})

		convey.Convey("When a YAML file and env vars are both set", func() {
			path := writeConfigFile(t, `
addr: ":9090"
db_path: "/tmp/from-file.db"
approval_level1_max: "25000"
sla_level1_hours: 24
`)
			_ = os.Setenv("INCENTIVE_CONFIG", path)
			_ = os.Setenv("INCENTIVE_DB_PATH", ":memory:")
			_ = os.Setenv("INCENTIVE_SWEEP_ENABLED", "true")

			cfg, err := config.Load(ctx)

			convey.Convey("Then env overrides the file and the file overrides defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.DBPath, convey.ShouldEqual, ":memory:")
				convey.So(cfg.ApprovalLevel1Max, convey.ShouldEqual, "25000")
				convey.So(cfg.SLALevel1Hours, convey.ShouldEqual, 24)
				convey.So(cfg.SweepEnabled, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the thresholds are inverted", func() {
			_ = os.Setenv("INCENTIVE_APPROVAL_LEVEL1_MAX", "200000")

			_, err := config.Load(ctx)

			convey.Convey("Then loading fails as invalid", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a threshold is not a number", func() {
			_ = os.Setenv("INCENTIVE_APPROVAL_LEVEL2_MAX", "lots")

			_, err := config.Load(ctx)

			convey.Convey("Then loading fails as invalid", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When an SLA window is zero", func() {
			_ = os.Setenv("INCENTIVE_SLA_LEVEL1_HOURS", "0")

			_, err := config.Load(ctx)

			convey.Convey("Then loading fails as invalid", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			_ = os.Setenv("INCENTIVE_CONFIG", "/nonexistent/incentive.yaml")

			_, err := config.Load(ctx)

			convey.Convey("Then loading fails", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When addr is blanked", func() {
			_ = os.Setenv("INCENTIVE_ADDR", " ")

			_, err := config.Load(ctx)

			convey.Convey("Then loading fails as invalid", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}
