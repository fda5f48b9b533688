package main

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HerbHall/hostpanel/internal/config"
	"github.com/HerbHall/hostpanel/internal/scheduler"
	"github.com/HerbHall/hostpanel/internal/source"
	"github.com/HerbHall/hostpanel/internal/testutil"
	"github.com/HerbHall/hostpanel/internal/transport"
)

func defaultSettings(t *testing.T) *config.Settings {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	s, err := config.New(v).Settings()
	require.NoError(t, err)
	return s
}

func TestBuildSources_FrameOrder(t *testing.T) {
	s := defaultSettings(t)
	s.Sources.Disks = []string{"nvme0n1", "/dev/sdc"}

	srcs := buildSources(s, defaultHostDeps(s))

	var names []string
	for _, src := range srcs {
		names = append(names, src.Name())
	}
	assert.Equal(t, []string{
		"disk_nvme0n1", "disk_sdc",
		"cpu_temp", "gpu_temp",
		"cpu_usage", "gpu_usage", "mem_usage",
		"external_ip", "ping_avg",
	}, names)
}

func TestBuildSources_SentinelsMatchFieldKinds(t *testing.T) {
	s := defaultSettings(t)
	srcs := buildSources(s, defaultHostDeps(s))
	require.Len(t, srcs, 9)

	assert.Equal(t, source.SentinelDisk, srcs[0].Sentinel())
	assert.Equal(t, source.SentinelDisk, srcs[1].Sentinel())
	for _, src := range srcs[2:7] {
		assert.Equal(t, source.SentinelNumber, src.Sentinel(), src.Name())
	}
	assert.Equal(t, source.SentinelIP, srcs[7].Sentinel())
	assert.Equal(t, source.SentinelNumber, srcs[8].Sentinel())
}

func TestBuildSources_CommandPingUsesRunner(t *testing.T) {
	s := defaultSettings(t)
	s.Sources.Ping.Mode = config.PingCommand

	runner := testutil.NewRunner()
	runner.On("ping", testutil.Response{Output: []byte("rtt min/avg/max/mdev = 10.1/14.2/20.3/1.0 ms\n")})
	deps := defaultHostDeps(s)
	deps.runner = runner

	srcs := buildSources(s, deps)
	f := srcs[8].Acquire(t.Context())

	assert.Equal(t, source.StatusOK, f.Status)
	assert.Equal(t, "14", f.Value)
	assert.NotEmpty(t, runner.Calls())
}

func TestBuildSink(t *testing.T) {
	s := defaultSettings(t)

	sink, err := buildSink(s, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &transport.SerialSink{}, sink)
	assert.Equal(t, "serial:/dev/ttyACM0", sink.Endpoint())

	s.Transport.Kind = config.TransportMQTT
	sink, err = buildSink(s, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &transport.MQTTSink{}, sink)
	assert.Equal(t, "mqtt:tcp://localhost:1883/hostpanel/frame", sink.Endpoint())

	s.Transport.Kind = "usb"
	_, err = buildSink(s, zap.NewNop())
	assert.Error(t, err)
}

func TestSchedulerOptions(t *testing.T) {
	s := defaultSettings(t)
	opts := schedulerOptions(s)
	assert.Equal(t, scheduler.FlagStatic, opts.FlagMode)
	assert.Equal(t, "YES", opts.FlagValue)
	assert.Equal(t, s.Interval, opts.Interval)
	assert.Zero(t, opts.Retries)

	s.Connectivity.Mode = config.ConnectivityPing
	assert.Equal(t, scheduler.FlagPing, schedulerOptions(s).FlagMode)
}

func TestCollectorOptions(t *testing.T) {
	s := defaultSettings(t)
	opts := collectorOptions(s)
	assert.Equal(t, s.CycleTimeout, opts.CycleTimeout)
	assert.Equal(t, s.SourceTimeout, opts.SourceTimeout)
	assert.Equal(t, 9, opts.MaxParallel)
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger(config.LogSettings{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	logger, err = newLogger(config.LogSettings{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))

	_, err = newLogger(config.LogSettings{Level: "loud"})
	assert.Error(t, err)
}
