package main

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/HerbHall/hostpanel/internal/collector"
	"github.com/HerbHall/hostpanel/internal/config"
	"github.com/HerbHall/hostpanel/internal/scheduler"
	"github.com/HerbHall/hostpanel/internal/source"
	"github.com/HerbHall/hostpanel/internal/transport"
)

// hostDeps are the host capabilities the sources read from.
type hostDeps struct {
	runner  source.Runner
	sensors source.SensorReader
	cpu     source.CPUSampler
	http    *http.Client
}

func defaultHostDeps(s *config.Settings) hostDeps {
	return hostDeps{
		runner:  source.ExecRunner{},
		sensors: source.HostSensors{},
		cpu:     source.HostCPU{},
		http:    &http.Client{Timeout: s.Sources.ExternalIP.Timeout},
	}
}

// buildSources returns the sources in frame order:
// disk0 disk1 cpu_temp gpu_temp cpu_usage gpu_usage mem_usage external_ip ping_avg.
func buildSources(s *config.Settings, deps hostDeps) []source.Source {
	src := s.Sources

	var prober source.Prober
	switch src.Ping.Mode {
	case config.PingCommand:
		prober = source.NewCommandProber(deps.runner, "ping")
	default:
		prober = source.NewICMPProber(src.Ping.Timeout, src.Ping.Privileged)
	}

	return []source.Source{
		source.NewDiskHealth(deps.runner, src.Smartctl, src.Disks[0]),
		source.NewDiskHealth(deps.runner, src.Smartctl, src.Disks[1]),
		source.NewCPUTemperature(deps.sensors, src.CPUSensor),
		source.NewGPUTemperature(deps.sensors, src.GPUSensor),
		source.NewCPUUsage(deps.cpu, src.CPUWindow),
		source.NewGPUUsage(deps.runner, src.GPUCommand),
		source.NewMemoryUsage(deps.runner, src.MemoryCommand),
		source.NewExternalIP(deps.http, src.ExternalIP.URL, src.ExternalIP.Refresh),
		source.NewPingLatency(prober, src.Ping.Destination, src.Ping.Count),
	}
}

func collectorOptions(s *config.Settings) collector.Options {
	return collector.Options{
		CycleTimeout:  s.CycleTimeout,
		SourceTimeout: s.SourceTimeout,
		MaxParallel:   s.MaxParallel,
	}
}

func schedulerOptions(s *config.Settings) scheduler.Options {
	mode := scheduler.FlagStatic
	if s.Connectivity.Mode == config.ConnectivityPing {
		mode = scheduler.FlagPing
	}
	return scheduler.Options{
		Interval:     s.Interval,
		Retries:      s.Transport.Retries,
		RetryBackoff: s.Transport.RetryBackoff,
		FlagMode:     mode,
		FlagValue:    s.Connectivity.Value,
	}
}

func buildSink(s *config.Settings, logger *zap.Logger) (transport.Sink, error) {
	t := s.Transport
	switch t.Kind {
	case config.TransportSerial:
		return transport.NewSerialSink(transport.SerialConfig{
			Device:       t.Serial.Device,
			BaudRate:     t.Serial.BaudRate,
			WriteTimeout: t.Serial.WriteTimeout,
		}, logger.Named("serial")), nil
	case config.TransportMQTT:
		return transport.NewMQTTSink(transport.MQTTConfig{
			Broker:   t.MQTT.Broker,
			Topic:    t.MQTT.Topic,
			ClientID: t.MQTT.ClientID,
			Username: t.MQTT.Username,
			Password: t.MQTT.Password,
			QoS:      byte(t.MQTT.QoS),
			Retained: t.MQTT.Retained,
			Timeout:  t.MQTT.Timeout,
		}, logger.Named("mqtt")), nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", t.Kind)
	}
}

func newLogger(l config.LogSettings) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	if l.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}
