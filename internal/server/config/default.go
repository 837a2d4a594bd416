package config

import "time"

// Default configuration values.
const (
	DefaultBind         = "0.0.0.0"
	DefaultPort         = 6379
	DefaultTLSPort      = 6380
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
	DefaultRateLimit    = 0

	DefaultUnixSocketPerm = "700"

	DefaultDir              = "."
	DefaultDBFilename       = "dump.rdb"
	DefaultSnapshotInterval = 0
	DefaultArchiveRetention = 24
	DefaultArchiveGC        = 10 * time.Minute

	DefaultQueueSize    = 4096
	DefaultReconnectMin = 100 * time.Millisecond
	DefaultReconnectMax = 5 * time.Second

	DefaultSweepInterval = 100 * time.Millisecond
	DefaultSweepLimit    = 200

	DefaultMetricsAddr      = "127.0.0.1:9121"
	DefaultMetricsRateLimit = 100

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Bind:         DefaultBind,
			Port:         DefaultPort,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			RateLimit:    DefaultRateLimit,
			AllowInline:    true,
			UnixSocketPerm: DefaultUnixSocketPerm,
			TLS: TLSConfig{
				Port: DefaultTLSPort,
			},
		},
		Storage: StorageSection{
			Dir:              DefaultDir,
			DBFilename:       DefaultDBFilename,
			SnapshotInterval: DefaultSnapshotInterval,
			SaveOnShutdown:   true,
			Archive: ArchiveConfig{
				Retention:  DefaultArchiveRetention,
				GCInterval: DefaultArchiveGC,
			},
		},
		Replication: ReplicationSection{
			ReadOnly:     true,
			QueueSize:    DefaultQueueSize,
			ReconnectMin: DefaultReconnectMin,
			ReconnectMax: DefaultReconnectMax,
		},
		Expiry: ExpirySection{
			SweepInterval: DefaultSweepInterval,
			SweepLimit:    DefaultSweepLimit,
		},
		Telemetry: TelemetrySection{
			Metrics: MetricsConfig{
				Addr:      DefaultMetricsAddr,
				RateLimit: DefaultMetricsRateLimit,
			},
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
