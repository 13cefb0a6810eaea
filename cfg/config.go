// Copyright 2025 The Wormhole Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cfg holds the daemon configuration: the YAML/flag schema, its
// defaults, and validation.
package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	Transport TransportConfig `yaml:"transport" mapstructure:"transport"`

	Mount MountConfig `yaml:"mount" mapstructure:"mount"`

	Serve ServeConfig `yaml:"serve" mapstructure:"serve"`

	Sync SyncConfig `yaml:"sync" mapstructure:"sync"`
}

type LoggingConfig struct {
	// FilePath is where logs are written. Empty means stderr.
	FilePath ResolvedPath `yaml:"file-path" mapstructure:"file-path"`

	// Severity is one of TRACE, DEBUG, INFO, WARNING, ERROR, OFF.
	Severity string `yaml:"severity" mapstructure:"severity"`

	// Format is "text" or "json".
	Format string `yaml:"format" mapstructure:"format"`

	LogRotate LogRotateLoggingConfig `yaml:"log-rotate" mapstructure:"log-rotate"`
}

type LogRotateLoggingConfig struct {
	MaxFileSizeMb   int  `yaml:"max-file-size-mb" mapstructure:"max-file-size-mb"`
	BackupFileCount int  `yaml:"backup-file-count" mapstructure:"backup-file-count"`
	Compress        bool `yaml:"compress" mapstructure:"compress"`
}

type CacheConfig struct {
	// Dir is the disk cache root. Empty means the platform cache dir.
	Dir ResolvedPath `yaml:"dir" mapstructure:"dir"`

	RamCacheMaxMb  int64 `yaml:"ram-cache-max-mb" mapstructure:"ram-cache-max-mb"`
	DiskCacheMaxMb int64 `yaml:"disk-cache-max-mb" mapstructure:"disk-cache-max-mb"`

	GcIntervalSecs    int `yaml:"gc-interval-secs" mapstructure:"gc-interval-secs"`
	GcHighWatermark   int `yaml:"gc-high-watermark-percent" mapstructure:"gc-high-watermark-percent"`
	GcLowWatermark    int `yaml:"gc-low-watermark-percent" mapstructure:"gc-low-watermark-percent"`
	WritebackWorkers  int `yaml:"writeback-workers" mapstructure:"writeback-workers"`
	DedupIndexEntries int `yaml:"dedup-index-entries" mapstructure:"dedup-index-entries"`
}

type TransportConfig struct {
	KeepaliveSecs   int `yaml:"keepalive-secs" mapstructure:"keepalive-secs"`
	IdleTimeoutSecs int `yaml:"idle-timeout-secs" mapstructure:"idle-timeout-secs"`
	MaxStreams      int `yaml:"max-streams" mapstructure:"max-streams"`

	// DevInsecure disables certificate pinning. Never use outside tests.
	DevInsecure bool `yaml:"dev-insecure" mapstructure:"dev-insecure"`
}

type MountConfig struct {
	ReadOnly        bool `yaml:"read-only" mapstructure:"read-only"`
	AttrCacheTtlMs  int  `yaml:"attr-cache-ttl-ms" mapstructure:"attr-cache-ttl-ms"`
	DirCacheTtlMs   int  `yaml:"dir-cache-ttl-ms" mapstructure:"dir-cache-ttl-ms"`
	PrefetchWindow  int  `yaml:"prefetch-window" mapstructure:"prefetch-window"`
	HealthCheckSecs int  `yaml:"health-check-secs" mapstructure:"health-check-secs"`
}

type ServeConfig struct {
	Listen          string `yaml:"listen" mapstructure:"listen"`
	Name            string `yaml:"name" mapstructure:"name"`
	Writable        bool   `yaml:"writable" mapstructure:"writable"`
	AllowLocks      bool   `yaml:"allow-locks" mapstructure:"allow-locks"`
	SessionMaxHours int    `yaml:"session-max-hours" mapstructure:"session-max-hours"`
}

type SyncConfig struct {
	IntervalMs         int `yaml:"interval-ms" mapstructure:"interval-ms"`
	BatchSize          int `yaml:"batch-size" mapstructure:"batch-size"`
	ForceSyncThreshold int `yaml:"force-sync-threshold" mapstructure:"force-sync-threshold"`
}

// BindFlags declares every config knob as a flag and binds it into viper.
func BindFlags(flagSet *pflag.FlagSet) error {
	bindings := []struct {
		key string
		add func()
	}{
		{"logging.file-path", func() { flagSet.StringP("log-file", "", "", "Path to the log file. Empty logs to stderr.") }},
		{"logging.severity", func() { flagSet.StringP("log-severity", "", "INFO", "Log severity: TRACE, DEBUG, INFO, WARNING, ERROR, OFF.") }},
		{"logging.format", func() { flagSet.StringP("log-format", "", "json", "Log format: text or json.") }},
		{"logging.log-rotate.max-file-size-mb", func() { flagSet.IntP("log-rotate-max-file-size-mb", "", 512, "Maximum log file size before rotation.") }},
		{"logging.log-rotate.backup-file-count", func() { flagSet.IntP("log-rotate-backup-file-count", "", 10, "Rotated log files to retain. 0 retains all.") }},
		{"logging.log-rotate.compress", func() { flagSet.BoolP("log-rotate-compress", "", true, "Compress rotated log files.") }},

		{"cache.dir", func() { flagSet.StringP("cache-dir", "", "", "Disk chunk cache directory. Empty uses the platform cache dir.") }},
		{"cache.ram-cache-max-mb", func() { flagSet.Int64P("ram-cache-max-mb", "", 256, "RAM chunk cache budget in MiB.") }},
		{"cache.disk-cache-max-mb", func() { flagSet.Int64P("disk-cache-max-mb", "", 4096, "Disk chunk cache budget in MiB.") }},
		{"cache.gc-interval-secs", func() { flagSet.IntP("gc-interval-secs", "", 60, "Disk cache garbage collection interval.") }},
		{"cache.gc-high-watermark-percent", func() { flagSet.IntP("gc-high-watermark-percent", "", 90, "Disk usage percent that triggers eviction.") }},
		{"cache.gc-low-watermark-percent", func() { flagSet.IntP("gc-low-watermark-percent", "", 70, "Disk usage percent eviction drives down to.") }},
		{"cache.writeback-workers", func() { flagSet.IntP("writeback-workers", "", 4, "Concurrent disk cache writeback workers.") }},
		{"cache.dedup-index-entries", func() { flagSet.IntP("dedup-index-entries", "", 100000, "Maximum dedup index entries.") }},

		{"transport.keepalive-secs", func() { flagSet.IntP("keepalive-secs", "", 25, "QUIC keepalive interval.") }},
		{"transport.idle-timeout-secs", func() { flagSet.IntP("idle-timeout-secs", "", 120, "QUIC idle timeout.") }},
		{"transport.max-streams", func() { flagSet.IntP("max-streams", "", 128, "Maximum concurrent streams per connection.") }},
		{"transport.dev-insecure", func() { flagSet.BoolP("dev-insecure", "", false, "Accept any host certificate. Insecure; development only.") }},

		{"mount.read-only", func() { flagSet.BoolP("read-only", "", false, "Mount read-only regardless of host capabilities.") }},
		{"mount.attr-cache-ttl-ms", func() { flagSet.IntP("attr-cache-ttl-ms", "", 2000, "Attribute cache TTL in milliseconds.") }},
		{"mount.dir-cache-ttl-ms", func() { flagSet.IntP("dir-cache-ttl-ms", "", 2000, "Directory cache TTL in milliseconds.") }},
		{"mount.prefetch-window", func() { flagSet.IntP("prefetch-window", "", 5, "Chunks to prefetch once a sequential pattern is detected.") }},
		{"mount.health-check-secs", func() { flagSet.IntP("health-check-secs", "", 30, "Host health check interval. 0 disables.") }},

		{"serve.listen", func() { flagSet.StringP("listen", "", ":4433", "Address the host listens on.") }},
		{"serve.name", func() { flagSet.StringP("share-name", "", "", "Display name of the published share.") }},
		{"serve.writable", func() { flagSet.BoolP("writable", "", false, "Allow clients to write to the share.") }},
		{"serve.allow-locks", func() { flagSet.BoolP("allow-locks", "", true, "Allow clients to take file locks.") }},
		{"serve.session-max-hours", func() { flagSet.IntP("session-max-hours", "", 24, "Session lifetime before forced re-authentication.") }},

		{"sync.interval-ms", func() { flagSet.IntP("sync-interval-ms", "", 1000, "Dirty chunk writeback interval.") }},
		{"sync.batch-size", func() { flagSet.IntP("sync-batch-size", "", 10, "Dirty chunks uploaded per sync pass.") }},
		{"sync.force-sync-threshold", func() { flagSet.IntP("force-sync-threshold", "", 1000, "Dirty chunk count that forces an immediate sync.") }},
	}

	for _, b := range bindings {
		b.add()
		flagName := flagSet.Lookup(flagNameForKey(b.key))
		if err := viper.BindPFlag(b.key, flagName); err != nil {
			return err
		}
	}
	return nil
}

// flagNameForKey maps a viper key to the flag it was declared as above.
func flagNameForKey(key string) string {
	names := map[string]string{
		"logging.file-path":                    "log-file",
		"logging.severity":                     "log-severity",
		"logging.format":                       "log-format",
		"logging.log-rotate.max-file-size-mb":  "log-rotate-max-file-size-mb",
		"logging.log-rotate.backup-file-count": "log-rotate-backup-file-count",
		"logging.log-rotate.compress":          "log-rotate-compress",
		"cache.dir":                            "cache-dir",
		"cache.ram-cache-max-mb":               "ram-cache-max-mb",
		"cache.disk-cache-max-mb":              "disk-cache-max-mb",
		"cache.gc-interval-secs":               "gc-interval-secs",
		"cache.gc-high-watermark-percent":      "gc-high-watermark-percent",
		"cache.gc-low-watermark-percent":       "gc-low-watermark-percent",
		"cache.writeback-workers":              "writeback-workers",
		"cache.dedup-index-entries":            "dedup-index-entries",
		"transport.keepalive-secs":             "keepalive-secs",
		"transport.idle-timeout-secs":          "idle-timeout-secs",
		"transport.max-streams":                "max-streams",
		"transport.dev-insecure":               "dev-insecure",
		"mount.read-only":                      "read-only",
		"mount.attr-cache-ttl-ms":              "attr-cache-ttl-ms",
		"mount.dir-cache-ttl-ms":               "dir-cache-ttl-ms",
		"mount.prefetch-window":                "prefetch-window",
		"mount.health-check-secs":              "health-check-secs",
		"serve.listen":                         "listen",
		"serve.name":                           "share-name",
		"serve.writable":                       "writable",
		"serve.allow-locks":                    "allow-locks",
		"serve.session-max-hours":              "session-max-hours",
		"sync.interval-ms":                     "sync-interval-ms",
		"sync.batch-size":                      "sync-batch-size",
		"sync.force-sync-threshold":            "force-sync-threshold",
	}
	return names[key]
}
