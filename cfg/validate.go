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

package cfg

import "fmt"

func isValidLogRotateConfig(config *LogRotateLoggingConfig) error {
	if config.MaxFileSizeMb <= 0 {
		return fmt.Errorf("max-file-size-mb should be atleast 1")
	}
	if config.BackupFileCount < 0 {
		return fmt.Errorf("backup-file-count should be 0 (to retain all backup files) or a positive value")
	}
	return nil
}

func isValidSeverity(s string) bool {
	switch s {
	case "TRACE", "DEBUG", "INFO", "WARNING", "ERROR", "OFF":
		return true
	}
	return false
}

func isValidCacheConfig(c *CacheConfig) error {
	if c.RamCacheMaxMb < 1 {
		return fmt.Errorf("ram-cache-max-mb should be atleast 1")
	}
	if c.DiskCacheMaxMb < 1 {
		return fmt.Errorf("disk-cache-max-mb should be atleast 1")
	}
	if c.GcHighWatermark <= 0 || c.GcHighWatermark > 100 {
		return fmt.Errorf("gc-high-watermark-percent must be in (0, 100]")
	}
	if c.GcLowWatermark <= 0 || c.GcLowWatermark >= c.GcHighWatermark {
		return fmt.Errorf("gc-low-watermark-percent must be in (0, high-watermark)")
	}
	if c.WritebackWorkers < 1 {
		return fmt.Errorf("writeback-workers should be atleast 1")
	}
	return nil
}

func isValidTransportConfig(c *TransportConfig) error {
	if c.KeepaliveSecs < 1 {
		return fmt.Errorf("keepalive-secs should be atleast 1")
	}
	if c.IdleTimeoutSecs <= c.KeepaliveSecs {
		return fmt.Errorf("idle-timeout-secs must exceed keepalive-secs")
	}
	if c.MaxStreams < 1 {
		return fmt.Errorf("max-streams should be atleast 1")
	}
	return nil
}

// ValidateConfig returns a non-nil error if the config is invalid.
func ValidateConfig(config *Config) error {
	if err := isValidLogRotateConfig(&config.Logging.LogRotate); err != nil {
		return fmt.Errorf("error parsing log-rotate config: %w", err)
	}
	if !isValidSeverity(config.Logging.Severity) {
		return fmt.Errorf("invalid log severity %q", config.Logging.Severity)
	}
	if err := isValidCacheConfig(&config.Cache); err != nil {
		return fmt.Errorf("error parsing cache config: %w", err)
	}
	if err := isValidTransportConfig(&config.Transport); err != nil {
		return fmt.Errorf("error parsing transport config: %w", err)
	}
	if config.Sync.BatchSize < 1 {
		return fmt.Errorf("sync-batch-size should be atleast 1")
	}
	if config.Serve.SessionMaxHours < 1 {
		return fmt.Errorf("session-max-hours should be atleast 1")
	}
	return nil
}
