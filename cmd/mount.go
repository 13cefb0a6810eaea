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

package cmd

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/spf13/cobra"

	"github.com/wormholefs/wormhole/internal/bridge"
	"github.com/wormholefs/wormhole/internal/cache/disk"
	"github.com/wormholefs/wormhole/internal/cache/gc"
	"github.com/wormholefs/wormhole/internal/cache/hybrid"
	"github.com/wormholefs/wormhole/internal/cache/ram"
	"github.com/wormholefs/wormhole/internal/client"
	"github.com/wormholefs/wormhole/internal/clock"
	"github.com/wormholefs/wormhole/internal/core"
	"github.com/wormholefs/wormhole/internal/fs"
	"github.com/wormholefs/wormhole/internal/governor"
	"github.com/wormholefs/wormhole/internal/lock"
	"github.com/wormholefs/wormhole/internal/logger"
	"github.com/wormholefs/wormhole/internal/syncengine"
	"github.com/wormholefs/wormhole/internal/transport"
	"github.com/wormholefs/wormhole/internal/wire"
)

var (
	mountFingerprint string
	mountPeers       []string
)

var mountCmd = &cobra.Command{
	Use:   "mount [host:port] <mount_point>",
	Short: "Mount one or more remote shares locally",
	Long: `Mount a single host:

  wormhole mount 192.0.2.10:4433 /mnt/peer --fingerprint <hex>

or several hosts under one virtual root:

  wormhole mount /mnt/peers --peer 192.0.2.10:4433/<hex> --peer 192.0.2.11:4433/<hex>`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(mountPeers) > 0 {
			if len(args) != 1 {
				return fmt.Errorf("multi-host mounts take only a mount point. Run `wormhole mount --help` for more info")
			}
			mountPoint, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			return runMountMulti(cmd.Context(), mountPoint)
		}
		if len(args) != 2 {
			return fmt.Errorf("single-host mounts take host:port and a mount point. Run `wormhole mount --help` for more info")
		}
		mountPoint, err := filepath.Abs(args[1])
		if err != nil {
			return err
		}
		return runMountSingle(cmd.Context(), args[0], mountPoint)
	},
}

func init() {
	mountCmd.Flags().StringVar(&mountFingerprint, "fingerprint", "", "Pinned host certificate fingerprint (hex)")
	mountCmd.Flags().StringArrayVar(&mountPeers, "peer", nil, "Multi-host peer as host:port/fingerprint; repeatable")
}

func transportConfig() transport.Config {
	return transport.Config{
		Keepalive:   time.Duration(config.Transport.KeepaliveSecs) * time.Second,
		IdleTimeout: time.Duration(config.Transport.IdleTimeoutSecs) * time.Second,
		MaxStreams:  int64(config.Transport.MaxStreams),
	}
}

// mountStack is the shared cache/bridge/sync plumbing of both mount
// variants.
type mountStack struct {
	bridge    *bridge.Bridge
	cache     *hybrid.Cache
	diskCache *disk.Cache
	collector *gc.Collector
	governor  *governor.Governor
	sync      *syncengine.Engine
}

func buildMountStack() (*mountStack, error) {
	cacheDir := string(config.Cache.Dir)
	if cacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("resolving cache dir: %w", err)
		}
		cacheDir = filepath.Join(base, "wormhole")
	}

	diskCache, err := disk.New(cacheDir, config.Cache.DiskCacheMaxMb<<20, clock.RealClock{})
	if err != nil {
		return nil, err
	}
	ramCache := ram.NewCache(uint64(config.Cache.RamCacheMaxMb) << 20)

	return &mountStack{
		bridge:    bridge.New(bridge.DefaultQueueSize, bridge.DefaultSubmitTimeout),
		cache:     hybrid.New(ramCache, diskCache, config.Cache.WritebackWorkers),
		diskCache: diskCache,
		collector: gc.New(diskCache,
			time.Duration(config.Cache.GcIntervalSecs)*time.Second,
			float64(config.Cache.GcHighWatermark)/100,
			float64(config.Cache.GcLowWatermark)/100),
		governor: governor.NewWithConfig(uint64(config.Mount.PrefetchWindow), governor.DefaultSequentialThreshold),
		sync: syncengine.New(clock.RealClock{},
			time.Duration(config.Sync.IntervalMs)*time.Millisecond,
			config.Sync.BatchSize,
			config.Sync.ForceSyncThreshold),
	}, nil
}

// runBackground starts the async side: bridge serving, GC, and the
// dirty-chunk writeback loop.
func (st *mountStack) runBackground(ctx context.Context, handler bridge.Handler, router fs.Router) {
	go st.bridge.Serve(ctx, handler)
	go st.collector.Run(ctx)
	go st.sync.Run(ctx, func(ctx context.Context, id core.ChunkID, data []byte, token lock.Token) error {
		share, local, err := router.Resolve(id.Inode)
		if err != nil {
			return err
		}
		return st.bridge.Write(share, core.NewChunkID(local, id.Index), data, [16]byte(token))
	})
}

func (st *mountStack) mountAndJoin(ctx context.Context, mountPoint string, router fs.Router, readOnly bool) error {
	server, err := fs.NewServer(fs.ServerConfig{
		Bridge:    st.bridge,
		Cache:     st.cache,
		Governor:  st.governor,
		Sync:      st.sync,
		Router:    router,
		ReadOnly:  readOnly,
		AttrTTL:   time.Duration(config.Mount.AttrCacheTtlMs) * time.Millisecond,
		DirTTL:    time.Duration(config.Mount.DirCacheTtlMs) * time.Millisecond,
		ChunkSize: core.ChunkSize,
		Uid:       uint32(os.Getuid()),
		Gid:       uint32(os.Getgid()),
	})
	if err != nil {
		return err
	}

	mfs, err := fuse.Mount(mountPoint, server, &fuse.MountConfig{
		FSName:      "wormhole",
		ReadOnly:    readOnly,
		ErrorLogger: logger.NewStdLogger(),
	})
	if err != nil {
		return fmt.Errorf("mounting at %s: %w", mountPoint, err)
	}
	logger.Infof("mount: filesystem mounted at %s", mountPoint)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		if err := fuse.Unmount(mountPoint); err != nil {
			logger.Warnf("mount: unmounting %s: %v", mountPoint, err)
		}
	}()
	return mfs.Join(context.Background())
}

func runMountSingle(ctx context.Context, addr, mountPoint string) error {
	var pin transport.Fingerprint
	if !config.Transport.DevInsecure {
		if mountFingerprint == "" {
			return fmt.Errorf("--fingerprint is required (or --dev-insecure for development)")
		}
		var err error
		pin, err = transport.ParseFingerprint(mountFingerprint)
		if err != nil {
			return err
		}
	}

	conn, err := client.Connect(ctx, addr, pin, config.Transport.DevInsecure, transportConfig(), newClientID())
	if err != nil {
		return err
	}
	defer conn.Close()

	st, err := buildMountStack()
	if err != nil {
		return err
	}

	bgCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	st.runBackground(bgCtx, client.NewSingleHostHandler(conn), fs.SingleShareRouter{})
	defer st.bridge.Shutdown()

	readOnly := config.Mount.ReadOnly || !conn.HasCapability(wire.CapWrite)
	return st.mountAndJoin(ctx, mountPoint, fs.SingleShareRouter{}, readOnly)
}

func runMountMulti(ctx context.Context, mountPoint string) error {
	manager := client.NewManager(transportConfig(), config.Transport.DevInsecure)
	defer manager.Close()

	for i, peer := range mountPeers {
		addr, fpHex, ok := strings.Cut(peer, "/")
		if !ok && !config.Transport.DevInsecure {
			return fmt.Errorf("peer %q must be host:port/fingerprint", peer)
		}
		var pin transport.Fingerprint
		if fpHex != "" {
			var err error
			pin, err = transport.ParseFingerprint(fpHex)
			if err != nil {
				return fmt.Errorf("peer %q: %w", peer, err)
			}
		}
		if err := manager.AddHost(ctx, fmt.Sprintf("peer-%d", i+1), addr, pin); err != nil {
			return fmt.Errorf("connecting to %s: %w", addr, err)
		}
	}

	st, err := buildMountStack()
	if err != nil {
		return err
	}
	router := fs.MultiShareRouter{Manager: manager}

	bgCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	handler := client.NewHandler(manager.ConnectionForShare)
	st.runBackground(bgCtx, handler, router)
	defer st.bridge.Shutdown()

	if secs := config.Mount.HealthCheckSecs; secs > 0 {
		go manager.RunHealthChecks(bgCtx, time.Duration(secs)*time.Second)
	}

	return st.mountAndJoin(ctx, mountPoint, router, config.Mount.ReadOnly)
}

func newClientID() [16]byte {
	var id [16]byte
	if _, err := rand.Read(id[:]); err != nil {
		panic(err)
	}
	return id
}
