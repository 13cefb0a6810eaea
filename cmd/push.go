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
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/wormholefs/wormhole/internal/bufferpool"
	"github.com/wormholefs/wormhole/internal/bulk"
	"github.com/wormholefs/wormhole/internal/client"
	"github.com/wormholefs/wormhole/internal/clock"
	"github.com/wormholefs/wormhole/internal/compress"
	"github.com/wormholefs/wormhole/internal/core"
	"github.com/wormholefs/wormhole/internal/dedup"
	"github.com/wormholefs/wormhole/internal/logger"
	"github.com/wormholefs/wormhole/internal/ratelimit"
	"github.com/wormholefs/wormhole/internal/transport"
	"github.com/wormholefs/wormhole/internal/wire"
)

var (
	pushFingerprint string
	pushRemoteName  string
	pushLimitMiBps  int
)

var pushCmd = &cobra.Command{
	Use:   "push <file> <host:port>",
	Short: "Upload a file to a host share using bulk transfer",
	Long: `Push a local file to a writable share, deduplicating chunks the
host already received and compressing the ones worth compressing:

  wormhole push ./dataset.tar 192.0.2.10:4433 --fingerprint <hex>`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		return runPush(cmd.Context(), path, args[1])
	},
}

func init() {
	pushCmd.Flags().StringVar(&pushFingerprint, "fingerprint", "", "Pinned host certificate fingerprint (hex)")
	pushCmd.Flags().StringVar(&pushRemoteName, "remote-name", "", "Name of the remote file. Defaults to the local base name.")
	pushCmd.Flags().IntVar(&pushLimitMiBps, "bandwidth-limit-mib", 0, "Upload bandwidth cap in MiB/s. 0 disables.")
}

func runPush(ctx context.Context, path, addr string) error {
	var pin transport.Fingerprint
	if !config.Transport.DevInsecure {
		if pushFingerprint == "" {
			return fmt.Errorf("--fingerprint is required (or --dev-insecure for development)")
		}
		var err error
		pin, err = transport.ParseFingerprint(pushFingerprint)
		if err != nil {
			return err
		}
	}

	conn, err := client.Connect(ctx, addr, pin, config.Transport.DevInsecure, transportConfig(), newClientID())
	if err != nil {
		return err
	}
	defer conn.Close()
	if !conn.HasCapability(wire.CapWrite) {
		return fmt.Errorf("host %s does not accept writes", addr)
	}

	name := pushRemoteName
	if name == "" {
		name = filepath.Base(path)
	}

	inode, err := ensureRemoteFile(ctx, conn, name)
	if err != nil {
		return err
	}
	token, err := acquireExclusive(ctx, conn, inode)
	if err != nil {
		return err
	}
	defer func() {
		if _, err := conn.Request(ctx, &wire.ReleaseLock{Token: token}); err != nil {
			logger.Warnf("push: releasing lock: %v", err)
		}
	}()

	compressor, err := compress.New()
	if err != nil {
		return err
	}
	var throttle ratelimit.Throttle
	if pushLimitMiBps > 0 {
		throttle = ratelimit.NewThrottle(float64(pushLimitMiBps)*(1<<20), core.BulkChunkSize)
	}

	coordinator := &bulk.Coordinator{
		Pool:       conn.Pool(),
		Dedup:      dedup.New(config.Cache.DedupIndexEntries),
		Compressor: compressor,
		Buffers:    bufferpool.NewBulkPool(),
		Clock:      clock.RealClock{},
		Throttle:   throttle,
		ChunkSize:  core.BulkChunkSize,
		LockToken:  token,
	}

	manifest, progress, err := coordinator.Transfer(ctx, path, inode)
	if err != nil {
		return err
	}

	// The upload only ever extends; trim the remote file to the exact
	// manifest size in case it was longer before.
	size := manifest.TotalSize
	if _, err := request[*wire.SetAttrResponse](ctx, conn, &wire.SetAttr{Inode: inode, Size: &size}); err != nil {
		return err
	}

	s := progress.Snapshot()
	fmt.Printf("Pushed %s (%d bytes, %d chunks) as %q\n", path, s.TotalBytes, s.TotalChunks, name)
	fmt.Printf("  dedup saved %d bytes, compression saved %d bytes, %.1f MiB/s\n",
		s.DedupSaved, s.CompressSaved, progress.Speed()/(1<<20))
	if s.NonFatalErrors > 0 {
		return fmt.Errorf("%d chunks failed to transfer", s.NonFatalErrors)
	}
	return nil
}

// ensureRemoteFile looks the target up under the share root, creating it
// when absent.
func ensureRemoteFile(ctx context.Context, conn *client.Connection, name string) (core.Inode, error) {
	reply, err := conn.Request(ctx, &wire.Lookup{Parent: core.RootInode, Name: name})
	if err != nil {
		return 0, err
	}
	switch m := reply.(type) {
	case *wire.LookupResponse:
		if m.Attr.Kind != core.KindFile {
			return 0, fmt.Errorf("remote %q exists and is a %v", name, m.Attr.Kind)
		}
		return m.Attr.Inode, nil
	case *wire.Error:
		if m.Code != wire.CodeFileNotFound {
			return 0, client.WireError(m)
		}
	default:
		return 0, fmt.Errorf("unexpected %v reply to Lookup", reply.Kind())
	}

	created, err := request[*wire.CreateFileResponse](ctx, conn, &wire.CreateFile{Parent: core.RootInode, Name: name, Mode: 0o644})
	if err != nil {
		return 0, err
	}
	return created.Attr.Inode, nil
}

func acquireExclusive(ctx context.Context, conn *client.Connection, inode core.Inode) ([16]byte, error) {
	grant, err := request[*wire.AcquireLockResponse](ctx, conn, &wire.AcquireLock{
		Inode:     inode,
		Exclusive: true,
		TTLMillis: uint64(5 * time.Minute / time.Millisecond),
	})
	if err != nil {
		return [16]byte{}, err
	}
	if !grant.Granted {
		return [16]byte{}, fmt.Errorf("file is locked; retry in %dms", grant.RetryAfterMillis)
	}
	return grant.Token, nil
}

// request sends req and asserts the typed response, turning wire errors
// into Go errors.
func request[T wire.Message](ctx context.Context, conn *client.Connection, req wire.Message) (T, error) {
	var zero T
	reply, err := conn.Request(ctx, req)
	if err != nil {
		return zero, err
	}
	if werr, ok := reply.(*wire.Error); ok {
		return zero, client.WireError(werr)
	}
	typed, ok := reply.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected %v reply", reply.Kind())
	}
	return typed, nil
}
