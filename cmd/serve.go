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
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wormholefs/wormhole/internal/clock"
	"github.com/wormholefs/wormhole/internal/core"
	"github.com/wormholefs/wormhole/internal/host"
	"github.com/wormholefs/wormhole/internal/logger"
	"github.com/wormholefs/wormhole/internal/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve <directory>",
	Short: "Publish a directory to remote peers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("canonicalizing share root: %w", err)
		}
		info, err := os.Stat(root)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", root)
		}
		return runServe(cmd.Context(), root)
	},
}

func runServe(ctx context.Context, root string) error {
	cert, fingerprint, err := transport.GenerateCert()
	if err != nil {
		return fmt.Errorf("generating host certificate: %w", err)
	}

	listener, err := transport.Listen(config.Serve.Listen, cert, transport.Config{
		Keepalive:   time.Duration(config.Transport.KeepaliveSecs) * time.Second,
		IdleTimeout: time.Duration(config.Transport.IdleTimeoutSecs) * time.Second,
		MaxStreams:  int64(config.Transport.MaxStreams),
	})
	if err != nil {
		return err
	}
	defer listener.Close()

	name := config.Serve.Name
	if name == "" {
		name = filepath.Base(root)
	}

	server := host.NewServer(host.Config{
		HostName:   hostname(),
		Writable:   config.Serve.Writable,
		AllowLocks: config.Serve.AllowLocks,
		SessionMax: time.Duration(config.Serve.SessionMaxHours) * time.Hour,
	}, clock.RealClock{})

	var shareID core.ShareID
	if _, err := rand.Read(shareID[:]); err != nil {
		return fmt.Errorf("generating share id: %w", err)
	}
	err = server.AddShare(core.Share{
		ID:       shareID,
		Name:     name,
		Root:     root,
		Writable: config.Serve.Writable,
	})
	if err != nil {
		return err
	}

	// The fingerprint travels out-of-band; peers pin it when mounting.
	fmt.Printf("Serving %s on %s\n", root, listener.Addr())
	fmt.Printf("Certificate fingerprint: %s\n", fingerprint)
	logger.Infof("serve: share %q (%s) listening on %s", name, root, listener.Addr())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Serve(ctx, listener)
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "wormhole-host"
	}
	return h
}
