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

package client

import (
	"github.com/wormholefs/wormhole/internal/bridge"
	"github.com/wormholefs/wormhole/internal/wire"
)

// WireError converts a wire Error into the bridge's typed error, which
// the kernel adapter later maps to an errno.
func WireError(e *wire.Error) *bridge.Error {
	kind := bridge.KindIoError
	switch e.Code {
	case wire.CodeFileNotFound:
		kind = bridge.KindNotFound
	case wire.CodeNotADirectory:
		kind = bridge.KindNotDir
	case wire.CodePathTraversal, wire.CodePermissionDenied:
		kind = bridge.KindPermissionDenied
	case wire.CodeLockRequired:
		kind = bridge.KindLockRequired
	case wire.CodeLockConflict:
		kind = bridge.KindLockConflict
	case wire.CodeReadOnly:
		kind = bridge.KindReadOnly
	case wire.CodeChecksumMismatch, wire.CodeIoError, wire.CodeProtocolError:
		kind = bridge.KindIoError
	case wire.CodeSessionExpired:
		kind = bridge.KindShutdown
	case wire.CodeNotImplemented:
		kind = bridge.KindIoError
	}
	return &bridge.Error{Kind: kind, Msg: e.Message}
}
