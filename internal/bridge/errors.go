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

package bridge

import (
	"fmt"
	"syscall"
)

// ErrKind classifies a failed filesystem request.
type ErrKind int

const (
	KindInternal ErrKind = iota
	KindNotFound
	KindPermissionDenied
	KindIoError
	KindTimeout
	KindShutdown
	KindLockConflict
	KindLockRequired
	KindReadOnly
	KindNotDir
)

// Error is the bridge's typed failure. The kernel adapter turns it into
// an errno via Errno.
type Error struct {
	Kind ErrKind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Msg)
}

func (k ErrKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindPermissionDenied:
		return "permission denied"
	case KindIoError:
		return "io error"
	case KindTimeout:
		return "timeout"
	case KindShutdown:
		return "shutdown"
	case KindLockConflict:
		return "lock conflict"
	case KindLockRequired:
		return "lock required"
	case KindReadOnly:
		return "read-only"
	case KindNotDir:
		return "not a directory"
	default:
		return "internal error"
	}
}

// Errno maps the failure to the errno the kernel reply carries.
func (e *Error) Errno() syscall.Errno {
	switch e.Kind {
	case KindNotFound:
		return syscall.ENOENT
	case KindPermissionDenied:
		return syscall.EACCES
	case KindIoError:
		return syscall.EIO
	case KindTimeout:
		return syscall.ETIMEDOUT
	case KindShutdown:
		return syscall.ESHUTDOWN
	case KindLockConflict:
		return syscall.EAGAIN
	case KindLockRequired:
		return syscall.ENOLCK
	case KindReadOnly:
		return syscall.EROFS
	case KindNotDir:
		return syscall.ENOTDIR
	default:
		return syscall.EIO
	}
}

// NewError creates a typed error.
func NewError(kind ErrKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
