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

package core

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// MaxNameLen bounds a single path component.
const MaxNameLen = 255

var (
	ErrEmptyName     = errors.New("empty name")
	ErrNameTooLong   = errors.New("name too long")
	ErrIllegalName   = errors.New("illegal character in name")
	ErrPathTraversal = errors.New("path escapes share root")
)

// ValidateName accepts a single directory entry name. Rejected: empty
// names, separators, NUL, "." and "..", and names over MaxNameLen bytes.
func ValidateName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > MaxNameLen {
		return ErrNameTooLong
	}
	if name == "." || name == ".." {
		return ErrPathTraversal
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return ErrIllegalName
	}
	return nil
}

// SafeJoin joins a validated child name onto dir and confirms the result
// stays lexically inside root.
func SafeJoin(root, dir, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	joined := filepath.Join(dir, name)
	if !within(root, joined) {
		return "", ErrPathTraversal
	}
	return joined, nil
}

// VerifyCanonical resolves path fully (following symlinks) and rejects it
// when the canonical result leaves the canonical share root. Callers run
// this after confirming the file exists; it is what blocks symlink escape.
func VerifyCanonical(root, path string) error {
	canonRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return fmt.Errorf("canonicalizing share root: %w", err)
	}
	canon, err := filepath.EvalSymlinks(path)
	if err != nil {
		return fmt.Errorf("canonicalizing %q: %w", path, err)
	}
	if !within(canonRoot, canon) {
		return ErrPathTraversal
	}
	return nil
}

// within reports whether path equals root or sits beneath it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// MinJoinCodeLen is the shortest join code the signal boundary accepts.
const MinJoinCodeLen = 6

var ErrInvalidJoinCode = errors.New("invalid join code")

// NormalizeJoinCode uppercases a rendezvous join code and rejects codes
// that are too short or carry characters outside [A-Z0-9-].
func NormalizeJoinCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) < MinJoinCodeLen {
		return "", ErrInvalidJoinCode
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '-' {
			return "", ErrInvalidJoinCode
		}
	}
	return code, nil
}
