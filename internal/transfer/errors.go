// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package transfer implements the sender and receiver state machines
// that drive a file across one connection, querying internal/buffer
// for chunk sizing and publishing internal/progress events as they go.
package transfer

import "fmt"

// Kind is the machine-readable error taxonomy the engine surfaces in
// TaskError events and ERROR frames.
type Kind int

const (
	KindIo Kind = iota
	KindProtocol
	KindCancelled
	KindConfig
	KindPeer
)

func (k Kind) String() string {
	switch k {
	case KindIo:
		return "Io"
	case KindProtocol:
		return "Protocol"
	case KindCancelled:
		return "Cancelled"
	case KindConfig:
		return "Config"
	case KindPeer:
		return "Peer"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with a stable Kind, the way the
// engine's TaskError events and best-effort ERROR frames need to
// classify failures without callers parsing message text.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transfer: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("transfer: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}
