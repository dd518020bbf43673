// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package protocol implements the length-prefixed binary frame format used
// between sender and receiver over the tunneled TCP socket.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Kind identifies the payload carried by a frame.
type Kind uint8

// Frame kinds. Values are part of the wire format and must not change.
const (
	KindMessage  Kind = 0x01
	KindFileInfo Kind = 0x02
	KindFileData Kind = 0x03
	KindFileEnd  Kind = 0x04
	KindPing     Kind = 0x05
	KindPong     Kind = 0x06
	KindError    Kind = 0x07
	KindChecksum Kind = 0x08
)

// String returns a human-readable frame kind name, mostly for logging.
func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "MESSAGE"
	case KindFileInfo:
		return "FILE_INFO"
	case KindFileData:
		return "FILE_DATA"
	case KindFileEnd:
		return "FILE_END"
	case KindPing:
		return "PING"
	case KindPong:
		return "PONG"
	case KindError:
		return "ERROR"
	case KindChecksum:
		return "CHECKSUM"
	default:
		return fmt.Sprintf("UNKNOWN_KIND_%d", uint8(k))
	}
}

// MaxPayloadSize is the largest payload a frame may carry. Enforced before
// any allocation is made for the body, so an adversarial length header
// never causes an oversized alloc.
const MaxPayloadSize = 16 * 1024 * 1024

// frameHeaderSize is the on-wire size of kind + length: 1B + 4B.
const frameHeaderSize = 5

// HeaderSize is the exported form of frameHeaderSize, for callers (like
// streamio) that read the header and body as two separate operations.
const HeaderSize = frameHeaderSize

// Recognized MESSAGE control strings.
const (
	MsgHello = "HELLO"
	MsgReady = "READY"
	MsgAck   = "ACK"
)

// Errors surfaced by the codec. The engine layers richer transfer.Error
// kinds on top of these.
var (
	ErrOversizedFrame = errors.New("protocol: payload exceeds max frame size")
	ErrUnknownKind    = errors.New("protocol: unknown frame kind")
)

// EncodeHeader builds the 5-byte kind+length header for a frame. Callers
// that need to control how the payload itself is written (streamio, to
// apply stall-detection deadlines) use this directly instead of
// EncodeFrame.
func EncodeHeader(kind Kind, payloadLen int) ([]byte, error) {
	if payloadLen > MaxPayloadSize {
		return nil, fmt.Errorf("encoding frame %s: %w", kind, ErrOversizedFrame)
	}
	header := make([]byte, frameHeaderSize)
	header[0] = byte(kind)
	binary.BigEndian.PutUint32(header[1:], uint32(payloadLen))
	return header, nil
}

// DecodeHeader validates and parses a 5-byte frame header. The payload
// length is checked against MaxPayloadSize here, before any caller
// allocates a buffer to hold the body.
func DecodeHeader(header []byte) (Kind, uint32, error) {
	kind := Kind(header[0])
	payloadLen := binary.BigEndian.Uint32(header[1:])

	if payloadLen > MaxPayloadSize {
		return 0, 0, fmt.Errorf("decoding frame %s: %w", kind, ErrOversizedFrame)
	}
	if !validKind(kind) {
		return 0, 0, fmt.Errorf("decoding frame: %w (0x%02x)", ErrUnknownKind, byte(kind))
	}
	return kind, payloadLen, nil
}

// EncodeFrame writes kind and payload as a single length-prefixed frame.
// It performs no validation of payload content — that is the engine's job.
func EncodeFrame(w io.Writer, kind Kind, payload []byte) error {
	header, err := EncodeHeader(kind, len(payload))
	if err != nil {
		return err
	}
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("writing frame payload: %w", err)
	}
	return nil
}

// DecodeFrame reads exactly one frame from r: 5 header bytes, then exactly
// payload_len body bytes. The length is validated against MaxPayloadSize
// before the body buffer is allocated.
func DecodeFrame(r io.Reader) (Kind, []byte, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, fmt.Errorf("reading frame header: %w", err)
	}

	kind, payloadLen, err := DecodeHeader(header)
	if err != nil {
		return 0, nil, err
	}
	if payloadLen == 0 {
		return kind, nil, nil
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("reading frame payload: %w", err)
	}
	return kind, payload, nil
}

func validKind(k Kind) bool {
	switch k {
	case KindMessage, KindFileInfo, KindFileData, KindFileEnd, KindPing, KindPong, KindError, KindChecksum:
		return true
	default:
		return false
	}
}

// FileInfo describes the file being transferred. It is carried as the
// FILE_INFO frame's JSON payload.
type FileInfo struct {
	Name  string
	Size  uint64
	Mtime *uint64 // optional, unix seconds
}

// fileInfoWire is the on-wire JSON shape; Mtime is explicitly nullable.
type fileInfoWire struct {
	Name  string  `json:"name"`
	Size  uint64  `json:"size"`
	Mtime *uint64 `json:"mtime"`
}

// EncodeFileInfo marshals a FileInfo to its JSON wire form.
func EncodeFileInfo(fi FileInfo) ([]byte, error) {
	wire := fileInfoWire{Name: fi.Name, Size: fi.Size, Mtime: fi.Mtime}
	b, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encoding file info: %w", err)
	}
	return b, nil
}

// DecodeFileInfo unmarshals the JSON payload of a FILE_INFO frame.
func DecodeFileInfo(payload []byte) (FileInfo, error) {
	var wire fileInfoWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return FileInfo{}, fmt.Errorf("decoding file info: %w", err)
	}
	return FileInfo{Name: wire.Name, Size: wire.Size, Mtime: wire.Mtime}, nil
}
