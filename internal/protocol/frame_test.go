// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestFrame_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		payload []byte
	}{
		{"message", KindMessage, []byte(MsgHello)},
		{"empty ping", KindPing, nil},
		{"file data", KindFileData, bytes.Repeat([]byte{0xAB}, 4096)},
		{"error", KindError, []byte("cancelled")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := EncodeFrame(&buf, tt.kind, tt.payload); err != nil {
				t.Fatalf("EncodeFrame: %v", err)
			}

			kind, payload, err := DecodeFrame(&buf)
			if err != nil {
				t.Fatalf("DecodeFrame: %v", err)
			}
			if kind != tt.kind {
				t.Errorf("expected kind %s, got %s", tt.kind, kind)
			}
			if !bytes.Equal(payload, tt.payload) {
				t.Errorf("expected payload %v, got %v", tt.payload, payload)
			}
		})
	}
}

func TestDecodeFrame_OversizedLengthRejectedWithoutAllocating(t *testing.T) {
	// Header claims a payload larger than MaxPayloadSize; DecodeFrame must
	// reject based on the header alone, never touching the reader body.
	var buf bytes.Buffer
	buf.WriteByte(byte(KindFileData))
	buf.Write([]byte{0x80, 0x00, 0x00, 0x00}) // 2^31, far past MaxPayloadSize

	_, _, err := DecodeFrame(&buf)
	if !errors.Is(err, ErrOversizedFrame) {
		t.Fatalf("expected ErrOversizedFrame, got %v", err)
	}
}

func TestDecodeFrame_UnknownKind(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(0xFE)
	buf.Write([]byte{0, 0, 0, 0})

	_, _, err := DecodeFrame(&buf)
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestDecodeFrame_ShortHeader(t *testing.T) {
	_, _, err := DecodeFrame(bytes.NewReader([]byte{0x01, 0x00}))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected unexpected EOF, got %v", err)
	}
}

func TestDecodeFrame_ShortBody(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(KindFileData))
	buf.Write([]byte{0, 0, 0, 10}) // claims 10 bytes
	buf.Write([]byte{1, 2, 3})     // only provides 3

	_, _, err := DecodeFrame(&buf)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected unexpected EOF, got %v", err)
	}
}

func TestFileInfo_RoundTrip(t *testing.T) {
	mtime := uint64(1700000000)
	fi := FileInfo{Name: "report.tar", Size: 123456, Mtime: &mtime}

	payload, err := EncodeFileInfo(fi)
	if err != nil {
		t.Fatalf("EncodeFileInfo: %v", err)
	}

	got, err := DecodeFileInfo(payload)
	if err != nil {
		t.Fatalf("DecodeFileInfo: %v", err)
	}
	if got.Name != fi.Name || got.Size != fi.Size || *got.Mtime != *fi.Mtime {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, fi)
	}
}

func TestFileInfo_NilMtime(t *testing.T) {
	fi := FileInfo{Name: "empty", Size: 0}
	payload, err := EncodeFileInfo(fi)
	if err != nil {
		t.Fatalf("EncodeFileInfo: %v", err)
	}
	got, err := DecodeFileInfo(payload)
	if err != nil {
		t.Fatalf("DecodeFileInfo: %v", err)
	}
	if got.Mtime != nil {
		t.Errorf("expected nil mtime, got %v", *got.Mtime)
	}
}
