// Copyright 2026 The Armature Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/armature-robotics/armature/lib/codec"
)

// Frame type constants. Each frame is a 6-byte header (1 byte type +
// 1 byte flags + 4 byte big-endian payload length) followed by the
// payload.
const (
	// FrameMessage carries one CBOR-encoded protocol message.
	FrameMessage byte = 0x01

	// FrameClose marks a half-close: the sender will write no further
	// frames on this connection but keeps reading. Carries no
	// payload.
	FrameClose byte = 0x02
)

// Frame flag bits.
const (
	// FlagCompressed marks a zstd-compressed payload. Set by
	// WriteMessage for payloads that exceed compressThreshold and
	// actually shrink under compression.
	FlagCompressed byte = 0x01
)

// frameHeaderLength is the fixed size of a frame header.
const frameHeaderLength = 6

// maxPayloadLength bounds a single frame payload. 16 MB is generous:
// the largest realistic payloads are streamed trajectory segments in
// the hundreds of kilobytes.
const maxPayloadLength = 16 * 1024 * 1024

// compressThreshold is the payload size above which WriteMessage
// attempts zstd compression. Session-channel requests are far smaller
// than this; only bulk streamed parameters cross it.
const compressThreshold = 1024

// zstdEncoder and zstdDecoder are reused across calls; both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("wire: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("wire: zstd decoder initialization failed: " + err.Error())
	}
}

// Hello is the first message on every connection, declaring which
// protocol channel the connection carries.
type Hello struct {
	// Channel is "session", "watch", or "write".
	Channel string `cbor:"channel"`
}

// Channel kind constants for Hello.
const (
	ChannelSession = "session"
	ChannelWatch   = "watch"
	ChannelWrite   = "write"
)

// WriteFrame writes one raw frame to w.
func WriteFrame(w io.Writer, frameType byte, flags byte, payload []byte) error {
	if len(payload) > maxPayloadLength {
		return fmt.Errorf("wire: payload length %d exceeds maximum %d", len(payload), maxPayloadLength)
	}
	var header [frameHeaderLength]byte
	header[0] = frameType
	header[1] = flags
	binary.BigEndian.PutUint32(header[2:6], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("wire: write frame header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("wire: write frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads one raw frame from r. The returned payload is
// decompressed if the frame was compressed.
func ReadFrame(r io.Reader) (frameType byte, payload []byte, err error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		// Pass the raw error through unwrapped: callers classify
		// io.EOF and closed-connection errors.
		return 0, nil, err
	}
	frameType = header[0]
	flags := header[1]
	payloadLength := binary.BigEndian.Uint32(header[2:6])
	if payloadLength > maxPayloadLength {
		return 0, nil, fmt.Errorf("wire: payload length %d exceeds maximum %d", payloadLength, maxPayloadLength)
	}
	if payloadLength > 0 {
		payload = make([]byte, payloadLength)
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, fmt.Errorf("wire: read frame payload: %w", err)
		}
	}
	if flags&FlagCompressed != 0 {
		payload, err = zstdDecoder.DecodeAll(payload, nil)
		if err != nil {
			return 0, nil, fmt.Errorf("wire: decompress frame payload: %w", err)
		}
	}
	return frameType, payload, nil
}

// WriteMessage CBOR-encodes v and writes it as a message frame,
// compressing the payload when it is large enough to benefit.
func WriteMessage(w io.Writer, v any) error {
	payload, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: encode message: %w", err)
	}
	var flags byte
	if len(payload) > compressThreshold {
		compressed := zstdEncoder.EncodeAll(payload, nil)
		if len(compressed) < len(payload) {
			payload = compressed
			flags |= FlagCompressed
		}
	}
	return WriteFrame(w, FrameMessage, flags, payload)
}

// ReadMessage reads one frame from r and CBOR-decodes it into v.
// A close frame is reported as io.EOF: the peer has finished sending.
func ReadMessage(r io.Reader, v any) error {
	frameType, payload, err := ReadFrame(r)
	if err != nil {
		return err
	}
	switch frameType {
	case FrameMessage:
		if err := codec.Unmarshal(payload, v); err != nil {
			return fmt.Errorf("wire: decode message: %w", err)
		}
		return nil
	case FrameClose:
		return io.EOF
	default:
		return fmt.Errorf("wire: unknown frame type 0x%02x", frameType)
	}
}

// WriteClose writes a half-close frame to w.
func WriteClose(w io.Writer) error {
	return WriteFrame(w, FrameClose, 0, nil)
}
