// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import (
	"bytes"
	"errors"
	"fmt"
)

// FrameSize is the fixed wire size of every replica/controller record, per
// the original simulator's `json.dumps(...).rjust(1024)` convention: every
// JSON record is right-padded with ASCII spaces to exactly this many bytes
// before it goes on the wire, and trimmed back on receipt.
const FrameSize = 1024

// ErrDataNotPresent is returned when a frame decodes to nothing usable: an
// empty datagram, or a frame that is entirely whitespace. Callers should
// treat this as the spec's DataNotPresent condition — log and drop, never
// fatal.
var ErrDataNotPresent = errors.New("codec: no data present in frame")

// EncodeFrame marshals v with Codec and right-pads the result with spaces to
// FrameSize bytes. It returns an error if the marshaled JSON exceeds
// FrameSize, mirroring the original's `assert len(message) <= 1024`.
func EncodeFrame(v interface{}) ([]byte, error) {
	body, err := Codec.Marshal(CurrentVersion, v)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal frame: %w", err)
	}
	if len(body) > FrameSize {
		return nil, fmt.Errorf("codec: frame body %d bytes exceeds frame size %d", len(body), FrameSize)
	}
	frame := make([]byte, FrameSize)
	copy(frame, body)
	for i := len(body); i < FrameSize; i++ {
		frame[i] = ' '
	}
	return frame, nil
}

// DecodeFrame trims the trailing padding from a raw frame and unmarshals the
// remainder into v. An all-blank or empty frame yields ErrDataNotPresent;
// malformed JSON yields the unmarshal error wrapped in ErrDataNotPresent.
func DecodeFrame(frame []byte, v interface{}) error {
	trimmed := bytes.TrimRight(frame, " \x00")
	trimmed = bytes.TrimSpace(trimmed)
	if len(trimmed) == 0 {
		return ErrDataNotPresent
	}
	if _, err := Codec.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDataNotPresent, err)
	}
	return nil
}
