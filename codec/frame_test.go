// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	in := testStruct{Name: "alice", Value: 7}
	frame, err := EncodeFrame(in)
	require.NoError(t, err)
	require.Len(t, frame, FrameSize)

	var out testStruct
	require.NoError(t, DecodeFrame(frame, &out))
	require.Equal(t, in, out)
}

func TestDecodeFrameBlank(t *testing.T) {
	blank := make([]byte, FrameSize)
	for i := range blank {
		blank[i] = ' '
	}
	var out testStruct
	require.ErrorIs(t, DecodeFrame(blank, &out), ErrDataNotPresent)
}

func TestDecodeFrameEmpty(t *testing.T) {
	var out testStruct
	require.ErrorIs(t, DecodeFrame(nil, &out), ErrDataNotPresent)
}

func TestDecodeFrameMalformed(t *testing.T) {
	frame := make([]byte, FrameSize)
	copy(frame, []byte(`{not json`))
	for i := 9; i < FrameSize; i++ {
		frame[i] = ' '
	}
	var out testStruct
	require.ErrorIs(t, DecodeFrame(frame, &out), ErrDataNotPresent)
}

func TestEncodeFrameTooLarge(t *testing.T) {
	big := make([]byte, FrameSize*2)
	for i := range big {
		big[i] = 'a'
	}
	_, err := EncodeFrame(string(big))
	require.Error(t, err)
}
