// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// appendVarint encodes v as a base-128 varint.
func appendVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

// appendTag encodes a field tag.
func appendTag(buf []byte, fieldNum, wireType int) []byte {
	return appendVarint(buf, uint64(fieldNum)<<3|uint64(wireType))
}

// appendString encodes a length-delimited string field.
func appendString(buf []byte, fieldNum int, s string) []byte {
	buf = appendTag(buf, fieldNum, TypeBytes)
	buf = appendVarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func TestReadVarint(t *testing.T) {
	tests := []struct {
		name  string
		buf   []byte
		want  uint64
		next  int
	}{
		{"single byte", []byte{0x05}, 5, 1},
		{"two bytes", []byte{0xac, 0x02}, 300, 2},
		{"zero", []byte{0x00}, 0, 1},
		{"max single", []byte{0x7f}, 127, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, next, err := ReadVarint(tt.buf, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
			assert.Equal(t, tt.next, next)
		})
	}
}

func TestReadVarint_Truncated(t *testing.T) {
	// Continuation bit set on the last byte
	_, _, err := ReadVarint([]byte{0x80, 0x80}, 0)
	assert.ErrorIs(t, err, ErrTruncated)

	_, _, err = ReadVarint([]byte{}, 0)
	assert.ErrorIs(t, err, ErrTruncated)

	_, _, err = ReadVarint([]byte{0x01}, 1)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestSkipField(t *testing.T) {
	var buf []byte
	buf = appendVarint(buf, 300)

	next, err := SkipField(buf, 0, TypeVarint)
	require.NoError(t, err)
	assert.Equal(t, 2, next)

	fixed64 := make([]byte, 8)
	binary.LittleEndian.PutUint64(fixed64, 42)
	next, err = SkipField(fixed64, 0, Type64Bit)
	require.NoError(t, err)
	assert.Equal(t, 8, next)

	next, err = SkipField([]byte{0, 0, 0, 0}, 0, Type32Bit)
	require.NoError(t, err)
	assert.Equal(t, 4, next)

	var ld []byte
	ld = appendVarint(ld, 3)
	ld = append(ld, "abc"...)
	next, err = SkipField(ld, 0, TypeBytes)
	require.NoError(t, err)
	assert.Equal(t, len(ld), next)
}

func TestSkipField_Errors(t *testing.T) {
	_, err := SkipField([]byte{0x01}, 0, 3)
	assert.ErrorIs(t, err, ErrUnknownWireType)

	_, err = SkipField([]byte{0x01}, 0, 4)
	assert.ErrorIs(t, err, ErrUnknownWireType)

	_, err = SkipField([]byte{0, 0}, 0, Type64Bit)
	assert.ErrorIs(t, err, ErrTruncated)

	// Declared length exceeds remaining bytes
	var ld []byte
	ld = appendVarint(ld, 10)
	ld = append(ld, "abc"...)
	_, err = SkipField(ld, 0, TypeBytes)
	assert.ErrorIs(t, err, ErrTruncated)
}

// TestSkipField_WalksWholeBuffer checks that repeated tag-read/skip over a
// well-formed buffer lands exactly on len(buf).
func TestSkipField_WalksWholeBuffer(t *testing.T) {
	var buf []byte
	buf = appendTag(buf, 1, TypeVarint)
	buf = appendVarint(buf, 99)
	buf = appendString(buf, 2, "hello")
	buf = appendTag(buf, 3, Type64Bit)
	buf = append(buf, make([]byte, 8)...)
	buf = appendTag(buf, 4, Type32Bit)
	buf = append(buf, make([]byte, 4)...)

	off := 0
	fields := 0
	for off < len(buf) {
		_, wt, next, err := ReadTag(buf, off)
		require.NoError(t, err)
		off, err = SkipField(buf, next, wt)
		require.NoError(t, err)
		fields++
	}
	assert.Equal(t, len(buf), off)
	assert.Equal(t, 4, fields)
}
