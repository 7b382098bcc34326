// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package wire implements a minimal tag-length-value decoder for the
// undocumented binary blobs the host application embeds in its state store.
// It decodes just enough of the format to locate and read a handful of
// string fields; it is not a general protobuf implementation.
package wire

import "errors"

// Wire types understood by the decoder.
const (
	TypeVarint  = 0
	Type64Bit   = 1
	TypeBytes   = 2
	Type32Bit   = 5
)

var (
	// ErrTruncated is returned when a varint or payload runs past the end
	// of the buffer.
	ErrTruncated = errors.New("wire: truncated data")
	// ErrUnknownWireType is returned for wire types outside {0, 1, 2, 5}.
	ErrUnknownWireType = errors.New("wire: unknown wire type")
)

// ReadVarint decodes a base-128 varint starting at off and returns the
// value together with the offset of the first byte after it.
// Values are accumulated LSB-first from 7-bit groups. Lengths observed in
// real blobs are tiny, so overflow past 64 bits is treated the same as
// truncation rather than tracked separately.
func ReadVarint(buf []byte, off int) (uint64, int, error) {
	var v uint64
	var shift uint
	for i := off; i < len(buf); i++ {
		b := buf[i]
		if shift >= 64 {
			return 0, 0, ErrTruncated
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, ErrTruncated
}

// ReadTag decodes the field tag at off, returning the field number, wire
// type, and the offset of the field payload.
func ReadTag(buf []byte, off int) (fieldNum int, wireType int, next int, err error) {
	tag, next, err := ReadVarint(buf, off)
	if err != nil {
		return 0, 0, 0, err
	}
	return int(tag >> 3), int(tag & 0x7), next, nil
}

// SkipField advances past the payload of a single field of the given wire
// type, returning the offset of the next tag.
func SkipField(buf []byte, off int, wireType int) (int, error) {
	switch wireType {
	case TypeVarint:
		_, next, err := ReadVarint(buf, off)
		return next, err
	case Type64Bit:
		if off+8 > len(buf) {
			return 0, ErrTruncated
		}
		return off + 8, nil
	case TypeBytes:
		length, next, err := ReadVarint(buf, off)
		if err != nil {
			return 0, err
		}
		end := next + int(length)
		if end < next || end > len(buf) {
			return 0, ErrTruncated
		}
		return end, nil
	case Type32Bit:
		if off+4 > len(buf) {
			return 0, ErrTruncated
		}
		return off + 4, nil
	default:
		return 0, ErrUnknownWireType
	}
}

// readBytes decodes a length-delimited payload at off.
func readBytes(buf []byte, off int) ([]byte, int, error) {
	length, next, err := ReadVarint(buf, off)
	if err != nil {
		return nil, 0, err
	}
	end := next + int(length)
	if end < next || end > len(buf) {
		return nil, 0, ErrTruncated
	}
	return buf[next:end], end, nil
}
