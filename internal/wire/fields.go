// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

// FindField scans the top-level fields of buf and returns the payload of
// the first length-delimited occurrence of target. Unknown fields are
// skipped, so unrelated fields before or after the target never affect the
// result. The second return value reports whether the field was found;
// malformed buffers simply report absence.
func FindField(buf []byte, target int) ([]byte, bool) {
	off := 0
	for off < len(buf) {
		fieldNum, wireType, next, err := ReadTag(buf, off)
		if err != nil {
			return nil, false
		}
		if fieldNum == target && wireType == TypeBytes {
			payload, _, err := readBytes(buf, next)
			if err != nil {
				return nil, false
			}
			return payload, true
		}
		off, err = SkipField(buf, next, wireType)
		if err != nil {
			return nil, false
		}
	}
	return nil, false
}

// ParseLeafStrings decodes the length-delimited fields of buf whose field
// numbers appear in fieldMap, returning role name -> string value. Fields
// not in the map, and fields of other wire types, are skipped. The first
// occurrence of a field number wins. Decoding stops with an error only on
// structurally broken buffers.
func ParseLeafStrings(buf []byte, fieldMap map[int]string) (map[string]string, error) {
	out := make(map[string]string, len(fieldMap))
	off := 0
	for off < len(buf) {
		fieldNum, wireType, next, err := ReadTag(buf, off)
		if err != nil {
			return nil, err
		}
		role, wanted := fieldMap[fieldNum]
		if wanted && wireType == TypeBytes {
			payload, end, err := readBytes(buf, next)
			if err != nil {
				return nil, err
			}
			if _, seen := out[role]; !seen {
				out[role] = string(payload)
			}
			off = end
			continue
		}
		off, err = SkipField(buf, next, wireType)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
