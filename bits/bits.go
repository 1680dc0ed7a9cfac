// Package bits frames stored records: a little-endian 16-bit length, the
// content type, then the content itself.
package bits

import "errors"

var ErrShortRecord = errors.New("short record")

func put16(b []byte, v uint16) []byte {
	b[0] = uint8(v)
	b[1] = uint8(v >> 8)
	return b[2:]
}

func get16(b []byte) (uint16, []byte) {
	v := uint16(b[0])
	v += uint16(b[1]) << 8
	return v, b[2:]
}

// PutRecord returns a new slice holding the framed record. Content types
// longer than 65535 bytes are truncated.
func PutRecord(contentType string, data []byte) []byte {
	if len(contentType) > 0xffff {
		contentType = contentType[:0xffff]
	}
	b := make([]byte, 2+len(contentType)+len(data))
	rest := put16(b, uint16(len(contentType)))
	n := copy(rest, contentType)
	copy(rest[n:], data)
	return b
}

// GetRecord splits a framed record. The returned data aliases b.
func GetRecord(b []byte) (contentType string, data []byte, err error) {
	if len(b) < 2 {
		return "", nil, ErrShortRecord
	}
	n, rest := get16(b)
	if len(rest) < int(n) {
		return "", nil, ErrShortRecord
	}
	return string(rest[:n]), rest[n:], nil
}
