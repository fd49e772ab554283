package wire

import (
	"encoding/binary"
	"math"
)

// Reader provides bounds-checked sequential reads over a decoded payload.
// All multi-byte values are big-endian, matching the reliable frame's
// length prefix.
type Reader struct {
	data []byte
	pos int
}

// NewReader wraps data for reading. data is not copied; the caller must not
// mutate it while the Reader is in use.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

func (r *Reader) ReadByte() (byte, error) {
	if r.pos+1 > len(r.data) {
		return 0, decodeErrf("ReadByte: short payload (pos=%d, len=%d)", r.pos, len(r.data))
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, decodeErrf("ReadUint16: short payload (pos=%d, len=%d)", r.pos, len(r.data))
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) ReadInt32() (int32, error) {
	if r.pos+4 > len(r.data) {
		return 0, decodeErrf("ReadInt32: short payload (pos=%d, len=%d)", r.pos, len(r.data))
	}
	v := int32(binary.BigEndian.Uint32(r.data[r.pos:]))
	r.pos += 4
	return v, nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, decodeErrf("ReadUint32: short payload (pos=%d, len=%d)", r.pos, len(r.data))
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) ReadInt64() (int64, error) {
	if r.pos+8 > len(r.data) {
		return 0, decodeErrf("ReadInt64: short payload (pos=%d, len=%d)", r.pos, len(r.data))
	}
	v := int64(binary.BigEndian.Uint64(r.data[r.pos:]))
	r.pos += 8
	return v, nil
}

func (r *Reader) ReadFloat32() (float32, error) {
	bits, err := r.ReadUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

// ReadString reads a uint16-length-prefixed UTF-8 string.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return "", err
	}
	if r.pos+int(n) > len(r.data) {
		return "", decodeErrf("ReadString: short payload (pos=%d, need=%d, len=%d)", r.pos, n, len(r.data))
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

// ReadOptionalString reads a presence byte, then a string when present.
func (r *Reader) ReadOptionalString() (string, bool, error) {
	present, err := r.ReadBool()
	if err != nil {
		return "", false, err
	}
	if !present {
		return "", false, nil
	}
	s, err := r.ReadString()
	return s, true, err
}
