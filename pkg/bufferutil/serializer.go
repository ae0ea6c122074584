package bufferutil

import (
	"bytes"
	"encoding/binary"
)

// Serializer appends binary primitives to a growing buffer. Integers are
// little-endian, variable-length quantities follow the Bitcoin varint rules.
type Serializer struct {
	buffer *bytes.Buffer
}

func NewSerializer(buf *bytes.Buffer) *Serializer {
	if buf == nil {
		buf = new(bytes.Buffer)
	}
	return &Serializer{buf}
}

func (s *Serializer) Bytes() []byte {
	return s.buffer.Bytes()
}

func (s *Serializer) WriteUint8(val uint8) error {
	return s.buffer.WriteByte(val)
}

func (s *Serializer) WriteUint32(val uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], val)
	_, err := s.buffer.Write(buf[:])
	return err
}

func (s *Serializer) WriteUint64(val uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], val)
	_, err := s.buffer.Write(buf[:])
	return err
}

func (s *Serializer) WriteVarInt(val uint64) error {
	switch {
	case val < 0xfd:
		return s.buffer.WriteByte(byte(val))
	case val <= 0xffff:
		if err := s.buffer.WriteByte(0xfd); err != nil {
			return err
		}
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], uint16(val))
		_, err := s.buffer.Write(buf[:])
		return err
	case val <= 0xffffffff:
		if err := s.buffer.WriteByte(0xfe); err != nil {
			return err
		}
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(val))
		_, err := s.buffer.Write(buf[:])
		return err
	default:
		if err := s.buffer.WriteByte(0xff); err != nil {
			return err
		}
		return s.WriteUint64(val)
	}
}

func (s *Serializer) WriteSlice(val []byte) error {
	_, err := s.buffer.Write(val)
	return err
}

// WriteVarSlice writes the length of the slice as varint followed by its bytes.
func (s *Serializer) WriteVarSlice(val []byte) error {
	if err := s.WriteVarInt(uint64(len(val))); err != nil {
		return err
	}
	return s.WriteSlice(val)
}
