package bufferutil

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrTruncatedBuffer is returned when a read runs past the end of the buffer.
var ErrTruncatedBuffer = errors.New("buffer too short")

// Deserializer reads back primitives written by Serializer.
type Deserializer struct {
	buf []byte
	pos int
}

func NewDeserializer(buf []byte) *Deserializer {
	return &Deserializer{buf: buf}
}

// Empty reports whether the whole buffer has been consumed.
func (d *Deserializer) Empty() bool {
	return d.pos >= len(d.buf)
}

func (d *Deserializer) ReadUint8() (uint8, error) {
	if d.pos+1 > len(d.buf) {
		return 0, ErrTruncatedBuffer
	}
	val := d.buf[d.pos]
	d.pos++
	return val, nil
}

func (d *Deserializer) ReadUint32() (uint32, error) {
	if d.pos+4 > len(d.buf) {
		return 0, ErrTruncatedBuffer
	}
	val := binary.LittleEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return val, nil
}

func (d *Deserializer) ReadUint64() (uint64, error) {
	if d.pos+8 > len(d.buf) {
		return 0, ErrTruncatedBuffer
	}
	val := binary.LittleEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return val, nil
}

func (d *Deserializer) ReadVarInt() (uint64, error) {
	first, err := d.ReadUint8()
	if err != nil {
		return 0, err
	}
	switch first {
	case 0xfd:
		if d.pos+2 > len(d.buf) {
			return 0, ErrTruncatedBuffer
		}
		val := binary.LittleEndian.Uint16(d.buf[d.pos:])
		d.pos += 2
		return uint64(val), nil
	case 0xfe:
		val, err := d.ReadUint32()
		return uint64(val), err
	case 0xff:
		return d.ReadUint64()
	default:
		return uint64(first), nil
	}
}

func (d *Deserializer) ReadSlice(n uint) ([]byte, error) {
	if d.pos+int(n) > len(d.buf) {
		return nil, ErrTruncatedBuffer
	}
	val := d.buf[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return val, nil
}

// ReadVarSlice reads a varint length followed by that many bytes.
func (d *Deserializer) ReadVarSlice() ([]byte, error) {
	n, err := d.ReadVarInt()
	if err != nil {
		return nil, err
	}
	if n > uint64(len(d.buf)-d.pos) {
		return nil, io.ErrUnexpectedEOF
	}
	return d.ReadSlice(uint(n))
}
