package descriptor

import (
	"strings"
)

const (
	inputCharset    = "0123456789()[],'/*abcdefgh@:$%{}IJKLMNOPQRSTUVWXYZ&+-.;<=>?!^_|~ijklmnopqrstuvwxyzABCDEFGH`#\"\\ "
	checksumCharset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"
	checksumLength  = 8
)

var checksumGenerator = [5]uint64{
	0xf5dee51989, 0xa9fdca3312, 0x1bab10e32d, 0x3706b1677a, 0x644d626ffd,
}

func checksumPolymod(symbols []uint64) uint64 {
	chk := uint64(1)
	for _, value := range symbols {
		top := chk >> 35
		chk = (chk&0x7ffffffff)<<5 ^ value
		for i := 0; i < 5; i++ {
			if (top>>uint(i))&1 != 0 {
				chk ^= checksumGenerator[i]
			}
		}
	}
	return chk
}

func checksumExpand(s string) []uint64 {
	groups := make([]uint64, 0, 3)
	symbols := make([]uint64, 0, len(s)+len(s)/3+1)
	for _, ch := range s {
		pos := strings.IndexRune(inputCharset, ch)
		if pos < 0 {
			return nil
		}
		symbols = append(symbols, uint64(pos&31))
		groups = append(groups, uint64(pos>>5))
		if len(groups) == 3 {
			symbols = append(symbols, groups[0]*9+groups[1]*3+groups[2])
			groups = groups[:0]
		}
	}
	if len(groups) == 1 {
		symbols = append(symbols, groups[0])
	} else if len(groups) == 2 {
		symbols = append(symbols, groups[0]*3+groups[1])
	}
	return symbols
}

// Checksum computes the 8-symbol descriptor checksum of s.
func Checksum(s string) (string, error) {
	symbols := checksumExpand(s)
	if symbols == nil {
		return "", ErrInvalidDescriptorCharacter
	}
	for i := 0; i < checksumLength; i++ {
		symbols = append(symbols, 0)
	}
	chk := checksumPolymod(symbols) ^ 1
	checksum := make([]byte, checksumLength)
	for i := 0; i < checksumLength; i++ {
		checksum[i] = checksumCharset[(chk>>uint(5*(checksumLength-1-i)))&31]
	}
	return string(checksum), nil
}

// verifyChecksum validates an explicit checksum against the descriptor body.
func verifyChecksum(body, checksum string) error {
	if len(checksum) != checksumLength {
		return ErrInvalidChecksum
	}
	expected, err := Checksum(body)
	if err != nil {
		return err
	}
	if expected != checksum {
		return ErrInvalidChecksum
	}
	return nil
}
