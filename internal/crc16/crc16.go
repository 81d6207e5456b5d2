// Package crc16 implements the CRC-16/MODBUS checksum used by the watch's
// BLE file transfer protocol.
//
// The register is reflected: each input byte is XORed into the low byte and
// shifted out LSB first with polynomial 0xA001. A checksum appended to its
// data low byte first leaves a zero residue.
package crc16

import "hash"

const (
	// Init is the seed of a fresh computation.
	Init = 0xffff

	// Poly is the reflected CRC-16/MODBUS polynomial.
	Poly = 0xa001

	// Size is the size of a CRC-16 checksum in bytes.
	Size = 2
)

// Update returns the result of adding the bytes in p to crc.
// Passing the result of a previous call as crc checksums a value
// incrementally across chunk boundaries.
func Update(crc uint16, p []byte) uint16 {
	for _, b := range p {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ Poly
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// Checksum returns the CRC-16/MODBUS checksum of p.
func Checksum(p []byte) uint16 {
	return Update(Init, p)
}

// AppendChecksum appends crc to dst in wire order (low byte first).
func AppendChecksum(dst []byte, crc uint16) []byte {
	return append(dst, byte(crc), byte(crc>>8))
}

// Hash16 is the common interface implemented by 16-bit hash functions.
type Hash16 interface {
	hash.Hash
	Sum16() uint16
}

type digest struct {
	crc uint16
}

// New creates a new Hash16 computing the CRC-16/MODBUS checksum.
func New() Hash16 {
	return &digest{crc: Init}
}

func (d *digest) Size() int      { return Size }
func (d *digest) BlockSize() int { return 1 }
func (d *digest) Reset()         { d.crc = Init }
func (d *digest) Sum16() uint16  { return d.crc }

func (d *digest) Write(p []byte) (int, error) {
	d.crc = Update(d.crc, p)
	return len(p), nil
}

// Sum appends the checksum to in, low byte first, so that feeding the
// appended bytes back into the hash yields a zero residue.
func (d *digest) Sum(in []byte) []byte {
	return AppendChecksum(in, d.crc)
}
