package frame

const (
	crcPoly   uint32 = 0x1020
	crcOutBit uint32 = 1 << 16
)

// CRC16 computes the protocol checksum over b: a bit-serial shift register
// seeded with all ones, fed MSB first, feeding back the bit shifted out of
// position 16 and xoring in the polynomial whenever the low bit is set.
// The result is the inverted low 16 bits of the register.
func CRC16(b []byte) uint16 {
	reg := ^uint32(0)
	for _, c := range b {
		for i := 0; i < 8; i++ {
			reg <<= 1
			if reg&crcOutBit != 0 {
				reg |= 1
			}
			if c&(1<<(7-i)) != 0 {
				reg ^= 1
			}
			if reg&1 != 0 {
				reg ^= crcPoly
			}
		}
	}
	return uint16(^reg & 0xFFFF)
}
