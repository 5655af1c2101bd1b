package protocol

// Gain and pan travel as 0..GainMax; the helpers map them onto 0..1.
const (
	GainMax uint16 = 0x7FFF

	PanLeft   uint16 = 0
	PanCenter uint16 = GainMax / 2
	PanRight  uint16 = GainMax

	// LevelMax is the loudest VU level a 4-bit level carries.
	LevelMax    uint8 = 14
	levelUnused uint8 = 0x0F
)

// Jitter buffer sizes in blocks. JitterAuto asks the peer to size itself.
const (
	JitterMin     uint16 = 1
	JitterDefault uint16 = 10
	JitterMax     uint16 = 20
	JitterAuto    uint16 = JitterMax + 1
)

// NormalizeGain maps a wire gain or pan onto [0,1].
func NormalizeGain(v uint16) float64 {
	if v >= GainMax {
		return 1
	}
	return float64(v) / float64(GainMax)
}

// DenormalizeGain maps [0,1] onto the wire range, clamping out of range
// input.
func DenormalizeGain(f float64) uint16 {
	switch {
	case f <= 0:
		return 0
	case f >= 1:
		return GainMax
	}
	return uint16(f * float64(GainMax))
}

// NormalizeLevel maps a VU level onto [0,1].
func NormalizeLevel(v uint8) float64 {
	if v >= LevelMax {
		return 1
	}
	return float64(v) / float64(LevelMax)
}
