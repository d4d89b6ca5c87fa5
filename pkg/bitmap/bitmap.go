package bitmap

// BitMap is a growable set of small non-negative integers.
// The bits are packed in LSB-first order within each byte (i.e. bit 0 is stored in the least significant bit).
type BitMap struct {
	buf []byte
}

// New creates a BitMap sized for at least bitLen bits. The map grows past
// that on demand.
func New(bitLen int) *BitMap {
	return &BitMap{buf: make([]byte, (bitLen+7)/8)}
}

// Set sets bit i and reports whether it was previously clear.
func (bm *BitMap) Set(i int) bool {
	byteIndex := i >> 3
	if byteIndex >= len(bm.buf) {
		grown := make([]byte, byteIndex+1)
		copy(grown, bm.buf)
		bm.buf = grown
	}
	mask := byte(1) << uint(i&7)
	if bm.buf[byteIndex]&mask != 0 {
		return false
	}
	bm.buf[byteIndex] |= mask
	return true
}

// IsSet returns the bit at position i (0-indexed). Bits past the end are clear.
func (bm *BitMap) IsSet(i int) bool {
	byteIndex := i >> 3
	if byteIndex >= len(bm.buf) {
		return false
	}
	return bm.buf[byteIndex]&(1<<uint(i&7)) != 0
}
