package layout

import "math"

func AlignTo(offset, align uint64) uint64 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

func SafeMul(a, b uint64) (uint64, bool) {
	if b != 0 && a > math.MaxUint64/b {
		return 0, false
	}
	return a * b, true
}

func SafeAdd(a, b uint64) (uint64, bool) {
	if a > math.MaxUint64-b {
		return 0, false
	}
	return a + b, true
}

// FitsWord reports whether v can be stored in a word of the given width.
func FitsWord(v, width uint64) bool {
	if width >= 8 {
		return true
	}
	return v < 1<<(8*width)
}
