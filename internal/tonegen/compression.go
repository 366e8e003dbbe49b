package tonegen

import "math"

// compressionTable is comp[0..127]: comp[0]=comp[1]=1, entries 2..10
// drop from -1.16dB to -5.0dB along a straight line in dB (they are not
// individually tuned values), then a linear ramp in dB from -5 to -9dB
// for 11..127.
var compressionTable [128]float64

func init() {
	compressionTable[0] = 1
	compressionTable[1] = 1
	for k := 2; k <= 10; k++ {
		frac := float64(k-2) / float64(10-2)
		db := -1.16 + frac*(-5.0-(-1.16))
		compressionTable[k] = math.Pow(10, db/20)
	}
	for k := 11; k <= 127; k++ {
		frac := float64(k-11) / float64(127-11)
		db := -5.0 + frac*(-9.0-(-5.0))
		compressionTable[k] = math.Pow(10, db/20)
	}
}

// keyCompression is a block-rate target chased linearly per-sample over
// the block.
type keyCompression struct {
	current float64
	target  float64
}

func (k *keyCompression) setKeyDownCount(n int) {
	if n < 0 {
		n = 0
	}
	if n > 127 {
		n = 127
	}
	k.target = compressionTable[n]
}

// delta returns the per-sample step that reaches the target by the end
// of an n-sample block.
func (k *keyCompression) delta(n int) float64 {
	if n <= 0 {
		return 0
	}
	return (k.target - k.current) / float64(n)
}

func (k *keyCompression) chase(delta float64) {
	k.current += delta
}
