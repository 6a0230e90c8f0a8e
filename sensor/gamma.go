/*
DESCRIPTION
  gamma.go provides the opto-electronic transfer functions applied during
  YUV and RGB synthesis, precomputed into lookup tables over the
  fixed-point pixel range.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package sensor

import (
	"math"

	"github.com/ausocean/hal/stream"
)

// gammaTables holds the encoding curves over [0, saturationPoint],
// indexed by linear fixed-point value.
type gammaTables struct {
	srgb      []int32
	smpte170m []int32
	hlg       []int32
}

func newGammaTables() *gammaTables {
	t := &gammaTables{
		srgb:      make([]int32, saturationPoint+1),
		smpte170m: make([]int32, saturationPoint+1),
		hlg:       make([]int32, saturationPoint+1),
	}
	for i := int32(0); i <= saturationPoint; i++ {
		t.srgb[i] = applySRGBGamma(i, saturationPoint)
		t.smpte170m[i] = applySMPTE170MGamma(i, saturationPoint)
		t.hlg[i] = applyHLGGamma(i, saturationPoint)
	}
	return t
}

// lookup returns the gamma-encoded value for the target color space.
// BT.2020 outputs are assumed to be HLG encoded.
func (t *gammaTables) lookup(value uint32, space stream.ColorSpace) uint32 {
	switch space {
	case stream.ColorSpaceBT709:
		return uint32(t.smpte170m[value])
	case stream.ColorSpaceBT2020:
		return uint32(t.hlg[value])
	default:
		return uint32(t.srgb[value])
	}
}

func applySRGBGamma(value, saturation int32) int32 {
	n := float64(value) / float64(saturation)
	if n <= 0.0031308 {
		n *= 12.92
	} else {
		n = 1.055*math.Pow(n, 0.4166667) - 0.055
	}
	return int32(n * float64(saturation))
}

func applySMPTE170MGamma(value, saturation int32) int32 {
	n := float64(value) / float64(saturation)
	if n <= 0.018 {
		n *= 4.5
	} else {
		n = 1.099*math.Pow(n, 0.45) - 0.099
	}
	return int32(n * float64(saturation))
}

func applyHLGGamma(value, saturation int32) int32 {
	n := float64(value) / float64(saturation)
	// The full HLG curve has additional parameters for n > 1, but n here
	// is always <= 1 in the absence of HDR display features.
	n = 0.5 * math.Sqrt(n)
	return int32(n * float64(saturation))
}
