/*
DESCRIPTION
  capture_test.go tests frame synthesis helpers: RAW and RGB rendering,
  quad-Bayer remosaicing, gamma encoding and the arithmetic helpers they
  depend on.

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
	"bytes"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/ausocean/hal/scene"
	"github.com/ausocean/hal/stream"
	"github.com/ausocean/utils/logging"
)

// newCaptureSensor returns a sensor with a freshly calculated synthetic
// frame, ready for the capture helpers, without starting the capture loop.
func newCaptureSensor(t *testing.T, seed int64, chars *SensorCharacteristics) (*Sensor, *scene.Synthetic) {
	scn := scene.NewSynthetic(chars.FullResWidth, chars.FullResHeight, electronsPerLuxSecond)
	s := New((*logging.TestLogger)(t), WithSeed(seed), WithScene(scn))
	scn.SetColorFilterXYZ(chars.ColorFilter)
	scn.SetExposure(DefaultExposure)
	scn.Calculate(time.Unix(0, 0), 1)
	return s, scn
}

func TestSqrtApprox(t *testing.T) {
	for _, v := range []float32{0.25, 1, 2, 9.95, 100, 4096, 8010.5, 1e6} {
		got := float64(sqrtApprox(v))
		want := math.Sqrt(float64(v))
		if diff := math.Abs(got-want) / want; diff > 0.04 {
			t.Errorf("sqrtApprox(%v) = %v, want %v within 4%%", v, got, want)
		}
	}
}

func TestQuadBayerColor(t *testing.T) {
	// Each Bayer cell covers a 2x2 quadrant of a 4x4 block.
	want := [4][4]int{
		{scene.R, scene.R, scene.Gr, scene.Gr},
		{scene.R, scene.R, scene.Gr, scene.Gr},
		{scene.Gb, scene.Gb, scene.B, scene.B},
		{scene.Gb, scene.Gb, scene.B, scene.B},
	}
	for y := uint32(0); y < 8; y++ {
		for x := uint32(0); x < 8; x++ {
			if got := quadBayerColor(x, y); got != want[y%4][x%4] {
				t.Errorf("quadBayerColor(%d, %d) = %d, want %d", x, y, got, want[y%4][x%4])
			}
		}
	}
}

func TestRemosaicQuadBayerBlock(t *testing.T) {
	const rowStride = 8
	in := make([]byte, 4*rowStride)
	out := make([]byte, 4*rowStride)
	for i := 0; i < 16; i++ {
		binary.LittleEndian.PutUint16(in[(i/4)*rowStride+(i%4)*2:], uint16(i))
	}

	remosaicQuadBayerBlock(in, out, 0, 0, rowStride)

	want := []uint16{
		0, 8, 4, 12,
		2, 10, 9, 14,
		1, 6, 5, 13,
		3, 11, 7, 15,
	}
	for i, w := range want {
		got := binary.LittleEndian.Uint16(out[(i/4)*rowStride+(i%4)*2:])
		if got != w {
			t.Errorf("output pixel %d = %d, want %d", i, got, w)
		}
	}
}

func TestRemosaicRAW16Image(t *testing.T) {
	chars := DefaultCharacteristics()
	chars.FullResWidth, chars.FullResHeight = 8, 8
	rowStride := int(chars.FullResWidth) * 2
	in := make([]byte, int(chars.FullResHeight)*rowStride)
	out := make([]byte, len(in))
	for i := range in {
		in[i] = byte(i)
	}

	if err := remosaicRAW16Image(in, out, rowStride, chars); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Remosaicing permutes pixels within each block, so the sample
	// multiset of every 4x4 block is preserved.
	for by := 0; by < 8; by += 4 {
		for bx := 0; bx < 8; bx += 4 {
			inSum, outSum := uint32(0), uint32(0)
			for row := 0; row < 4; row++ {
				for col := 0; col < 4; col++ {
					off := (by+row)*rowStride + (bx+col)*2
					inSum += uint32(binary.LittleEndian.Uint16(in[off:]))
					outSum += uint32(binary.LittleEndian.Uint16(out[off:]))
				}
			}
			if inSum != outSum {
				t.Errorf("block (%d,%d) sum changed: in %d, out %d", bx, by, inSum, outSum)
			}
		}
	}

	chars.FullResWidth = 6
	if err := remosaicRAW16Image(in, out, rowStride, chars); err == nil {
		t.Error("expected error for dimensions not multiples of 4")
	}
}

func TestCaptureRawFullRes(t *testing.T) {
	chars := DefaultCharacteristics()
	rowStride := int(chars.FullResWidth) * 2
	img := make([]byte, int(chars.FullResHeight)*rowStride)

	s, _ := newCaptureSensor(t, 7, chars)
	s.captureRawFullRes(img, rowStride, DefaultSensitivity, chars)

	var sum float64
	n := int(chars.FullResWidth * chars.FullResHeight)
	for i := 0; i < n; i++ {
		sum += float64(binary.LittleEndian.Uint16(img[i*2:]))
	}
	mean := sum / float64(n)

	// Every sample carries the black level, and signal plus noise cannot
	// push the mean past the RAW white point plus black level.
	if mean <= float64(chars.BlackLevelPattern[0]) {
		t.Errorf("mean RAW value %.1f at or below black level %d", mean, chars.BlackLevelPattern[0])
	}
	if limit := float64(chars.MaxRawValue + chars.BlackLevelPattern[0]); mean >= limit {
		t.Errorf("mean RAW value %.1f beyond white point %v", mean, limit)
	}
}

func TestCaptureRawDeterministic(t *testing.T) {
	chars := DefaultCharacteristics()
	rowStride := int(chars.FullResWidth) * 2
	a := make([]byte, int(chars.FullResHeight)*rowStride)
	b := make([]byte, len(a))

	sa, _ := newCaptureSensor(t, 3, chars)
	sa.captureRawFullRes(a, rowStride, DefaultSensitivity, chars)
	sb, _ := newCaptureSensor(t, 3, chars)
	sb.captureRawFullRes(b, rowStride, DefaultSensitivity, chars)

	if !bytes.Equal(a, b) {
		t.Error("identical seeds and scenes produced different RAW frames")
	}
}

func TestCaptureRGBLayouts(t *testing.T) {
	const w, h = 4, 4
	chars := DefaultCharacteristics()

	s, scn := newCaptureSensor(t, 1, chars)

	rgb := make([]byte, w*h*3)
	s.captureRGB(rgb, w, h, w*3, layoutRGB, DefaultSensitivity, stream.ColorSpaceUnspecified, chars)

	scn.Calculate(time.Unix(0, 0), 1)
	rgba := make([]byte, w*h*4)
	s.captureRGB(rgba, w, h, w*4, layoutRGBA, DefaultSensitivity, stream.ColorSpaceUnspecified, chars)

	scn.Calculate(time.Unix(0, 0), 1)
	argb := make([]byte, w*h*4)
	s.captureRGB(argb, w, h, w*4, layoutARGB, DefaultSensitivity, stream.ColorSpaceUnspecified, chars)

	for i := 0; i < w*h; i++ {
		r, g, b := rgb[i*3], rgb[i*3+1], rgb[i*3+2]
		if rgba[i*4] != r || rgba[i*4+1] != g || rgba[i*4+2] != b || rgba[i*4+3] != 255 {
			t.Errorf("RGBA pixel %d = %v, want [%d %d %d 255]", i, rgba[i*4:i*4+4], r, g, b)
		}
		if argb[i*4] != 255 || argb[i*4+1] != r || argb[i*4+2] != g || argb[i*4+3] != b {
			t.Errorf("ARGB pixel %d = %v, want [255 %d %d %d]", i, argb[i*4:i*4+4], r, g, b)
		}
	}
}

func TestCaptureDepth(t *testing.T) {
	const w, h = 8, 8
	chars := DefaultCharacteristics()

	s, _ := newCaptureSensor(t, 1, chars)
	img := make([]byte, w*h*2)
	s.captureDepth(img, DefaultSensitivity, w, h, w*2, chars)

	for i := 0; i < w*h; i++ {
		if d := binary.LittleEndian.Uint16(img[i*2:]); d > 8191 {
			t.Errorf("depth sample %d = %d exceeds 13 bit range", i, d)
		}
	}
}

func TestGammaLookup(t *testing.T) {
	g := newGammaTables()
	spaces := []struct {
		name  string
		space stream.ColorSpace
	}{
		{"srgb", stream.ColorSpaceUnspecified},
		{"smpte170m", stream.ColorSpaceBT709},
		{"hlg", stream.ColorSpaceBT2020},
	}
	for _, sp := range spaces {
		if got := g.lookup(0, sp.space); got != 0 {
			t.Errorf("%s: lookup(0) = %d, want 0", sp.name, got)
		}
		prev := uint32(0)
		for v := uint32(1); v <= saturationPoint; v++ {
			cur := g.lookup(v, sp.space)
			if cur < prev {
				t.Fatalf("%s: curve decreases at %d: %d < %d", sp.name, v, cur, prev)
			}
			prev = cur
		}
	}

	if got := g.lookup(saturationPoint, stream.ColorSpaceUnspecified); got < saturationPoint-1 {
		t.Errorf("sRGB white point = %d, want %d", got, saturationPoint)
	}
	if got := g.lookup(saturationPoint, stream.ColorSpaceBT2020); got != saturationPoint/2 {
		t.Errorf("HLG white point = %d, want %d", got, saturationPoint/2)
	}
}

func TestRgbToRgbClampsNegatives(t *testing.T) {
	chars := DefaultCharacteristics()
	s, _ := newCaptureSensor(t, 1, chars)
	s.calculateRgbRgbMatrix(stream.ColorSpaceDisplayP3, chars)

	// Pure blue drives the red channel negative under every target space
	// matrix, which must clamp to zero rather than wrap.
	r, g, b := s.rgbToRgb(0, 0, 1<<20)
	for i, v := range []uint32{r, g, b} {
		if v > 1<<31 {
			t.Errorf("channel %d = %d, negative result not clamped", i, v)
		}
	}
}

func TestClampByte(t *testing.T) {
	tests := []struct {
		in   uint32
		want uint8
	}{
		{0, 0},
		{fixedBitPrecision, 1},
		{254 * fixedBitPrecision, 254},
		{255 * fixedBitPrecision, 255},
		{1 << 30, 255},
	}
	for _, tt := range tests {
		if got := clampByte(tt.in); got != tt.want {
			t.Errorf("clampByte(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestClampInt(t *testing.T) {
	tests := []struct {
		v, lo, hi, want int
	}{
		{5, 0, 10, 5},
		{-1, 0, 10, 0},
		{11, 0, 10, 10},
		{0, 0, 0, 0},
	}
	for _, tt := range tests {
		if got := clampInt(tt.v, tt.lo, tt.hi); got != tt.want {
			t.Errorf("clampInt(%d, %d, %d) = %d, want %d", tt.v, tt.lo, tt.hi, got, tt.want)
		}
	}
}
