/*
DESCRIPTION
  capture.go implements per-pixel frame synthesis for RAW16, RGB and depth
  outputs: Bayer readout with simulated gain, noise and black level,
  quad-Bayer remosaicing, and the RGB-to-RGB color space transform.

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
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/ausocean/hal/scene"
	"github.com/ausocean/hal/stream"
)

// rgbLayout selects the component order of packed RGB output.
type rgbLayout int

const (
	layoutRGB rgbLayout = iota
	layoutRGBA
	layoutARGB
)

// sqrtApprox exploits the IEEE floating-point format to calculate an
// approximate square root, accurate to within +-3.6%. The manipulations
// boil down to finding an approximate log2, dividing by two, and
// inverting the log2. A bias makes the relative error symmetric about
// the real answer.
func sqrtApprox(r float32) float32 {
	const modifier = 0x1FBB4000
	ri := int32(math.Float32bits(r))
	ri = (ri >> 1) + modifier
	return math.Float32frombits(uint32(ri))
}

// captureRawFullRes renders a RAW16 frame at native sensor resolution.
func (s *Sensor) captureRawFullRes(img []byte, rowStride int, gain int32, chars *SensorCharacteristics) {
	s.captureRaw(img, rowStride, gain, chars, false, false)
}

// captureRawBinned renders a RAW16 frame at binned resolution.
func (s *Sensor) captureRawBinned(img []byte, rowStride int, gain int32, chars *SensorCharacteristics) {
	s.captureRaw(img, rowStride, gain, chars, false, true)
}

// captureRawInSensorZoom renders a RAW16 frame at binned resolution with a
// fixed 2x in-sensor center crop.
func (s *Sensor) captureRawInSensorZoom(img []byte, rowStride int, gain int32, chars *SensorCharacteristics) {
	s.captureRaw(img, rowStride, gain, chars, true, false)
}

func (s *Sensor) captureRaw(img []byte, rowStride int, gain int32, chars *SensorCharacteristics, inSensorZoom, binned bool) {
	if inSensorZoom && binned {
		s.log.Error("can't perform in-sensor zoom in binned mode")
		return
	}
	totalGain := float64(gain) / 100.0 * chars.baseGainFactor()
	noiseVarGain := totalGain * totalGain
	readNoiseVar := readNoiseVarBeforeGain*noiseVarGain + readNoiseVarAfterGain

	s.scn.SetReadoutPixel(0, 0)
	// RGGB.
	bayerSelect := [4]int{scene.R, scene.Gr, scene.Gb, scene.B}
	rawZoomRatio := 1.0
	if inSensorZoom {
		rawZoomRatio = 2.0
	}
	imageWidth, imageHeight := chars.FullResWidth, chars.FullResHeight
	if inSensorZoom || binned {
		imageWidth, imageHeight = chars.Width, chars.Height
	}
	normLeftTop := 0.5 - 0.5/rawZoomRatio
	for outY := uint32(0); outY < imageHeight; outY++ {
		bayerRow := bayerSelect[(outY&0x1)*2:]
		row := img[int(outY)*rowStride:]

		normY := float64(outY) / (float64(imageHeight) * rawZoomRatio)
		y := int(float64(chars.FullResHeight) * (normLeftTop + normY))
		y = clampInt(y, 0, int(chars.FullResHeight)-1)

		for outX := uint32(0); outX < imageWidth; outX++ {
			colorIdx := bayerRow[outX&0x1]
			if chars.QuadBayerSensor && !(inSensorZoom || binned) {
				colorIdx = quadBayerColor(outX, outY)
			}
			normX := float64(outX) / (float64(imageWidth) * rawZoomRatio)
			x := int(float64(chars.FullResWidth) * (normLeftTop + normX))
			x = clampInt(x, 0, int(chars.FullResWidth)-1)

			s.scn.SetReadoutPixel(x, y)
			electrons := s.scn.PixelElectrons()[colorIdx]
			if electrons > saturationElectrons {
				electrons = saturationElectrons
			}

			rawCount := uint32(float64(electrons) * totalGain)
			if rawCount > chars.MaxRawValue {
				rawCount = chars.MaxRawValue
			}

			photonNoiseVar := float64(electrons) * noiseVarGain
			noiseStddev := sqrtApprox(float32(readNoiseVar + photonNoiseVar))
			// Scaled to roughly match gaussian/uniform noise stddev.
			noiseSample := s.rng.Float64()*2.5 - 1.25

			rawCount += chars.BlackLevelPattern[colorIdx]
			rawCount += uint32(float64(noiseStddev) * noiseSample)

			binary.LittleEndian.PutUint16(row[outX*2:], uint16(rawCount))
		}
	}
}

// quadBayerColor returns the color channel of pixel (x, y) within a
// quad-Bayer mosaic, where each Bayer cell covers a 2x2 pixel quadrant.
func quadBayerColor(x, y uint32) int {
	rowMod := y % 4
	colMod := x % 4
	if rowMod < 2 {
		if colMod < 2 {
			return scene.R
		}
		return scene.Gr
	}
	if colMod < 2 {
		return scene.Gb
	}
	return scene.B
}

// remosaicQuadBayerBlock rearranges one 4x4 quad-Bayer block into regular
// Bayer order.
func remosaicQuadBayerBlock(in, out []byte, xStart, yStart, rowStride int) {
	idxMap := [16]int{0, 2, 1, 3, 8, 10, 6, 11, 4, 9, 5, 7, 12, 14, 13, 15}
	var blockCopy [16]uint16
	i := 0
	for row := 0; row < 4; row++ {
		quadRow := in[(yStart+row)*rowStride+xStart*2:]
		for j := 0; j < 4; j++ {
			blockCopy[i] = binary.LittleEndian.Uint16(quadRow[j*2:])
			i++
		}
	}

	for row := 0; row < 4; row++ {
		bayerRow := out[(yStart+row)*rowStride+xStart*2:]
		for j := 0; j < 4; j++ {
			idx := idxMap[row+4*j]
			binary.LittleEndian.PutUint16(bayerRow[j*2:], blockCopy[idx])
		}
	}
}

// remosaicRAW16Image converts a full resolution quad-Bayer RAW16 capture
// into regular Bayer order.
func remosaicRAW16Image(in, out []byte, rowStride int, chars *SensorCharacteristics) error {
	if chars.FullResWidth%4 != 0 || chars.FullResHeight%4 != 0 {
		return errors.Errorf("quad CFA RAW16 dimensions %dx%d not multiples of 4",
			chars.FullResWidth, chars.FullResHeight)
	}
	for i := 0; i < int(chars.FullResWidth); i += 4 {
		for j := 0; j < int(chars.FullResHeight); j += 4 {
			remosaicQuadBayerBlock(in, out, i, j, rowStride)
		}
	}
	return nil
}

// captureRGB renders a packed RGB frame by subsampling the scene.
func (s *Sensor) captureRGB(img []byte, width, height uint32, stride int, layout rgbLayout,
	gain int32, space stream.ColorSpace, chars *SensorCharacteristics) {

	totalGain := float64(gain) / 100.0 * chars.baseGainFactor()
	// In fixed-point math, total scaling from electrons to 8bpp.
	scale64x := uint32(fixedBitPrecision * totalGain * 255 / float64(chars.MaxRawValue))
	incH := uint32(math.Ceil(float64(chars.FullResWidth) / float64(width)))
	incV := uint32(math.Ceil(float64(chars.FullResHeight) / float64(height)))

	outY := 0
	for y := uint32(0); y < chars.FullResHeight; y += incV {
		s.scn.SetReadoutPixel(0, int(y))
		px := img[outY*stride:]
		i := 0
		for x := uint32(0); x < chars.FullResWidth; x += incH {
			pixel := s.scn.PixelElectrons()
			rCount := pixel[scene.R] * scale64x
			gCount := pixel[scene.Gr] * scale64x
			bCount := pixel[scene.B] * scale64x

			if space != stream.ColorSpaceUnspecified {
				rCount, gCount, bCount = s.rgbToRgb(rCount, gCount, bCount)
			}

			r := clampByte(rCount)
			g := clampByte(gCount)
			b := clampByte(bCount)
			switch layout {
			case layoutRGB:
				px[i], px[i+1], px[i+2] = r, g, b
				i += 3
			case layoutRGBA:
				px[i], px[i+1], px[i+2], px[i+3] = r, g, b, 255
				i += 4
			case layoutARGB:
				px[i], px[i+1], px[i+2], px[i+3] = 255, r, g, b
				i += 4
			default:
				s.log.Error("RGB layout not supported", "layout", int(layout))
				return
			}
			for j := uint32(1); j < incH; j++ {
				s.scn.PixelElectrons()
			}
		}
		outY++
	}
}

func clampByte(count uint32) uint8 {
	if count < 255*fixedBitPrecision {
		return uint8(count / fixedBitPrecision)
	}
	return 255
}

// captureDepth renders a Y16 depth frame, scaled to 13bpp millimeters.
func (s *Sensor) captureDepth(img []byte, gain int32, width, height uint32, stride int, chars *SensorCharacteristics) {
	totalGain := float64(gain) / 100.0 * chars.baseGainFactor()
	scale64x := uint32(fixedBitPrecision * totalGain * 8191 / float64(chars.MaxRawValue))
	incH := uint32(math.Ceil(float64(chars.FullResWidth) / float64(width)))
	incV := uint32(math.Ceil(float64(chars.FullResHeight) / float64(height)))

	outY := 0
	for y := uint32(0); y < chars.FullResHeight; y += incV {
		s.scn.SetReadoutPixel(0, int(y))
		row := img[outY*stride:]
		i := 0
		for x := uint32(0); x < chars.FullResWidth; x += incH {
			pixel := s.scn.PixelElectrons()
			depthCount := pixel[scene.Gr] * scale64x

			var depth uint16
			if depthCount < 8191*fixedBitPrecision {
				depth = uint16(depthCount / fixedBitPrecision)
			}
			binary.LittleEndian.PutUint16(row[i:], depth)
			i += 2
			for j := uint32(1); j < incH; j++ {
				s.scn.PixelElectrons()
			}
		}
		outY++
	}
}

// XYZ to RGB conversion matrices of the named target color spaces, in
// row-major order.
var (
	srgbXYZMatrix = []float64{
		3.2406, -1.5372, -0.4986,
		-0.9689, 1.8758, 0.0415,
		0.0557, -0.2040, 1.0570,
	}
	displayP3Matrix = []float64{
		2.4931, -0.9316, -0.4023,
		-0.8291, 1.7627, 0.0234,
		0.0361, -0.0761, 0.9570,
	}
	bt709Matrix = []float64{
		3.2410, -1.5374, -0.4986,
		-0.9692, 1.8760, 0.0416,
		0.0556, -0.2040, 1.0570,
	}
	bt2020Matrix = []float64{
		1.7167, -0.3556, -0.2534,
		-0.6666, 1.6164, 0.0158,
		0.0177, -0.0428, 0.9421,
	}
)

// calculateRgbRgbMatrix composes the sensor forward matrix with the XYZ to
// RGB matrix of the target color space, yielding a direct sensor RGB to
// target RGB transform.
func (s *Sensor) calculateRgbRgbMatrix(space stream.ColorSpace, chars *SensorCharacteristics) {
	var xyz []float64
	switch space {
	case stream.ColorSpaceDisplayP3:
		xyz = displayP3Matrix
	case stream.ColorSpaceBT709:
		xyz = bt709Matrix
	case stream.ColorSpaceBT2020:
		xyz = bt2020Matrix
	default:
		xyz = srgbXYZMatrix
	}

	fm := chars.ForwardMatrix
	forward := mat.NewDense(3, 3, []float64{
		fm.RX, fm.GX, fm.BX,
		fm.RY, fm.GY, fm.BY,
		fm.RZ, fm.GZ, fm.BZ,
	})
	var product mat.Dense
	product.Mul(mat.NewDense(3, 3, xyz), forward)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			s.rgbRgbMatrix[i][j] = product.At(i, j)
		}
	}
}

// rgbToRgb applies the current sensor RGB to target RGB transform,
// clamping negatives to zero.
func (s *Sensor) rgbToRgb(r, g, b uint32) (uint32, uint32, uint32) {
	m := &s.rgbRgbMatrix
	rf := math.Max(float64(r)*m[0][0]+float64(g)*m[0][1]+float64(b)*m[0][2], 0)
	gf := math.Max(float64(r)*m[1][0]+float64(g)*m[1][1]+float64(b)*m[1][2], 0)
	bf := math.Max(float64(r)*m[2][0]+float64(g)*m[2][1]+float64(b)*m[2][2], 0)
	return uint32(rf), uint32(gf), uint32(bf)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
