/*
DESCRIPTION
  yuv.go implements YUV420 frame synthesis and processing: direct
  rendering with a fixed-point JFIF RGB to YUV transform, and the
  low-resolution render-then-scale path used for regular quality and
  reprocess requests.

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
	"image"
	"math"

	"github.com/pkg/errors"
	xdraw "golang.org/x/image/draw"

	"github.com/ausocean/hal/buffer"
	"github.com/ausocean/hal/scene"
	"github.com/ausocean/hal/stream"
)

// processType selects how a YUV output is produced.
type processType int

const (
	processRegular processType = iota
	processHighQuality
	processReprocess
)

// yuvFrame is one YUV420 image, input or output, of a processing step.
type yuvFrame struct {
	width  uint32
	height uint32
	planes buffer.YCbCrPlanes
}

// captureYUV420 renders a YUV420 frame directly from the scene at the
// output resolution, applying zoom, optional 90 degree rotation, gain,
// the target color space transform and gamma encoding.
func (s *Sensor) captureYUV420(planes buffer.YCbCrPlanes, width, height uint32, gain int32,
	zoomRatio float64, rotate bool, space stream.ColorSpace, chars *SensorCharacteristics) {

	totalGain := float64(gain) / 100.0 * chars.baseGainFactor()
	// Fixed-point math with 6 bits of fractional precision: total scaling
	// from electrons to 8bpp.
	scale64x := uint32(fixedBitPrecision * totalGain * 255 / float64(chars.MaxRawValue))
	// Fixed-point coefficients based on the JFIF RGB->YUV transform. The
	// Cb/Cr offset is scaled by 64x twice since it applies post-multiply.
	rgbToY := [3]uint32{19, 37, 7}
	rgbToCb := [4]int32{-10, -21, 32, 524288}
	rgbToCr := [4]int32{32, -26, -5, 524288}
	const scaleOutSq = fixedBitPrecision * fixedBitPrecision // After multiplies.

	aspectRatio := float64(width) / float64(height)

	// Normalized source coordinates and dimensions.
	normLeftTop := 0.5 - 0.5/zoomRatio
	normRotTop := normLeftTop
	normWidth := 1 / zoomRatio
	normRotWidth := normWidth / aspectRatio
	normRotHeight := normWidth
	normRotLeft := normLeftTop + (normWidth+normRotWidth)*0.5

	bpp := planes.BytesPerPixel
	for outY := uint32(0); outY < height; outY++ {
		pxY := planes.Y[int(outY)*planes.YStride:]
		pxCb := planes.Cb[int(outY/2)*planes.CbCrStride:]
		pxCr := planes.Cr[int(outY/2)*planes.CbCrStride:]
		yi, cbi, cri := 0, 0, 0

		for outX := uint32(0); outX < width; outX++ {
			var x, y int
			normX := float64(outX) / (float64(width) * zoomRatio)
			normY := float64(outY) / (float64(height) * zoomRatio)
			if rotate {
				x = int(float64(chars.FullResWidth) * (normRotLeft - normY*normRotWidth))
				y = int(float64(chars.FullResHeight) * (normRotTop + normX*normRotHeight))
			} else {
				x = int(float64(chars.FullResWidth) * (normLeftTop + normX))
				y = int(float64(chars.FullResHeight) * (normLeftTop + normY))
			}
			x = clampInt(x, 0, int(chars.FullResWidth)-1)
			y = clampInt(y, 0, int(chars.FullResHeight)-1)
			s.scn.SetReadoutPixel(x, y)

			var pixel *[scene.NumChannels]uint32
			if rotate {
				pixel = s.scn.PixelElectronsColumn()
			} else {
				pixel = s.scn.PixelElectrons()
			}
			rCount := pixel[scene.R] * scale64x
			gCount := pixel[scene.Gr] * scale64x
			bCount := pixel[scene.B] * scale64x

			if space != stream.ColorSpaceUnspecified {
				rCount, gCount, bCount = s.rgbToRgb(rCount, gCount, bCount)
			}

			rCount = minUint32(rCount, saturationPoint)
			gCount = minUint32(gCount, saturationPoint)
			bCount = minUint32(bCount, saturationPoint)

			rCount = s.gamma.lookup(rCount, space)
			gCount = s.gamma.lookup(gCount, space)
			bCount = s.gamma.lookup(bCount, space)

			y8 := uint8((rgbToY[0]*rCount + rgbToY[1]*gCount + rgbToY[2]*bCount) / scaleOutSq)
			switch bpp {
			case 1:
				pxY[yi] = y8
			case 2:
				binary.LittleEndian.PutUint16(pxY[yi:], uint16(y8)<<8)
			default:
				s.log.Error("unsupported bytes per pixel value", "bpp", bpp)
				return
			}
			yi += bpp

			if outY%2 == 0 && outX%2 == 0 {
				cb8 := uint8((rgbToCb[0]*int32(rCount) + rgbToCb[1]*int32(gCount) +
					rgbToCb[2]*int32(bCount) + rgbToCb[3]) / scaleOutSq)
				cr8 := uint8((rgbToCr[0]*int32(rCount) + rgbToCr[1]*int32(gCount) +
					rgbToCr[2]*int32(bCount) + rgbToCr[3]) / scaleOutSq)
				if bpp == 1 {
					pxCb[cbi] = cb8
					pxCr[cri] = cr8
				} else {
					binary.LittleEndian.PutUint16(pxCb[cbi:], uint16(cb8)<<8)
					binary.LittleEndian.PutUint16(pxCr[cri:], uint16(cr8)<<8)
				}
				cbi += planes.CbCrStep * bpp
				cri += planes.CbCrStep * bpp
			}
		}
	}
}

// processYUV420 produces the output YUV420 frame from either the scene or
// the reprocess input. High quality requests render at full output
// resolution; regular ones render a small frame with the output aspect
// ratio and scale up; reprocess requests scale the input frame.
func (s *Sensor) processYUV420(input, output yuvFrame, gain int32, process processType,
	zoomRatio float64, rotate bool, space stream.ColorSpace, chars *SensorCharacteristics) error {

	var inputWidth, inputHeight uint32
	var inputPlanes buffer.YCbCrPlanes

	bpp := output.planes.BytesPerPixel
	if bpp == 0 {
		bpp = 1
	}

	switch process {
	case processHighQuality:
		s.captureYUV420(output.planes, output.width, output.height, gain, zoomRatio,
			rotate, space, chars)
		return nil
	case processReprocess:
		inputWidth = input.width
		inputHeight = input.height
		inputPlanes = input.planes

		// Plane scaling requires planar YUV420. Split the input U/V plane
		// into separate planes if interleaved.
		if inputPlanes.CbCrStep == 2 {
			inputPlanes = splitUVPlanes(input.planes, inputWidth, inputHeight)
		}
	default:
		// Generate the smallest possible frame with the expected aspect
		// ratio and then scale.
		aspectRatio := float64(output.width) / float64(output.height)
		zoomRatio = math.Max(1.0, zoomRatio)
		inputWidth = uint32(scene.Width * aspectRatio)
		inputHeight = scene.Height
		inputPlanes = allocPlanarYUV(inputWidth, inputHeight, bpp)
		s.captureYUV420(inputPlanes, inputWidth, inputHeight, gain, zoomRatio,
			rotate, space, chars)
	}

	outputPlanes := output.planes
	// Scale into planar scratch space first and interleave after, when the
	// output chroma is interleaved.
	interleaved := outputPlanes.CbCrStep == 2
	if interleaved {
		outputPlanes = allocPlanarYUV(output.width, output.height, bpp)
		outputPlanes.Y = output.planes.Y
		outputPlanes.YStride = output.planes.YStride
	}

	err := scaleYUV420(inputPlanes, inputWidth, inputHeight, outputPlanes,
		output.width, output.height, bpp)
	if err != nil {
		return errors.Wrap(err, "failed during YUV scaling")
	}

	if interleaved {
		mergeUVPlanes(output.planes, outputPlanes, output.width, output.height)
	}

	return nil
}

// allocPlanarYUV returns scratch YUV420 planes of the given dimensions.
func allocPlanarYUV(width, height uint32, bpp int) buffer.YCbCrPlanes {
	w, h := int(width), int(height)
	img := make([]byte, w*h*3*bpp/2)
	return buffer.YCbCrPlanes{
		Y:             img[:w*h*bpp],
		Cb:            img[w*h*bpp : w*h*bpp*5/4],
		Cr:            img[w*h*bpp*5/4:],
		YStride:       w * bpp,
		CbCrStride:    w * bpp / 2,
		CbCrStep:      1,
		BytesPerPixel: bpp,
	}
}

// splitUVPlanes converts interleaved chroma into planar scratch planes,
// leaving the luma plane shared.
func splitUVPlanes(in buffer.YCbCrPlanes, width, height uint32) buffer.YCbCrPlanes {
	out := allocPlanarYUV(width, height, 1)
	out.Y = in.Y
	out.YStride = in.YStride
	for row := 0; row < int(height)/2; row++ {
		cb := in.Cb[row*in.CbCrStride:]
		cr := in.Cr[row*in.CbCrStride:]
		outCb := out.Cb[row*out.CbCrStride:]
		outCr := out.Cr[row*out.CbCrStride:]
		for col := 0; col < int(width)/2; col++ {
			outCb[col] = cb[col*in.CbCrStep]
			outCr[col] = cr[col*in.CbCrStep]
		}
	}
	return out
}

// mergeUVPlanes interleaves planar scratch chroma back into the output's
// chroma layout.
func mergeUVPlanes(out, planar buffer.YCbCrPlanes, width, height uint32) {
	bpp := out.BytesPerPixel
	if bpp == 0 {
		bpp = 1
	}
	for row := 0; row < int(height)/2; row++ {
		cb := out.Cb[row*out.CbCrStride:]
		cr := out.Cr[row*out.CbCrStride:]
		planarCb := planar.Cb[row*planar.CbCrStride:]
		planarCr := planar.Cr[row*planar.CbCrStride:]
		for col := 0; col < int(width)/2; col++ {
			copy(cb[col*out.CbCrStep*bpp:col*out.CbCrStep*bpp+bpp], planarCb[col*bpp:])
			copy(cr[col*out.CbCrStep*bpp:col*out.CbCrStep*bpp+bpp], planarCr[col*bpp:])
		}
	}
}

// scaleYUV420 scales each plane independently with nearest neighbor
// sampling. Chroma planes are half resolution in both dimensions.
func scaleYUV420(in buffer.YCbCrPlanes, inWidth, inHeight uint32,
	out buffer.YCbCrPlanes, outWidth, outHeight uint32, bpp int) error {

	if inWidth == 0 || inHeight == 0 || outWidth == 0 || outHeight == 0 {
		return errors.New("zero plane dimensions")
	}

	scalePlane(out.Y, out.YStride, int(outWidth), int(outHeight),
		in.Y, in.YStride, int(inWidth), int(inHeight), bpp)
	scalePlane(out.Cb, out.CbCrStride, int(outWidth)/2, int(outHeight)/2,
		in.Cb, in.CbCrStride, int(inWidth)/2, int(inHeight)/2, bpp)
	scalePlane(out.Cr, out.CbCrStride, int(outWidth)/2, int(outHeight)/2,
		in.Cr, in.CbCrStride, int(inWidth)/2, int(inHeight)/2, bpp)
	return nil
}

func scalePlane(dst []byte, dstStride, dstW, dstH int, src []byte, srcStride, srcW, srcH, bpp int) {
	if bpp == 2 {
		srcImg := &image.Gray16{Pix: src, Stride: srcStride, Rect: image.Rect(0, 0, srcW, srcH)}
		dstImg := &image.Gray16{Pix: dst, Stride: dstStride, Rect: image.Rect(0, 0, dstW, dstH)}
		xdraw.NearestNeighbor.Scale(dstImg, dstImg.Rect, srcImg, srcImg.Rect, xdraw.Src, nil)
		return
	}
	srcImg := &image.Gray{Pix: src, Stride: srcStride, Rect: image.Rect(0, 0, srcW, srcH)}
	dstImg := &image.Gray{Pix: dst, Stride: dstStride, Rect: image.Rect(0, 0, dstW, dstH)}
	xdraw.NearestNeighbor.Scale(dstImg, dstImg.Rect, srcImg, srcImg.Rect, xdraw.Src, nil)
}

func minUint32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
