/*
DESCRIPTION
  scene.go provides the scene generator consumed by the emulated sensor's
  frame synthesis: per-pixel electron counts for a readout coordinate,
  parameterized by exposure duration, color filter geometry, test pattern
  mode and screen rotation. Synthetic is a deterministic landscape
  implementation in the manner of the classic emulated camera scene.

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

// Package scene generates the synthetic radiometry sampled by the
// emulated sensor.
package scene

import "time"

// Color channel indices into a pixel's electron counts.
const (
	R = iota
	Gr
	Gb
	B
	NumChannels
)

// Rendered scene dimensions. Regular-quality YUV output renders at scene
// resolution and scales up.
const (
	Width  = 160
	Height = 120
)

// ColorFilterXYZ is the sensor color filter response: one XYZ row per
// Bayer channel.
type ColorFilterXYZ struct {
	RX, RY, RZ    float64
	GrX, GrY, GrZ float64
	GbX, GbY, GbZ float64
	BX, BY, BZ    float64
}

// Generator supplies per-pixel electron counts for readout coordinates in
// full-resolution sensor space. Implementations need not be safe for
// concurrent use; the sensor reads from its timing goroutine only.
type Generator interface {
	// Initialize sets the sensor dimensions the readout coordinates are
	// expressed in and the conversion rate from lux-seconds to electrons.
	Initialize(width, height uint32, electronsPerLuxSecond float64)

	// SetExposure sets the exposure duration of the next calculated frame.
	SetExposure(d time.Duration)

	// SetColorFilterXYZ sets the color filter response.
	SetColorFilterXYZ(f ColorFilterXYZ)

	// SetTestPattern enables solid-color test pattern output.
	SetTestPattern(on bool)

	// SetTestPatternData sets the solid test pattern electron counts in
	// R, Gr, Gb, B order.
	SetTestPatternData(data [4]uint32)

	// SetScreenRotation sets the device orientation in degrees.
	SetScreenRotation(deg uint32)

	// Calculate renders frame state for the given capture time. The
	// handshake divider reduces simulated hand shake, for stabilized
	// capture modes.
	Calculate(t time.Time, handshakeDivider uint32)

	// SetReadoutPixel positions the readout at (x, y).
	SetReadoutPixel(x, y int)

	// PixelElectrons returns the current pixel's electron counts and
	// advances the readout one pixel along the row.
	PixelElectrons() *[NumChannels]uint32

	// PixelElectronsColumn returns the current pixel's electron counts
	// and advances the readout one pixel down the column.
	PixelElectronsColumn() *[NumChannels]uint32
}

// Scene materials.
const (
	matGrass = iota
	matGrassShadow
	matHill
	matWall
	matRoof
	matDoor
	matChimney
	matWindow
	matSun
	matSky
	numMaterials
)

// Per-material scene illuminance in lux under afternoon sun, and the
// material's XYZ reflectance. Values chosen to keep a mid-grey exposure
// near half saturation at the default 15 ms exposure.
var materialLux = [numMaterials][3]float64{
	matGrass:       {9.1, 13.9, 5.7},
	matGrassShadow: {3.0, 4.6, 2.7},
	matHill:        {12.3, 14.2, 11.2},
	matWall:        {14.3, 15.6, 13.5},
	matRoof:        {8.0, 6.0, 5.1},
	matDoor:        {4.5, 2.2, 1.2},
	matChimney:     {9.5, 8.0, 7.1},
	matWindow:      {4.0, 4.5, 6.0},
	matSun:         {120.0, 120.0, 120.0},
	matSky:         {12.0, 14.4, 24.0},
}

// map81 is the 9x9 material map the landscape is built from, mirroring
// the classic emulated scene: sky and sun over a house on a grassy hill.
var map81 = [9 * 9]uint8{
	matSky, matSky, matSky, matSky, matSky, matSky, matSky, matSky, matSky,
	matSky, matSky, matSky, matSun, matSun, matSky, matSky, matSky, matSky,
	matSky, matSky, matSky, matSun, matSun, matSky, matSky, matSky, matSky,
	matSky, matSky, matSky, matSky, matSky, matSky, matChimney, matSky, matSky,
	matSky, matSky, matSky, matSky, matSky, matRoof, matRoof, matRoof, matSky,
	matHill, matHill, matHill, matHill, matHill, matWall, matDoor, matWall, matHill,
	matGrass, matGrass, matGrass, matGrass, matGrass, matWall, matDoor, matWall, matGrass,
	matGrass, matGrass, matGrassShadow, matGrass, matGrass, matWall, matWindow, matWall, matGrass,
	matGrass, matGrassShadow, matGrass, matGrass, matGrassShadow, matGrass, matGrass, matGrass, matGrass,
}

const mapDim = 9

// Synthetic is the default deterministic Generator.
type Synthetic struct {
	sensorWidth           uint32
	sensorHeight          uint32
	electronsPerLuxSecond float64

	exposure    time.Duration
	filter      ColorFilterXYZ
	testPattern bool
	testData    [4]uint32
	rotation    uint32

	// Handshake offsets in scene cells, recomputed per frame.
	offsetX, offsetY int

	// Electron counts per material per channel for the current frame.
	electrons [numMaterials][NumChannels]uint32

	x, y    int
	current [NumChannels]uint32
}

// NewSynthetic returns a Synthetic scene for a sensor of the given
// dimensions.
func NewSynthetic(width, height uint32, electronsPerLuxSecond float64) *Synthetic {
	s := &Synthetic{exposure: 15 * time.Millisecond}
	s.Initialize(width, height, electronsPerLuxSecond)
	// A neutral color filter until characteristics are applied.
	s.filter = ColorFilterXYZ{
		RX: 1, GrY: 1, GbY: 1, BZ: 1,
	}
	return s
}

// Initialize implements Generator.
func (s *Synthetic) Initialize(width, height uint32, electronsPerLuxSecond float64) {
	s.sensorWidth = width
	s.sensorHeight = height
	s.electronsPerLuxSecond = electronsPerLuxSecond
}

// SetExposure implements Generator.
func (s *Synthetic) SetExposure(d time.Duration) { s.exposure = d }

// SetColorFilterXYZ implements Generator.
func (s *Synthetic) SetColorFilterXYZ(f ColorFilterXYZ) { s.filter = f }

// SetTestPattern implements Generator.
func (s *Synthetic) SetTestPattern(on bool) { s.testPattern = on }

// SetTestPatternData implements Generator.
func (s *Synthetic) SetTestPatternData(data [4]uint32) { s.testData = data }

// SetScreenRotation implements Generator.
func (s *Synthetic) SetScreenRotation(deg uint32) { s.rotation = deg % 360 }

// Calculate implements Generator. Electron counts per material are
// precomputed once per frame so per-pixel readout is a table lookup.
func (s *Synthetic) Calculate(t time.Time, handshakeDivider uint32) {
	if handshakeDivider == 0 {
		handshakeDivider = 1
	}
	// Small deterministic handshake derived from the capture time.
	ns := t.UnixNano()
	s.offsetX = int((ns/16000000)%3-1) / int(handshakeDivider)
	s.offsetY = int((ns/24000000)%3-1) / int(handshakeDivider)

	expSec := s.exposure.Seconds()
	for m := 0; m < numMaterials; m++ {
		x := materialLux[m][0] * expSec * s.electronsPerLuxSecond
		y := materialLux[m][1] * expSec * s.electronsPerLuxSecond
		z := materialLux[m][2] * expSec * s.electronsPerLuxSecond
		s.electrons[m][R] = clampElectrons(s.filter.RX*x + s.filter.RY*y + s.filter.RZ*z)
		s.electrons[m][Gr] = clampElectrons(s.filter.GrX*x + s.filter.GrY*y + s.filter.GrZ*z)
		s.electrons[m][Gb] = clampElectrons(s.filter.GbX*x + s.filter.GbY*y + s.filter.GbZ*z)
		s.electrons[m][B] = clampElectrons(s.filter.BX*x + s.filter.BY*y + s.filter.BZ*z)
	}
}

func clampElectrons(v float64) uint32 {
	if v < 0 {
		return 0
	}
	return uint32(v)
}

// SetReadoutPixel implements Generator.
func (s *Synthetic) SetReadoutPixel(x, y int) {
	s.x, s.y = x, y
}

// PixelElectrons implements Generator.
func (s *Synthetic) PixelElectrons() *[NumChannels]uint32 {
	s.sample()
	s.x++
	return &s.current
}

// PixelElectronsColumn implements Generator.
func (s *Synthetic) PixelElectronsColumn() *[NumChannels]uint32 {
	s.sample()
	s.y++
	return &s.current
}

// sample fills current with the electron counts at the readout pixel.
func (s *Synthetic) sample() {
	if s.testPattern {
		s.current = [NumChannels]uint32{s.testData[0], s.testData[1], s.testData[2], s.testData[3]}
		return
	}
	if s.sensorWidth == 0 || s.sensorHeight == 0 {
		s.current = [NumChannels]uint32{}
		return
	}

	x, y := s.x, s.y
	switch s.rotation {
	case 90:
		x, y = y, int(s.sensorWidth)-1-s.x
	case 180:
		x, y = int(s.sensorWidth)-1-x, int(s.sensorHeight)-1-y
	case 270:
		x, y = int(s.sensorHeight)-1-s.y, s.x
	}

	cx := x*mapDim/int(s.sensorWidth) + s.offsetX
	cy := y*mapDim/int(s.sensorHeight) + s.offsetY
	cx = clampInt(cx, 0, mapDim-1)
	cy = clampInt(cy, 0, mapDim-1)
	s.current = s.electrons[map81[cy*mapDim+cx]]
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
