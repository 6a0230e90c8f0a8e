/*
DESCRIPTION
  characteristics.go provides SensorCharacteristics, the static description
  of an emulated image sensor, together with the supported ranges the
  emulation core imposes on them and their validation.

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

// Package sensor implements a software emulation of a rolling shutter
// camera sensor: a capture loop that honors frame timing, per-format frame
// synthesis from a synthetic scene, and compatibility checking of stream
// combinations against sensor limits.
package sensor

import (
	"time"

	"github.com/pkg/errors"

	"github.com/ausocean/hal/scene"
	"github.com/ausocean/hal/stream"
)

// Supported ranges and limits of the emulation core. Characteristics
// outside these are rejected at start up.
const (
	// 1 us - 30 sec.
	MinExposure = 1000 * time.Nanosecond
	MaxExposure = 30 * time.Second

	// ~1/30 s - 30 sec.
	MinFrameDuration = 33331760 * time.Nanosecond
	MaxFrameDuration = 30 * time.Second

	MinSensitivity     = 100
	MaxSensitivity     = 1600
	DefaultSensitivity = 100 // ISO.

	DefaultExposure      = 15 * time.Millisecond
	DefaultFrameDuration = 33 * time.Millisecond

	// Deadline within which results should be returned as soon as possible
	// to avoid skewing the frame cycle due to external delays.
	returnResultThreshold = 3 * DefaultFrameDuration

	minVerticalBlank = 10 * time.Microsecond

	defaultMaxRawValue = 4000

	maxRawStreams       = 1
	maxProcessedStreams = 3
	maxStallingStreams  = 2
	maxInputStreams     = 1

	maxLensShadingMapWidth  = 64
	maxLensShadingMapHeight = 64

	// One buffer in the sensor, one in the JPEG compressor and one pending
	// request, to avoid stalls with minimal memory.
	PipelineDepth = 3

	// Scene handshake dividers: regular capture and stabilized capture.
	regularSceneHandshake = 1
	reducedSceneHandshake = 2
)

// Sensor sensitivity model.
const (
	saturationVoltage   = 0.520
	saturationElectrons = 2000
	voltsPerLuxSecond   = 0.100

	electronsPerLuxSecond = saturationElectrons / saturationVoltage * voltsPerLuxSecond

	readNoiseStddevBeforeGain = 1.177 // In electrons.
	readNoiseStddevAfterGain  = 2.100 // In digital counts.
	readNoiseVarBeforeGain    = readNoiseStddevBeforeGain * readNoiseStddevBeforeGain
	readNoiseVarAfterGain     = readNoiseStddevAfterGain * readNoiseStddevAfterGain
)

// Fixed-point pixel math.
const (
	fixedBitPrecision = 64 // 6-bit.

	// Saturation point of the sensor after gain, in fixed-point counts.
	saturationPoint = fixedBitPrecision * 255
)

// greenSplit reports no divergence between the two green channels.
const greenSplit = 1.0

// neutralColorPoint is the white level of each color channel as a rational.
var neutralColorPoint = [6]int32{255, 1, 255, 1, 255, 1}

// ColorFilterArrangement is the Bayer mosaic layout of the sensor.
type ColorFilterArrangement uint8

const (
	FilterRGGB ColorFilterArrangement = iota
	FilterGRBG
	FilterGBRG
	FilterBGGR
)

// TimestampSource selects the clock capture timestamps are drawn from.
type TimestampSource uint8

const (
	TimestampUnknown TimestampSource = iota
	TimestampRealtime
)

// ColorMatrix is a 3x3 color transform in row-major XYZ rows, i.e. the
// forward transform from sensor RGB to CIE XYZ.
type ColorMatrix struct {
	RX, RY, RZ float64
	GX, GY, GZ float64
	BX, BY, BZ float64
}

// SensorCharacteristics describes a single emulated sensor. Width and
// Height are the binned (default mode) dimensions; FullResWidth and
// FullResHeight the native ones. For non quad-Bayer sensors the two pairs
// are equal.
type SensorCharacteristics struct {
	Width, Height               uint32
	FullResWidth, FullResHeight uint32

	ExposureRange      [2]time.Duration
	FrameDurationRange [2]time.Duration
	SensitivityRange   [2]int32

	ColorArrangement  ColorFilterArrangement
	ColorFilter       scene.ColorFilterXYZ
	ForwardMatrix     ColorMatrix
	MaxRawValue       uint32
	BlackLevelPattern [4]uint32

	MaxRawStreams       uint32
	MaxProcessedStreams uint32
	MaxStallingStreams  uint32
	MaxInputStreams     uint32

	LensShadingMapSize [2]uint32
	MaxPipelineDepth   uint8

	Orientation   uint32
	IsFrontFacing bool

	QuadBayerSensor bool
	// RAW crop regions reported on CROPPED_RAW captures, as {left, top,
	// width, height}.
	RawCropRegionUnzoomed [4]int32
	RawCropRegionZoomed   [4]int32

	Is10BitCapable       bool
	DynamicRangeProfiles []stream.DynamicRangeProfile

	SupportsStreamUseCase bool
	EndValidUseCase       stream.UseCase

	Timestamp TimestampSource
}

// LogicalCharacteristics maps camera IDs, logical and physical, to their
// sensor characteristics.
type LogicalCharacteristics map[uint32]*SensorCharacteristics

// DefaultCharacteristics returns characteristics of a plain 640x480 RGGB
// sensor suitable as a starting point for configuration.
func DefaultCharacteristics() *SensorCharacteristics {
	return &SensorCharacteristics{
		Width: 640, Height: 480,
		FullResWidth: 640, FullResHeight: 480,
		ExposureRange:      [2]time.Duration{MinExposure, MaxExposure},
		FrameDurationRange: [2]time.Duration{MinFrameDuration, MaxFrameDuration},
		SensitivityRange:   [2]int32{MinSensitivity, MaxSensitivity},
		ColorArrangement:   FilterRGGB,
		ColorFilter: scene.ColorFilterXYZ{
			RX: 0.391, RY: 0.312, RZ: 0.019,
			GrX: 0.242, GrY: 0.343, GrZ: 0.076,
			GbX: 0.242, GbY: 0.343, GbZ: 0.076,
			BX: 0.064, BY: 0.086, BZ: 0.374,
		},
		ForwardMatrix: ColorMatrix{
			RX: 0.4124, RY: 0.2126, RZ: 0.0193,
			GX: 0.3576, GY: 0.7152, GZ: 0.1192,
			BX: 0.1805, BY: 0.0722, BZ: 0.9505,
		},
		MaxRawValue:         defaultMaxRawValue,
		BlackLevelPattern:   [4]uint32{1000, 1000, 1000, 1000},
		MaxRawStreams:       maxRawStreams,
		MaxProcessedStreams: maxProcessedStreams,
		MaxStallingStreams:  maxStallingStreams,
		MaxInputStreams:     0,
		LensShadingMapSize:  [2]uint32{maxLensShadingMapWidth, maxLensShadingMapHeight},
		MaxPipelineDepth:    PipelineDepth,
	}
}

// Validate checks the characteristics against the supported ranges of the
// emulation core. All failed checks are reported.
func (sc *SensorCharacteristics) Validate() error {
	var errs multiError

	if sc.Width == 0 || sc.Height == 0 {
		errs = append(errs, errors.Errorf("invalid sensor size %dx%d", sc.Width, sc.Height))
	}

	if sc.FullResWidth == 0 || sc.FullResHeight == 0 {
		errs = append(errs, errors.Errorf("invalid sensor full res size %dx%d", sc.FullResWidth, sc.FullResHeight))
	}

	if sc.Is10BitCapable {
		// Only HLG10 is available.
		if len(sc.DynamicRangeProfiles) != 1 || sc.DynamicRangeProfiles[0] != stream.ProfileHLG10 {
			errs = append(errs, errors.New("only HLG10 dynamic range support is available"))
		}
	}

	if sc.ExposureRange[0] >= sc.ExposureRange[1] ||
		sc.ExposureRange[0] < MinExposure || sc.ExposureRange[1] > MaxExposure {
		errs = append(errs, errors.Errorf("unsupported exposure range [%v, %v]", sc.ExposureRange[0], sc.ExposureRange[1]))
	}

	if sc.FrameDurationRange[0] >= sc.FrameDurationRange[1] ||
		sc.FrameDurationRange[0] < MinFrameDuration || sc.FrameDurationRange[1] > MaxFrameDuration {
		errs = append(errs, errors.Errorf("unsupported frame duration range [%v, %v]", sc.FrameDurationRange[0], sc.FrameDurationRange[1]))
	}

	if sc.SensitivityRange[0] >= sc.SensitivityRange[1] ||
		sc.SensitivityRange[0] < MinSensitivity || sc.SensitivityRange[1] > MaxSensitivity ||
		!(DefaultSensitivity >= sc.SensitivityRange[0] && DefaultSensitivity <= sc.SensitivityRange[1]) {
		errs = append(errs, errors.Errorf("unsupported sensitivity range [%d, %d]", sc.SensitivityRange[0], sc.SensitivityRange[1]))
	}

	if sc.ColorArrangement != FilterRGGB {
		errs = append(errs, errors.Errorf("unsupported color arrangement %d", sc.ColorArrangement))
	}

	for _, black := range sc.BlackLevelPattern {
		if black >= sc.MaxRawValue {
			errs = append(errs, errors.Errorf("black level %d matches or exceeds max RAW value %d", black, sc.MaxRawValue))
			break
		}
	}

	if sc.Height != 0 && sc.FrameDurationRange[0]/time.Duration(sc.Height) == 0 {
		errs = append(errs, errors.New("zero row readout time"))
	}

	if sc.MaxRawStreams > maxRawStreams {
		errs = append(errs, errors.Errorf("RAW streams maximum %d exceeds supported maximum %d", sc.MaxRawStreams, maxRawStreams))
	}

	if sc.MaxProcessedStreams > maxProcessedStreams {
		errs = append(errs, errors.Errorf("processed streams maximum %d exceeds supported maximum %d", sc.MaxProcessedStreams, maxProcessedStreams))
	}

	if sc.MaxStallingStreams > maxStallingStreams {
		errs = append(errs, errors.Errorf("stalling streams maximum %d exceeds supported maximum %d", sc.MaxStallingStreams, maxStallingStreams))
	}

	if sc.MaxInputStreams > maxInputStreams {
		errs = append(errs, errors.Errorf("input streams maximum %d exceeds supported maximum %d", sc.MaxInputStreams, maxInputStreams))
	}

	if sc.LensShadingMapSize[0] > maxLensShadingMapWidth || sc.LensShadingMapSize[1] > maxLensShadingMapHeight {
		errs = append(errs, errors.Errorf("lens shading map [%dx%d] exceeds supported maximum [%dx%d]",
			sc.LensShadingMapSize[0], sc.LensShadingMapSize[1], maxLensShadingMapWidth, maxLensShadingMapHeight))
	}

	if sc.MaxPipelineDepth < PipelineDepth {
		errs = append(errs, errors.Errorf("pipeline depth %d smaller than supported minimum %d", sc.MaxPipelineDepth, PipelineDepth))
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// rowReadoutTime is the simulated readout time of a single sensor row.
func (sc *SensorCharacteristics) rowReadoutTime() time.Duration {
	return sc.FrameDurationRange[0] / time.Duration(sc.FullResHeight)
}

// baseGainFactor is the analog gain at ISO 100 implied by the max RAW
// value of the sensor.
func (sc *SensorCharacteristics) baseGainFactor() float64 {
	return float64(sc.MaxRawValue) / saturationElectrons
}

// multiError collects errors found while validating characteristics.
type multiError []error

func (me multiError) Error() string {
	if len(me) == 0 {
		panic("sensor: invalid use of multiError")
	}
	str := ""
	for _, e := range me {
		str += e.Error() + "; "
	}
	return str[:len(str)-2]
}
