/*
DESCRIPTION
  stream.go provides the stream descriptor types shared by the pipeline,
  request processor and emulated sensor: pixel formats, dataspaces, use
  cases, dynamic range profiles, the Stream descriptor itself and the
  immutable stream Configuration it belongs to.

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

// Package stream describes camera output and input streams and the
// capability maps used to validate stream combinations.
package stream

// PixelFormat enumerates the pixel formats the emulated sensor can fill.
type PixelFormat uint32

const (
	FormatUnknown PixelFormat = iota
	FormatRAW16
	FormatRGB888
	FormatRGBA8888
	FormatBlob
	FormatYCbCr420
	FormatYCrCb420SP
	FormatYCbCrP010
	FormatY16
	FormatImplementationDefined
)

// String returns the name of the pixel format.
func (f PixelFormat) String() string {
	switch f {
	case FormatRAW16:
		return "RAW16"
	case FormatRGB888:
		return "RGB888"
	case FormatRGBA8888:
		return "RGBA8888"
	case FormatBlob:
		return "BLOB"
	case FormatYCbCr420:
		return "YCbCr420"
	case FormatYCrCb420SP:
		return "YCrCb420SP"
	case FormatYCbCrP010:
		return "YCbCrP010"
	case FormatY16:
		return "Y16"
	case FormatImplementationDefined:
		return "IMPLEMENTATION_DEFINED"
	default:
		return "unknown"
	}
}

// Dataspace describes the interpretation of buffer contents.
type Dataspace uint32

const (
	DataspaceUnknown Dataspace = iota
	DataspaceJFIF
	DataspaceJPEGR
	DataspaceDepth
	DataspaceBT2020HLG
	DataspaceBT2020ITUHLG
)

// Type distinguishes output streams from reprocess input streams.
type Type uint8

const (
	TypeOutput Type = iota
	TypeInput
)

// Rotation is the output rotation requested for a stream.
type Rotation uint8

const (
	Rotation0 Rotation = iota
	Rotation90
	Rotation180
	Rotation270
)

// UseCase is the declared purpose of an output stream.
type UseCase uint8

const (
	UseCaseDefault UseCase = iota
	UseCasePreview
	UseCaseStillCapture
	UseCaseVideoRecord
	UseCasePreviewVideoStill
	UseCaseVideoCall
	UseCaseCroppedRaw
)

// DynamicRangeProfile is a stream's requested dynamic range.
type DynamicRangeProfile uint8

const (
	ProfileStandard DynamicRangeProfile = iota
	ProfileHLG10
)

// ColorSpace enumerates the named target color spaces for rendered output.
type ColorSpace int8

const (
	ColorSpaceUnspecified ColorSpace = -1
	ColorSpaceSRGB        ColorSpace = 0
	ColorSpaceBT709       ColorSpace = 1
	ColorSpaceBT2020      ColorSpace = 2
	ColorSpaceDisplayP3   ColorSpace = 3
)

// Stream describes one configured output or input stream. A Stream is
// immutable once its Configuration has been accepted.
type Stream struct {
	ID         int32
	Type       Type
	Format     PixelFormat
	Dataspace  Dataspace
	Width      uint32
	Height     uint32
	BufferSize uint32 // BLOB streams only.
	Rotation   Rotation
	UseCase    UseCase
	Profile    DynamicRangeProfile
	Space      ColorSpace

	// Physical camera affiliation. GroupID is -1 unless the stream is a
	// member of a dynamic multi-resolution group.
	IsPhysical       bool
	PhysicalCameraID uint32
	GroupID          int32

	// Resolution modes the stream participates in.
	DefaultMode bool
	MaxResMode  bool
}

// Configuration is an ordered set of stream descriptors. It is replaced
// wholesale on reconfiguration, never edited.
type Configuration struct {
	Streams []Stream
}

// Size is an output dimension pair used as a capability map key.
type Size struct {
	Width  uint32
	Height uint32
}

// ConfigurationMap records the output capabilities of one camera in one
// resolution mode: available sizes per format/dataspace, valid output
// formats per input format, and the formats available to dynamic physical
// streams.
type ConfigurationMap struct {
	outputSizes  map[PixelFormat]map[Size]bool
	inputOutputs map[PixelFormat][]PixelFormat
	dynamicSizes map[PixelFormat]map[Size]bool
}

// NewConfigurationMap returns an empty ConfigurationMap.
func NewConfigurationMap() *ConfigurationMap {
	return &ConfigurationMap{
		outputSizes:  make(map[PixelFormat]map[Size]bool),
		inputOutputs: make(map[PixelFormat][]PixelFormat),
		dynamicSizes: make(map[PixelFormat]map[Size]bool),
	}
}

// AddOutputSize declares that buffers of the given format can be produced
// at the given dimensions.
func (m *ConfigurationMap) AddOutputSize(f PixelFormat, w, h uint32) {
	sizes, ok := m.outputSizes[f]
	if !ok {
		sizes = make(map[Size]bool)
		m.outputSizes[f] = sizes
	}
	sizes[Size{w, h}] = true
}

// SupportsOutputSize reports whether the format can be produced at the
// given dimensions.
func (m *ConfigurationMap) SupportsOutputSize(f PixelFormat, w, h uint32) bool {
	return m.outputSizes[f][Size{w, h}]
}

// AddInputOutputs declares the output formats a reprocess input stream of
// format in may be converted to.
func (m *ConfigurationMap) AddInputOutputs(in PixelFormat, outs ...PixelFormat) {
	m.inputOutputs[in] = append(m.inputOutputs[in], outs...)
}

// ValidOutputFormatsForInput returns the output formats supported for a
// reprocess input of the given format.
func (m *ConfigurationMap) ValidOutputFormatsForInput(in PixelFormat) []PixelFormat {
	return m.inputOutputs[in]
}

// AddDynamicPhysicalSize declares that dynamic physical-camera streams of
// the given format can be produced at the given dimensions.
func (m *ConfigurationMap) AddDynamicPhysicalSize(f PixelFormat, w, h uint32) {
	sizes, ok := m.dynamicSizes[f]
	if !ok {
		sizes = make(map[Size]bool)
		m.dynamicSizes[f] = sizes
	}
	sizes[Size{w, h}] = true
}

// SupportsDynamicPhysicalFormat reports whether dynamic physical-camera
// streams of the given format are supported.
func (m *ConfigurationMap) SupportsDynamicPhysicalFormat(f PixelFormat) bool {
	return len(m.dynamicSizes[f]) != 0
}

// SupportsDynamicPhysicalSize reports whether dynamic physical-camera
// streams of the given format can be produced at the given dimensions.
func (m *ConfigurationMap) SupportsDynamicPhysicalSize(f PixelFormat, w, h uint32) bool {
	return m.dynamicSizes[f][Size{w, h}]
}
