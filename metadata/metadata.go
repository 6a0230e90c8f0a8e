/*
DESCRIPTION
  metadata.go provides Metadata, a mutable document of typed capture
  settings and results keyed by tag. Capture requests carry a settings
  snapshot and capture results are filled progressively, partial first,
  final last.

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

// Package metadata provides the tagged key/value document used to carry
// capture settings into the sensor and capture results back out of it.
package metadata

import "sync"

// Tag identifies a single metadata entry.
type Tag uint32

// Tags understood by the emulated sensor and request processor.
const (
	TagSensorTimestamp Tag = iota + 1
	TagSensorExposureTime
	TagSensorFrameDuration
	TagSensorSensitivity
	TagSensorTestPatternMode
	TagSensorTestPatternData
	TagSensorPixelMode
	TagSensorRawBinningFactorUsed
	TagSensorNeutralColorPoint
	TagSensorGreenSplit
	TagSensorNoiseProfile
	TagSensorRollingShutterSkew
	TagControlSettingsOverride
	TagControlSettingsOverridingFrameNumber
	TagControlZoomRatio
	TagControlVideoStabilizationMode
	TagControlAERegions
	TagControlAWBRegions
	TagControlAFRegions
	TagScalerCropRegion
	TagScalerRawCropRegion
	TagScalerRotateAndCrop
	TagEdgeMode
	TagStatisticsLensShadingMapMode
	TagStatisticsLensShadingMap
	TagStatisticsLensIntrinsicSamples
	TagStatisticsLensIntrinsicTimestamps
	TagRequestPartialResultCount
	TagSensorInfoPixelArraySize
	TagSensorInfoActiveArraySize
	TagSensorInfoExposureTimeRange
	TagSensorInfoMaxFrameDuration
	TagSensorInfoSensitivityRange
	TagSensorInfoColorFilterArrangement
	TagSensorInfoTimestampSource
	TagSensorOrientation
	TagLensFacing
	TagRequestPipelineMaxDepth
)

// Values for TagControlSettingsOverride.
const (
	SettingsOverrideOff  = 0
	SettingsOverrideZoom = 1
)

// Values for TagControlVideoStabilizationMode.
const (
	VideoStabilizationOff = iota
	VideoStabilizationOn
	VideoStabilizationPreview
)

// Values for TagEdgeMode.
const (
	EdgeModeOff = iota
	EdgeModeFast
	EdgeModeHighQuality
	EdgeModeZeroShutterLag
)

// Values for TagScalerRotateAndCrop.
const (
	RotateAndCropNone = iota
	RotateAndCrop90
)

// Values for TagStatisticsLensShadingMapMode.
const (
	LensShadingMapModeOff = iota
	LensShadingMapModeOn
)

// Values for TagSensorTestPatternMode.
const (
	TestPatternModeOff        = 0
	TestPatternModeSolidColor = 1
)

// Values for TagSensorPixelMode.
const (
	PixelModeDefault = 0
	PixelModeMaxRes  = 1
)

// Metadata is a mutable tag/value document. The zero value is not usable;
// use New. Metadata is safe for concurrent use.
type Metadata struct {
	mu      sync.RWMutex
	entries map[Tag]interface{}
}

// New returns an empty Metadata document.
func New() *Metadata {
	return &Metadata{entries: make(map[Tag]interface{})}
}

// Clone returns a deep copy of m. Cloning a nil document returns nil.
func Clone(m *Metadata) *Metadata {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := New()
	for t, v := range m.entries {
		switch val := v.(type) {
		case []int32:
			c.entries[t] = append([]int32(nil), val...)
		case []int64:
			c.entries[t] = append([]int64(nil), val...)
		case []float32:
			c.entries[t] = append([]float32(nil), val...)
		case []float64:
			c.entries[t] = append([]float64(nil), val...)
		default:
			c.entries[t] = v
		}
	}
	return c
}

// Has reports whether m contains an entry for tag.
func (m *Metadata) Has(tag Tag) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[tag]
	return ok
}

// Delete removes the entry for tag, if any.
func (m *Metadata) Delete(tag Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, tag)
}

// SetInt32 stores an int32 entry.
func (m *Metadata) SetInt32(tag Tag, v int32) { m.set(tag, v) }

// SetInt64 stores an int64 entry.
func (m *Metadata) SetInt64(tag Tag, v int64) { m.set(tag, v) }

// SetFloat32 stores a float32 entry.
func (m *Metadata) SetFloat32(tag Tag, v float32) { m.set(tag, v) }

// SetBool stores a boolean entry.
func (m *Metadata) SetBool(tag Tag, v bool) { m.set(tag, v) }

// SetInt32s stores an int32 slice entry. The slice is copied.
func (m *Metadata) SetInt32s(tag Tag, v []int32) { m.set(tag, append([]int32(nil), v...)) }

// SetInt64s stores an int64 slice entry. The slice is copied.
func (m *Metadata) SetInt64s(tag Tag, v []int64) { m.set(tag, append([]int64(nil), v...)) }

// SetFloat32s stores a float32 slice entry. The slice is copied.
func (m *Metadata) SetFloat32s(tag Tag, v []float32) { m.set(tag, append([]float32(nil), v...)) }

// SetFloat64s stores a float64 slice entry. The slice is copied.
func (m *Metadata) SetFloat64s(tag Tag, v []float64) { m.set(tag, append([]float64(nil), v...)) }

func (m *Metadata) set(tag Tag, v interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[tag] = v
}

// Int32 returns the int32 entry for tag.
func (m *Metadata) Int32(tag Tag) (int32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[tag].(int32)
	return v, ok
}

// Int64 returns the int64 entry for tag.
func (m *Metadata) Int64(tag Tag) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[tag].(int64)
	return v, ok
}

// Float32 returns the float32 entry for tag.
func (m *Metadata) Float32(tag Tag) (float32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[tag].(float32)
	return v, ok
}

// Bool returns the boolean entry for tag.
func (m *Metadata) Bool(tag Tag) (bool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[tag].(bool)
	return v, ok
}

// Int32s returns the int32 slice entry for tag.
func (m *Metadata) Int32s(tag Tag) ([]int32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[tag].([]int32)
	return v, ok
}

// Int64s returns the int64 slice entry for tag.
func (m *Metadata) Int64s(tag Tag) ([]int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[tag].([]int64)
	return v, ok
}

// Float32s returns the float32 slice entry for tag.
func (m *Metadata) Float32s(tag Tag) ([]float32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[tag].([]float32)
	return v, ok
}

// Float64s returns the float64 slice entry for tag.
func (m *Metadata) Float64s(tag Tag) ([]float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[tag].([]float64)
	return v, ok
}

// Copy sets dst's entry for tag to m's entry for tag, if present. It is
// used when applying override settings to a request snapshot.
func (m *Metadata) Copy(dst *Metadata, tag Tag) bool {
	m.mu.RLock()
	v, ok := m.entries[tag]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	dst.set(tag, v)
	return true
}
