/*
DESCRIPTION
  settings.go resolves request metadata into per-camera sensor controls,
  clamping each value to the camera's advertised ranges, and provides the
  default request templates.

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

package request

import (
	"time"

	"github.com/pkg/errors"

	"github.com/ausocean/hal/metadata"
	"github.com/ausocean/hal/sensor"
)

// Template identifies a default request template.
type Template int

const (
	TemplatePreview Template = iota + 1
	TemplateStillCapture
	TemplateVideoRecord
	TemplateVideoSnapshot
	TemplateZeroShutterLag
	TemplateManual
)

// initializeLogicalSettings resolves one request's metadata into sensor
// controls for the logical camera and every physical camera with output
// in this request. Values outside a camera's advertised ranges clamp.
func (p *Processor) initializeLogicalSettings(settings *metadata.Metadata,
	physicalIDs []uint32) (sensor.LogicalCameraSettings, error) {

	logical := make(sensor.LogicalCameraSettings, 1+len(physicalIDs))

	set, err := p.resolveSettings(settings, p.cameraID)
	if err != nil {
		return nil, err
	}
	logical[p.cameraID] = set

	for _, id := range physicalIDs {
		set, err := p.resolveSettings(settings, id)
		if err != nil {
			return nil, err
		}
		logical[id] = set
	}
	return logical, nil
}

func (p *Processor) resolveSettings(settings *metadata.Metadata, cameraID uint32) (*sensor.CameraSettings, error) {
	chars, ok := p.chars[cameraID]
	if !ok {
		return nil, errors.Errorf("no characteristics for camera %d", cameraID)
	}

	set := &sensor.CameraSettings{
		Exposure:      sensor.DefaultExposure,
		FrameDuration: sensor.DefaultFrameDuration,
		Gain:          sensor.DefaultSensitivity,
		ZoomRatio:     1.0,
		Timestamp:     chars.Timestamp,
	}
	if settings == nil {
		return set, nil
	}

	if v, ok := settings.Int64(metadata.TagSensorExposureTime); ok {
		set.Exposure = clampDuration(time.Duration(v), chars.ExposureRange)
	}
	if v, ok := settings.Int64(metadata.TagSensorFrameDuration); ok {
		set.FrameDuration = clampDuration(time.Duration(v), chars.FrameDurationRange)
	}
	// Exposure cannot outlast the frame.
	if set.Exposure > set.FrameDuration {
		set.Exposure = set.FrameDuration
	}
	if v, ok := settings.Int32(metadata.TagSensorSensitivity); ok {
		set.Gain = clampInt32(v, chars.SensitivityRange)
	}

	if v, ok := settings.Int32(metadata.TagSensorTestPatternMode); ok {
		set.TestPatternMode = v
	}
	if v, ok := settings.Int32s(metadata.TagSensorTestPatternData); ok && len(v) >= 4 {
		for i := 0; i < 4; i++ {
			set.TestPatternData[i] = uint32(v[i])
		}
	}
	if v, ok := settings.Int32(metadata.TagSensorPixelMode); ok {
		set.SensorPixelMode = v == metadata.PixelModeMaxRes
	}

	if v, ok := settings.Int32(metadata.TagControlVideoStabilizationMode); ok {
		set.VideoStab = v
		set.ReportVideoStab = true
	}
	if v, ok := settings.Int32(metadata.TagEdgeMode); ok {
		set.EdgeMode = v
		set.ReportEdgeMode = true
	}
	if v, ok := settings.Int32(metadata.TagScalerRotateAndCrop); ok {
		set.RotateAndCrop = v
		set.ReportRotateAndCrop = true
	}
	if v, ok := settings.Float32(metadata.TagControlZoomRatio); ok && v >= 1.0 {
		set.ZoomRatio = float64(v)
	}
	if v, ok := settings.Int32(metadata.TagStatisticsLensShadingMapMode); ok {
		set.LensShadingMapMode = v
	}

	set.ReportNeutralColorPoint = settings.Has(metadata.TagSensorNeutralColorPoint)
	set.ReportGreenSplit = settings.Has(metadata.TagSensorGreenSplit)
	set.ReportNoiseProfile = settings.Has(metadata.TagSensorNoiseProfile)

	return set, nil
}

// DefaultRequest returns a settings document suitable as a starting
// point for the given template.
func (p *Processor) DefaultRequest(t Template) (*metadata.Metadata, error) {
	chars, ok := p.chars[p.cameraID]
	if !ok {
		return nil, errors.Errorf("no characteristics for camera %d", p.cameraID)
	}

	m := metadata.New()
	m.SetInt64(metadata.TagSensorExposureTime, int64(sensor.DefaultExposure))
	m.SetInt64(metadata.TagSensorFrameDuration, int64(sensor.DefaultFrameDuration))
	m.SetInt32(metadata.TagSensorSensitivity, sensor.DefaultSensitivity)
	m.SetFloat32(metadata.TagControlZoomRatio, 1.0)
	m.SetInt32(metadata.TagControlVideoStabilizationMode, metadata.VideoStabilizationOff)
	m.SetInt32(metadata.TagScalerRotateAndCrop, metadata.RotateAndCropNone)

	switch t {
	case TemplateStillCapture:
		m.SetInt32(metadata.TagEdgeMode, metadata.EdgeModeHighQuality)
	case TemplateVideoRecord, TemplateVideoSnapshot:
		m.SetInt32(metadata.TagEdgeMode, metadata.EdgeModeFast)
	case TemplateZeroShutterLag:
		m.SetInt32(metadata.TagEdgeMode, metadata.EdgeModeZeroShutterLag)
	case TemplatePreview, TemplateManual:
		m.SetInt32(metadata.TagEdgeMode, metadata.EdgeModeOff)
	default:
		return nil, errors.Errorf("unsupported request template %d", t)
	}

	// Clamp the defaults to the camera's advertised ranges.
	if exp, ok := m.Int64(metadata.TagSensorExposureTime); ok {
		m.SetInt64(metadata.TagSensorExposureTime,
			int64(clampDuration(time.Duration(exp), chars.ExposureRange)))
	}
	if dur, ok := m.Int64(metadata.TagSensorFrameDuration); ok {
		m.SetInt64(metadata.TagSensorFrameDuration,
			int64(clampDuration(time.Duration(dur), chars.FrameDurationRange)))
	}
	return m, nil
}

func clampDuration(v time.Duration, r [2]time.Duration) time.Duration {
	if v < r[0] {
		return r[0]
	}
	if v > r[1] {
		return r[1]
	}
	return v
}

func clampInt32(v int32, r [2]int32) int32 {
	if v < r[0] {
		return r[0]
	}
	if v > r[1] {
		return r[1]
	}
	return v
}
