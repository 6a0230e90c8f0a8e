/*
DESCRIPTION
  session.go implements the emulated camera device session: pipeline
  configuration with stream combination validation, request submission
  into the request processor, and flush.

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

// Package session binds the emulated sensor and request processor into a
// camera device session usable through the pipeline contract.
package session

import (
	"sync"

	"github.com/ausocean/utils/logging"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ausocean/hal/buffer"
	"github.com/ausocean/hal/metadata"
	"github.com/ausocean/hal/pipeline"
	"github.com/ausocean/hal/request"
	"github.com/ausocean/hal/sensor"
	"github.com/ausocean/hal/stream"
)

// Config configures a Session.
type Config struct {
	CameraID        uint32
	Characteristics sensor.LogicalCharacteristics

	// Allocator locks buffer handles for synthesis. Defaults to the
	// in-process memory allocator.
	Allocator buffer.Allocator

	// Callback supplies and reclaims framework managed buffers. Both
	// funcs may be nil.
	Callback pipeline.SessionCallback

	// SupportsPartialResults enables delivery of a partial result before
	// the final one.
	SupportsPartialResults bool
}

// Session is an emulated camera device session. It implements
// pipeline.DeviceSession.
type Session struct {
	log   logging.Logger
	token string

	cameraID uint32
	chars    sensor.LogicalCharacteristics

	defaultMap     *stream.ConfigurationMap
	maxResMap      *stream.ConfigurationMap
	physical       sensor.PhysicalConfigurationMaps
	physicalMaxRes sensor.PhysicalConfigurationMaps

	sensor    *sensor.Sensor
	processor *request.Processor

	mu        sync.Mutex
	pipelines []request.Pipeline
}

// New returns a running Session for the given camera. The sensor thread
// starts immediately; Close shuts it down.
func New(cfg Config, log logging.Logger, opts ...sensor.Option) (*Session, error) {
	if len(cfg.Characteristics) == 0 {
		return nil, errors.New("no sensor characteristics")
	}
	chars, ok := cfg.Characteristics[cfg.CameraID]
	if !ok {
		return nil, errors.Errorf("no characteristics for logical camera %d", cfg.CameraID)
	}
	if err := chars.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid logical characteristics")
	}

	s := &Session{
		log:            log,
		token:          uuid.NewString(),
		cameraID:       cfg.CameraID,
		chars:          cfg.Characteristics,
		physical:       make(sensor.PhysicalConfigurationMaps),
		physicalMaxRes: make(sensor.PhysicalConfigurationMaps),
	}
	s.defaultMap = buildConfigurationMap(chars, false)
	s.maxResMap = buildConfigurationMap(chars, true)
	for id, c := range cfg.Characteristics {
		if id == cfg.CameraID {
			continue
		}
		if err := c.Validate(); err != nil {
			return nil, errors.Wrapf(err, "invalid characteristics for physical camera %d", id)
		}
		s.physical[id] = buildConfigurationMap(c, false)
		s.physicalMaxRes[id] = buildConfigurationMap(c, true)
	}

	s.sensor = sensor.New(log, opts...)
	err := s.sensor.StartUp(cfg.CameraID, cfg.Characteristics)
	if err != nil {
		return nil, errors.Wrap(err, "could not start sensor")
	}

	alloc := cfg.Allocator
	if alloc == nil {
		alloc = buffer.MemoryAllocator{}
	}
	s.processor = request.NewProcessor(cfg.CameraID, s.sensor, cfg.Characteristics,
		alloc, cfg.Callback, cfg.SupportsPartialResults, log)

	log.Info("camera session started", "camera", cfg.CameraID, "session", s.token)
	return s, nil
}

// Close flushes outstanding work and stops the session.
func (s *Session) Close() error {
	s.log.Info("camera session closing", "camera", s.cameraID, "session", s.token)
	return s.processor.Close()
}

// Token returns the session's unique identifier.
func (s *Session) Token() string { return s.token }

// CameraID returns the id of the logical camera the session drives.
func (s *Session) CameraID() uint32 { return s.cameraID }

// Characteristics returns the static characteristics document of the
// given logical or physical camera.
func (s *Session) Characteristics(cameraID uint32) (*metadata.Metadata, error) {
	chars, ok := s.chars[cameraID]
	if !ok {
		return nil, pipeline.ErrBadValue
	}

	m := metadata.New()
	m.SetInt32s(metadata.TagSensorInfoPixelArraySize,
		[]int32{int32(chars.FullResWidth), int32(chars.FullResHeight)})
	m.SetInt32s(metadata.TagSensorInfoActiveArraySize,
		[]int32{0, 0, int32(chars.Width), int32(chars.Height)})
	m.SetInt64s(metadata.TagSensorInfoExposureTimeRange,
		[]int64{int64(chars.ExposureRange[0]), int64(chars.ExposureRange[1])})
	m.SetInt64(metadata.TagSensorInfoMaxFrameDuration, int64(chars.FrameDurationRange[1]))
	m.SetInt32s(metadata.TagSensorInfoSensitivityRange,
		[]int32{chars.SensitivityRange[0], chars.SensitivityRange[1]})
	m.SetInt32(metadata.TagSensorInfoColorFilterArrangement, int32(chars.ColorArrangement))
	m.SetInt32(metadata.TagSensorInfoTimestampSource, int32(chars.Timestamp))
	m.SetInt32(metadata.TagSensorOrientation, int32(chars.Orientation))
	facing := int32(0)
	if !chars.IsFrontFacing {
		facing = 1
	}
	m.SetInt32(metadata.TagLensFacing, facing)
	m.SetInt32(metadata.TagRequestPipelineMaxDepth, int32(chars.MaxPipelineDepth))
	return m, nil
}

// ConfigurePipeline validates config against the session's capability
// and, on success, binds a new pipeline delivering its events to the
// given channel. The overall configuration covers every stream of every
// configured pipeline and is what gets validated against stream count
// limits. Returns the new pipeline's id.
func (s *Session) ConfigurePipeline(cameraID uint32, events chan<- pipeline.Event,
	config, overall stream.Configuration) (uint32, error) {

	if cameraID != s.cameraID {
		s.log.Error("pipeline configured for foreign camera", "camera", cameraID)
		return 0, pipeline.ErrBadValue
	}
	if events == nil {
		return 0, pipeline.ErrBadValue
	}
	if len(config.Streams) == 0 {
		s.log.Error("pipeline configuration without streams", "camera", cameraID)
		return 0, pipeline.ErrBadValue
	}
	if len(overall.Streams) == 0 {
		overall = config
	}
	if !sensor.IsStreamCombinationSupported(s.cameraID, overall, s.defaultMap, s.maxResMap,
		s.physical, s.physicalMaxRes, s.chars, s.log) {
		s.log.Error("unsupported stream combination", "camera", cameraID)
		return 0, pipeline.ErrBadValue
	}

	streams := make(map[int32]stream.Stream, len(config.Streams))
	for _, st := range config.Streams {
		if _, dup := streams[st.ID]; dup {
			s.log.Error("duplicate stream id in configuration", "stream", st.ID)
			return 0, pipeline.ErrBadValue
		}
		streams[st.ID] = st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := uint32(len(s.pipelines))
	s.pipelines = append(s.pipelines, request.Pipeline{
		ID:       id,
		CameraID: cameraID,
		Events:   events,
		Streams:  streams,
	})
	s.log.Debug("pipeline configured", "pipeline", id, "streams", len(streams))
	return id, nil
}

// ConfiguredStreams returns the streams bound to a configured pipeline.
func (s *Session) ConfiguredStreams(pipelineID uint32) ([]stream.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(pipelineID) >= len(s.pipelines) {
		return nil, pipeline.ErrBadValue
	}
	streams := make([]stream.Stream, 0, len(s.pipelines[pipelineID].Streams))
	for _, st := range s.pipelines[pipelineID].Streams {
		streams = append(streams, st)
	}
	return streams, nil
}

// SubmitRequests hands one frame's requests to the request processor.
// Blocks while the processor's pending queue is full.
func (s *Session) SubmitRequests(frameNumber uint32, requests []pipeline.Request) error {
	s.mu.Lock()
	pipelines := make([]request.Pipeline, len(s.pipelines))
	copy(pipelines, s.pipelines)
	s.mu.Unlock()

	if len(pipelines) == 0 {
		return pipeline.ErrNotConfigured
	}
	return s.processor.ProcessPipelineRequests(frameNumber, requests, pipelines)
}

// Flush completes all in-flight and pending requests with errors.
func (s *Session) Flush() error {
	return s.processor.Flush()
}

// RepeatingRequestEnd notifies the session that a repeating request
// ended at the given frame for the given streams.
func (s *Session) RepeatingRequestEnd(frameNumber int32, streamIDs []int32) {
	s.log.Debug("repeating request ended", "frame", frameNumber, "streams", len(streamIDs))
	s.processor.RepeatingRequestEnd()
}

// SetScreenRotation records the device orientation applied to subsequent
// captures.
func (s *Session) SetScreenRotation(deg uint32) {
	s.processor.SetScreenRotation(deg)
}

// DefaultRequest returns a settings document suitable as a starting
// point for the given template.
func (s *Session) DefaultRequest(t request.Template) (*metadata.Metadata, error) {
	return s.processor.DefaultRequest(t)
}

// outputSizes lists the output dimensions a sensor of the given size
// advertises: the sensor size itself plus the standard sizes that fit.
func outputSizes(width, height uint32) []stream.Size {
	sizes := []stream.Size{{Width: width, Height: height}}
	for _, s := range []stream.Size{
		{Width: 1920, Height: 1080},
		{Width: 1280, Height: 720},
		{Width: 640, Height: 480},
		{Width: 320, Height: 240},
	} {
		if s.Width <= width && s.Height <= height &&
			(s.Width != width || s.Height != height) {
			sizes = append(sizes, s)
		}
	}
	return sizes
}

// buildConfigurationMap derives a camera's capability map from its
// sensor characteristics for one resolution mode.
func buildConfigurationMap(chars *sensor.SensorCharacteristics, maxRes bool) *stream.ConfigurationMap {
	width, height := chars.Width, chars.Height
	if maxRes {
		width, height = chars.FullResWidth, chars.FullResHeight
	}

	m := stream.NewConfigurationMap()
	for _, f := range []stream.PixelFormat{
		stream.FormatYCbCr420,
		stream.FormatYCrCb420SP,
		stream.FormatRGB888,
		stream.FormatRGBA8888,
		stream.FormatBlob,
		stream.FormatImplementationDefined,
	} {
		for _, sz := range outputSizes(width, height) {
			m.AddOutputSize(f, sz.Width, sz.Height)
			m.AddDynamicPhysicalSize(f, sz.Width, sz.Height)
		}
	}
	// RAW and depth output only at the exact sensor size.
	m.AddOutputSize(stream.FormatRAW16, width, height)
	m.AddOutputSize(stream.FormatY16, width, height)
	if chars.Is10BitCapable {
		for _, sz := range outputSizes(width, height) {
			m.AddOutputSize(stream.FormatYCbCrP010, sz.Width, sz.Height)
		}
	}

	if chars.MaxInputStreams > 0 {
		m.AddInputOutputs(stream.FormatYCbCr420, stream.FormatYCbCr420, stream.FormatBlob)
		if chars.QuadBayerSensor {
			m.AddInputOutputs(stream.FormatRAW16,
				stream.FormatRAW16, stream.FormatYCbCr420, stream.FormatBlob)
		}
	}
	return m
}
