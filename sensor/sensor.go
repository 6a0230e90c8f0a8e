/*
DESCRIPTION
  sensor.go implements the emulated sensor capture loop: a goroutine that
  models rolling shutter frame timing, synthesizes the output buffers of
  the current request, emits shutter notifications and delivers capture
  results with enriched metadata at frame boundaries.

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
	"math/rand"
	"sync"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/hal/buffer"
	"github.com/ausocean/hal/jpeg"
	"github.com/ausocean/hal/metadata"
	"github.com/ausocean/hal/pipeline"
	"github.com/ausocean/hal/scene"
	"github.com/ausocean/hal/stream"
)

// timeAccuracy is the tolerated imprecision when sleeping out the
// remainder of a frame cycle.
const timeAccuracy = 2 * time.Millisecond

// CameraSettings are the per-camera controls of the current request,
// resolved from request metadata by the request processor.
type CameraSettings struct {
	Exposure      time.Duration
	FrameDuration time.Duration
	Gain          int32 // ISO.

	TestPatternMode int32
	TestPatternData [4]uint32
	ScreenRotation  uint32

	VideoStab     int32
	EdgeMode      int32
	RotateAndCrop int32
	ZoomRatio     float64

	// SensorPixelMode selects maximum resolution readout.
	SensorPixelMode bool

	LensShadingMapMode int32
	Timestamp          TimestampSource

	// Report* flags mirror the presence of the corresponding keys in the
	// request, deciding which values appear in the result.
	ReportVideoStab         bool
	ReportEdgeMode          bool
	ReportNeutralColorPoint bool
	ReportGreenSplit        bool
	ReportNoiseProfile      bool
	ReportRotateAndCrop     bool
}

// LogicalCameraSettings maps camera IDs to their settings for one request.
type LogicalCameraSettings map[uint32]*CameraSettings

// binningInfo tracks which stream kinds of one camera participate in the
// current frame, deciding the binning related result keys.
type binningInfo struct {
	quadBayer        bool
	maxRes           bool
	hasRaw           bool
	hasNonRaw        bool
	hasCroppedRaw    bool
	inSensorZoomUsed bool
}

// Sensor is the emulated sensor capture core. One Sensor serves one
// logical camera and all of its physical sub-cameras.
type Sensor struct {
	log   logging.Logger
	clock Clock
	scn   scene.Generator
	rng   *rand.Rand
	gamma *gammaTables
	jpeg  *jpeg.Compressor

	rgbRgbMatrix [3][3]float64

	logicalID uint32
	chars     LogicalCharacteristics

	mu             sync.Mutex
	vsync          chan struct{}
	settings       LogicalCameraSettings
	result         *pipeline.Result
	partial        *pipeline.Result
	inputBuffers   []*buffer.SensorBuffer
	outputBuffers  []*buffer.SensorBuffer
	nextCapture    time.Time
	nextReadout    time.Time
	binningByID    map[uint32]*binningInfo
	running        bool
	stop           chan struct{}
	wg             sync.WaitGroup
}

// Option configures a Sensor.
type Option func(*Sensor)

// WithClock replaces the wall clock, for deterministic timing in tests.
func WithClock(c Clock) Option { return func(s *Sensor) { s.clock = c } }

// WithScene replaces the synthetic scene generator.
func WithScene(g scene.Generator) Option { return func(s *Sensor) { s.scn = g } }

// WithSeed seeds the capture noise generator.
func WithSeed(seed int64) Option { return func(s *Sensor) { s.rng = rand.New(rand.NewSource(seed)) } }

// New returns a Sensor ready to be started with StartUp.
func New(log logging.Logger, opts ...Option) *Sensor {
	s := &Sensor{
		log:         log,
		clock:       systemClock{},
		rng:         rand.New(rand.NewSource(1)),
		gamma:       newGammaTables(),
		vsync:       make(chan struct{}, 1),
		binningByID: make(map[uint32]*binningInfo),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartUp validates the characteristics of every camera and starts the
// capture loop. Starting an already running sensor is a no-op.
func (s *Sensor) StartUp(logicalID uint32, chars LogicalCharacteristics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if len(chars) == 0 {
		return pipeline.ErrBadValue
	}

	device, ok := chars[logicalID]
	if !ok {
		s.log.Error("logical camera absent from characteristics", "id", logicalID)
		return pipeline.ErrBadValue
	}

	for id, sc := range chars {
		if err := sc.Validate(); err != nil {
			s.log.Error("sensor characteristics not supported", "id", id, "error", err.Error())
			return pipeline.ErrBadValue
		}
	}

	s.logicalID = logicalID
	s.chars = chars
	if s.scn == nil {
		s.scn = scene.NewSynthetic(device.FullResWidth, device.FullResHeight, electronsPerLuxSecond)
	}
	s.jpeg = jpeg.NewCompressor(s.log)

	s.running = true
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.captureLoop()
	return nil
}

// ShutDown stops the capture loop and joins it.
func (s *Sensor) ShutDown() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()
	s.wg.Wait()
	s.jpeg.Close()
	return nil
}

// SetCurrentRequest installs the request the next frame cycle will
// capture. The sensor takes ownership of all buffers.
func (s *Sensor) SetCurrentRequest(settings LogicalCameraSettings, result, partial *pipeline.Result,
	input, output []*buffer.SensorBuffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	s.result = result
	s.partial = partial
	s.inputBuffers = input
	s.outputBuffers = output
}

// WaitForVSync blocks until the next capture cycle begins, or the timeout
// expires.
func (s *Sensor) WaitForVSync(timeout time.Duration) bool {
	// Drain a stale signal so only the next cycle satisfies the wait.
	select {
	case <-s.vsync:
	default:
	}
	select {
	case <-s.vsync:
		return true
	case <-s.clock.After(timeout):
		return false
	case <-s.stop:
		return false
	}
}

// Flush aborts in-flight work: it waits out the current frame cycle,
// recreates the JPEG compressor to abandon queued compressions, and fails
// any pending buffers with a result error notification.
func (s *Sensor) Flush() error {
	ok := s.WaitForVSync(MaxFrameDuration)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Recreating the compressor aborts any ongoing processing and flushes
	// pending jobs.
	if s.jpeg != nil {
		s.jpeg.Close()
		s.jpeg = jpeg.NewCompressor(s.log)
	}

	for _, in := range s.inputBuffers {
		in.Close()
	}
	s.inputBuffers = nil

	if len(s.outputBuffers) > 0 {
		for _, out := range s.outputBuffers {
			out.StreamBuffer.Status = pipeline.BufferFailed
		}
		if s.result != nil && s.result.Metadata != nil {
			first := s.outputBuffers[0]
			first.Events <- pipeline.Event{
				Kind:       pipeline.EventError,
				PipelineID: s.result.PipelineID,
				Error: pipeline.Error{
					FrameNumber: first.FrameNumber,
					StreamID:    -1,
					Code:        pipeline.ErrorResult,
				},
			}
		}
		for _, out := range s.outputBuffers {
			out.IsFailedRequest = true
			out.Close()
		}
		s.outputBuffers = nil
	}
	s.settings = nil
	s.result = nil
	s.partial = nil

	if !ok {
		return pipeline.ErrTimedOut
	}
	return nil
}

// captureLoop runs the frame cycle until ShutDown.
func (s *Sensor) captureLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		s.captureFrame()
	}
}

// captureFrame executes one frame cycle: swap in the pending request,
// signal vsync, synthesize every output buffer, and deliver results at
// the end of the cycle.
func (s *Sensor) captureFrame() {
	// Stage 1: read in the latest control parameters.
	s.mu.Lock()
	settings := s.settings
	output := s.outputBuffers
	input := s.inputBuffers
	result := s.result
	partial := s.partial
	s.settings, s.outputBuffers, s.inputBuffers, s.result, s.partial = nil, nil, nil, nil, nil

	// Signal vsync for start of readout.
	select {
	case s.vsync <- struct{}{}:
	default:
	}
	s.mu.Unlock()

	frameDuration := MinFrameDuration
	exposure := MinExposure
	// Frame duration is always the same among all physical devices.
	for _, set := range settings {
		frameDuration = set.FrameDuration
		exposure = set.Exposure
		break
	}
	// Readout must leave at least the minimum vertical blanking interval
	// before the next frame starts.
	if exposure > frameDuration-minVerticalBlank {
		exposure = frameDuration - minVerticalBlank
	}

	startRealTime := s.clock.Now()
	frameEndRealTime := startRealTime.Add(frameDuration)

	// Stage 2: capture the new image.
	s.nextCapture = frameEndRealTime
	s.nextReadout = frameEndRealTime.Add(exposure)
	for id := range s.binningByID {
		delete(s.binningByID, id)
	}

	reprocess := false
	if len(input) > 0 {
		if len(input) > 1 {
			s.log.Warning("reprocess supports only single input")
		}
		if result != nil && result.Metadata != nil {
			if ts, ok := result.Metadata.Int64(metadata.TagSensorTimestamp); ok {
				s.nextCapture = time.Unix(0, ts)
			} else {
				s.log.Warning("reprocess timestamp absent")
			}
			if exp, ok := result.Metadata.Int64(metadata.TagSensorExposureTime); ok {
				s.nextReadout = s.nextCapture.Add(time.Duration(exp))
			} else {
				s.nextReadout = s.nextCapture
			}
		}
		reprocess = true
	}

	var events chan<- pipeline.Event
	if len(output) > 0 && settings != nil {
		events = output[0].Events
		events <- pipeline.Event{
			Kind:       pipeline.EventShutter,
			PipelineID: result.PipelineID,
			Shutter: pipeline.Shutter{
				FrameNumber:      output[0].FrameNumber,
				Timestamp:        s.nextCapture.UnixNano(),
				ReadoutTimestamp: s.nextReadout.UnixNano(),
			},
		}

		for _, b := range output {
			s.captureBuffer(b, settings, input, result, reprocess)
		}
	}

	if reprocess {
		for _, in := range input {
			in.StreamBuffer.Status = pipeline.BufferOK
			in.Close()
		}
	}

	// Under tight deadlines return the results immediately so external
	// delays in delivery can't skew the frame cycle; otherwise return
	// them after the cycle expires.
	delivered := false
	workDone := s.clock.Now()
	if workDone.Add(returnResultThreshold).After(frameEndRealTime) {
		s.returnResults(events, settings, result, partial, reprocess, &delivered)
	}

	workDone = s.clock.Now()
	if remaining := frameEndRealTime.Sub(workDone); remaining > timeAccuracy {
		s.clock.Sleep(remaining)
	}

	s.returnResults(events, settings, result, partial, reprocess, &delivered)
}

// captureBuffer synthesizes one output buffer of the current frame.
func (s *Sensor) captureBuffer(b *buffer.SensorBuffer, settings LogicalCameraSettings,
	input []*buffer.SensorBuffer, result *pipeline.Result, reprocess bool) {

	set, ok := settings[b.CameraID]
	if !ok {
		s.log.Error("sensor settings absent for device", "id", b.CameraID)
		b.Close()
		return
	}
	chars, ok := s.chars[b.CameraID]
	if !ok {
		s.log.Error("sensor characteristics absent for device", "id", b.CameraID)
		b.Close()
		return
	}

	info := s.binning(b.CameraID)
	info.quadBayer = chars.QuadBayerSensor

	s.scn.Initialize(chars.FullResWidth, chars.FullResHeight, electronsPerLuxSecond)
	s.scn.SetExposure(set.Exposure)
	s.scn.SetColorFilterXYZ(chars.ColorFilter)
	s.scn.SetTestPattern(set.TestPatternMode == metadata.TestPatternModeSolidColor)
	s.scn.SetTestPatternData(set.TestPatternData)
	s.scn.SetScreenRotation(set.ScreenRotation)

	handshakeDivider := uint32(regularSceneHandshake)
	if set.VideoStab == metadata.VideoStabilizationOn || set.VideoStab == metadata.VideoStabilizationPreview {
		handshakeDivider = reducedSceneHandshake
	}
	s.scn.Calculate(s.nextCapture, handshakeDivider)

	b.StreamBuffer.Status = pipeline.BufferOK
	maxResMode := set.SensorPixelMode
	info.maxRes = maxResMode
	switch b.Format {
	case stream.FormatRAW16:
		info.hasRaw = true
		if !info.hasCroppedRaw && b.UseCase == stream.UseCaseCroppedRaw {
			info.hasCroppedRaw = true
		}
	default:
		info.hasNonRaw = true
	}

	// RAW reprocessing on quad-Bayer sensors remosaics instead.
	treatAsReprocess := reprocess
	if chars.QuadBayerSensor && reprocess && input[0].Format == stream.FormatRAW16 {
		treatAsReprocess = false
	}
	process := processRegular
	if treatAsReprocess {
		process = processReprocess
	} else if set.EdgeMode == metadata.EdgeModeHighQuality {
		process = processHighQuality
	}

	if b.Space != stream.ColorSpaceUnspecified {
		s.calculateRgbRgbMatrix(b.Space, chars)
	}

	rotate := set.RotateAndCrop == metadata.RotateAndCrop90

	switch b.Format {
	case stream.FormatRAW16:
		s.captureRAW16(b, set, chars, input, reprocess, maxResMode, info)
		b.Close()
	case stream.FormatRGB888:
		if reprocess {
			s.failUnsupportedReprocess(b)
		} else {
			s.captureRGB(b.Plane.Data, b.Width, b.Height, b.Plane.Stride, layoutRGB,
				set.Gain, b.Space, chars)
		}
		b.Close()
	case stream.FormatRGBA8888:
		if reprocess {
			s.failUnsupportedReprocess(b)
		} else {
			s.captureRGB(b.Plane.Data, b.Width, b.Height, b.Plane.Stride, layoutRGBA,
				set.Gain, b.Space, chars)
		}
		b.Close()
	case stream.FormatBlob:
		s.captureBlob(b, set, chars, input, result, process, treatAsReprocess, reprocess, rotate)
	case stream.FormatYCbCr420, stream.FormatYCrCb420SP:
		in := yuvFrame{}
		if treatAsReprocess {
			in = yuvFrame{width: input[0].Width, height: input[0].Height, planes: input[0].YCbCr}
		}
		out := yuvFrame{width: b.Width, height: b.Height, planes: b.YCbCr}
		err := s.processYUV420(in, out, set.Gain, process, set.ZoomRatio, rotate, b.Space, chars)
		if err != nil {
			s.log.Error("YUV processing failed", "error", err.Error(), "frame", b.FrameNumber)
			b.StreamBuffer.Status = pipeline.BufferFailed
		}
		b.Close()
	case stream.FormatY16:
		if reprocess {
			s.failUnsupportedReprocess(b)
		} else if b.Dataspace == stream.DataspaceDepth {
			s.captureDepth(b.Plane.Data, set.Gain, b.Width, b.Height, b.Plane.Stride, chars)
		} else {
			s.log.Error("Y16 dataspace not supported", "dataspace", int(b.Dataspace))
			b.StreamBuffer.Status = pipeline.BufferFailed
		}
		b.Close()
	case stream.FormatYCbCrP010:
		if reprocess {
			s.failUnsupportedReprocess(b)
		} else {
			out := yuvFrame{width: b.Width, height: b.Height, planes: b.YCbCr}
			err := s.processYUV420(yuvFrame{}, out, set.Gain, process, set.ZoomRatio, rotate, b.Space, chars)
			if err != nil {
				s.log.Error("YUV processing failed", "error", err.Error(), "frame", b.FrameNumber)
				b.StreamBuffer.Status = pipeline.BufferFailed
			}
		}
		b.Close()
	default:
		s.log.Error("unknown format, no output", "format", b.Format.String())
		b.StreamBuffer.Status = pipeline.BufferFailed
		b.Close()
	}
}

// captureRAW16 renders or remosaics a RAW16 output.
func (s *Sensor) captureRAW16(b *buffer.SensorBuffer, set *CameraSettings, chars *SensorCharacteristics,
	input []*buffer.SensorBuffer, reprocess, maxResMode bool, info *binningInfo) {

	if !reprocess {
		minFullResSize := 2 * int(chars.FullResWidth) * int(chars.FullResHeight)
		minDefaultSize := 2 * int(chars.Width) * int(chars.Height)
		defaultModeForQB := chars.QuadBayerSensor && !maxResMode
		bufferSize := len(b.Plane.Data)
		if defaultModeForQB {
			if bufferSize < minDefaultSize {
				s.log.Error("output buffer too small for RAW capture in default mode",
					"expected", minDefaultSize, "got", bufferSize, "id", b.CameraID)
				b.StreamBuffer.Status = pipeline.BufferFailed
				return
			}
		} else if bufferSize < minFullResSize {
			s.log.Error("output buffer too small for RAW capture in max res mode",
				"expected", minFullResSize, "got", bufferSize, "id", b.CameraID)
			b.StreamBuffer.Status = pipeline.BufferFailed
			return
		}
		if defaultModeForQB {
			if set.ZoomRatio > 2.0 && b.UseCase == stream.UseCaseCroppedRaw {
				info.inSensorZoomUsed = true
				s.captureRawInSensorZoom(b.Plane.Data, b.Plane.Stride, set.Gain, chars)
			} else {
				s.captureRawBinned(b.Plane.Data, b.Plane.Stride, set.Gain, chars)
			}
		} else {
			s.captureRawFullRes(b.Plane.Data, b.Plane.Stride, set.Gain, chars)
		}
		return
	}

	if !chars.QuadBayerSensor {
		s.failUnsupportedReprocess(b)
		return
	}
	in := input[0]
	if in.Width != b.Width || in.Height != b.Height {
		s.log.Error("RAW16 input dimensions don't match output dimensions",
			"inWidth", in.Width, "inHeight", in.Height, "outWidth", b.Width, "outHeight", b.Height)
		b.StreamBuffer.Status = pipeline.BufferFailed
		return
	}
	err := remosaicRAW16Image(in.Plane.Data, b.Plane.Data, b.Plane.Stride, chars)
	if err != nil {
		s.log.Error("RAW16 remosaic failed", "error", err.Error())
		b.StreamBuffer.Status = pipeline.BufferFailed
	}
}

// captureBlob renders a YUV frame and hands it to the JPEG compressor.
// The buffer is released by the compressor, not here; its status flips to
// OK only on successful compression.
func (s *Sensor) captureBlob(b *buffer.SensorBuffer, set *CameraSettings, chars *SensorCharacteristics,
	input []*buffer.SensorBuffer, result *pipeline.Result, process processType,
	treatAsReprocess, reprocess, rotate bool) {

	switch {
	// An unknown dataspace on a BLOB stream means JFIF.
	case b.Dataspace == stream.DataspaceJFIF, b.Dataspace == stream.DataspaceUnknown:
		in := yuvFrame{}
		if treatAsReprocess {
			in = yuvFrame{width: input[0].Width, height: input[0].Height, planes: input[0].YCbCr}
		}
		planes := allocPlanarYUV(b.Width, b.Height, 1)
		out := yuvFrame{width: b.Width, height: b.Height, planes: planes}
		err := s.processYUV420(in, out, set.Gain, process, set.ZoomRatio, rotate, b.Space, chars)
		if err != nil {
			s.log.Error("YUV processing failed", "error", err.Error(), "frame", b.FrameNumber)
			b.StreamBuffer.Status = pipeline.BufferFailed
			b.Close()
			return
		}
		s.queueJPEG(b, planes, result)
	case b.Dataspace == stream.DataspaceJPEGR && !reprocess:
		planes := allocPlanarYUV(b.Width, b.Height, 2)
		out := yuvFrame{width: b.Width, height: b.Height, planes: planes}
		err := s.processYUV420(yuvFrame{}, out, set.Gain, process, set.ZoomRatio, rotate, b.Space, chars)
		if err != nil {
			s.log.Error("YUV processing failed", "error", err.Error(), "frame", b.FrameNumber)
			b.StreamBuffer.Status = pipeline.BufferFailed
			b.Close()
			return
		}
		s.queueJPEG(b, convertPlanesTo8Bit(planes, b.Width, b.Height), result)
	default:
		s.log.Error("BLOB dataspace not supported", "dataspace", int(b.Dataspace))
		b.StreamBuffer.Status = pipeline.BufferFailed
		b.Close()
	}
}

// queueJPEG submits a rendered frame for compression, transferring buffer
// ownership to the compressor.
func (s *Sensor) queueJPEG(b *buffer.SensorBuffer, planes buffer.YCbCrPlanes, result *pipeline.Result) {
	// The compressor flips this to OK on success.
	b.StreamBuffer.Status = pipeline.BufferFailed
	var resultClone *metadata.Metadata
	if result != nil {
		resultClone = metadata.Clone(result.Metadata)
	}
	err := s.jpeg.QueueYUV420(&jpeg.Job{
		Input:  &jpeg.YUV420Input{Width: b.Width, Height: b.Height, Planes: planes},
		Output: b,
		Result: resultClone,
	})
	if err != nil {
		s.log.Error("could not queue JPEG job", "error", err.Error(), "frame", b.FrameNumber)
		b.Close()
	}
}

// convertPlanesTo8Bit narrows 16-bit planes to their high bytes, for
// compression paths that render at higher depth.
func convertPlanesTo8Bit(in buffer.YCbCrPlanes, width, height uint32) buffer.YCbCrPlanes {
	out := allocPlanarYUV(width, height, 1)
	narrowPlane(out.Y, out.YStride, in.Y, in.YStride, int(width), int(height))
	narrowPlane(out.Cb, out.CbCrStride, in.Cb, in.CbCrStride, int(width)/2, int(height)/2)
	narrowPlane(out.Cr, out.CbCrStride, in.Cr, in.CbCrStride, int(width)/2, int(height)/2)
	return out
}

func narrowPlane(dst []byte, dstStride int, src []byte, srcStride, w, h int) {
	for row := 0; row < h; row++ {
		d := dst[row*dstStride:]
		v := src[row*srcStride:]
		for col := 0; col < w; col++ {
			d[col] = v[col*2+1] // High byte of little-endian sample.
		}
	}
}

func (s *Sensor) failUnsupportedReprocess(b *buffer.SensorBuffer) {
	s.log.Error("reprocess requests with output format not supported", "format", b.Format.String())
	b.StreamBuffer.Status = pipeline.BufferFailed
}

func (s *Sensor) binning(id uint32) *binningInfo {
	info, ok := s.binningByID[id]
	if !ok {
		info = &binningInfo{}
		s.binningByID[id] = info
	}
	return info
}

// returnResults enriches the result metadata and delivers the partial and
// final results. Safe to call twice per frame; only the first delivery
// takes effect.
func (s *Sensor) returnResults(events chan<- pipeline.Event, settings LogicalCameraSettings,
	result, partial *pipeline.Result, reprocess bool, delivered *bool) {

	if *delivered || events == nil || result == nil || result.Metadata == nil {
		return
	}
	*delivered = true

	logicalSettings, ok := settings[s.logicalID]
	if !ok {
		s.log.Error("logical camera not found in settings", "id", s.logicalID)
		return
	}
	chars, ok := s.chars[s.logicalID]
	if !ok {
		s.log.Error("sensor characteristics absent for device", "id", s.logicalID)
		return
	}

	captureNS := s.nextCapture.UnixNano()
	result.Metadata.SetInt64(metadata.TagSensorTimestamp, captureNS)
	skew := time.Duration(chars.FullResHeight-1) * chars.rowReadoutTime()
	result.Metadata.SetInt64(metadata.TagSensorRollingShutterSkew, int64(skew))

	if result.Metadata.Has(metadata.TagStatisticsLensIntrinsicSamples) {
		result.Metadata.SetInt64(metadata.TagStatisticsLensIntrinsicTimestamps, captureNS)
	}

	if info, ok := s.binningByID[s.logicalID]; ok {
		// Logical stream was included in the request.
		binned := !reprocess && info.quadBayer && info.maxRes && info.hasRaw && !info.hasNonRaw
		result.Metadata.SetBool(metadata.TagSensorRawBinningFactorUsed, binned)
		if info.hasCroppedRaw {
			if info.inSensorZoomUsed {
				result.Metadata.SetInt32s(metadata.TagScalerRawCropRegion, chars.RawCropRegionZoomed[:])
			} else {
				result.Metadata.SetInt32s(metadata.TagScalerRawCropRegion, chars.RawCropRegionUnzoomed[:])
			}
		}
	}

	if logicalSettings.LensShadingMapMode == metadata.LensShadingMapModeOn &&
		chars.LensShadingMapSize[0] > 0 && chars.LensShadingMapSize[1] > 0 {
		// Perfect lens, no actual shading needed.
		shadingMap := make([]float32, chars.LensShadingMapSize[0]*chars.LensShadingMapSize[1]*4)
		for i := range shadingMap {
			shadingMap[i] = 1.0
		}
		result.Metadata.SetFloat32s(metadata.TagStatisticsLensShadingMap, shadingMap)
	}
	if logicalSettings.ReportVideoStab {
		result.Metadata.SetInt32(metadata.TagControlVideoStabilizationMode, logicalSettings.VideoStab)
	}
	if logicalSettings.ReportEdgeMode {
		result.Metadata.SetInt32(metadata.TagEdgeMode, logicalSettings.EdgeMode)
	}
	if logicalSettings.ReportNeutralColorPoint {
		result.Metadata.SetInt32s(metadata.TagSensorNeutralColorPoint, neutralColorPoint[:])
	}
	if logicalSettings.ReportGreenSplit {
		result.Metadata.SetFloat32(metadata.TagSensorGreenSplit, greenSplit)
	}
	if logicalSettings.ReportNoiseProfile {
		appendNoiseProfile(result.Metadata, logicalSettings.Gain, chars.baseGainFactor())
	}
	if logicalSettings.ReportRotateAndCrop {
		result.Metadata.SetInt32(metadata.TagScalerRotateAndCrop, logicalSettings.RotateAndCrop)
	}

	for id, physical := range result.Physical {
		physicalSettings, ok := settings[id]
		if !ok {
			s.log.Error("physical settings absent", "id", id)
			continue
		}
		if info, ok := s.binningByID[id]; ok {
			// Physical stream was included in the request.
			binned := !reprocess && info.quadBayer && info.maxRes && info.hasRaw && !info.hasNonRaw
			physical.SetBool(metadata.TagSensorRawBinningFactorUsed, binned)
		}
		// Sensor timestamp of all physical devices must be the same.
		physical.SetInt64(metadata.TagSensorTimestamp, captureNS)
		if physicalSettings.ReportNeutralColorPoint {
			physical.SetInt32s(metadata.TagSensorNeutralColorPoint, neutralColorPoint[:])
		}
		if physicalSettings.ReportGreenSplit {
			physical.SetFloat32(metadata.TagSensorGreenSplit, greenSplit)
		}
		if physicalSettings.ReportNoiseProfile {
			physicalChars, ok := s.chars[id]
			if !ok {
				s.log.Error("sensor characteristics absent for device", "id", id)
				continue
			}
			appendNoiseProfile(physical, physicalSettings.Gain, physicalChars.baseGainFactor())
		}
	}

	// A partial is only delivered when partial results are supported.
	if partial != nil && partial.Partial {
		events <- pipeline.Event{Kind: pipeline.EventResult, PipelineID: partial.PipelineID, Result: partial}
	}
	events <- pipeline.Event{Kind: pipeline.EventResult, PipelineID: result.PipelineID, Result: result}
}

// appendNoiseProfile records the sensor noise model for the applied gain.
// The profile is the same across all four CFA channels.
func appendNoiseProfile(result *metadata.Metadata, gain int32, baseGainFactor float64) {
	totalGain := float64(gain) / 100.0 * baseGainFactor
	noiseVarGain := totalGain * totalGain
	readNoiseVar := readNoiseVarBeforeGain*noiseVarGain + readNoiseVarAfterGain
	result.SetFloat64s(metadata.TagSensorNoiseProfile, []float64{
		noiseVarGain, readNoiseVar, noiseVarGain, readNoiseVar,
		noiseVarGain, readNoiseVar, noiseVarGain, readNoiseVar,
	})
}
