/*
DESCRIPTION
  processor.go implements the request processor: it validates and queues
  incoming pipeline requests with bounded depth, acquires and locks their
  buffers, and feeds one request to the sensor per capture cycle,
  resolving request settings into per-camera sensor controls.

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

// Package request queues capture requests and paces them into the sensor,
// one per frame cycle.
package request

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/hal/buffer"
	"github.com/ausocean/hal/metadata"
	"github.com/ausocean/hal/pipeline"
	"github.com/ausocean/hal/sensor"
	"github.com/ausocean/hal/stream"
)

// zoomSpeedup is the minimum look-ahead, in frames, before a queued zoom
// settings override is applied to an earlier request.
const zoomSpeedup = 2

// slotWaitTimeout bounds how long request submission waits for a pending
// queue slot to free. Variable to allow shortening in testing.
var slotWaitTimeout = sensor.MaxFrameDuration

// Pipeline is one configured pipeline as seen by the processor.
type Pipeline struct {
	ID       uint32
	CameraID uint32
	Events   chan<- pipeline.Event
	Streams  map[int32]stream.Stream
}

// pendingRequest is a queued request with its buffers created and locked.
type pendingRequest struct {
	frameNumber uint32
	pipelineID  uint32
	events      chan<- pipeline.Event
	settings    *metadata.Metadata
	input       []*buffer.SensorBuffer
	output      []*buffer.SensorBuffer
}

// overrideSetting is one queued settings override candidate. A nil
// settings field marks a repeating request, which re-uses the last
// override.
type overrideSetting struct {
	settings    *metadata.Metadata
	frameNumber uint32
}

// Processor paces requests into a Sensor. At most sensor.PipelineDepth
// requests are held beyond the one in flight; submission blocks beyond
// that.
type Processor struct {
	log      logging.Logger
	cameraID uint32
	sensor   *sensor.Sensor
	alloc    buffer.Allocator
	callback pipeline.SessionCallback
	chars    sensor.LogicalCharacteristics

	// supportsPartial enables delivery of a partial result ahead of the
	// final one.
	supportsPartial bool

	mu                   sync.Mutex
	pending              []*pendingRequest
	overrides            []overrideSetting
	lastSettings         *metadata.Metadata
	lastOverrideSettings *metadata.Metadata
	slotFreed            chan struct{}
	done                 chan struct{}
	wg                   sync.WaitGroup

	screenRotation atomic.Uint32
}

// NewProcessor returns a running Processor feeding the given sensor.
func NewProcessor(cameraID uint32, sen *sensor.Sensor, chars sensor.LogicalCharacteristics,
	alloc buffer.Allocator, callback pipeline.SessionCallback, supportsPartial bool,
	log logging.Logger) *Processor {

	p := &Processor{
		log:             log,
		cameraID:        cameraID,
		sensor:          sen,
		alloc:           alloc,
		callback:        callback,
		chars:           chars,
		supportsPartial: supportsPartial,
		slotFreed:       make(chan struct{}, 1),
		done:            make(chan struct{}),
	}
	p.wg.Add(1)
	go p.loop()
	return p
}

// Close stops the processing loop and shuts the sensor down.
func (p *Processor) Close() error {
	close(p.done)
	p.wg.Wait()
	return p.sensor.ShutDown()
}

// RepeatingRequestEnd drops the remembered settings of an ended
// repeating request so no later repeating marker can resurrect them.
func (p *Processor) RepeatingRequestEnd() {
	p.mu.Lock()
	p.lastSettings = nil
	p.lastOverrideSettings = nil
	p.mu.Unlock()
}

// SetScreenRotation records the device orientation applied to subsequent
// captures. The rotation is the same for all logical and physical
// devices.
func (p *Processor) SetScreenRotation(deg uint32) {
	p.screenRotation.Store(deg % 360)
}

// ProcessPipelineRequests validates and queues requests for capture.
// Blocks while the pending queue is beyond the pipeline depth; returns
// ErrTimedOut if no slot frees within the maximum frame duration.
func (p *Processor) ProcessPipelineRequests(frameNumber uint32, requests []pipeline.Request,
	pipelines []Pipeline) error {

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, req := range requests {
		if int(req.PipelineID) >= len(pipelines) {
			p.log.Error("pipeline request with invalid pipeline id", "id", req.PipelineID)
			return pipeline.ErrBadValue
		}
		pl := &pipelines[req.PipelineID]

		for len(p.pending) > sensor.PipelineDepth {
			p.mu.Unlock()
			select {
			case <-p.slotFreed:
				p.mu.Lock()
			case <-time.After(slotWaitTimeout):
				p.mu.Lock()
				p.log.Error("timed out waiting for a pending request slot")
				return pipeline.ErrTimedOut
			}
		}

		output := p.createSensorBuffers(frameNumber, req.OutputBuffers, pl, 0, 0)
		if output == nil {
			return pipeline.ErrNoMemory
		}
		input := p.createSensorBuffers(frameNumber, req.InputBuffers, pl, req.InputWidth, req.InputHeight)

		// Queue an override candidate: the request's settings when they
		// carry an override key, or a repeating marker when the request
		// carries no settings at all.
		if req.Settings != nil {
			if _, ok := req.Settings.Int32(metadata.TagControlSettingsOverride); ok {
				p.overrides = append(p.overrides, overrideSetting{
					settings:    metadata.Clone(req.Settings),
					frameNumber: frameNumber,
				})
			}
		} else {
			p.overrides = append(p.overrides, overrideSetting{frameNumber: frameNumber})
		}

		p.pending = append(p.pending, &pendingRequest{
			frameNumber: frameNumber,
			pipelineID:  req.PipelineID,
			events:      pl.Events,
			settings:    metadata.Clone(req.Settings),
			input:       input,
			output:      output,
		})
	}

	return nil
}

// Flush fails all in-flight and pending requests.
func (p *Processor) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// In-flight requests first.
	err := p.sensor.Flush()

	// Then the rest of the pending queue.
	for _, req := range p.pending {
		p.notifyFailedRequest(req)
	}
	p.pending = nil

	return err
}

// notifyFailedRequest emits a request error and suppresses per-buffer
// error notifications for the request's buffers.
func (p *Processor) notifyFailedRequest(req *pendingRequest) {
	for _, out := range req.output {
		out.IsFailedRequest = true
	}
	req.events <- pipeline.Event{
		Kind:       pipeline.EventError,
		PipelineID: req.pipelineID,
		Error: pipeline.Error{
			FrameNumber: req.frameNumber,
			StreamID:    -1,
			Code:        pipeline.ErrorRequest,
		},
	}
	for _, out := range req.output {
		out.Close()
	}
	for _, in := range req.input {
		in.Close()
	}
}

// createSensorBuffers wraps the request's stream buffers in locked sensor
// buffers. Buffers without a handle are requested from the framework; a
// partial acquisition returns everything and yields nil.
func (p *Processor) createSensorBuffers(frameNumber uint32, buffers []pipeline.StreamBuffer,
	pl *Pipeline, overrideWidth, overrideHeight uint32) []*buffer.SensorBuffer {

	if len(buffers) == 0 {
		return nil
	}

	var requested []pipeline.StreamBuffer
	for _, sb := range buffers {
		if sb.Buffer != nil {
			requested = append(requested, sb)
			continue
		}
		if p.callback.RequestStreamBuffers == nil {
			continue
		}
		acquired, err := p.callback.RequestStreamBuffers(sb.StreamID, 1, frameNumber)
		if err != nil {
			p.log.Error("stream buffer request failed", "error", err.Error(), "stream", sb.StreamID)
			continue
		}
		if len(acquired) != 1 || acquired[0].Buffer == nil {
			p.log.Error("stream buffer request returned no valid buffer", "stream", sb.StreamID)
			continue
		}
		requested = append(requested, acquired[0])
	}

	if len(requested) < len(buffers) {
		p.log.Error("failed to acquire all sensor buffers",
			"acquired", len(requested), "requested", len(buffers))
		// Only reachable with framework managed buffers.
		if p.callback.ReturnStreamBuffers != nil {
			p.callback.ReturnStreamBuffers(requested)
		}
		return nil
	}

	sensorBuffers := make([]*buffer.SensorBuffer, 0, len(requested))
	for _, sb := range requested {
		b := p.createSensorBuffer(frameNumber, sb, pl, overrideWidth, overrideHeight)
		if b != nil {
			sensorBuffers = append(sensorBuffers, b)
		}
	}
	return sensorBuffers
}

// createSensorBuffer locks one stream buffer for synthesis. The status is
// pessimistically failed; synthesis flips it on success.
func (p *Processor) createSensorBuffer(frameNumber uint32, sb pipeline.StreamBuffer,
	pl *Pipeline, overrideWidth, overrideHeight uint32) *buffer.SensorBuffer {

	st, ok := pl.Streams[sb.StreamID]
	if !ok {
		p.log.Error("stream absent from pipeline", "stream", sb.StreamID, "pipeline", pl.ID)
		return nil
	}

	cameraID := p.cameraID
	if st.IsPhysical {
		cameraID = st.PhysicalCameraID
	}

	b := &buffer.SensorBuffer{
		StreamBuffer: sb,
		Format:       st.Format,
		Dataspace:    st.Dataspace,
		Width:        st.Width,
		Height:       st.Height,
		UseCase:      st.UseCase,
		Space:        st.Space,
		FrameNumber:  frameNumber,
		PipelineID:   pl.ID,
		CameraID:     cameraID,
		IsInput:      st.Type == stream.TypeInput,
		Events:       pl.Events,
	}
	if overrideWidth > 0 && overrideHeight > 0 {
		b.Width = overrideWidth
		b.Height = overrideHeight
	}
	// Flip on successful processing.
	b.StreamBuffer.Status = pipeline.BufferFailed

	if sb.Buffer != nil {
		err := p.alloc.LockPlanes(sb.Buffer, b)
		if err != nil {
			p.log.Error("could not lock sensor buffer planes", "error", err.Error(), "stream", sb.StreamID)
			b.IsFailedRequest = true
			b.Close()
			return nil
		}
		handle := sb.Buffer
		b.SetRelease(func(rb *buffer.SensorBuffer) {
			uerr := p.alloc.Unlock(handle)
			if uerr != nil {
				p.log.Warning("could not unlock buffer handle", "error", uerr.Error())
			}
			if p.callback.ReturnStreamBuffers != nil && !rb.IsInput {
				p.callback.ReturnStreamBuffers([]pipeline.StreamBuffer{rb.StreamBuffer})
			}
		})
	}

	return b
}

// acquireBuffers waits out the acquire fences of the given buffers,
// dropping any whose fence does not signal within the maximum frame
// duration.
func (p *Processor) acquireBuffers(buffers []*buffer.SensorBuffer) []*buffer.SensorBuffer {
	if len(buffers) == 0 {
		return nil
	}
	acquired := make([]*buffer.SensorBuffer, 0, len(buffers))
	for _, b := range buffers {
		if b.StreamBuffer.AcquireFence != nil {
			select {
			case <-b.StreamBuffer.AcquireFence:
			case <-time.After(sensor.MaxFrameDuration):
				p.log.Error("fence sync failed", "stream", b.StreamBuffer.StreamID)
				b.Close()
				continue
			}
		}
		acquired = append(acquired, b)
	}
	return acquired
}

// loop pops one pending request per vsync and hands it to the sensor.
func (p *Processor) loop() {
	defer p.wg.Done()

	vsyncOK := true
	for vsyncOK {
		select {
		case <-p.done:
			return
		default:
		}

		p.mu.Lock()
		if len(p.pending) > 0 {
			req := p.pending[0]
			p.pending = p.pending[1:]
			p.dispatch(req)
			select {
			case p.slotFreed <- struct{}{}:
			default:
			}
		}
		p.mu.Unlock()

		vsyncOK = p.sensor.WaitForVSync(sensor.MaxFrameDuration)
	}
}

// dispatch resolves one request's settings and installs it as the
// sensor's current request. Called with the processor lock held.
func (p *Processor) dispatch(req *pendingRequest) {
	output := p.acquireBuffers(req.output)
	input := p.acquireBuffers(req.input)
	if len(output) == 0 {
		// No further processing needed; failing the result completes the
		// request.
		p.notifyErrorResult(req)
		return
	}

	var physicalIDs []uint32
	for _, b := range output {
		if b.CameraID != p.cameraID {
			physicalIDs = append(physicalIDs, b.CameraID)
		}
	}

	// Repeating requests usually carry valid settings only on the initial
	// call; afterwards a nil settings pointer means no parameter changes
	// and the last valid values are re-used.
	settings := req.settings
	if settings != nil {
		p.lastSettings = metadata.Clone(settings)
	} else {
		settings = p.lastSettings
	}
	overrideFrame := p.applyOverrideSettings(req.frameNumber, settings)

	logical, err := p.initializeLogicalSettings(settings, physicalIDs)
	if err != nil {
		p.log.Error("could not resolve logical settings", "error", err.Error(), "frame", req.frameNumber)
		p.notifyErrorResult(req)
		for _, b := range output {
			b.Close()
		}
		for _, b := range input {
			b.Close()
		}
		return
	}

	// Screen rotation is the same for all logical and physical devices.
	rotation := p.screenRotation.Load()
	for _, set := range logical {
		set.ScreenRotation = rotation
	}

	result, partial := p.initializeResults(req, settings, physicalIDs, overrideFrame)
	p.sensor.SetCurrentRequest(logical, result, partial, input, output)
}

func (p *Processor) notifyErrorResult(req *pendingRequest) {
	req.events <- pipeline.Event{
		Kind:       pipeline.EventError,
		PipelineID: req.pipelineID,
		Error: pipeline.Error{
			FrameNumber: req.frameNumber,
			StreamID:    -1,
			Code:        pipeline.ErrorResult,
		},
	}
}

// initializeResults builds the final and partial result shells of one
// frame.
func (p *Processor) initializeResults(req *pendingRequest, settings *metadata.Metadata,
	physicalIDs []uint32, overrideFrame uint32) (result, partial *pipeline.Result) {

	meta := metadata.Clone(settings)
	if meta == nil {
		meta = metadata.New()
	}
	if overrideFrame != 0 {
		meta.SetInt32(metadata.TagControlSettingsOverridingFrameNumber, int32(overrideFrame))
	}

	result = &pipeline.Result{
		PipelineID:  req.pipelineID,
		FrameNumber: req.frameNumber,
		Metadata:    meta,
	}
	if len(physicalIDs) > 0 {
		result.Physical = make(map[uint32]*metadata.Metadata, len(physicalIDs))
		for _, id := range physicalIDs {
			result.Physical[id] = metadata.New()
		}
	}

	if p.supportsPartial {
		partial = &pipeline.Result{
			PipelineID:  req.pipelineID,
			FrameNumber: req.frameNumber,
			Metadata:    metadata.New(),
			Partial:     true,
		}
	}
	return result, partial
}

// applyOverrideSettings consumes queued override candidates and applies
// zoom related keys of a sufficiently newer override to the current
// request. Returns the frame number the applied override originated
// from, or zero when no override happened.
func (p *Processor) applyOverrideSettings(frameNumber uint32, settings *metadata.Metadata) uint32 {
	for len(p.overrides) > 0 && settings != nil {
		head := p.overrides[0]
		overrideFrame := head.frameNumber
		repeating := head.settings == nil
		override := head.settings
		if repeating {
			override = p.lastOverrideSettings
		}

		overriding := false
		if override != nil {
			if v, ok := override.Int32(metadata.TagControlSettingsOverride); ok &&
				v == metadata.SettingsOverrideZoom {
				p.applyOverrideZoom(override, settings, metadata.TagControlSettingsOverride)
				p.applyOverrideZoom(override, settings, metadata.TagControlZoomRatio)
				p.applyOverrideZoom(override, settings, metadata.TagScalerCropRegion)
				p.applyOverrideZoom(override, settings, metadata.TagControlAERegions)
				p.applyOverrideZoom(override, settings, metadata.TagControlAWBRegions)
				p.applyOverrideZoom(override, settings, metadata.TagControlAFRegions)
				overriding = true
			}
		}
		if !repeating {
			p.lastOverrideSettings = metadata.Clone(override)
		}

		p.overrides = p.overrides[1:]
		// With multiple queued overrides, skip until the speed-up is at
		// least the zoom look-ahead.
		if overrideFrame-frameNumber >= zoomSpeedup {
			if overriding {
				return overrideFrame
			}
			return 0
		}
	}
	return 0
}

func (p *Processor) applyOverrideZoom(override, settings *metadata.Metadata, tag metadata.Tag) {
	if !override.Copy(settings, tag) {
		p.log.Error("override key absent, needed for overriding zoom", "tag", uint32(tag))
	}
}
