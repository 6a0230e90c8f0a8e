/*
DESCRIPTION
  pipeline.go provides the types shared along the capture pipeline: the
  tagged Event union delivered over a per-pipeline channel, stream buffer
  references, capture requests, the DeviceSession interface implemented by
  capture backends, and the session factory Registry.

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

// Package pipeline connects a configured capture backend to a chain of
// request producers and result consumers. Backend results and messages
// travel as Events over an ordered channel per pipeline; the realtime
// process block adapts them into capture results for the attached result
// processor.
package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ausocean/hal/metadata"
	"github.com/ausocean/hal/stream"
)

// Status errors shared across the pipeline packages.
var (
	ErrBadValue      = errors.New("bad value")
	ErrTimedOut      = errors.New("timed out")
	ErrAlreadyExists = errors.New("already exists")
	ErrNotConfigured = errors.New("not configured")
	ErrNoMemory      = errors.New("no memory")
)

// BufferStatus is the tri-state completion status of one stream buffer.
// Buffers start Pending and must be flipped to OK by the producer that
// fills them; anything still Pending or Failed at delivery is reported
// as a buffer error.
type BufferStatus uint8

const (
	BufferPending BufferStatus = iota
	BufferOK
	BufferFailed
)

// Handle is a reference to the pixel storage of one native buffer.
type Handle []byte

// StreamBuffer references one buffer of one configured stream. A nil
// Handle means the buffer must be requested from the session's buffer
// supply callback before capture.
type StreamBuffer struct {
	StreamID int32
	Buffer   Handle

	// AcquireFence, when non-nil, is closed once the buffer may be
	// written. Waits on it are bounded by the maximum supported frame
	// duration.
	AcquireFence <-chan struct{}

	Status BufferStatus
}

// Request is a capture request addressed to one configured pipeline.
type Request struct {
	PipelineID    uint32
	Settings      *metadata.Metadata // nil means reuse the previous settings.
	InputBuffers  []StreamBuffer
	OutputBuffers []StreamBuffer
	InputWidth    uint32
	InputHeight   uint32
}

// ErrorCode classifies asynchronous capture failures.
type ErrorCode uint8

const (
	ErrorDevice ErrorCode = iota
	ErrorRequest
	ErrorResult
	ErrorBuffer
)

// EventKind discriminates the Event union.
type EventKind uint8

const (
	EventShutter EventKind = iota
	EventError
	EventResult
)

// Shutter carries the exposure start and readout timestamps of one frame.
type Shutter struct {
	FrameNumber      uint32
	Timestamp        int64 // ns
	ReadoutTimestamp int64 // ns
}

// Error reports an asynchronous failure for one frame. StreamID is -1
// unless a single stream is affected.
type Error struct {
	FrameNumber uint32
	StreamID    int32
	Code        ErrorCode
}

// Result is a capture result produced by a backend: progressively filled
// result metadata plus per-physical-camera sub-results. Partial results
// are delivered before the final result of the same frame.
type Result struct {
	PipelineID  uint32
	FrameNumber uint32
	Metadata    *metadata.Metadata
	Physical    map[uint32]*metadata.Metadata
	Partial     bool
}

// Event is the tagged union of the messages a backend emits for a
// pipeline: exactly one of Shutter, Error or Result is meaningful
// depending on Kind. Events for one pipeline are ordered.
type Event struct {
	Kind       EventKind
	PipelineID uint32
	Shutter    Shutter
	Error      Error
	Result     *Result
}

// SessionCallback supplies buffers on demand and accepts early buffer
// returns. Either func may be nil if the hosting framework manages all
// buffers up front.
type SessionCallback struct {
	RequestStreamBuffers func(streamID int32, count uint32, frameNumber uint32) ([]StreamBuffer, error)
	ReturnStreamBuffers  func(buffers []StreamBuffer)
}

// DeviceSession is the capture backend contract: pipeline configuration,
// request submission and flush. It is implemented by the emulated camera
// session and by test doubles.
type DeviceSession interface {
	// CameraID returns the id of the logical camera the session drives.
	CameraID() uint32

	// Characteristics returns the static characteristics document of the
	// given logical or physical camera.
	Characteristics(cameraID uint32) (*metadata.Metadata, error)

	// ConfigurePipeline validates config against the session's capability
	// and, on success, binds a new pipeline delivering its events to the
	// given channel. It returns the new pipeline's id.
	ConfigurePipeline(cameraID uint32, events chan<- Event, config, overall stream.Configuration) (uint32, error)

	// ConfiguredStreams returns the streams bound to a configured pipeline.
	ConfiguredStreams(pipelineID uint32) ([]stream.Stream, error)

	// SubmitRequests hands one frame's requests to the backend. It may
	// block while the backend's pending queue is full.
	SubmitRequests(frameNumber uint32, requests []Request) error

	// Flush completes all in-flight and pending requests with errors.
	Flush() error

	// RepeatingRequestEnd notifies the backend that a repeating request
	// ended at the given frame for the given streams.
	RepeatingRequestEnd(frameNumber int32, streamIDs []int32)
}

// SessionFactory creates a device session for a camera id.
type SessionFactory func(cameraID uint32) (DeviceSession, error)

// Registry maps backend names to session factories. It replaces
// process-wide factory tables; construct one and pass it to whoever
// needs to open sessions so tests can register fakes.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]SessionFactory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]SessionFactory)}
}

// Register adds a named session factory. Registering a duplicate name is
// an error.
func (r *Registry) Register(name string, f SessionFactory) error {
	if f == nil {
		return fmt.Errorf("nil factory for %q: %w", name, ErrBadValue)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("factory %q: %w", name, ErrAlreadyExists)
	}
	r.factories[name] = f
	return nil
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (SessionFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Names returns the registered backend names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
