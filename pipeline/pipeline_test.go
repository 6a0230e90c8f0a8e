/*
DESCRIPTION
  pipeline_test.go tests the backend registry and the realtime process
  block.

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

package pipeline

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/hal/metadata"
	"github.com/ausocean/hal/stream"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	factory := func(cameraID uint32) (DeviceSession, error) { return &fakeSession{}, nil }

	err := r.Register("emulated", factory)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	err = r.Register("emulated", factory)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate Register: got %v, want %v", err, ErrAlreadyExists)
	}
	err = r.Register("nil", nil)
	if !errors.Is(err, ErrBadValue) {
		t.Errorf("nil factory Register: got %v, want %v", err, ErrBadValue)
	}

	if _, ok := r.Lookup("emulated"); !ok {
		t.Error("Lookup of registered name failed")
	}
	if _, ok := r.Lookup("absent"); ok {
		t.Error("Lookup of unregistered name succeeded")
	}

	r.Register("another", factory)
	if got, want := r.Names(), []string{"another", "emulated"}; !cmp.Equal(got, want) {
		t.Errorf("Names: got %v, want %v", got, want)
	}
}

// fakeSession is a minimal DeviceSession for block tests.
type fakeSession struct {
	mu        sync.Mutex
	events    chan<- Event
	submitted []uint32
	flushed   bool
}

func (s *fakeSession) CameraID() uint32 { return 0 }

func (s *fakeSession) Characteristics(cameraID uint32) (*metadata.Metadata, error) {
	return metadata.New(), nil
}

func (s *fakeSession) ConfigurePipeline(cameraID uint32, events chan<- Event, config, overall stream.Configuration) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = events
	return 0, nil
}

func (s *fakeSession) ConfiguredStreams(pipelineID uint32) ([]stream.Stream, error) {
	return []stream.Stream{{ID: 0}}, nil
}

func (s *fakeSession) SubmitRequests(frameNumber uint32, requests []Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = append(s.submitted, frameNumber)
	// Answer with a shutter and a result, as a capture backend would.
	s.events <- Event{Kind: EventShutter, Shutter: Shutter{FrameNumber: frameNumber}}
	s.events <- Event{Kind: EventResult, Result: &Result{FrameNumber: frameNumber, Metadata: metadata.New()}}
	return nil
}

func (s *fakeSession) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushed = true
	return nil
}

func (s *fakeSession) RepeatingRequestEnd(frameNumber int32, streamIDs []int32) {}

// collector is a ResultProcessor recording everything it receives.
type collector struct {
	mu       sync.Mutex
	pending  int
	results  []uint32
	shutters []uint32
	errors   []Error
}

func (c *collector) AddPendingRequests(requests []BlockRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending += len(requests)
	return nil
}

func (c *collector) ProcessResult(result BlockResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result.Result.FrameNumber)
}

func (c *collector) Notify(message BlockMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if message.Shutter != nil {
		c.shutters = append(c.shutters, message.Shutter.FrameNumber)
	}
	if message.Error != nil {
		c.errors = append(c.errors, *message.Error)
	}
}

func (c *collector) wait(t *testing.T, results int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		n := len(c.results)
		c.mu.Unlock()
		if n >= results {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d results", results)
}

func TestBlockLifecycle(t *testing.T) {
	ses := &fakeSession{}
	b, err := NewRealtimeBlock(ses, (*logging.TestLogger)(t))
	if err != nil {
		t.Fatalf("NewRealtimeBlock failed: %v", err)
	}

	c := &collector{}
	err = b.SetResultProcessor(c)
	if err != nil {
		t.Fatalf("SetResultProcessor failed: %v", err)
	}
	err = b.SetResultProcessor(c)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("second SetResultProcessor: got %v, want %v", err, ErrAlreadyExists)
	}

	cfg := stream.Configuration{Streams: []stream.Stream{{ID: 0}}}
	err = b.ConfigureStreams(cfg, cfg)
	if err != nil {
		t.Fatalf("ConfigureStreams failed: %v", err)
	}
	err = b.ConfigureStreams(cfg, cfg)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("second ConfigureStreams: got %v, want %v", err, ErrAlreadyExists)
	}

	for i := 0; i < 3; i++ {
		err = b.ProcessRequests([]BlockRequest{{FrameNumber: uint32(i)}})
		if err != nil {
			t.Fatalf("ProcessRequests failed: %v", err)
		}
	}
	c.wait(t, 3)

	c.mu.Lock()
	if !cmp.Equal(c.results, []uint32{0, 1, 2}) {
		t.Errorf("result order: got %v", c.results)
	}
	if !cmp.Equal(c.shutters, []uint32{0, 1, 2}) {
		t.Errorf("shutter order: got %v", c.shutters)
	}
	c.mu.Unlock()

	err = b.Flush()
	if err != nil {
		t.Errorf("Flush failed: %v", err)
	}
	if !ses.flushed {
		t.Error("Flush did not reach the session")
	}

	b.Close()
}

func TestBlockRejectsBatches(t *testing.T) {
	b, err := NewRealtimeBlock(&fakeSession{}, (*logging.TestLogger)(t))
	if err != nil {
		t.Fatalf("NewRealtimeBlock failed: %v", err)
	}
	defer b.Close()
	b.SetResultProcessor(&collector{})

	err = b.ProcessRequests([]BlockRequest{{}, {}})
	if !errors.Is(err, ErrBadValue) {
		t.Errorf("batch of two: got %v, want %v", err, ErrBadValue)
	}
}

func TestBlockRequiresProcessor(t *testing.T) {
	b, err := NewRealtimeBlock(&fakeSession{}, (*logging.TestLogger)(t))
	if err != nil {
		t.Fatalf("NewRealtimeBlock failed: %v", err)
	}
	defer b.Close()

	err = b.ProcessRequests([]BlockRequest{{}})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("no processor: got %v, want %v", err, ErrNotConfigured)
	}
}

func TestBlockRequiresConfiguration(t *testing.T) {
	b, err := NewRealtimeBlock(&fakeSession{}, (*logging.TestLogger)(t))
	if err != nil {
		t.Fatalf("NewRealtimeBlock failed: %v", err)
	}
	defer b.Close()
	b.SetResultProcessor(&collector{})

	err = b.ProcessRequests([]BlockRequest{{}})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("unconfigured block: got %v, want %v", err, ErrNotConfigured)
	}
	if _, err := b.ConfiguredStreams(); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("ConfiguredStreams unconfigured: got %v, want %v", err, ErrNotConfigured)
	}
}

func TestNilSession(t *testing.T) {
	_, err := NewRealtimeBlock(nil, nil)
	if !errors.Is(err, ErrBadValue) {
		t.Errorf("nil session: got %v, want %v", err, ErrBadValue)
	}
}
