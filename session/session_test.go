/*
DESCRIPTION
  session_test.go tests the camera device session: construction
  validation, characteristics documents, pipeline configuration and an
  end to end capture through the pipeline contract.

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

package session

import (
	"bytes"
	"testing"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/hal/buffer"
	"github.com/ausocean/hal/metadata"
	"github.com/ausocean/hal/pipeline"
	"github.com/ausocean/hal/request"
	"github.com/ausocean/hal/sensor"
	"github.com/ausocean/hal/stream"
)

const eventTimeout = 2 * time.Second

func newTestSession(t *testing.T) *Session {
	s, err := New(Config{
		CameraID:        0,
		Characteristics: sensor.LogicalCharacteristics{0: sensor.DefaultCharacteristics()},
	}, (*logging.TestLogger)(t), sensor.WithSeed(1))
	if err != nil {
		t.Fatalf("could not create session: %v", err)
	}
	return s
}

func yuvConfig() stream.Configuration {
	chars := sensor.DefaultCharacteristics()
	return stream.Configuration{Streams: []stream.Stream{{
		ID:          0,
		Type:        stream.TypeOutput,
		Format:      stream.FormatYCbCr420,
		Width:       chars.Width,
		Height:      chars.Height,
		GroupID:     -1,
		DefaultMode: true,
	}}}
}

func TestNewValidation(t *testing.T) {
	log := logging.New(logging.Debug, &bytes.Buffer{}, true) // Discard logs.

	if _, err := New(Config{}, log); err == nil {
		t.Error("session with no characteristics accepted")
	}

	chars := sensor.LogicalCharacteristics{1: sensor.DefaultCharacteristics()}
	if _, err := New(Config{CameraID: 0, Characteristics: chars}, log); err == nil {
		t.Error("session with absent logical camera accepted")
	}

	bad := sensor.DefaultCharacteristics()
	bad.Width, bad.Height = 0, 0
	if _, err := New(Config{Characteristics: sensor.LogicalCharacteristics{0: bad}}, log); err == nil {
		t.Error("session with invalid characteristics accepted")
	}
}

func TestCharacteristicsDocument(t *testing.T) {
	s := newTestSession(t)
	defer s.Close()

	if _, err := s.Characteristics(9); err != pipeline.ErrBadValue {
		t.Errorf("unknown camera: got %v, want %v", err, pipeline.ErrBadValue)
	}

	m, err := s.Characteristics(0)
	if err != nil {
		t.Fatalf("could not get characteristics: %v", err)
	}
	chars := sensor.DefaultCharacteristics()
	if v, ok := m.Int32s(metadata.TagSensorInfoPixelArraySize); !ok ||
		v[0] != int32(chars.FullResWidth) || v[1] != int32(chars.FullResHeight) {
		t.Errorf("pixel array size = %v", v)
	}
	if v, ok := m.Int64s(metadata.TagSensorInfoExposureTimeRange); !ok ||
		v[0] != int64(chars.ExposureRange[0]) || v[1] != int64(chars.ExposureRange[1]) {
		t.Errorf("exposure range = %v", v)
	}
	if v, ok := m.Int32(metadata.TagRequestPipelineMaxDepth); !ok || v != int32(chars.MaxPipelineDepth) {
		t.Errorf("pipeline depth = %d, want %d", v, chars.MaxPipelineDepth)
	}
}

func TestConfigurePipelineValidation(t *testing.T) {
	s := newTestSession(t)
	defer s.Close()
	events := make(chan pipeline.Event, 8)

	tests := []struct {
		name   string
		camera uint32
		events chan<- pipeline.Event
		config stream.Configuration
	}{
		{"foreign camera", 3, events, yuvConfig()},
		{"nil events", 0, nil, yuvConfig()},
		{"no streams", 0, events, stream.Configuration{}},
		{
			"unsupported size",
			0, events,
			stream.Configuration{Streams: []stream.Stream{{
				ID: 0, Type: stream.TypeOutput, Format: stream.FormatYCbCr420,
				Width: 123, Height: 45, GroupID: -1, DefaultMode: true,
			}}},
		},
		{
			"duplicate stream id",
			0, events,
			stream.Configuration{Streams: append(yuvConfig().Streams, yuvConfig().Streams...)},
		},
	}
	for _, tt := range tests {
		_, err := s.ConfigurePipeline(tt.camera, tt.events, tt.config, stream.Configuration{})
		if err != pipeline.ErrBadValue {
			t.Errorf("%s: got %v, want %v", tt.name, err, pipeline.ErrBadValue)
		}
	}
}

func TestConfigurePipeline(t *testing.T) {
	s := newTestSession(t)
	defer s.Close()
	events := make(chan pipeline.Event, 8)

	id, err := s.ConfigurePipeline(0, events, yuvConfig(), stream.Configuration{})
	if err != nil {
		t.Fatalf("could not configure pipeline: %v", err)
	}
	if id != 0 {
		t.Errorf("first pipeline id = %d, want 0", id)
	}

	id, err = s.ConfigurePipeline(0, events, yuvConfig(), stream.Configuration{})
	if err != nil {
		t.Fatalf("could not configure second pipeline: %v", err)
	}
	if id != 1 {
		t.Errorf("second pipeline id = %d, want 1", id)
	}

	streams, err := s.ConfiguredStreams(0)
	if err != nil {
		t.Fatalf("could not get configured streams: %v", err)
	}
	if len(streams) != 1 || streams[0].Format != stream.FormatYCbCr420 {
		t.Errorf("configured streams = %+v", streams)
	}

	if _, err := s.ConfiguredStreams(5); err != pipeline.ErrBadValue {
		t.Errorf("unknown pipeline: got %v, want %v", err, pipeline.ErrBadValue)
	}
}

func TestSubmitBeforeConfigure(t *testing.T) {
	s := newTestSession(t)
	defer s.Close()

	err := s.SubmitRequests(0, []pipeline.Request{{}})
	if err != pipeline.ErrNotConfigured {
		t.Errorf("got %v, want %v", err, pipeline.ErrNotConfigured)
	}
}

func TestCaptureThroughSession(t *testing.T) {
	s := newTestSession(t)
	defer s.Close()

	events := make(chan pipeline.Event, 8)
	id, err := s.ConfigurePipeline(0, events, yuvConfig(), stream.Configuration{})
	if err != nil {
		t.Fatalf("could not configure pipeline: %v", err)
	}

	settings, err := s.DefaultRequest(request.TemplatePreview)
	if err != nil {
		t.Fatalf("could not build default request: %v", err)
	}
	chars := sensor.DefaultCharacteristics()
	h, err := buffer.MemoryAllocator{}.Allocate(stream.FormatYCbCr420, stream.DataspaceUnknown,
		chars.Width, chars.Height, 0)
	if err != nil {
		t.Fatalf("could not allocate handle: %v", err)
	}
	err = s.SubmitRequests(0, []pipeline.Request{{
		PipelineID:    id,
		Settings:      settings,
		OutputBuffers: []pipeline.StreamBuffer{{StreamID: 0, Buffer: h}},
	}})
	if err != nil {
		t.Fatalf("could not submit request: %v", err)
	}

	deadline := time.After(eventTimeout)
	sawShutter, sawResult := false, false
	for !sawShutter || !sawResult {
		select {
		case e := <-events:
			switch e.Kind {
			case pipeline.EventShutter:
				sawShutter = true
			case pipeline.EventResult:
				sawResult = true
				if _, ok := e.Result.Metadata.Int64(metadata.TagSensorTimestamp); !ok {
					t.Error("result missing sensor timestamp")
				}
			case pipeline.EventError:
				t.Fatalf("capture failed: %+v", e.Error)
			}
		case <-deadline:
			t.Fatal("timed out waiting for capture")
		}
	}
}
