/*
DESCRIPTION
  streamcheck_test.go tests stream combination compatibility checking.

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
	"testing"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/hal/stream"
)

// testConfigMap builds a capability map advertising the formats of a
// 640x480 sensor.
func testConfigMap(inputs bool) *stream.ConfigurationMap {
	m := stream.NewConfigurationMap()
	for _, f := range []stream.PixelFormat{
		stream.FormatYCbCr420, stream.FormatBlob, stream.FormatRGBA8888,
		stream.FormatImplementationDefined, stream.FormatYCbCrP010,
	} {
		m.AddOutputSize(f, 640, 480)
		m.AddOutputSize(f, 320, 240)
	}
	m.AddOutputSize(stream.FormatRAW16, 640, 480)
	if inputs {
		m.AddInputOutputs(stream.FormatYCbCr420, stream.FormatYCbCr420, stream.FormatBlob)
	}
	return m
}

func yuvOut(id int32, w, h uint32) stream.Stream {
	return stream.Stream{
		ID: id, Format: stream.FormatYCbCr420, Width: w, Height: h,
		GroupID: -1, DefaultMode: true,
	}
}

func blobOut(id int32) stream.Stream {
	return stream.Stream{
		ID: id, Format: stream.FormatBlob, Dataspace: stream.DataspaceJFIF,
		Width: 640, Height: 480, GroupID: -1, DefaultMode: true,
	}
}

func rawOut(id int32) stream.Stream {
	return stream.Stream{
		ID: id, Format: stream.FormatRAW16, Width: 640, Height: 480,
		GroupID: -1, DefaultMode: true,
	}
}

func plainChars() LogicalCharacteristics {
	return LogicalCharacteristics{0: DefaultCharacteristics()}
}

func TestIsStreamCombinationSupported(t *testing.T) {
	inputChars := plainChars()
	inputChars[0].MaxInputStreams = 1

	useCaseChars := plainChars()
	useCaseChars[0].SupportsStreamUseCase = true
	useCaseChars[0].EndValidUseCase = stream.UseCaseCroppedRaw

	tenBitChars := plainChars()
	tenBitChars[0].Is10BitCapable = true
	tenBitChars[0].DynamicRangeProfiles = []stream.DynamicRangeProfile{stream.ProfileHLG10}

	badBlob := blobOut(1)
	badBlob.Dataspace = stream.DataspaceDepth

	rotated := yuvOut(0, 640, 480)
	rotated.Rotation = stream.Rotation90

	smallRaw := rawOut(2)
	smallRaw.Width, smallRaw.Height = 320, 240

	stillYUV := yuvOut(0, 640, 480)
	stillYUV.UseCase = stream.UseCaseStillCapture

	stillRaw := rawOut(2)
	stillRaw.UseCase = stream.UseCaseStillCapture

	croppedRaw := rawOut(2)
	croppedRaw.UseCase = stream.UseCaseCroppedRaw

	croppedYUV := yuvOut(0, 640, 480)
	croppedYUV.UseCase = stream.UseCaseCroppedRaw

	hlgP010 := stream.Stream{
		ID: 3, Format: stream.FormatYCbCrP010, Dataspace: stream.DataspaceBT2020HLG,
		Width: 640, Height: 480, GroupID: -1, DefaultMode: true,
		Profile: stream.ProfileHLG10,
	}
	hlgP010BadDataspace := hlgP010
	hlgP010BadDataspace.Dataspace = stream.DataspaceJFIF

	hlgYUV := yuvOut(4, 640, 480)
	hlgYUV.Profile = stream.ProfileHLG10

	yuvInput := stream.Stream{
		ID: 5, Type: stream.TypeInput, Format: stream.FormatYCbCr420,
		Width: 640, Height: 480, GroupID: -1,
	}
	rawInput := yuvInput
	rawInput.Format = stream.FormatRAW16

	useCaseInput := yuvInput
	useCaseInput.UseCase = stream.UseCaseStillCapture

	tests := []struct {
		name    string
		chars   LogicalCharacteristics
		inputs  bool
		streams []stream.Stream
		want    bool
	}{
		{name: "preview and still", chars: plainChars(), streams: []stream.Stream{yuvOut(0, 640, 480), blobOut(1)}, want: true},
		{name: "rotation unsupported", chars: plainChars(), streams: []stream.Stream{rotated}, want: false},
		{name: "unsupported size", chars: plainChars(), streams: []stream.Stream{yuvOut(0, 1111, 222)}, want: false},
		{name: "bad BLOB dataspace", chars: plainChars(), streams: []stream.Stream{badBlob}, want: false},
		{name: "RAW16 at sensor size", chars: plainChars(), streams: []stream.Stream{rawOut(2)}, want: true},
		{name: "RAW16 at foreign size", chars: plainChars(), streams: []stream.Stream{smallRaw}, want: false},
		{name: "too many RAW streams", chars: plainChars(), streams: []stream.Stream{rawOut(2), rawOut(3)}, want: false},
		{name: "too many stalling streams", chars: plainChars(), streams: []stream.Stream{blobOut(1), blobOut(2), blobOut(3)}, want: false},
		{name: "too many processed streams", chars: plainChars(),
			streams: []stream.Stream{yuvOut(0, 640, 480), yuvOut(1, 320, 240), yuvOut(2, 640, 480), yuvOut(3, 320, 240)}, want: false},
		{name: "input without input support", chars: plainChars(), inputs: true, streams: []stream.Stream{yuvInput, yuvOut(0, 640, 480)}, want: false},
		{name: "YUV input reprocessing", chars: inputChars, inputs: true, streams: []stream.Stream{yuvInput, yuvOut(0, 640, 480)}, want: true},
		{name: "input format unsupported", chars: inputChars, inputs: true, streams: []stream.Stream{rawInput}, want: false},
		{name: "input with unsupported use case", chars: inputChars, inputs: true,
			streams: []stream.Stream{useCaseInput, yuvOut(0, 640, 480)}, want: false},
		{name: "use case without use case support", chars: plainChars(), streams: []stream.Stream{stillYUV}, want: false},
		{name: "still capture on YUV", chars: useCaseChars, streams: []stream.Stream{stillYUV}, want: true},
		{name: "still capture on RAW", chars: useCaseChars, streams: []stream.Stream{stillRaw}, want: false},
		{name: "cropped RAW on RAW16", chars: useCaseChars, streams: []stream.Stream{croppedRaw}, want: true},
		{name: "cropped RAW on YUV", chars: useCaseChars, streams: []stream.Stream{croppedYUV}, want: false},
		{name: "HLG10 on P010", chars: tenBitChars, streams: []stream.Stream{hlgP010}, want: true},
		{name: "HLG10 without capability", chars: plainChars(), streams: []stream.Stream{hlgP010}, want: false},
		{name: "HLG10 on 8-bit YUV", chars: tenBitChars, streams: []stream.Stream{hlgYUV}, want: false},
		{name: "HLG10 P010 with bad dataspace", chars: tenBitChars, streams: []stream.Stream{hlgP010BadDataspace}, want: false},
	}

	for _, test := range tests {
		m := testConfigMap(test.inputs)
		got := IsStreamCombinationSupported(0, stream.Configuration{Streams: test.streams},
			m, m, nil, nil, test.chars, (*logging.TestLogger)(t))
		if got != test.want {
			t.Errorf("%s: got %v, want %v", test.name, got, test.want)
		}
	}
}

func TestSplitStreamCombination(t *testing.T) {
	out := yuvOut(0, 640, 480)
	maxRes := rawOut(1)
	maxRes.DefaultMode = false
	maxRes.MaxResMode = true
	both := blobOut(2)
	both.MaxResMode = true
	in := stream.Stream{ID: 3, Type: stream.TypeInput, Format: stream.FormatYCbCr420}

	def, max, input := SplitStreamCombination(stream.Configuration{
		Streams: []stream.Stream{out, maxRes, both, in},
	})

	if len(def.Streams) != 2 || def.Streams[0].ID != 0 || def.Streams[1].ID != 2 {
		t.Errorf("default mode streams: %+v", def.Streams)
	}
	if len(max.Streams) != 2 || max.Streams[0].ID != 1 || max.Streams[1].ID != 2 {
		t.Errorf("max res mode streams: %+v", max.Streams)
	}
	if len(input.Streams) != 1 || input.Streams[0].ID != 3 {
		t.Errorf("input streams: %+v", input.Streams)
	}
}

func TestMaxResAllowsExtraRaw(t *testing.T) {
	chars := plainChars()
	chars[0].QuadBayerSensor = true

	raw1 := rawOut(0)
	raw1.DefaultMode = false
	raw1.MaxResMode = true
	raw2 := rawOut(1)
	raw2.DefaultMode = false
	raw2.MaxResMode = true

	m := testConfigMap(false)
	got := IsStreamCombinationSupported(0, stream.Configuration{Streams: []stream.Stream{raw1, raw2}},
		m, m, nil, nil, chars, (*logging.TestLogger)(t))
	if !got {
		t.Error("two RAW streams rejected in max resolution mode")
	}
}
