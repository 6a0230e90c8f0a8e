/*
DESCRIPTION
  characteristics_test.go tests sensor characteristics validation.

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
	"strings"
	"testing"
	"time"

	"github.com/ausocean/hal/stream"
)

func TestValidateDefault(t *testing.T) {
	err := DefaultCharacteristics().Validate()
	if err != nil {
		t.Errorf("default characteristics rejected: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SensorCharacteristics)
		want   string
	}{
		{
			name:   "zero size",
			mutate: func(sc *SensorCharacteristics) { sc.Width = 0 },
			want:   "invalid sensor size",
		},
		{
			name:   "zero full res size",
			mutate: func(sc *SensorCharacteristics) { sc.FullResHeight = 0 },
			want:   "full res",
		},
		{
			name: "exposure range inverted",
			mutate: func(sc *SensorCharacteristics) {
				sc.ExposureRange = [2]time.Duration{MaxExposure, MinExposure}
			},
			want: "exposure range",
		},
		{
			name: "exposure below supported minimum",
			mutate: func(sc *SensorCharacteristics) {
				sc.ExposureRange[0] = MinExposure / 2
			},
			want: "exposure range",
		},
		{
			name: "frame duration above supported maximum",
			mutate: func(sc *SensorCharacteristics) {
				sc.FrameDurationRange[1] = MaxFrameDuration + time.Second
			},
			want: "frame duration range",
		},
		{
			name: "sensitivity range excludes default",
			mutate: func(sc *SensorCharacteristics) {
				sc.SensitivityRange = [2]int32{200, 1600}
			},
			want: "sensitivity range",
		},
		{
			name:   "non-RGGB arrangement",
			mutate: func(sc *SensorCharacteristics) { sc.ColorArrangement = FilterBGGR },
			want:   "color arrangement",
		},
		{
			name: "black level at max RAW value",
			mutate: func(sc *SensorCharacteristics) {
				sc.BlackLevelPattern[2] = sc.MaxRawValue
			},
			want: "black level",
		},
		{
			name:   "too many RAW streams",
			mutate: func(sc *SensorCharacteristics) { sc.MaxRawStreams = 2 },
			want:   "RAW streams maximum",
		},
		{
			name:   "too many processed streams",
			mutate: func(sc *SensorCharacteristics) { sc.MaxProcessedStreams = 4 },
			want:   "processed streams maximum",
		},
		{
			name:   "too many stalling streams",
			mutate: func(sc *SensorCharacteristics) { sc.MaxStallingStreams = 3 },
			want:   "stalling streams maximum",
		},
		{
			name:   "too many input streams",
			mutate: func(sc *SensorCharacteristics) { sc.MaxInputStreams = 2 },
			want:   "input streams maximum",
		},
		{
			name: "lens shading map too large",
			mutate: func(sc *SensorCharacteristics) {
				sc.LensShadingMapSize = [2]uint32{65, 64}
			},
			want: "lens shading map",
		},
		{
			name:   "pipeline too shallow",
			mutate: func(sc *SensorCharacteristics) { sc.MaxPipelineDepth = 2 },
			want:   "pipeline depth",
		},
		{
			name:   "10-bit without HLG10 profile",
			mutate: func(sc *SensorCharacteristics) { sc.Is10BitCapable = true },
			want:   "HLG10",
		},
	}

	for _, test := range tests {
		sc := DefaultCharacteristics()
		test.mutate(sc)
		err := sc.Validate()
		if err == nil {
			t.Errorf("%s: validation passed, want error containing %q", test.name, test.want)
			continue
		}
		if !strings.Contains(err.Error(), test.want) {
			t.Errorf("%s: got error %q, want it to contain %q", test.name, err.Error(), test.want)
		}
	}
}

func TestValidateCollectsAll(t *testing.T) {
	sc := DefaultCharacteristics()
	sc.Width = 0
	sc.MaxRawStreams = 5
	err := sc.Validate()
	if err == nil {
		t.Fatal("validation passed with two defects")
	}
	msg := err.Error()
	if !strings.Contains(msg, "invalid sensor size") || !strings.Contains(msg, "RAW streams maximum") {
		t.Errorf("error does not report both defects: %q", msg)
	}
}

func TestValidate10BitWithHLG(t *testing.T) {
	sc := DefaultCharacteristics()
	sc.Is10BitCapable = true
	sc.DynamicRangeProfiles = []stream.DynamicRangeProfile{stream.ProfileHLG10}
	if err := sc.Validate(); err != nil {
		t.Errorf("HLG10-capable characteristics rejected: %v", err)
	}
}

func TestBaseGainFactor(t *testing.T) {
	sc := DefaultCharacteristics()
	if got, want := sc.baseGainFactor(), 2.0; got != want {
		t.Errorf("baseGainFactor: got %v, want %v", got, want)
	}
}
