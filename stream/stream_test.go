/*
DESCRIPTION
  stream_test.go tests the stream capability map.

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

package stream

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestOutputSizes(t *testing.T) {
	m := NewConfigurationMap()
	m.AddOutputSize(FormatYCbCr420, 640, 480)
	m.AddOutputSize(FormatYCbCr420, 320, 240)
	m.AddOutputSize(FormatRAW16, 640, 480)

	tests := []struct {
		format PixelFormat
		w, h   uint32
		want   bool
	}{
		{FormatYCbCr420, 640, 480, true},
		{FormatYCbCr420, 320, 240, true},
		{FormatYCbCr420, 1920, 1080, false},
		{FormatRAW16, 640, 480, true},
		{FormatRAW16, 320, 240, false},
		{FormatBlob, 640, 480, false},
	}
	for _, test := range tests {
		got := m.SupportsOutputSize(test.format, test.w, test.h)
		if got != test.want {
			t.Errorf("SupportsOutputSize(%v, %dx%d): got %v, want %v",
				test.format, test.w, test.h, got, test.want)
		}
	}
}

func TestInputOutputs(t *testing.T) {
	m := NewConfigurationMap()
	m.AddInputOutputs(FormatYCbCr420, FormatYCbCr420, FormatBlob)

	got := m.ValidOutputFormatsForInput(FormatYCbCr420)
	want := []PixelFormat{FormatYCbCr420, FormatBlob}
	if !cmp.Equal(got, want) {
		t.Errorf("ValidOutputFormatsForInput: got %v, want %v", got, want)
	}

	if out := m.ValidOutputFormatsForInput(FormatRAW16); out != nil {
		t.Errorf("formats for unregistered input: got %v, want nil", out)
	}
}

func TestDynamicPhysicalSizes(t *testing.T) {
	m := NewConfigurationMap()
	m.AddDynamicPhysicalSize(FormatYCbCr420, 640, 480)

	if !m.SupportsDynamicPhysicalFormat(FormatYCbCr420) {
		t.Error("SupportsDynamicPhysicalFormat: got false for registered format")
	}
	if m.SupportsDynamicPhysicalFormat(FormatBlob) {
		t.Error("SupportsDynamicPhysicalFormat: got true for unregistered format")
	}
	if !m.SupportsDynamicPhysicalSize(FormatYCbCr420, 640, 480) {
		t.Error("SupportsDynamicPhysicalSize: got false for registered size")
	}
	if m.SupportsDynamicPhysicalSize(FormatYCbCr420, 320, 240) {
		t.Error("SupportsDynamicPhysicalSize: got true for unregistered size")
	}
}
