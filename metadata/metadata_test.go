/*
DESCRIPTION
  metadata_test.go tests the metadata document.

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

package metadata

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSetAndGet(t *testing.T) {
	m := New()
	m.SetInt32(TagSensorSensitivity, 200)
	m.SetInt64(TagSensorExposureTime, 15000000)
	m.SetFloat32(TagControlZoomRatio, 2.5)
	m.SetBool(TagSensorRawBinningFactorUsed, true)
	m.SetInt32s(TagSensorNeutralColorPoint, []int32{255, 1, 255, 1, 255, 1})
	m.SetFloat64s(TagSensorNoiseProfile, []float64{1, 2})

	if v, ok := m.Int32(TagSensorSensitivity); !ok || v != 200 {
		t.Errorf("Int32: got (%v, %v), want (200, true)", v, ok)
	}
	if v, ok := m.Int64(TagSensorExposureTime); !ok || v != 15000000 {
		t.Errorf("Int64: got (%v, %v), want (15000000, true)", v, ok)
	}
	if v, ok := m.Float32(TagControlZoomRatio); !ok || v != 2.5 {
		t.Errorf("Float32: got (%v, %v), want (2.5, true)", v, ok)
	}
	if v, ok := m.Bool(TagSensorRawBinningFactorUsed); !ok || !v {
		t.Errorf("Bool: got (%v, %v), want (true, true)", v, ok)
	}
	if v, ok := m.Int32s(TagSensorNeutralColorPoint); !ok || !cmp.Equal(v, []int32{255, 1, 255, 1, 255, 1}) {
		t.Errorf("Int32s: got (%v, %v)", v, ok)
	}
	if v, ok := m.Float64s(TagSensorNoiseProfile); !ok || !cmp.Equal(v, []float64{1, 2}) {
		t.Errorf("Float64s: got (%v, %v)", v, ok)
	}
}

func TestGetAbsent(t *testing.T) {
	m := New()
	if _, ok := m.Int32(TagEdgeMode); ok {
		t.Error("Int32 on absent tag: got ok")
	}
	if m.Has(TagEdgeMode) {
		t.Error("Has on absent tag: got true")
	}
}

func TestGetWrongType(t *testing.T) {
	m := New()
	m.SetInt32(TagSensorSensitivity, 100)
	if _, ok := m.Int64(TagSensorSensitivity); ok {
		t.Error("Int64 on an int32 entry: got ok")
	}
}

func TestCloneIsDeep(t *testing.T) {
	m := New()
	m.SetInt32s(TagSensorNeutralColorPoint, []int32{1, 2, 3})

	c := Clone(m)
	v, _ := c.Int32s(TagSensorNeutralColorPoint)
	v[0] = 99

	orig, _ := m.Int32s(TagSensorNeutralColorPoint)
	if orig[0] != 1 {
		t.Errorf("clone shares storage with original: got %v", orig)
	}
}

func TestCloneNil(t *testing.T) {
	if Clone(nil) != nil {
		t.Error("Clone(nil): got non-nil")
	}
}

func TestCopy(t *testing.T) {
	src := New()
	src.SetFloat32(TagControlZoomRatio, 4)
	dst := New()

	if !src.Copy(dst, TagControlZoomRatio) {
		t.Fatal("Copy of present tag: got false")
	}
	if v, ok := dst.Float32(TagControlZoomRatio); !ok || v != 4 {
		t.Errorf("copied value: got (%v, %v), want (4, true)", v, ok)
	}
	if src.Copy(dst, TagEdgeMode) {
		t.Error("Copy of absent tag: got true")
	}
}

func TestDelete(t *testing.T) {
	m := New()
	m.SetInt32(TagEdgeMode, EdgeModeFast)
	m.Delete(TagEdgeMode)
	if m.Has(TagEdgeMode) {
		t.Error("entry survived Delete")
	}
}
