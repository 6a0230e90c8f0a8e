/*
DESCRIPTION
  buffer.go provides SensorBuffer, a locked, ready-to-write image buffer
  bound to one configured stream, along with the plane layout types and
  the Allocator interface used to lock pixel planes out of native buffer
  handles. An in-memory Allocator implementation backs the emulated
  camera and tests.

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

// Package buffer provides locked image buffers and plane access for the
// emulated camera pipeline.
package buffer

import (
	"fmt"

	"github.com/ausocean/hal/pipeline"
	"github.com/ausocean/hal/stream"
)

// YCbCrPlanes addresses the three planes of a YUV420 buffer. For
// interleaved chroma layouts CbCrStep is 2 and Cb/Cr alias the same
// storage one sample apart.
type YCbCrPlanes struct {
	Y, Cb, Cr     []byte
	YStride       int // Bytes.
	CbCrStride    int // Bytes.
	CbCrStep      int // Samples between consecutive chroma values.
	BytesPerPixel int // 1 for 8-bit layouts, 2 for P010.
}

// PackedPlane addresses a single-plane buffer (RAW16, RGB, BLOB, Y16).
type PackedPlane struct {
	Data   []byte
	Stride int // Bytes per row; equals len(Data) for BLOB.
}

// SensorBuffer is one output or input buffer of one frame, locked for
// writing. The acquire fence has already been waited on before synthesis
// begins. Status starts Pending and must be flipped by whoever completes
// the buffer.
type SensorBuffer struct {
	StreamBuffer pipeline.StreamBuffer

	Format    stream.PixelFormat
	Dataspace stream.Dataspace
	Width     uint32
	Height    uint32
	UseCase   stream.UseCase
	Space     stream.ColorSpace

	FrameNumber uint32
	PipelineID  uint32
	CameraID    uint32
	IsInput     bool

	// IsFailedRequest suppresses the per-buffer error notification for
	// buffers belonging to a request that already failed as a whole.
	IsFailedRequest bool

	// Events is the pipeline event channel notifications for this buffer
	// are sent on.
	Events chan<- pipeline.Event

	// Exactly one of YCbCr or Plane is populated, per Format.
	YCbCr YCbCrPlanes
	Plane PackedPlane

	release func(*SensorBuffer)
	closed  bool
}

// SetRelease registers the function called exactly once when the buffer
// is closed, after results have been delivered.
func (b *SensorBuffer) SetRelease(f func(*SensorBuffer)) { b.release = f }

// Close releases the buffer back to its supplier. If the buffer never
// completed and does not belong to an already-failed request, a buffer
// error naming its stream is emitted first. Close is idempotent.
func (b *SensorBuffer) Close() {
	if b.closed {
		return
	}
	b.closed = true

	if b.StreamBuffer.Status != pipeline.BufferOK && !b.IsFailedRequest && b.Events != nil {
		b.Events <- pipeline.Event{
			Kind:       pipeline.EventError,
			PipelineID: b.PipelineID,
			Error: pipeline.Error{
				FrameNumber: b.FrameNumber,
				StreamID:    b.StreamBuffer.StreamID,
				Code:        pipeline.ErrorBuffer,
			},
		}
	}
	if b.release != nil {
		b.release(b)
	}
}

// Allocator locks pixel planes out of native buffer handles. Locked
// planes are only held during buffer acquisition and synthesis, never
// past result delivery.
type Allocator interface {
	// LockPlanes locks the handle for writing and fills the buffer's
	// plane fields according to its format and dimensions.
	LockPlanes(h pipeline.Handle, b *SensorBuffer) error

	// Unlock releases a previously locked handle.
	Unlock(h pipeline.Handle) error
}

// alignTo rounds v up to the next multiple of a, which must be a power
// of two.
func alignTo(v, a uint32) uint32 {
	return (v + a - 1) &^ (a - 1)
}

// SizeAndStride returns the byte size and row stride of a buffer of the
// given stream geometry. BLOB buffers use the stream's declared buffer
// size; depth Y16 rows align to 16 bytes.
func SizeAndStride(f stream.PixelFormat, ds stream.Dataspace, width, height, blobSize uint32) (size, strideBytes uint32, err error) {
	switch f {
	case stream.FormatRGB888:
		strideBytes = width * 3
		size = strideBytes * height
	case stream.FormatRGBA8888:
		strideBytes = width * 4
		size = strideBytes * height
	case stream.FormatY16:
		if ds != stream.DataspaceDepth {
			return 0, 0, fmt.Errorf("Y16 with dataspace %d: %w", ds, pipeline.ErrBadValue)
		}
		strideBytes = alignTo(alignTo(width, 2)*2, 16)
		size = strideBytes * alignTo(height, 2)
	case stream.FormatBlob:
		// An unknown dataspace on a BLOB stream means JFIF.
		if ds != stream.DataspaceJFIF && ds != stream.DataspaceJPEGR && ds != stream.DataspaceUnknown {
			return 0, 0, fmt.Errorf("BLOB with dataspace %d: %w", ds, pipeline.ErrBadValue)
		}
		size = blobSize
		strideBytes = size
	case stream.FormatRAW16:
		strideBytes = width * 2
		size = strideBytes * height
	case stream.FormatYCbCr420, stream.FormatYCrCb420SP, stream.FormatImplementationDefined:
		strideBytes = width
		size = width * height * 3 / 2
	case stream.FormatYCbCrP010:
		strideBytes = width * 2
		size = width * height * 3
	default:
		return 0, 0, fmt.Errorf("pixel format %v: %w", f, pipeline.ErrBadValue)
	}
	return size, strideBytes, nil
}

// MemoryAllocator is an Allocator backed by plain byte slices: a Handle
// is the buffer's storage and plane locking slices it per format.
type MemoryAllocator struct{}

// Allocate returns a handle sized for the given stream geometry.
func (MemoryAllocator) Allocate(f stream.PixelFormat, ds stream.Dataspace, width, height, blobSize uint32) (pipeline.Handle, error) {
	size, _, err := SizeAndStride(f, ds, width, height, blobSize)
	if err != nil {
		return nil, err
	}
	return make(pipeline.Handle, size), nil
}

// LockPlanes implements Allocator.
func (MemoryAllocator) LockPlanes(h pipeline.Handle, b *SensorBuffer) error {
	if h == nil {
		return fmt.Errorf("nil handle: %w", pipeline.ErrBadValue)
	}

	switch b.Format {
	case stream.FormatYCbCr420, stream.FormatYCrCb420SP, stream.FormatImplementationDefined:
		w, hgt := int(b.Width), int(b.Height)
		if len(h) < w*hgt*3/2 {
			return fmt.Errorf("handle too small for %dx%d YUV420: %w", w, hgt, pipeline.ErrBadValue)
		}
		b.YCbCr = YCbCrPlanes{
			Y:             h[:w*hgt],
			Cb:            h[w*hgt : w*hgt*5/4],
			Cr:            h[w*hgt*5/4 : w*hgt*3/2],
			YStride:       w,
			CbCrStride:    w / 2,
			CbCrStep:      1,
			BytesPerPixel: 1,
		}
	case stream.FormatYCbCrP010:
		w, hgt := int(b.Width), int(b.Height)
		if len(h) < w*hgt*3 {
			return fmt.Errorf("handle too small for %dx%d P010: %w", w, hgt, pipeline.ErrBadValue)
		}
		b.YCbCr = YCbCrPlanes{
			Y:             h[:w*hgt*2],
			Cb:            h[w*hgt*2 : w*hgt*5/2],
			Cr:            h[w*hgt*5/2 : w*hgt*3],
			YStride:       w * 2,
			CbCrStride:    w,
			CbCrStep:      1,
			BytesPerPixel: 2,
		}
	default:
		size, strideBytes, err := SizeAndStride(b.Format, b.Dataspace, b.Width, b.Height, uint32(len(h)))
		if err != nil {
			return err
		}
		if uint32(len(h)) < size {
			return fmt.Errorf("handle size %d below %d for %v: %w", len(h), size, b.Format, pipeline.ErrBadValue)
		}
		b.Plane = PackedPlane{Data: h[:size], Stride: int(strideBytes)}
	}
	return nil
}

// Unlock implements Allocator. Memory handles need no unlocking.
func (MemoryAllocator) Unlock(pipeline.Handle) error { return nil }
