/*
DESCRIPTION
  jpeg.go provides Compressor, an asynchronous JPEG encoder for YUV420
  frames. Compression runs on a dedicated goroutine so the sensor capture
  loop is never stalled by a still capture; completed blobs are written
  into the destination buffer together with the transport footer that
  carries the encoded size.

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

// Package jpeg compresses synthesized YUV420 frames into JPEG blobs with
// EXIF metadata.
package jpeg

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/jpeg"
	"sync"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"

	"github.com/ausocean/hal/buffer"
	"github.com/ausocean/hal/metadata"
	"github.com/ausocean/hal/pipeline"
)

// Encode quality used for all blobs.
const quality = 90

// Blob transport footer: the encoded size is stored in the last bytes of
// the output buffer so consumers can locate the JPEG payload.
const (
	blobID        = 0x00ff
	blobFooterLen = 8
)

const jobQueueLen = 8

// Errors returned by QueueYUV420.
var (
	ErrClosed    = errors.New("compressor is closed")
	ErrQueueFull = errors.New("compressor queue is full")
)

// YUV420Input is a planar YUV420 frame to be compressed.
type YUV420Input struct {
	Width  uint32
	Height uint32
	Planes buffer.YCbCrPlanes
}

// Job is one compression request. Output carries the destination blob
// buffer and is closed by the compressor once the job completes, whether
// successfully or not. Result supplies the metadata EXIF fields are drawn
// from.
type Job struct {
	Input  *YUV420Input
	Output *buffer.SensorBuffer
	Result *metadata.Metadata
}

// Compressor encodes queued jobs on a background goroutine.
type Compressor struct {
	log  logging.Logger
	jobs chan *Job

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewCompressor returns a running Compressor.
func NewCompressor(log logging.Logger) *Compressor {
	c := &Compressor{log: log, jobs: make(chan *Job, jobQueueLen)}
	c.wg.Add(1)
	go c.run()
	return c
}

// QueueYUV420 submits a frame for compression. The job's output buffer is
// released by the compressor.
func (c *Compressor) QueueYUV420(j *Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close aborts the compressor. Queued jobs are failed, their buffers
// released, and the worker joined. Used during flush, where a fresh
// Compressor replaces the closed one.
func (c *Compressor) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.jobs)
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Compressor) run() {
	defer c.wg.Done()
	for j := range c.jobs {
		c.compress(j)
	}
}

// compress encodes one job and completes its output buffer. The output
// status is flipped to OK only when the blob fits and encoding succeeds.
func (c *Compressor) compress(j *Job) {
	defer j.Output.Close()

	blob, err := encodeYUV420(j.Input, j.Result)
	if err != nil {
		c.log.Error("JPEG encoding failed", "error", err.Error(), "frame", j.Output.FrameNumber)
		return
	}

	dst := j.Output.Plane.Data
	if len(blob)+blobFooterLen > len(dst) {
		c.log.Error("JPEG blob exceeds buffer size", "blobSize", len(blob), "bufferSize", len(dst))
		return
	}
	copy(dst, blob)
	writeBlobFooter(dst, uint32(len(blob)))
	j.Output.StreamBuffer.Status = pipeline.BufferOK
	c.log.Debug("JPEG blob compressed", "frame", j.Output.FrameNumber, "size", len(blob))
}

// encodeYUV420 produces a JPEG with an EXIF APP1 segment spliced in after
// the start of image marker.
func encodeYUV420(in *YUV420Input, result *metadata.Metadata) ([]byte, error) {
	if in.Planes.CbCrStep != 1 {
		return nil, errors.New("interleaved chroma input not supported")
	}
	img := &image.YCbCr{
		Y:              in.Planes.Y,
		Cb:             in.Planes.Cb,
		Cr:             in.Planes.Cr,
		YStride:        in.Planes.YStride,
		CStride:        in.Planes.CbCrStride,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, int(in.Width), int(in.Height)),
	}

	var buf bytes.Buffer
	err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	if err != nil {
		return nil, errors.Wrap(err, "could not encode image")
	}

	encoded := buf.Bytes()
	if len(encoded) < 2 {
		return nil, errors.New("encoder produced short image")
	}

	app1 := exifAPP1(in.Width, in.Height, result)
	out := make([]byte, 0, len(encoded)+len(app1))
	out = append(out, encoded[:2]...)
	out = append(out, app1...)
	out = append(out, encoded[2:]...)
	return out, nil
}

// writeBlobFooter stores the blob identifier and encoded size in the tail
// of the destination buffer.
func writeBlobFooter(dst []byte, size uint32) {
	footer := dst[len(dst)-blobFooterLen:]
	binary.LittleEndian.PutUint16(footer[0:], blobID)
	binary.LittleEndian.PutUint32(footer[4:], size)
}
