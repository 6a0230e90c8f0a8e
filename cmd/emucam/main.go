/*
DESCRIPTION
  emucam captures frames from the emulated camera session and writes them
  to disk, exercising the full request pipeline from configuration
  through capture to buffer return.

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

// Package main is a frame capture client for the emulated camera.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ausocean/utils/bitrate"
	"github.com/ausocean/utils/logging"
	"github.com/ausocean/utils/pool"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/hal/buffer"
	"github.com/ausocean/hal/metadata"
	"github.com/ausocean/hal/pipeline"
	"github.com/ausocean/hal/request"
	"github.com/ausocean/hal/sensor"
	"github.com/ausocean/hal/session"
	"github.com/ausocean/hal/stream"
)

// Current software version.
const version = "v1.0.0"

// Logging configuration.
const (
	logPath      = "/var/log/emucam/emucam.log"
	logMaxSize   = 500 // MB
	logMaxBackup = 10
	logMaxAge    = 28 // days
	logSuppress  = true
)

// Misc constants.
const (
	pkg            = "emucam: "
	backendName    = "emulated"
	logicalCamera  = 0
	outputStreamID = 0
	eventQueueLen  = 32
	captureTimeout = 10 * time.Second

	// Frame staging pool geometry.
	poolElementSize = 512 << 10
	poolElements    = 16
	poolTimeout     = 5 * time.Second
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version")
		outDir      = flag.String("out", ".", "output directory for captured frames")
		frames      = flag.Int("frames", 10, "number of frames to capture")
		width       = flag.Uint("width", 640, "frame width")
		height      = flag.Uint("height", 480, "frame height")
		format      = flag.String("format", "jpeg", "output format: jpeg, yuv or raw")
		verbosity   = flag.Int("verbosity", int(logging.Info), "logging verbosity")
	)
	flag.Parse()
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Lumberjack handles log rotation; logs also go to stderr.
	fileLog := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	log := logging.New(int8(*verbosity), io.MultiWriter(fileLog, os.Stderr), logSuppress)

	log.Info("starting emucam", "version", version)

	st, err := captureStream(*format, uint32(*width), uint32(*height))
	if err != nil {
		log.Fatal(pkg+"bad capture format", "error", err.Error())
	}

	c := newCapturer(log, *outDir, *format)

	registry := pipeline.NewRegistry()
	err = registry.Register(backendName, func(cameraID uint32) (pipeline.DeviceSession, error) {
		chars := sensor.DefaultCharacteristics()
		chars.Width, chars.Height = uint32(*width), uint32(*height)
		chars.FullResWidth, chars.FullResHeight = uint32(*width), uint32(*height)
		return session.New(session.Config{
			CameraID:        cameraID,
			Characteristics: sensor.LogicalCharacteristics{cameraID: chars},
			Callback:        pipeline.SessionCallback{ReturnStreamBuffers: c.returned},
		}, log)
	})
	if err != nil {
		log.Fatal(pkg+"could not register session factory", "error", err.Error())
	}

	factory, _ := registry.Lookup(backendName)
	ses, err := factory(logicalCamera)
	if err != nil {
		log.Fatal(pkg+"could not open camera session", "error", err.Error())
	}

	events := make(chan pipeline.Event, eventQueueLen)
	cfg := stream.Configuration{Streams: []stream.Stream{st}}
	pipelineID, err := ses.ConfigurePipeline(logicalCamera, events, cfg, cfg)
	if err != nil {
		log.Fatal(pkg+"could not configure pipeline", "error", err.Error())
	}

	settings := defaultSettings(ses, log)

	go c.consume(events)

	log.Debug("beginning capture loop", "frames", *frames)
	run(ses, c, pipelineID, st, settings, *frames, log)

	err = ses.Flush()
	if err != nil {
		log.Warning(pkg+"flush failed", "error", err.Error())
	}
	if closer, ok := ses.(io.Closer); ok {
		closer.Close()
	}
	c.stop()
	log.Info("capture finished", "frames", c.frames(), "bitrate", c.Bitrate())
}

// run submits one request per frame and waits for its buffer to come
// back before reusing the slot.
func run(ses pipeline.DeviceSession, c *capturer, pipelineID uint32, st stream.Stream,
	settings *metadata.Metadata, frames int, l logging.Logger) {

	alloc := buffer.MemoryAllocator{}
	for i := 0; i < frames; i++ {
		handle, err := alloc.Allocate(st.Format, st.Dataspace, st.Width, st.Height, st.BufferSize)
		if err != nil {
			l.Fatal(pkg+"could not allocate frame buffer", "error", err.Error())
		}

		// Only the first request carries settings; the rest repeat.
		var reqSettings *metadata.Metadata
		if i == 0 {
			reqSettings = settings
		}
		err = ses.SubmitRequests(uint32(i), []pipeline.Request{{
			PipelineID: pipelineID,
			Settings:   reqSettings,
			OutputBuffers: []pipeline.StreamBuffer{{
				StreamID: outputStreamID,
				Buffer:   handle,
			}},
		}})
		if err != nil {
			l.Error(pkg+"could not submit request", "frame", i, "error", err.Error())
			continue
		}

		if !c.waitFrame(captureTimeout) {
			l.Error(pkg+"timed out waiting for frame", "frame", i)
		}
	}
}

func defaultSettings(ses pipeline.DeviceSession, l logging.Logger) *metadata.Metadata {
	s, ok := ses.(*session.Session)
	if !ok {
		return nil
	}
	m, err := s.DefaultRequest(request.TemplatePreview)
	if err != nil {
		l.Warning(pkg+"could not build default request", "error", err.Error())
		return nil
	}
	return m
}

// captureStream describes the single output stream of the capture.
func captureStream(format string, width, height uint32) (stream.Stream, error) {
	st := stream.Stream{
		ID:          outputStreamID,
		Type:        stream.TypeOutput,
		Width:       width,
		Height:      height,
		GroupID:     -1,
		DefaultMode: true,
	}
	switch format {
	case "jpeg":
		st.Format = stream.FormatBlob
		st.Dataspace = stream.DataspaceJFIF
		st.BufferSize = width * height
	case "yuv":
		st.Format = stream.FormatYCbCr420
	case "raw":
		st.Format = stream.FormatRAW16
	default:
		return st, fmt.Errorf("unknown format %q", format)
	}
	return st, nil
}

// capturer receives completed buffers and writes their payload to disk.
type capturer struct {
	log    logging.Logger
	outDir string
	format string
	pool   *pool.Buffer
	bitrate.Calculator

	mu    sync.Mutex
	count int
	done  chan struct{}
	quit  chan struct{}
	wg    sync.WaitGroup
}

func newCapturer(log logging.Logger, outDir, format string) *capturer {
	c := &capturer{
		log:    log,
		outDir: outDir,
		format: format,
		pool:   pool.NewBuffer(poolElements, poolElementSize, poolTimeout),
		done:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}
	c.wg.Add(1)
	go c.output()
	return c
}

// output drains the staging pool to disk, one frame per chunk.
func (c *capturer) output() {
	defer c.wg.Done()
	n := 0
	for {
		select {
		case <-c.quit:
			return
		default:
		}
		chunk, err := c.pool.Next(poolTimeout)
		switch err {
		case nil:
		case io.EOF, pool.ErrTimeout:
			continue
		default:
			c.log.Error(pkg+"unexpected pool read error", "error", err.Error())
			continue
		}
		werr := c.writeFrame(n, chunk.Bytes())
		if werr != nil {
			c.log.Error(pkg+"could not write frame", "frame", n, "error", werr.Error())
		}
		chunk.Close()
		n++
	}
}

// stop terminates the output routine once the pool has drained.
func (c *capturer) stop() {
	close(c.quit)
	c.wg.Wait()
}

func (c *capturer) frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// waitFrame blocks until the next buffer return or timeout.
func (c *capturer) waitFrame(timeout time.Duration) bool {
	select {
	case <-c.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// consume drains pipeline events, logging errors.
func (c *capturer) consume(events <-chan pipeline.Event) {
	for ev := range events {
		switch ev.Kind {
		case pipeline.EventShutter:
			c.log.Debug("shutter", "frame", ev.Shutter.FrameNumber, "timestamp", ev.Shutter.Timestamp)
		case pipeline.EventError:
			c.log.Error(pkg+"capture error", "frame", ev.Error.FrameNumber, "code", int(ev.Error.Code))
		case pipeline.EventResult:
			if ev.Result.Partial {
				continue
			}
			c.log.Debug("result", "frame", ev.Result.FrameNumber)
		}
	}
}

// returned accepts completed stream buffers from the session and writes
// their payload.
func (c *capturer) returned(buffers []pipeline.StreamBuffer) {
	for _, sb := range buffers {
		c.mu.Lock()
		n := c.count
		c.count++
		c.mu.Unlock()

		if sb.Status == pipeline.BufferOK {
			err := c.stage(sb.Buffer)
			if err != nil {
				c.log.Error(pkg+"could not stage frame", "frame", n, "error", err.Error())
			}
		} else {
			c.log.Warning(pkg+"dropping failed buffer", "frame", n)
		}

		select {
		case c.done <- struct{}{}:
		default:
		}
	}
}

// stage pushes one frame's payload into the staging pool so disk writes
// do not stall the buffer return path.
func (c *capturer) stage(h pipeline.Handle) error {
	data := []byte(h)
	if c.format == "jpeg" {
		// The compressed size lives in the blob footer.
		if len(data) < 8 {
			return fmt.Errorf("short blob buffer: %d bytes", len(data))
		}
		size := binary.LittleEndian.Uint32(data[len(data)-4:])
		if int(size) > len(data)-8 {
			return fmt.Errorf("blob footer size %d exceeds buffer", size)
		}
		data = data[:size]
	}

	_, err := c.pool.Write(data)
	if err != nil {
		return err
	}
	c.pool.Flush()
	c.Report(len(data))
	return nil
}

func (c *capturer) writeFrame(n int, data []byte) error {
	ext := "bin"
	switch c.format {
	case "jpeg":
		ext = "jpg"
	case "yuv":
		ext = "yuv"
	case "raw":
		ext = "raw"
	}
	name := filepath.Join(c.outDir, fmt.Sprintf("frame-%04d.%s", n, ext))
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	if err != nil {
		return err
	}
	c.log.Debug("wrote frame", "file", name, "bytes", len(data))
	return nil
}
