/*
DESCRIPTION
  realtime.go provides RealtimeBlock, the process block driving a realtime
  capture backend. It owns the event channel of its configured pipeline,
  adapts backend events into capture results and messages, and forwards
  them to the attached result processor.

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
	"fmt"
	"sync"

	"github.com/ausocean/hal/stream"
	"github.com/ausocean/utils/logging"
)

// eventQueueLen bounds the per-pipeline event channel. Result delivery
// runs on the backend's timing thread, so the consumer must keep up; the
// queue only absorbs short scheduling hiccups.
const eventQueueLen = 32

// BlockRequest is one request as seen by a process block.
type BlockRequest struct {
	RequestID   uint32
	Request     Request
	FrameNumber uint32
}

// BlockResult pairs a capture result with the block that produced it.
type BlockResult struct {
	Result *Result
}

// BlockMessage wraps a notify message forwarded to the result processor.
type BlockMessage struct {
	Shutter *Shutter
	Error   *Error
}

// ResultProcessor consumes the results and messages of one process block.
// Exactly one processor may be attached to a block. Callbacks run on the
// block's dispatch goroutine and must not block for unbounded time.
type ResultProcessor interface {
	AddPendingRequests(requests []BlockRequest) error
	ProcessResult(result BlockResult)
	Notify(message BlockMessage)
}

// RealtimeBlock connects a realtime capture backend to a result
// processor. Configure the block exactly once, attach one result
// processor, then submit requests one at a time.
type RealtimeBlock struct {
	session DeviceSession
	log     logging.Logger

	procMu    sync.Mutex
	processor ResultProcessor

	confMu     sync.RWMutex
	configured bool
	pipelineID uint32

	events chan Event
	wg     sync.WaitGroup
}

// NewRealtimeBlock returns a process block driving the given session.
func NewRealtimeBlock(session DeviceSession, l logging.Logger) (*RealtimeBlock, error) {
	if session == nil {
		return nil, fmt.Errorf("nil device session: %w", ErrBadValue)
	}
	b := &RealtimeBlock{
		session: session,
		log:     l,
		events:  make(chan Event, eventQueueLen),
	}
	b.wg.Add(1)
	go b.dispatch()
	return b, nil
}

// SetResultProcessor attaches the block's result processor. A second
// attachment is an error.
func (b *RealtimeBlock) SetResultProcessor(p ResultProcessor) error {
	if p == nil {
		return fmt.Errorf("nil result processor: %w", ErrBadValue)
	}
	b.procMu.Lock()
	defer b.procMu.Unlock()
	if b.processor != nil {
		return fmt.Errorf("result processor: %w", ErrAlreadyExists)
	}
	b.processor = p
	return nil
}

// ConfigureStreams configures the block's pipeline on the backend. It
// must be called exactly once before any request is accepted; calling it
// again without tearing the block down is an error.
func (b *RealtimeBlock) ConfigureStreams(config, overall stream.Configuration) error {
	b.confMu.Lock()
	defer b.confMu.Unlock()
	if b.configured {
		return fmt.Errorf("streams: %w", ErrAlreadyExists)
	}

	id, err := b.session.ConfigurePipeline(b.session.CameraID(), b.events, config, overall)
	if err != nil {
		return fmt.Errorf("could not configure pipeline: %w", err)
	}

	b.pipelineID = id
	b.configured = true
	return nil
}

// ConfiguredStreams returns the streams of the configured pipeline.
func (b *RealtimeBlock) ConfiguredStreams() ([]stream.Stream, error) {
	b.confMu.RLock()
	defer b.confMu.RUnlock()
	if !b.configured {
		return nil, ErrNotConfigured
	}
	return b.session.ConfiguredStreams(b.pipelineID)
}

// ProcessRequests submits requests to the backend. Exactly one request
// per call is supported; larger batches are rejected rather than
// truncated.
func (b *RealtimeBlock) ProcessRequests(requests []BlockRequest) error {
	if len(requests) != 1 {
		return fmt.Errorf("got %d requests, single request supported: %w", len(requests), ErrBadValue)
	}

	b.procMu.Lock()
	if b.processor == nil {
		b.procMu.Unlock()
		return fmt.Errorf("result processor: %w", ErrNotConfigured)
	}
	err := b.processor.AddPendingRequests(requests)
	b.procMu.Unlock()
	if err != nil {
		return fmt.Errorf("could not add pending request: %w", err)
	}

	b.confMu.RLock()
	defer b.confMu.RUnlock()
	if !b.configured {
		return fmt.Errorf("block: %w", ErrNotConfigured)
	}

	req := requests[0].Request
	req.PipelineID = b.pipelineID
	return b.session.SubmitRequests(requests[0].FrameNumber, []Request{req})
}

// Flush completes all requests in flight on the backend. It is a no-op
// if streams were never configured.
func (b *RealtimeBlock) Flush() error {
	b.confMu.RLock()
	defer b.confMu.RUnlock()
	if !b.configured {
		return nil
	}
	return b.session.Flush()
}

// RepeatingRequestEnd forwards the end of a repeating request to the
// backend. It does nothing if streams were never configured.
func (b *RealtimeBlock) RepeatingRequestEnd(frameNumber int32, streamIDs []int32) {
	b.confMu.RLock()
	defer b.confMu.RUnlock()
	if b.configured {
		b.session.RepeatingRequestEnd(frameNumber, streamIDs)
	}
}

// Close stops the block's dispatch goroutine. The backend must be idle
// (flushed or shut down) before Close is called.
func (b *RealtimeBlock) Close() error {
	close(b.events)
	b.wg.Wait()
	return nil
}

// dispatch forwards backend events to the result processor, preserving
// the per-pipeline order of the channel. Events arriving while no
// processor is attached are dropped with a warning; they are never queued
// for late attachment.
func (b *RealtimeBlock) dispatch() {
	defer b.wg.Done()
	for ev := range b.events {
		b.procMu.Lock()
		p := b.processor
		b.procMu.Unlock()
		if p == nil {
			b.log.Warning("no result processor attached, dropping event", "kind", int(ev.Kind), "pipeline", ev.PipelineID)
			continue
		}

		switch ev.Kind {
		case EventResult:
			if ev.Result == nil {
				b.log.Warning("result event without result", "pipeline", ev.PipelineID)
				continue
			}
			p.ProcessResult(BlockResult{Result: ev.Result})
		case EventShutter:
			s := ev.Shutter
			p.Notify(BlockMessage{Shutter: &s})
		case EventError:
			e := ev.Error
			p.Notify(BlockMessage{Error: &e})
		default:
			b.log.Warning("unknown event kind", "kind", int(ev.Kind))
		}
	}
}
