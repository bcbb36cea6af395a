// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//  http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

package feed

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	internal "github.com/go-kivik/couchfeed/internal/errors"
)

// LineFeed is the base streaming primitive. A producer goroutine reads lines
// from the Source into a bounded queue, from which the consumer pulls. A
// LineFeed has exactly one producer and must have only one consumer.
type LineFeed struct {
	src  Source
	log  Logger
	keep bool

	queue chan []byte
	// done is closed on teardown, whichever side triggers it.
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error

	active atomic.Bool
	// terminal is set when the consumer hits a framing fault; no further
	// chunks are handed out after that.
	terminal atomic.Bool

	mu      sync.Mutex
	lastErr error

	charset string
	dec     *encoding.Decoder
}

// NewLineFeed starts a LineFeed reading from src.
func NewLineFeed(src Source, opts ...Option) *LineFeed {
	return newLineFeed(src, newOptions(opts))
}

func newLineFeed(src Source, o *options) *LineFeed {
	f := &LineFeed{
		src:     src,
		log:     o.log,
		keep:    o.keepBlank,
		queue:   make(chan []byte, o.bufferSize),
		done:    make(chan struct{}),
		charset: charset(src.ContentType()),
	}
	f.dec = decoderFor(f.charset, f.log)
	f.active.Store(true)
	go f.pump()
	return f
}

func decoderFor(cs string, log Logger) *encoding.Decoder {
	enc, err := htmlindex.Get(cs)
	if err != nil {
		log.Debugf("feed: unknown charset %q, assuming %s", cs, defaultCharset)
		return nil
	}
	if name, _ := htmlindex.Name(enc); name == defaultCharset {
		return nil
	}
	return enc.NewDecoder()
}

// pump is the producer loop.
func (f *LineFeed) pump() {
	var fault error
	defer func() {
		if fault != nil {
			f.setErr(fault)
			f.log.Debugf("feed: producer stopped: %s", fault)
		}
		_ = f.shutdown(fault != nil)
		close(f.queue)
	}()
	for {
		line, err := f.src.ReadLine()
		if len(line) > 0 && !f.push(line) {
			return
		}
		if len(line) == 0 && err == nil {
			// No data. Either the body has ended, or nothing has arrived yet.
			if f.src.AtEOF() || !f.idle() {
				return
			}
			continue
		}
		if err != nil {
			if err != io.EOF && !f.closing() {
				fault = internal.BadGateway(err)
			}
			return
		}
	}
}

// idlePoll is how long the producer waits after an empty read before reading
// again.
const idlePoll = 10 * time.Millisecond

// idle waits before the next read. It returns false if the feed was closed
// while waiting.
func (f *LineFeed) idle() bool {
	t := time.NewTimer(idlePoll)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-f.done:
		return false
	}
}

// push enqueues one chunk, blocking while the queue is full. It returns false
// if the feed was closed while waiting.
func (f *LineFeed) push(line []byte) bool {
	if !f.keep && len(bytes.TrimSpace(line)) == 0 {
		f.log.Debugf("feed: heartbeat")
		return true
	}
	select {
	case f.queue <- line:
		return true
	case <-f.done:
		return false
	}
}

func (f *LineFeed) closing() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *LineFeed) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastErr == nil {
		f.lastErr = err
	}
}

// finalErr is what a consumer sees once the queue is drained: the captured
// fault, or io.EOF.
func (f *LineFeed) finalErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastErr != nil {
		return f.lastErr
	}
	return io.EOF
}

// Pull returns the next raw chunk. Once the feed is inactive and the queue is
// empty, it returns the captured producer fault, if any, or io.EOF. A
// canceled ctx aborts the wait without affecting the feed.
func (f *LineFeed) Pull(ctx context.Context) ([]byte, error) {
	if f.terminal.Load() {
		return nil, f.finalErr()
	}
	select {
	case line, ok := <-f.queue:
		if ok {
			return line, nil
		}
		return nil, f.finalErr()
	case <-f.done:
		// Closed, but anything already queued is still delivered.
		select {
		case line, ok := <-f.queue:
			if ok {
				return line, nil
			}
		default:
		}
		return nil, f.finalErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IsActive reports whether more chunks may still be pulled: the producer is
// running, or the queue is non-empty.
func (f *LineFeed) IsActive() bool {
	if f.terminal.Load() {
		return false
	}
	return f.active.Load() || len(f.queue) > 0
}

// Close stops the producer and releases the source. When force is true the
// connection is torn down instead of being released for reuse. Close is
// idempotent and safe to call from any goroutine; a consumer blocked in Pull
// is woken up.
func (f *LineFeed) Close(force bool) error {
	return f.shutdown(force)
}

func (f *LineFeed) shutdown(force bool) error {
	f.closeOnce.Do(func() {
		f.active.Store(false)
		close(f.done)
		f.closeErr = f.src.Close(force)
	})
	return f.closeErr
}

// fail records err as a terminal fault raised by a decoder layered on top of
// f, and tears the feed down. It returns err.
func (f *LineFeed) fail(err error) error {
	f.setErr(err)
	f.terminal.Store(true)
	_ = f.shutdown(true)
	return f.finalErr()
}

// Charset returns the charset of the stream, as declared by its Content-Type.
func (f *LineFeed) Charset() string {
	return f.charset
}

// text converts a raw chunk to UTF-8.
func (f *LineFeed) text(chunk []byte) ([]byte, error) {
	if f.dec == nil {
		return chunk, nil
	}
	out, err := f.dec.Bytes(chunk)
	if err != nil {
		return nil, f.fail(&internal.Error{Status: http.StatusBadGateway, Message: "decode " + f.charset, Err: err})
	}
	return out, nil
}
