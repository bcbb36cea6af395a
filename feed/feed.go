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

// Package feed decodes CouchDB's streaming responses into discrete events.
//
// Every feed is layered on a [LineFeed], which runs a producer goroutine
// reading lines from a [Source] into a bounded queue. The format-specific
// feeds pull raw chunks from that queue and reassemble them into rows,
// changes, or Server-Sent Events:
//
//   - [JSONFeed] decodes each line as one JSON value.
//   - [ViewFeed] decodes the array-wrapped listing returned by views and
//     _all_docs.
//   - [ChangesFeed] decodes the _changes feed in any of its framings: normal,
//     longpoll, continuous or eventsource.
//   - [EventSourceFeed] decodes a generic text/event-stream body.
//
// All feeds return [io.EOF] once the stream is exhausted or closed.
package feed

import (
	"mime"
	"strings"
)

// DefaultBufferSize is the queue capacity used when none is specified.
const DefaultBufferSize = 32

const defaultCharset = "utf-8"

// Source is the open, already-authenticated response a feed reads from.
// [github.com/go-kivik/couchfeed/chttp.Response] is the standard
// implementation.
type Source interface {
	// ReadLine returns the next line of the body, including any line
	// terminator. It returns io.EOF once the body is exhausted. An empty
	// line with a nil error means no data; AtEOF then tells whether the body
	// has ended.
	ReadLine() ([]byte, error)
	// AtEOF reports whether the end of the body has been reached.
	AtEOF() bool
	// ContentType returns the raw Content-Type header of the response.
	ContentType() string
	// Close releases the underlying connection. When force is true the
	// connection is torn down rather than returned for reuse. Close must be
	// safe to call more than once.
	Close(force bool) error
}

// Logger receives debug output from feeds.
type Logger interface {
	Debugf(format string, args ...interface{})
}

type nilLogger struct{}

func (nilLogger) Debugf(string, ...interface{}) {}

// Option configures a feed.
type Option func(*options)

type options struct {
	bufferSize int
	keepBlank  bool
	log        Logger
}

func newOptions(opts []Option) *options {
	o := &options{
		bufferSize: DefaultBufferSize,
		log:        nilLogger{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// BufferSize sets the capacity of the raw chunk queue. A value <= 0 selects
// DefaultBufferSize. A full queue stalls the producer, and with it reads from
// the network.
func BufferSize(n int) Option {
	return func(o *options) {
		if n <= 0 {
			n = DefaultBufferSize
		}
		o.bufferSize = n
	}
}

// KeepBlankLines controls whether blank lines reach the consumer. By default
// they are dropped as heartbeats. Framings which use blank lines as event
// separators must keep them.
func KeepBlankLines(keep bool) Option {
	return func(o *options) {
		o.keepBlank = keep
	}
}

// WithLogger sets a logger for debug output.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// charset extracts the charset parameter from a Content-Type header value.
func charset(contentType string) string {
	if contentType == "" {
		return defaultCharset
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return defaultCharset
	}
	if cs := strings.TrimSpace(params["charset"]); cs != "" {
		return strings.ToLower(cs)
	}
	return defaultCharset
}
