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
	"encoding/json"
	"errors"
	"io"
	"strconv"
)

// Event is one Server-Sent Event.
type Event struct {
	// ID is the value of the last id field, if HasID is true.
	ID    string
	HasID bool
	// Event is the event type, or "" if none was given.
	Event string
	// Retry is the reconnection time in milliseconds, if the server sent one.
	Retry *int
	// Data is the JSON payload of the event, or nil if the event carried no
	// data.
	Data json.RawMessage
}

// EventSourceFeed decodes a text/event-stream body, following the W3C
// event-stream interpretation rules. The data of each event must be JSON.
type EventSourceFeed struct {
	*LineFeed

	// lines collected for an event which is not yet complete.
	lines [][]byte
}

// NewEventSourceFeed starts an EventSourceFeed reading from src. Blank lines
// separate events, so they are always kept.
func NewEventSourceFeed(src Source, opts ...Option) *EventSourceFeed {
	opts = append(opts[:len(opts):len(opts)], KeepBlankLines(true))
	return &EventSourceFeed{LineFeed: NewLineFeed(src, opts...)}
}

// Next returns the next event, or io.EOF once the stream is exhausted. If the
// stream ends in the middle of an event, the lines read so far are dispatched.
func (f *EventSourceFeed) Next(ctx context.Context) (*Event, error) {
	for {
		raw, err := f.Pull(ctx)
		if errors.Is(err, io.EOF) && len(f.lines) > 0 {
			break
		}
		if err != nil {
			return nil, err
		}
		line, err := f.text(raw)
		if err != nil {
			return nil, err
		}
		line = trimEOL(line)
		if len(line) == 0 {
			if len(f.lines) == 0 {
				continue
			}
			break
		}
		f.lines = append(f.lines, line)
	}
	lines := f.lines
	f.lines = nil
	return f.dispatch(lines)
}

func (f *EventSourceFeed) dispatch(lines [][]byte) (*Event, error) {
	ev := &Event{}
	var data bytes.Buffer
	for _, line := range lines {
		if line[0] == ':' {
			continue
		}
		field, value := line, []byte(nil)
		if i := bytes.IndexByte(line, ':'); i >= 0 {
			field, value = line[:i], bytes.TrimPrefix(line[i+1:], []byte(" "))
		}
		switch string(field) {
		case "id":
			ev.ID, ev.HasID = string(value), true
		case "event":
			ev.Event = string(value)
		case "data":
			data.Write(value)
			data.WriteByte('\n')
		case "retry":
			if n, ok := parseRetry(value); ok {
				ev.Retry = &n
			}
		default:
			f.log.Debugf("feed: ignoring event field %q", field)
		}
	}
	if payload := bytes.TrimSpace(data.Bytes()); len(payload) > 0 {
		var err error
		if ev.Data, err = f.validJSON(payload); err != nil {
			return nil, err
		}
	}
	return ev, nil
}

// parseRetry accepts only ASCII digits; other values are ignored.
func parseRetry(value []byte) (int, bool) {
	if len(value) == 0 {
		return 0, false
	}
	for _, c := range value {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(string(value))
	return n, err == nil
}

func trimEOL(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r"))
}
