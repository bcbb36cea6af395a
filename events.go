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

package couchfeed

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-kivik/couchfeed/feed"
)

// Events is an iterator over the Server-Sent Events of an eventsource feed.
type Events struct {
	*iter
	events *eventsIterator
}

type eventsIterator struct {
	*feed.EventSourceFeed
	cur *feed.Event
}

var _ iterator = &eventsIterator{}

func (e *eventsIterator) Next(ctx context.Context) (json.RawMessage, error) {
	ev, err := e.EventSourceFeed.Next(ctx)
	if err != nil {
		return nil, err
	}
	e.cur = ev
	return ev.Data, nil
}

func newEvents(ctx context.Context, src feed.Source, opts []feed.Option, end func()) *Events {
	events := &eventsIterator{EventSourceFeed: feed.NewEventSourceFeed(src, opts...)}
	return &Events{
		iter:   newIterator(ctx, events, end),
		events: events,
	}
}

// Next prepares the next event for reading. It returns true on success or
// false if there are no more events or an error occurs while preparing it.
// Err should be consulted to distinguish between the two.
func (e *Events) Next() bool {
	return e.iter.Next()
}

// Err returns the error, if any, that was encountered during iteration.
func (e *Events) Err() error {
	return e.iter.Err()
}

// Close closes the iterator and releases the connection. Close is idempotent.
func (e *Events) Close() error {
	return e.iter.Close()
}

// Event returns a copy of the current event.
func (e *Events) Event() (*feed.Event, error) {
	runlock, err := e.rlock()
	if err != nil {
		return nil, err
	}
	defer runlock()
	ev := *e.events.cur
	return &ev, nil
}

// ScanData copies the data of the current event into the value pointed at by
// dest.
func (e *Events) ScanData(dest interface{}) error {
	runlock, err := e.rlock()
	if err != nil {
		return err
	}
	defer runlock()
	if e.curVal == nil {
		return &Error{Status: http.StatusBadRequest, Message: "couchfeed: event has no data"}
	}
	return json.Unmarshal(e.curVal, dest)
}
