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
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	internal "github.com/go-kivik/couchfeed/internal/errors"
)

// Values of the CouchDB `feed` parameter.
const (
	ModeNormal      = "normal"
	ModeLongPoll    = "longpoll"
	ModeContinuous  = "continuous"
	ModeEventSource = "eventsource"
)

type unitKind int

const (
	unitChange unitKind = iota
	unitFooter
	unitSkip
)

// unit is one decoded piece of a changes stream.
type unit struct {
	kind       unitKind
	data       json.RawMessage
	seq        string
	hasSeq     bool
	pending    int64
	hasPending bool
}

// chunkDecoder is one wire framing of the changes feed.
type chunkDecoder interface {
	decode(ctx context.Context) (unit, error)
}

// ChangesFeed decodes a _changes response. The framing is selected at
// construction; whichever is used, Next returns the change objects and
// LastSeq tracks the position of the most recently returned change, or the
// final last_seq sent by the server.
type ChangesFeed struct {
	*LineFeed
	dec chunkDecoder

	lastSeq    string
	pending    int64
	hasPending bool
}

// NewChangesFeed starts a ChangesFeed for the array-wrapped framing used by
// feed=normal:
//
//	{"results":[
//	{"seq":1,"id":"a","changes":[{"rev":"1-x"}]},
//	],
//	"last_seq":1}
func NewChangesFeed(src Source, opts ...Option) *ChangesFeed {
	lf := NewLineFeed(src, opts...)
	return &ChangesFeed{LineFeed: lf, dec: &arrayDecoder{LineFeed: lf}}
}

// NewLongPollChangesFeed starts a ChangesFeed for feed=longpoll. The server
// holds the request until changes are available, then answers with the same
// framing as feed=normal.
func NewLongPollChangesFeed(src Source, opts ...Option) *ChangesFeed {
	return NewChangesFeed(src, opts...)
}

// NewContinuousChangesFeed starts a ChangesFeed for feed=continuous, where
// each line holds one complete change, and the last line is a
// {"last_seq":...} footer.
func NewContinuousChangesFeed(src Source, opts ...Option) *ChangesFeed {
	lf := NewLineFeed(src, opts...)
	return &ChangesFeed{LineFeed: lf, dec: &continuousDecoder{lf}}
}

// NewEventSourceChangesFeed starts a ChangesFeed for feed=eventsource. Only
// the data of each event is returned; heartbeat events are dropped.
func NewEventSourceChangesFeed(src Source, opts ...Option) *ChangesFeed {
	es := NewEventSourceFeed(src, opts...)
	return &ChangesFeed{LineFeed: es.LineFeed, dec: &eventSourceDecoder{es}}
}

// NewChangesFeedMode starts the ChangesFeed matching the value of the
// CouchDB `feed` parameter. An empty mode means normal.
func NewChangesFeedMode(mode string, src Source, opts ...Option) (*ChangesFeed, error) {
	switch mode {
	case "", ModeNormal:
		return NewChangesFeed(src, opts...), nil
	case ModeLongPoll:
		return NewLongPollChangesFeed(src, opts...), nil
	case ModeContinuous:
		return NewContinuousChangesFeed(src, opts...), nil
	case ModeEventSource:
		return NewEventSourceChangesFeed(src, opts...), nil
	}
	return nil, &internal.Error{Status: http.StatusBadRequest, Message: fmt.Sprintf("unsupported feed type %q", mode)}
}

// Next returns the next change, or io.EOF once the feed is exhausted.
func (f *ChangesFeed) Next(ctx context.Context) (json.RawMessage, error) {
	for {
		u, err := f.dec.decode(ctx)
		if err != nil {
			return nil, err
		}
		switch u.kind {
		case unitSkip:
			continue
		case unitFooter:
			f.latch(u)
			continue
		}
		f.latch(u)
		return u.data, nil
	}
}

func (f *ChangesFeed) latch(u unit) {
	if u.hasSeq {
		f.lastSeq = u.seq
	}
	if u.hasPending {
		f.pending, f.hasPending = u.pending, true
	}
}

// LastSeq returns the sequence of the last change returned by Next, or the
// last_seq footer once it has been read.
func (f *ChangesFeed) LastSeq() string {
	return f.lastSeq
}

// Pending returns the number of changes remaining after this response, when
// the server reported it.
func (f *ChangesFeed) Pending() (pending int64, ok bool) {
	return f.pending, f.hasPending
}

// changeUnit classifies a complete JSON object from the feed.
func changeUnit(obj json.RawMessage) unit {
	res := gjson.ParseBytes(obj)
	if last := res.Get("last_seq"); last.Exists() {
		u := unit{kind: unitFooter, seq: seqString(last), hasSeq: true}
		if p := res.Get("pending"); p.Exists() {
			u.pending, u.hasPending = p.Int(), true
		}
		return u
	}
	u := unit{kind: unitChange, data: obj}
	if seq := res.Get("seq"); seq.Exists() {
		u.seq, u.hasSeq = seqString(seq), true
	}
	return u
}

type arrayDecoder struct {
	*LineFeed

	// units split from a chunk that carried the whole listing.
	pending []unit
}

func (d *arrayDecoder) decode(ctx context.Context) (unit, error) {
	if len(d.pending) > 0 {
		u := d.pending[0]
		d.pending = d.pending[1:]
		return u, nil
	}
	raw, err := d.Pull(ctx)
	if err != nil {
		return unit{}, err
	}
	chunk, err := d.text(raw)
	if err != nil {
		return unit{}, err
	}
	chunk = bytes.TrimSpace(bytes.TrimRight(chunk, "\r\n,"))
	switch {
	case isStandalone(chunk):
		return d.object(json.RawMessage(chunk)), nil
	case bytes.Contains(chunk, []byte(`"last_seq"`)):
		obj, err := d.metaObject(chunk)
		if err != nil {
			return unit{}, err
		}
		return d.object(obj), nil
	case isListingNoise(chunk, `{"results"`):
		d.log.Debugf("feed: skipping %q", chunk)
		return unit{kind: unitSkip}, nil
	}
	obj, err := d.validJSON(chunk)
	if err != nil {
		return unit{}, err
	}
	return changeUnit(obj), nil
}

// object classifies a complete object. A listing delivered whole, as in
//
//	{"results":[{"seq":1,"id":"a","changes":[]}],"last_seq":1}
//
// is split into its changes, followed by its footer.
func (d *arrayDecoder) object(obj json.RawMessage) unit {
	results := gjson.GetBytes(obj, "results")
	if !results.IsArray() {
		return changeUnit(obj)
	}
	for _, row := range results.Array() {
		d.pending = append(d.pending, changeUnit(json.RawMessage(row.Raw)))
	}
	footer := changeUnit(obj)
	footer.kind = unitFooter
	d.pending = append(d.pending, footer)
	u := d.pending[0]
	d.pending = d.pending[1:]
	return u
}

type continuousDecoder struct {
	*LineFeed
}

func (d *continuousDecoder) decode(ctx context.Context) (unit, error) {
	raw, err := d.Pull(ctx)
	if err != nil {
		return unit{}, err
	}
	obj, err := d.decodeJSON(raw)
	if err != nil {
		return unit{}, err
	}
	return changeUnit(obj), nil
}

type eventSourceDecoder struct {
	*EventSourceFeed
}

func (d *eventSourceDecoder) decode(ctx context.Context) (unit, error) {
	ev, err := d.EventSourceFeed.Next(ctx)
	if err != nil {
		return unit{}, err
	}
	if ev.Event == "heartbeat" {
		d.log.Debugf("feed: skipping heartbeat")
		return unit{kind: unitSkip}, nil
	}
	if ev.Data == nil {
		// Nothing to return, but the position still moves.
		return unit{kind: unitFooter, seq: ev.ID, hasSeq: ev.HasID}, nil
	}
	u := unit{kind: unitChange, data: ev.Data}
	switch {
	case ev.HasID:
		u.seq, u.hasSeq = ev.ID, true
	default:
		if seq := gjson.GetBytes(ev.Data, "seq"); seq.Exists() {
			u.seq, u.hasSeq = seqString(seq), true
		}
	}
	return u, nil
}
