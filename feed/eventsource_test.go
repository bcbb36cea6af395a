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
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gitlab.com/flimzy/testy"
)

func intPtr(i int) *int { return &i }

func events(ctx context.Context, f *EventSourceFeed) ([]*Event, error) {
	var got []*Event
	for {
		ev, err := f.Next(ctx)
		if err != nil {
			return got, err
		}
		got = append(got, ev)
	}
}

func TestEventSourceFeed(t *testing.T) {
	type tst struct {
		lines  []string
		want   []*Event
		status int
		err    string
	}
	tests := testy.NewTable()
	tests.Add("id and data", tst{
		lines: body("id: 5\ndata: {\"a\":1}\n\n"),
		want: []*Event{
			{ID: "5", HasID: true, Data: json.RawMessage(`{"a":1}`)},
		},
		err: "EOF",
	})
	tests.Add("multiple data lines", tst{
		lines: body("data: {\"a\":\ndata: 1}\n\n"),
		want: []*Event{
			{Data: json.RawMessage("{\"a\":\n1}")},
		},
		err: "EOF",
	})
	tests.Add("event type and retry", tst{
		lines: body("event: change\nretry: 3000\ndata: [1]\n\n"),
		want: []*Event{
			{Event: "change", Retry: intPtr(3000), Data: json.RawMessage(`[1]`)},
		},
		err: "EOF",
	})
	tests.Add("invalid retry ignored", tst{
		lines: body("retry: 30s\ndata: 1\n\n"),
		want: []*Event{
			{Data: json.RawMessage(`1`)},
		},
		err: "EOF",
	})
	tests.Add("comments and unknown fields", tst{
		lines: body(": keep-alive\nfoo: bar\ndata: true\n\n"),
		want: []*Event{
			{Data: json.RawMessage(`true`)},
		},
		err: "EOF",
	})
	tests.Add("field without colon", tst{
		lines: body("id\ndata\n\n"),
		want: []*Event{
			{HasID: true},
		},
		err: "EOF",
	})
	tests.Add("no space after colon", tst{
		lines: body("id:7\ndata:{\"b\":2}\n\n"),
		want: []*Event{
			{ID: "7", HasID: true, Data: json.RawMessage(`{"b":2}`)},
		},
		err: "EOF",
	})
	tests.Add("crlf line endings", tst{
		lines: body("id: 1\r\ndata: null\r\n\r\nid: 2\r\ndata: {}\r\n\r\n"),
		want: []*Event{
			{ID: "1", HasID: true, Data: json.RawMessage(`null`)},
			{ID: "2", HasID: true, Data: json.RawMessage(`{}`)},
		},
		err: "EOF",
	})
	tests.Add("leading blank lines", tst{
		lines: body("\n\n\nevent: heartbeat\n\n"),
		want: []*Event{
			{Event: "heartbeat"},
		},
		err: "EOF",
	})
	tests.Add("stream ends mid-event", tst{
		lines: body("id: 9\ndata: {\"c\":3}\n"),
		want: []*Event{
			{ID: "9", HasID: true, Data: json.RawMessage(`{"c":3}`)},
		},
		err: "EOF",
	})
	tests.Add("invalid data", tst{
		lines:  body("data: {\"a\":1}\n\ndata: {nope\n\n"),
		want:   []*Event{{Data: json.RawMessage(`{"a":1}`)}},
		status: http.StatusBadGateway,
		err:    "invalid JSON in feed: invalid character 'n' looking for beginning of object key string",
	})

	tests.Run(t, func(t *testing.T, tt tst) {
		f := NewEventSourceFeed(newSource(tt.lines...))
		got, err := events(testContext(t), f)
		assertError(t, tt.err, tt.status, err)
		if d := cmp.Diff(tt.want, got); d != "" {
			t.Error(d)
		}
	})
}

func TestEventSourceFeedKeepsPartialEvent(t *testing.T) {
	t.Parallel()
	src := newSource(body("id: 3\n")...)
	src.hold = true
	f := NewEventSourceFeed(src)
	defer f.Close(true) // nolint: errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := f.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	// Closing ends the stream; the id read before the cancel is not lost.
	_ = f.Close(false)
	ev, err := f.Next(testContext(t))
	if err != nil {
		t.Fatal(err)
	}
	if !ev.HasID || ev.ID != "3" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if _, err := f.Next(testContext(t)); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestParseRetry(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"1000", 1000, true},
		{"0", 0, true},
		{"", 0, false},
		{"-1", 0, false},
		{"10.5", 0, false},
		{" 10", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseRetry([]byte(tt.in))
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseRetry(%q) = %d, %t, want %d, %t", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
