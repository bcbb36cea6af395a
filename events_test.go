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
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gitlab.com/flimzy/testy"

	"github.com/go-kivik/couchfeed/feed"
)

func TestDBEvents(t *testing.T) {
	s := newFakeCouch(t, map[string]endpoint{
		"/db/_changes": {
			contentType: typeEventStream,
			lines: []string{
				"retry: 2000\n",
				"\n",
				"data: {\"seq\":\"1-a\",\"id\":\"foo\",\"changes\":[]}\n",
				"id: 1-a\n",
				"\n",
				"event: heartbeat\n",
				"data: \n",
				"\n",
			},
		},
	})
	c := newTestClient(t, s)
	events, err := c.DB("db").Events(testContext(t), &ChangesOptions{
		Feed:        FeedContinuous,
		Heartbeat:   1000,
		LastEventID: "0-z",
	})
	if err != nil {
		t.Fatal(err)
	}
	var got []feed.Event
	for events.Next() {
		ev, err := events.Event()
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, *ev)
	}
	if err := events.Err(); err != nil {
		t.Fatal(err)
	}
	retry := 2000
	want := []feed.Event{
		{Retry: &retry},
		{ID: "1-a", HasID: true, Data: json.RawMessage(`{"seq":"1-a","id":"foo","changes":[]}`)},
		{Event: "heartbeat"},
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Error(d)
	}
	req := s.lastRequest(t)
	if q := req.URL.RawQuery; q != "feed=eventsource&heartbeat=1000" {
		t.Errorf("Unexpected query: %s", q)
	}
	if id := req.Header.Get("Last-Event-ID"); id != "0-z" {
		t.Errorf("Unexpected Last-Event-ID: %q", id)
	}
}

func TestEventsScanData(t *testing.T) {
	s := newFakeCouch(t, map[string]endpoint{
		"/db/_changes": {
			contentType: typeEventStream,
			lines: []string{
				"data: {\"id\":\"foo\"}\n",
				"\n",
				"event: heartbeat\n",
				"\n",
			},
		},
	})
	c := newTestClient(t, s)
	events, err := c.DB("db").Events(testContext(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = events.Close() })
	if !events.Next() {
		t.Fatal(events.Err())
	}
	var data struct {
		ID string `json:"id"`
	}
	if err := events.ScanData(&data); err != nil {
		t.Fatal(err)
	}
	if data.ID != "foo" {
		t.Errorf("Unexpected data: %+v", data)
	}
	if !events.Next() {
		t.Fatal(events.Err())
	}
	err = events.ScanData(&data)
	testy.StatusError(t, "couchfeed: event has no data", http.StatusBadRequest, err)
}
