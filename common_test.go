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
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"gitlab.com/flimzy/httpe"
)

const typeJSON = "application/json"

type couchError struct {
	Err    string `json:"error"`
	Reason string `json:"reason"`
}

func handleErrors(next httpe.HandlerWithError) httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		if err := next.ServeHTTPWithError(w, r); err != nil {
			status := HTTPStatus(err)
			body, _ := json.Marshal(couchError{
				Err:    strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_"),
				Reason: err.Error(),
			})
			w.Header().Set("Content-Type", typeJSON)
			w.WriteHeader(status)
			_, _ = w.Write(body)
		}
		return nil
	})
}

// fakeCouch is a CouchDB stand-in serving canned bodies, recording the
// requests it receives.
type fakeCouch struct {
	*httptest.Server

	mu   sync.Mutex
	reqs []*http.Request
}

func (s *fakeCouch) record(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, r)
}

func (s *fakeCouch) lastRequest(t *testing.T) *http.Request {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reqs) == 0 {
		t.Fatal("no request received")
	}
	return s.reqs[len(s.reqs)-1]
}

// endpoint serves a canned streaming response.
type endpoint struct {
	contentType string
	lines       []string
	// hold keeps the response open after the lines are sent, until the
	// client goes away.
	hold bool
}

func newFakeCouch(t *testing.T, routes map[string]endpoint) *fakeCouch {
	t.Helper()
	s := &fakeCouch{}
	mux := chi.NewMux()
	mux.Use(httpe.ToMiddleware(handleErrors))
	for pattern, ep := range routes {
		ep := ep
		mux.Get(pattern, httpe.ToHandler(httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
			s.record(r)
			return serveLines(w, r, ep)
		})).ServeHTTP)
	}
	mux.NotFound(httpe.ToHandler(httpe.HandlerWithErrorFunc(func(http.ResponseWriter, *http.Request) error {
		return &Error{Status: http.StatusNotFound, Message: "Database does not exist."}
	})).ServeHTTP)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func serveLines(w http.ResponseWriter, r *http.Request, ep endpoint) error {
	contentType := ep.contentType
	if contentType == "" {
		contentType = typeJSON
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	flusher, ok := w.(http.Flusher)
	if !ok {
		return errors.New("streaming unsupported")
	}
	for _, line := range ep.lines {
		if _, err := io.WriteString(w, line); err != nil {
			return nil
		}
		flusher.Flush()
	}
	if ep.hold {
		<-r.Context().Done()
	}
	return nil
}

func newTestClient(t *testing.T, s *fakeCouch) *Client {
	t.Helper()
	c, err := New(s.URL)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// lines splits a literal body into lines, keeping the terminators.
func lines(s string) []string {
	l := strings.SplitAfter(s, "\n")
	if l[len(l)-1] == "" {
		l = l[:len(l)-1]
	}
	return l
}
