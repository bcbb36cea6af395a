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

package chttp

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"gitlab.com/flimzy/httpe"

	internal "github.com/go-kivik/couchfeed/internal/errors"
)

type couchError struct {
	Err    string `json:"error"`
	Reason string `json:"reason"`
}

func handleErrors(next httpe.HandlerWithError) httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		if err := next.ServeHTTPWithError(w, r); err != nil {
			status := internal.HTTPStatus(err)
			body, _ := json.Marshal(couchError{
				Err:    strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_"),
				Reason: err.Error(),
			})
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write(body)
		}
		return nil
	})
}

// newTestServer starts a CouchDB-like server. routes registers handlers on
// a mux which already translates handler errors into CouchDB error bodies.
func newTestServer(t *testing.T, routes func(chi.Router)) *httptest.Server {
	t.Helper()
	mux := chi.NewMux()
	mux.Use(httpe.ToMiddleware(handleErrors))
	routes(mux)
	s := httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// streamLines writes each line to w, flushing after every one.
func streamLines(w http.ResponseWriter, contentType string, lines ...string) error {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	flusher, ok := w.(http.Flusher)
	if !ok {
		return errors.New("streaming unsupported")
	}
	for _, line := range lines {
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
		flusher.Flush()
	}
	return nil
}

type errReader struct {
	io.Reader
	err error
}

func (r *errReader) Read(p []byte) (int, error) {
	c, err := r.Reader.Read(p)
	if err == io.EOF {
		err = r.err
	}
	return c, err
}

type trackingBody struct {
	io.Reader
	closed int
}

func (b *trackingBody) Close() error {
	b.closed++
	return nil
}
