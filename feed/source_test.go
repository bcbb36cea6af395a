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
	"strings"
	"sync"
	"testing"
	"time"

	internal "github.com/go-kivik/couchfeed/internal/errors"
)

// testSource is a Source serving a fixed list of lines.
type testSource struct {
	mu    sync.Mutex
	lines []string
	// err is returned once lines are exhausted, in place of io.EOF.
	err error
	// hold makes ReadLine block once lines are exhausted, until Close.
	hold bool
	// idle is the number of empty reads returned before the first line.
	idle int
	// quietEOF makes ReadLine signal the end of the body with empty reads
	// and AtEOF, rather than io.EOF.
	quietEOF    bool
	contentType string

	reads      int
	closeCount int
	forced     bool
	closed     chan struct{}
	closeOnce  sync.Once
}

var _ Source = &testSource{}

func newSource(lines ...string) *testSource {
	return &testSource{
		lines:  lines,
		closed: make(chan struct{}),
	}
}

// body splits a literal response body into lines, keeping terminators.
func body(s string) []string {
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func (s *testSource) ReadLine() ([]byte, error) {
	s.mu.Lock()
	s.reads++
	if s.idle > 0 {
		s.idle--
		s.mu.Unlock()
		return nil, nil
	}
	if len(s.lines) > 0 {
		line := s.lines[0]
		s.lines = s.lines[1:]
		s.mu.Unlock()
		return []byte(line), nil
	}
	hold, err, quiet := s.hold, s.err, s.quietEOF
	s.mu.Unlock()
	if quiet {
		return nil, nil
	}
	if hold {
		<-s.closed
		return nil, errors.New("use of closed network connection")
	}
	if err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (s *testSource) AtEOF() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idle == 0 && len(s.lines) == 0 && !s.hold
}

func (s *testSource) ContentType() string { return s.contentType }

func (s *testSource) Close(force bool) error {
	s.mu.Lock()
	s.closeCount++
	if force {
		s.forced = true
	}
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *testSource) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *testSource) closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

func (s *testSource) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-s.closed:
	case <-time.After(time.Second):
		t.Fatal("source was never closed")
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

type nexter interface {
	Next(context.Context) (json.RawMessage, error)
}

// drain reads all values from f until an error, returning them as strings.
func drain(ctx context.Context, f nexter) ([]string, error) {
	var got []string
	for {
		v, err := f.Next(ctx)
		if err != nil {
			return got, err
		}
		got = append(got, string(v))
	}
}

// assertError compares err against the expected message and, when status is
// non-zero, its embedded status. Unlike testy.Error it does not end the test,
// so the values read before the error can still be checked.
func assertError(t *testing.T, want string, status int, err error) {
	t.Helper()
	var got string
	if err != nil {
		got = err.Error()
	}
	if got != want {
		t.Errorf("Unexpected error: %s (expected %s)", got, want)
	}
	if status != 0 {
		if s := internal.HTTPStatus(err); s != status {
			t.Errorf("Unexpected status code: %d (expected %d)", s, status)
		}
	}
}
