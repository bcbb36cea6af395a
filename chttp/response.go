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
	"bufio"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/go-kivik/couchfeed/feed"
)

// drainLimit caps how much of an unread body a graceful close will discard.
const drainLimit = 64 * 1024

// Response wraps the body of a CouchDB response as a line-oriented feed
// source.
type Response struct {
	*http.Response

	r *bufio.Reader
	// readMu is held for the duration of each read.
	readMu    sync.Mutex
	eof       atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ feed.Source = &Response{}

// NewResponse wraps res. The caller is responsible for closing the returned
// Response, not the original body.
func NewResponse(res *http.Response) *Response {
	return &Response{
		Response: res,
		r:        bufio.NewReader(res.Body),
	}
}

// ReadLine returns the next line of the body, including its terminator. The
// final line may be unterminated. io.EOF is returned only once the body is
// exhausted.
func (r *Response) ReadLine() ([]byte, error) {
	r.readMu.Lock()
	defer r.readMu.Unlock()
	line, err := r.r.ReadBytes('\n')
	switch {
	case err == io.EOF:
		r.eof.Store(true)
		if len(line) > 0 {
			return line, nil
		}
		return nil, io.EOF
	case err != nil:
		return nil, netError(err)
	}
	return line, nil
}

// AtEOF reports whether the body has been read to the end.
func (r *Response) AtEOF() bool {
	return r.eof.Load()
}

// ContentType returns the raw Content-Type header of the response.
func (r *Response) ContentType() string {
	return r.Header.Get("Content-Type")
}

// Close releases the body. Unless force is set, a body of known, small size
// which nobody is currently reading is drained first, so that the connection
// may be reused. Streaming bodies of unknown length are never drained, as
// they may not end. Close is idempotent.
func (r *Response) Close(force bool) error {
	r.closeOnce.Do(func() {
		if !force && !r.AtEOF() && r.drainable() && r.readMu.TryLock() {
			_, _ = io.CopyN(io.Discard, r.r, drainLimit)
			r.readMu.Unlock()
		}
		r.closeErr = r.Body.Close()
	})
	return r.closeErr
}

func (r *Response) drainable() bool {
	return r.ContentLength >= 0 && r.ContentLength <= drainLimit
}
