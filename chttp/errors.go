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
	"fmt"
	"io"
	"mime"
	"net/http"
)

// HTTPError is returned for a response with a 4xx or 5xx status. Type and
// Reason come from the CouchDB error body, when there is one.
type HTTPError struct {
	StatusCode int `json:"-"`
	// Header holds the response headers, for debugging.
	Header http.Header `json:"-"`

	// Type is the server-supplied error name, such as "not_found".
	Type   string `json:"error"`
	Reason string `json:"reason"`
}

func (e *HTTPError) Error() string {
	statusText := http.StatusText(e.StatusCode)
	switch {
	case e.Reason == "":
		return statusText
	case statusText == "":
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", statusText, e.Reason)
}

// HTTPStatus returns the HTTP status code of the response.
func (e *HTTPError) HTTPStatus() int {
	return e.StatusCode
}

// ResponseError returns an *HTTPError if resp has an error status, and
// closes the body. It returns nil for any other response.
func ResponseError(resp *http.Response) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}
	httpErr := &HTTPError{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
	}
	if resp.Body == nil {
		return httpErr
	}
	defer closeBody(resp.Body)
	if ct, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); ct == typeJSON {
		_ = json.NewDecoder(io.LimitReader(resp.Body, drainLimit)).Decode(httpErr)
	}
	return httpErr
}

// closeBody discards what remains of a short body before closing it.
func closeBody(body io.ReadCloser) {
	_, _ = io.CopyN(io.Discard, body, drainLimit)
	_ = body.Close()
}
