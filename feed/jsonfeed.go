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
	"net/http"

	internal "github.com/go-kivik/couchfeed/internal/errors"
)

// JSONFeed decodes every chunk of the stream as one standalone JSON value.
type JSONFeed struct {
	*LineFeed
}

// NewJSONFeed starts a JSONFeed reading from src.
func NewJSONFeed(src Source, opts ...Option) *JSONFeed {
	return &JSONFeed{LineFeed: NewLineFeed(src, opts...)}
}

// Next returns the next JSON value, or io.EOF when the feed is exhausted.
func (f *JSONFeed) Next(ctx context.Context) (json.RawMessage, error) {
	chunk, err := f.Pull(ctx)
	if err != nil {
		return nil, err
	}
	return f.decodeJSON(chunk)
}

// decodeJSON converts chunk to UTF-8 and validates it as one JSON value.
func (f *LineFeed) decodeJSON(chunk []byte) (json.RawMessage, error) {
	chunk, err := f.text(chunk)
	if err != nil {
		return nil, err
	}
	return f.validJSON(chunk)
}

// validJSON checks that chunk, already UTF-8, holds exactly one JSON value.
// Anything else is a framing fault, which is terminal for the feed.
func (f *LineFeed) validJSON(chunk []byte) (json.RawMessage, error) {
	chunk = bytes.TrimSpace(chunk)
	if !json.Valid(chunk) {
		return nil, f.fail(&internal.Error{
			Status:  http.StatusBadGateway,
			Message: "invalid JSON in feed",
			Err:     syntaxError(chunk),
		})
	}
	return json.RawMessage(chunk), nil
}

// syntaxError recovers the decoder's description of what is wrong with chunk.
func syntaxError(chunk []byte) error {
	var v interface{}
	if err := json.Unmarshal(chunk, &v); err != nil {
		return err
	}
	return errors.New("unexpected data")
}
