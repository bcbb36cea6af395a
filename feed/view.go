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
	"net/http"

	"github.com/tidwall/gjson"

	internal "github.com/go-kivik/couchfeed/internal/errors"
)

// ViewFeed decodes the array-wrapped listing returned by views and _all_docs:
//
//	{"total_rows":3,"offset":0,"rows":[
//	{"id":"a","key":"a","value":1},
//	...
//	]}
//
// delivered one row per line. The header is consumed internally and exposed
// through TotalRows, Offset and UpdateSeq.
type ViewFeed struct {
	*LineFeed

	totalRows int64
	offset    int64
	hasOffset bool
	updateSeq string

	// rows found inside a header chunk that carried the whole listing.
	pending []json.RawMessage
}

// NewViewFeed starts a ViewFeed reading from src.
func NewViewFeed(src Source, opts ...Option) *ViewFeed {
	return &ViewFeed{LineFeed: NewLineFeed(src, opts...)}
}

// TotalRows returns the total_rows value from the header, or 0 if the header
// has not been read yet.
func (f *ViewFeed) TotalRows() int64 {
	return f.totalRows
}

// Offset returns the offset value from the header. ok is false until the
// header has been read, or if the server sent no offset.
func (f *ViewFeed) Offset() (offset int64, ok bool) {
	return f.offset, f.hasOffset
}

// UpdateSeq returns the update_seq value, if the server sent one.
func (f *ViewFeed) UpdateSeq() string {
	return f.updateSeq
}

// Next returns the next row, in source order, or io.EOF once the listing is
// exhausted.
func (f *ViewFeed) Next(ctx context.Context) (json.RawMessage, error) {
	for {
		if len(f.pending) > 0 {
			row := f.pending[0]
			f.pending = f.pending[1:]
			return row, nil
		}
		raw, err := f.Pull(ctx)
		if err != nil {
			return nil, err
		}
		chunk, err := f.text(raw)
		if err != nil {
			return nil, err
		}
		chunk = bytes.TrimRight(chunk, "\r\n,")
		switch {
		case isStandalone(chunk) && !gjson.GetBytes(chunk, "total_rows").Exists():
			return f.validJSON(chunk)
		case bytes.Contains(chunk, []byte(`"total_rows"`)),
			bytes.Contains(chunk, []byte(`"update_seq"`)):
			if err := f.readMeta(chunk); err != nil {
				return nil, err
			}
		case isListingNoise(chunk, `{"rows"`):
			f.log.Debugf("feed: skipping %q", chunk)
		default:
			return f.validJSON(chunk)
		}
	}
}

// readMeta latches the listing metadata from a header or footer chunk.
func (f *ViewFeed) readMeta(chunk []byte) error {
	obj, err := f.metaObject(chunk)
	if err != nil {
		return err
	}
	res := gjson.ParseBytes(obj)
	if v := res.Get("total_rows"); v.Exists() {
		f.totalRows = v.Int()
	}
	if v := res.Get("offset"); v.Exists() {
		f.offset, f.hasOffset = v.Int(), true
	}
	if v := res.Get("update_seq"); v.Exists() {
		f.updateSeq = seqString(v)
	}
	if rows := res.Get("rows"); rows.IsArray() {
		for _, row := range rows.Array() {
			f.pending = append(f.pending, json.RawMessage(row.Raw))
		}
	}
	return nil
}

// metaObject rebuilds a complete JSON object from a header or footer
// fragment. Servers emit the header either with its opening brace, as in
//
//	{"total_rows":3,"offset":0,"rows":[
//
// or as a bare field list closed at the end of the listing, as in
//
//	],"total_rows":3,"offset":0}
//
// Both shapes are patched into a parseable object.
func (f *LineFeed) metaObject(chunk []byte) ([]byte, error) {
	chunk = bytes.TrimLeft(chunk, "], \t\r\n")
	obj := make([]byte, 0, len(chunk)+3)
	if !bytes.HasPrefix(chunk, []byte("{")) {
		obj = append(obj, '{')
	}
	obj = append(obj, chunk...)
	switch {
	case bytes.HasSuffix(chunk, []byte("[")):
		obj = append(obj, ']', '}')
	case !bytes.HasSuffix(chunk, []byte("}")):
		obj = append(obj, '}')
	}
	if !json.Valid(obj) {
		return nil, f.fail(&internal.Error{
			Status:  http.StatusBadGateway,
			Message: "malformed feed metadata",
			Err:     syntaxError(obj),
		})
	}
	return obj, nil
}

// isStandalone reports whether chunk is a complete JSON object on its own.
func isStandalone(chunk []byte) bool {
	chunk = bytes.TrimSpace(chunk)
	return len(chunk) > 0 && chunk[0] == '{' && json.Valid(chunk)
}

// isListingNoise reports whether chunk is purely structural: the opening of
// the result array, a closing bracket, or nothing at all.
func isListingNoise(chunk []byte, opener string) bool {
	chunk = bytes.TrimSpace(chunk)
	switch {
	case len(chunk) == 0:
		return true
	case bytes.HasPrefix(chunk, []byte(opener)):
		return true
	case chunk[0] == ']' || chunk[0] == '}':
		return true
	}
	return false
}

// seqString renders a sequence value as a string. CouchDB 1.x uses integer
// sequences; later versions use opaque strings.
func seqString(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.Str
	}
	return v.Raw
}
