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
	"net/http"

	"github.com/go-kivik/couchfeed/feed"
)

// Rows is an iterator over a multi-value query.
type Rows struct {
	*iter
	feed *feed.ViewFeed
}

func newRows(ctx context.Context, src feed.Source, opts []feed.Option, end func()) *Rows {
	f := feed.NewViewFeed(src, opts...)
	return &Rows{
		iter: newIterator(ctx, f, end),
		feed: f,
	}
}

// Next prepares the next result value for reading. It returns true on success
// or false if there are no more results or an error occurs while preparing it.
// Err should be consulted to distinguish between the two.
func (r *Rows) Next() bool {
	return r.iter.Next()
}

// Err returns the error, if any, that was encountered during iteration. Err may
// be called after an explicit or implicit Close.
func (r *Rows) Err() error {
	return r.iter.Err()
}

// Close closes the Rows, preventing further enumeration, and freeing any
// resources (such as the http response body) of the underlying query. If Next
// is called and there are no further results, Rows is closed automatically and
// it will suffice to check the result of Err. Close is idempotent and does not
// affect the result of Err.
func (r *Rows) Close() error {
	return r.iter.Close()
}

// row is a single row of a view result.
type row struct {
	ID    string          `json:"id"`
	Key   json.RawMessage `json:"key"`
	Value json.RawMessage `json:"value"`
	Doc   json.RawMessage `json:"doc"`
	Error string          `json:"error"`
}

func (r *Rows) current() (*row, func(), error) {
	runlock, err := r.rlock()
	if err != nil {
		return nil, nil, err
	}
	cur := &row{}
	if err := json.Unmarshal(r.curVal, cur); err != nil {
		runlock()
		return nil, nil, &Error{Status: http.StatusBadGateway, Err: err}
	}
	return cur, runlock, nil
}

// rowError converts the error member of a row, as sent for keys which do not
// exist, into an error.
func rowError(cur *row) error {
	if cur.Error == "" {
		return nil
	}
	status := http.StatusInternalServerError
	if cur.Error == "not_found" {
		status = http.StatusNotFound
	}
	return &Error{Status: status, Message: cur.Error}
}

// ScanValue copies the data from the result value into the value pointed at by
// dest. Think of this as a json.Unmarshal into dest.
func (r *Rows) ScanValue(dest interface{}) error {
	cur, runlock, err := r.current()
	if err != nil {
		return err
	}
	defer runlock()
	if err := rowError(cur); err != nil {
		return err
	}
	return json.Unmarshal(cur.Value, dest)
}

// ScanDoc works the same as ScanValue, but on the doc field of the result. It
// will return an error if the query does not include documents.
func (r *Rows) ScanDoc(dest interface{}) error {
	cur, runlock, err := r.current()
	if err != nil {
		return err
	}
	defer runlock()
	if err := rowError(cur); err != nil {
		return err
	}
	if cur.Doc == nil {
		return &Error{Status: http.StatusBadRequest, Message: "couchfeed: doc is nil; does the query include docs?"}
	}
	return json.Unmarshal(cur.Doc, dest)
}

// ScanKey works the same as ScanValue, but on the key field of the result. For
// simple keys, which are just strings, the Key() method may be easier to use.
func (r *Rows) ScanKey(dest interface{}) error {
	cur, runlock, err := r.current()
	if err != nil {
		return err
	}
	defer runlock()
	return json.Unmarshal(cur.Key, dest)
}

// ID returns the ID of the most recent result.
func (r *Rows) ID() string {
	cur, runlock, err := r.current()
	if err != nil {
		return ""
	}
	defer runlock()
	return cur.ID
}

// Key returns the raw, JSON-encoded key of the most recent result.
func (r *Rows) Key() string {
	cur, runlock, err := r.current()
	if err != nil {
		return ""
	}
	defer runlock()
	return string(cur.Key)
}

// Row returns the raw JSON of the most recent result.
func (r *Rows) Row() json.RawMessage {
	runlock, err := r.rlock()
	if err != nil {
		return nil
	}
	defer runlock()
	return r.curVal
}

// TotalRows returns the total number of rows in the view which would have
// been returned if no limiting were used. This value is only guaranteed to be
// set after all result rows have been enumerated through by Next, and is
// otherwise set once the server has sent it.
func (r *Rows) TotalRows() int64 {
	return r.feed.TotalRows()
}

// Offset returns the starting offset where the result set started. Like
// TotalRows, it is only guaranteed to be set after all rows have been read.
func (r *Rows) Offset() int64 {
	offset, _ := r.feed.Offset()
	return offset
}

// UpdateSeq returns the sequence id of the underlying database the view
// reflects, if requested in the query.
func (r *Rows) UpdateSeq() string {
	return r.feed.UpdateSeq()
}
