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

// Changes is an iterator over the database changes feed.
type Changes struct {
	*iter
	feed *feed.ChangesFeed
}

func newChanges(ctx context.Context, mode string, src feed.Source, opts []feed.Option, end func()) (*Changes, error) {
	f, err := feed.NewChangesFeedMode(mode, src, opts...)
	if err != nil {
		return nil, err
	}
	return &Changes{
		iter: newIterator(ctx, f, end),
		feed: f,
	}, nil
}

// Next prepares the next result value for reading. It returns true on success
// or false if there are no more results or an error occurs while preparing it.
// Err should be consulted to distinguish between the two.
func (c *Changes) Next() bool {
	return c.iter.Next()
}

// Err returns the error, if any, that was encountered during iteration. Err may
// be called after an explicit or implicit Close.
func (c *Changes) Err() error {
	return c.iter.Err()
}

// Close closes the iterator, preventing further enumeration, and freeing any
// resources (such as the http response body) of the underlying feed. If Next
// is called and there are no further results, the iterator is closed
// automatically and it will suffice to check the result of Err. Close is
// idempotent and does not affect the result of Err.
func (c *Changes) Close() error {
	return c.iter.Close()
}

// change is a single entry of the changes feed.
type change struct {
	ID      string          `json:"id"`
	Seq     json.RawMessage `json:"seq"`
	Deleted bool            `json:"deleted"`
	Changes []struct {
		Rev string `json:"rev"`
	} `json:"changes"`
	Doc json.RawMessage `json:"doc"`
}

func (c *Changes) current() (*change, func(), error) {
	runlock, err := c.rlock()
	if err != nil {
		return nil, nil, err
	}
	cur := &change{}
	if err := json.Unmarshal(c.curVal, cur); err != nil {
		runlock()
		return nil, nil, &Error{Status: http.StatusBadGateway, Err: err}
	}
	return cur, runlock, nil
}

// Changes returns a list of changed revs.
func (c *Changes) Changes() []string {
	cur, runlock, err := c.current()
	if err != nil {
		return nil
	}
	defer runlock()
	revs := make([]string, len(cur.Changes))
	for i, ch := range cur.Changes {
		revs[i] = ch.Rev
	}
	return revs
}

// Deleted returns true if the change relates to a deleted document.
func (c *Changes) Deleted() bool {
	cur, runlock, err := c.current()
	if err != nil {
		return false
	}
	defer runlock()
	return cur.Deleted
}

// ID returns the ID of the current result.
func (c *Changes) ID() string {
	cur, runlock, err := c.current()
	if err != nil {
		return ""
	}
	defer runlock()
	return cur.ID
}

// Seq returns the Seq of the current result. Integer sequences, as sent by
// CouchDB 1.x, are returned in decimal.
func (c *Changes) Seq() string {
	cur, runlock, err := c.current()
	if err != nil {
		return ""
	}
	defer runlock()
	var seq string
	if json.Unmarshal(cur.Seq, &seq) == nil {
		return seq
	}
	return string(cur.Seq)
}

// ScanDoc copies the data from the result's doc field into the value pointed
// at by dest. It is only valid for results that include documents.
func (c *Changes) ScanDoc(dest interface{}) error {
	cur, runlock, err := c.current()
	if err != nil {
		return err
	}
	defer runlock()
	if cur.Doc == nil {
		return &Error{Status: http.StatusBadRequest, Message: "couchfeed: doc is nil; does the query include docs?"}
	}
	return json.Unmarshal(cur.Doc, dest)
}

// Change returns the raw JSON of the current result.
func (c *Changes) Change() json.RawMessage {
	runlock, err := c.rlock()
	if err != nil {
		return nil
	}
	defer runlock()
	return c.curVal
}

// LastSeq returns the sequence of the most recent change, or the last_seq
// sent at the end of the feed. Pass it as Since to resume the feed.
func (c *Changes) LastSeq() string {
	return c.feed.LastSeq()
}

// Pending returns the count of remaining items in the feed. The value is only
// available once the feed has ended, and only from servers which report it.
func (c *Changes) Pending() (int64, bool) {
	return c.feed.Pending()
}
