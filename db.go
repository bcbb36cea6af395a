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
	"net/http"
	"net/url"
	"strings"

	"github.com/go-kivik/couchfeed/chttp"
)

// DB is a handle to a specific database.
type DB struct {
	client *Client
	name   string

	// err holds an error that occurred while creating the handle, which is
	// returned by every operation.
	err error
}

// Name returns the database name as passed when creating the DB connection.
func (db *DB) Name() string {
	return db.name
}

// Err returns the error, if any, that occurred while constructing the DB
// handle.
func (db *DB) Err() error {
	return db.err
}

func (db *DB) path(parts ...string) string {
	escaped := make([]string, 0, len(parts)+1)
	escaped = append(escaped, url.PathEscape(db.name))
	escaped = append(escaped, parts...)
	return "/" + strings.Join(escaped, "/")
}

// stream opens a response on the database, registered with the client so
// that Client.Close waits for it. The returned end func must be called once
// the response is released.
func (db *DB) stream(ctx context.Context, path string, opts *chttp.Options) (*chttp.Response, func(), error) {
	if db.err != nil {
		return nil, nil, db.err
	}
	end, err := db.client.startQuery()
	if err != nil {
		return nil, nil, err
	}
	res, err := db.client.client.Stream(ctx, path, opts)
	if err != nil {
		end()
		return nil, nil, err
	}
	return res, end, nil
}

// AllDocs returns an iterator over all documents in the database.
func (db *DB) AllDocs(ctx context.Context, options *ViewOptions) (*Rows, error) {
	return db.rows(ctx, db.path("_all_docs"), options)
}

// DesignDocs returns an iterator over the design documents in the database.
func (db *DB) DesignDocs(ctx context.Context, options *ViewOptions) (*Rows, error) {
	return db.rows(ctx, db.path("_design_docs"), options)
}

// Query executes the specified view function from the specified design
// document. ddoc and view may or may not be be prefixed with '_design/'
// and '_view/' respectively.
func (db *DB) Query(ctx context.Context, ddoc, view string, options *ViewOptions) (*Rows, error) {
	ddoc = strings.TrimPrefix(ddoc, "_design/")
	view = strings.TrimPrefix(view, "_view/")
	if ddoc == "" {
		return nil, &Error{Status: http.StatusBadRequest, Message: "couchfeed: ddoc required"}
	}
	if view == "" {
		return nil, &Error{Status: http.StatusBadRequest, Message: "couchfeed: view required"}
	}
	return db.rows(ctx, db.path("_design", url.PathEscape(ddoc), "_view", url.PathEscape(view)), options)
}

func (db *DB) rows(ctx context.Context, path string, options *ViewOptions) (*Rows, error) {
	query, err := options.query()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	res, end, err := db.stream(ctx, path, &chttp.Options{Query: query})
	if err != nil {
		cancel()
		return nil, err
	}
	return newRows(ctx, res, db.client.feedOpts, func() { end(); cancel() }), nil
}

// Changes returns an iterator over the changes feed. With the continuous and
// eventsource feeds, the iterator remains open until explicitly closed, the
// context is cancelled, or an error is encountered.
// See http://couchdb.readthedocs.io/en/latest/api/database/changes.html#get--db-_changes
func (db *DB) Changes(ctx context.Context, options *ChangesOptions) (*Changes, error) {
	query, err := options.query()
	if err != nil {
		return nil, err
	}
	mode := query.Get("feed")
	opts := &chttp.Options{Query: query}
	if mode == FeedEventSource {
		opts.Accept = typeEventStream
		opts.Header = lastEventID(options.LastEventID)
	}
	ctx, cancel := context.WithCancel(ctx)
	res, end, err := db.stream(ctx, db.path("_changes"), opts)
	if err != nil {
		cancel()
		return nil, err
	}
	changes, err := newChanges(ctx, mode, res, db.client.feedOpts, func() { end(); cancel() })
	if err != nil {
		_ = res.Close(true)
		end()
		cancel()
		return nil, err
	}
	return changes, nil
}

// Events returns an iterator over the raw Server-Sent Events of an
// eventsource changes feed, including heartbeat events. Feed is always set
// to eventsource.
func (db *DB) Events(ctx context.Context, options *ChangesOptions) (*Events, error) {
	var o ChangesOptions
	if options != nil {
		o = *options
	}
	o.Feed = FeedEventSource
	query, err := o.query()
	if err != nil {
		return nil, err
	}
	opts := &chttp.Options{Query: query, Accept: typeEventStream}
	opts.Header = lastEventID(o.LastEventID)
	ctx, cancel := context.WithCancel(ctx)
	res, end, err := db.stream(ctx, db.path("_changes"), opts)
	if err != nil {
		cancel()
		return nil, err
	}
	return newEvents(ctx, res, db.client.feedOpts, func() { end(); cancel() }), nil
}

func lastEventID(id string) http.Header {
	if id == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Last-Event-ID", id)
	return h
}
