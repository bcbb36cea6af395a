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
	"fmt"
	"net/http"
	"sync"

	"github.com/go-kivik/couchfeed/chttp"
	"github.com/go-kivik/couchfeed/feed"
)

// Client is a client connection handle to a CouchDB server.
type Client struct {
	dsn    string
	client *chttp.Client

	httpClient *http.Client
	chttpOpts  []chttp.ClientOption
	feedOpts   []feed.Option

	closed bool
	mu     sync.Mutex
	wg     sync.WaitGroup
}

// Option configures a Client.
type Option func(*Client)

// OptionHTTPClient sets the *http.Client used for all requests. By default a
// new client without timeouts is used, as feeds may stay open indefinitely.
func OptionHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// OptionUserAgent appends ua to the User-Agent header of every request.
func OptionUserAgent(ua string) Option {
	return func(client *Client) {
		client.chttpOpts = append(client.chttpOpts, chttp.OptionUserAgent(ua))
	}
}

// OptionBufferSize sets how many undecoded lines each feed may read ahead of
// the consumer.
func OptionBufferSize(n int) Option {
	return func(client *Client) {
		client.feedOpts = append(client.feedOpts, feed.BufferSize(n))
	}
}

// OptionLogger sets the logger the feeds report skipped chunks to.
func OptionLogger(l feed.Logger) Option {
	return func(client *Client) {
		client.feedOpts = append(client.feedOpts, feed.WithLogger(l))
	}
}

// New creates a new client for the CouchDB server at dsn. Credentials in dsn
// are sent with HTTP Basic Auth.
func New(dsn string, options ...Option) (*Client, error) {
	c := &Client{dsn: dsn}
	for _, opt := range options {
		opt(c)
	}
	client, err := chttp.New(c.httpClient, dsn, append(c.chttpOpts, chttp.OptionUserAgent(fmt.Sprintf("couchfeed/%s", Version)))...)
	if err != nil {
		return nil, err
	}
	c.client = client
	return c, nil
}

// DSN returns the data source name used to connect this client.
func (c *Client) DSN() string {
	return c.dsn
}

// DB returns a handle to the requested database. Any error in the name is
// deferred until the first request.
func (c *Client) DB(dbName string) *DB {
	db := &DB{
		client: c,
		name:   dbName,
	}
	if dbName == "" {
		db.err = &Error{Status: http.StatusBadRequest, Message: "couchfeed: database name required"}
	}
	return db
}

// startQuery registers an open request or iterator, which Close waits for.
func (c *Client) startQuery() (end func(), _ error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	var once sync.Once
	c.wg.Add(1)
	return func() {
		once.Do(func() {
			c.wg.Done()
		})
	}, nil
}

// Close prevents new feeds from being opened, then waits for every open
// iterator to be closed.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}
