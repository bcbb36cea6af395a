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


// Package chttp provides a minimal HTTP backend for opening streaming feeds
// on CouchDB servers.
package chttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"runtime"
	"strings"

	"golang.org/x/net/publicsuffix"

	internal "github.com/go-kivik/couchfeed/internal/errors"
)

const typeJSON = "application/json"

// The default UserAgent values
const (
	UserAgent = "couchfeed chttp"
	Version   = "0.1.0"
)

// Client opens feeds on one CouchDB server. It embeds an *http.Client.
type Client struct {
	*http.Client

	// UserAgents are appended to the User-Agent header, after the chttp
	// product token.
	UserAgents []string

	rawDSN string
	// base is the server URL, without credentials. basePath is its path
	// without a trailing slash, as prefixed to every request path.
	base     url.URL
	basePath string
}

// New returns a connection to a remote CouchDB server. If credentials are
// included in the URL, requests are authenticated with HTTP Basic Auth. If
// client has no cookie jar, a copy of client with its own jar is used, so that
// session and load balancer cookies survive across feed reconnects. client
// itself is never modified.
func New(client *http.Client, dsn string, opts ...ClientOption) (*Client, error) {
	base, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{}
	}
	if client.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, err
		}
		cp := *client
		cp.Jar = jar
		client = &cp
	}
	c := &Client{
		Client:   client,
		rawDSN:   dsn,
		basePath: strings.TrimSuffix(base.Path, "/"),
	}
	if user := base.User; user != nil {
		password, _ := user.Password()
		opts = append([]ClientOption{OptionBasicAuth(user.Username(), password)}, opts...)
		base.User = nil
	}
	c.base = *base
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func parseDSN(dsn string) (*url.URL, error) {
	if dsn == "" {
		return nil, &internal.Error{Status: http.StatusBadRequest, Message: "no URL specified"}
	}
	if !strings.Contains(dsn, "://") {
		dsn = "http://" + dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, &internal.Error{Status: http.StatusBadRequest, Err: err}
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u, nil
}

// DSN returns the unparsed DSN used to connect.
func (c *Client) DSN() string {
	return c.rawDSN
}

// Stream sends a GET request for path, which is relative to the server URL,
// already escaped, and may carry a query string. A non-2xx response is
// returned as an *HTTPError. Otherwise the body is returned as a feed source,
// which the caller must close.
func (c *Client) Stream(ctx context.Context, path string, opts *Options) (*Response, error) {
	res, err := c.get(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	if err := ResponseError(res); err != nil {
		return nil, err
	}
	return NewResponse(res), nil
}

// get sends the request without inspecting the response status.
func (c *Client) get(ctx context.Context, path string, opts *Options) (*http.Response, error) {
	u, err := c.url(path, opts)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &internal.Error{Status: http.StatusBadRequest, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent())
	accept := typeJSON
	if opts != nil {
		if opts.Accept != "" {
			accept = opts.Accept
		}
		for k, v := range opts.Header {
			req.Header[k] = v
		}
	}
	req.Header.Set("Accept", accept)
	res, err := c.Do(req)
	return res, netError(err)
}

// url resolves path against the server URL. Escaped characters in path, such
// as the %2F of a database name containing a slash, are sent as they are.
func (c *Client) url(path string, opts *Options) (*url.URL, error) {
	rawPath, rawQuery, _ := strings.Cut(path, "?")
	rawPath = c.basePath + "/" + strings.TrimPrefix(rawPath, "/")
	unescaped, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, &internal.Error{Status: http.StatusBadRequest, Err: err}
	}
	u := c.base
	u.Path, u.RawPath = unescaped, rawPath
	if opts != nil && len(opts.Query) > 0 {
		if rawQuery != "" {
			rawQuery += "&"
		}
		rawQuery += opts.Query.Encode()
	}
	u.RawQuery = rawQuery
	return &u, nil
}

// netError converts a transport failure to an error with status 502, unless
// it already carries a status.
func netError(err error) error {
	if err == nil {
		return nil
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		status := internal.HTTPStatus(urlErr.Err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		return &internal.Error{Status: status, Err: err}
	}
	if status := internal.HTTPStatus(err); status != http.StatusInternalServerError {
		return err
	}
	return &internal.Error{Status: http.StatusBadGateway, Err: err}
}

func (c *Client) userAgent() string {
	ua := fmt.Sprintf("%s/%s (Language=%s; Platform=%s/%s)",
		UserAgent, Version, runtime.Version(), runtime.GOARCH, runtime.GOOS)
	return strings.Join(append([]string{ua}, c.UserAgents...), " ")
}
