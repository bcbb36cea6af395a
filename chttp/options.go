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
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Options are optional parameters which may be sent with a request.
type Options struct {
	// Accept sets the request's Accept header. Defaults to "application/json".
	// Event-source feeds should set "text/event-stream".
	Accept string

	// Query is appended to the exiting url, if present. If the passed url
	// already contains query parameters, the values in Query are appended.
	// No merging takes place.
	Query url.Values

	// Header is a list of default headers to be set on the request.
	Header http.Header
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// OptionUserAgent appends ua to the User-Agent header of every request.
func OptionUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.UserAgents = append(c.UserAgents, ua)
	}
}

// OptionBasicAuth authenticates every request with HTTP Basic Auth.
func OptionBasicAuth(username, password string) ClientOption {
	return func(c *Client) {
		a := &basicAuth{Username: username, Password: password, transport: c.Transport}
		if a.transport == nil {
			a.transport = http.DefaultTransport
		}
		c.Transport = a
	}
}

type basicAuth struct {
	Username string
	Password string

	// transport stores the original transport that is overridden by this auth
	// mechanism
	transport http.RoundTripper
}

var _ http.RoundTripper = &basicAuth{}

func (a *basicAuth) String() string {
	return fmt.Sprintf("[BasicAuth{user:%s,pass:%s}]", a.Username, strings.Repeat("*", len(a.Password)))
}

func (a *basicAuth) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(a.Username, a.Password)
	return a.transport.RoundTrip(req)
}
