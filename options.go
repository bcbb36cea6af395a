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
	"net/http"
	"net/url"
	"strconv"

	"github.com/ajg/form"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ChangesOptions are the query parameters of a changes feed request. See
// https://docs.couchdb.org/en/stable/api/database/changes.html
type ChangesOptions struct {
	// Feed selects the framing of the response. Empty means normal.
	Feed string `form:"feed,omitempty" validate:"omitempty,oneof=normal longpoll continuous eventsource"`
	// Since is the sequence to start after, or "now".
	Since string `form:"since,omitempty"`
	Limit int    `form:"limit,omitempty" validate:"gte=0"`
	// Heartbeat is the interval, in milliseconds, at which the server sends
	// an empty line on a quiet feed.
	Heartbeat int `form:"heartbeat,omitempty" validate:"gte=0"`
	// Timeout is how long, in milliseconds, the server waits for a change
	// before closing a longpoll or continuous feed.
	Timeout     int    `form:"timeout,omitempty" validate:"gte=0"`
	IncludeDocs bool   `form:"include_docs,omitempty"`
	Conflicts   bool   `form:"conflicts,omitempty"`
	Descending  bool   `form:"descending,omitempty"`
	Filter      string `form:"filter,omitempty"`
	// View is the view whose map function filters the feed. It requires
	// Filter to be "_view".
	View        string `form:"view,omitempty" validate:"required_if=Filter _view"`
	Style       string `form:"style,omitempty" validate:"omitempty,oneof=main_only all_docs"`
	SeqInterval int    `form:"seq_interval,omitempty" validate:"gte=0"`

	// LastEventID is sent as the Last-Event-ID header of an eventsource
	// request, which the server treats as Since.
	LastEventID string `form:"-"`
	// Params holds additional query parameters, such as those read by a
	// custom filter function.
	Params map[string]string `form:"-"`
}

func (o *ChangesOptions) query() (url.Values, error) {
	if o == nil {
		return url.Values{}, nil
	}
	if err := validate.Struct(o); err != nil {
		return nil, &Error{Status: http.StatusBadRequest, Message: "couchfeed: invalid changes options", Err: err}
	}
	q, err := form.EncodeToValues(o)
	if err != nil {
		return nil, &Error{Status: http.StatusBadRequest, Err: err}
	}
	addParams(q, o.Params)
	return q, nil
}

// ViewOptions are the query parameters of a view or _all_docs request. Keys
// are JSON values, so string keys must be quoted. See
// https://docs.couchdb.org/en/stable/api/ddoc/views.html
type ViewOptions struct {
	Key           string `form:"key,omitempty" validate:"omitempty,json"`
	StartKey      string `form:"start_key,omitempty" validate:"omitempty,json"`
	EndKey        string `form:"end_key,omitempty" validate:"omitempty,json"`
	StartKeyDocID string `form:"start_key_doc_id,omitempty"`
	EndKeyDocID   string `form:"end_key_doc_id,omitempty"`
	Limit         int    `form:"limit,omitempty" validate:"gte=0"`
	Skip          int    `form:"skip,omitempty" validate:"gte=0"`
	Descending    bool   `form:"descending,omitempty"`
	IncludeDocs   bool   `form:"include_docs,omitempty"`
	Conflicts     bool   `form:"conflicts,omitempty"`
	Group         bool   `form:"group,omitempty"`
	GroupLevel    int    `form:"group_level,omitempty" validate:"gte=0"`
	UpdateSeq     bool   `form:"update_seq,omitempty"`
	Stable        bool   `form:"stable,omitempty"`
	Update        string `form:"update,omitempty" validate:"omitempty,oneof=true false lazy"`

	// Reduce and InclusiveEnd default to true on the server; they are only
	// sent when set.
	Reduce       *bool `form:"-"`
	InclusiveEnd *bool `form:"-"`

	// Params holds additional query parameters.
	Params map[string]string `form:"-"`
}

func (o *ViewOptions) query() (url.Values, error) {
	if o == nil {
		return url.Values{}, nil
	}
	if err := validate.Struct(o); err != nil {
		return nil, &Error{Status: http.StatusBadRequest, Message: "couchfeed: invalid view options", Err: err}
	}
	q, err := form.EncodeToValues(o)
	if err != nil {
		return nil, &Error{Status: http.StatusBadRequest, Err: err}
	}
	if o.Reduce != nil {
		q.Set("reduce", strconv.FormatBool(*o.Reduce))
	}
	if o.InclusiveEnd != nil {
		q.Set("inclusive_end", strconv.FormatBool(*o.InclusiveEnd))
	}
	addParams(q, o.Params)
	return q, nil
}

func addParams(q url.Values, params map[string]string) {
	for k, v := range params {
		q.Set(k, v)
	}
}
