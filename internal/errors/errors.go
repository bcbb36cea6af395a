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

// Package errors provides the status-carrying error type shared by the
// couchfeed packages.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents an error returned by a feed or the transport beneath it.
type Error struct {
	// Status is the HTTP status code associated with this error. Transport
	// and framing faults are reported as 502 (Bad Gateway).
	Status int

	// Message is the error message.
	Message string

	// Err is the originating error, if any.
	Err error
}

var _ interface {
	error
	HTTPStatus() int
	Unwrap() error
} = &Error{}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.msg()
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) msg() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Status != 0:
		return http.StatusText(e.Status)
	}
	return "unknown error"
}

// HTTPStatus returns the HTTP status code of the error.
func (e *Error) HTTPStatus() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// StatusCode is an alias for HTTPStatus.
func (e *Error) StatusCode() int {
	return e.HTTPStatus()
}

// Unwrap satisfies the errors wrapper interface.
func (e *Error) Unwrap() error {
	return e.Err
}

// Format implements [fmt.Formatter]. With the `%+v` verb the status code is
// included.
func (e *Error) Format(f fmt.State, c rune) {
	if c == 'v' && f.Flag('+') {
		_, _ = fmt.Fprintf(f, "%d / %s", e.HTTPStatus(), e.Error())
		return
	}
	_, _ = fmt.Fprint(f, e.Error())
}

// HTTPStatus returns the HTTP status code embedded in err, or 500 if none is
// found. A nil error returns 0.
func HTTPStatus(err error) int {
	if err == nil {
		return 0
	}
	var coder interface {
		HTTPStatus() int
	}
	if errors.As(err, &coder) {
		return coder.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// BadGateway wraps err as a 502 error, the status used for anything the
// server sent that could not be read or understood. A nil err returns nil.
func BadGateway(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Status: http.StatusBadGateway, Err: err}
}
