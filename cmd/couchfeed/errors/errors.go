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

// Package errors maps failures of the couchfeed command to process exit
// codes.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Exit status codes
//
// See https://man.openbsd.org/sysexits.3
const (
	// ErrUsage indicates an incorrect command, option, or invalid
	// configuration.
	ErrUsage = 2
	// ErrUnknown indicates that the server responded with an unexpected
	// HTTP status above 500.
	ErrUnknown = 3
	// ErrInternalServerError indicates that the server responded with a 500
	// error.
	ErrInternalServerError = 4

	// Statuses 400 to 499 map to 10 to 109, so that a 404 exits with 14.

	// ErrBadRequest indicates that the server responded with a 400 error.
	ErrBadRequest = 10
	// ErrUnauthorized indicates that the server responded with a 401 error.
	ErrUnauthorized = 11
	// ErrForbidden indicates that the server responded with a 403 error.
	ErrForbidden = 13
	// ErrNotFound indicates that the server responded with a 404 error.
	ErrNotFound = 14

	// ErrData indicates invalid input, such as a config file which does not
	// parse.
	ErrData = 65
	// ErrNoInput indicates that an explicitly named input file does not
	// exist or cannot be read.
	ErrNoInput = 66
	// ErrUnavailable indicates that the server could not be reached.
	ErrUnavailable = 69
	// ErrIO indicates an error writing the output.
	ErrIO = 74
	// ErrProtocol indicates that the server sent a feed which could not be
	// decoded.
	ErrProtocol = 76
)

type statusErr struct {
	error
	code int
}

func (e *statusErr) Unwrap() error {
	return e.error
}

func (e *statusErr) ExitStatus() int {
	return e.code
}

// WithCode wraps err with an exit code. A nil err returns nil.
func WithCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return &statusErr{error: err, code: code}
}

// InspectErrorCode returns the exit code for err. Errors carrying no code,
// and no recognizable cause, return 0.
func InspectErrorCode(err error) int {
	if err == nil {
		return 0
	}
	exitErr := new(statusErr)
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrUnavailable
	}
	jsonSyntax := new(json.SyntaxError)
	if errors.As(err, &jsonSyntax) {
		return ErrProtocol
	}
	var coder interface {
		HTTPStatus() int
	}
	if errors.As(err, &coder) {
		return fromHTTPStatus(coder.HTTPStatus())
	}
	return 0
}

func fromHTTPStatus(status int) int {
	switch {
	case status == http.StatusInternalServerError:
		return ErrInternalServerError
	case status == http.StatusBadGateway:
		return ErrProtocol
	case status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		return ErrUnavailable
	case status >= 400 && status < 500:
		return status - 390 // nolint:gomnd
	default:
		return ErrUnknown
	}
}

// Code returns a new error with an exit code. If err is a single error, it is
// wrapped. All other values are passed to fmt.Sprint.
func Code(code int, err ...interface{}) error {
	if len(err) == 1 {
		if err[0] == nil {
			return nil
		}
		if e, ok := err[0].(error); ok {
			return WithCode(e, code)
		}
	}
	return &statusErr{
		error: errors.New(fmt.Sprint(err...)),
		code:  code,
	}
}

// Codef wraps the output of fmt.Errorf with an exit code.
func Codef(code int, format string, args ...interface{}) error {
	return &statusErr{
		error: fmt.Errorf(format, args...),
		code:  code,
	}
}

// As calls errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is calls errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
