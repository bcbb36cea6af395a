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

// Package log handles diagnostic output of the couchfeed command. Feed data
// never goes through the logger.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Logger is the logger interface used by the command. It satisfies
// feed.Logger, so feeds log their debug output through it.
type Logger interface {
	// SetOut sets the destination for informational messages.
	SetOut(io.Writer)
	// SetErr sets the destination for error and debug messages.
	SetErr(io.Writer)
	// SetDebug turns debug mode on or off.
	SetDebug(bool)
	Debug(...any)
	Debugf(string, ...any)
	Info(...any)
	Infof(string, ...any)
	Error(...any)
	Errorf(string, ...any)
}

type logger struct {
	// mu serializes writes from concurrently followed feeds.
	mu     sync.Mutex
	stdout io.Writer
	stderr io.Writer
	debug  bool
}

var _ Logger = &logger{}

// New returns a logger writing informational messages to stdout, and errors
// to stderr.
func New() Logger {
	return &logger{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

func (l *logger) SetOut(out io.Writer) { l.stdout = out }
func (l *logger) SetErr(err io.Writer) { l.stderr = err }
func (l *logger) SetDebug(debug bool)  { l.debug = debug }

func (l *logger) write(w io.Writer, line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = fmt.Fprintln(w, strings.TrimSpace(line))
}

func (l *logger) Debug(args ...any) {
	if l.debug {
		l.write(l.stderr, fmt.Sprint(args...))
	}
}

func (l *logger) Debugf(format string, args ...any) {
	if l.debug {
		l.write(l.stderr, fmt.Sprintf(format, args...))
	}
}

func (l *logger) Info(args ...any) {
	l.write(l.stdout, fmt.Sprint(args...))
}

func (l *logger) Infof(format string, args ...any) {
	l.write(l.stdout, fmt.Sprintf(format, args...))
}

func (l *logger) Error(args ...any) {
	l.write(l.stderr, fmt.Sprint(args...))
}

func (l *logger) Errorf(format string, args ...any) {
	l.write(l.stderr, fmt.Sprintf(format, args...))
}
