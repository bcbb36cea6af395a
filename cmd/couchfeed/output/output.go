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

// Package output writes feed results in the format selected on the command
// line.
package output

import (
	"bytes"
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/icza/dyno"

	"github.com/go-kivik/couchfeed/cmd/couchfeed/errors"
)

// Format renders a single JSON value.
type Format interface {
	Output(w io.Writer, r io.Reader) error
}

// Formatter manages output formatting. Writes are serialized, so results
// from concurrently followed feeds do not interleave.
type Formatter struct {
	mu      sync.Mutex
	formats map[string]Format

	format Format
	field  []string
	w      io.Writer
}

// New returns a Formatter with the json, yaml and raw formats registered.
func New() *Formatter {
	f := &Formatter{formats: map[string]Format{}}
	f.Register("json", JSON())
	f.Register("yaml", YAML())
	f.Register("raw", Raw())
	return f
}

// Register registers an output format.
func (f *Formatter) Register(name string, format Format) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.formats[name]; ok {
		panic(name + " already registered")
	}
	f.formats[name] = format
}

// Names returns the names of the registered formats.
func (f *Formatter) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.formats))
	for name := range f.formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Configure selects the format and the field to output, and the writer
// output goes to. An empty field outputs complete values.
func (f *Formatter) Configure(w io.Writer, format, field string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fmt, ok := f.formats[format]
	if !ok {
		return errors.Codef(errors.ErrUsage, "unrecognized output format option: %s", format)
	}
	f.format = fmt
	f.w = w
	f.field = nil
	if field != "" {
		f.field = strings.Split(field, ".")
	}
	return nil
}

// Output writes value in the configured format. Values lacking the selected
// field are skipped.
func (f *Formatter) Output(value json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.format == nil {
		panic("output: Output called before Configure")
	}
	if len(f.field) > 0 {
		selected, ok, err := Select(value, f.field)
		if err != nil || !ok {
			return err
		}
		value = selected
	}
	if err := f.format.Output(f.w, bytes.NewReader(value)); err != nil {
		return errors.Code(errors.ErrIO, err)
	}
	return nil
}

// Select returns the part of value found at path. Numeric path elements
// index arrays. ok is false if value has nothing at path.
func Select(value json.RawMessage, path []string) (_ json.RawMessage, ok bool, _ error) {
	var doc interface{}
	if err := json.Unmarshal(value, &doc); err != nil {
		return nil, false, errors.Code(errors.ErrProtocol, err)
	}
	elems := make([]interface{}, len(path))
	for i, p := range path {
		if n, err := strconv.Atoi(p); err == nil {
			elems[i] = n
			continue
		}
		elems[i] = p
	}
	v, err := dyno.Get(doc, elems...)
	if err != nil {
		return nil, false, nil
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, false, errors.Code(errors.ErrProtocol, err)
	}
	return out, true, nil
}
