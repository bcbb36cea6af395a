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

package output

import (
	"bytes"
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"
)

type jsonFormat struct{}

// JSON returns a format writing each value as compact JSON on its own line.
func JSON() Format {
	return jsonFormat{}
}

func (jsonFormat) Output(w io.Writer, r io.Reader) error {
	buf, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Compact(&out, buf); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err = out.WriteTo(w)
	return err
}

type yamlFormat struct{}

// YAML returns a format writing each value as a YAML document.
func YAML() Format {
	return yamlFormat{}
}

func (yamlFormat) Output(w io.Writer, r io.Reader) error {
	var obj interface{}
	if err := json.NewDecoder(r).Decode(&obj); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "---\n"); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2) // nolint:gomnd
	if err := enc.Encode(obj); err != nil {
		return err
	}
	return enc.Close()
}

type rawFormat struct{}

// Raw returns a format writing strings unquoted, and any other value as it
// was received.
func Raw() Format {
	return rawFormat{}
}

func (rawFormat) Output(w io.Writer, r io.Reader) error {
	buf, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	var s string
	if json.Unmarshal(buf, &s) == nil {
		buf = []byte(s)
	}
	buf = append(bytes.TrimRight(buf, "\n"), '\n')
	_, err = w.Write(buf)
	return err
}
