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
	"testing"

	"github.com/google/go-cmp/cmp"
	"gitlab.com/flimzy/testy"

	"github.com/go-kivik/couchfeed/cmd/couchfeed/errors"
)

const change = `{"seq":"1-a", "id":"foo", "changes":[{"rev":"1-x"}], "doc":{"_id":"foo","title":"hello","n":3}}`

func TestFormatterOutput(t *testing.T) {
	type tt struct {
		format string
		field  string
		values []string
		want   string
	}

	tests := testy.NewTable()
	tests.Add("json", tt{
		format: "json",
		values: []string{change, `{"seq":"2-b"}`},
		want: `{"seq":"1-a","id":"foo","changes":[{"rev":"1-x"}],"doc":{"_id":"foo","title":"hello","n":3}}
{"seq":"2-b"}
`,
	})
	tests.Add("json field", tt{
		format: "json",
		field:  "changes.0",
		values: []string{change},
		want:   `{"rev":"1-x"}` + "\n",
	})
	tests.Add("raw string field", tt{
		format: "raw",
		field:  "doc.title",
		values: []string{change},
		want:   "hello\n",
	})
	tests.Add("raw number field", tt{
		format: "raw",
		field:  "doc.n",
		values: []string{change},
		want:   "3\n",
	})
	tests.Add("missing field skipped", tt{
		format: "raw",
		field:  "id",
		values: []string{change, `{"last_seq":"2-b"}`, `{"id":"bar"}`},
		want:   "foo\nbar\n",
	})
	tests.Add("yaml", tt{
		format: "yaml",
		field:  "doc",
		values: []string{change},
		want: `---
_id: foo
n: 3
title: hello
`,
	})

	tests.Run(t, func(t *testing.T, tt tt) {
		buf := &bytes.Buffer{}
		f := New()
		if err := f.Configure(buf, tt.format, tt.field); err != nil {
			t.Fatal(err)
		}
		for _, v := range tt.values {
			if err := f.Output(json.RawMessage(v)); err != nil {
				t.Fatal(err)
			}
		}
		if d := cmp.Diff(tt.want, buf.String()); d != "" {
			t.Error(d)
		}
	})
}

func TestFormatterConfigure(t *testing.T) {
	f := New()
	if d := cmp.Diff([]string{"json", "raw", "yaml"}, f.Names()); d != "" {
		t.Error(d)
	}
	err := f.Configure(&bytes.Buffer{}, "toml", "")
	if code := errors.InspectErrorCode(err); code != errors.ErrUsage {
		t.Errorf("Unexpected exit code: %d", code)
	}
	testy.Error(t, "unrecognized output format option: toml", err)
}

func TestSelectInvalidJSON(t *testing.T) {
	_, _, err := Select(json.RawMessage(`{"id":`), []string{"id"})
	if code := errors.InspectErrorCode(err); code != errors.ErrProtocol {
		t.Errorf("Unexpected exit code: %d", code)
	}
}
