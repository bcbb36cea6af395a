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

package feed

import (
	"io"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gitlab.com/flimzy/testy"
)

func TestJSONFeed(t *testing.T) {
	type tst struct {
		lines       []string
		contentType string
		want        []string
		status      int
		err         string
	}
	tests := testy.NewTable()
	tests.Add("values", tst{
		lines: body("{\"a\":1}\n\"str\"\n[1,2]\n42\n"),
		want:  []string{`{"a":1}`, `"str"`, `[1,2]`, `42`},
		err:   "EOF",
	})
	tests.Add("heartbeats skipped", tst{
		lines: body("{\"a\":1}\n\n\n{\"b\":2}\r\n"),
		want:  []string{`{"a":1}`, `{"b":2}`},
		err:   "EOF",
	})
	tests.Add("invalid json", tst{
		lines:  body("{\"a\":1}\n{\"a\":\n{\"b\":2}\n"),
		want:   []string{`{"a":1}`},
		status: http.StatusBadGateway,
		err:    "invalid JSON in feed: unexpected end of JSON input",
	})
	tests.Add("two values on one line", tst{
		lines:  body("{\"a\":1}{\"b\":2}\n"),
		status: http.StatusBadGateway,
		err:    "invalid JSON in feed: invalid character '{' after top-level value",
	})
	tests.Add("latin-1", tst{
		lines:       []string{"{\"name\":\"caf\xe9\"}\n"},
		contentType: "application/json; charset=iso-8859-1",
		want:        []string{`{"name":"café"}`},
		err:         "EOF",
	})

	tests.Run(t, func(t *testing.T, tt tst) {
		src := newSource(tt.lines...)
		src.contentType = tt.contentType
		f := NewJSONFeed(src)
		got, err := drain(testContext(t), f)
		assertError(t, tt.err, tt.status, err)
		if d := cmp.Diff(tt.want, got); d != "" {
			t.Error(d)
		}
	})
}

func TestJSONFeedFaultIsTerminal(t *testing.T) {
	t.Parallel()
	src := newSource(body("not json\n{\"a\":1}\n")...)
	f := NewJSONFeed(src)
	ctx := testContext(t)
	if _, err := f.Next(ctx); err == nil {
		t.Fatal("expected an error")
	}
	src.waitClosed(t)
	_, err := f.Next(ctx)
	assertError(t, "invalid JSON in feed: invalid character 'o' in literal null (expecting 'u')", http.StatusBadGateway, err)
	if err == io.EOF {
		t.Error("a framing fault must not turn into a clean end of stream")
	}
	if f.IsActive() {
		t.Error("feed should be inactive after a framing fault")
	}
}
