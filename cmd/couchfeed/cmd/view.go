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

package cmd

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/go-kivik/couchfeed"
	"github.com/go-kivik/couchfeed/chttp"
	"github.com/go-kivik/couchfeed/cmd/couchfeed/errors"
)

type view struct {
	*root
	opts    couchfeed.ViewOptions
	reduce  bool
	summary bool
}

func viewFlags(v *view, f *pflag.FlagSet) {
	f.StringVar(&v.opts.Key, "key", "", "Return only rows matching this JSON key")
	f.StringVar(&v.opts.StartKey, "start-key", "", "Return rows starting with this JSON key")
	f.StringVar(&v.opts.EndKey, "end-key", "", "Stop returning rows at this JSON key")
	f.IntVar(&v.opts.Limit, "limit", 0, "Maximum number of rows to return")
	f.IntVar(&v.opts.Skip, "skip", 0, "Number of rows to skip")
	f.BoolVar(&v.opts.Descending, "descending", false, "Return rows in descending key order")
	f.BoolVar(&v.opts.IncludeDocs, "include-docs", false, "Include the document with each row")
	f.BoolVar(&v.opts.UpdateSeq, "update-seq", false, "Report the database sequence the result reflects")
	f.BoolVar(&v.summary, "summary", false, "After the rows, output {total_rows, offset, update_seq}")
}

func viewCmd(r *root) *cobra.Command {
	v := &view{root: r}
	cmd := &cobra.Command{
		Use:   "view [database] [ddoc/view]",
		Short: "Stream the rows of a view",
		Args:  cobra.ExactArgs(2), // nolint:gomnd
		RunE:  v.RunE,
	}
	f := cmd.Flags()
	viewFlags(v, f)
	f.BoolVar(&v.reduce, "reduce", true, "Use the reduce function of the view, if any")
	f.BoolVar(&v.opts.Group, "group", false, "Group reduce results by key")
	f.IntVar(&v.opts.GroupLevel, "group-level", 0, "Group reduce results by this many key elements")
	return cmd
}

func allDocsCmd(r *root) *cobra.Command {
	v := &view{root: r}
	cmd := &cobra.Command{
		Use:   "alldocs [database]",
		Short: "Stream the rows of _all_docs",
		Args:  cobra.ExactArgs(1),
		RunE:  v.RunE,
	}
	viewFlags(v, cmd.Flags())
	return cmd
}

func (v *view) RunE(cmd *cobra.Command, args []string) error {
	client, err := v.client()
	if err != nil {
		return err
	}
	defer client.Close() // nolint:errcheck

	if cmd.Flags().Changed("reduce") {
		v.opts.Reduce = &v.reduce
	}
	db := client.DB(args[0])
	var rows *couchfeed.Rows
	if len(args) > 1 {
		ddoc, name, ok := strings.Cut(args[1], "/")
		if !ok {
			return errors.Codef(errors.ErrUsage, "view must be given as ddoc/view, got %q", args[1])
		}
		rows, err = db.Query(cmd.Context(), ddoc, name, &v.opts)
	} else {
		rows, err = db.AllDocs(cmd.Context(), &v.opts)
	}
	if err != nil {
		if couchfeed.HTTPStatus(err) == http.StatusBadRequest && !errors.As(err, new(*chttp.HTTPError)) {
			return errors.Code(errors.ErrUsage, err)
		}
		return err
	}
	defer rows.Close() // nolint:errcheck
	for rows.Next() {
		if err := v.out.Output(rows.Row()); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if v.summary {
		return v.out.Output(summary(rows))
	}
	return nil
}

func summary(rows *couchfeed.Rows) json.RawMessage {
	out, _ := json.Marshal(struct {
		TotalRows int64  `json:"total_rows"`
		Offset    int64  `json:"offset"`
		UpdateSeq string `json:"update_seq,omitempty"`
	}{
		TotalRows: rows.TotalRows(),
		Offset:    rows.Offset(),
		UpdateSeq: rows.UpdateSeq(),
	})
	return out
}
