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

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type changes struct {
	*root
}

func changesCmd(r *root) *cobra.Command {
	c := &changes{root: r}
	cmd := &cobra.Command{
		Use:   "changes [database...]",
		Short: "Stream the changes feed of one or more databases",
		Long: `Stream the changes feed of one or more databases, one change per line.

With more than one database, the feeds are read concurrently, and each change
is output as {"db": <name>, "change": <change>}.`,
		Args: cobra.MinimumNArgs(1),
		RunE: c.RunE,
	}

	f := cmd.Flags()
	f.String("feed", "", "Feed type. One of: normal|longpoll|continuous|eventsource")
	f.String("since", "", `Start after this sequence, or "now"`)
	f.Duration("heartbeat", 0, "Ask the server for a heartbeat at this interval")
	f.Duration("timeout", 0, "How long the server waits for a change before ending the feed")
	f.Int("limit", 0, "Maximum number of changes to return")
	f.Bool("include-docs", false, "Include documents with each change")
	f.String("filter", "", "Filter function, as ddoc/name")
	f.BoolP("follow", "F", false, "Reopen the feed whenever the server ends it")

	return cmd
}

func (c *changes) RunE(cmd *cobra.Command, args []string) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	defer client.Close() // nolint:errcheck

	opts := c.conf.ChangesOptions()
	group, ctx := errgroup.WithContext(cmd.Context())
	for _, name := range args {
		name := name
		emit := c.out.Output
		if len(args) > 1 {
			emit = func(change json.RawMessage) error {
				return c.out.Output(labelled(name, change))
			}
		}
		fl := c.newFollower(client.DB(name), *opts, emit)
		group.Go(func() error {
			return fl.run(ctx)
		})
	}
	return group.Wait()
}

func labelled(db string, change json.RawMessage) json.RawMessage {
	out, _ := json.Marshal(struct {
		DB     string          `json:"db"`
		Change json.RawMessage `json:"change"`
	}{
		DB:     db,
		Change: change,
	})
	return out
}
