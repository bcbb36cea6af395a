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
)

type events struct {
	*root
}

func eventsCmd(r *root) *cobra.Command {
	e := &events{root: r}
	cmd := &cobra.Command{
		Use:   "events [database]",
		Short: "Stream the raw Server-Sent Events of a changes feed",
		Long: `Stream the Server-Sent Events of an eventsource changes feed, heartbeats
included. Each event is output as {"id", "event", "retry", "data"}, with
absent fields omitted.`,
		Args: cobra.ExactArgs(1),
		RunE: e.RunE,
	}

	f := cmd.Flags()
	f.String("since", "", `Start after this sequence, or "now"`)
	f.Duration("heartbeat", 0, "Ask the server for a heartbeat at this interval")
	f.Bool("include-docs", false, "Include documents with each change")
	f.String("filter", "", "Filter function, as ddoc/name")
	f.String("last-event-id", "", "Resume after this event ID")

	return cmd
}

type eventOutput struct {
	ID    *string         `json:"id,omitempty"`
	Event string          `json:"event,omitempty"`
	Retry *int            `json:"retry,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func (e *events) RunE(cmd *cobra.Command, args []string) error {
	client, err := e.client()
	if err != nil {
		return err
	}
	defer client.Close() // nolint:errcheck

	opts := e.conf.ChangesOptions()
	opts.LastEventID, _ = cmd.Flags().GetString("last-event-id")
	evs, err := client.DB(args[0]).Events(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer evs.Close() // nolint:errcheck
	for evs.Next() {
		ev, err := evs.Event()
		if err != nil {
			return err
		}
		out := eventOutput{
			Event: ev.Event,
			Retry: ev.Retry,
			Data:  ev.Data,
		}
		if ev.HasID {
			out.ID = &ev.ID
		}
		buf, err := json.Marshal(out)
		if err != nil {
			return err
		}
		if err := e.out.Output(buf); err != nil {
			return err
		}
	}
	if err := evs.Err(); err != nil && cmd.Context().Err() == nil {
		return err
	}
	return nil
}
