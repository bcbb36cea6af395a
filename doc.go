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

// Package couchfeed reads the streaming endpoints of a CouchDB server: the
// changes feed in all of its modes, and the view and _all_docs listings.
//
// Results are read with iterators modeled after database/sql:
//
//	changes, err := client.DB("animals").Changes(ctx, &couchfeed.ChangesOptions{
//	    Feed:  couchfeed.FeedContinuous,
//	    Since: "now",
//	})
//	if err != nil {
//	    return err
//	}
//	defer changes.Close()
//	for changes.Next() {
//	    fmt.Println(changes.ID(), changes.Changes())
//	}
//	if err := changes.Err(); err != nil {
//	    return err
//	}
//
// Each iterator is bound to the context it was opened with. Cancelling the
// context closes the iterator and releases the underlying connection.
//
// The wire decoders themselves live in the feed package, and may be used
// directly with any line-oriented source.
package couchfeed // import "github.com/go-kivik/couchfeed"
