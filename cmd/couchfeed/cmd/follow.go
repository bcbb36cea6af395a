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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/go-kivik/couchfeed"
	"github.com/go-kivik/couchfeed/cmd/couchfeed/errors"
)

// follower reads the changes feed of one database, resuming from the last
// sequence seen whenever the feed is interrupted.
type follower struct {
	r       *root
	db      *couchfeed.DB
	opts    couchfeed.ChangesOptions
	session string
	emit    func(json.RawMessage) error
}

func (r *root) newFollower(db *couchfeed.DB, opts couchfeed.ChangesOptions, emit func(json.RawMessage) error) *follower {
	return &follower{
		r:       r,
		db:      db,
		opts:    opts,
		session: uuid.NewString(),
		emit:    emit,
	}
}

// run reads the feed until it ends, the retries are exhausted, or ctx is
// cancelled. With follow enabled, a continuous feed ended by the server is
// reopened.
func (f *follower) run(ctx context.Context) error {
	for {
		err := f.r.retry(ctx, f.session, func() error {
			return f.read(ctx)
		})
		if ctx.Err() != nil {
			f.r.log.Debugf("[%s] %s: stopped at %q", f.session, f.db.Name(), f.opts.Since)
			return nil
		}
		if err != nil || !f.r.conf.Follow || !f.r.conf.Continuous() {
			return err
		}
		f.r.log.Debugf("[%s] %s: feed ended, reopening from %q", f.session, f.db.Name(), f.opts.Since)
	}
}

// read opens the feed once, and reads it to the end. Faults worth retrying
// are returned as is; all others are wrapped with backoff.Permanent.
func (f *follower) read(ctx context.Context) error {
	f.r.log.Debugf("[%s] %s: opening %s feed since %q", f.session, f.db.Name(), f.opts.Feed, f.opts.Since)
	opts := f.opts
	changes, err := f.db.Changes(ctx, &opts)
	if err != nil {
		return classify(err)
	}
	defer changes.Close() // nolint:errcheck
	for changes.Next() {
		if err := f.emit(changes.Change()); err != nil {
			return backoff.Permanent(err)
		}
		if seq := changes.LastSeq(); seq != "" {
			f.opts.Since = seq
		}
	}
	if seq := changes.LastSeq(); seq != "" {
		f.opts.Since = seq
	}
	if err := changes.Err(); err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return classify(err)
	}
	return nil
}

// classify marks err as permanent unless it is a transport fault, or the
// server is temporarily unavailable.
func classify(err error) error {
	switch couchfeed.HTTPStatus(err) {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return err
	}
	return backoff.Permanent(err)
}

// retry calls fn, retrying up to the configured number of times while it
// returns transient errors.
func (r *root) retry(ctx context.Context, session string, fn func() error) error {
	if r.conf.Retry == 0 {
		err := fn()
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return permanent.Err
		}
		return err
	}
	var bo backoff.BackOff
	if r.conf.RetryDelay > 0 {
		bo = backoff.NewConstantBackOff(r.conf.RetryDelay)
	} else {
		bo = backoff.NewExponentialBackOff()
	}
	if r.conf.Retry > 0 {
		bo = backoff.WithMaxRetries(bo, uint64(r.conf.Retry))
	}
	if r.conf.RetryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.conf.RetryTimeout)
		defer cancel()
	}
	bo = backoff.WithContext(bo, ctx)
	var count int
	return backoff.RetryNotify(func() error {
		count++
		return fn()
	}, bo, func(err error, next time.Duration) {
		msg := fmt.Sprintf("[%s] Warning: Transient problem: %s. Will retry in %s.", session, err, fmtDuration(next))
		if r.conf.Retry > 0 {
			msg += fmt.Sprintf(" %d retries left.", r.conf.Retry-count+1)
		}
		r.log.Error(msg)
	})
}

// nolint:gomnd
func fmtDuration(dur time.Duration) string {
	s := dur.Seconds()
	if s < 60 {
		return fmt.Sprintf("%0.2fs", s)
	}
	m := int(s / 60)
	s -= float64(m) * 60
	if m < 60 {
		return fmt.Sprintf("%dm%ds", m, int(s))
	}
	h := m / 60
	m -= h * 60
	return fmt.Sprintf("%dh%dm", h, m)
}
