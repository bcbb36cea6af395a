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

package couchfeed

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
)

// iterator is the decoder an iter reads from.
type iterator interface {
	Next(context.Context) (json.RawMessage, error)
	Close(force bool) error
}

// possible states of the iterator
const (
	// stateReady is the initial state before [iter.Next] is called.
	stateReady = iota
	// stateRowReady is the state after [iter.Next] has returned a value.
	stateRowReady
	// stateClosed means the last row has been retrieved. The iterator is no
	// longer usable.
	stateClosed
)

type iter struct {
	feed iterator
	ctx  context.Context

	mu      sync.RWMutex
	state   int
	lasterr error // non-nil only if state == stateClosed

	cancel func() // cancel function to exit context goroutine when iterator is closed
	end    func() // releases the client's hold on this iterator

	curVal json.RawMessage

	feedOnce sync.Once
}

func (i *iter) rlock() (unlock func(), err error) {
	i.mu.RLock()
	if i.state == stateClosed {
		i.mu.RUnlock()
		return nil, &Error{Status: http.StatusBadRequest, Message: "couchfeed: Iterator is closed"}
	}
	if i.state != stateRowReady {
		i.mu.RUnlock()
		return nil, &Error{Status: http.StatusBadRequest, Message: "couchfeed: Iterator access before calling Next"}
	}
	return i.mu.RUnlock, nil
}

// newIterator instantiates a new iterator.
//
// ctx is a possibly-cancellable context, which bounds the life of the
// iterator. end, if not nil, is called once when the iterator closes.
func newIterator(ctx context.Context, feed iterator, end func()) *iter {
	i := &iter{
		feed: feed,
		end:  end,
	}
	i.ctx, i.cancel = context.WithCancel(ctx)
	go i.awaitDone(i.ctx)
	return i
}

// awaitDone blocks until the iterator is closed or the context is cancelled,
// then closes the iterator if it's still open.
func (i *iter) awaitDone(ctx context.Context) {
	<-ctx.Done()
	_ = i.close(ctx.Err())
}

// Next prepares the next iterator result value for reading. It returns true on
// success, or false if there is no next result or an error occurs while
// preparing it. [iter.Err] should be consulted to distinguish between the two.
func (i *iter) Next() bool {
	doClose, ok := i.next()
	if doClose {
		_ = i.Close()
	}
	return ok
}

func (i *iter) next() (doClose, ok bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.state == stateClosed {
		return false, false
	}
	i.curVal, i.lasterr = i.feed.Next(i.ctx)
	if i.lasterr == io.EOF && i.ctx.Err() != nil {
		// The feed was torn down by a cancelled context.
		i.lasterr = i.ctx.Err()
	}
	i.state = stateRowReady
	if i.lasterr != nil {
		return true, false
	}
	return false, true
}

// Close closes the Iterator, preventing further enumeration, and freeing any
// resources (such as the http response body) of the underlying feed. If Next
// is called and there are no further results, Iterator is closed automatically
// and it will suffice to check the result of [iter.Err]. Close is idempotent
// and does not affect the result of [iter.Err].
func (i *iter) Close() error {
	return i.close(nil)
}

func (i *iter) close(err error) error {
	// The feed is closed before taking the lock, so that a Next blocked on a
	// quiet feed returns. A cancelled context abandons the feed outright.
	var closeErr error
	i.feedOnce.Do(func() {
		closeErr = i.feed.Close(err != nil)
	})

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state == stateClosed {
		return nil
	}
	i.state = stateClosed

	if i.lasterr == nil {
		i.lasterr = err
	}

	if i.cancel != nil {
		i.cancel()
	}
	if i.end != nil {
		i.end()
	}

	return closeErr
}

// Err returns the error, if any, that was encountered during iteration. Err
// may be called after an explicit or implicit Close.
func (i *iter) Err() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.lasterr == io.EOF {
		return nil
	}
	return i.lasterr
}
