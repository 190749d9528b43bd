// Package session holds the in-memory entity graph: the signed-in User and
// the catalog Items it has progress on. State is published as immutable
// Snapshots. Writers go through Transact, which serialises them and commits
// a new snapshot only when the transformation succeeds; readers never see a
// partially applied change.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tonimelisma/learnsync/internal/contentid"
)

// ErrUnknownItem is returned by EditItem when the item is not in the graph.
var ErrUnknownItem = errors.New("session: unknown item")

// Snapshot is an immutable view of the entity graph.
type Snapshot struct {
	User  User
	items map[contentid.ID]Item
}

// Item returns the item with the given id.
func (s Snapshot) Item(id contentid.ID) (Item, bool) {
	it, ok := s.items[id]
	return it, ok
}

// Items returns all items ordered by id.
func (s Snapshot) Items() []Item {
	out := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}

	slices.SortFunc(out, func(a, b Item) int {
		return strings.Compare(a.ID.String(), b.ID.String())
	})

	return out
}

// WithUser returns a copy of s with the user replaced.
func (s Snapshot) WithUser(u User) Snapshot {
	s.User = u
	return s
}

// WithItem returns a copy of s with it inserted or replaced.
func (s Snapshot) WithItem(it Item) Snapshot {
	items := make(map[contentid.ID]Item, len(s.items)+1)
	for k, v := range s.items {
		items[k] = v
	}

	items[it.ID] = it
	s.items = items

	return s
}

// Hydrated returns a copy of s where every item's progress fields are
// derived from the user's started/completed sets and watch records.
func (s Snapshot) Hydrated() Snapshot {
	items := make(map[contentid.ID]Item, len(s.items))
	for k, v := range s.items {
		items[k] = hydrate(v, s.User)
	}

	s.items = items

	return s
}

// Session is the explicit session context threaded through every operation.
// It replaces process-global "current user" state.
type Session struct {
	current atomic.Pointer[Snapshot]

	// writeMu serialises Transact. Subscribers run while it is held, so they
	// must not call Transact (or the Edit helpers) synchronously.
	writeMu sync.Mutex

	subMu    sync.Mutex
	nextSub  int
	userSubs map[int]func(User)
	itemSubs map[contentid.ID]map[int]func(Item)

	logger *slog.Logger
}

// New creates an empty session.
func New(logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		userSubs: make(map[int]func(User)),
		itemSubs: make(map[contentid.ID]map[int]func(Item)),
		logger:   logger,
	}

	s.current.Store(&Snapshot{items: map[contentid.ID]Item{}})

	return s
}

// Snapshot returns the current committed snapshot.
func (s *Session) Snapshot() Snapshot {
	return *s.current.Load()
}

// User returns the current user aggregate.
func (s *Session) User() User {
	return s.current.Load().User
}

// Item returns the current state of one item.
func (s *Session) Item(id contentid.ID) (Item, bool) {
	return s.current.Load().Item(id)
}

// Transact applies fn to the current snapshot and commits the result if fn
// returns nil. On error nothing is committed and the current snapshot is
// returned with the error. Subscribers of changed aggregates are notified
// after the commit, in commit order.
func (s *Session) Transact(fn func(Snapshot) (Snapshot, error)) (Snapshot, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	before := *s.current.Load()

	after, err := fn(before)
	if err != nil {
		return before, err
	}

	if after.items == nil {
		after.items = map[contentid.ID]Item{}
	}

	s.current.Store(&after)
	s.notify(before, after)

	return after, nil
}

// EditUser commits fn applied to the current user and returns the result.
func (s *Session) EditUser(fn func(User) User) User {
	snap, _ := s.Transact(func(cur Snapshot) (Snapshot, error) {
		return cur.WithUser(fn(cur.User)), nil
	})

	return snap.User
}

// EditItem commits fn applied to the item with the given id.
func (s *Session) EditItem(id contentid.ID, fn func(Item) Item) (Item, error) {
	snap, err := s.Transact(func(cur Snapshot) (Snapshot, error) {
		it, ok := cur.Item(id)
		if !ok {
			return cur, fmt.Errorf("%w: %s", ErrUnknownItem, id)
		}

		updated := fn(it)
		updated.ID = id

		return cur.WithItem(updated), nil
	})
	if err != nil {
		return Item{}, err
	}

	it, _ := snap.Item(id)

	return it, nil
}

// PutItems adds or replaces catalog items, hydrating their progress fields
// from the current user.
func (s *Session) PutItems(items ...Item) {
	_, _ = s.Transact(func(cur Snapshot) (Snapshot, error) {
		next := cur
		for _, it := range items {
			next = next.WithItem(hydrate(it, cur.User))
		}

		return next, nil
	})

	s.logger.Debug("catalog items loaded", slog.Int("count", len(items)))
}

// Reset drops all user state (sign-out) and clears per-user item fields.
func (s *Session) Reset() {
	_, _ = s.Transact(func(cur Snapshot) (Snapshot, error) {
		items := make(map[contentid.ID]Item, len(cur.items))
		for k, v := range cur.items {
			items[k] = resetProgress(v)
		}

		return Snapshot{items: items}, nil
	})
}

// SubscribeUser registers fn to receive every committed change to the user
// aggregate. The returned func cancels the subscription.
func (s *Session) SubscribeUser(fn func(User)) (cancel func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.userSubs[id] = fn

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()

		delete(s.userSubs, id)
	}
}

// SubscribeItem registers fn to receive every committed change to one item.
func (s *Session) SubscribeItem(itemID contentid.ID, fn func(Item)) (cancel func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++

	subs, ok := s.itemSubs[itemID]
	if !ok {
		subs = make(map[int]func(Item))
		s.itemSubs[itemID] = subs
	}

	subs[id] = fn

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()

		delete(s.itemSubs[itemID], id)

		if len(s.itemSubs[itemID]) == 0 {
			delete(s.itemSubs, itemID)
		}
	}
}

// notify delivers changed aggregates to their subscribers. Callbacks are
// collected under subMu and invoked after it is released.
func (s *Session) notify(before, after Snapshot) {
	var calls []func()

	s.subMu.Lock()

	if len(s.userSubs) > 0 && !reflect.DeepEqual(before.User, after.User) {
		u := after.User
		for _, fn := range s.userSubs {
			calls = append(calls, func() { fn(u) })
		}
	}

	for itemID, subs := range s.itemSubs {
		prev, hadPrev := before.items[itemID]
		next, hasNext := after.items[itemID]

		if !hasNext || (hadPrev && prev == next) {
			continue
		}

		for _, fn := range subs {
			calls = append(calls, func() { fn(next) })
		}
	}

	s.subMu.Unlock()

	for _, call := range calls {
		call()
	}
}
