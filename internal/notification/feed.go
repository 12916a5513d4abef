// Package notification keeps the signed-in user's notification feed in
// sync with the backend: a REST seed, live pushes, and optimistic
// mutations that roll back when the server refuses them.
package notification

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"unigo-console/internal/model"
	"unigo-console/internal/realtime"
)

const DefaultSeedLimit = 10

type API interface {
	ListNotifications(ctx context.Context, limit int) (*model.NotificationList, error)
	MarkNotificationRead(ctx context.Context, id int) error
	MarkAllNotificationsRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id int) error
}

// Channel is the realtime surface the feed needs.
type Channel interface {
	realtime.Subscriber
	realtime.Emitter
	OnConnect(fn func())
}

type Options struct {
	SeedLimit int
	Logger    logrus.FieldLogger
}

type mutationKind int

const (
	mutMarkRead mutationKind = iota
	mutMarkAll
	mutDelete
)

// mutation is an optimistic change applied locally and awaiting the server.
type mutation struct {
	kind mutationKind
	// ids whose read flag this mutation flipped, or the deleted id.
	ids []int
	// decremented is how much the unread counter was lowered.
	decremented int
	// for deletes: the removed item and its position.
	item  model.Notification
	index int
}

// Feed is the local read-through cache of the notification list.
type Feed struct {
	api     API
	toaster Toaster
	limit   int
	log     logrus.FieldLogger

	mu      sync.Mutex
	items   []model.Notification
	unread  int
	pending map[string]*mutation

	// seedSeq is the last seed issued, appliedSeq the last one applied.
	seedSeq    uint64
	appliedSeq uint64
	// pushedAt records, per pushed id, the seed sequence current at push time.
	pushedAt map[int]uint64
}

func NewFeed(api API, toaster Toaster, opts Options) *Feed {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	limit := opts.SeedLimit
	if limit <= 0 {
		limit = DefaultSeedLimit
	}
	return &Feed{
		api:      api,
		toaster:  toaster,
		limit:    limit,
		log:      logger.WithField("component", "notification"),
		pending:  make(map[string]*mutation),
		pushedAt: make(map[int]uint64),
	}
}

// Bind registers the feed's push handler on sub.
func (f *Feed) Bind(sub realtime.Subscriber) {
	sub.On(realtime.EventNewNotification, f.handleNew)
}

// Attach binds the feed and announces userID as online on every connect.
func (f *Feed) Attach(ch Channel, userID int) {
	f.Bind(ch)
	ch.OnConnect(func() {
		if err := ch.Emit(realtime.EventUserOnline, userID); err != nil {
			f.log.WithError(err).Warn("announce presence")
		}
	})
}

func (f *Feed) handleNew(data json.RawMessage) {
	var n model.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		f.log.WithError(err).Warn("dropping malformed notification")
		return
	}
	if f.Push(n) && f.toaster != nil {
		f.toaster.Show(n)
	}
}

// Push prepends n and bumps the unread counter by one. A notification
// already in the list is ignored, so redelivery is harmless. It reports
// whether n was added.
func (f *Feed) Push(n model.Notification) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexOf(n.ID) >= 0 {
		return false
	}
	f.items = append([]model.Notification{n}, f.items...)
	f.unread++
	f.pushedAt[n.ID] = f.seedSeq
	return true
}

// Seed replaces local state with the server's latest page. Failures
// degrade to an empty feed and are only logged.
func (f *Feed) Seed(ctx context.Context) {
	f.mu.Lock()
	f.seedSeq++
	seq := f.seedSeq
	f.mu.Unlock()

	list, err := f.api.ListNotifications(ctx, f.limit)
	if err != nil {
		f.log.WithError(err).Error("seed notifications")
		list = &model.NotificationList{}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if seq < f.appliedSeq {
		f.log.Debugf("dropping stale seed %d (applied %d)", seq, f.appliedSeq)
		return
	}
	f.applySeed(seq, list)
}

func (f *Feed) applySeed(seq uint64, list *model.NotificationList) {
	fetched := make(map[int]bool, len(list.Notifications))
	for _, n := range list.Notifications {
		fetched[n.ID] = true
	}

	// Pushes that arrived after this seed was issued survive it.
	var kept []model.Notification
	keptUnread := 0
	for _, n := range f.items {
		if at, ok := f.pushedAt[n.ID]; ok && at >= seq && !fetched[n.ID] {
			kept = append(kept, n)
			if !n.Read {
				keptUnread++
			}
		}
	}

	items := append(kept, list.Notifications...)
	unread := list.UnreadCount + keptUnread

	// Re-apply mutations the server has not confirmed yet.
	for _, m := range f.pending {
		switch m.kind {
		case mutMarkRead, mutMarkAll:
			for _, id := range m.ids {
				for i := range items {
					if items[i].ID == id && !items[i].Read {
						items[i].Read = true
						unread--
					}
				}
			}
		case mutDelete:
			if m.index < 0 {
				continue
			}
			for i := range items {
				if items[i].ID == m.item.ID {
					if !items[i].Read {
						unread--
					}
					items = append(items[:i], items[i+1:]...)
					break
				}
			}
		}
	}

	f.items = items
	f.unread = clamp(unread)
	f.appliedSeq = seq
	for id, at := range f.pushedAt {
		if at < seq {
			delete(f.pushedAt, id)
		}
	}
}

// MarkRead flips n's read flag locally, then confirms with the server.
// The local change is undone if the server call fails.
func (f *Feed) MarkRead(ctx context.Context, id int) error {
	f.mu.Lock()
	m := &mutation{kind: mutMarkRead}
	if i := f.indexOf(id); i >= 0 && !f.items[i].Read {
		f.items[i].Read = true
		m.ids = []int{id}
		if f.unread > 0 {
			f.unread--
			m.decremented = 1
		}
	}
	key := f.begin(m)
	f.mu.Unlock()

	err := f.api.MarkNotificationRead(ctx, id)
	f.finish(key, err)
	return err
}

// MarkAllRead flips every loaded item to read and zeroes the counter.
func (f *Feed) MarkAllRead(ctx context.Context) error {
	f.mu.Lock()
	m := &mutation{kind: mutMarkAll, decremented: f.unread}
	for i := range f.items {
		if !f.items[i].Read {
			f.items[i].Read = true
			m.ids = append(m.ids, f.items[i].ID)
		}
	}
	f.unread = 0
	key := f.begin(m)
	f.mu.Unlock()

	err := f.api.MarkAllNotificationsRead(ctx)
	f.finish(key, err)
	return err
}

// Delete removes n locally before the server confirms; it is restored in
// place if the call fails. Conversation unread counts are never touched.
func (f *Feed) Delete(ctx context.Context, id int) error {
	f.mu.Lock()
	m := &mutation{kind: mutDelete, index: -1}
	if i := f.indexOf(id); i >= 0 {
		m.item = f.items[i]
		m.index = i
		m.ids = []int{id}
		f.items = append(f.items[:i], f.items[i+1:]...)
		if !m.item.Read && f.unread > 0 {
			f.unread--
			m.decremented = 1
		}
	}
	key := f.begin(m)
	f.mu.Unlock()

	err := f.api.DeleteNotification(ctx, id)
	f.finish(key, err)
	return err
}

func (f *Feed) begin(m *mutation) string {
	key := uuid.NewString()
	f.pending[key] = m
	return key
}

func (f *Feed) finish(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.pending[key]
	if !ok {
		return
	}
	delete(f.pending, key)
	if err == nil {
		return
	}
	f.log.WithError(err).Warn("rolling back notification mutation")
	f.rollback(m)
}

func (f *Feed) rollback(m *mutation) {
	switch m.kind {
	case mutMarkRead:
		for _, id := range m.ids {
			if i := f.indexOf(id); i >= 0 && f.items[i].Read {
				f.items[i].Read = false
				f.unread += m.decremented
			}
		}
	case mutMarkAll:
		for _, id := range m.ids {
			if i := f.indexOf(id); i >= 0 {
				f.items[i].Read = false
			}
		}
		f.unread += m.decremented
	case mutDelete:
		if m.index < 0 || f.indexOf(m.item.ID) >= 0 {
			return
		}
		at := m.index
		if at > len(f.items) {
			at = len(f.items)
		}
		f.items = append(f.items[:at], append([]model.Notification{m.item}, f.items[at:]...)...)
		f.unread += m.decremented
	}
}

func (f *Feed) indexOf(id int) int {
	for i, n := range f.items {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

type Snapshot struct {
	Items  []model.Notification `json:"notifications"`
	Unread int                  `json:"unreadCount"`
	// Pending lists ids with a mutation the server has not confirmed.
	Pending []int `json:"pending,omitempty"`
}

func (f *Feed) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := Snapshot{
		Items:  append([]model.Notification{}, f.items...),
		Unread: f.unread,
	}
	for _, m := range f.pending {
		s.Pending = append(s.Pending, m.ids...)
	}
	return s
}

func (f *Feed) Unread() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread
}
