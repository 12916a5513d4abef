package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unigo-console/internal/clock"
	"unigo-console/internal/model"
	"unigo-console/internal/realtime"
)

type fakeAPI struct {
	mu       sync.Mutex
	list     *model.NotificationList
	listErr  error
	gate     chan struct{}
	failNext error
	calls    []string
}

func (a *fakeAPI) ListNotifications(ctx context.Context, limit int) (*model.NotificationList, error) {
	a.mu.Lock()
	gate := a.gate
	list, err := a.list, a.listErr
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	cp := *list
	cp.Notifications = append([]model.Notification(nil), list.Notifications...)
	return &cp, nil
}

func (a *fakeAPI) record(call string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call)
	err := a.failNext
	a.failNext = nil
	return err
}

func (a *fakeAPI) MarkNotificationRead(ctx context.Context, id int) error {
	return a.record("read")
}

func (a *fakeAPI) MarkAllNotificationsRead(ctx context.Context) error {
	return a.record("read-all")
}

func (a *fakeAPI) DeleteNotification(ctx context.Context, id int) error {
	return a.record("delete")
}

type recordingToaster struct {
	shown []model.Notification
}

func (r *recordingToaster) Show(n model.Notification) { r.shown = append(r.shown, n) }

func notif(id int, read bool) model.Notification {
	return model.Notification{ID: id, Type: model.NotificationBooking, Title: "Réservation", Read: read, CreatedAt: time.Unix(int64(id), 0)}
}

func seeded(t *testing.T, items ...model.Notification) (*Feed, *fakeAPI, *recordingToaster) {
	t.Helper()
	unread := 0
	for _, n := range items {
		if !n.Read {
			unread++
		}
	}
	api := &fakeAPI{list: &model.NotificationList{Notifications: items, UnreadCount: unread}}
	toaster := &recordingToaster{}
	f := NewFeed(api, toaster, Options{})
	f.Seed(context.Background())
	return f, api, toaster
}

func pushRaw(t *testing.T, f *Feed, n model.Notification) {
	t.Helper()
	raw, err := json.Marshal(n)
	require.NoError(t, err)
	f.handleNew(raw)
}

func TestPushPrependsAndCountsOne(t *testing.T) {
	f, _, toaster := seeded(t, notif(1, false), notif(2, true))
	require.Equal(t, 1, f.Unread())

	for i, id := range []int{10, 11, 12} {
		pushRaw(t, f, notif(id, false))
		snap := f.Snapshot()
		assert.Equal(t, id, snap.Items[0].ID)
		assert.Len(t, snap.Items, 3+i)
		assert.Equal(t, 2+i, snap.Unread)
	}
	assert.Len(t, toaster.shown, 3)
}

func TestDuplicatePushIgnored(t *testing.T) {
	f, _, toaster := seeded(t)
	pushRaw(t, f, notif(5, false))
	pushRaw(t, f, notif(5, false))
	assert.Equal(t, 1, f.Unread())
	assert.Len(t, f.Snapshot().Items, 1)
	assert.Len(t, toaster.shown, 1)
}

func TestSeedReplacesState(t *testing.T) {
	f, api, _ := seeded(t, notif(1, false), notif(2, false))
	api.list = &model.NotificationList{Notifications: []model.Notification{notif(3, true)}, UnreadCount: 0}
	f.Seed(context.Background())

	snap := f.Snapshot()
	require.Len(t, snap.Items, 1)
	assert.Equal(t, 3, snap.Items[0].ID)
	assert.Equal(t, 0, snap.Unread)
}

func TestSeedFailureFailsOpenToEmpty(t *testing.T) {
	f, api, _ := seeded(t, notif(1, false))
	api.listErr = errors.New("connection refused")
	f.Seed(context.Background())

	snap := f.Snapshot()
	assert.Empty(t, snap.Items)
	assert.Zero(t, snap.Unread)
}

func TestSlowSeedKeepsNewerPush(t *testing.T) {
	api := &fakeAPI{
		list: &model.NotificationList{Notifications: []model.Notification{notif(1, false)}, UnreadCount: 1},
		gate: make(chan struct{}),
	}
	f := NewFeed(api, nil, Options{})

	done := make(chan struct{})
	go func() {
		f.Seed(context.Background())
		close(done)
	}()
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.seedSeq == 1
	}, time.Second, time.Millisecond)

	f.Push(notif(9, false))
	close(api.gate)
	<-done

	snap := f.Snapshot()
	require.Len(t, snap.Items, 2)
	assert.Equal(t, 9, snap.Items[0].ID)
	assert.Equal(t, 2, snap.Unread)
}

func TestMarkReadIdempotentAndClamped(t *testing.T) {
	f, _, _ := seeded(t, notif(1, false), notif(2, true))

	require.NoError(t, f.MarkRead(context.Background(), 1))
	assert.Equal(t, 0, f.Unread())
	require.NoError(t, f.MarkRead(context.Background(), 1))
	require.NoError(t, f.MarkRead(context.Background(), 2))
	assert.Equal(t, 0, f.Unread())
}

func TestMarkReadRollsBackOnFailure(t *testing.T) {
	f, api, _ := seeded(t, notif(1, false), notif(2, false))
	api.failNext = errors.New("boom")

	err := f.MarkRead(context.Background(), 1)
	require.Error(t, err)
	snap := f.Snapshot()
	assert.Equal(t, 2, snap.Unread)
	assert.False(t, snap.Items[0].Read)
	assert.Empty(t, snap.Pending)
}

func TestMarkAllReadAndRollback(t *testing.T) {
	f, api, _ := seeded(t, notif(1, false), notif(2, false), notif(3, true))

	api.failNext = errors.New("boom")
	require.Error(t, f.MarkAllRead(context.Background()))
	assert.Equal(t, 2, f.Unread())
	assert.True(t, f.Snapshot().Items[2].Read)

	require.NoError(t, f.MarkAllRead(context.Background()))
	assert.Equal(t, 0, f.Unread())
	for _, n := range f.Snapshot().Items {
		assert.True(t, n.Read)
	}
}

func TestDeleteAndRestore(t *testing.T) {
	f, api, _ := seeded(t, notif(1, false), notif(2, false), notif(3, false))

	api.failNext = errors.New("boom")
	require.Error(t, f.Delete(context.Background(), 2))
	snap := f.Snapshot()
	require.Len(t, snap.Items, 3)
	assert.Equal(t, 2, snap.Items[1].ID)
	assert.Equal(t, 3, snap.Unread)

	require.NoError(t, f.Delete(context.Background(), 2))
	snap = f.Snapshot()
	assert.Len(t, snap.Items, 2)
	assert.Equal(t, 2, snap.Unread)
}

func TestAttachAnnouncesPresence(t *testing.T) {
	ch := &fakeChannel{handlers: map[string]realtime.HandlerFunc{}}
	f := NewFeed(&fakeAPI{list: &model.NotificationList{}}, nil, Options{})
	f.Attach(ch, 77)

	require.NotNil(t, ch.onConnect)
	ch.onConnect()
	require.Len(t, ch.emitted, 1)
	assert.Equal(t, realtime.EventUserOnline, ch.emitted[0].event)
	assert.Equal(t, 77, ch.emitted[0].payload)

	raw, _ := json.Marshal(notif(4, false))
	ch.handlers[realtime.EventNewNotification](raw)
	assert.Equal(t, 1, f.Unread())
}

type emitted struct {
	event   string
	payload interface{}
}

type fakeChannel struct {
	handlers  map[string]realtime.HandlerFunc
	onConnect func()
	emitted   []emitted
}

func (c *fakeChannel) On(event string, h realtime.HandlerFunc) { c.handlers[event] = h }
func (c *fakeChannel) OnConnect(fn func())                     { c.onConnect = fn }
func (c *fakeChannel) Emit(event string, payload interface{}) error {
	c.emitted = append(c.emitted, emitted{event, payload})
	return nil
}

func TestToastAutoDismiss(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	q := NewToastQueue(fc, 5*time.Second)
	q.Show(model.Notification{ID: 1, Type: model.NotificationDocumentVerification, Title: "Document",
		Data: &model.NotificationData{DocumentType: "cni_recto", VerificationStatus: "approved"}})
	q.Show(notif(2, false))

	active := q.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "CNI (recto) : validé", active[0].Body)

	assert.True(t, q.Dismiss(active[1].ID))
	fc.Advance(4 * time.Second)
	assert.Len(t, q.Active(), 1)
	fc.Advance(time.Second)
	assert.Empty(t, q.Active())
	assert.Zero(t, fc.Pending())
}

func TestStyleLookup(t *testing.T) {
	assert.Equal(t, ToneDanger, StyleFor(model.NotificationCancellation).Tone)
	assert.Equal(t, StyleFor(model.NotificationOther), StyleFor(model.NotificationType("nope")))
	for typ := range styles {
		assert.NotEmpty(t, StyleFor(typ).Label)
	}
}
