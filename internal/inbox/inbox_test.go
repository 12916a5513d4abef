package inbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unigo-console/internal/api"
	"unigo-console/internal/clock"
	"unigo-console/internal/model"
	"unigo-console/internal/notification"
	"unigo-console/internal/realtime"
)

const adminID = 1

var t0 = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

type fakeAPI struct {
	mu            sync.Mutex
	conversations []model.Conversation
	history       map[int][]model.Message
	historyErr    error
	historyGate   map[int]chan struct{}
	sendErr       error
	sent          []api.SendMessageRequest
	convCalls     int
	unread        int
	unreadCalls   int
	nextID        int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		history:     map[int][]model.Message{},
		historyGate: map[int]chan struct{}{},
		unread:      3,
		nextID:      100,
	}
}

func (a *fakeAPI) Conversations(ctx context.Context) ([]model.Conversation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.convCalls++
	return append([]model.Conversation(nil), a.conversations...), nil
}

func (a *fakeAPI) MessagesWith(ctx context.Context, other int) ([]model.Message, error) {
	a.mu.Lock()
	gate := a.historyGate[other]
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.historyErr != nil {
		return nil, a.historyErr
	}
	return append([]model.Message(nil), a.history[other]...), nil
}

func (a *fakeAPI) SendMessage(ctx context.Context, req api.SendMessageRequest) (*model.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, req)
	if a.sendErr != nil {
		return nil, a.sendErr
	}
	a.nextID++
	return &model.Message{
		ID:        a.nextID,
		Sender:    model.UserRef{ID: adminID},
		Receiver:  model.UserRef{ID: req.ReceiverID},
		Type:      req.Type,
		Content:   req.Content,
		CreatedAt: t0.Add(time.Hour),
	}, nil
}

func (a *fakeAPI) UnreadMessageCount(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unreadCalls++
	return a.unread, nil
}

func (a *fakeAPI) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.convCalls
}

type emission struct {
	event   string
	payload model.TypingEvent
	at      time.Time
}

type recordingEmitter struct {
	mu    sync.Mutex
	clock clock.Clock
	out   []emission
}

func (r *recordingEmitter) Emit(event string, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, emission{event, payload.(model.TypingEvent), r.clock.Now()})
	return nil
}

func (r *recordingEmitter) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.out {
		if e.event == event {
			n++
		}
	}
	return n
}

type subscriber map[string]realtime.HandlerFunc

func (s subscriber) On(event string, h realtime.HandlerFunc) { s[event] = h }

func (s subscriber) fire(t *testing.T, event string, v interface{}) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	s[event](raw)
}

type fixture struct {
	inbox *Inbox
	api   *fakeAPI
	emit  *recordingEmitter
	clock *clock.Fake
	sub   subscriber
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fc := clock.NewFake(t0)
	f := &fixture{
		api:   newFakeAPI(),
		emit:  &recordingEmitter{clock: fc},
		clock: fc,
		sub:   subscriber{},
	}
	f.inbox = New(f.api, f.emit, adminID, Options{Clock: fc})
	f.inbox.Bind(f.sub)
	t.Cleanup(f.inbox.Close)
	return f
}

func msg(id, from, to int, at time.Time, content string) model.Message {
	return model.Message{
		ID:        id,
		Sender:    model.UserRef{ID: from},
		Receiver:  model.UserRef{ID: to},
		Type:      model.MessageText,
		Content:   content,
		CreatedAt: at,
	}
}

func TestSelectLoadsHistory(t *testing.T) {
	f := newFixture(t)
	f.api.history[5] = []model.Message{
		msg(2, adminID, 5, t0.Add(2*time.Minute), "Bonjour"),
		msg(1, 5, adminID, t0, "Salut"),
	}
	f.api.conversations = []model.Conversation{{ID: 1, OtherUser: model.UserRef{ID: 5}, UnreadCount: 2}}
	require.NoError(t, f.inbox.RefreshConversations(context.Background()))

	assert.Equal(t, StateUnselected, f.inbox.Thread().State)
	require.NoError(t, f.inbox.Select(context.Background(), 5))

	th := f.inbox.Thread()
	assert.Equal(t, StateLoaded, th.State)
	require.Len(t, th.Messages, 2)
	assert.Equal(t, 1, th.Messages[0].ID)
	assert.Equal(t, 0, f.inbox.Conversations()[0].UnreadCount)
}

func TestSelectFailureLandsLoadedEmpty(t *testing.T) {
	f := newFixture(t)
	f.api.historyErr = errors.New("timeout")

	assert.Error(t, f.inbox.Select(context.Background(), 5))
	th := f.inbox.Thread()
	assert.Equal(t, StateLoaded, th.State)
	assert.Empty(t, th.Messages)
}

func TestStaleSelectionDropped(t *testing.T) {
	f := newFixture(t)
	f.api.history[5] = []model.Message{msg(1, 5, adminID, t0, "ancien")}
	f.api.history[6] = []model.Message{msg(2, 6, adminID, t0, "récent")}
	gate := make(chan struct{})
	f.api.historyGate[5] = gate

	done := make(chan struct{})
	go func() {
		f.inbox.Select(context.Background(), 5)
		close(done)
	}()
	require.Eventually(t, func() bool { return f.inbox.Thread().State == StateLoading }, time.Second, time.Millisecond)

	require.NoError(t, f.inbox.Select(context.Background(), 6))
	close(gate)
	<-done

	th := f.inbox.Thread()
	assert.Equal(t, 6, th.CounterpartID)
	require.Len(t, th.Messages, 1)
	assert.Equal(t, "récent", th.Messages[0].Content)
}

func TestNewMessageAppendsOnlyForOpenThread(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.inbox.Select(context.Background(), 5))

	f.sub.fire(t, realtime.EventNewMessage, msg(10, 5, adminID, t0, "pour le fil ouvert"))
	f.sub.fire(t, realtime.EventNewMessage, msg(11, 8, adminID, t0, "autre conversation"))
	f.sub.fire(t, realtime.EventNewMessage, msg(10, 5, adminID, t0, "doublon"))
	f.inbox.bg.Wait()

	th := f.inbox.Thread()
	require.Len(t, th.Messages, 1)
	assert.Equal(t, 10, th.Messages[0].ID)
	assert.Equal(t, 3, f.api.calls(), "every new_message refreshes the summaries")
}

func TestNewMessageRefreshesUnreadBadge(t *testing.T) {
	f := newFixture(t)
	f.api.mu.Lock()
	f.api.unread = 7
	f.api.mu.Unlock()

	f.sub.fire(t, realtime.EventNewMessage, msg(10, 5, adminID, t0, "nouveau"))
	f.inbox.bg.Wait()

	assert.Equal(t, 7, f.inbox.UnreadMessages())
}

func TestSelectClearsConversationFromBadge(t *testing.T) {
	f := newFixture(t)
	f.api.conversations = []model.Conversation{
		{ID: 1, OtherUser: model.UserRef{ID: 5}, UnreadCount: 2},
		{ID: 2, OtherUser: model.UserRef{ID: 8}, UnreadCount: 1},
	}
	require.NoError(t, f.inbox.RefreshConversations(context.Background()))
	_, err := f.inbox.RefreshUnreadCount(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.inbox.Select(context.Background(), 5))
	assert.Equal(t, 1, f.inbox.UnreadMessages())
}

func TestNoRefreshAfterClose(t *testing.T) {
	f := newFixture(t)
	f.inbox.Close()

	f.sub.fire(t, realtime.EventNewMessage, msg(10, 5, adminID, t0, "trop tard"))
	f.inbox.bg.Wait()

	assert.Equal(t, 0, f.api.calls())
	f.api.mu.Lock()
	defer f.api.mu.Unlock()
	assert.Equal(t, 0, f.api.unreadCalls)
}

func TestNewMessageDuringLoadIsMerged(t *testing.T) {
	f := newFixture(t)
	f.api.history[5] = []model.Message{msg(1, 5, adminID, t0, "historique")}
	gate := make(chan struct{})
	f.api.historyGate[5] = gate

	done := make(chan struct{})
	go func() {
		f.inbox.Select(context.Background(), 5)
		close(done)
	}()
	require.Eventually(t, func() bool { return f.inbox.Thread().State == StateLoading }, time.Second, time.Millisecond)

	f.sub.fire(t, realtime.EventNewMessage, msg(2, 5, adminID, t0.Add(time.Minute), "en direct"))
	close(gate)
	<-done

	th := f.inbox.Thread()
	require.Len(t, th.Messages, 2)
	assert.Equal(t, "historique", th.Messages[0].Content)
	assert.Equal(t, "en direct", th.Messages[1].Content)
}

func TestTypingSetKeyedByUser(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.inbox.Select(context.Background(), 5))

	f.sub.fire(t, realtime.EventUserTyping, model.TypingEvent{SenderID: 9})
	assert.False(t, f.inbox.Thread().CounterpartTyping)

	f.sub.fire(t, realtime.EventUserTyping, model.TypingEvent{SenderID: 5})
	assert.True(t, f.inbox.Thread().CounterpartTyping)

	f.sub.fire(t, realtime.EventUserStopTyping, model.TypingEvent{SenderID: 5})
	assert.False(t, f.inbox.Thread().CounterpartTyping)
}

func TestPresence(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.inbox.IsOnline(5), "no snapshot on cold start")

	f.sub.fire(t, realtime.EventUserStatusChanged, model.StatusEvent{UserID: 5, Status: "online"})
	assert.True(t, f.inbox.IsOnline(5))
	f.sub.fire(t, realtime.EventUserStatusChanged, model.StatusEvent{UserID: 5, Status: "away"})
	assert.False(t, f.inbox.IsOnline(5))
}

func TestMessagesReadMarksWholeThread(t *testing.T) {
	f := newFixture(t)
	f.api.history[5] = []model.Message{msg(1, adminID, 5, t0, "a"), msg(2, adminID, 5, t0, "b")}
	require.NoError(t, f.inbox.Select(context.Background(), 5))

	f.sub.fire(t, realtime.EventMessagesRead, nil)
	for _, m := range f.inbox.Thread().Messages {
		assert.True(t, m.Read)
	}
}

func TestTypingDebounce(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.inbox.Select(context.Background(), 5))

	require.NoError(t, f.inbox.Keystroke())
	f.clock.Advance(300 * time.Millisecond)
	require.NoError(t, f.inbox.Keystroke())
	f.clock.Advance(300 * time.Millisecond)
	require.NoError(t, f.inbox.Keystroke())
	last := f.clock.Now()

	f.clock.Advance(999 * time.Millisecond)
	assert.Equal(t, 0, f.emit.count(realtime.EventStopTyping))

	f.clock.Advance(time.Millisecond)
	assert.Equal(t, 3, f.emit.count(realtime.EventTyping))
	require.Equal(t, 1, f.emit.count(realtime.EventStopTyping))

	stop := f.emit.out[len(f.emit.out)-1]
	assert.Equal(t, realtime.EventStopTyping, stop.event)
	assert.Equal(t, last.Add(time.Second), stop.at)
	assert.Equal(t, model.TypingEvent{ReceiverID: 5, SenderID: adminID}, stop.payload)

	f.clock.Advance(5 * time.Second)
	assert.Equal(t, 1, f.emit.count(realtime.EventStopTyping))
}

func TestKeystrokeWithoutConversation(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, ErrNoConversation, f.inbox.Keystroke())
}

func TestSendTextRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.api.history[5] = []model.Message{msg(1, 5, adminID, t0, "Salut")}
	require.NoError(t, f.inbox.Select(context.Background(), 5))
	require.NoError(t, f.inbox.Keystroke())

	sent, err := f.inbox.Send(context.Background(), Outgoing{Content: "  Votre dossier est validé  "})
	require.NoError(t, err)
	assert.Equal(t, "Votre dossier est validé", sent.Content)

	th := f.inbox.Thread()
	assert.Equal(t, StateLoaded, th.State)
	require.Len(t, th.Messages, 2)
	last := th.Messages[1]
	assert.Equal(t, sent.Content, last.Content)
	assert.False(t, last.CreatedAt.Before(th.Messages[0].CreatedAt))
	assert.Equal(t, 1, f.api.calls())
	assert.Equal(t, 1, f.emit.count(realtime.EventStopTyping), "sending flushes the typing indicator")
}

func TestSendGuards(t *testing.T) {
	f := newFixture(t)
	_, err := f.inbox.Send(context.Background(), Outgoing{Content: "x"})
	assert.Equal(t, ErrNoConversation, err)

	require.NoError(t, f.inbox.Select(context.Background(), 5))
	_, err = f.inbox.Send(context.Background(), Outgoing{Content: "   "})
	assert.Equal(t, ErrEmptyMessage, err)
}

func TestAttachmentSizeCheckedBeforeUpload(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.inbox.Select(context.Background(), 5))

	_, err := f.inbox.Send(context.Background(), Outgoing{Attachment: &Attachment{
		Name: "scan.pdf",
		Size: DefaultMaxAttachmentBytes + 1,
		Body: bytes.NewReader(nil),
	}})
	assert.Equal(t, ErrAttachmentTooLarge, err)
	assert.Empty(t, f.api.sent)
	assert.Equal(t, StateLoaded, f.inbox.Thread().State)
}

func TestAttachmentType(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.inbox.Select(context.Background(), 5))

	_, err := f.inbox.Send(context.Background(), Outgoing{Attachment: &Attachment{Name: "photo.png", Size: 10, Body: bytes.NewReader([]byte("x"))}})
	require.NoError(t, err)
	_, err = f.inbox.Send(context.Background(), Outgoing{Attachment: &Attachment{Name: "recu.pdf", Size: 10, Body: bytes.NewReader([]byte("x"))}})
	require.NoError(t, err)

	require.Len(t, f.api.sent, 2)
	assert.Equal(t, model.MessageImage, f.api.sent[0].Type)
	assert.Equal(t, model.MessageFile, f.api.sent[1].Type)
	assert.Equal(t, 5, f.api.sent[1].ReceiverID)
}

func TestSendFailureReturnsToIdle(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.inbox.Select(context.Background(), 5))
	f.api.sendErr = errors.New("refused")

	_, err := f.inbox.Send(context.Background(), Outgoing{Content: "x"})
	assert.Error(t, err)
	th := f.inbox.Thread()
	assert.Equal(t, StateLoaded, th.State)
	assert.Empty(t, th.Messages)
}

func TestNotificationDeleteLeavesConversationCounts(t *testing.T) {
	f := newFixture(t)
	f.api.conversations = []model.Conversation{{ID: 1, OtherUser: model.UserRef{ID: 5}, UnreadCount: 4}}
	require.NoError(t, f.inbox.RefreshConversations(context.Background()))

	feed := notification.NewFeed(noopNotifications{}, nil, notification.Options{})
	feed.Push(model.Notification{ID: 1, Type: model.NotificationMessage})
	require.NoError(t, feed.Delete(context.Background(), 1))

	assert.Equal(t, 4, f.inbox.Conversations()[0].UnreadCount)
	assert.Equal(t, 0, feed.Unread())
}

type noopNotifications struct{}

func (noopNotifications) ListNotifications(context.Context, int) (*model.NotificationList, error) {
	return &model.NotificationList{}, nil
}
func (noopNotifications) MarkNotificationRead(context.Context, int) error { return nil }
func (noopNotifications) MarkAllNotificationsRead(context.Context) error  { return nil }
func (noopNotifications) DeleteNotification(context.Context, int) error   { return nil }

func TestRefreshUnreadCount(t *testing.T) {
	f := newFixture(t)
	n, err := f.inbox.RefreshUnreadCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, f.inbox.UnreadMessages())
}
