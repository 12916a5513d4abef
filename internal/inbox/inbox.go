// Package inbox synchronizes the admin messaging console: conversation
// summaries, the open thread, and the typing and presence sets.
package inbox

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"unigo-console/internal/api"
	"unigo-console/internal/clock"
	"unigo-console/internal/model"
	"unigo-console/internal/realtime"
)

const (
	DefaultTypingDebounce     = time.Second
	DefaultMaxAttachmentBytes = 10 << 20
)

var (
	ErrNoConversation     = errors.New("inbox: no conversation selected")
	ErrThreadLoading      = errors.New("inbox: conversation still loading")
	ErrSendInFlight       = errors.New("inbox: a message is already being sent")
	ErrEmptyMessage       = errors.New("inbox: message is empty")
	ErrAttachmentTooLarge = errors.New("inbox: attachment exceeds size limit")
)

type API interface {
	Conversations(ctx context.Context) ([]model.Conversation, error)
	MessagesWith(ctx context.Context, otherUserID int) ([]model.Message, error)
	SendMessage(ctx context.Context, req api.SendMessageRequest) (*model.Message, error)
	UnreadMessageCount(ctx context.Context) (int, error)
}

type ThreadState string

const (
	StateUnselected ThreadState = "unselected"
	StateLoading    ThreadState = "loading"
	StateLoaded     ThreadState = "loaded"
	StateSending    ThreadState = "sending"
)

type Options struct {
	TypingDebounce     time.Duration
	MaxAttachmentBytes int64
	Clock              clock.Clock
	Logger             logrus.FieldLogger
}

type Inbox struct {
	api       API
	emit      realtime.Emitter
	me        int
	clock     clock.Clock
	debounce  time.Duration
	maxAttach int64
	log       logrus.FieldLogger

	mu            sync.Mutex
	conversations []model.Conversation
	convSeq       uint64
	convApplied   uint64
	unreadTotal   int

	selected  int
	selectSeq uint64
	state     ThreadState
	messages  []model.Message

	typing map[int]bool
	online map[int]bool

	stopTimer clock.Timer
	typingTo  int

	closed bool
	bg     sync.WaitGroup
}

// New builds an inbox for the signed-in user me. emit carries the typing
// announcements; it is normally the same channel the inbox is bound to.
func New(a API, emit realtime.Emitter, me int, opts Options) *Inbox {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	c := opts.Clock
	if c == nil {
		c = clock.Real{}
	}
	debounce := opts.TypingDebounce
	if debounce <= 0 {
		debounce = DefaultTypingDebounce
	}
	maxAttach := opts.MaxAttachmentBytes
	if maxAttach <= 0 {
		maxAttach = DefaultMaxAttachmentBytes
	}
	return &Inbox{
		api:       a,
		emit:      emit,
		me:        me,
		clock:     c,
		debounce:  debounce,
		maxAttach: maxAttach,
		log:       logger.WithField("component", "inbox"),
		state:     StateUnselected,
		typing:    make(map[int]bool),
		online:    make(map[int]bool),
	}
}

// Bind registers the inbox's handlers on sub.
func (i *Inbox) Bind(sub realtime.Subscriber) {
	sub.On(realtime.EventNewMessage, i.handleNewMessage)
	sub.On(realtime.EventUserTyping, i.handleTyping(true))
	sub.On(realtime.EventUserStopTyping, i.handleTyping(false))
	sub.On(realtime.EventUserStatusChanged, i.handleStatus)
	sub.On(realtime.EventMessagesRead, i.handleMessagesRead)
}

// Close stops the typing timer and waits for background refreshes. Events
// handled after Close no longer start refreshes.
func (i *Inbox) Close() {
	i.mu.Lock()
	i.closed = true
	if i.stopTimer != nil {
		i.stopTimer.Stop()
		i.stopTimer = nil
	}
	i.mu.Unlock()
	i.bg.Wait()
}

// RefreshConversations reloads every summary. Out-of-order responses are
// dropped; failures keep the current list.
func (i *Inbox) RefreshConversations(ctx context.Context) error {
	i.mu.Lock()
	i.convSeq++
	seq := i.convSeq
	i.mu.Unlock()

	convs, err := i.api.Conversations(ctx)
	if err != nil {
		i.log.WithError(err).Warn("refresh conversations")
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if seq < i.convApplied {
		return nil
	}
	i.convApplied = seq
	i.conversations = convs
	return nil
}

// refreshInBackground reloads the summaries and the unread badge after a
// live message.
func (i *Inbox) refreshInBackground() {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	i.bg.Add(1)
	i.mu.Unlock()

	go func() {
		defer i.bg.Done()
		ctx := context.Background()
		_ = i.RefreshConversations(ctx)
		if _, err := i.RefreshUnreadCount(ctx); err != nil {
			i.log.WithError(err).Warn("refresh unread count")
		}
	}()
}

// RefreshUnreadCount fetches the total unread message count.
func (i *Inbox) RefreshUnreadCount(ctx context.Context) (int, error) {
	n, err := i.api.UnreadMessageCount(ctx)
	if err != nil {
		return 0, err
	}
	i.mu.Lock()
	i.unreadTotal = n
	i.mu.Unlock()
	return n, nil
}

// Select opens the conversation with userID and loads its history. The
// thread lands in StateLoaded whether or not the fetch succeeds.
func (i *Inbox) Select(ctx context.Context, userID int) error {
	i.mu.Lock()
	wasTyping := i.cancelTypingLocked()
	i.selectSeq++
	seq := i.selectSeq
	i.selected = userID
	i.state = StateLoading
	i.messages = nil
	i.mu.Unlock()
	i.flushTyping(wasTyping)

	history, err := i.api.MessagesWith(ctx, userID)

	i.mu.Lock()
	defer i.mu.Unlock()
	if seq != i.selectSeq {
		return nil
	}
	if err != nil {
		i.log.WithError(err).WithField("user_id", userID).Warn("load conversation")
		history = nil
	}

	// Live messages that arrived while loading are merged in.
	live := i.messages
	i.messages = nil
	for _, m := range history {
		i.messages = insertOrdered(i.messages, m)
	}
	for _, m := range live {
		i.messages = insertOrdered(i.messages, m)
	}
	i.state = StateLoaded

	if err == nil {
		for k := range i.conversations {
			if i.conversations[k].OtherUser.ID == userID {
				i.unreadTotal -= i.conversations[k].UnreadCount
				i.conversations[k].UnreadCount = 0
			}
		}
		if i.unreadTotal < 0 {
			i.unreadTotal = 0
		}
	}
	return err
}

// Keystroke announces typing to the open conversation and re-arms the
// trailing stop_typing timer.
func (i *Inbox) Keystroke() error {
	i.mu.Lock()
	if i.selected == 0 {
		i.mu.Unlock()
		return ErrNoConversation
	}
	receiver := i.selected
	if i.stopTimer != nil {
		i.stopTimer.Stop()
	}
	i.typingTo = receiver
	var timer clock.Timer
	timer = i.clock.AfterFunc(i.debounce, func() {
		i.mu.Lock()
		if i.stopTimer != timer {
			i.mu.Unlock()
			return
		}
		i.stopTimer = nil
		i.typingTo = 0
		i.mu.Unlock()
		i.emitTyping(realtime.EventStopTyping, receiver)
	})
	i.stopTimer = timer
	i.mu.Unlock()

	i.emitTyping(realtime.EventTyping, receiver)
	return nil
}

// cancelTypingLocked cancels a pending stop_typing and returns its
// receiver so the caller can send it once the lock is released.
func (i *Inbox) cancelTypingLocked() int {
	if i.stopTimer == nil {
		return 0
	}
	i.stopTimer.Stop()
	i.stopTimer = nil
	receiver := i.typingTo
	i.typingTo = 0
	return receiver
}

func (i *Inbox) flushTyping(receiver int) {
	if receiver != 0 {
		i.emitTyping(realtime.EventStopTyping, receiver)
	}
}

func (i *Inbox) emitTyping(event string, receiver int) {
	if i.emit == nil {
		return
	}
	payload := model.TypingEvent{ReceiverID: receiver, SenderID: i.me}
	if err := i.emit.Emit(event, payload); err != nil {
		i.log.WithError(err).Warnf("emit %s", event)
	}
}

// Attachment is a file picked for upload.
type Attachment struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

type Outgoing struct {
	Content    string
	Attachment *Attachment
}

// Send posts a message to the open conversation. On success the server's
// echo is appended and the summaries are refreshed.
func (i *Inbox) Send(ctx context.Context, out Outgoing) (*model.Message, error) {
	req, err := i.buildRequest(out)
	if err != nil {
		return nil, err
	}

	i.mu.Lock()
	switch i.state {
	case StateUnselected:
		i.mu.Unlock()
		return nil, ErrNoConversation
	case StateLoading:
		i.mu.Unlock()
		return nil, ErrThreadLoading
	case StateSending:
		i.mu.Unlock()
		return nil, ErrSendInFlight
	}
	i.state = StateSending
	req.ReceiverID = i.selected
	seq := i.selectSeq
	wasTyping := i.cancelTypingLocked()
	i.mu.Unlock()
	i.flushTyping(wasTyping)

	msg, err := i.api.SendMessage(ctx, req)

	i.mu.Lock()
	if seq == i.selectSeq {
		i.state = StateLoaded
		if err == nil {
			i.messages = insertOrdered(i.messages, *msg)
		}
	}
	i.mu.Unlock()

	if err != nil {
		return nil, err
	}
	_ = i.RefreshConversations(ctx)
	return msg, nil
}

func (i *Inbox) buildRequest(out Outgoing) (api.SendMessageRequest, error) {
	if out.Attachment == nil {
		content := strings.TrimSpace(out.Content)
		if content == "" {
			return api.SendMessageRequest{}, ErrEmptyMessage
		}
		return api.SendMessageRequest{Type: model.MessageText, Content: content}, nil
	}

	a := out.Attachment
	if a.Size > i.maxAttach {
		return api.SendMessageRequest{}, ErrAttachmentTooLarge
	}
	ct := a.ContentType
	if ct == "" {
		ct = mime.TypeByExtension(filepath.Ext(a.Name))
	}
	msgType := model.MessageFile
	if strings.HasPrefix(ct, "image/") {
		msgType = model.MessageImage
	}
	return api.SendMessageRequest{
		Type:    msgType,
		Content: strings.TrimSpace(out.Content),
		File:    &api.Upload{Name: a.Name, ContentType: ct, Size: a.Size, Body: a.Body},
	}, nil
}

func (i *Inbox) handleNewMessage(data json.RawMessage) {
	var m model.Message
	if err := json.Unmarshal(data, &m); err != nil {
		i.log.WithError(err).Warn("dropping malformed message")
		return
	}

	i.mu.Lock()
	if i.selected != 0 && m.Counterpart(i.me) == i.selected {
		i.messages = insertOrdered(i.messages, m)
	}
	i.mu.Unlock()

	i.refreshInBackground()
}

func (i *Inbox) handleTyping(typing bool) realtime.HandlerFunc {
	return func(data json.RawMessage) {
		var ev model.TypingEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			i.log.WithError(err).Warn("dropping malformed typing event")
			return
		}
		i.mu.Lock()
		defer i.mu.Unlock()
		if typing {
			i.typing[ev.SenderID] = true
		} else {
			delete(i.typing, ev.SenderID)
		}
	}
}

func (i *Inbox) handleStatus(data json.RawMessage) {
	var ev model.StatusEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		i.log.WithError(err).Warn("dropping malformed status event")
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if ev.Status == model.PresenceOnline {
		i.online[ev.UserID] = true
	} else {
		delete(i.online, ev.UserID)
	}
}

func (i *Inbox) handleMessagesRead(json.RawMessage) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for k := range i.messages {
		i.messages[k].Read = true
	}
}

// insertOrdered adds m keeping msgs sorted by CreatedAt, arrival order on
// ties. A message whose id is already present is ignored.
func insertOrdered(msgs []model.Message, m model.Message) []model.Message {
	for _, existing := range msgs {
		if existing.ID == m.ID {
			return msgs
		}
	}
	at := len(msgs)
	for at > 0 && msgs[at-1].CreatedAt.After(m.CreatedAt) {
		at--
	}
	msgs = append(msgs, model.Message{})
	copy(msgs[at+1:], msgs[at:])
	msgs[at] = m
	return msgs
}

// Thread is a render snapshot of the open conversation.
type Thread struct {
	State             ThreadState     `json:"state"`
	CounterpartID     int             `json:"counterpart_id,omitempty"`
	Messages          []model.Message `json:"messages"`
	CounterpartTyping bool            `json:"counterpart_typing"`
	CounterpartOnline bool            `json:"counterpart_online"`
}

func (i *Inbox) Thread() Thread {
	i.mu.Lock()
	defer i.mu.Unlock()
	return Thread{
		State:             i.state,
		CounterpartID:     i.selected,
		Messages:          append([]model.Message{}, i.messages...),
		CounterpartTyping: i.selected != 0 && i.typing[i.selected],
		CounterpartOnline: i.selected != 0 && i.online[i.selected],
	}
}

func (i *Inbox) Conversations() []model.Conversation {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]model.Conversation{}, i.conversations...)
}

func (i *Inbox) IsOnline(userID int) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.online[userID]
}

// UnreadMessages is the last fetched server-side unread total.
func (i *Inbox) UnreadMessages() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.unreadTotal
}
