package notification

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"unigo-console/internal/clock"
	"unigo-console/internal/model"
)

const DefaultToastTTL = 5 * time.Second

type Toast struct {
	ID             string    `json:"id"`
	NotificationID int       `json:"notification_id"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	Style          Style     `json:"style"`
	ShownAt        time.Time `json:"shown_at"`
}

// Toaster raises a transient alert for a pushed notification.
type Toaster interface {
	Show(n model.Notification)
}

// ToastQueue keeps the currently visible toasts. Each one dismisses itself
// after the TTL unless dismissed earlier.
type ToastQueue struct {
	clock clock.Clock
	ttl   time.Duration

	mu     sync.Mutex
	toasts []Toast
	timers map[string]clock.Timer
}

func NewToastQueue(c clock.Clock, ttl time.Duration) *ToastQueue {
	if c == nil {
		c = clock.Real{}
	}
	if ttl <= 0 {
		ttl = DefaultToastTTL
	}
	return &ToastQueue{clock: c, ttl: ttl, timers: make(map[string]clock.Timer)}
}

func (q *ToastQueue) Show(n model.Notification) {
	t := Toast{
		ID:             uuid.NewString(),
		NotificationID: n.ID,
		Title:          n.Title,
		Body:           Summary(n),
		Style:          StyleFor(n.Type),
		ShownAt:        q.clock.Now(),
	}

	q.mu.Lock()
	q.toasts = append(q.toasts, t)
	q.mu.Unlock()

	timer := q.clock.AfterFunc(q.ttl, func() { q.Dismiss(t.ID) })

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.indexOf(t.ID) >= 0 {
		q.timers[t.ID] = timer
	}
}

// Dismiss removes a toast. Unknown ids are ignored.
func (q *ToastQueue) Dismiss(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexOf(id)
	if i < 0 {
		return false
	}
	q.toasts = append(q.toasts[:i], q.toasts[i+1:]...)
	if timer, ok := q.timers[id]; ok {
		timer.Stop()
		delete(q.timers, id)
	}
	return true
}

func (q *ToastQueue) Active() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Toast(nil), q.toasts...)
}

func (q *ToastQueue) indexOf(id string) int {
	for i, t := range q.toasts {
		if t.ID == id {
			return i
		}
	}
	return -1
}
