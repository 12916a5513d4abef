package devserver

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"unigo-console/internal/model"
	"unigo-console/internal/realtime"
)

const relayChannel = "unigo-devserver-events"

var errHubStopped = errors.New("devserver: hub stopped")

// delivery is one frame routed to a user, or to everyone but Exclude when
// UserID is zero.
type delivery struct {
	UserID  int             `json:"user_id"`
	Exclude int             `json:"exclude,omitempty"`
	Frame   json.RawMessage `json:"frame"`
}

// Hub routes realtime events to connected users. Run is the only goroutine
// that touches the client set.
type Hub struct {
	clients    map[int]map[*client]bool
	announced  map[int]bool
	register   chan *client
	unregister chan *client
	online     chan *client
	deliver    chan delivery
	query      chan func()
	done       chan struct{}

	// redis relays deliveries between devserver instances when set.
	redis *redis.Client
	log   logrus.FieldLogger
}

func NewHub(rdb *redis.Client, logger logrus.FieldLogger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		clients:    make(map[int]map[*client]bool),
		announced:  make(map[int]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		online:     make(chan *client),
		deliver:    make(chan delivery, 64),
		query:      make(chan func()),
		done:       make(chan struct{}),
		redis:      rdb,
		log:        logger.WithField("component", "devserver.hub"),
	}
}

func (h *Hub) Run(ctx context.Context) {
	if h.redis != nil {
		go h.subscribeToRedis(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for _, conns := range h.clients {
				for c := range conns {
					close(c.send)
				}
			}
			h.clients = make(map[int]map[*client]bool)
			return

		case c := <-h.register:
			if h.clients[c.userID] == nil {
				h.clients[c.userID] = make(map[*client]bool)
			}
			h.clients[c.userID][c] = true

		case c := <-h.unregister:
			h.drop(c)

		case c := <-h.online:
			if _, ok := h.clients[c.userID][c]; ok && !h.announced[c.userID] {
				h.announced[c.userID] = true
				h.fanOut(h.statusDelivery(c.userID, model.PresenceOnline))
			}

		case d := <-h.deliver:
			h.fanOut(d)

		case fn := <-h.query:
			fn()
		}
	}
}

func (h *Hub) drop(c *client) {
	conns, ok := h.clients[c.userID]
	if !ok || !conns[c] {
		return
	}
	delete(conns, c)
	close(c.send)
	if len(conns) > 0 {
		return
	}
	delete(h.clients, c.userID)
	if h.announced[c.userID] {
		delete(h.announced, c.userID)
		h.fanOut(h.statusDelivery(c.userID, model.PresenceOffline))
	}
}

func (h *Hub) statusDelivery(userID int, status string) delivery {
	frame, _ := encodeFrame(realtime.EventUserStatusChanged, model.StatusEvent{UserID: userID, Status: status})
	return delivery{Exclude: userID, Frame: frame}
}

func (h *Hub) fanOut(d delivery) {
	for uid, conns := range h.clients {
		if d.UserID != 0 && uid != d.UserID {
			continue
		}
		if d.UserID == 0 && uid == d.Exclude {
			continue
		}
		for c := range conns {
			select {
			case c.send <- d.Frame:
			default:
				delete(conns, c)
				close(c.send)
			}
		}
	}
}

func encodeFrame(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", event)
	}
	return json.Marshal(realtime.Envelope{Event: event, Data: raw})
}

// Push sends event to every connection of userID.
func (h *Hub) Push(userID int, event string, data interface{}) error {
	frame, err := encodeFrame(event, data)
	if err != nil {
		return err
	}
	return h.route(delivery{UserID: userID, Frame: frame})
}

func (h *Hub) route(d delivery) error {
	if h.redis == nil {
		select {
		case h.deliver <- d:
			return nil
		case <-h.done:
			return errHubStopped
		}
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return errors.Wrap(h.redis.Publish(context.Background(), relayChannel, payload).Err(), "publish event")
}

// subscribeToRedis feeds deliveries published by any instance into Run.
func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.redis.Subscribe(ctx, relayChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var d delivery
		if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
			h.log.WithError(err).Warn("dropping malformed relay payload")
			continue
		}
		select {
		case h.deliver <- d:
		case <-ctx.Done():
			return
		}
	}
}

// Online reports whether userID has announced itself on a live connection.
func (h *Hub) Online(userID int) bool {
	res := make(chan bool, 1)
	select {
	case h.query <- func() { res <- h.announced[userID] }:
		return <-res
	case <-h.done:
		return false
	}
}

// send hands c to one of the hub's intake channels unless the hub stopped.
func (h *Hub) send(ch chan *client, c *client) {
	select {
	case ch <- c:
	case <-h.done:
	}
}
