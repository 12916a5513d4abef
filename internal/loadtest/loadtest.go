// Package loadtest drives pairs of synthetic accounts against a backend:
// one side sends messages over REST, the other counts the new_message
// pushes it receives on its realtime channel.
package loadtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"unigo-console/internal/api"
	"unigo-console/internal/model"
	"unigo-console/internal/realtime"
	"unigo-console/internal/session"
)

type Options struct {
	BaseURL   string
	SocketURL string
	Pairs     int
	Messages  int
	// Interval is the pause between two sends of one pair.
	Interval time.Duration
	// Drain bounds how long to wait for pushes after the last send.
	Drain  time.Duration
	Logger logrus.FieldLogger
}

type Report struct {
	Pairs     int           `json:"pairs"`
	Sent      int64         `json:"sent"`
	Failed    int64         `json:"failed"`
	Delivered int64         `json:"delivered"`
	Elapsed   time.Duration `json:"elapsed"`
}

type stats struct {
	sent, failed, delivered atomic.Int64
}

type peer struct {
	client  *api.Client
	channel *realtime.Channel
	user    *model.User
}

func Run(ctx context.Context, opts Options) (Report, error) {
	if opts.Pairs <= 0 || opts.Messages <= 0 {
		return Report{}, errors.New("loadtest: pairs and messages must be positive")
	}
	if opts.Drain <= 0 {
		opts.Drain = 5 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithFields(logrus.Fields{"pairs": opts.Pairs, "messages": opts.Messages}).Info("starting load test")

	st := &stats{}
	start := time.Now()
	run := uuid.NewString()[:8]

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.Pairs; i++ {
		pairID := i
		g.Go(func() error {
			return runPair(gctx, opts, st, fmt.Sprintf("%s-%d", run, pairID))
		})
	}
	err := g.Wait()

	rep := Report{
		Pairs:     opts.Pairs,
		Sent:      st.sent.Load(),
		Failed:    st.failed.Load(),
		Delivered: st.delivered.Load(),
		Elapsed:   time.Since(start),
	}
	log.WithFields(logrus.Fields{
		"sent":      rep.Sent,
		"failed":    rep.Failed,
		"delivered": rep.Delivered,
		"elapsed":   rep.Elapsed,
	}).Info("load test complete")
	return rep, err
}

func runPair(ctx context.Context, opts Options, st *stats, name string) error {
	sender, err := join(ctx, opts, "a-"+name)
	if err != nil {
		return err
	}
	defer sender.channel.Close()
	receiver, err := join(ctx, opts, "b-"+name)
	if err != nil {
		return err
	}
	defer receiver.channel.Close()

	var got atomic.Int64
	receiver.channel.On(realtime.EventNewMessage, func(data json.RawMessage) {
		var m model.Message
		if json.Unmarshal(data, &m) == nil && m.Sender.ID == sender.user.ID {
			got.Add(1)
			st.delivered.Add(1)
		}
	})
	// A typing event addressed to itself comes back once the server has
	// registered the connection.
	ready := make(chan struct{}, 1)
	receiver.channel.On(realtime.EventUserTyping, func(json.RawMessage) {
		select {
		case ready <- struct{}{}:
		default:
		}
	})
	if err := receiver.channel.Connect(ctx); err != nil {
		return errors.Wrapf(err, "connect %s", receiver.user.Email)
	}
	if err := receiver.channel.Emit(realtime.EventTyping, model.TypingEvent{ReceiverID: receiver.user.ID}); err != nil {
		return err
	}
	select {
	case <-ready:
	case <-time.After(opts.Drain):
		return errors.Errorf("%s: socket not registered after %s", receiver.user.Email, opts.Drain)
	case <-ctx.Done():
		return ctx.Err()
	}

	var sent int64
	for i := 0; i < opts.Messages; i++ {
		_, err := sender.client.SendMessage(ctx, api.SendMessageRequest{
			ReceiverID: receiver.user.ID,
			Content:    fmt.Sprintf("load test message %d from pair %s", i, name),
		})
		if err != nil {
			st.failed.Add(1)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		sent++
		st.sent.Add(1)
		if opts.Interval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.Interval):
			}
		}
	}

	deadline := time.NewTimer(opts.Drain)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for got.Load() < sent {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-tick.C:
		}
	}
	return nil
}

// join registers a throwaway account and prepares its channel. The
// channel is not connected yet so handlers can be added first.
func join(ctx context.Context, opts Options, name string) (*peer, error) {
	creds := session.NewCredentials(session.NewMemoryStore(), name)
	client := api.NewClient(api.Options{BaseURL: opts.BaseURL}, creds)
	res, err := client.Register(ctx, model.RegisterRequest{
		FirstName: "Load",
		LastName:  name,
		Email:     name + "@loadtest.unigo.sn",
		Password:  "password123",
		Role:      model.RolePassenger,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "register %s", name)
	}
	if err := creds.Save(ctx, res.Token); err != nil {
		return nil, err
	}
	ch := realtime.New(realtime.Options{URL: opts.SocketURL, Tokens: creds, Logger: opts.Logger})
	return &peer{client: client, channel: ch, user: &res.User}, nil
}
