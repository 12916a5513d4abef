package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"unigo-console/internal/clock"
	"unigo-console/internal/console"
	"unigo-console/internal/inbox"
	"unigo-console/internal/notification"
	"unigo-console/internal/realtime"
)

const shutdownTimeout = 5 * time.Second

func (a *app) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "keep the signed-in admin's notifications and inbox in sync and serve them to the console",
		RunE:  a.runServe,
	}
	cmd.Flags().String("addr", "", "console listen address")
	a.v.BindPFlag("console.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func (a *app) runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, me, err := a.signedIn(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	log := logrus.WithField("user_id", me.ID)

	// 1. Notification channel
	toasts := notification.NewToastQueue(clock.Real{}, a.cfg.Notification.ToastTTL)
	feed := notification.NewFeed(c.client, toasts, notification.Options{
		SeedLimit: a.cfg.Notification.SeedLimit,
		Logger:    logrus.StandardLogger(),
	})
	feedCh := a.channel(c.creds)
	defer feedCh.Close()
	feed.Attach(feedCh, me.ID)

	// 2. Conversation channel
	inboxCh := a.channel(c.creds)
	box := inbox.New(c.client, inboxCh, me.ID, inbox.Options{
		TypingDebounce:     a.cfg.Inbox.TypingDebounce,
		MaxAttachmentBytes: a.cfg.Inbox.MaxAttachmentBytes,
		Logger:             logrus.StandardLogger(),
	})
	// The channel stops dispatching before the inbox waits on its refreshes.
	defer func() {
		inboxCh.Close()
		box.Close()
	}()
	box.Bind(inboxCh)
	inboxCh.OnConnect(func() {
		if err := inboxCh.Emit(realtime.EventUserOnline, me.ID); err != nil {
			log.WithError(err).Warn("announce presence")
		}
	})

	// 3. Connect and seed
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return errors.Wrap(feedCh.Connect(gctx), "notification channel") })
	g.Go(func() error { return errors.Wrap(inboxCh.Connect(gctx), "conversation channel") })
	g.Go(func() error {
		feed.Seed(gctx)
		return nil
	})
	g.Go(func() error {
		if err := box.RefreshConversations(gctx); err != nil {
			log.WithError(err).Warn("initial conversations")
		}
		return nil
	})
	g.Go(func() error {
		if _, err := box.RefreshUnreadCount(gctx); err != nil {
			log.WithError(err).Warn("initial unread count")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("channels connected")

	// 4. Console API
	srv := &http.Server{
		Addr: a.cfg.Console.Addr,
		Handler: console.New(console.Deps{
			Session:        c.provider,
			Feed:           feed,
			Toasts:         toasts,
			Inbox:          box,
			Users:          c.client,
			Logger:         logrus.StandardLogger(),
			MaxUploadBytes: a.cfg.Inbox.MaxAttachmentBytes,
		}).Routes(),
	}
	return serveHTTP(ctx, srv)
}

// serveHTTP runs srv until ctx is done, then shuts it down gracefully.
func serveHTTP(ctx context.Context, srv *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logrus.WithField("addr", srv.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logrus.Info("signal caught. shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
