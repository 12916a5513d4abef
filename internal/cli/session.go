package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"unigo-console/internal/api"
	"unigo-console/internal/db"
	"unigo-console/internal/model"
	"unigo-console/internal/realtime"
	"unigo-console/internal/session"
)

// conn is an api client bound to the configured token store.
type conn struct {
	creds    *session.Credentials
	client   *api.Client
	provider *session.Provider
	release  func()
}

func (c *conn) Close() { c.release() }

func (a *app) openStore(ctx context.Context) (session.TokenStore, func(), error) {
	switch a.cfg.Session.Store {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, errors.Wrap(err, "connect redis")
		}
		logrus.WithField("addr", a.cfg.Redis.Addr).Debug("connected to redis")
		return session.NewRedisStore(rdb), func() { rdb.Close() }, nil

	case "postgres":
		database, err := db.NewDatabase(ctx, a.cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := database.AutoMigrate(ctx); err != nil {
			database.Close()
			return nil, nil, err
		}
		logrus.Debug("connected to postgres")
		return session.NewPostgresStore(database), func() { database.Close() }, nil
	}
	return a.memory, func() {}, nil
}

func (a *app) connect(ctx context.Context) (*conn, error) {
	store, release, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	creds := session.NewCredentials(store, a.cfg.Session.Key)
	client := api.NewClient(api.Options{
		BaseURL:    a.cfg.API.BaseURL,
		UploadsURL: a.cfg.API.UploadsURL,
		Timeout:    a.cfg.API.Timeout,
	}, creds)
	return &conn{
		creds:    creds,
		client:   client,
		provider: session.NewProvider(client, creds, logrus.StandardLogger()),
		release:  release,
	}, nil
}

// signedIn connects and restores the stored session.
func (a *app) signedIn(ctx context.Context) (*conn, *model.User, error) {
	c, err := a.connect(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := c.provider.Restore(ctx); err != nil && !errors.Is(err, session.ErrNoSession) {
		c.Close()
		return nil, nil, err
	}
	u := c.provider.User()
	if u == nil {
		c.Close()
		return nil, nil, errors.New("not signed in, run unigo login")
	}
	return c, u, nil
}

func (a *app) channel(tokens realtime.TokenSource) *realtime.Channel {
	return realtime.New(realtime.Options{
		URL:            a.cfg.Realtime.URL,
		Tokens:         tokens,
		ReconnectDelay: a.cfg.Realtime.ReconnectDelay,
		Logger:         logrus.StandardLogger(),
	})
}

func (a *app) loginCommand() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "sign in and store the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("UNIGO_PASSWORD")
			}
			if email == "" || password == "" {
				return errors.New("--email and --password (or UNIGO_PASSWORD) are required")
			}
			if a.cfg.Session.Store == "memory" {
				logrus.Warn("session.store is memory, the token will not outlive this command")
			}

			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			u, err := c.provider.Login(cmd.Context(), model.Credentials{Email: email, Password: password})
			if err != nil {
				return errors.New(api.UserMessage(err))
			}
			fmt.Fprintf(a.out, "signed in as %s (%s)\n", u.FullName(), u.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

func (a *app) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "forget the stored session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			return c.provider.Logout(cmd.Context())
		},
	}
}

func (a *app) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "show the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, u, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			fmt.Fprintf(a.out, "%d\t%s\t%s\t%s\t%s\n", u.ID, u.FullName(), u.Email, u.Role, u.Status)
			if exp, ok := c.provider.ExpiresAt(); ok {
				fmt.Fprintf(a.out, "token expires %s\n", exp.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}
