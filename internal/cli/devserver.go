package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"unigo-console/internal/devserver"
	"unigo-console/internal/model"
)

func (a *app) devserverCommand() *cobra.Command {
	var relay bool
	var admin string
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "run the in-memory development backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := devserver.Options{
				JWTSecret: a.cfg.Devserver.JWTSecret,
				Logger:    logrus.StandardLogger(),
			}
			if relay {
				rdb := redis.NewClient(&redis.Options{Addr: a.cfg.Redis.Addr, Password: a.cfg.Redis.Password})
				if err := rdb.Ping(ctx).Err(); err != nil {
					return errors.Wrap(err, "connect redis")
				}
				defer rdb.Close()
				opts.Redis = rdb
				logrus.WithField("addr", a.cfg.Redis.Addr).Info("relaying events through redis")
			}

			srv := devserver.New(opts)
			if admin != "" {
				if err := seedAdmin(srv, admin); err != nil {
					return err
				}
			}

			hubCtx, stopHub := context.WithCancel(context.Background())
			defer stopHub()
			go srv.Run(hubCtx)

			return serveHTTP(ctx, &http.Server{Addr: a.cfg.Devserver.Addr, Handler: srv.Routes()})
		},
	}
	cmd.Flags().String("addr", "", "listen address")
	a.v.BindPFlag("devserver.addr", cmd.Flags().Lookup("addr"))
	cmd.Flags().BoolVar(&relay, "redis", false, "relay realtime events through redis pub/sub")
	cmd.Flags().StringVar(&admin, "admin", "", "seed an admin account, as email:password")
	return cmd
}

func seedAdmin(srv *devserver.Server, account string) error {
	email, password, ok := strings.Cut(account, ":")
	if !ok || email == "" || password == "" {
		return errors.New("--admin expects email:password")
	}
	_, err := srv.Auth().Register(model.RegisterRequest{
		FirstName: "Admin",
		Email:     email,
		Password:  password,
		Role:      model.RoleAdmin,
	})
	if err != nil {
		return errors.Wrap(err, "seed admin")
	}
	logrus.WithField("email", email).Info("admin account seeded")
	return nil
}
