package cli

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"unigo-console/internal/loadtest"
)

func (a *app) loadtestCommand() *cobra.Command {
	opts := loadtest.Options{}
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "exercise a backend with pairs of synthetic accounts exchanging messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.BaseURL = a.cfg.API.BaseURL
			opts.SocketURL = a.cfg.Realtime.URL
			opts.Logger = logrus.StandardLogger()

			rep, err := loadtest.Run(cmd.Context(), opts)
			fmt.Fprintf(a.out, "pairs=%d sent=%d failed=%d delivered=%d elapsed=%s\n",
				rep.Pairs, rep.Sent, rep.Failed, rep.Delivered, rep.Elapsed.Round(time.Millisecond))
			return err
		},
	}
	cmd.Flags().IntVar(&opts.Pairs, "pairs", 50, "sender/receiver pairs")
	cmd.Flags().IntVar(&opts.Messages, "messages", 20, "messages per pair")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 10*time.Millisecond, "pause between sends")
	cmd.Flags().DurationVar(&opts.Drain, "drain", 5*time.Second, "wait for outstanding pushes")
	return cmd
}
