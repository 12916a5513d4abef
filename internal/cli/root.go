// Package cli is the unigo command tree.
package cli

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"unigo-console/internal/config"
	"unigo-console/internal/session"
)

// app carries what every subcommand shares once the root has run.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	out     io.Writer
	// memory backs session.store=memory for the life of the process.
	memory *session.MemoryStore
}

func New() *cobra.Command {
	return newRoot(&app{memory: session.NewMemoryStore()})
}

func newRoot(a *app) *cobra.Command {
	a.v = viper.New()
	a.out = os.Stdout

	cmd := &cobra.Command{
		Use:           "unigo",
		Short:         "unigo admin console",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")
			setupLogging(verbose)

			if err := config.Init(a.v, a.cfgFile); err != nil {
				return err
			}
			cfg, err := config.Load(a.v)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.out = cmd.OutOrStdout()
			return nil
		},
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "make output more verbose")
	cmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is unigo.yaml)")
	cmd.PersistentFlags().String("session-key", "", "token store key, for several admins on one store")
	a.v.BindPFlag("session.key", cmd.PersistentFlags().Lookup("session-key"))

	cmd.AddCommand(
		a.serveCommand(),
		a.devserverCommand(),
		a.loginCommand(),
		a.logoutCommand(),
		a.whoamiCommand(),
		a.usersCommand(),
		a.rechargeCommand(),
		a.districtsCommand(),
		a.universitiesCommand(),
		a.incidentsCommand(),
		a.loadtestCommand(),
	)
	return cmd
}

func setupLogging(verbose bool) {
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if !verbose && !isTerminal(os.Stdout) {
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		ForceColors:     true,
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
	})
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
