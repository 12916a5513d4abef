package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"unigo-console/internal/cli"
)

func main() {
	if err := cli.New().Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
