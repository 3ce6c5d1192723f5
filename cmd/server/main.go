package main

import (
	"os"

	"fiscal-offline-go/internal/cli"

	log "github.com/sirupsen/logrus"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		log.Error(err)
		os.Exit(cli.GetExitCode(err))
	}
}
