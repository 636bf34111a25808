// Package main implements the node of the contest ledger.
//
// Unix example:
//
//	# Start a node and create the mint and the quiz.
//	contest --config /tmp/node start --listen 127.0.0.1:8080
//	contest --config /tmp/node mint init
//	contest --config /tmp/node mint transfer
//	contest --config /tmp/node quiz init
//
//	# Take part with a local wallet.
//	contest client submit --key alice.key --title "Asturias"
//	contest client vote --key bob.key --submission <address>
//	contest client quiz --key bob.key --total 5 --correct 4
//
// The environment variables can be set in a .env file of the working
// directory.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"go.dedis.ch/contest"
	"go.dedis.ch/contest/cli/node"
	apictl "go.dedis.ch/contest/ledger/api/controller"
	ledgerctl "go.dedis.ch/contest/ledger/controller"
	proxyctl "go.dedis.ch/contest/proxy/http/controller"
)

func main() {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		contest.Logger.Warn().Err(err).Msg("failed to load .env")
	}

	err = run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

type config struct {
	Channel chan os.Signal
	Writer  io.Writer
}

func run(args []string) error {
	return runWithCfg(args, config{Writer: os.Stdout})
}

func runWithCfg(args []string, cfg config) error {
	builder := node.NewBuilderWithCfg(
		cfg.Channel,
		cfg.Writer,
		proxyctl.NewController(),
		ledgerctl.NewController(),
		apictl.NewController(),
	)

	app := builder.Build()

	return app.Run(args)
}
