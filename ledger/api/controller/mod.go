// Package controller implements the initializer that serves the ledger API on
// the proxy of the node, and the commands of the participants.
//
// The participant commands do not go through the daemon. They sign the
// instructions with a local wallet and submit them to the API of a node, which
// may be remote.
package controller

import (
	"os"

	"go.dedis.ch/contest"
	"go.dedis.ch/contest/cli"
	"go.dedis.ch/contest/cli/node"
	"go.dedis.ch/contest/ledger"
	"go.dedis.ch/contest/ledger/api"
	"go.dedis.ch/contest/proxy"
	"golang.org/x/xerrors"
)

// NewController returns a new initializer of the API. It expects the ledger
// and the proxy to be injected by the previous initializers.
func NewController() node.Initializer {
	return minimal{}
}

// minimal is an initializer that registers the handlers of the ledger on the
// proxy.
//
// - implements node.Initializer
type minimal struct{}

// SetCommands implements node.Initializer. It sets the commands of the
// participants.
func (m minimal) SetCommands(builder node.Builder) {
	setClientCommands(builder, participant{out: os.Stdout})
}

// OnStart implements node.Initializer. It registers the API on the proxy.
func (m minimal) OnStart(flags cli.Flags, inj node.Injector) error {
	n, err := node.Resolve[*ledger.Node](inj)
	if err != nil {
		return xerrors.Errorf("failed to resolve ledger: %v", err)
	}

	p, err := node.Resolve[proxy.Proxy](inj)
	if err != nil {
		return xerrors.Errorf("failed to resolve proxy: %v", err)
	}

	api.NewService(n).Register(p)

	contest.Logger.Info().Stringer("addr", p.GetAddr()).Msg("ledger api registered")

	return nil
}

// OnStop implements node.Initializer.
func (m minimal) OnStop(node.Injector) error {
	return nil
}
