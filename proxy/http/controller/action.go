package controller

import (
	"fmt"
	"time"

	"go.dedis.ch/contest/cli/node"
	"go.dedis.ch/contest/proxy"
	"golang.org/x/xerrors"
)

var retryDelay = 100 * time.Millisecond

// infoAction is an action to print the address of the server.
//
// - implements node.ActionTemplate
type infoAction struct{}

// Execute implements node.ActionTemplate. It prints the address the server is
// listening on.
func (a infoAction) Execute(ctx node.Context) error {
	srv, err := node.Resolve[proxy.Proxy](ctx.Injector)
	if err != nil {
		return xerrors.Errorf("failed to resolve proxy: %v", err)
	}

	addr := srv.GetAddr()
	if addr == nil {
		return xerrors.New("proxy is not listening")
	}

	fmt.Fprintf(ctx.Out, "http://%s", addr)

	return nil
}

// waitListen waits for the server to listen. The log of the server informs
// the user when it fails.
func waitListen(srv proxy.Proxy, retry int) error {
	for i := 0; i < retry && srv.GetAddr() == nil; i++ {
		time.Sleep(retryDelay)
	}

	if srv.GetAddr() == nil {
		return xerrors.New("failed to start proxy server")
	}

	return nil
}
