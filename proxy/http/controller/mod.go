// Package controller implements the initializer that serves the HTTP proxy of
// a node.
package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.dedis.ch/contest"
	"go.dedis.ch/contest/cli"
	"go.dedis.ch/contest/cli/node"
	"go.dedis.ch/contest/proxy"
	"go.dedis.ch/contest/proxy/http"
	"golang.org/x/xerrors"
)

const (
	defaultAddr = "127.0.0.1:8080"
	defaultProm = "/metrics"
)

var (
	defaultRetry = 10
	proxyFac     = func(addr string, opts ...http.Option) proxy.Proxy { return http.NewHTTP(addr, opts...) }
)

// NewController returns a new initializer of the proxy.
func NewController() node.Initializer {
	return minimal{}
}

// minimal is an initializer that starts the proxy along with the node and
// serves the Prometheus metrics.
//
// - implements node.Initializer
type minimal struct{}

// SetCommands implements node.Initializer. It sets the flags of the server.
func (m minimal) SetCommands(builder node.Builder) {
	builder.SetStartFlags(
		cli.StringFlag{
			Name:   "listen",
			Usage:  "the address of the http server (default " + defaultAddr + ")",
			EnvVar: "CONTEST_LISTEN",
		},
		cli.StringSliceFlag{
			Name:   "cors-origin",
			Usage:  "an origin allowed to make cross-origin requests, all by default",
			EnvVar: "CONTEST_CORS_ORIGINS",
		},
		cli.StringFlag{
			Name:   "metrics",
			Usage:  "the path of the prometheus handler (default " + defaultProm + ")",
			EnvVar: "CONTEST_METRICS",
		},
	)

	cmd := builder.SetCommand("proxy")
	cmd.SetDescription("manage the http server")

	sub := cmd.SetSubCommand("info")
	sub.SetDescription("print the address of the http server")
	sub.SetAction(builder.MakeAction(infoAction{}))
}

// OnStart implements node.Initializer. It creates, starts, and injects the
// proxy.
func (m minimal) OnStart(flags cli.Flags, inj node.Injector) error {
	addr := flags.String("listen")
	if addr == "" {
		addr = defaultAddr
	}

	var opts []http.Option

	origins := flags.StringSlice("cors-origin")
	if len(origins) > 0 {
		opts = append(opts, http.WithOrigins(origins...))
	}

	srv := proxyFac(addr, opts...)

	path := flags.String("metrics")
	if path == "" {
		path = defaultProm
	}

	registerCollectors()
	srv.RegisterHandler("GET", path, promhttp.Handler().ServeHTTP)

	go srv.Listen()

	err := waitListen(srv, defaultRetry)
	if err != nil {
		return err
	}

	inj.Inject(srv)

	contest.Logger.Info().Stringer("addr", srv.GetAddr()).Str("metrics", path).Msg("proxy started")

	return nil
}

// OnStop implements node.Initializer. It stops the http server.
func (m minimal) OnStop(inj node.Injector) error {
	srv, err := node.Resolve[proxy.Proxy](inj)
	if err != nil {
		return xerrors.Errorf("failed to resolve proxy: %v", err)
	}

	srv.Stop()

	return nil
}

func registerCollectors() {
	for _, c := range contest.PromCollectors {
		err := prometheus.DefaultRegisterer.Register(c)
		if err != nil {
			contest.Logger.Warn().Err(err).Msg("failed to register collector")
		}
	}
}
