// Command syncmeshd is a thin bootstrapper: it loads a cluster manifest,
// builds a Cluster with syncmesh.ClusterBuilder, starts the listener, and
// serves Prometheus metrics. It exists purely to exercise the builder API
// from a real entrypoint; the core never imports this package.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jabolina/syncmesh/pkg/syncmesh"
	"github.com/jabolina/syncmesh/pkg/syncmesh/config"
	"github.com/jabolina/syncmesh/pkg/syncmesh/types"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "syncmeshd",
		Short: "syncmeshd runs a syncmesh cluster node",
	}
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var configPath string
	var envPath string
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "start a cluster node from a manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(configPath, envPath, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "cluster.yaml", "path to the cluster YAML manifest")
	cmd.Flags().StringVar(&envPath, "env", ".env", "path to an optional .env file")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve /metrics on")
	return cmd
}

func runNode(configPath, envPath, metricsAddr string) error {
	if err := config.LoadEnv(envPath); err != nil {
		return fmt.Errorf("loading env: %w", err)
	}
	cfg, err := config.LoadClusterConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading cluster config: %w", err)
	}
	policy, err := cfg.ResolvePolicy()
	if err != nil {
		return err
	}

	builder := syncmesh.NewClusterBuilder(types.NodeId(cfg.Node.Id), cfg.Node.ListenAddress.String()).
		WithSelfAddress(cfg.Node.ListenAddress).
		WithSharedKey(cfg.Node.SharedKey).
		WithKeyChain(cfg.Node.KeyChain).
		WithDefaultPolicy(policy)

	for _, peer := range cfg.Peers {
		builder = builder.WithPeer(types.NodeId(peer.Id), peer.Address)
	}

	cluster, err := builder.Get()
	if err != nil {
		return fmt.Errorf("building cluster: %w", err)
	}
	if err := cluster.Start(); err != nil {
		return fmt.Errorf("starting cluster: %w", err)
	}
	defer cluster.Stop()

	go serveMetrics(metricsAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	_ = http.ListenAndServe(addr, mux)
}
