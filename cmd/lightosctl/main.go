package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/lightbitslabs/lightos-driver/pkg/cluster"
	"github.com/lightbitslabs/lightos-driver/pkg/config"
	"github.com/lightbitslabs/lightos-driver/pkg/connector"
	"github.com/lightbitslabs/lightos-driver/pkg/driver"
	"github.com/lightbitslabs/lightos-driver/pkg/log"
	"github.com/lightbitslabs/lightos-driver/pkg/metrics"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	configPath   string
	apiAddresses string
	metricsAddr  string
	logLevel     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lightosctl",
	Short: "lightosctl - LightOS volume lifecycle and attachment tool",
	Long: `lightosctl drives the lifecycle of block volumes and snapshots on a
LightOS storage cluster and negotiates host attachment over NVMe/TCP.

It speaks the cluster control-plane API directly: create, delete, extend
and clone volumes, manage snapshots, and produce the connection
descriptors the local block subsystem attaches with.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log.Init(log.Config{Level: log.Level(logLevel)})
		if metricsAddr != "" {
			go func() {
				if err := http.ListenAndServe(metricsAddr, metrics.Handler()); err != nil {
					log.Errorf("metrics listener failed", err)
				}
			}()
		}
		return nil
	},
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"lightosctl version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&apiAddresses, "api-addresses", "", "Comma-separated cluster API addresses (overrides config)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the command runs")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	// Add subcommands
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(volumeCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(attachCmd)
	rootCmd.AddCommand(detachCmd)
}

// loadConfig assembles the effective configuration from file and flags.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.New()
	}

	if apiAddresses != "" {
		cfg.APIAddresses = config.ParseAddressList(apiAddresses)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newDriver wires config, cluster client and host connector, and runs
// setup so every subcommand starts from a connected driver.
func newDriver(ctx context.Context) (*driver.Driver, *cluster.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	client, err := cluster.New(cfg)
	if err != nil {
		return nil, nil, err
	}

	conn := connector.NewHostConnector(cfg.HostNQNPath, cfg.DiscoveryClientEndpoint)

	drv, err := driver.New(cfg, client, conn, nil)
	if err != nil {
		return nil, nil, err
	}

	if err := drv.DoSetup(ctx); err != nil {
		return nil, nil, err
	}
	return drv, client, nil
}

// Cluster commands
var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Inspect the storage cluster",
}

var clusterInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show cluster identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		drv, _, err := newDriver(cmd.Context())
		if err != nil {
			return err
		}

		info := drv.ClusterInfo()
		fmt.Printf("Cluster UUID:  %s\n", info.UUID)
		fmt.Printf("Subsystem NQN: %s\n", info.SubsystemNQN)
		return nil
	},
}

var clusterNodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List cluster nodes and their NVMe endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, client, err := newDriver(cmd.Context())
		if err != nil {
			return err
		}

		nodes, err := client.ListNodes(cmd.Context())
		if err != nil {
			return err
		}
		for _, node := range nodes {
			fmt.Printf("%s  %s\n", node.UUID, node.NVMeEndpoint)
		}
		return nil
	},
}

var clusterNodeCmd = &cobra.Command{
	Use:   "node UUID",
	Short: "Show one cluster node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, client, err := newDriver(cmd.Context())
		if err != nil {
			return err
		}

		node, found, err := client.GetNode(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("node %s not found", args[0])
		}
		fmt.Printf("%s  %s\n", node.UUID, node.NVMeEndpoint)
		return nil
	},
}

var clusterCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the pre-flight setup health check",
	RunE: func(cmd *cobra.Command, args []string) error {
		drv, _, err := newDriver(cmd.Context())
		if err != nil {
			return err
		}

		if err := drv.CheckForSetupError(); err != nil {
			return err
		}
		fmt.Println("✓ Setup check passed")
		return nil
	},
}

func init() {
	clusterCmd.AddCommand(clusterInfoCmd)
	clusterCmd.AddCommand(clusterNodesCmd)
	clusterCmd.AddCommand(clusterNodeCmd)
	clusterCmd.AddCommand(clusterCheckCmd)
}
