package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meshledger/meshledger/version"
)

var (
	_config = NewDefaultCLIConfig()
	datadir *string
)

func init() {
	cobra.OnInitialize(initConfig)

	datadir = RootCmd.PersistentFlags().StringP("datadir", "d", _config.Node.DataDir, "Top-level directory for configuration and data")
	RootCmd.PersistentFlags().String("log", _config.Node.LogLevel, "debug, info, warn, error, fatal, panic")
	RootCmd.PersistentFlags().String("moniker", _config.Node.Moniker, "Optional display name for this node")

	RootCmd.AddCommand(
		NewKeygenCmd(),
		NewRunCmd(),
		NewPeerCmd(),
		NewVersionCmd(),
	)
}

func initConfig() {
	viper.AddConfigPath(*datadir)
	viper.SetConfigName("meshledger")

	viper.BindPFlags(RootCmd.PersistentFlags())

	if err := viper.ReadInConfig(); err == nil {
		_, _ = fmt.Fprintf(os.Stderr, "using config file: %s\n", viper.ConfigFileUsed())
	}

	if err := viper.Unmarshal(_config); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "reading configuration: %s\n", err)
	}

	_config.Node.SetDataDir(*datadir)
}

// RootCmd is the root command for the meshledger node binary.
var RootCmd = &cobra.Command{
	Use:              "meshledger",
	Short:            "Peer-to-peer file sharing over a permissioned, leader-rotated ledger",
	Version:          version.Version,
	TraverseChildren: true,
}
