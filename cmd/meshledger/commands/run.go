package commands

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meshledger/meshledger/crypto"
	"github.com/meshledger/meshledger/events"
	"github.com/meshledger/meshledger/ledger"
	"github.com/meshledger/meshledger/node"
	"github.com/meshledger/meshledger/peers"
	"github.com/meshledger/meshledger/service"
)

// NewRunCmd returns the command that starts a meshledger node.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a node",
		RunE:  run,
	}
	addRunFlags(cmd)
	return cmd
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("listen", "l", _config.Node.BindAddr, "Listen IP:Port for direct peer connections")
	cmd.Flags().StringP("advertise", "a", _config.Node.AdvertiseAddr, "Advertise IP:Port, when different from --listen")
	cmd.Flags().String("rendezvous", _config.Node.RendezvousURL, "Rendezvous service WebSocket URL")

	cmd.Flags().Bool("no-service", _config.Node.NoService, "Disable the read-only HTTP status API")
	cmd.Flags().StringP("service-listen", "s", _config.Node.ServiceAddr, "Listen IP:Port for the HTTP status API")

	cmd.Flags().Duration("dial-timeout", _config.Node.DialTimeout, "Recorded in the node config; outbound peer dials use a fixed 10s timeout")
	cmd.Flags().Int("min-votes", _config.Node.MinVotes, "Floor on approvals required to commit a block")
}

func run(cmd *cobra.Command, args []string) error {
	if err := bindFlagsLoadViper(cmd); err != nil {
		return err
	}

	conf := &_config.Node
	logger := conf.Logger()

	keyStore := crypto.NewKeyStore(conf.Keyfile())

	keyPair, err := keyStore.LoadOrCreate()
	if err != nil {
		return fmt.Errorf("loading node identity: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"node_id":        keyPair.ID,
		"listen":         conf.BindAddr,
		"advertise":      conf.AdvertiseAddr,
		"rendezvous":     conf.RendezvousURL,
		"service_listen": conf.ServiceAddr,
		"no_service":     conf.NoService,
		"min_votes":      conf.MinVotes,
		"datadir":        conf.DataDir,
	}).Info("starting node")

	peerStore := peers.NewJSONPeerStore(conf.DataDir)

	whitelist, err := peerStore.Load()
	if err != nil {
		return fmt.Errorf("loading whitelist: %w", err)
	}

	logger.WithField("count", whitelist.Len()).Info("loaded whitelist")

	emitter := events.NewEmitter()
	emitter.Subscribe(func(ev events.Event) {
		logger.WithField("event", ev.Name).Debug(ev.Data)
	})

	n, err := node.NewNode(conf, keyPair, whitelist, peerStore, ledger.NoopBlockSink{}, emitter)
	if err != nil {
		return fmt.Errorf("creating node: %w", err)
	}

	if !conf.NoService {
		statusServer := service.NewService(conf.ServiceAddr, n, logger)
		go statusServer.Serve()
	}

	return n.Run()
}

// bindFlagsLoadViper binds this command's flags into viper, then
// unmarshals the merged flag/config-file values into _config.
func bindFlagsLoadViper(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	_config.Node.SetDataDir(*datadir)

	return nil
}
