package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meshledger/meshledger/peers"
)

// NewPeerCmd returns the "peer" command group for administering the
// consensus whitelist out of band, the way an operator would before a node
// ever joins a mesh.
func NewPeerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Manage the consensus whitelist",
	}
	cmd.AddCommand(newPeerAddCmd(), newPeerRemoveCmd(), newPeerListCmd())
	return cmd
}

func newPeerAddCmd() *cobra.Command {
	var moniker string

	cmd := &cobra.Command{
		Use:   "add <public-key-hex>",
		Short: "Add a peer to the whitelist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := peers.NewJSONPeerStore(_config.Node.DataDir)

			whitelist, err := store.Load()
			if err != nil {
				return fmt.Errorf("loading whitelist: %w", err)
			}

			peer, err := peers.NewPeer(args[0], moniker)
			if err != nil {
				return fmt.Errorf("building peer: %w", err)
			}

			whitelist.AddPeer(peer)

			if err := store.Save(whitelist); err != nil {
				return fmt.Errorf("saving whitelist: %w", err)
			}

			fmt.Printf("Added node id %s to the whitelist at %s\n", peer.NodeID, _config.Node.WhitelistFile())
			return nil
		},
	}
	cmd.Flags().StringVar(&moniker, "moniker", "", "Optional display name for the peer")
	return cmd
}

func newPeerRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <node-id>",
		Short: "Remove a peer from the whitelist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := peers.NewJSONPeerStore(_config.Node.DataDir)

			whitelist, err := store.Load()
			if err != nil {
				return fmt.Errorf("loading whitelist: %w", err)
			}

			whitelist.RemovePeer(args[0])

			if err := store.Save(whitelist); err != nil {
				return fmt.Errorf("saving whitelist: %w", err)
			}

			fmt.Printf("Removed %s\n", args[0])
			return nil
		},
	}
}

func newPeerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the current whitelist",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := peers.NewJSONPeerStore(_config.Node.DataDir)

			whitelist, err := store.Load()
			if err != nil {
				return fmt.Errorf("loading whitelist: %w", err)
			}

			for _, p := range whitelist.Peers() {
				fmt.Printf("%s  %s  %s\n", p.NodeID, p.Moniker, p.PubKeyHex)
			}
			return nil
		},
	}
}
