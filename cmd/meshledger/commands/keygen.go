package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meshledger/meshledger/crypto"
	"github.com/meshledger/meshledger/crypto/keys"
)

// NewKeygenCmd returns the command that generates a new node identity.
func NewKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new node key pair",
		RunE:  keygen,
	}
}

func keygen(cmd *cobra.Command, args []string) error {
	keyfile := _config.Node.Keyfile()

	if _, err := os.Stat(keyfile); err == nil {
		return fmt.Errorf("a key already lives at %s", keyfile)
	}

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}

	if err := keys.NewSimpleKeyfile(keyfile).WriteKey(kp.Private); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}

	fmt.Printf("Private key saved to: %s\n", keyfile)
	fmt.Printf("Node ID:   %s\n", kp.ID)
	fmt.Printf("Public key: %s\n", kp.PublicKeyHex())
	fmt.Println("\nShare the node ID and public key above with an operator so they can")
	fmt.Println("add this node to the whitelist with 'meshledger peer add'.")

	return nil
}
