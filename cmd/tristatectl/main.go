// cmd/tristatectl – illustrative outer caller for the state-transition
// engine: box inspection, block application, rollback, stateless tx
// validation, and wallet utilities. No HTTP server, gossip, or consensus
// lives here; those are out of scope for this engine (see SPEC_FULL.md §4.9).
//
// Examples
//   tristatectl box get <hex-id>
//   tristatectl block apply block.json
//   tristatectl rollback <hex-version>
//   tristatectl tx validate tx.json
//   tristatectl wallet new
//   tristatectl wallet sign <mnemonic> <hex-msg>
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tristate-ledger/core"
	"tristate-ledger/internal/wallet"
	"tristate-ledger/pkg/config"
)

func main() {
	root := &cobra.Command{Use: "tristatectl"}
	root.AddCommand(boxCmd())
	root.AddCommand(blockCmd())
	root.AddCommand(rollbackCmd())
	root.AddCommand(txCmd())
	root.AddCommand(walletCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openEngine() (*core.Engine, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		cfg = &config.Config{}
		cfg.Store.Dir = "./data"
	}
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(lvl)
	}
	store, err := core.OpenStore(core.StoreConfig{
		Dir:              cfg.Store.Dir,
		SnapshotInterval: cfg.Store.SnapshotInterval,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}
	return core.NewEngine(store, core.EngineConfig{ClockSkewToleranceMS: cfg.Engine.ClockSkewToleranceMS}, logger)
}

func boxCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "box"}
	get := &cobra.Command{
		Use:   "get <hex-id>",
		Short: "point read a box by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			idBytes, err := hex.DecodeString(args[0])
			if err != nil || len(idBytes) != 32 {
				return fmt.Errorf("invalid box id %q", args[0])
			}
			var id core.Hash
			copy(id[:], idBytes)
			box, ok, err := eng.ClosedBox(id)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("not found")
				return nil
			}
			fmt.Printf("%s nonce=%d\n", box.TypeTag(), box.Nonce())
			return nil
		},
	}
	cmd.AddCommand(get)
	return cmd
}

func blockCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "block"}
	apply := &cobra.Command{
		Use:   "apply <file.json>",
		Short: "apply a confirmed block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			blk, err := core.ParseBlockJSON(data)
			if err != nil {
				return err
			}
			eng, err := openEngine()
			if err != nil {
				return err
			}
			if err := eng.ApplyBlock(blk); err != nil {
				return err
			}
			fmt.Printf("applied block %s\n", blk.ID.Hex())
			return nil
		},
	}
	cmd.AddCommand(apply)
	return cmd
}

func rollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <hex-version>",
		Short: "discard all versions strictly after the given version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idBytes, err := hex.DecodeString(args[0])
			if err != nil || len(idBytes) != 32 {
				return fmt.Errorf("invalid version %q", args[0])
			}
			var version core.Hash
			copy(version[:], idBytes)
			eng, err := openEngine()
			if err != nil {
				return err
			}
			return eng.RollbackTo(version)
		},
	}
}

func txCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tx"}
	validate := &cobra.Command{
		Use:   "validate <file.json>",
		Short: "stateless semantic_validity check, usable for mempool admission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			tx, err := core.ParseTransactionJSON(data)
			if err != nil {
				return err
			}
			eng, err := openEngine()
			if err != nil {
				return err
			}
			if err := eng.SemanticValidity(tx); err != nil {
				return err
			}
			fmt.Println("semantically valid")
			return nil
		},
	}
	cmd.AddCommand(validate)
	return cmd
}

func walletCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "wallet"}

	newCmd := &cobra.Command{
		Use:   "new",
		Short: "generate a fresh wallet and print its mnemonic",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, mnemonic, err := wallet.NewRandomWallet(256)
			if err != nil {
				return err
			}
			pub, err := w.Proposition(0, 0)
			if err != nil {
				return err
			}
			out, _ := json.Marshal(map[string]string{
				"mnemonic": mnemonic,
				"pub_hex":  hex.EncodeToString(pub.Bytes()),
			})
			fmt.Println(string(out))
			return nil
		},
	}

	sign := &cobra.Command{
		Use:   "sign <mnemonic> <hex-msg>",
		Short: "derive account 0/index 0 from a mnemonic and sign a hex message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := wallet.FromMnemonic(args[0], "")
			if err != nil {
				return err
			}
			msg, err := hex.DecodeString(args[1])
			if err != nil {
				return fmt.Errorf("invalid hex message: %w", err)
			}
			sig, err := w.Sign(0, 0, msg)
			if err != nil {
				return err
			}
			fmt.Println(hex.EncodeToString(sig[:]))
			return nil
		},
	}

	cmd.AddCommand(newCmd, sign)
	return cmd
}
