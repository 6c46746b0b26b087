// arenactl is the command-line client for the arena daemon.
//
// Usage:
//
//	arenactl keygen <file>                 - Write a new keypair file
//	arenactl create-mint --metadata <file> - Create the reward mint (admin)
//	arenactl new-feed --player <addr>      - Create an oracle feed
//	arenactl init-player --feed <addr>     - Create the player for --key
//	arenactl attack --feed <addr>          - Request randomness for an attack
//	arenactl kill                          - Kill an enemy
//	arenactl heal                          - Burn one reward unit to heal
//	arenactl transfer <addr> <amount>      - Send reward tokens in base units
//	arenactl status [addr]                 - Show health and balance
//	arenactl watch                         - Stream notifications
//
// Global flags:
//
//	--addr <host:port> - Daemon gRPC address (default: 127.0.0.1:50051)
//	--key <file>       - Keypair file used to sign requests
//	--timeout <dur>    - Per-call timeout (default: 10s)
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	flagAddr    string
	flagKey     string
	flagTimeout time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "arenactl",
	Short: "arenactl - drive the gold arena from the terminal",
	Long: `arenactl signs and sends arena instructions to a running arenad.

Examples:
  arenactl keygen ~/.goldarena/alice.key
  arenactl --key feed.key new-feed --player <alice>
  arenactl --key alice.key init-player --feed <feed>
  arenactl --key alice.key attack --feed <feed>
  arenactl watch --from 0`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", "127.0.0.1:50051", "arenad gRPC address")
	rootCmd.PersistentFlags().StringVar(&flagKey, "key", "", "keypair file used to sign requests")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 10*time.Second, "per-call timeout")

	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(createMintCmd)
	rootCmd.AddCommand(newFeedCmd)
	rootCmd.AddCommand(initPlayerCmd)
	rootCmd.AddCommand(attackCmd)
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(healCmd)
	rootCmd.AddCommand(transferCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
}
