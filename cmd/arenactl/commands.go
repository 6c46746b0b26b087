package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/goldarena/internal/gameserver/arenav1"
	"github.com/cory-johannsen/goldarena/internal/wallet"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen <file>",
	Short: "Write a new ed25519 keypair file and print its address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return fmt.Errorf("creating key directory: %w", err)
		}
		kp, err := wallet.Generate()
		if err != nil {
			return err
		}
		if err := kp.Save(path); err != nil {
			return err
		}
		fmt.Println(kp.Address())
		return nil
	},
}

var createMintCmd = &cobra.Command{
	Use:   "create-mint",
	Short: "Create the reward mint and its metadata (admin key)",
	Long: `Create the reward mint. The metadata file is YAML:

  name: Gold
  symbol: GOLD
  uri: https://example.com/gold.json
  mutable: true`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("metadata")
		md, err := readMetadata(path)
		if err != nil {
			return err
		}
		resp, err := signedCall(cmd.Context(), arenav1.MethodCreateMint, map[string]any{
			"name":    md.Name,
			"symbol":  md.Symbol,
			"uri":     md.URI,
			"mutable": md.Mutable,
		})
		if err != nil {
			return err
		}
		fmt.Println("Reward mint created")
		printStruct(resp)
		return nil
	},
}

var newFeedCmd = &cobra.Command{
	Use:   "new-feed",
	Short: "Create an oracle feed keyed by --key for a player",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("player")
		resp, err := signedCall(cmd.Context(), arenav1.MethodCreateFeed, map[string]any{"player": owner})
		if err != nil {
			return err
		}
		fmt.Println("Feed created")
		printStruct(resp)
		return nil
	},
}

var initPlayerCmd = &cobra.Command{
	Use:   "init-player",
	Short: "Create the player and randomness client for --key",
	RunE: func(cmd *cobra.Command, args []string) error {
		feed, _ := cmd.Flags().GetString("feed")
		resp, err := signedCall(cmd.Context(), arenav1.MethodInitPlayer, map[string]any{"feed": feed})
		if err != nil {
			return err
		}
		fmt.Println("Player initialized")
		printStruct(resp)
		return nil
	},
}

var attackCmd = &cobra.Command{
	Use:   "attack",
	Short: "Request oracle randomness for an attack round",
	RunE: func(cmd *cobra.Command, args []string) error {
		feed, _ := cmd.Flags().GetString("feed")
		resp, err := signedCall(cmd.Context(), arenav1.MethodRequestRandomness, map[string]any{"feed": feed})
		if err != nil {
			return err
		}
		fmt.Println("Randomness requested; run 'arenactl watch' to follow the result")
		printStruct(resp)
		return nil
	},
}

var killCmd = &cobra.Command{
	Use:   "kill",
	Short: "Kill an enemy, taking fixed damage",
	RunE: func(cmd *cobra.Command, args []string) error {
		return playerAction(cmd.Context(), arenav1.MethodKillEnemy)
	},
}

var healCmd = &cobra.Command{
	Use:   "heal",
	Short: "Burn one reward token to restore full health",
	RunE: func(cmd *cobra.Command, args []string) error {
		return playerAction(cmd.Context(), arenav1.MethodHeal)
	},
}

var transferCmd = &cobra.Command{
	Use:   "transfer <to> <amount>",
	Short: "Send reward tokens (base units) from --key to another player",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("amount %q: %w", args[1], err)
		}
		resp, err := signedCall(cmd.Context(), arenav1.MethodTransfer, map[string]any{
			"to":     args[0],
			"amount": strconv.FormatUint(amount, 10),
		})
		if err != nil {
			return err
		}
		printStruct(resp)
		return nil
	},
}

func playerAction(ctx context.Context, method string) error {
	resp, err := signedCall(ctx, method, map[string]any{})
	if err != nil {
		return err
	}
	printStruct(resp)
	return nil
}

var statusCmd = &cobra.Command{
	Use:   "status [player]",
	Short: "Show a player's health and reward balance",
	Long: `Show a player's health and reward balance. Without an argument the
address of --key is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var owner string
		if len(args) == 1 {
			owner = args[0]
		} else {
			key, err := loadKey()
			if err != nil {
				return err
			}
			owner = key.Address().String()
		}
		req, err := structpb.NewStruct(map[string]any{"player": owner})
		if err != nil {
			return err
		}
		resp, err := call(cmd.Context(), arenav1.MethodGetPlayer, req)
		if err != nil {
			return err
		}
		printStruct(resp)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream committed notifications until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		fields := map[string]any{}
		if client, _ := cmd.Flags().GetString("client"); client != "" {
			fields["client"] = client
		}
		if cmd.Flags().Changed("from") {
			from, _ := cmd.Flags().GetUint64("from")
			fields["from_seq"] = fmt.Sprintf("%d", from)
		}
		req, err := structpb.NewStruct(fields)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		s, err := dial()
		if err != nil {
			return err
		}
		defer s.Close()
		stream, err := s.client.Subscribe(ctx, req)
		if err != nil {
			return err
		}
		for {
			msg, err := stream.Recv()
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			if err != nil {
				return err
			}
			line, err := protojson.Marshal(msg)
			if err != nil {
				return err
			}
			fmt.Println(string(line))
		}
	},
}

func init() {
	createMintCmd.Flags().String("metadata", "", "YAML file with name, symbol, uri and mutable")
	_ = createMintCmd.MarkFlagRequired("metadata")

	newFeedCmd.Flags().String("player", "", "player wallet address the feed serves")
	_ = newFeedCmd.MarkFlagRequired("player")

	initPlayerCmd.Flags().String("feed", "", "oracle feed address")
	_ = initPlayerCmd.MarkFlagRequired("feed")

	attackCmd.Flags().String("feed", "", "oracle feed address")
	_ = attackCmd.MarkFlagRequired("feed")

	watchCmd.Flags().String("client", "", "only show notifications for this client account")
	watchCmd.Flags().Uint64("from", 0, "replay persisted notifications after this sequence number")
}
