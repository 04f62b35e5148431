package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/dropline-network/dropline-node/distributor/core"
	"github.com/dropline-network/dropline-node/distributor/logger"
	"github.com/dropline-network/dropline-node/distributor/node"
	"github.com/dropline-network/dropline-node/distributor/types"
)

// campaignFile is the JSON shape accepted by `campaign create --file`.
// Hex fields are 0x-prefixed.
type campaignFile struct {
	Token          string       `json:"token"`
	Metadata       string       `json:"metadata,omitempty"`
	MultipleClaims bool         `json:"multiple_claims"`
	StartTime      int64        `json:"start_time"`
	EndTime        int64        `json:"end_time"`
	Strategy       bindingFile  `json:"strategy"`
	Encoder        *bindingFile `json:"encoder,omitempty"`
}

type bindingFile struct {
	Kind       string `json:"kind"`
	InitParams string `json:"init_params,omitempty"`
	Aux        string `json:"aux,omitempty"`
}

func (b bindingFile) toBinding() (core.InstanceBinding, error) {
	binding := core.InstanceBinding{Kind: types.KindIDFromString(b.Kind)}

	if b.InitParams != "" {
		raw, err := hexutil.Decode(b.InitParams)
		if err != nil {
			return core.InstanceBinding{}, fmt.Errorf("invalid init_params: %w", err)
		}
		binding.InitParams = raw
	}
	if b.Aux != "" {
		raw, err := hexutil.Decode(b.Aux)
		if err != nil {
			return core.InstanceBinding{}, fmt.Errorf("invalid aux: %w", err)
		}
		binding.Aux = raw
	}
	return binding, nil
}

func (f campaignFile) toParams() (core.CampaignParams, error) {
	params := core.CampaignParams{
		Token:          ethcommon.HexToAddress(f.Token),
		Metadata:       []byte(f.Metadata),
		MultipleClaims: f.MultipleClaims,
		StartTime:      f.StartTime,
		EndTime:        f.EndTime,
	}

	strategyBinding, err := f.Strategy.toBinding()
	if err != nil {
		return core.CampaignParams{}, fmt.Errorf("strategy: %w", err)
	}
	params.Strategy = strategyBinding

	if f.Encoder != nil {
		encoderBinding, err := f.Encoder.toBinding()
		if err != nil {
			return core.CampaignParams{}, fmt.Errorf("encoder: %w", err)
		}
		params.Encoder = &encoderBinding
	}
	return params, nil
}

// newOfflineNode builds the fully wired node without starting its servers.
// Mutating commands run against the database directly; the caller must
// Close the node.
func newOfflineNode(home string) (*node.Node, error) {
	cfg, err := loadOrInitConfig(home)
	if err != nil {
		return nil, err
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.LogSampler)
	return node.NewNode(context.Background(), cfg, home, log)
}

func parseCreator(raw string) (ethcommon.Address, error) {
	if !ethcommon.IsHexAddress(raw) {
		return ethcommon.Address{}, fmt.Errorf("invalid creator address %q", raw)
	}
	return ethcommon.HexToAddress(raw), nil
}

func campaignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaign",
		Short: "Manage distribution campaigns",
	}

	cmd.AddCommand(campaignCreateCmd())
	cmd.AddCommand(campaignDeactivateCmd())
	cmd.AddCommand(campaignUpdateRootCmd())
	cmd.AddCommand(campaignListCmd())
	return cmd
}

func campaignCreateCmd() *cobra.Command {
	var (
		home    string
		file    string
		creator string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a campaign from a JSON definition file",
		RunE: func(cmd *cobra.Command, args []string) error {
			creatorAddr, err := parseCreator(creator)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(filepath.Clean(file))
			if err != nil {
				return fmt.Errorf("failed to read campaign file: %w", err)
			}

			var def campaignFile
			if err := json.Unmarshal(data, &def); err != nil {
				return fmt.Errorf("failed to parse campaign file: %w", err)
			}

			params, err := def.toParams()
			if err != nil {
				return err
			}

			n, err := newOfflineNode(home)
			if err != nil {
				return err
			}
			defer n.Close()

			id, err := n.Engine().CreateCampaign(cmd.Context(), creatorAddr, params)
			if err != nil {
				return err
			}

			fmt.Printf("Campaign %d created\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&home, "home", defaultHome(), "Node home directory")
	cmd.Flags().StringVar(&file, "file", "", "Path to the campaign JSON file")
	cmd.Flags().StringVar(&creator, "creator", "", "Campaign creator address (must hold the creator capability)")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagRequired("creator")
	return cmd
}

func campaignDeactivateCmd() *cobra.Command {
	var (
		home    string
		creator string
	)

	cmd := &cobra.Command{
		Use:   "deactivate <campaign-id>",
		Short: "Deactivate a campaign, stopping all further claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			campaignID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid campaign id %q", args[0])
			}

			creatorAddr, err := parseCreator(creator)
			if err != nil {
				return err
			}

			n, err := newOfflineNode(home)
			if err != nil {
				return err
			}
			defer n.Close()

			if err := n.Engine().DeactivateCampaign(cmd.Context(), creatorAddr, campaignID); err != nil {
				return err
			}

			fmt.Printf("Campaign %d deactivated\n", campaignID)
			return nil
		},
	}

	cmd.Flags().StringVar(&home, "home", defaultHome(), "Node home directory")
	cmd.Flags().StringVar(&creator, "creator", "", "Campaign creator address (must hold the creator capability)")
	cmd.MarkFlagRequired("creator")
	return cmd
}

func campaignUpdateRootCmd() *cobra.Command {
	var (
		home    string
		creator string
		root    string
	)

	cmd := &cobra.Command{
		Use:   "update-root <campaign-id>",
		Short: "Rotate the merkle root of a campaign's allocator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			campaignID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid campaign id %q", args[0])
			}

			creatorAddr, err := parseCreator(creator)
			if err != nil {
				return err
			}

			rootBytes, err := hexutil.Decode(root)
			if err != nil || len(rootBytes) != ethcommon.HashLength {
				return fmt.Errorf("root must be a 0x-prefixed 32-byte hex string")
			}

			n, err := newOfflineNode(home)
			if err != nil {
				return err
			}
			defer n.Close()

			if err := n.Engine().UpdateCampaignRoot(cmd.Context(), creatorAddr, campaignID, ethcommon.BytesToHash(rootBytes)); err != nil {
				return err
			}

			fmt.Printf("Campaign %d root updated\n", campaignID)
			return nil
		},
	}

	cmd.Flags().StringVar(&home, "home", defaultHome(), "Node home directory")
	cmd.Flags().StringVar(&creator, "creator", "", "Campaign creator address (must hold the creator capability)")
	cmd.Flags().StringVar(&root, "root", "", "New merkle root as 0x-prefixed hex")
	cmd.MarkFlagRequired("creator")
	cmd.MarkFlagRequired("root")
	return cmd
}

func campaignListCmd() *cobra.Command {
	var (
		home       string
		activeOnly bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List campaigns from the local database",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := newOfflineNode(home)
			if err != nil {
				return err
			}
			defer n.Close()

			campaigns, err := n.Engine().ListCampaigns(activeOnly)
			if err != nil {
				return err
			}
			if len(campaigns) == 0 {
				fmt.Println("No campaigns")
				return nil
			}

			fmt.Printf("%-6s %-8s %-44s %-44s %s\n", "ID", "ACTIVE", "TOKEN", "STRATEGY", "WINDOW")
			for _, c := range campaigns {
				fmt.Printf("%-6d %-8t %-44s %-44s %s\n",
					c.ID, c.Active, c.Token, c.StrategyAddress, windowString(c.StartTime, c.EndTime))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&home, "home", defaultHome(), "Node home directory")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only list campaigns whose active flag is set")
	return cmd
}

// windowString renders a campaign's claim window, with open sides dashed.
func windowString(start, end int64) string {
	if start == 0 && end == 0 {
		return "always"
	}

	format := func(ts int64) string {
		if ts == 0 {
			return "-"
		}
		return time.Unix(ts, 0).UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%s..%s", format(start), format(end))
}
