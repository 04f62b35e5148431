package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/dropline-network/dropline-node/distributor/api"
	"github.com/dropline-network/dropline-node/distributor/config"
)

// Output formats
const (
	OutputFormatYAML = "yaml"
	OutputFormatJSON = "json"
)

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "query",
		Aliases: []string{"q"},
		Short:   "Query the running distributor node",
	}

	cmd.AddCommand(
		campaignsQueryCmd(),
		claimStatusQueryCmd(),
		receiptsQueryCmd(),
	)

	return cmd
}

func campaignsQueryCmd() *cobra.Command {
	var (
		activeOnly   bool
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "campaigns",
		Short: "Query campaigns",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/campaigns"
			if activeOnly {
				path += "?active=true"
			}

			var listing api.CampaignListResponse
			if err := queryAPI(path, &listing); err != nil {
				return err
			}

			return printOutput(listing, outputFormat)
		},
	}

	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only list active campaigns")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

func claimStatusQueryCmd() *cobra.Command {
	var (
		campaignID   uint64
		recipient    string
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "claim-status",
		Short: "Query the claim record of one recipient in one campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status api.ClaimStatusResponse
			path := fmt.Sprintf("/api/v1/campaigns/%d/claims/%s", campaignID, recipient)
			if err := queryAPI(path, &status); err != nil {
				return err
			}

			return printOutput(status, outputFormat)
		},
	}

	cmd.Flags().Uint64Var(&campaignID, "campaign-id", 0, "Campaign ID")
	cmd.Flags().StringVar(&recipient, "recipient", "", "Recipient address")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	cmd.MarkFlagRequired("campaign-id")
	cmd.MarkFlagRequired("recipient")
	return cmd
}

func receiptsQueryCmd() *cobra.Command {
	var (
		campaignID   uint64
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "receipts",
		Short: "Query execution receipts for a campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			var listing api.ReceiptListResponse
			path := fmt.Sprintf("/api/v1/receipts?campaign_id=%d", campaignID)
			if err := queryAPI(path, &listing); err != nil {
				return err
			}

			return printOutput(listing, outputFormat)
		},
	}

	cmd.Flags().Uint64Var(&campaignID, "campaign-id", 0, "Campaign ID")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	cmd.MarkFlagRequired("campaign-id")
	return cmd
}

// queryAPI performs a GET against the local node and decodes the JSON
// response into out.
func queryAPI(path string, out interface{}) error {
	port, err := getAPIPort()
	if err != nil {
		return err
	}

	resp, err := http.Get(fmt.Sprintf("http://localhost:%d%s", port, path))
	if err != nil {
		return fmt.Errorf("failed to query node: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return fmt.Errorf("server error: %s", errResp.Error)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// getAPIPort loads the config to get the API server port
func getAPIPort() (int, error) {
	loadedCfg, err := config.Load(defaultHome())
	if err != nil {
		return 0, fmt.Errorf("failed to load config: %w", err)
	}

	return loadedCfg.APIPort, nil
}

// printOutput prints the output in the specified format
func printOutput(data interface{}, format string) error {
	switch format {
	case OutputFormatJSON:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	case OutputFormatYAML:
		encoder := yaml.NewEncoder(os.Stdout)
		return encoder.Encode(data)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}
