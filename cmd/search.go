package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/lead-enricher/internal/enrichment"
)

func newSearchCmd() *cobra.Command {
	var req enrichment.SearchRequest
	cmd := &cobra.Command{
		Use:     "search",
		Short:   "Runs one search and prints the enriched places as JSON",
		Example: `  enricher search --city Austin --area Downtown --industry bakery --limit 10`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if cerr := appInstance.Close(context.WithoutCancel(cmd.Context())); cerr != nil {
					appInstance.Logger().Warn("close failed", zap.Error(cerr))
				}
			}()

			result, err := appInstance.Search(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("run search: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.City, "city", "", "city to search in (required)")
	cmd.Flags().StringVar(&req.Area, "area", "", "neighbourhood or district within the city")
	cmd.Flags().StringVar(&req.Industry, "industry", "", "business category, e.g. bakery (required)")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "maximum places to return (0 means the provider cap)")
	_ = cmd.MarkFlagRequired("city")
	_ = cmd.MarkFlagRequired("industry")
	return cmd
}
