package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nordkart/geoharvest/pkg/client"
	"github.com/nordkart/geoharvest/pkg/source"
)

var discoverMatch []string

var discoverCmd = &cobra.Command{
	Use:   "discover <service-url>",
	Short: "List the queryable layers of a feature service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		httpClient, err := client.New(client.DefaultConfig())
		if err != nil {
			return err
		}

		layers, err := source.DiscoverLayers(cmd.Context(), httpClient, args[0], discoverMatch)
		if err != nil {
			return err
		}
		for _, l := range layers {
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", l.ID, l.Name)
		}
		return nil
	},
}

func init() {
	discoverCmd.Flags().StringSliceVar(&discoverMatch, "match", nil, "glob patterns selecting layer names")
	rootCmd.AddCommand(discoverCmd)
}
