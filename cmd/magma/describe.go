package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/UnknownOlympus/magma/internal/models"
	"github.com/UnknownOlympus/magma/internal/narrative"
	"github.com/spf13/cobra"
)

var (
	lat   float64
	lng   float64
	place string
)

func coordinateFromFlags(cmd *cobra.Command) (models.Coordinate, error) {
	if place != "" {
		return models.Coordinate{}, nil
	}
	if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lng") {
		return models.Coordinate{}, errors.New("either --place or both --lat and --lng are required")
	}

	return models.NewCoordinate(lat, lng)
}

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Fetch geological units for a location and print a narrative description",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		coord, err := coordinateFromFlags(cmd)
		if err != nil {
			return err
		}

		_, appMetrics := newRegistry()
		geologyService, store, err := newGeologyService(ctx, appMetrics)
		if err != nil {
			return err
		}
		if store != nil {
			defer store.Close()
		}

		if place != "" {
			resolved, resolveErr := geologyService.Resolve(ctx, place)
			if resolveErr != nil {
				return fmt.Errorf("location %q not found: %w", place, resolveErr)
			}
			coord = *resolved
		}

		dataset := geologyService.Lookup(ctx, coord)

		session, err := loadModel(ctx)
		if err != nil {
			return err
		}
		defer session.Close()

		result := narrative.NewGenerator(session, cfg.Model.MaxLength, logger, appMetrics).
			Describe(ctx, coord.Location(), dataset)

		fmt.Fprintln(os.Stdout, coord.Location())
		fmt.Fprintf(os.Stdout, "Geological units: %d\n\n", len(dataset))
		fmt.Fprintln(os.Stdout, strings.TrimSpace(result.Text))

		return nil
	},
}

var geologyCmd = &cobra.Command{
	Use:   "geology",
	Short: "Print the geological units covering a location as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		coord, err := coordinateFromFlags(cmd)
		if err != nil {
			return err
		}

		_, appMetrics := newRegistry()
		geologyService, store, err := newGeologyService(ctx, appMetrics)
		if err != nil {
			return err
		}
		if store != nil {
			defer store.Close()
		}

		if place != "" {
			resolved, resolveErr := geologyService.Resolve(ctx, place)
			if resolveErr != nil {
				return fmt.Errorf("location %q not found: %w", place, resolveErr)
			}
			coord = *resolved
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(geologyService.Lookup(ctx, coord).Envelope())
	},
}

var geocodeCmd = &cobra.Command{
	Use:   "geocode <place>",
	Short: "Resolve a place name to coordinates",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		_, appMetrics := newRegistry()
		geologyService, store, err := newGeologyService(ctx, appMetrics)
		if err != nil {
			return err
		}
		if store != nil {
			defer store.Close()
		}

		name := strings.Join(args, " ")
		coord, err := geologyService.Resolve(ctx, name)
		if err != nil {
			return fmt.Errorf("location %q not found: %w", name, err)
		}

		fmt.Fprintf(os.Stdout, "%s\n", coord.Location())

		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{describeCmd, geologyCmd} {
		cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude in decimal degrees")
		cmd.Flags().Float64Var(&lng, "lng", 0, "Longitude in decimal degrees")
		cmd.Flags().StringVar(&place, "place", "", "Place name to resolve instead of --lat/--lng")
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(geocodeCmd)
}
