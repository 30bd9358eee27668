package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/williamsbolu/natours/internal/bootstrap"
	"github.com/williamsbolu/natours/internal/repo"
	"github.com/williamsbolu/natours/internal/seed"
	"github.com/williamsbolu/natours/internal/service"
	"github.com/williamsbolu/natours/pkg/config"
	"github.com/williamsbolu/natours/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logger.Error("Seed failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dir string

	root := &cobra.Command{
		Use:           "seed",
		Short:         "Load or clear the development data set",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&dir, "dir", "d", "dev-data", "directory holding tours.json, users.json and reviews.json")

	root.AddCommand(&cobra.Command{
		Use:   "import",
		Short: "Import tours, users and reviews, then recompute ratings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStores(cmd.Context(), func(stores repo.Stores) error {
				ratings := service.NewRatingAggregator(stores.Reviews, stores.Tours, nil, nil, service.RatingConfig{})
				_, err := seed.Import(cmd.Context(), stores, ratings, dir)
				return err
			})
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Delete all tours, reviews and users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStores(cmd.Context(), func(stores repo.Stores) error {
				return seed.Delete(cmd.Context(), stores)
			})
		},
	})
	return root
}

func withStores(ctx context.Context, fn func(repo.Stores) error) error {
	cfg := config.Load()
	stores, _, err := bootstrap.OpenStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close(context.Background())
	return fn(stores)
}
