// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ExactDoug/multi-llm-wrapper-sub003/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the SQLite response cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Drop every cached search response",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("cache-dir")
		if dir == "" {
			return fmt.Errorf("--cache-dir is required")
		}

		store, err := cache.NewStore(dir, 0)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Purge(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Purged %d cached response(s)\n", n)
		return nil
	},
}

func init() {
	cachePurgeCmd.Flags().String("cache-dir", "", "directory holding the response cache")

	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}
