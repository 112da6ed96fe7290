package main

import (
	"errors"
	"fmt"

	"github.com/always-cache/route-cache/cache"

	"github.com/spf13/cobra"
)

func newPurgeCmd() *cobra.Command {
	var (
		dbFilename  string
		expiredOnly bool
	)

	cmd := &cobra.Command{
		Use:   "purge [KEY...]",
		Short: "Remove entries from a cache DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !expiredOnly && len(args) == 0 {
				return errors.New("specify keys to purge or --expired")
			}
			s, err := cache.NewSQLiteStore(dbFilename)
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}
			defer func() { _ = s.Close() }()

			ctx := cmd.Context()
			if expiredOnly {
				n, err := s.Sweep(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired entries.\n", n)
			}
			for _, key := range args {
				if err := s.Delete(ctx, key); err != nil {
					return fmt.Errorf("purge %s: %w", key, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %s\n", key)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbFilename, "db", "cache.db", "Cache DB file name")
	cmd.Flags().BoolVar(&expiredOnly, "expired", false, "Remove all expired entries")
	return cmd
}
