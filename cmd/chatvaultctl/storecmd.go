package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/config"
	"github.com/chatvault/chatvault/internal/store"
	"github.com/chatvault/chatvault/internal/store/postgres"
	"github.com/chatvault/chatvault/internal/store/sqlite"
)

func openConfiguredStore(ctx context.Context) (store.Store, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}
	switch cfg.StoreDriver {
	case "postgres":
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return nil, err
		}
		return postgres.NewWithDB(db), nil
	default:
		return sqlite.New(cfg.SQLitePath)
	}
}

func findArchive(ctx context.Context, s store.Store, name string) (int64, bool, error) {
	rows, err := s.Archives().List(ctx)
	if err != nil {
		return 0, false, err
	}
	for _, r := range rows {
		if r.Name == name {
			return r.ID, true, nil
		}
	}
	return 0, false, nil
}

func init() {
	saveCmd := &cobra.Command{
		Use:   "save ARCHIVE_NAME FILE",
		Short: "Persist an archive file into the configured store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openConfiguredStore(ctx)
			if err != nil {
				return err
			}
			a, err := readArchive(args[1])
			if err != nil {
				return err
			}
			id, ok, err := findArchive(ctx, s, args[0])
			if err != nil {
				return err
			}
			if !ok {
				if id, err = s.Archives().Create(ctx, args[0]); err != nil {
					return err
				}
			}
			return store.SaveArchive(ctx, s, id, a)
		},
	}
	rootCmd.AddCommand(saveCmd)

	loadCmd := &cobra.Command{
		Use:   "load ARCHIVE_NAME FILE",
		Short: "Export a stored archive to a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openConfiguredStore(ctx)
			if err != nil {
				return err
			}
			id, ok, err := findArchive(ctx, s, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("archive %q not found in store", args[0])
			}
			a, err := store.LoadArchive(ctx, s, id)
			if err != nil {
				return err
			}
			return writeArchive(args[1], a)
		},
	}
	rootCmd.AddCommand(loadCmd)

	archivesCmd := &cobra.Command{
		Use:   "archives",
		Short: "List archives in the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openConfiguredStore(ctx)
			if err != nil {
				return err
			}
			rows, err := s.Archives().List(ctx)
			if err != nil {
				return err
			}
			for _, r := range rows {
				n, err := s.Conversations().Count(ctx, r.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%d conversations\n", r.ID, r.Name, n)
			}
			return nil
		},
	}
	rootCmd.AddCommand(archivesCmd)
}
