package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/archive"
	"github.com/chatvault/chatvault/internal/codec"
	"github.com/chatvault/chatvault/internal/platform/logger"
	"github.com/chatvault/chatvault/internal/reconcile"
)

func readArchive(path string) (*archive.Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	a, err := codec.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

func writeArchive(path string, a *archive.Archive) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := codec.Encode(f, a); err != nil {
		_ = f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

func init() {
	var out string
	var accountingOnly bool

	mergeCmd := &cobra.Command{
		Use:   "merge DST_FILE SRC_FILE",
		Short: "Merge the source archive into the destination archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dst, err := readArchive(args[0])
			if err != nil {
				return err
			}
			src, err := readArchive(args[1])
			if err != nil {
				return err
			}
			eng := reconcile.New(logger.New("chatvaultctl"))
			if err := eng.Merge(dst, src, accountingOnly); err != nil {
				return err
			}
			target := out
			if target == "" {
				target = args[0]
			}
			return writeArchive(target, dst)
		},
	}
	mergeCmd.Flags().StringVarP(&out, "out", "o", "", "Output file (defaults to DST_FILE)")
	mergeCmd.Flags().BoolVar(&accountingOnly, "accounting-only", false, "Merge groups, contacts and accounts but no conversations")
	rootCmd.AddCommand(mergeCmd)

	var rout string
	var raccounting bool
	replaceCmd := &cobra.Command{
		Use:   "replace DST_FILE SRC_FILE",
		Short: "Replace the destination archive's content with the source's",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dst, err := readArchive(args[0])
			if err != nil {
				return err
			}
			src, err := readArchive(args[1])
			if err != nil {
				return err
			}
			eng := reconcile.New(logger.New("chatvaultctl"))
			if err := eng.Replace(dst, src, raccounting); err != nil {
				return err
			}
			target := rout
			if target == "" {
				target = args[0]
			}
			return writeArchive(target, dst)
		},
	}
	replaceCmd.Flags().StringVarP(&rout, "out", "o", "", "Output file (defaults to DST_FILE)")
	replaceCmd.Flags().BoolVar(&raccounting, "accounting-only", false, "Replace groups, contacts and accounts but keep no conversations")
	rootCmd.AddCommand(replaceCmd)

	statsCmd := &cobra.Command{
		Use:   "stats FILE",
		Short: "Print archive statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := readArchive(args[0])
			if err != nil {
				return err
			}
			contacts, accounts, replies := 0, 0, 0
			for _, g := range a.Groups() {
				for _, c := range a.ContactsIn(g.ID) {
					contacts++
					accounts += len(a.AccountsOf(c.ID))
				}
			}
			for _, c := range a.Conversations() {
				replies += len(c.Replies)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "groups:        %d\n", len(a.Groups()))
			fmt.Fprintf(w, "contacts:      %d\n", contacts)
			fmt.Fprintf(w, "accounts:      %d\n", accounts)
			fmt.Fprintf(w, "conversations: %d\n", a.ConversationCount())
			fmt.Fprintf(w, "replies:       %d\n", replies)
			return nil
		},
	}
	rootCmd.AddCommand(statsCmd)
}
