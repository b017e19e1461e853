package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/importer"
	"github.com/chatvault/chatvault/internal/logparse"
	"github.com/chatvault/chatvault/internal/model"
	"github.com/chatvault/chatvault/internal/platform/logger"
	"github.com/chatvault/chatvault/internal/reconcile"
)

func init() {
	var out, mergeInto string

	importCmd := &cobra.Command{
		Use:   "import FORMAT LOG_ROOT",
		Short: "Import chat logs interactively (formats: gaim, msn)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" && mergeInto == "" {
				return fmt.Errorf("--out or --merge-into required")
			}
			return runImport(args[0], args[1], out, mergeInto)
		},
	}
	importCmd.Flags().StringVarP(&out, "out", "o", "", "Write the imported archive to this file")
	importCmd.Flags().StringVarP(&mergeInto, "merge-into", "m", "", "Merge the imported archive into this existing file")
	rootCmd.AddCommand(importCmd)
}

func runImport(format, root, out, mergeInto string) error {
	log := logger.New("chatvaultctl")
	parser := logparse.TextFileParser{}

	progress := func(comment string, completed, total int) {
		if total > 0 {
			fmt.Fprintf(os.Stderr, "\r%s (%d/%d)", comment, completed, total)
		} else {
			fmt.Fprintf(os.Stderr, "\r%s", comment)
		}
	}

	var strategy importer.Strategy
	switch format {
	case "gaim":
		strategy = importer.NewGaim(parser, root, progress)
	case "msn":
		strategy = importer.NewMsn(parser, root, progress)
	default:
		return fmt.Errorf("unknown format %q (want gaim or msn)", format)
	}

	queries := make(chan importer.Envelope)
	pipe := importer.New(log, strategy, func(env importer.Envelope) { queries <- env })

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- pipe.Run(ctx) }()

	prompter := &prompter{in: bufio.NewScanner(os.Stdin), out: os.Stderr}
	for {
		select {
		case env := <-queries:
			ans, err := prompter.answer(env)
			if err != nil {
				stop()
				<-done
				return err
			}
			if err := pipe.Answer(ans); err != nil {
				return err
			}
		case err := <-done:
			if err != nil {
				return err
			}
			imported, err := pipe.Result()
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr)
			if mergeInto != "" {
				dst, err := readArchive(mergeInto)
				if err != nil {
					return err
				}
				if err := reconcile.New(log).Merge(dst, imported, false); err != nil {
					return err
				}
				return writeArchive(mergeInto, dst)
			}
			return writeArchive(out, imported)
		}
	}
}

// prompter renders pipeline queries on the terminal and reads answers.
type prompter struct {
	in  *bufio.Scanner
	out *os.File
}

func (p *prompter) answer(env importer.Envelope) (importer.Answer, error) {
	if env.Feedback != "" {
		fmt.Fprintf(p.out, "\n!! %s\n", env.Feedback)
	}
	switch q := env.Query.(type) {
	case importer.ConfirmLocalNamesQuery:
		return p.confirmLocalNames(q)
	case importer.ConfirmAccountsQuery:
		return p.confirmAccounts(q)
	case importer.UnresolvedAliasesQuery:
		return p.resolveAliases(q)
	default:
		return nil, fmt.Errorf("unsupported query %T", env.Query)
	}
}

func (p *prompter) readLine(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("input closed")
	}
	return strings.TrimSpace(p.in.Text()), nil
}

func (p *prompter) confirmLocalNames(q importer.ConfirmLocalNamesQuery) (importer.Answer, error) {
	fmt.Fprintf(p.out, "\nNames that look like yours: %s\n", strings.Join(q.LocalNames, ", "))
	fmt.Fprintf(p.out, "Other names seen:           %s\n", strings.Join(q.RemoteNames, ", "))
	line, err := p.readLine("Your names (enter to accept, or a comma-separated list): ")
	if err != nil {
		return nil, err
	}
	if line == "" {
		return importer.LocalNamesAnswer{LocalNames: q.LocalNames}, nil
	}
	var names []string
	for _, n := range strings.Split(line, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return importer.LocalNamesAnswer{LocalNames: names}, nil
}

func (p *prompter) confirmAccounts(q importer.ConfirmAccountsQuery) (importer.Answer, error) {
	fmt.Fprintf(p.out, "\nAccounts to create:\n")
	for _, plan := range q.Accounts {
		kind := "remote"
		if plan.Local {
			kind = "local"
		}
		fmt.Fprintf(p.out, "  %-6s %s", kind, plan.Account.Key())
		if len(plan.Aliases) > 0 {
			fmt.Fprintf(p.out, "  aka %s", strings.Join(plan.Aliases, ", "))
		}
		fmt.Fprintln(p.out)
	}
	line, err := p.readLine("Confirm (enter), or type 'back' to revisit your names: ")
	if err != nil {
		return nil, err
	}
	if line == "back" {
		return importer.Back{}, nil
	}
	return importer.AccountsAnswer{Accounts: q.Accounts}, nil
}

func (p *prompter) resolveAliases(q importer.UnresolvedAliasesQuery) (importer.Answer, error) {
	fmt.Fprintf(p.out, "\n%d conference speaker names could not be matched to an account.\n", len(q.Unresolved))
	if len(q.Candidates) > 0 {
		fmt.Fprint(p.out, "Known accounts:")
		for _, c := range q.Candidates {
			fmt.Fprintf(p.out, " %s", c.Key())
		}
		fmt.Fprintln(p.out)
	}
	resolutions := make([]model.Alias, 0, len(q.Unresolved))
	for _, alias := range q.Unresolved {
		line, err := p.readLine(fmt.Sprintf("Account for %q on %s (service:name): ", alias.Name, alias.Service))
		if err != nil {
			return nil, err
		}
		service, name, ok := strings.Cut(line, ":")
		if !ok || service == "" || name == "" {
			fmt.Fprintf(p.out, "  expected service:name, leaving %q unresolved\n", alias.Name)
			continue
		}
		alias.Resolution = &model.FreeAccount{Service: service, Name: name}
		resolutions = append(resolutions, alias)
	}
	return importer.AliasResolutionsAnswer{Resolutions: resolutions}, nil
}
