package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/erazemk/kitstok/internal/auth"
	"github.com/erazemk/kitstok/internal/lifecycle"
	"github.com/erazemk/kitstok/internal/model"
)

var sweepDryRun bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one expiry pass over the active kits",
	Long: `Send alerts for kits that expire within the warning horizon and move
expired kits to the expired dataset. Suitable for cron.

With --dry-run nothing is sent or written.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			out := cmd.OutOrStdout()
			if sweepDryRun {
				c, err := a.inventory.Preview(ctx)
				if err != nil {
					return err
				}
				printPreview(out, c, a.inventory.Today())
				return nil
			}

			report, err := a.inventory.Sweep(ctx, "cli")
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Sweep for %s\n", model.FormatDate(report.Today))
			for _, k := range report.Alerted {
				fmt.Fprintf(out, "  alerted  %-12s %-30s %s (%s)\n", k.Kit.LotNumber, k.Kit.TestName, k.Kit.ExpiryText(), k.Result.Outcome)
			}
			for _, k := range report.Expired {
				fmt.Fprintf(out, "  expired  %-12s %-30s %s\n", k.LotNumber, k.TestName, k.ExpiryText())
			}
			if !report.Changed() {
				fmt.Fprintln(out, "  nothing to do")
			}
			return nil
		})
	},
}

func printPreview(out io.Writer, c lifecycle.Classification, today time.Time) {
	fmt.Fprintf(out, "Dry run for %s: %d to alert, %d to expire, %d remain\n",
		model.FormatDate(today), len(c.ToAlert), len(c.ToExpire), len(c.Remain))
	for _, k := range c.ToAlert {
		fmt.Fprintf(out, "  would alert   %-12s %-30s %s\n", k.LotNumber, k.TestName, k.ExpiryText())
	}
	for _, k := range c.ToExpire {
		fmt.Fprintf(out, "  would expire  %-12s %-30s %s\n", k.LotNumber, k.TestName, k.ExpiryText())
	}
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create empty datasets that do not exist yet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			created, err := a.inventory.Seed(ctx)
			if err != nil {
				return err
			}
			if len(created) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "All datasets already exist.")
				return nil
			}
			for _, name := range created {
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s dataset\n", name)
			}
			return nil
		})
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print a bcrypt hash for AUTH_PASSWORD_HASH",
	Long: `Print a bcrypt hash of the given password. Without an argument the
password is read from the first line of standard input.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func readPassword(in io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("empty password")
	}
	return password, nil
}
