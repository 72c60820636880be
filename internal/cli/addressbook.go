package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mbd888/safeshield/internal/addressbook"
)

func createAddressBookCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "addressbook",
		Aliases: []string{"ab"},
		Short:   "Manage the local SQLite address book",
	}

	cmd.AddCommand(createAddressBookAddCmd(opts))
	cmd.AddCommand(createAddressBookListCmd(opts))
	cmd.AddCommand(createAddressBookRemoveCmd(opts))

	return cmd
}

// withStore opens and migrates the SQLite address book for one command.
func withStore(opts *globalOptions, fn func(ctx context.Context, store *addressbook.SQLiteStore) error) error {
	store, err := addressbook.NewSQLiteStore(opts.database())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating address book: %w", err)
	}
	return fn(ctx, store)
}

func createAddressBookAddCmd(opts *globalOptions) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "add <address>",
		Short: "Add an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(ctx context.Context, store *addressbook.SQLiteStore) error {
				entry := &addressbook.Entry{ChainID: opts.chain(), Address: args[0], Name: name}
				if err := store.Add(ctx, entry); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s on chain %s\n", entry.Address, entry.ChainID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")

	return cmd
}

func createAddressBookListCmd(opts *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List addresses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(ctx context.Context, store *addressbook.SQLiteStore) error {
				entries, err := store.List(ctx, opts.chain())
				if err != nil {
					return err
				}

				if jsonOutput {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(entries)
				}

				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Address book is empty.")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ADDRESS\tNAME\tADDED")
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%s\t%s\n", e.Address, e.Name, e.CreatedAt.Format("2006-01-02"))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func createAddressBookRemoveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <address>",
		Aliases: []string{"rm"},
		Short:   "Remove an address",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(ctx context.Context, store *addressbook.SQLiteStore) error {
				err := store.Remove(ctx, opts.chain(), args[0])
				if errors.Is(err, addressbook.ErrNotFound) {
					return fmt.Errorf("%s is not in the address book for chain %s", args[0], opts.chain())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
				return nil
			})
		},
	}
}
