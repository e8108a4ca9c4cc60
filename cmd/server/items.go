package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the declared items, most recent first",
	RunE:  runList,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove an item from the list",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every item from the list",
	RunE:  runClear,
}

func init() {
	clearCmd.Flags().Bool("yes", false, "confirm clearing the list")

	rootCmd.AddCommand(listCmd, deleteCmd, clearCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	items := a.items.Items()
	fmt.Fprintf(out, "Destination: %s\n", a.prefs.Country())
	if len(items) == 0 {
		fmt.Fprintln(out, "No items declared")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tQTY\tBRAND\tNAME\tWEIGHT\tADDED")
	for _, item := range items {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			item.ID, item.Quantity, item.Brand, item.Name, item.Weight,
			item.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	id := args[0]
	if _, ok := a.items.Get(id); !ok {
		return fmt.Errorf("no item with id %q", id)
	}
	if err := a.items.Delete(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		return errors.New("refusing to clear the list without --yes")
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	n := a.items.Len()
	if err := a.items.Clear(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d items\n", n)
	return nil
}
