package app

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"market-sentinel/internal/state"
)

// StateShow prints every key of the persisted document as a sorted table.
func (a *App) StateShow(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	doc := store.Load(ctx)
	if len(doc) == 0 {
		fmt.Fprintln(os.Stdout, "state is empty")
		return nil
	}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Key\tValue")
	for _, k := range keys {
		fmt.Fprintf(writer, "%s\t%v\n", k, doc[k])
	}
	return writer.Flush()
}

// StateReset clears the persisted document. This is the operator reset;
// nothing else ever deletes state.
func (a *App) StateReset(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	if err := store.Save(ctx, state.Document{}); err != nil {
		return fmt.Errorf("reset state: %w", err)
	}
	fmt.Fprintln(os.Stdout, "state reset")
	return nil
}
