package app

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Check runs every evaluator once against live data, persists the
// refreshed readings, and prints the resulting signals. Nothing is
// dispatched; paging stays with the scheduled cycles.
func (a *App) Check(ctx context.Context) error {
	m, err := a.newMonitor(ctx)
	if err != nil {
		return err
	}
	defer m.close()

	sigs := m.engine.CheckAll(ctx)
	fmt.Fprintln(os.Stdout, renderSignals("Health check complete", sigs))
	return nil
}

// Scan runs one discovery sweep and prints the graded finds.
func (a *App) Scan(ctx context.Context) error {
	if !a.Config.Discovery.Enabled {
		return errors.New("discovery is disabled in configuration")
	}

	m, err := a.newMonitor(ctx)
	if err != nil {
		return err
	}
	defer m.close()

	sigs := m.engine.ScanOnce(ctx)
	fmt.Fprintln(os.Stdout, renderSignals("Scan complete", sigs))
	return nil
}
