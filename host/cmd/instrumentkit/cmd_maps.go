package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/instrumentkit/instrumentkit/host/internal/apphelper"
)

var mapsFlags struct {
	dismiss       bool
	screenshotDir string
}

var mapsCmd = &cobra.Command{
	Use:   "maps",
	Short: "Drive Google Maps on the device",
}

var mapsDismissCmd = &cobra.Command{
	Use:   "dismiss-dialogs",
	Short: "Open Maps and dismiss the first-run dialogs",
	RunE:  runMapsDismiss,
}

var mapsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Open Maps and search for a place",
	Args:  cobra.ExactArgs(1),
	RunE:  runMapsSearch,
}

func init() {
	mapsCmd.PersistentFlags().StringVar(&mapsFlags.screenshotDir, "screenshot-dir", "", "Save a screenshot here when a step fails")
	mapsSearchCmd.Flags().BoolVar(&mapsFlags.dismiss, "dismiss-dialogs", false, "Dismiss first-run dialogs before searching")
	mapsCmd.AddCommand(mapsDismissCmd)
	mapsCmd.AddCommand(mapsSearchCmd)
}

// withMaps opens Maps on the configured device and runs fn with it. A failure
// after the device is reached leaves a screenshot in --screenshot-dir.
func withMaps(cmd *cobra.Command, name string, fn func(context.Context, *apphelper.Maps) error) error {
	ctx := cmd.Context()
	h := cfg.Host
	dev, err := openDevice(ctx, h)
	if err != nil {
		return err
	}
	m := apphelper.NewMaps(ctx, uiDevice(dev, h), dev, mapsOptions(h.Maps))
	err = m.Open(ctx)
	if err == nil {
		err = fn(ctx, m)
	}
	return captureOnFailure(ctx, dev, mapsFlags.screenshotDir, name, err)
}

func runMapsDismiss(cmd *cobra.Command, _ []string) error {
	return withMaps(cmd, "maps-dismiss-dialogs", func(ctx context.Context, m *apphelper.Maps) error {
		if err := m.DismissInitialDialogs(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Maps dialogs dismissed (UI package %s)\n", m.UIPackage())
		return nil
	})
}

func runMapsSearch(cmd *cobra.Command, args []string) error {
	return withMaps(cmd, "maps-search", func(ctx context.Context, m *apphelper.Maps) error {
		if mapsFlags.dismiss {
			if err := m.DismissInitialDialogs(ctx); err != nil {
				return err
			}
		}
		if err := m.DoSearch(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Found %q\n", args[0])
		return nil
	})
}
