package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/instrumentkit/instrumentkit/host/internal/adb"
	"github.com/instrumentkit/instrumentkit/host/internal/launcher"
)

var launcherFlags struct {
	screenshotDir string
}

var launcherCmd = &cobra.Command{
	Use:   "launcher",
	Short: "Drive the device launcher",
}

var launcherDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Show which launcher strategy matches the device",
	RunE:  runLauncherDetect,
}

var launcherFacetCmd = &cobra.Command{
	Use:       "facet <dial|maps|home|media|settings> [app]",
	Short:     "Open an Auto facet, optionally selecting an app from its list",
	Args:      cobra.RangeArgs(1, 2),
	ValidArgs: []string{"dial", "maps", "home", "media", "settings"},
	RunE:      runLauncherFacet,
}

func init() {
	launcherCmd.PersistentFlags().StringVar(&launcherFlags.screenshotDir, "screenshot-dir", "", "Save a screenshot here when a step fails")
	launcherCmd.AddCommand(launcherDetectCmd)
	launcherCmd.AddCommand(launcherFacetCmd)
}

func detectStrategy(cmd *cobra.Command) (*adb.Device, launcher.Strategy, error) {
	ctx := cmd.Context()
	h := cfg.Host
	dev, err := openDevice(ctx, h)
	if err != nil {
		return nil, nil, err
	}
	auto := launcher.NewAuto(uiDevice(dev, h), autoOptions(h.Auto))
	s, err := launcher.Detect(ctx, dev, auto)
	return dev, s, err
}

func runLauncherDetect(cmd *cobra.Command, _ []string) error {
	_, s, err := detectStrategy(cmd)
	if err != nil {
		return err
	}
	kind := "generic"
	if _, ok := s.(launcher.AutoStrategy); ok {
		kind = "auto"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", s.SupportedLauncherPackage(), kind)
	return nil
}

func runLauncherFacet(cmd *cobra.Command, args []string) error {
	dev, s, err := detectStrategy(cmd)
	if err != nil {
		return err
	}
	auto, ok := s.(launcher.AutoStrategy)
	if !ok {
		return fmt.Errorf("launcher %s has no facets", s.SupportedLauncherPackage())
	}
	app := ""
	if len(args) == 2 {
		app = args[1]
	}
	err = openFacet(cmd.Context(), auto, args[0], app)
	return captureOnFailure(cmd.Context(), dev, launcherFlags.screenshotDir, "facet-"+args[0], err)
}

func openFacet(ctx context.Context, auto launcher.AutoStrategy, facet, app string) error {
	needsApp := func() error {
		if app == "" {
			return fmt.Errorf("facet %s needs an app name", facet)
		}
		return nil
	}
	switch facet {
	case "dial":
		return auto.OpenDialFacet(ctx)
	case "maps":
		return auto.OpenMapsFacet(ctx, app)
	case "home":
		return auto.OpenHomeFacet(ctx)
	case "media":
		if err := needsApp(); err != nil {
			return err
		}
		return auto.OpenMediaFacet(ctx, app)
	case "settings":
		if err := needsApp(); err != nil {
			return err
		}
		return auto.OpenSettingsFacet(ctx, app)
	}
	return fmt.Errorf("unknown facet %q", facet)
}
