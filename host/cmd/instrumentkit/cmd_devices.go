package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/instrumentkit/instrumentkit/host/internal/adb"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List attached devices",
	RunE:  runDevices,
}

func runDevices(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	h := cfg.Host
	devices, err := adb.Devices(ctx, adb.WithADBPath(h.ADBPath))
	if err != nil {
		return err
	}

	t := newTable(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"Serial", "Model", "SDK", "Home"})
	for _, info := range devices {
		dev := adb.New(info.Serial, adb.WithADBPath(h.ADBPath))
		model, _ := dev.GetProp(ctx, "ro.product.model")
		sdk, _ := dev.GetProp(ctx, "ro.build.version.sdk")
		home, _ := dev.HomePackage(ctx)
		t.AppendRow(table.Row{info.Serial, model, sdk, home})
	}
	t.AppendFooter(table.Row{"", "", "Total", len(devices)})
	t.Render()
	return nil
}
