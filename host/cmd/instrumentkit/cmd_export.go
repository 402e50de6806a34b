package main

import (
	"bytes"
	"os"

	"github.com/spf13/cobra"

	"github.com/instrumentkit/instrumentkit/pkg/export"
	"github.com/instrumentkit/instrumentkit/pkg/types"
)

var exportFlags struct {
	output string
}

var exportCmd = &cobra.Command{
	Use:   "export <report.json>...",
	Short: "Convert run reports to the Prometheus text format",
	Long: "Reads report files written with --report and prints the latest run of every\n" +
		"device in the Prometheus text exposition format, e.g. for node_exporter's\n" +
		"textfile collector.",
	Args: cobra.MinimumNArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFlags.output, "output", "o", "", "Write to this file instead of stdout")
}

func runExport(cmd *cobra.Command, args []string) error {
	var all []*types.RunReport
	for _, path := range args {
		reps, err := readReports(path)
		if err != nil {
			return err
		}
		all = append(all, reps...)
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, all, nil); err != nil {
		return err
	}
	if exportFlags.output == "" {
		_, err := cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}
	// Write then rename so a textfile collector never reads a partial file.
	tmp := exportFlags.output + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, exportFlags.output)
}
