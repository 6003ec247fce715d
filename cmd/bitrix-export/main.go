package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "bitrix-export",
		Short: "Bitrix24 task and time tracking exporter",
		Long: `bitrix-export pulls tasks and logged time from a Bitrix24 portal
through an inbound webhook. It discovers every task a set of collaborators
touched in a date window, enriches them, reconciles per-entry logged time
and produces spreadsheet-ready rows.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
