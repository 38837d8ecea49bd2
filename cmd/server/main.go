// Package main 是应用程序的入口点。
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var cfgPath string
	root := &cobra.Command{
		Use:           "hotel-rag",
		Short:         "Hotel recommendation chat backend",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./configs/config.yaml", "config file")

	root.AddCommand(serveCMD(&cfgPath), askCMD(&cfgPath), archiveCMD(&cfgPath), tokenCMD(&cfgPath))
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
