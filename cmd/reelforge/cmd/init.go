package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reelforge/reelforge/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long:  `Init writes reelforge.yaml with the built-in defaults to the current directory.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		path := "reelforge.yaml"
		if cfgFile != "" {
			path = cfgFile
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Println("wrote", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
