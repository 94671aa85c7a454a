package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// versionCmd 输出版本号
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "输出版本信息",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "script-diagnostics version %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
