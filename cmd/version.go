package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/praetorian-inc/pimctl/internal/message"
	"github.com/praetorian-inc/pimctl/version"
)

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("check", false, "check whether a newer release is available")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pimctl version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version.FullVersion())

		check, _ := cmd.Flags().GetBool("check")
		if !check {
			return nil
		}

		latest, outdated, err := version.Outdated(cmd.Context())
		if err != nil {
			return err
		}
		if outdated {
			message.Warning("newer release available: %s", latest)
		} else {
			message.Success("pimctl is up to date (latest release: %s)", latest)
		}
		return nil
	},
}
