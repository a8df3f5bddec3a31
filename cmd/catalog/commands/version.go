package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/catalog/version"
)

// VersionCmd prints build information
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show catalog version information",
	Long:  `Display version, commit, build time and platform of the catalog binary.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			OutputFormat = FormatJSON
		}
		if done, err := printStructured(info); done || err != nil {
			return err
		}
		fmt.Println(info.String())
		fmt.Printf("Platform: %s\n", info.Platform)
		fmt.Printf("Go: %s\n", info.GoVersion)
		return nil
	},
}

func init() {
	VersionCmd.Flags().BoolP("json", "j", false, "Output version info as JSON (same as -o json)")
}
