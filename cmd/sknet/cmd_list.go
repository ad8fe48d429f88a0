package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sknet/models"
)

// listCmd prints registered architectures
var listCmd = &cobra.Command{
	Use:   "list [filter]",
	Short: "List registered architectures",
	Long: `Lists registered architecture names, optionally narrowed by a glob
filter.

Example:
  sknet list
  sknet list 'skresnet2*'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	filter := ""
	if len(args) == 1 {
		filter = args[0]
	}
	names := models.Models(filter)
	if len(names) == 0 {
		return fmt.Errorf("no architectures match %q", filter)
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}
