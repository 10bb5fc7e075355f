package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"filmeto.ai/engine/internal/core/domain"
)

func newToolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the generation tools the engine supports",
		Run: func(_ *cobra.Command, _ []string) {
			for _, tool := range domain.AllTools() {
				fmt.Printf("%-14s %s\n", tool, tool.DisplayName())
			}
		},
	}
}
