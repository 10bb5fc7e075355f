package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	pluginNameStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("36"))
	pluginMetaStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

func newPluginsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect discovered plugins",
	}
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List every discovered plugin and its tools",
		RunE:  listPlugins,
	}
	listCmd.Flags().String("tool", "", "only list plugins declaring this tool")
	cmd.AddCommand(listCmd)
	return cmd
}

func listPlugins(cmd *cobra.Command, _ []string) error {
	_, api, _, err := setup(cmd)
	if err != nil {
		return err
	}

	toolFilter, _ := cmd.Flags().GetString("tool")
	plugins := api.ListPlugins()
	if toolFilter != "" {
		plugins = api.PluginsByTool(toolFilter)
	}
	if len(plugins) == 0 {
		fmt.Println("no plugins found")
		return nil
	}

	for _, p := range plugins {
		tools := make([]string, 0, len(p.Tools))
		for _, t := range p.Tools {
			tools = append(tools, t.Name)
		}
		fmt.Printf("%s %s\n", pluginNameStyle.Render(p.Name), pluginMetaStyle.Render("v"+p.Version))
		fmt.Printf("  %s\n", p.Description)
		fmt.Printf("  %s\n", pluginMetaStyle.Render("tools: "+strings.Join(tools, ", ")))
	}
	return nil
}
