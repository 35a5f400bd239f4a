package cmd

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/seleknir/webrecorder/internal/observability"
	"github.com/seleknir/webrecorder/internal/registry"
	"github.com/seleknir/webrecorder/internal/replay"
	"github.com/seleknir/webrecorder/internal/sessionstore"
)

var (
	toolsSource string
	toolArgs    string
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Load and run tools generated from a recording.",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tools the generated source registers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadTools(cmd)
		if err != nil {
			return err
		}
		for _, name := range reg.Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

var toolsExecCmd = &cobra.Command{
	Use:   "exec <tool>",
	Short: "Execute one generated tool with the recorded session identity.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadTools(cmd)
		if err != nil {
			return err
		}

		var callArgs map[string]interface{}
		if toolArgs != "" {
			if err := jsoniter.Unmarshal([]byte(toolArgs), &callArgs); err != nil {
				return fmt.Errorf("invalid --args JSON: %w", err)
			}
		}

		result, err := reg.Execute(cmd.Context(), args[0], callArgs)
		if err != nil {
			return err
		}
		out, err := jsoniter.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to render result: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func loadTools(cmd *cobra.Command) (*registry.Registry, error) {
	logger := observability.GetLogger()
	store := sessionstore.New(cfg.Output.SessionFile, logger)
	reg := registry.NewRegistry(logger)
	loader := registry.NewLoader(reg, replay.NewClient(store, logger), logger)

	if err := loader.Reload(cmd.Context(), toolsSource); err != nil {
		return nil, fmt.Errorf("failed to load tool source: %w", err)
	}
	return reg, nil
}

func init() {
	toolsCmd.PersistentFlags().StringVar(&toolsSource, "source", "generated_tools.go", "generated tool source file")
	toolsExecCmd.Flags().StringVar(&toolArgs, "args", "", "tool arguments as a JSON object")
	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsExecCmd)
	rootCmd.AddCommand(toolsCmd)
}
