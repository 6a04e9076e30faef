package configcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forkyhq/forky/pkg/cliui"
	"github.com/forkyhq/forky/pkg/config"
)

const presetLongDesc string = `Apply a provider preset to the configuration.

Overwrites the model section of config.toml with sane defaults for the
named provider. Other sections keep their current values.

Available presets: openai, anthropic, ollama

Examples:
  forky config preset anthropic
  forky config preset ollama`

const presetShortDesc string = "Apply a provider preset"

func newPresetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset <name>",
		Short: presetShortDesc,
		Long:  presetLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runPreset(args[0], configDir)
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return config.ValidPresetNames(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
	}

	return cmd
}

func runPreset(name, configDir string) error {
	preset, err := config.PresetConfig(name)
	if err != nil {
		return fmt.Errorf("unknown preset: %q\n\nAvailable presets: %s",
			name, strings.Join(config.ValidPresetNames(), ", "))
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Keep everything except the model section from the existing config.
	cfg, err := cfger.LoadConfig()
	if err != nil {
		return err
	}
	cfg.Model = preset.Model

	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Printf("\n  %s Applied preset %s %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(name),
		cliui.DimStyle.Render(fmt.Sprintf("(model %s)", cfg.Model.Model)),
	)
	return nil
}
