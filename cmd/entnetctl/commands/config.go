package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/JeffM2501/EntityNetwork/config"
	"github.com/JeffM2501/EntityNetwork/internal/cliutil/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect entnetctl configuration",
}

var configSaveOut string

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Load configuration from --config (layering ENTNET_* environment
overrides and built-in defaults on top) and print the result as YAML.`,
	RunE: runConfigShow,
}

var configSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Write the effective configuration to a file",
	RunE:  runConfigSave,
}

func init() {
	configSaveCmd.Flags().StringVarP(&configSaveOut, "out", "o", "entnetctl.yaml", "output path")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSaveCmd)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	return config.Load(configPath)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return output.PrintYAML(os.Stdout, cfg)
}

func runConfigSave(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return config.Save(cfg, configSaveOut)
}
