package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/stow/pkg/stow/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage stow configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/stow/config.yaml (if set)
  2. ~/.config/stow/config.yaml

Environment variables override config file settings using the STOW_ prefix:
  STOW_INBOX=~/Downloads/Inbox
  STOW_WORKERS=8
  STOW_LOGGING_LEVEL=debug`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Create a default configuration file",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipSetup: "true"},
	RunE:        runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:         "path",
	Short:       "Show the configuration file path",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipSetup: "true"},
	RunE:        runConfigPath,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit the configuration file",
	Long: `Open the configuration file in $VISUAL, $EDITOR or vi, creating a
default one first if needed.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipSetup: "true"},
	RunE:        runConfigEdit,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	if file := viper.ConfigFileUsed(); file != "" {
		fmt.Printf("# config file: %s\n", file)
	} else {
		fmt.Println("# config file: (none found, using defaults)")
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

// configTarget is --config when given, else the default location.
func configTarget() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.ConfigPath()
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	target, err := configTarget()
	if err != nil {
		return err
	}
	path, created, err := config.WriteDefault(target)
	if err != nil {
		return err
	}
	if !created {
		printInfo("Config file already exists: %s", path)
		return nil
	}
	printInfo("Created default config file: %s", path)
	return nil
}

func runConfigPath(_ *cobra.Command, _ []string) error {
	path, err := configTarget()
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func runConfigEdit(_ *cobra.Command, _ []string) error {
	target, err := configTarget()
	if err != nil {
		return err
	}
	path, _, err := config.WriteDefault(target)
	if err != nil {
		return err
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	c := exec.Command(editor, path)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}
	return nil
}
