package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var rootConfiguration struct {
	// configPath is the path to the YAML configuration file.
	configPath string
	// help indicates whether help information was requested.
	help bool
}

var rootCommand = &cobra.Command{
	Use:   "gerber",
	Short: "gerber runs the autoscan/inotify media watcher",
	RunE:  rootMain,
	// FlagErrorFunc prints usage information alongside an unrecognized-flag
	// error instead of just the bare pflag error.
	FlagErrorFunc: func(command *cobra.Command, err error) error {
		if err == pflag.ErrHelp {
			return err
		}
		command.Println(command.UsageString())
		return err
	},
	SilenceUsage: true,
}

func rootMain(command *cobra.Command, arguments []string) error {
	if rootConfiguration.help {
		return command.Help()
	}
	return command.Help()
}

func init() {
	rootCommand.AddCommand(serveCommand)

	flags := rootCommand.PersistentFlags()
	flags.SortFlags = false
	flags.StringVarP(&rootConfiguration.configPath, "config", "c", "gerber.yaml", "path to the YAML configuration file")
	flags.BoolVarP(&rootConfiguration.help, "help", "h", false, "show help information")
}
