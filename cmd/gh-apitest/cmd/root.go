package cmd

import (
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	SilenceUsage:  true,
	SilenceErrors: true,
	Use:           "gh-apitest [command]",
	Short:         "Send HTTP requests and run API test suites through gh cli",
	Long:          `A command line API tester: send requests, keep them in collections and run ordered test suites.`,
	Example: `  gh-apitest suite.yaml                  # defaults to run command
  gh-apitest run --env .env -i <issue-url> suite.yaml
  gh-apitest run -c 1 --xlsx report.xlsx
  gh-apitest send POST https://api.example.com/users -H 'Content-Type: application/json' -d '{"name":"ada"}'
  gh-apitest collection list
  gh-apitest watch ws://localhost:8765/events

  # Example configuration file fragment:
  extensions:
    apitest:
      timeout: 10s
      database: /home/me/apitester.db
      env: .env`,
}

func Execute() error {
	cmd, _, err := rootCmd.Find(os.Args[1:])
	if err != nil || cmd == nil {
		args := append([]string{"run"}, os.Args[1:]...)
		rootCmd.SetArgs(args)
	}
	return rootCmd.Execute()
}

var verbose bool = false

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(collectionCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose debug information")
	rootCmd.PersistentFlags().String("database", "", "Path of the request database (default $XDG_DATA_HOME/gh-apitest/apitester.db)")
	rootCmd.SetHelpTemplate(rootCmdUsageTemplate)
	rootCmd.SetUsageTemplate(rootCmdUsageTemplate)
}

func newLogger() *log.Logger {
	logger := log.New(io.Discard, "", log.LstdFlags)
	if verbose {
		logger = log.Default()
	}
	return logger
}

const rootCmdUsageTemplate string = `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}

  If no command is specified, the default is "run". The default command takes a suite file, or a saved collection with --collection.
  Use "gh-apitest run --help" for more information about the default command behaviour.{{if gt (len .Aliases) 0}}
Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}{{if eq (len .Groups) 0}}

Available Commands:{{range $cmds}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{else}}{{range $group := .Groups}}

{{.Title}}{{range $cmds}}{{if (and (eq .GroupID $group.ID) (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if not .AllChildCommandsHaveGroup}}

Additional Commands:{{range $cmds}}{{if (and (eq .GroupID "") (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasHelpSubCommands}}

Additional help topics:{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .CommandPath .CommandPathPadding}} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`
