// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/containerd/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pimsgo/pims/envconfig"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-26s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	if runtime.GOOS == "windows" && term.IsTerminal(int(os.Stdout.Fd())) {
		console.ConsoleFromFile(os.Stdin) //nolint:errcheck
	}

	rootCmd := &cobra.Command{
		Use:           "pims",
		Short:         "Image import server",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	serveCmd := newServeCmd()
	importCmd := newImportCmd()
	formatsCmd := newFormatsCmd()
	historyCmd := newHistoryCmd()
	eventsCmd := newEventsCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	pipelineEnvs := []envconfig.EnvVar{
		envVars["PIMS_ROOT"],
		envVars["PIMS_PENDING"],
		envVars["PIMS_HISTOGRAM"],
		envVars["PIMS_CONVERSION_THRESHOLD"],
		envVars["PIMS_DB"],
		envVars["PIMS_NOLEDGER"],
	}

	for _, cmd := range []*cobra.Command{serveCmd, importCmd, formatsCmd, historyCmd, eventsCmd} {
		switch cmd {
		case serveCmd:
			appendEnvDocs(cmd, append([]envconfig.EnvVar{
				envVars["PIMS_DEBUG"],
				envVars["PIMS_HOST"],
				envVars["PIMS_ORIGINS"],
			}, pipelineEnvs...))
		case importCmd:
			appendEnvDocs(cmd, append([]envconfig.EnvVar{envVars["PIMS_HOST"]}, pipelineEnvs...))
		default:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["PIMS_HOST"]})
		}
	}

	rootCmd.AddCommand(
		serveCmd,
		importCmd,
		formatsCmd,
		historyCmd,
		eventsCmd,
	)

	return rootCmd
}
