// cmd_list.go - Formats, History und Events Commands
// Hauptfunktionen: FormatsHandler, HistoryHandler, EventsHandler, renderImports
package cmd

import (
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/pimsgo/pims/api"
	"github.com/pimsgo/pims/envconfig"
	"github.com/pimsgo/pims/formats/common"
)

// newTable erstellt eine Tabelle ohne Rahmen im Stil von "docker ps"
func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

// =============================================================================
// Formate
// =============================================================================

// FormatsHandler - Listet die erkannten Formate in Erkennungsreihenfolge
func FormatsHandler(cmd *cobra.Command, _ []string) error {
	var infos []api.FormatInfo

	if local, _ := cmd.Flags().GetBool("local"); local {
		for _, d := range common.Formats(int(envconfig.ConversionThreshold())) {
			infos = append(infos, api.FormatInfo{
				ID:               d.ID,
				Name:             d.Name,
				Spatial:          d.Spatial,
				Readable:         d.Readable,
				ConversionTarget: d.ConversionTarget(),
			})
		}
	} else {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return err
		}
		resp, err := client.Formats(cmd.Context())
		if err != nil {
			return err
		}
		infos = resp.Formats
	}

	renderFormats(cmd.OutOrStdout(), infos)
	return nil
}

func renderFormats(w io.Writer, infos []api.FormatInfo) {
	var data [][]string
	for _, f := range infos {
		target := f.ConversionTarget
		if target == "" {
			target = "-"
		}
		data = append(data, []string{f.ID, f.Name, yesNo(f.Spatial), yesNo(f.Readable), target})
	}

	table := newTable(w, []string{"ID", "NAME", "SPATIAL", "READABLE", "CONVERTS TO"})
	table.AppendBulk(data)
	table.Render()
}

// =============================================================================
// Protokoll
// =============================================================================

// HistoryHandler - Listet die letzten Imports vom Server
func HistoryHandler(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	resp, err := client.Imports(cmd.Context(), limit)
	if err != nil {
		return err
	}

	renderHistory(cmd.OutOrStdout(), resp.Imports, time.Now())
	return nil
}

func renderHistory(w io.Writer, imports []api.ImportRecord, now time.Time) {
	var data [][]string
	for _, imp := range imports {
		format := imp.Format
		if format == "" {
			format = "-"
		}
		data = append(data, []string{imp.ID, format, imp.State, humanTime(imp.StartedAt, now), imp.Error})
	}

	table := newTable(w, []string{"ID", "FORMAT", "STATE", "STARTED", "ERROR"})
	table.AppendBulk(data)
	table.Render()
}

// EventsHandler - Zeigt die Ereignisse eines Imports
func EventsHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	resp, err := client.Events(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	var data [][]string
	for _, e := range resp.Events {
		detail := e.Error
		if detail == "" {
			detail = e.Format
		}
		data = append(data, []string{e.CreatedAt.Format("15:04:05.000"), e.Type, e.Path, detail})
	}

	table := newTable(cmd.OutOrStdout(), []string{"TIME", "EVENT", "PATH", "DETAIL"})
	table.AppendBulk(data)
	table.Render()
	return nil
}

// renderImports gibt die Ergebnisse von pims import aus und zaehlt Fehler
func renderImports(w io.Writer, outcomes []importOutcome) (failed int) {
	var data [][]string
	for _, o := range outcomes {
		if o.err != nil {
			failed++
			id := "-"
			if o.resp != nil && o.resp.ID != "" {
				id = o.resp.ID
			}
			data = append(data, []string{o.path, id, "-", "failed", o.err.Error()})
			continue
		}
		data = append(data, []string{o.path, o.resp.ID, o.resp.Format, o.resp.State, o.resp.Upload})
	}

	table := newTable(w, []string{"FILE", "ID", "FORMAT", "STATE", "RESULT"})
	table.AppendBulk(data)
	table.Render()
	return failed
}

// =============================================================================
// Hilfsfunktionen
// =============================================================================

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// humanTime gibt eine relative Zeitangabe zurueck
func humanTime(t, now time.Time) string {
	if t.IsZero() {
		return "Never"
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "Less than a minute ago"
	case d < time.Hour:
		return pluralize(int(d.Minutes()), "minute") + " ago"
	case d < 48*time.Hour:
		return pluralize(int(d.Hours()), "hour") + " ago"
	default:
		return pluralize(int(d.Hours()/24), "day") + " ago"
	}
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}

// newFormatsCmd - Erstellt den formats Command
func newFormatsCmd() *cobra.Command {
	formatsCmd := &cobra.Command{
		Use:   "formats",
		Short: "List recognized image formats",
		Args:  cobra.ExactArgs(0),
		RunE:  FormatsHandler,
	}
	formatsCmd.Flags().Bool("local", false, "List the formats of this binary instead of asking the server")
	return formatsCmd
}

// newHistoryCmd - Erstellt den history Command
func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"ls"},
		Short:   "List recorded imports",
		Args:    cobra.ExactArgs(0),
		RunE:    HistoryHandler,
	}
	historyCmd.Flags().IntP("limit", "n", 20, "Number of imports to show, 0 shows all")
	return historyCmd
}

// newEventsCmd - Erstellt den events Command
func newEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events ID",
		Short: "Show the lifecycle events of an import",
		Args:  cobra.ExactArgs(1),
		RunE:  EventsHandler,
	}
}
