package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/audiolibrelab/dictaphone/internal/recording"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"
)

var (
	listProbe  bool
	listFormat string
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recordings, newest first",
	Long: `Scan the recordings directory and show every recording with its name,
duration and creation date. Files recorded elsewhere show "--:--" as their
duration unless --probe is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := newService(nil, listProbe)
		list, err := svc.Refresh(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list recordings: %w", err)
		}

		switch listFormat {
		case "yaml":
			out, err := yaml.Marshal(toListEntries(list))
			if err != nil {
				return fmt.Errorf("error marshaling recordings: %w", err)
			}
			fmt.Print(string(out))
		case "table":
			if len(list) == 0 {
				fmt.Printf("No recordings in %s\n", cfg.Output.Directory)
				break
			}
			fmt.Println(renderRecordings(list, isTerminal(os.Stdout)))
		default:
			return fmt.Errorf("unknown format %q (valid: table, yaml)", listFormat)
		}

		if orphans := svc.Orphans(); len(orphans) > 0 {
			fmt.Fprintf(os.Stderr, "%d index entries point to missing files, run 'dictaphone prune' to remove them\n", len(orphans))
		}
		return nil
	},
}

type listEntry struct {
	Position int    `yaml:"position"`
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Duration string `yaml:"duration"`
	Created  string `yaml:"created"`
	Path     string `yaml:"path"`
}

func toListEntries(list []recording.Recording) []listEntry {
	entries := make([]listEntry, 0, len(list))
	for i, rec := range list {
		entries = append(entries, listEntry{
			Position: i + 1,
			ID:       rec.ID,
			Name:     rec.Name,
			Duration: rec.DurationDisplay(),
			Created:  rec.DateDisplay(),
			Path:     rec.FilePath,
		})
	}
	return entries
}

func renderRecordings(list []recording.Recording, terminal bool) string {
	tw := table.NewWriter()
	if terminal {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleLight)
	}

	tw.AppendHeader(table.Row{"#", "Name", "Duration", "Created", "ID", "File"})
	for i, rec := range list {
		tw.AppendRow(table.Row{
			strconv.Itoa(i + 1),
			rec.Name,
			rec.DurationDisplay(),
			rec.DateDisplay(),
			shortID(rec.ID),
			filepath.Base(rec.FilePath),
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func init() {
	listCmd.Flags().BoolVar(&listProbe, "probe", false, "measure unknown durations with ffprobe")
	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format: table or yaml")
}
