package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var deleteYes bool

var deleteCmd = &cobra.Command{
	Use:     "delete <recording>",
	Aliases: []string{"rm"},
	Short:   "Delete a recording and its file",
	Long: `Delete the audio file of a recording and remove it from the list. If the
file cannot be deleted the recording stays in the list.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := newService(nil, false)
		if _, err := svc.Refresh(cmd.Context()); err != nil {
			return fmt.Errorf("failed to load recordings: %w", err)
		}

		rec, err := svc.Find(args[0])
		if err != nil {
			return err
		}

		if !deleteYes {
			question := fmt.Sprintf("Delete \"%s\" (%s, %s)?", rec.Name, rec.DateDisplay(), rec.DurationDisplay())
			if !confirm(os.Stdin, question) {
				fmt.Println("Cancelled")
				return nil
			}
		}

		if _, err := svc.Delete(cmd.Context(), rec.ID); err != nil {
			return fmt.Errorf("failed to delete recording: %w", err)
		}
		fmt.Printf("🗑️  Deleted \"%s\"\n", rec.Name)
		return nil
	},
}

// confirm asks a yes/no question, defaulting to no
func confirm(in io.Reader, question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "delete without asking for confirmation")
}
