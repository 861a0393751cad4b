package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/marcus/rollcall/internal/models"
	"github.com/marcus/rollcall/internal/output"
)

type rosterReport struct {
	models.RosterSnapshot
	Stale      bool   `json:"stale"`
	FetchError string `json:"fetch_error,omitempty"`
}

var rosterCmd = &cobra.Command{
	Use:   "roster [class-id]",
	Short: "Show students and classes, refreshing the offline copy",
	Long: `Fetch the roster from the server and keep a copy on this device. When the
server cannot be reached the last copy is shown instead, marked stale.`,
	GroupID: "core",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		classID := ""
		if len(args) > 0 {
			classID = args[0]
		}

		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		r, err := e.Roster.Get(cmd.Context(), classID)
		if err != nil {
			return err
		}

		if jsonOut {
			out := rosterReport{RosterSnapshot: r.RosterSnapshot, Stale: r.Stale}
			if r.FetchErr != nil {
				out.FetchError = r.FetchErr.Error()
			}
			return output.JSON(out)
		}
		if r.Stale {
			output.Warning("showing cached roster from %s (%v)", output.FormatTimeAgo(r.FetchedAt), r.FetchErr)
		}
		for _, c := range r.Classes {
			fmt.Printf("%s  %s", c.ID, c.Name)
			if c.Grade != "" {
				fmt.Printf("  (grade %s)", c.Grade)
			}
			fmt.Println()
		}
		if len(r.Students) == 0 {
			fmt.Println("No students.")
			return nil
		}
		fmt.Println(studentTable(r.Students))
		fmt.Printf("%d student(s)\n", len(r.Students))
		return nil
	},
}

func studentTable(students []models.Student) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "ROLL", "NAME", "CLASS", "RFID")
	for _, s := range students {
		t.Row(s.ID, s.RollNumber, s.Name, s.ClassID, s.RFIDTag)
	}
	return t.String()
}

func init() {
	rosterCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(rosterCmd)
}
