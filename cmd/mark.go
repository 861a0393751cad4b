package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/marcus/rollcall/internal/dateparse"
	"github.com/marcus/rollcall/internal/engine"
	"github.com/marcus/rollcall/internal/models"
	"github.com/marcus/rollcall/internal/output"
)

var errStudentRequired = errors.New("student id required")

// markInput is what the flags and the interactive form collect.
type markInput struct {
	StudentID string
	Status    string
	ClassID   string
	Date      string
	Period    string
	Subject   string
	Method    string
}

var markCmd = &cobra.Command{
	Use:   "mark [student-id] [present|absent]",
	Short: "Record an attendance mark",
	Long: `Record attendance for one student. The mark is stored on this device
immediately and delivered to the server on the next sync; no network is needed.

A later mark for the same student, date and period replaces the earlier one.`,
	Example: `  rollcall mark s-104 --class 7a
  rollcall mark s-104 absent --class 7a --period 3 --date yesterday
  rollcall mark --rfid 04A2B9C1
  rollcall mark -i`,
	GroupID: "core",
	Args:    cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := markInput{}
		in.ClassID, _ = cmd.Flags().GetString("class")
		in.Date, _ = cmd.Flags().GetString("date")
		in.Period, _ = cmd.Flags().GetString("period")
		in.Subject, _ = cmd.Flags().GetString("subject")
		in.Method, _ = cmd.Flags().GetString("method")
		in.Status = string(models.StatusPresent)
		if len(args) > 0 {
			in.StudentID = args[0]
		}
		if len(args) > 1 {
			in.Status = args[1]
		}
		if absent, _ := cmd.Flags().GetBool("absent"); absent {
			in.Status = string(models.StatusAbsent)
		}
		interactive, _ := cmd.Flags().GetBool("interactive")
		tag, _ := cmd.Flags().GetString("rfid")
		jsonOut, _ := cmd.Flags().GetBool("json")

		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		switch {
		case tag != "":
			st, err := e.Roster.LookupRFID(tag)
			if err != nil {
				return err
			}
			if st == nil {
				return fmt.Errorf("no cached student has RFID tag %q (run 'rollcall roster' while online)", tag)
			}
			in.StudentID = st.ID
			in.Method = string(models.MethodRFID)
			if in.ClassID == "" {
				in.ClassID = st.ClassID
			}
		case interactive:
			if !output.IsTerminal() {
				return errors.New("--interactive needs a terminal")
			}
			if err := runMarkForm(e, &in); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return nil
				}
				return err
			}
		}

		if in.StudentID != "" && in.ClassID == "" {
			if st, err := e.Roster.LookupStudent(in.StudentID); err == nil && st != nil {
				in.ClassID = st.ClassID
			}
		}

		ev, err := buildMark(in, time.Now())
		if err != nil {
			return err
		}
		res, err := e.Mark(ev)
		if err != nil {
			return err
		}

		if jsonOut {
			return output.JSON(res.Event)
		}
		output.Success("Marked %s %s for %s", res.Event.StudentID, res.Event.Status, output.SlotLabel(res.Event.Date, res.Event.Period))
		if res.Replaced != "" {
			output.Info("  replaced earlier mark %s", output.ShortID(res.Replaced))
		}
		return nil
	},
}

// buildMark turns collected input into an event ready for the queue.
// Field validation beyond parsing is the queue's job.
func buildMark(in markInput, now time.Time) (models.AttendanceEvent, error) {
	if strings.TrimSpace(in.StudentID) == "" {
		return models.AttendanceEvent{}, errStudentRequired
	}
	dateInput := in.Date
	if dateInput == "" {
		dateInput = "today"
	}
	date, err := dateparse.ParseDateFrom(dateInput, now)
	if err != nil {
		return models.AttendanceEvent{}, fmt.Errorf("--date: %w", err)
	}
	method := in.Method
	if method == "" {
		method = string(models.MethodManual)
	}
	status := strings.ToLower(strings.TrimSpace(in.Status))
	if status == "" {
		status = string(models.StatusPresent)
	}
	return models.AttendanceEvent{
		StudentID:  strings.TrimSpace(in.StudentID),
		ClassID:    strings.TrimSpace(in.ClassID),
		Subject:    strings.TrimSpace(in.Subject),
		Period:     strings.TrimSpace(in.Period),
		Date:       date,
		Status:     models.Status(status),
		Method:     models.Method(strings.ToLower(method)),
		CapturedAt: now,
	}, nil
}

// runMarkForm asks for the class, the student and the status. Choices come
// from the cached roster; without one the ids are typed in.
func runMarkForm(e *engine.Engine, in *markInput) error {
	snap, err := e.Roster.Cached("")
	if err != nil {
		return err
	}

	if snap == nil || len(snap.Students) == 0 {
		return huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Student ID").Value(&in.StudentID).Validate(requireText("student id")),
			huh.NewInput().Title("Class ID").Value(&in.ClassID).Validate(requireText("class id")),
			statusSelect(&in.Status),
			huh.NewInput().Title("Period").Value(&in.Period).Placeholder("optional"),
		).Title("Mark attendance (no cached roster)")).WithTheme(huh.ThemeDracula()).Run()
	}

	if in.ClassID == "" && len(snap.Classes) > 0 {
		classOpts := make([]huh.Option[string], 0, len(snap.Classes))
		for _, c := range snap.Classes {
			classOpts = append(classOpts, huh.NewOption(fmt.Sprintf("%s  %s", c.ID, c.Name), c.ID))
		}
		err := huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().Title("Class").Options(classOpts...).Value(&in.ClassID),
		)).WithTheme(huh.ThemeDracula()).Run()
		if err != nil {
			return err
		}
	}

	var studentOpts []huh.Option[string]
	for _, st := range snap.Students {
		if in.ClassID != "" && st.ClassID != in.ClassID {
			continue
		}
		label := st.Name
		if st.RollNumber != "" {
			label = st.RollNumber + ". " + st.Name
		}
		studentOpts = append(studentOpts, huh.NewOption(label, st.ID))
	}
	if len(studentOpts) == 0 {
		return fmt.Errorf("no cached students in class %q", in.ClassID)
	}

	return huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().Title("Student").Options(studentOpts...).Value(&in.StudentID),
		statusSelect(&in.Status),
		huh.NewInput().Title("Period").Value(&in.Period).Placeholder("optional"),
	).Title("Mark attendance: "+in.ClassID)).WithTheme(huh.ThemeDracula()).Run()
}

func statusSelect(v *string) *huh.Select[string] {
	return huh.NewSelect[string]().
		Title("Status").
		Options(
			huh.NewOption("Present", string(models.StatusPresent)),
			huh.NewOption("Absent", string(models.StatusAbsent)),
		).
		Value(v)
}

func requireText(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func init() {
	markCmd.Flags().StringP("class", "c", "", "Class id (looked up from the cached roster when omitted)")
	markCmd.Flags().StringP("date", "d", "today", "Date: YYYY-MM-DD, today, yesterday, -Nd, -Nw or a weekday")
	markCmd.Flags().StringP("period", "p", "", "Period or session within the day")
	markCmd.Flags().StringP("subject", "s", "", "Subject")
	markCmd.Flags().StringP("method", "m", string(models.MethodManual), "Capture method: manual, facial, rfid")
	markCmd.Flags().Bool("absent", false, "Mark absent")
	markCmd.Flags().String("rfid", "", "Resolve the student from a scanned RFID tag")
	markCmd.Flags().BoolP("interactive", "i", false, "Pick class and student from the cached roster")
	markCmd.Flags().Bool("json", false, "Output the stored mark as JSON")
	rootCmd.AddCommand(markCmd)
}
