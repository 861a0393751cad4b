package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/marcus/rollcall/internal/api"
	"github.com/marcus/rollcall/internal/models"
	"github.com/marcus/rollcall/internal/serverdb"
)

// rosterFile is the import-roster input format.
type rosterFile struct {
	Classes  []models.Class   `yaml:"classes"`
	Students []models.Student `yaml:"students"`
}

func runAdmin(name string, args []string) int {
	var err error
	switch name {
	case "token":
		err = runToken(args, os.Stdout)
	case "import-roster":
		err = runImportRoster(args, os.Stdout)
	case "attendance":
		err = runAttendance(args, os.Stdout)
	}
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func runToken(args []string, out io.Writer) error {
	cfg := api.LoadConfig()
	fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
	subject := fs.String("subject", "", "teacher id the token is issued to")
	role := fs.String("role", api.RoleTeacher, "role: teacher or reader")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "token lifetime")
	key := fs.String("key", cfg.JWTKey, "signing key (default: ROLLCALL_SERVER_JWT_KEY)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *subject == "" {
		return errors.New("--subject is required")
	}
	if *role != api.RoleTeacher && *role != api.RoleReader {
		return fmt.Errorf("unknown role %q", *role)
	}
	if *key == "" {
		return errors.New("no signing key: set ROLLCALL_SERVER_JWT_KEY or --key")
	}

	tok, exp, err := api.IssueToken(*key, cfg.JWTIssuer, *subject, *role, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, tok)
	fmt.Fprintf(os.Stderr, "expires %s\n", exp.Format(time.RFC3339))
	return nil
}

func dbFlags(fs *pflag.FlagSet) (driver, dsn *string) {
	cfg := api.LoadConfig()
	driver = fs.String("driver", cfg.DBDriver, "database driver: sqlite or pgx")
	dsn = fs.String("dsn", cfg.DBDSN, "database path or connection string")
	return driver, dsn
}

func runImportRoster(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("import-roster", pflag.ContinueOnError)
	file := fs.StringP("file", "f", "", "roster YAML file")
	driver, dsn := dbFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("--file is required")
	}

	roster, err := readRosterFile(*file)
	if err != nil {
		return err
	}

	store, err := serverdb.Open(*driver, *dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.ImportRoster(context.Background(), roster.Classes, roster.Students); err != nil {
		return err
	}
	fmt.Fprintf(out, "imported %d classes, %d students\n", len(roster.Classes), len(roster.Students))
	return nil
}

func readRosterFile(path string) (*rosterFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r rosterFile
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	classes := make(map[string]bool, len(r.Classes))
	for i, c := range r.Classes {
		if c.ID == "" || c.Name == "" {
			return nil, fmt.Errorf("%s: class %d needs id and name", path, i+1)
		}
		classes[c.ID] = true
	}
	for i, s := range r.Students {
		if s.ID == "" || s.Name == "" || s.ClassID == "" {
			return nil, fmt.Errorf("%s: student %d needs id, name and class_id", path, i+1)
		}
		if !classes[s.ClassID] {
			return nil, fmt.Errorf("%s: student %s is in unknown class %q", path, s.ID, s.ClassID)
		}
	}
	return &r, nil
}

func runAttendance(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("attendance", pflag.ContinueOnError)
	classID := fs.String("class", "", "class id")
	date := fs.String("date", time.Now().Format(models.DateLayout), "date (YYYY-MM-DD)")
	driver, dsn := dbFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *classID == "" {
		return errors.New("--class is required")
	}

	store, err := serverdb.Open(*driver, *dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	marks, err := store.ListAttendance(context.Background(), *classID, *date)
	if err != nil {
		return err
	}
	if len(marks) == 0 {
		fmt.Fprintf(out, "no attendance for %s on %s\n", *classID, *date)
		return nil
	}
	for _, m := range marks {
		period := m.Period
		if period == "" {
			period = "-"
		}
		fmt.Fprintf(out, "%-12s %-6s %-8s %-7s by %s at %s\n",
			m.StudentID, period, m.Status, m.Method, m.TeacherID, m.CapturedAt.Local().Format("15:04:05"))
	}
	return nil
}
