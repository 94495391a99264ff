package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/0xysh/codex-switcher/internal/app"
	"github.com/0xysh/codex-switcher/internal/session"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

func outputFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "output format (table|json|yaml)",
		Value:   outputTable,
		Validator: func(v string) error {
			switch v {
			case outputTable, outputJSON, outputYAML:
				return nil
			}
			return fmt.Errorf("unsupported output format: %s", v)
		},
	}
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func stderr(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}

// render writes v as JSON or YAML, or calls table for the human-readable form.
func render(w io.Writer, format string, v any, table func(w io.Writer) error) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return table(w)
	}
}

func accountsTable(accounts []app.AccountInfo) func(io.Writer) error {
	return func(out io.Writer) error {
		if len(accounts) == 0 {
			_, err := fmt.Fprintln(out, "No accounts saved")
			return err
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "\tNAME\tTYPE\tEMAIL\tPLAN\tLAST USED\tID")
		for _, a := range accounts {
			marker := ""
			if a.IsActive {
				marker = "*"
			}
			name := a.Name
			if a.CredentialsMissing {
				name += " (credentials missing)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				marker,
				name,
				a.Kind,
				orDash(a.Email),
				orDash(a.PlanType),
				lastUsed(a.LastUsedAt),
				a.ID,
			)
		}
		return w.Flush()
	}
}

func summaryTable(s session.Summary) func(io.Writer) error {
	return func(out io.Writer) error {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Status:\t%s\n", s.Status)
		if s.Mode != "" {
			fmt.Fprintf(w, "Mode:\t%s\n", s.Mode)
		}
		if s.Email != "" {
			fmt.Fprintf(w, "Email:\t%s\n", s.Email)
		}
		if s.PlanType != "" {
			fmt.Fprintf(w, "Plan:\t%s\n", s.PlanType)
		}
		fmt.Fprintf(w, "File:\t%s\n", s.AuthFilePath)
		if s.LastModified != nil {
			fmt.Fprintf(w, "Modified:\t%s\n", humanize.Time(*s.LastModified))
		}
		if s.Message != "" {
			fmt.Fprintf(w, "Message:\t%s\n", s.Message)
		}
		return w.Flush()
	}
}

func lastUsed(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return humanize.Time(*t)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
