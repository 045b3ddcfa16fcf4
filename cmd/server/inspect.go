package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/ifuryst/cadence/internal/config"
	"github.com/ifuryst/cadence/internal/service"
	"github.com/ifuryst/cadence/internal/service/recurrence"
	"github.com/ifuryst/cadence/pkg/clock"
)

// inspector loads one definition for the read-only commands.
type inspector struct {
	db          *gorm.DB
	definitions *service.DefinitionStore
	engine      *recurrence.Engine
	clock       clock.Clock
}

func openInspector() (*inspector, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := service.OpenDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	clk := clock.System()
	return &inspector{
		db:          db,
		definitions: service.NewDefinitionStore(db),
		engine:      recurrence.NewEngine(clk),
		clock:       clk,
	}, nil
}

func (in *inspector) Close() {
	service.CloseDatabase(in.db)
}

func newNextCmd() *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "next <definition-id>",
		Short: "Print the next occurrence of a recurrence definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInspector()
			if err != nil {
				return err
			}
			defer in.Close()

			from := in.clock.Now()
			if at != "" {
				if from, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("--at must be RFC3339: %w", err)
				}
			}

			def, err := in.definitions.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			next, err := in.engine.ResolveNext(def, from)
			return printNext(cmd.OutOrStdout(), next, err)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "resolve from this instant (RFC3339) instead of now")

	return cmd
}

func printNext(w io.Writer, next *time.Time, err error) error {
	switch {
	case errors.Is(err, recurrence.ErrOutOfWindow):
		fmt.Fprintln(w, "no next occurrence")
		return nil
	case err != nil:
		return err
	case next == nil:
		fmt.Fprintf(w, "no occurrence within %d days\n", recurrence.ScanHorizonDays)
		return nil
	default:
		fmt.Fprintln(w, next.Format(time.RFC3339))
		return nil
	}
}

func newOccurrencesCmd() *cobra.Command {
	var (
		from, to string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "occurrences <definition-id>",
		Short: "List the occurrences of a recurrence definition in a date range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := civil.ParseDate(from)
			if err != nil {
				return fmt.Errorf("--from must be YYYY-MM-DD: %w", err)
			}
			end, err := civil.ParseDate(to)
			if err != nil {
				return fmt.Errorf("--to must be YYYY-MM-DD: %w", err)
			}
			if err := recurrence.CheckRange(start, end); err != nil {
				return err
			}

			in, err := openInspector()
			if err != nil {
				return err
			}
			defer in.Close()
			def, err := in.definitions.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := recurrence.Validate(def); err != nil {
				return err
			}

			return printOccurrences(cmd.OutOrStdout(), in.engine.Generate(def, start, end), asJSON)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func printOccurrences(w io.Writer, occurrences []recurrence.Occurrence, asJSON bool) error {
	if asJSON {
		if occurrences == nil {
			occurrences = []recurrence.Occurrence{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(occurrences)
	}

	for _, occ := range occurrences {
		fmt.Fprintf(w, "%s\t%s\t%s\n", occ.Date, occ.ScheduledAt.Format(time.RFC3339), occ.Platform)
	}
	fmt.Fprintf(w, "%d occurrence(s)\n", len(occurrences))
	return nil
}
