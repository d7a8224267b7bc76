package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/sadopc/tabula/internal/audit"
	"github.com/sadopc/tabula/internal/export"
)

func newRowsCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rows",
		Short: "List, add, update and delete rows",
	}

	list := &cobra.Command{
		Use:   "list COLLECTION",
		Short: "List rows with formulas and summaries evaluated",
		Args:  cobra.ExactArgs(1),
		RunE: o.run(func(cmd *cobra.Command, a *app, args []string) error {
			l, err := a.svc.Rows(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.out.Listing(l)
		}),
	}

	var addSets []string
	var addData string
	add := &cobra.Command{
		Use:   "add COLLECTION",
		Short: "Add a row",
		Long: `Add a row. Values are given as --set KEY=VALUE, where KEY is a field's
display name, storage key or any loose spelling of it, or as a JSON object
with --data. --set wins over --data for the same key.`,
		Args: cobra.ExactArgs(1),
		RunE: o.run(func(cmd *cobra.Command, a *app, args []string) error {
			payload, err := parsePayload(addData, addSets)
			if err != nil {
				return err
			}
			id, err := a.svc.AddRow(cmd.Context(), args[0], payload)
			if err != nil {
				return err
			}
			return a.out.Done(fmt.Sprintf("added row %d", id), map[string]int64{"id": id})
		}),
	}
	add.Flags().StringArrayVar(&addSets, "set", nil, "Field value as KEY=VALUE (repeatable)")
	add.Flags().StringVar(&addData, "data", "", "Row values as a JSON object")

	var updSets []string
	var updData string
	update := &cobra.Command{
		Use:   "update COLLECTION ROW_ID",
		Short: "Update a row",
		Args:  cobra.ExactArgs(2),
		RunE: o.run(func(cmd *cobra.Command, a *app, args []string) error {
			rowID, err := parseRowID(args[1])
			if err != nil {
				return err
			}
			payload, err := parsePayload(updData, updSets)
			if err != nil {
				return err
			}
			if err := a.svc.UpdateRow(cmd.Context(), args[0], rowID, payload); err != nil {
				return err
			}
			return a.out.Done(fmt.Sprintf("updated row %d", rowID), map[string]int64{"id": rowID})
		}),
	}
	update.Flags().StringArrayVar(&updSets, "set", nil, "Field value as KEY=VALUE (repeatable)")
	update.Flags().StringVar(&updData, "data", "", "Row values as a JSON object")

	del := &cobra.Command{
		Use:   "delete COLLECTION ROW_ID",
		Short: "Delete a row and every collection nested under it",
		Args:  cobra.ExactArgs(2),
		RunE: o.run(func(cmd *cobra.Command, a *app, args []string) error {
			rowID, err := parseRowID(args[1])
			if err != nil {
				return err
			}
			if err := a.svc.DeleteRow(cmd.Context(), args[0], rowID); err != nil {
				return err
			}
			return a.out.Done(fmt.Sprintf("deleted row %d", rowID), map[string]int64{"id": rowID})
		}),
	}

	var format string
	exp := &cobra.Command{
		Use:   "export COLLECTION FILE",
		Short: "Write rows with formulas evaluated to a CSV or JSON file",
		Args:  cobra.ExactArgs(2),
		RunE: o.run(func(cmd *cobra.Command, a *app, args []string) error {
			l, err := a.svc.Rows(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			n, err := export.ToFile(args[1], format, l)
			if err != nil {
				return err
			}
			return a.out.Done(fmt.Sprintf("exported %d rows to %s", n, args[1]), map[string]any{"rows": n, "path": args[1]})
		}),
	}
	exp.Flags().StringVar(&format, "format", "", "csv or json (default from the file extension)")

	cmd.AddCommand(list, add, update, del, exp)
	return cmd
}

func newCalendarCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "calendar",
		Short: "List dated rows across every collection",
		Args:  cobra.NoArgs,
		RunE: o.run(func(cmd *cobra.Command, a *app, _ []string) error {
			events, err := a.svc.Calendar(cmd.Context())
			if err != nil {
				return err
			}
			return a.out.Events(events)
		}),
	}
}

func newAuditCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the mutation journal",
	}
	var n int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print the most recent journal entries",
		Args:  cobra.NoArgs,
		RunE: o.run(func(cmd *cobra.Command, a *app, _ []string) error {
			path, err := a.cfg.AuditPath()
			if err != nil {
				return err
			}
			entries, err := audit.Tail(path, n)
			if err != nil {
				return err
			}
			return a.out.Journal(entries)
		}),
	}
	tail.Flags().IntVarP(&n, "lines", "n", 20, "Number of entries")
	cmd.AddCommand(tail)
	return cmd
}

// parsePayload merges a JSON object with KEY=VALUE pairs. Values from
// sets stay strings; the engine coerces them to the field type.
func parsePayload(data string, sets []string) (map[string]any, error) {
	payload := map[string]any{}
	if strings.TrimSpace(data) != "" {
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return nil, fmt.Errorf("--data: %w", err)
		}
	}
	for _, s := range sets {
		k, v, ok := strings.Cut(s, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("--set %q: want KEY=VALUE", s)
		}
		payload[strings.TrimSpace(k)] = v
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("no values given: use --set KEY=VALUE or --data")
	}
	return payload, nil
}

func parseRowID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid row id %q", s)
	}
	return id, nil
}
