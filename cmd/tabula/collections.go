package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sadopc/tabula/internal/catalog"
	"github.com/sadopc/tabula/internal/completion"
	"github.com/sadopc/tabula/internal/schema"
)

func newCollectionsCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "collections",
		Aliases: []string{"coll"},
		Short:   "Create, list, rename and delete collections",
	}

	var (
		fieldSpecs  []string
		summaries   []string
		parentColl  string
		parentRow   int64
		parentField string
	)
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a collection",
		Long: `Create a collection. Fields are given as NAME:TYPE, with the target
collection id or the expression as a third part:

  --field Title:Text
  --field Author:Relation:<collection id>
  --field "Double:Formula:row.Pages * 2"

Summary formulas are given as NAME=EXPRESSION.`,
		Args: cobra.ExactArgs(1),
		RunE: o.run(func(cmd *cobra.Command, a *app, args []string) error {
			in := catalog.NewCollection{
				Name:               args[0],
				ParentCollectionID: parentColl,
				ParentRowID:        parentRow,
				ParentField:        parentField,
			}
			for _, spec := range fieldSpecs {
				f, err := parseFieldSpec(spec)
				if err != nil {
					return err
				}
				in.Fields = append(in.Fields, f)
			}
			for _, spec := range summaries {
				name, expr, ok := strings.Cut(spec, "=")
				if !ok {
					return fmt.Errorf("summary %q: want NAME=EXPRESSION", spec)
				}
				in.Summaries = append(in.Summaries, schema.SummaryFormula{Name: strings.TrimSpace(name), Expression: expr})
			}
			id, err := a.svc.CreateCollection(cmd.Context(), in)
			if err != nil {
				return err
			}
			return a.out.Done("created collection "+id, map[string]string{"id": id})
		}),
	}
	create.Flags().StringArrayVarP(&fieldSpecs, "field", "f", nil, "Field as NAME:TYPE[:TARGET|EXPRESSION] (repeatable)")
	create.Flags().StringArrayVarP(&summaries, "summary", "s", nil, "Summary formula as NAME=EXPRESSION (repeatable)")
	create.Flags().StringVar(&parentColl, "parent-collection", "", "Parent collection id for a nested collection")
	create.Flags().Int64Var(&parentRow, "parent-row", 0, "Parent row id for a nested collection")
	create.Flags().StringVar(&parentField, "parent-field", "", "NestedDatabase field key on the parent")

	list := &cobra.Command{
		Use:   "list",
		Short: "List every collection",
		Args:  cobra.NoArgs,
		RunE: o.run(func(cmd *cobra.Command, a *app, _ []string) error {
			cs, err := a.svc.Collections(cmd.Context())
			if err != nil {
				return err
			}
			return a.out.Collections(cs)
		}),
	}

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Show a collection's fields and summary formulas",
		Args:  cobra.ExactArgs(1),
		RunE: o.run(func(cmd *cobra.Command, a *app, args []string) error {
			c, err := a.svc.Collection(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.out.Schema(c)
		}),
	}

	rename := &cobra.Command{
		Use:   "rename ID NAME",
		Short: "Rename a collection",
		Args:  cobra.ExactArgs(2),
		RunE: o.run(func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.svc.RenameCollection(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			return a.out.Done("renamed collection "+args[0], map[string]string{"id": args[0], "name": args[1]})
		}),
	}

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a collection and its table",
		Args:  cobra.ExactArgs(1),
		RunE: o.run(func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.svc.DeleteCollection(cmd.Context(), args[0]); err != nil {
				return err
			}
			return a.out.Done("deleted collection "+args[0], map[string]string{"id": args[0]})
		}),
	}

	var nestedIn string
	nested := &cobra.Command{
		Use:   "nested ROW_ID",
		Short: "List the collections nested under a row",
		Args:  cobra.ExactArgs(1),
		RunE: o.run(func(cmd *cobra.Command, a *app, args []string) error {
			rowID, err := parseRowID(args[0])
			if err != nil {
				return err
			}
			var cs []schema.Collection
			if nestedIn != "" {
				cs, err = a.svc.NestedUnder(cmd.Context(), nestedIn, rowID)
			} else {
				cs, err = a.svc.NestedCollections(cmd.Context(), rowID)
			}
			if err != nil {
				return err
			}
			return a.out.Collections(cs)
		}),
	}
	nested.Flags().StringVar(&nestedIn, "collection", "", "Only children of this parent collection")

	cmd.AddCommand(create, list, show, rename, del, nested)
	return cmd
}

func newFieldsCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fields",
		Short: "Add, rename and delete fields",
	}

	var target, expression string
	add := &cobra.Command{
		Use:   "add COLLECTION NAME TYPE",
		Short: "Add a field to a collection",
		Args:  cobra.ExactArgs(3),
		RunE: o.run(func(cmd *cobra.Command, a *app, args []string) error {
			f, err := a.svc.AddField(cmd.Context(), args[0], catalog.FieldInput{
				Name:               args[1],
				Type:               schema.FieldType(args[2]),
				TargetCollectionID: target,
				Expression:         expression,
			})
			if err != nil {
				return err
			}
			return a.out.Done(fmt.Sprintf("added field %s (%s)", f.Name, f.Key), f)
		}),
	}
	add.Flags().StringVar(&target, "target", "", "Target collection id for a Relation field")
	add.Flags().StringVar(&expression, "expression", "", "Expression for a Formula field")

	var newName, newExpr string
	update := &cobra.Command{
		Use:   "update COLLECTION KEY",
		Short: "Rename a field or change a formula field's expression",
		Args:  cobra.ExactArgs(2),
		RunE: o.run(func(cmd *cobra.Command, a *app, args []string) error {
			name := newName
			if name == "" {
				c, err := a.svc.Collection(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				f, _, ok := c.Schema.FieldByKey(args[1])
				if !ok {
					return fmt.Errorf("field %s not found", args[1])
				}
				name = f.Name
			}
			var expr *string
			if cmd.Flags().Changed("expression") {
				expr = &newExpr
			}
			if err := a.svc.UpdateField(cmd.Context(), args[0], args[1], name, expr); err != nil {
				return err
			}
			return a.out.Done("updated field "+args[1], map[string]string{"key": args[1], "name": name})
		}),
	}
	update.Flags().StringVar(&newName, "name", "", "New display name")
	update.Flags().StringVar(&newExpr, "expression", "", "New expression (Formula fields only)")

	del := &cobra.Command{
		Use:   "delete COLLECTION KEY",
		Short: "Delete a field and its column",
		Args:  cobra.ExactArgs(2),
		RunE: o.run(func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.svc.DeleteField(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			return a.out.Done("deleted field "+args[1], map[string]string{"key": args[1]})
		}),
	}

	cmd.AddCommand(add, update, del)
	return cmd
}

func newFormulasCmd(o *options) *cobra.Command {
	var summary bool
	cmd := &cobra.Command{
		Use:   "formulas",
		Short: "Manage row formulas and summary formulas",
	}
	cmd.PersistentFlags().BoolVar(&summary, "summary", false, "Operate on summary formulas")

	kind := func() string {
		if summary {
			return "summary"
		}
		return "formula"
	}

	add := &cobra.Command{
		Use:   "add COLLECTION NAME EXPRESSION",
		Short: "Add a formula",
		Args:  cobra.ExactArgs(3),
		RunE: o.run(func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.svc.AddFormula(cmd.Context(), args[0], args[1], args[2], summary); err != nil {
				return err
			}
			return a.out.Done(fmt.Sprintf("added %s %s", kind(), args[1]), map[string]string{"name": args[1], "expression": args[2]})
		}),
	}

	var rename string
	update := &cobra.Command{
		Use:   "update COLLECTION NAME EXPRESSION",
		Short: "Replace a formula's expression, optionally renaming it",
		Args:  cobra.ExactArgs(3),
		RunE: o.run(func(cmd *cobra.Command, a *app, args []string) error {
			name := args[1]
			if rename != "" {
				name = rename
			}
			if err := a.svc.UpdateFormula(cmd.Context(), args[0], args[1], name, args[2], summary); err != nil {
				return err
			}
			return a.out.Done(fmt.Sprintf("updated %s %s", kind(), name), map[string]string{"name": name, "expression": args[2]})
		}),
	}
	update.Flags().StringVar(&rename, "name", "", "New formula name")

	del := &cobra.Command{
		Use:   "delete COLLECTION NAME",
		Short: "Delete a formula",
		Args:  cobra.ExactArgs(2),
		RunE: o.run(func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.svc.DeleteFormula(cmd.Context(), args[0], args[1], summary); err != nil {
				return err
			}
			return a.out.Done(fmt.Sprintf("deleted %s %s", kind(), args[1]), map[string]string{"name": args[1]})
		}),
	}

	check := &cobra.Command{
		Use:   "check EXPRESSION",
		Short: "Parse an expression and print it highlighted",
		Args:  cobra.ExactArgs(1),
		RunE: o.run(func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.svc.CheckExpression(args[0]); err != nil {
				return err
			}
			return a.out.Expression(args[0])
		}),
	}

	var cursor int
	complete := &cobra.Command{
		Use:   "complete COLLECTION TEXT",
		Short: "Suggest identifiers for a partially written expression",
		Args:  cobra.ExactArgs(2),
		RunE: o.run(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			coll, err := a.svc.Collection(ctx, args[0])
			if err != nil {
				return err
			}
			all, err := a.svc.Collections(ctx)
			if err != nil {
				return err
			}
			eng := completion.NewEngine(summary)
			eng.UpdateSchema(coll, all)

			pos := len(args[1])
			if cmd.Flags().Changed("cursor") {
				pos = cursor
			}
			return a.out.Completions(eng.Complete(args[1], pos))
		}),
	}
	complete.Flags().IntVar(&cursor, "cursor", 0, "Cursor byte offset (default end of text)")

	cmd.AddCommand(add, update, del, check, complete)
	return cmd
}

// parseFieldSpec parses NAME:TYPE[:TARGET|EXPRESSION].
func parseFieldSpec(spec string) (catalog.FieldInput, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" {
		return catalog.FieldInput{}, fmt.Errorf("field %q: want NAME:TYPE", spec)
	}
	ft, ok := schema.ParseFieldType(parts[1])
	if !ok {
		return catalog.FieldInput{}, fmt.Errorf("field %q: unknown type %q", spec, parts[1])
	}
	in := catalog.FieldInput{Name: strings.TrimSpace(parts[0]), Type: ft}
	if len(parts) == 3 {
		switch ft {
		case schema.Relation:
			in.TargetCollectionID = strings.TrimSpace(parts[2])
		case schema.Formula:
			in.Expression = parts[2]
		default:
			return catalog.FieldInput{}, fmt.Errorf("field %q: %s fields take no third part", spec, ft)
		}
	}
	return in, nil
}
