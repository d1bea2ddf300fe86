package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"leadflow/internal/model"
	"leadflow/internal/service"
)

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Work with question catalog files",
	}

	var file string
	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "Validate a catalog file and print its questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read catalog: %w", err)
			}
			forms, err := service.ParseCatalog(data)
			if err != nil {
				return err
			}
			for _, f := range forms {
				renderForm(cmd, f)
			}
			return nil
		},
	}
	inspect.Flags().StringVarP(&file, "file", "f", "", "catalog file")
	_ = inspect.MarkFlagRequired("file")

	cmd.AddCommand(inspect)
	return cmd
}

func renderForm(cmd *cobra.Command, f *model.Form) {
	rules := f.Rules.Effective()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  client=%s  qualify>=%d  disqualify<=%d  min=%d\n",
		f.ID, f.ClientID, rules.QualifyScore, rules.DisqualifyScore, rules.MinQuestions)

	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"ID", "Category", "Required", "Tough", "Rubric"})
	for _, q := range f.Questions {
		tw.AppendRow(table.Row{q.ID, q.GroupKey(), yesNo(q.IsRequired), yesNo(service.IsTough(q)), strings.TrimSpace(q.ScoringRubric)})
	}
	tw.Render()
	fmt.Fprintln(out)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
