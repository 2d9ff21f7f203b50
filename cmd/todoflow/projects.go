package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"todoflow/application/projectlist"
	"todoflow/domain/core/entities"
)

func newProjectsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"p"},
		Short:   "List and manage projects",
	}

	openList := func(cmd *cobra.Command) (*projectlist.List, error) {
		if err := a.open(cmd.Context(), nil); err != nil {
			return nil, err
		}
		if _, err := a.requireLogin(cmd.Context()); err != nil {
			return nil, err
		}
		return projectlist.New(a.client, a.logger, a.notifier), nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List your projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := openList(cmd)
			if err != nil {
				return err
			}
			if err := list.Load(cmd.Context()); err != nil {
				return err
			}
			projects := list.Projects()
			if projects == nil {
				projects = []entities.Project{}
			}
			return a.printer.emit(projects, func(w io.Writer) {
				printProjects(w, projects)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create an empty project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := openList(cmd)
			if err != nil {
				return err
			}
			p, err := list.Create(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printer.emit(p, func(w io.Writer) {
				fmt.Fprintln(w, p.ID)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename <projectID> <name>",
		Short: "Rename a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := openList(cmd)
			if err != nil {
				return err
			}
			p, err := list.Rename(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.printer.emit(p, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s\n", p.ID, bold(p.Name))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "delete <projectID>",
		Aliases: []string{"rm"},
		Short:   "Delete a project and its graph",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := openList(cmd)
			if err != nil {
				return err
			}
			return list.Delete(cmd.Context(), args[0])
		},
	})

	return cmd
}

func printProjects(w io.Writer, projects []entities.Project) {
	if len(projects) == 0 {
		fmt.Fprintln(w, dim("No projects yet; create one with `todoflow projects create <name>`"))
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, bold("ID")+"\t"+bold("NAME")+"\t"+bold("VERSION")+"\t"+bold("UPDATED"))
	for _, p := range projects {
		updated := p.CreatedAt
		if p.UpdatedAt != nil {
			updated = *p.UpdatedAt
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", cyan(p.ID), p.Name, p.Version, updated.Local().Format("2006-01-02 15:04"))
	}
	_ = tw.Flush()
}
