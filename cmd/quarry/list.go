package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/quarrycli/quarry/internal/registry"
)

func newListTasksCommand() *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "list-tasks",
		Short: "List registered tasks and their check counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := registry.All()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TASK\tPROJECT\tPOINTS\tCHECKS")
			for _, t := range tasks {
				if project != "" && !strings.EqualFold(t.Project, project) {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", t.ID, t.Project, t.Points, len(t.Validators))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "only list tasks of this project")
	return cmd
}
