package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JaimeStill/mrv/internal/jobs"
	"github.com/JaimeStill/mrv/internal/pipeline"
	"github.com/JaimeStill/mrv/internal/projects"
	"github.com/JaimeStill/mrv/pkg/pagination"
)

func newProjectsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var page pagination.PageResult[projects.Project]
			if err := ctx.client().get(cmd.Context(), "/projects?page_size=100", &page); err != nil {
				return err
			}
			if *ctx.json {
				return writeJSON(cmd, page)
			}

			rows := make([][]string, 0, len(page.Data))
			for _, p := range page.Data {
				current := "-"
				if p.CurrentStage != nil {
					current = *p.CurrentStage
				}
				rows = append(rows, []string{p.ID.String(), p.Name, current, formatTime(&p.UpdatedAt)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Current Stage", "Updated"},
				rows,
				nil,
			))
			return nil
		},
	}
	cmd.AddCommand(newProjectCreateCommand(ctx))
	return cmd
}

func newProjectCreateCommand(ctx *commandContext) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := projects.CreateCommand{Name: args[0], Description: description}
			var p projects.Project
			if err := ctx.client().post(cmd.Context(), "/projects", body, &p); err != nil {
				return err
			}
			if *ctx.json {
				return writeJSON(cmd, p)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created project %s (%s)\n", p.Name, p.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "Project description")
	return cmd
}

func newPipelineCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pipeline <project-id>",
		Short: "Show the stage graph state of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("project", args[0])
			if err != nil {
				return err
			}

			var views []pipeline.StageView
			if err := ctx.client().get(cmd.Context(), "/projects/"+id.String()+"/pipeline", &views); err != nil {
				return err
			}
			if *ctx.json {
				return writeJSON(cmd, views)
			}

			rows := make([][]string, 0, len(views))
			for _, v := range views {
				rows = append(rows, []string{
					string(v.Stage),
					string(v.Status),
					yesNo(v.Async),
					yesNo(v.Ready),
					joinStages(v.Missing),
					v.Detail,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Stage", "Status", "Async", "Ready", "Waiting On", "Detail"},
				rows,
				nil,
			))
			return nil
		},
	}
}

func newAdvanceCommand(ctx *commandContext) *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "advance <project-id> <stage>",
		Short: "Run a stage, or submit it as a job when it is asynchronous",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			stage, err := pipeline.ParseStage(args[1])
			if err != nil {
				return err
			}
			fields, err := parseParams(params)
			if err != nil {
				return err
			}
			var body any
			if fields != nil {
				body = fields
			}

			var out pipeline.Outcome
			path := fmt.Sprintf("/projects/%s/pipeline/%s", id, stage)
			if err := ctx.client().post(cmd.Context(), path, body, &out); err != nil {
				return err
			}
			if *ctx.json {
				return writeJSON(cmd, out)
			}

			w := cmd.OutOrStdout()
			switch {
			case out.Job != nil:
				fmt.Fprintf(w, "Stage %s submitted as job %s (%s)\n", out.Stage, out.Job.ID, out.Job.State)
			case out.Result != nil && out.Result.Provisional:
				fmt.Fprintf(w, "Stage %s dry run: %s\n", out.Stage, out.Result.Detail)
			case out.Result != nil:
				fmt.Fprintf(w, "Stage %s completed: %s\n", out.Stage, out.Result.Detail)
			default:
				fmt.Fprintf(w, "Stage %s %s\n", out.Stage, out.Kind)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Stage parameter as key=value (repeatable)")
	return cmd
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs <project-id>",
		Short: "List the jobs of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("project", args[0])
			if err != nil {
				return err
			}

			var list []jobs.Job
			if err := ctx.client().get(cmd.Context(), "/projects/"+id.String()+"/jobs", &list); err != nil {
				return err
			}
			if *ctx.json {
				return writeJSON(cmd, list)
			}

			rows := make([][]string, 0, len(list))
			for _, j := range list {
				rows = append(rows, jobRow(j))
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Stage", "State", "Attempts", "Submitted", "Completed"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
}

func newJobCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "job <job-id>",
		Short: "Show the status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return jobAction(cmd, ctx, args[0], false)
		},
	}
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return jobAction(cmd, ctx, args[0], true)
		},
	}
}

func jobAction(cmd *cobra.Command, ctx *commandContext, arg string, cancel bool) error {
	id, err := parseID("job", arg)
	if err != nil {
		return err
	}

	var j jobs.Job
	c := ctx.client()
	if cancel {
		err = c.post(cmd.Context(), "/jobs/"+id.String()+"/cancel", nil, &j)
	} else {
		err = c.get(cmd.Context(), "/jobs/"+id.String(), &j)
	}
	if err != nil {
		return err
	}
	if *ctx.json {
		return writeJSON(cmd, j)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Job %s\n", j.ID)
	fmt.Fprintf(w, "  Stage:     %s\n", j.Stage)
	fmt.Fprintf(w, "  State:     %s\n", j.State)
	fmt.Fprintf(w, "  Attempts:  %d\n", j.Attempts)
	if j.Reason != "" {
		fmt.Fprintf(w, "  Reason:    %s\n", j.Reason)
	}
	if j.Error != "" {
		fmt.Fprintf(w, "  Error:     %s\n", j.Error)
	}
	for _, k := range sortedKeys(j.Result) {
		fmt.Fprintf(w, "  %s: %d\n", k, j.Result[k])
	}
	return nil
}

func jobRow(j jobs.Job) []string {
	return []string{
		j.ID.String(),
		j.Stage,
		string(j.State),
		strconv.Itoa(j.Attempts),
		formatTime(&j.SubmittedAt),
		formatTime(j.CompletedAt),
	}
}

func parseID(kind, arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(arg))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id %q", kind, arg)
	}
	return id, nil
}

// parseParams turns key=value pairs into a JSON object. Values that parse as
// JSON (numbers, booleans, arrays) keep their type; anything else is a string.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid param %q: want key=value", pair)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			out[key] = decoded
		} else {
			out[key] = value
		}
	}
	return out, nil
}

func joinStages(stages []pipeline.Stage) string {
	if len(stages) == 0 {
		return "-"
	}
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
