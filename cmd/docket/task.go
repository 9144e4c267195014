package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/lawdesk/docket/internal/model"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks and hearings",
}

// parseWhen accepts either an ISO date or natural language ("tomorrow 9am",
// "next friday") and returns the canonical timestamp string.
func parseWhen(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if ts, err := model.ParseTime(s); err == nil {
		return model.FormatStamp(ts), nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, time.Now())
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", s, err)
	}
	if r == nil {
		return "", fmt.Errorf("cannot understand date %q", s)
	}
	return model.FormatStamp(r.Time), nil
}

// printViolations renders a validation failure field by field.
func printViolations(err error) error {
	if verr, ok := model.AsValidationError(err); ok {
		fmt.Fprintln(os.Stderr, "Invalid input:")
		for _, v := range verr.Violations {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", v.Field, v.Message)
		}
		return fmt.Errorf("validation failed")
	}
	return err
}

func taskMarks(t model.Task, now time.Time) string {
	f := model.Flags(t, now)
	var marks []string
	if t.Completed {
		marks = append(marks, "done")
	}
	if f.IsOverdue {
		marks = append(marks, "OVERDUE")
	} else if f.IsDueSoon {
		marks = append(marks, "due soon")
	}
	if f.HasReminder {
		marks = append(marks, "reminder")
	}
	if f.IsHearing {
		marks = append(marks, "hearing")
	}
	return strings.Join(marks, ",")
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		showAll, _ := cmd.Flags().GetBool("all")
		search, _ := cmd.Flags().GetString("search")

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		eng, st, err := startEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		defer eng.Stop()

		tasks := eng.Tasks()
		if search != "" {
			tasks = eng.SearchTasks(search)
		}

		now := time.Now()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCLIENT\tTASK\tDUE\tSTATUS")
		shown := 0
		for _, t := range tasks {
			if t.Completed && !showAll {
				continue
			}
			due := t.DueDate
			if ts, err := model.ParseTime(t.DueDate); err == nil {
				due = ts.Format("2006-01-02")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", shortID(t.ID), t.ClientName, t.TaskName, due, taskMarks(t, now))
			shown++
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n%d task(s)\n", shown)
		return nil
	},
}

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a task or hearing",
	Example: `  docket task add --client "Cohen" --name "File brief" --due "next friday"
  docket task add --client "Levi" --name "Preliminary hearing" --type hearing \
      --court "Tel Aviv District" --court-date "2025-03-12 09:00" --due 2025-03-12`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		t := model.Task{}
		t.ClientName, _ = flags.GetString("client")
		t.TaskName, _ = flags.GetString("name")
		typ, _ := flags.GetString("type")
		t.Type = model.TaskType(typ)
		t.Court, _ = flags.GetString("court")
		t.Judge, _ = flags.GetString("judge")
		t.CaseID, _ = flags.GetString("case")
		t.CaseNumber, _ = flags.GetString("case-number")
		t.LegalNumber, _ = flags.GetString("legal-number")

		var err error
		for _, f := range []struct {
			flag string
			dst  *string
		}{
			{"due", &t.DueDate},
			{"reminder", &t.ReminderDate},
			{"court-date", &t.CourtDate},
		} {
			raw, _ := flags.GetString(f.flag)
			if *f.dst, err = parseWhen(raw); err != nil {
				return err
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		eng, st, err := startEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		defer eng.Stop()

		created, err := eng.CreateTask(ctx, t)
		if err != nil {
			return printViolations(err)
		}
		fmt.Printf("Created task %s (%s for %s)\n", shortID(created.ID), created.TaskName, created.ClientName)
		return nil
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		undo, _ := cmd.Flags().GetBool("undo")

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		eng, st, err := startEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		defer eng.Stop()

		id, err := resolveTaskID(eng, args[0])
		if err != nil {
			return err
		}
		if err := eng.SetCompleted(ctx, id, !undo); err != nil {
			return err
		}
		if undo {
			fmt.Printf("Task %s reopened\n", shortID(id))
		} else {
			fmt.Printf("Task %s completed\n", shortID(id))
		}
		return nil
	},
}

var taskRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		eng, st, err := startEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		defer eng.Stop()

		id, err := resolveTaskID(eng, args[0])
		if err != nil {
			return err
		}
		if err := eng.DeleteTask(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Task %s deleted\n", shortID(id))
		return nil
	},
}

// resolveTaskID accepts a full id or an unambiguous prefix.
func resolveTaskID(eng taskFinder, arg string) (string, error) {
	if _, ok := eng.Task(arg); ok {
		return arg, nil
	}
	var matches []string
	for _, t := range eng.Tasks() {
		if strings.HasPrefix(t.ID, arg) {
			matches = append(matches, t.ID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("no task matches %q", arg)
	default:
		return "", fmt.Errorf("%q is ambiguous (%d matches)", arg, len(matches))
	}
}

type taskFinder interface {
	Task(id string) (model.Task, bool)
	Tasks() []model.Task
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	taskListCmd.Flags().BoolP("all", "a", false, "include completed tasks")
	taskListCmd.Flags().StringP("search", "s", "", "filter by client or task name")

	taskAddCmd.Flags().String("client", "", "client name (required)")
	taskAddCmd.Flags().String("name", "", "task name (required)")
	taskAddCmd.Flags().String("due", "", "due date (required)")
	taskAddCmd.Flags().String("reminder", "", "reminder time, before the due date")
	taskAddCmd.Flags().String("type", "regular", "task type: regular or hearing")
	taskAddCmd.Flags().String("court", "", "court (hearings)")
	taskAddCmd.Flags().String("judge", "", "judge (hearings)")
	taskAddCmd.Flags().String("court-date", "", "hearing date and time (hearings)")
	taskAddCmd.Flags().String("case", "", "linked case id")
	taskAddCmd.Flags().String("case-number", "", "case number")
	taskAddCmd.Flags().String("legal-number", "", "legal reference number")

	taskDoneCmd.Flags().Bool("undo", false, "reopen instead of completing")

	taskCmd.AddCommand(taskListCmd, taskAddCmd, taskDoneCmd, taskRmCmd)
	rootCmd.AddCommand(taskCmd)
}
