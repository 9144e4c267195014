package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lawdesk/docket/internal/model"
)

var caseCmd = &cobra.Command{
	Use:   "case",
	Short: "Manage court cases",
}

var caseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cases",
	RunE: func(cmd *cobra.Command, args []string) error {
		showClosed, _ := cmd.Flags().GetBool("all")
		search, _ := cmd.Flags().GetString("search")

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		eng, st, err := startEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		defer eng.Stop()

		cases := eng.Cases()
		if search != "" {
			cases = eng.SearchCases(search)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCLIENT\tCASE NUMBER\tSUBJECT\tSTATUS\tNEXT HEARING")
		shown := 0
		for _, c := range cases {
			if c.Status == model.CaseStatusClosed && !showClosed {
				continue
			}
			next := c.NextHearing
			if ts, err := model.ParseTime(c.NextHearing); err == nil {
				next = ts.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				shortID(c.ID), c.ClientName, c.CaseNumber, c.Subject, c.Status, next)
			shown++
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n%d case(s)\n", shown)
		return nil
	},
}

var caseAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a case",
	Example: `  docket case add --client "Cohen" --number "TA-1234/25" --subject "Contract dispute" \
      --court "Tel Aviv Magistrate" --next-hearing "2025-04-02 09:30"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		c := model.Case{}
		c.ClientName, _ = flags.GetString("client")
		c.CaseNumber, _ = flags.GetString("number")
		c.Subject, _ = flags.GetString("subject")
		c.LegalNumber, _ = flags.GetString("legal-number")
		c.Court, _ = flags.GetString("court")
		c.Judge, _ = flags.GetString("judge")
		c.ClientPhone, _ = flags.GetString("phone")
		c.ClientEmail, _ = flags.GetString("email")
		c.Notes, _ = flags.GetString("notes")
		status, _ := flags.GetString("status")
		c.Status = model.CaseStatus(status)

		raw, _ := flags.GetString("next-hearing")
		var err error
		if c.NextHearing, err = parseWhen(raw); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		eng, st, err := startEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		defer eng.Stop()

		created, err := eng.CreateCase(ctx, c)
		if err != nil {
			return printViolations(err)
		}
		fmt.Printf("Created case %s (%s, %s)\n", shortID(created.ID), created.CaseNumber, created.ClientName)
		return nil
	},
}

var caseRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a case and its linked tasks",
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

		id, err := resolveCaseID(eng, args[0])
		if err != nil {
			return err
		}

		linked := 0
		for _, t := range eng.Tasks() {
			if t.CaseID == id {
				linked++
			}
		}
		if err := eng.DeleteCase(ctx, id); err != nil {
			return err
		}
		if linked > 0 {
			fmt.Printf("Case %s deleted along with %d linked task(s)\n", shortID(id), linked)
		} else {
			fmt.Printf("Case %s deleted\n", shortID(id))
		}
		return nil
	},
}

var caseStatusCmd = &cobra.Command{
	Use:   "status <id> <active|pending|closed|hold>",
	Short: "Change a case's status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		eng, st, err := startEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		defer eng.Stop()

		id, err := resolveCaseID(eng, args[0])
		if err != nil {
			return err
		}
		status := model.CaseStatus(strings.ToLower(args[1]))
		if _, err := eng.UpdateCase(ctx, id, model.CasePatch{Status: &status}); err != nil {
			return printViolations(err)
		}
		fmt.Printf("Case %s is now %s\n", shortID(id), status)
		return nil
	},
}

func resolveCaseID(eng caseFinder, arg string) (string, error) {
	if _, ok := eng.Case(arg); ok {
		return arg, nil
	}
	var matches []string
	for _, c := range eng.Cases() {
		if strings.HasPrefix(c.ID, arg) {
			matches = append(matches, c.ID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("no case matches %q", arg)
	default:
		return "", fmt.Errorf("%q is ambiguous (%d matches)", arg, len(matches))
	}
}

type caseFinder interface {
	Case(id string) (model.Case, bool)
	Cases() []model.Case
}

func init() {
	caseListCmd.Flags().BoolP("all", "a", false, "include closed cases")
	caseListCmd.Flags().StringP("search", "s", "", "filter by client, case number, or subject")

	caseAddCmd.Flags().String("client", "", "client name (required)")
	caseAddCmd.Flags().String("number", "", "case number (required)")
	caseAddCmd.Flags().String("subject", "", "case subject")
	caseAddCmd.Flags().String("legal-number", "", "legal reference number")
	caseAddCmd.Flags().String("court", "", "court")
	caseAddCmd.Flags().String("judge", "", "judge")
	caseAddCmd.Flags().String("next-hearing", "", "next hearing date and time")
	caseAddCmd.Flags().String("status", "active", "case status: active, pending, closed, hold")
	caseAddCmd.Flags().String("phone", "", "client phone")
	caseAddCmd.Flags().String("email", "", "client email")
	caseAddCmd.Flags().String("notes", "", "free-form notes")

	caseCmd.AddCommand(caseListCmd, caseAddCmd, caseRmCmd, caseStatusCmd)
	rootCmd.AddCommand(caseCmd)
}
