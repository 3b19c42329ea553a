package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/warp/attendance-engine/entity"
	"github.com/warp/attendance-engine/importer"
	"github.com/warp/attendance-engine/store/sqlite"
)

// =============================================================================
// CLEAR
// =============================================================================

func clearCommand(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every row from every table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
					fmt.Sprintf("This wipes all data in %s. Type 'yes' to continue: ", a.cfg.Database.Path))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
			}
			return a.withStore(func(store *sqlite.Store) error {
				res, err := store.Wipe(cmd.Context())
				if err != nil {
					return err
				}
				a.logger.Warn("database cleared from command line", "tables", res.Tables)
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %d tables: %s\n", len(res.Tables), strings.Join(res.Tables, ", "))
				if res.VacuumErr != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "vacuum failed: %v\n", res.VacuumErr)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(line), "yes"), nil
}

// =============================================================================
// IMPORT
// =============================================================================

func importCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import roster data from spreadsheets",
	}
	cmd.AddCommand(
		sheetCommand(a, "courses", "Upsert courses from an xlsx sheet (课程编号, 课程名称, 课程学时)",
			func(ctx context.Context, s *sqlite.Store, r io.Reader) (*entity.ImportSummary, error) {
				return importer.ImportCourses(ctx, s, r)
			}),
		sheetCommand(a, "enrollments", "Upsert course-student mappings from an xlsx sheet (学号, 课程编号)",
			func(ctx context.Context, s *sqlite.Store, r io.Reader) (*entity.ImportSummary, error) {
				return importer.ImportEnrollments(ctx, s, r)
			}),
	)
	return cmd
}

func sheetCommand(a *app, kind, short string,
	run func(context.Context, *sqlite.Store, io.Reader) (*entity.ImportSummary, error)) *cobra.Command {
	return &cobra.Command{
		Use:   kind + " <file.xlsx>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			return a.withStore(func(store *sqlite.Store) error {
				sum, err := run(cmd.Context(), store, f)
				if err != nil {
					return err
				}
				a.logger.Info("spreadsheet import finished", "kind", kind, "file", args[0],
					"processed", sum.Processed, "errors", len(sum.Errors))
				printSummary(cmd.OutOrStdout(), kind, sum)
				return nil
			})
		},
	}
}

// =============================================================================
// SEED
// =============================================================================

func seedCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the built-in demo roster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			roster, err := importer.DemoRoster()
			if err != nil {
				return err
			}
			return a.withStore(func(store *sqlite.Store) error {
				sum := importer.Seed(cmd.Context(), store, roster)
				out := cmd.OutOrStdout()
				printSummary(out, "students", &sum.Students)
				printSummary(out, "courses", &sum.Courses)
				printSummary(out, "enrollments", &sum.Enrollments)
				return nil
			})
		},
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func (a *app) withStore(fn func(*sqlite.Store) error) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func printSummary(w io.Writer, kind string, sum *entity.ImportSummary) {
	fmt.Fprintf(w, "%-12s processed=%d inserted=%d updated=%d skipped=%d errors=%d\n",
		kind, sum.Processed, sum.Inserted, sum.Updated, sum.Skipped, len(sum.Errors))
	for _, e := range sum.Errors {
		fmt.Fprintf(w, "  %s: %s\n", e.Item, e.Error)
	}
}
