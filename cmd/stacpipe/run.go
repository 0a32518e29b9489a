package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/stacpipe/stacpipe/internal/engine"
	"github.com/stacpipe/stacpipe/internal/execctx"
	"github.com/stacpipe/stacpipe/internal/logger"
	"github.com/stacpipe/stacpipe/internal/workflow"
)

var (
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	failureStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

func newRunCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <workflow-file>",
		Short: "Run a workflow document to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(args[0], root.verbose)
		},
	}
	return cmd
}

func runWorkflow(path string, verbose bool) error {
	doc, err := workflow.Load(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, failureStyle.Render("configuration error")+": "+err.Error())
		return err
	}

	level := doc.Settings.Logging.Level
	if verbose {
		level = "DEBUG"
	}
	if level == "" {
		level = "INFO"
	}

	log, err := logger.New(logger.Options{
		Level:        level,
		OutputFormat: doc.Settings.Logging.OutputFormat,
		Name:         "engine." + doc.Name,
	})
	if err != nil {
		return err
	}

	checkpoint, err := execctx.NewCheckpointManager(doc.Name, doc.Settings.Checkpoint.Path, doc.Settings.Checkpoint.Enabled)
	if err != nil {
		return err
	}

	workflowID := resolveWorkflowID(doc)

	failures := execctx.NewFailureCollector()
	root := execctx.New(context.Background(), workflowID, log, failures, checkpoint)

	runner := engine.NewRunner(root)
	summary, err := runner.Run(doc)
	if err != nil {
		fmt.Fprintln(os.Stderr, failureStyle.Render("configuration error")+": "+err.Error())
		return err
	}

	reportPath := failureReportPath(doc)
	if writeErr := failures.WriteReport(reportPath); writeErr != nil {
		fmt.Fprintln(os.Stderr, failureStyle.Render("failure report")+": "+writeErr.Error())
		return writeErr
	}

	log.Info(fmt.Sprintf("failed: %d, succeeded: %d, skipped: %d", summary.Failed, summary.Succeeded, summary.Skipped))
	printSummary(doc.Name, summary, failures.Count())
	fmt.Println(dimStyle.Render("workflow id: " + workflowID))
	fmt.Println(dimStyle.Render("failure report: " + reportPath))

	if summary.Failed > 0 || failures.Count() > 0 {
		return fmt.Errorf("workflow %q completed with %d failed pipeline(s) and %d recorded failure(s) (see %s)", doc.Name, summary.Failed, failures.Count(), reportPath)
	}
	return nil
}

// resolveWorkflowID returns the document's pinned workflow_id, or generates
// a fresh one when the document leaves it unset.
func resolveWorkflowID(doc *workflow.Document) string {
	if doc.WorkflowID != "" {
		return doc.WorkflowID
	}
	return uuid.NewString()
}

// failureReportPath derives the per-run failure report path: next to the
// checkpoint sidecar when one is configured, otherwise in the working
// directory, named after the workflow.
func failureReportPath(doc *workflow.Document) string {
	name := doc.Name + ".failures.json"
	if dir := filepath.Dir(doc.Settings.Checkpoint.Path); doc.Settings.Checkpoint.Path != "" && dir != "." {
		return filepath.Join(dir, name)
	}
	return name
}

func printSummary(name string, summary engine.Summary, failureCount int) {
	status := successStyle.Render("OK")
	if summary.Failed > 0 || failureCount > 0 {
		status = failureStyle.Render("FAILED")
	}
	fmt.Printf("%s %s  %s\n", status, name,
		dimStyle.Render(fmt.Sprintf("succeeded=%d failed=%d skipped=%d failures=%d",
			summary.Succeeded, summary.Failed, summary.Skipped, failureCount)))
}
