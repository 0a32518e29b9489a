package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacpipe/stacpipe/internal/engine"
	"github.com/stacpipe/stacpipe/internal/workflow"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <workflow-file>",
		Short: "Parse and validate a workflow document without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := workflow.Load(args[0])
			if err != nil {
				return err
			}
			if _, _, err := engine.BuildGraph(doc); err != nil {
				return err
			}
			fmt.Printf("%s: valid, %d step(s)\n", doc.Name, len(doc.Steps))
			return nil
		},
	}
	return cmd
}
