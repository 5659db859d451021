package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var continueCmd = &cobra.Command{
	Use:     "continue",
	Short:   "resume execution",
	Aliases: []string{"c"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupCtrlFlow,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := current.session.Continue(); err != nil {
			return err
		}
		current.waitStop()
		return nil
	},
}

var stepCmd = &cobra.Command{
	Use:     "step",
	Short:   "step into the next line, entering calls",
	Aliases: []string{"s"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupCtrlFlow,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := current.session.StepInto(); err != nil {
			return err
		}
		current.waitStop()
		return nil
	},
}

var nextCmd = &cobra.Command{
	Use:     "next",
	Short:   "step over the next line, skipping calls",
	Aliases: []string{"n"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupCtrlFlow,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := current.session.StepOver(); err != nil {
			return err
		}
		current.waitStop()
		return nil
	},
}

var finishCmd = &cobra.Command{
	Use:     "finish",
	Short:   "run until the current function returns",
	Aliases: []string{"fin"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupCtrlFlow,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := current.session.StepOut(); err != nil {
			return err
		}
		current.waitStop()
		return nil
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "interrupt a running script at its next line",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupCtrlFlow,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := current.session.Pause(); err != nil {
			return err
		}
		fmt.Println(current.styles.dim("pause requested"))
		current.waitStop()
		return nil
	},
}

func init() {
	shellRootCmd.AddCommand(continueCmd)
	shellRootCmd.AddCommand(stepCmd)
	shellRootCmd.AddCommand(nextCmd)
	shellRootCmd.AddCommand(finishCmd)
	shellRootCmd.AddCommand(pauseCmd)
}
