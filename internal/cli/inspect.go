package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var backtraceCmd = &cobra.Command{
	Use:     "backtrace",
	Short:   "print the call stack",
	Aliases: []string{"bt"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupInspect,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		trace := current.session.FormatStackTrace()
		if trace == "" {
			fmt.Println(current.styles.dim("no stack; not paused"))
			return nil
		}
		fmt.Print(trace)
		return nil
	},
}

var frameCmd = &cobra.Command{
	Use:     "frame <n>",
	Short:   "select a stack frame for inspection",
	Aliases: []string{"f"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupInspect,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("usage: frame <n>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid frame index %q", args[0])
		}
		if err := current.session.SelectFrame(n); err != nil {
			return err
		}
		stack := current.session.StackTrace()
		fmt.Printf("frame #%d %s\n", n, shellNav.FormatFrame(stack[n]))
		return nil
	},
}

var localsCmd = &cobra.Command{
	Use:   "locals",
	Short: "print the selected frame's local variables",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupInspect,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		vars, err := current.session.FrameVariables(current.session.CurrentFrameIndex())
		if err != nil {
			return err
		}
		if len(vars) == 0 {
			fmt.Println(current.styles.dim("no locals"))
			return nil
		}
		insp := current.session.Inspector()
		stack := current.session.StackTrace()
		idx := current.session.CurrentFrameIndex()
		if idx < len(stack) {
			// Slot order, not map order.
			for _, v := range stack[idx].Locals {
				fmt.Println(current.styles.value(insp.FormatVariable(v)))
			}
			return nil
		}
		for _, v := range vars {
			fmt.Println(current.styles.value(insp.FormatVariable(v)))
		}
		return nil
	},
}

var printCmd = &cobra.Command{
	Use:     "print <expression>",
	Short:   "evaluate an expression in the selected frame",
	Aliases: []string{"p"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupInspect,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) < 1 {
			return errors.New("usage: print <expression>")
		}
		expr := strings.Join(args, " ")
		v, err := current.session.Evaluate(expr)
		if err != nil {
			return err
		}
		fmt.Println(current.styles.value(current.session.Inspector().FormatVariable(v)))
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <expression>",
	Short: "add a watch expression, evaluated at every pause",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupInspect,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) < 1 {
			return errors.New("usage: watch <expression>")
		}
		expr := strings.Join(args, " ")
		current.session.AddWatch(expr)
		fmt.Printf("watching %s\n", expr)
		return nil
	},
}

var unwatchCmd = &cobra.Command{
	Use:   "unwatch <expression>",
	Short: "remove a watch expression",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupInspect,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) < 1 {
			return errors.New("usage: unwatch <expression>")
		}
		expr := strings.Join(args, " ")
		current.session.RemoveWatch(expr)
		fmt.Printf("unwatched %s\n", expr)
		return nil
	},
}

var watchesCmd = &cobra.Command{
	Use:   "watches",
	Short: "list watch expressions with their current values",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupInspect,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		exprs := current.session.WatchExpressions()
		if len(exprs) == 0 {
			fmt.Println(current.styles.dim("no watches"))
			return nil
		}
		insp := current.session.Inspector()
		for _, v := range current.session.EvaluateWatches() {
			fmt.Println(current.styles.value(insp.FormatVariable(v)))
		}
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "show session status",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupOthers,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		meta := current.session.Metadata()
		st := current.session.ExecutionManager().State()

		fmt.Printf("session   %s\n", shortID(current.session.ID()))
		fmt.Printf("script    %s\n", meta.ScriptPath)
		fmt.Printf("state     %s\n", current.session.State())
		if st.Paused() {
			fmt.Printf("stopped   %s (%s)\n", st.Location, st.Reason.Kind)
		}
		fmt.Printf("started   %s\n", meta.StartedAt.Format("15:04:05"))
		fmt.Printf("hits      %d breakpoint(s)\n", meta.BreakpointsHit)
		fmt.Printf("steps     %d\n", meta.StepsExecuted)
		return nil
	},
}

func init() {
	shellRootCmd.AddCommand(backtraceCmd)
	shellRootCmd.AddCommand(frameCmd)
	shellRootCmd.AddCommand(localsCmd)
	shellRootCmd.AddCommand(printCmd)
	shellRootCmd.AddCommand(watchCmd)
	shellRootCmd.AddCommand(unwatchCmd)
	shellRootCmd.AddCommand(watchesCmd)
	shellRootCmd.AddCommand(infoCmd)
}
