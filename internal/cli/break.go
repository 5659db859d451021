package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var breakHits int

var breakCmd = &cobra.Command{
	Use:     "break <file:line> [condition]",
	Short:   "set a breakpoint",
	Long:    "Set a breakpoint at file:line. Any remaining arguments form a guard expression; the breakpoint only pauses when it evaluates to true.",
	Aliases: []string{"b", "breakpoint"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupBreakpoints,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) < 1 {
			return errors.New("usage: break <file:line> [condition]")
		}

		source, line, err := parseFileLine(args[0])
		if err != nil {
			return err
		}
		condition := strings.Join(args[1:], " ")

		id, err := current.session.SetBreakpoint(source, line, condition, breakHits)
		if err != nil {
			return err
		}
		fmt.Printf("breakpoint %s at %s:%d", shortID(id), source, line)
		if condition != "" {
			fmt.Printf(" when %s", condition)
		}
		if breakHits > 0 {
			fmt.Printf(" after %d hits", breakHits)
		}
		fmt.Println()
		return nil
	},
}

var breakpointsCmd = &cobra.Command{
	Use:     "breakpoints",
	Short:   "list breakpoints",
	Aliases: []string{"bps"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupBreakpoints,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		bps := current.session.Breakpoints()
		if len(bps) == 0 {
			fmt.Println(current.styles.dim("no breakpoints"))
			return nil
		}
		c := current.session.ExecutionManager().Cache()
		for _, bp := range bps {
			state := "enabled"
			if !bp.Enabled {
				state = "disabled"
			}
			fmt.Printf("%s  %s  %s  hits=%d", shortID(bp.ID), bp.Location(), state, bp.CurrentHits)
			if bp.Condition != "" {
				fmt.Printf("  when %s", bp.Condition)
				if result, ok := c.CachedConditionResult(bp.Source, bp.Line); ok {
					fmt.Printf(" (last %v)", result)
				}
			}
			if bp.HitCount > 0 {
				fmt.Printf("  after %d", bp.HitCount)
			}
			fmt.Println()
		}
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear <id|file:line>",
	Short: "remove a breakpoint",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupBreakpoints,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("usage: clear <id|file:line>")
		}
		bp, err := resolveBreakpoint(args[0])
		if err != nil {
			return err
		}
		if err := current.session.RemoveBreakpoint(bp); err != nil {
			return err
		}
		fmt.Printf("cleared %s\n", shortID(bp))
		return nil
	},
}

var clearallCmd = &cobra.Command{
	Use:   "clearall",
	Short: "remove all breakpoints",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupBreakpoints,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		bps := current.session.Breakpoints()
		for _, bp := range bps {
			if err := current.session.RemoveBreakpoint(bp.ID); err != nil {
				return err
			}
		}
		fmt.Printf("cleared %d breakpoint(s)\n", len(bps))
		return nil
	},
}

var condCmd = &cobra.Command{
	Use:   "cond <id|file:line> [expression]",
	Short: "set or clear a breakpoint condition",
	Long:  "Attach a guard expression to a breakpoint. With no expression, the guard is removed.",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupBreakpoints,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) < 1 {
			return errors.New("usage: cond <id|file:line> [expression]")
		}
		id, err := resolveBreakpoint(args[0])
		if err != nil {
			return err
		}
		expr := strings.Join(args[1:], " ")

		mgr := current.session.ExecutionManager()
		if err := mgr.SetCondition(id, expr); err != nil {
			return err
		}
		if expr == "" {
			fmt.Printf("condition cleared on %s\n", shortID(id))
		} else {
			fmt.Printf("%s pauses when %s\n", shortID(id), expr)
		}
		return nil
	},
}

func init() {
	breakCmd.Flags().IntVar(&breakHits, "hits", 0, "pause only from the Nth hit onward")
	shellRootCmd.AddCommand(breakCmd)
	shellRootCmd.AddCommand(breakpointsCmd)
	shellRootCmd.AddCommand(clearCmd)
	shellRootCmd.AddCommand(clearallCmd)
	shellRootCmd.AddCommand(condCmd)
}

// parseFileLine splits "file.lua:10" into source and line.
func parseFileLine(spec string) (string, int, error) {
	idx := strings.LastIndex(spec, ":")
	if idx <= 0 || idx == len(spec)-1 {
		return "", 0, fmt.Errorf("invalid location %q, want file:line", spec)
	}
	line, err := strconv.Atoi(spec[idx+1:])
	if err != nil || line <= 0 {
		return "", 0, fmt.Errorf("invalid line in %q", spec)
	}
	return spec[:idx], line, nil
}

// resolveBreakpoint maps an ID prefix or a file:line to a breakpoint ID.
func resolveBreakpoint(spec string) (string, error) {
	if source, line, err := parseFileLine(spec); err == nil {
		if bp, ok := current.session.ExecutionManager().BreakpointAt(source, line); ok {
			return bp.ID, nil
		}
		return "", fmt.Errorf("no breakpoint at %s:%d", source, line)
	}

	var match string
	for _, bp := range current.session.Breakpoints() {
		if strings.HasPrefix(bp.ID, spec) {
			if match != "" {
				return "", fmt.Errorf("ambiguous breakpoint %q", spec)
			}
			match = bp.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no breakpoint %q", spec)
	}
	return match, nil
}

// shortID trims a UUID to its first group for display.
func shortID(id string) string {
	if idx := strings.Index(id, "-"); idx > 0 {
		return id[:idx]
	}
	return id
}
