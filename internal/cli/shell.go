package cli

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/scriptdbg/internal/debug"
)

const (
	cmdGroupAnnotation = "cmd_group_annotation"

	cmdGroupBreakpoints = "1-breakpoints"
	cmdGroupCtrlFlow    = "2-execution"
	cmdGroupInspect     = "3-inspect"
	cmdGroupOthers      = "4-other"
	cmdGroupCobra       = "other"

	cmdGroupDelimiter = "-"

	shellPrompt = "scriptdbg> "
)

// stopWaitTimeout bounds how long a resume command waits for the next
// pause before handing the prompt back.
const stopWaitTimeout = 30 * time.Second

var shellRootCmd = &cobra.Command{
	Use:   "help [command]",
	Short: "scriptdbg interactive debugging commands",
}

// current is the shell the command tree dispatches against. The REPL runs
// one shell per process.
var current *Shell

// Shell is the interactive debugging loop: a liner prompt dispatching into
// the cobra command tree, bound to one session.
type Shell struct {
	session  *debug.Session
	finished <-chan struct{}
	styles   styler
	logger   *zap.Logger

	prompt  string
	root    *cobra.Command
	liner   *liner.State
	last    string
	history string

	done   chan struct{}
	defers []func()
}

// NewShell creates the interactive shell for a session. finished must be
// closed when the script goroutine returns.
func NewShell(session *debug.Session, finished <-chan struct{}, cfg *Config, logger *zap.Logger) *Shell {
	if logger == nil {
		logger = zap.NewNop()
	}

	shellRootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(cmd.Short)
		fmt.Println()
		fmt.Println(cmd.Use)
		fmt.Println(cmd.Flags().FlagUsages())
		fmt.Println(helpMessageByGroups(cmd))
	})

	s := &Shell{
		session:  session,
		finished: finished,
		styles:   newStyler(cfg.NoColor),
		logger:   logger,
		prompt:   shellPrompt,
		root:     shellRootCmd,
		liner:    liner.NewLiner(),
		history:  cfg.HistoryFile,
		done:     make(chan struct{}),
	}
	current = s
	return s
}

// Start runs the prompt loop until quit or script completion.
func (s *Shell) Start() {
	s.liner.SetCompleter(completer)
	s.liner.SetTabCompletionStyle(liner.TabPrints)
	s.loadHistory()

	defer func() {
		s.saveHistory()
		s.liner.Close()
		for idx := len(s.defers) - 1; idx >= 0; idx-- {
			s.defers[idx]()
		}
	}()

	fmt.Println(s.styles.banner(" scriptdbg "))
	fmt.Println(s.styles.dim("type 'help' for commands"))

	for {
		select {
		case <-s.done:
			return
		default:
		}

		txt, err := s.liner.Prompt(s.prompt)
		if err != nil {
			if err == liner.ErrPromptAborted {
				continue
			}
			// EOF quits like an explicit quit.
			s.session.Terminate()
			return
		}

		txt = strings.TrimSpace(txt)
		if len(txt) != 0 {
			s.last = txt
			s.liner.AppendHistory(txt)
		} else {
			// Empty input repeats the last command, gdb style.
			txt = s.last
		}
		if txt == "" {
			continue
		}

		s.root.SetArgs(strings.Fields(txt))
		if err := s.root.Execute(); err != nil {
			fmt.Println(s.styles.errorf(err.Error()))
		}
	}
}

// AtExit registers a cleanup run when the shell stops.
func (s *Shell) AtExit(fn func()) *Shell {
	s.defers = append(s.defers, fn)
	return s
}

// Stop ends the prompt loop.
func (s *Shell) Stop() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// waitStop blocks until the interpreter pauses again or the script
// finishes, then reports where execution stopped.
func (s *Shell) waitStop() {
	mgr := s.session.ExecutionManager()
	deadline := time.Now().Add(stopWaitTimeout)

	for time.Now().Before(deadline) {
		select {
		case <-s.finished:
			s.session.ProcessEvents()
			fmt.Println(s.styles.dim("script finished"))
			s.Stop()
			return
		default:
		}

		if st := mgr.State(); st.Paused() {
			s.session.ProcessEvents()
			s.reportStop(st)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	fmt.Println(s.styles.dim("still running; use 'pause' to interrupt"))
}

// reportStop prints the pause banner, the stop location, and any watch
// values.
func (s *Shell) reportStop(st debug.DebugState) {
	fmt.Printf("%s %s\n",
		s.styles.reason(fmt.Sprintf("[%s]", st.Reason.Kind)),
		s.styles.location(st.Location.String()))
	if st.Reason.Message != "" {
		fmt.Println(s.styles.errorf(st.Reason.Message))
	}

	if stack := s.session.StackTrace(); len(stack) > 0 {
		fmt.Printf("  %s\n", shellNav.FormatFrame(stack[0]))
	}

	if watches := s.session.WatchExpressions(); len(watches) > 0 {
		insp := s.session.Inspector()
		for _, v := range s.session.EvaluateWatches() {
			fmt.Printf("  %s %s\n",
				s.styles.dim("watch"),
				s.styles.value(insp.FormatVariable(v)))
		}
	}
}

// shellNav formats frames for shell output.
var shellNav = debug.NewStackNavigator()

func completer(line string) []string {
	cmds := []string{}
	for _, c := range shellRootCmd.Commands() {
		if strings.HasPrefix(c.Use, line) {
			cmds = append(cmds, strings.Split(c.Use, " ")[0])
		}
		for _, alias := range c.Aliases {
			if strings.HasPrefix(alias, line) {
				cmds = append(cmds, alias)
			}
		}
	}
	return cmds
}

func (s *Shell) loadHistory() {
	if s.history == "" {
		return
	}
	f, err := os.Open(s.history)
	if err != nil {
		return
	}
	defer f.Close()
	if _, err := s.liner.ReadHistory(f); err != nil {
		s.logger.Debug("read history", zap.Error(err))
	}
}

func (s *Shell) saveHistory() {
	if s.history == "" {
		return
	}
	f, err := os.Create(s.history)
	if err != nil {
		s.logger.Debug("create history", zap.Error(err))
		return
	}
	defer f.Close()
	if _, err := s.liner.WriteHistory(f); err != nil {
		s.logger.Debug("write history", zap.Error(err))
	}
}

// helpMessageByGroups renders the command list grouped by annotation.
func helpMessageByGroups(cmd *cobra.Command) string {
	groups := map[string][]string{}
	for _, c := range cmd.Commands() {
		groupName, ok := c.Annotations[cmdGroupAnnotation]
		if !ok {
			groupName = cmdGroupCobra
		}

		groupCmds := groups[groupName]
		groupCmds = append(groupCmds, fmt.Sprintf("  %-16s:%s", c.Name(), c.Short))
		sort.Strings(groupCmds)
		groups[groupName] = groupCmds
	}

	if len(groups[cmdGroupCobra]) != 0 {
		groups[cmdGroupOthers] = append(groups[cmdGroupOthers], groups[cmdGroupCobra]...)
	}
	delete(groups, cmdGroupCobra)

	groupNames := []string{}
	for k := range groups {
		groupNames = append(groupNames, k)
	}
	sort.Strings(groupNames)

	buf := bytes.Buffer{}
	for _, groupName := range groupNames {
		commands := groups[groupName]

		group := strings.Split(groupName, cmdGroupDelimiter)[1]
		buf.WriteString(fmt.Sprintf("- [%s]\n", group))
		for _, cmd := range commands {
			buf.WriteString(fmt.Sprintf("%s\n", cmd))
		}
		buf.WriteString("\n")
	}
	return buf.String()
}
