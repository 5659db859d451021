package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var exitCmd = &cobra.Command{
	Use:     "quit",
	Short:   "terminate the script and leave the debugger",
	Aliases: []string{"q", "exit"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupOthers,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		current.session.Terminate()
		current.Stop()
		fmt.Println(current.styles.dim("bye"))
		return nil
	},
}

func init() {
	shellRootCmd.AddCommand(exitCmd)
}
