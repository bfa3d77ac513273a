package main

import (
	"github.com/spf13/cobra"
)

func newCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for logmedic.

To load completions:

Bash:
  $ source <(logmedic completion bash)
  # To load completions for each session, execute once:
  $ logmedic completion bash > /etc/bash_completion.d/logmedic

Zsh:
  $ source <(logmedic completion zsh)
  # To load completions for each session, execute once:
  $ logmedic completion zsh > "${fpath[1]}/_logmedic"

Fish:
  $ logmedic completion fish | source
  # To load completions for each session, execute once:
  $ logmedic completion fish > ~/.config/fish/completions/logmedic.fish
`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"bash", "zsh", "fish"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(out, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			}
			return nil
		},
	}
	return cmd
}
