package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// stdinIsTerminal is replaced in tests.
var stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

// confirmApply asks before changing anything unless --yes was given. Without
// a terminal there is nobody to ask, so --yes is required.
func confirmApply(cmd *cobra.Command, yes bool, action string) (bool, error) {
	if yes {
		return true, nil
	}
	if !stdinIsTerminal() {
		return false, usageErrorf("apply mode needs --yes when stdin is not a terminal")
	}
	return askYesNo(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Proceed to %s? [y/N]: ", action))
}

func askYesNo(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("reading confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		fmt.Fprintln(out, "Aborted, no changes made.")
		return false, nil
	}
}
