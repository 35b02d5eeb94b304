package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Strob0t/taskrelay/internal/middleware"
)

func newHashKeyCmd() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "hash-key",
		Short: "Print the bcrypt hash of an API key for auth.api_key_hash",
		Long: `Print the bcrypt hash of an API key.

The key is read from --key, prompted for on a terminal, or read as the
first line of stdin when piped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if key == "" {
				var err error
				key, err = readKey(cmd)
				if err != nil {
					return err
				}
			}
			hash, err := middleware.HashAPIKey(key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "API key to hash (prompted if not provided)") //nolint:gosec // CLI flag
	return cmd
}

// readKey prompts twice on a terminal and otherwise reads one line of input.
func readKey(cmd *cobra.Command) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		key, err := promptKey(cmd, f, "API key: ")
		if err != nil {
			return "", err
		}
		confirm, err := promptKey(cmd, f, "Confirm API key: ")
		if err != nil {
			return "", err
		}
		if key != confirm {
			return "", errors.New("keys do not match")
		}
		return key, nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func promptKey(cmd *cobra.Command, f *os.File, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read key: %w", err)
	}
	return string(b), nil
}
