package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"sourcery/internal/deobfuscate"
)

// maxUnpackInput bounds how much of a script unpack reads.
const maxUnpackInput = 10 * 1024 * 1024

var unpackCmd = &cobra.Command{
	Use:   "unpack [file]",
	Short: "Unpack a P.A.C.K.E.R. script from a file or stdin",
	Args:  cobra.MaximumNArgs(1),
	// Needs no config.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE:              unpackRun,
}

func unpackRun(cmd *cobra.Command, args []string) error {
	in := io.Reader(cmd.InOrStdin())
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening script: %w", err)
		}
		defer f.Close()
		in = f
	}

	data, err := io.ReadAll(io.LimitReader(in, maxUnpackInput))
	if err != nil {
		return fmt.Errorf("reading script: %w", err)
	}
	if !deobfuscate.IsPacked(string(data)) {
		return fmt.Errorf("input does not contain a packed script")
	}
	out, err := deobfuscate.Unpack(string(data))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
	return err
}
