// pckid extracts the FMSPC and PCK CA of SGX platforms from their quotes, serves the extraction
// over HTTP, and generates proofs on Bonsai.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "pckid",
		Short:        "Extract the platform identity of SGX quotes",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().Bool("log-dev", false, "use human readable log output")

	cmd.AddCommand(
		newFMSPCCmd(),
		newBatchCmd(),
		newServeCmd(),
		newProveCmd(),
	)
	return cmd
}

// newLogger creates a logger as configured by the persistent log flags.
func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	level, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, err
	}
	dev, err := cmd.Flags().GetBool("log-dev")
	if err != nil {
		return nil, err
	}

	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}

	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = atomicLevel
	// stdout is reserved for command output
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// readQuote reads a quote from path, or from stdin if path is "-".
// If isHex is set, the content is hex decoded.
func readQuote(cmd *cobra.Command, path string, isHex bool) ([]byte, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading quote: %w", err)
	}

	if !isHex {
		return raw, nil
	}
	quote, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decoding hex quote: %w", err)
	}
	return quote, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	prettyPrint, err := json.MarshalIndent(v, "", " ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(prettyPrint))
	return err
}
