package main

import (
	"fmt"

	"github.com/edgelesssys/go-pckid/config"
	"github.com/edgelesssys/go-pckid/constants"
	"github.com/edgelesssys/go-pckid/identity"
	"github.com/edgelesssys/go-pckid/identity/types"
	"github.com/spf13/cobra"
)

func newFMSPCCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fmspc <quote>",
		Short: "Print the FMSPC, PCK CA type and issuer of a quote",
		Long:  "Print the FMSPC, PCK CA type and issuer of a quote read from a file, or from stdin if the file is \"-\".",
		Args:  cobra.ExactArgs(1),
		RunE:  runFMSPC,
	}
	cmd.Flags().Bool("hex", false, "the quote is hex encoded")
	return cmd
}

func runFMSPC(cmd *cobra.Command, args []string) error {
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	isHex, err := cmd.Flags().GetBool("hex")
	if err != nil {
		return err
	}
	quote, err := readQuote(cmd, args[0], isHex)
	if err != nil {
		return err
	}

	platformIdentity, err := identity.NewExtractor(log, nil, 1).Extract(quote)
	if err != nil {
		return fmt.Errorf("extracting platform identity (%s): %w", types.ErrorKind(err), err)
	}
	return printJSON(cmd, platformIdentity)
}

type batchOutput struct {
	Quote    string                  `json:"quote"`
	Identity *types.PlatformIdentity `json:"identity,omitempty"`
	Error    string                  `json:"error,omitempty"`
	Kind     string                  `json:"kind,omitempty"`
}

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <quote>...",
		Short: "Print the platform identity of multiple quotes",
		Long: "Print the platform identity of multiple quotes. The quotes are processed concurrently, " +
			"at most " + constants.BatchConcurrencyEnv + " at once. A failed quote does not stop the others.",
		Args: cobra.MinimumNArgs(1),
		RunE: runBatch,
	}
	cmd.Flags().Bool("hex", false, "the quotes are hex encoded")
	return cmd
}

func runBatch(cmd *cobra.Command, args []string) error {
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.LoadServiceConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	isHex, err := cmd.Flags().GetBool("hex")
	if err != nil {
		return err
	}

	quotes := make([][]byte, len(args))
	for i, path := range args {
		if quotes[i], err = readQuote(cmd, path, isHex); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	results, err := identity.NewExtractor(log, nil, cfg.BatchConcurrency).ExtractBatch(cmd.Context(), quotes)
	if err != nil {
		return err
	}

	out := make([]batchOutput, len(results))
	failed := 0
	for i, result := range results {
		out[i].Quote = args[i]
		if result.Err != nil {
			failed++
			out[i].Error = result.Err.Error()
			out[i].Kind = types.ErrorKind(result.Err)
			continue
		}
		out[i].Identity = &result.Identity
	}
	if err := printJSON(cmd, out); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d quotes failed", failed, len(results))
	}
	return nil
}
