package main

import (
	"fmt"
	"os"

	"github.com/edgelesssys/go-pckid/config"
	"github.com/edgelesssys/go-pckid/prover"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
)

func newProveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prove <input>",
		Short: "Generate a Groth16 proof on Bonsai",
		Long: "Generate a Groth16 proof on Bonsai for the given input file. " +
			"Without --elf, the image configured by PCKID_DEFAULT_IMAGE_ID is proven.",
		Args: cobra.ExactArgs(1),
		RunE: runProve,
	}
	cmd.Flags().String("elf", "", "path to the guest ELF to upload")
	return cmd
}

func runProve(cmd *cobra.Command, args []string) error {
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.LoadProverConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	elfPath, err := cmd.Flags().GetString("elf")
	if err != nil {
		return err
	}
	var elf []byte
	if elfPath != "" {
		if elf, err = os.ReadFile(elfPath); err != nil {
			return fmt.Errorf("reading ELF: %w", err)
		}
	}
	input, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	p, err := prover.New(zapr.NewLogger(log.Named("prover")), cfg, nil)
	if err != nil {
		return err
	}
	receipt, err := p.Prove(cmd.Context(), elf, input)
	if err != nil {
		return fmt.Errorf("proving: %w", err)
	}
	return printJSON(cmd, receipt)
}
