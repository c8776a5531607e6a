/*
Package prover generates Groth16 proofs for RISC Zero guest programs on Bonsai.

A proof runs through the following workflow:

 1. Upload the guest ELF under its image ID (or use the configured default image ID).
 2. Upload the input.
 3. Create a STARK proving session and poll it until it reaches a final status.
 4. Create a STARK to SNARK session and poll it until it reaches a final status.
 5. Encode the Groth16 seal for the on-chain verifier.

Every poll waits on a clock, so the workflow can be driven by a fake clock in tests.

The coordinates of the Groth16 seal, including both halves of b, are packed in the order Bonsai
returns them. This order has not been checked against a seal accepted by an on-chain verifier.
*/
package prover

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/edgelesssys/go-pckid/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

const (
	// StageSTARK is the stage of the STARK proving session.
	StageSTARK = "stark"
	// StageSNARK is the stage of the STARK to SNARK session.
	StageSNARK = "snark"

	statusRunning   = "RUNNING"
	statusSucceeded = "SUCCEEDED"
)

var (
	// ErrNoImage is returned if neither an ELF nor a default image ID is available.
	ErrNoImage = errors.New("no ELF given and no default image ID configured")
	// ErrMissingReceipt is returned if a session succeeded without producing a receipt.
	ErrMissingReceipt = errors.New("session succeeded without a receipt")
)

// SessionError is returned if a session reached a final status other than SUCCEEDED.
type SessionError struct {
	Stage   string
	UUID    string
	Status  string
	Message string
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s session %s exited with status %s: %s", e.Stage, e.UUID, e.Status, e.Message)
}

// SessionObserver is notified about finished sessions and proofs.
type SessionObserver interface {
	ObserveSession(stage, status string)
	ObserveProof(d time.Duration)
}

// Receipt is the outcome of a successful proof.
type Receipt struct {
	Journal         hexutil.Bytes `json:"journal"`
	PostStateDigest common.Hash   `json:"postStateDigest"`
	Seal            hexutil.Bytes `json:"seal"`
}

// BonsaiProver generates proofs using the Bonsai proving service.
type BonsaiProver struct {
	api      bonsaiAPI
	clock    clock.Clock
	log      logr.Logger
	observer SessionObserver

	imageID          func(elf []byte) string
	defaultImageID   string
	pollInterval     time.Duration
	verifierSelector [4]byte
}

// New returns a BonsaiProver configured by cfg. observer may be nil.
func New(log logr.Logger, cfg *config.ProverConfig, observer SessionObserver) (*BonsaiProver, error) {
	api, err := newBonsaiClient(cfg.APIURL, cfg.APIKey, cfg.RiscZeroVersion, &http.Client{Timeout: cfg.RequestTimeout})
	if err != nil {
		return nil, err
	}
	if observer == nil {
		observer = nopObserver{}
	}

	return &BonsaiProver{
		api:              api,
		clock:            clock.RealClock{},
		log:              log,
		observer:         observer,
		imageID:          contentImageID,
		defaultImageID:   cfg.DefaultImageID,
		pollInterval:     cfg.PollInterval,
		verifierSelector: cfg.VerifierSelector,
	}, nil
}

// Prove runs the guest program on input and returns the journal, the post state digest and the
// selector prefixed, ABI encoded Groth16 seal.
// If elf is nil, the default image ID is used and the image is expected to exist on Bonsai.
func (p *BonsaiProver) Prove(ctx context.Context, elf, input []byte) (Receipt, error) {
	start := p.clock.Now()

	imageID, err := p.prepareImage(ctx, elf)
	if err != nil {
		return Receipt{}, err
	}
	p.log.Info("Using image", "imageID", imageID)

	inputID, err := p.api.uploadInput(ctx, input)
	if err != nil {
		return Receipt{}, fmt.Errorf("uploading input: %w", err)
	}
	p.log.Info("Uploaded input", "inputID", inputID)

	sessionID, err := p.api.createSession(ctx, imageID, inputID)
	if err != nil {
		return Receipt{}, fmt.Errorf("creating proving session: %w", err)
	}
	p.log.Info("Prove session created", "uuid", sessionID)

	if err := p.waitForSession(ctx, sessionID); err != nil {
		return Receipt{}, err
	}

	snarkID, err := p.api.createSnark(ctx, sessionID)
	if err != nil {
		return Receipt{}, fmt.Errorf("creating SNARK session: %w", err)
	}
	p.log.Info("Proof to SNARK session created", "uuid", snarkID)

	output, err := p.waitForSnark(ctx, snarkID)
	if err != nil {
		return Receipt{}, err
	}

	receipt, err := p.receiptFromSnark(output)
	if err != nil {
		return Receipt{}, err
	}
	p.observer.ObserveProof(p.clock.Since(start))
	return receipt, nil
}

func (p *BonsaiProver) prepareImage(ctx context.Context, elf []byte) (string, error) {
	if elf == nil {
		if p.defaultImageID == "" {
			return "", ErrNoImage
		}
		return p.defaultImageID, nil
	}

	imageID := p.imageID(elf)
	if err := p.api.uploadImage(ctx, imageID, elf); err != nil {
		return "", fmt.Errorf("uploading image %s: %w", imageID, err)
	}
	return imageID, nil
}

func (p *BonsaiProver) waitForSession(ctx context.Context, sessionID string) error {
	for {
		status, err := p.api.sessionStatus(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("getting status of proving session %s: %w", sessionID, err)
		}

		switch status.Status {
		case statusRunning:
			p.log.V(1).Info("Prove session running", "uuid", sessionID, "state", deref(status.State))
			if err := p.wait(ctx); err != nil {
				return err
			}
		case statusSucceeded:
			p.observer.ObserveSession(StageSTARK, status.Status)
			if deref(status.ReceiptURL) == "" {
				return fmt.Errorf("%w: proving session %s", ErrMissingReceipt, sessionID)
			}
			p.log.Info("Prove session is successful", "uuid", sessionID, "receiptURL", *status.ReceiptURL)
			return nil
		default:
			p.observer.ObserveSession(StageSTARK, status.Status)
			return &SessionError{
				Stage:   StageSTARK,
				UUID:    sessionID,
				Status:  status.Status,
				Message: deref(status.ErrorMsg),
			}
		}
	}
}

func (p *BonsaiProver) waitForSnark(ctx context.Context, snarkID string) (snarkReceipt, error) {
	for {
		status, err := p.api.snarkStatus(ctx, snarkID)
		if err != nil {
			return snarkReceipt{}, fmt.Errorf("getting status of SNARK session %s: %w", snarkID, err)
		}

		switch status.Status {
		case statusRunning:
			p.log.V(1).Info("SNARK session running", "uuid", snarkID)
			if err := p.wait(ctx); err != nil {
				return snarkReceipt{}, err
			}
		case statusSucceeded:
			p.observer.ObserveSession(StageSNARK, status.Status)
			if status.Output == nil {
				return snarkReceipt{}, fmt.Errorf("%w: SNARK session %s", ErrMissingReceipt, snarkID)
			}
			p.log.Info("SNARK session is successful", "uuid", snarkID)
			return *status.Output, nil
		default:
			p.observer.ObserveSession(StageSNARK, status.Status)
			return snarkReceipt{}, &SessionError{
				Stage:   StageSNARK,
				UUID:    snarkID,
				Status:  status.Status,
				Message: deref(status.ErrorMsg),
			}
		}
	}
}

func (p *BonsaiProver) receiptFromSnark(output snarkReceipt) (Receipt, error) {
	seal, err := encodeSeal(p.verifierSelector, output.Snark)
	if err != nil {
		return Receipt{}, fmt.Errorf("encoding seal: %w", err)
	}
	if len(output.PostStateDigest) != common.HashLength {
		return Receipt{}, fmt.Errorf("reading post state digest: expected %d bytes, got %d", common.HashLength, len(output.PostStateDigest))
	}

	return Receipt{
		Journal:         hexutil.Bytes(output.Journal),
		PostStateDigest: common.BytesToHash(output.PostStateDigest),
		Seal:            seal,
	}, nil
}

// wait blocks for one poll interval, or until ctx is done.
func (p *BonsaiProver) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.clock.After(p.pollInterval):
		return nil
	}
}

// contentImageID derives the image ID of an ELF from its content.
func contentImageID(elf []byte) string {
	sum := sha256.Sum256(elf)
	return hex.EncodeToString(sum[:])
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type nopObserver struct{}

func (nopObserver) ObserveSession(string, string) {}
func (nopObserver) ObserveProof(time.Duration) {}
