/*
Package identity extracts the platform identity of an SGX platform from an SGX quote.

The identity is read from the PCK certificate, the leaf of the certificate chain embedded in the
certification data of the quote:

  - The FMSPC, taken from the SGX extension of the PCK certificate.
  - The PCK CA that issued the PCK certificate, classified from the issuer common name.

Neither the quote nor the certificate chain are verified. Callers that need a trusted identity
must verify the quote before using the result, e.g. to look up the TCB Info of the platform.
*/
package identity

import (
	"context"
	"fmt"

	"github.com/edgelesssys/go-pckid/identity/crypto"
	"github.com/edgelesssys/go-pckid/identity/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ExtractPlatformIdentity returns the FMSPC, PCK CA type and issuer common name recorded in the
// PCK certificate of an SGX quote.
// Either all fields are populated, or an error is returned.
func ExtractPlatformIdentity(rawQuote []byte) (types.PlatformIdentity, error) {
	certData, err := types.CertificationData(rawQuote)
	if err != nil {
		return types.PlatformIdentity{}, fmt.Errorf("locating certification data: %w", err)
	}

	chain, err := crypto.ParsePEMCertificateChain(certData)
	if err != nil {
		return types.PlatformIdentity{}, fmt.Errorf("parsing PCK certificate chain: %w", err)
	}
	pckCert := chain[0]

	caType, issuerCN, err := types.ClassifyIssuer(pckCert)
	if err != nil {
		return types.PlatformIdentity{}, fmt.Errorf("classifying PCK certificate issuer: %w", err)
	}

	fmspc, err := types.ExtractFMSPC(pckCert)
	if err != nil {
		return types.PlatformIdentity{}, fmt.Errorf("extracting FMSPC: %w", err)
	}

	return types.PlatformIdentity{
		FMSPC:    fmspc,
		CAType:   caType,
		IssuerCN: issuerCN,
	}, nil
}

// Observer is notified about the outcome of every extraction.
type Observer interface {
	// ObserveExtraction is called with the error kind of a failed extraction,
	// or an empty string if the extraction succeeded.
	ObserveExtraction(kind string)
}

// Result is the outcome of extracting the identity of a single quote.
type Result struct {
	Identity types.PlatformIdentity
	Err      error
}

// Extractor extracts platform identities and reports the outcome to a logger and observer.
type Extractor struct {
	log         *zap.Logger
	observer    Observer
	concurrency int
}

// NewExtractor returns a new Extractor.
// observer may be nil. ExtractBatch runs at most concurrency extractions at once,
// a value below 1 means no limit.
func NewExtractor(log *zap.Logger, observer Observer, concurrency int) *Extractor {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Extractor{
		log:         log,
		observer:    observer,
		concurrency: concurrency,
	}
}

// Extract returns the platform identity recorded in an SGX quote.
func (e *Extractor) Extract(rawQuote []byte) (types.PlatformIdentity, error) {
	identity, err := ExtractPlatformIdentity(rawQuote)
	kind := types.ErrorKind(err)
	e.observer.ObserveExtraction(kind)

	if err != nil {
		e.log.Warn("Failed to extract platform identity",
			zap.String("kind", kind),
			zap.Int("quoteSize", len(rawQuote)),
			zap.Error(err))
		return types.PlatformIdentity{}, err
	}

	e.log.Debug("Extracted platform identity",
		zap.Stringer("fmspc", identity.FMSPC),
		zap.Stringer("caType", identity.CAType),
		zap.String("issuerCN", identity.IssuerCN))
	return identity, nil
}

// ExtractBatch extracts the platform identities of multiple quotes concurrently.
// The results are in the order of the quotes. A failed extraction is only recorded in its own
// result and does not stop the others.
// If ctx is done before all quotes were processed, the remaining results hold the context error,
// which is also returned.
func (e *Extractor) ExtractBatch(ctx context.Context, quotes [][]byte) ([]Result, error) {
	results := make([]Result, len(quotes))

	var g errgroup.Group
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}

	var ctxErr error
	for i, quote := range quotes {
		if ctxErr = ctx.Err(); ctxErr != nil {
			results[i].Err = ctxErr
			continue
		}
		g.Go(func() error {
			identity, err := e.Extract(quote)
			results[i] = Result{Identity: identity, Err: err}
			return nil
		})
	}
	_ = g.Wait() // extraction errors are collected in the results

	failed := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
		}
	}
	e.log.Info("Processed quote batch",
		zap.Int("quotes", len(quotes)),
		zap.Int("failed", failed))

	return results, ctxErr
}

type nopObserver struct{}

func (nopObserver) ObserveExtraction(string) {}
