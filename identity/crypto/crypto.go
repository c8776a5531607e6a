// Package crypto implements decoding of the PEM encoded PCK certificate chain embedded in SGX quotes.
package crypto

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/edgelesssys/go-pckid/identity/types"
)

const certificateBlockType = "CERTIFICATE"

// pemStart marks the start of every armored block, valid or not.
var pemStart = []byte("-----BEGIN ")

// ParsePEMCertificateChain parses a certificate chain from a PEM-encoded byte slice.
// The order of the chain is preserved, so for a PCK certificate chain the PCK certificate comes first.
func ParsePEMCertificateChain(certChainPEM []byte) ([]*x509.Certificate, error) {
	var chain []*x509.Certificate
	for block, rest := pem.Decode(certChainPEM); block != nil; block, rest = pem.Decode(rest) {
		if block.Type != certificateBlockType {
			return nil, fmt.Errorf("%w: block %d has unexpected PEM type %q", types.ErrCertificateDecode, len(chain), block.Type)
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			// x509 refuses duplicate extensions, so look for a duplicate SGX extension in the raw DER
			if count, countErr := types.CountSGXExtensions(block.Bytes); countErr == nil && count > 1 {
				return nil, fmt.Errorf("%w: certificate %d carries %d extensions with OID %s",
					types.ErrDuplicateExtension, len(chain), count, types.SGXExtensionOID)
			}
			return nil, fmt.Errorf("%w: parsing certificate %d from PEM: %w", types.ErrCertificateDecode, len(chain), err)
		}

		chain = append(chain, cert)
	}

	// pem.Decode silently skips over blocks it can't decode, so compare against the armor we saw.
	if blocks := bytes.Count(certChainPEM, pemStart); blocks != len(chain) {
		return nil, fmt.Errorf("%w: found %d PEM blocks, but only %d could be decoded", types.ErrCertificateDecode, blocks, len(chain))
	}
	if len(chain) == 0 {
		return nil, types.ErrEmptyChain
	}

	return chain, nil
}
