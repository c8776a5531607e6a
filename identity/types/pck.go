package types

import (
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"fmt"
)

const (
	// PlatformIssuer is the CA issuer for multi platform PCK certificates.
	PlatformIssuer = "Intel SGX PCK Platform CA"

	// ProcessorIssuer is the CA issuer for single platform PCK certificates.
	ProcessorIssuer = "Intel SGX PCK Processor CA"

	// FMSPCLength is the length of an FMSPC in bytes.
	FMSPCLength = 6
)

// oidCommonName is the attribute type of a common name in a distinguished name.
var oidCommonName = asn1.ObjectIdentifier{2, 5, 4, 3}

// CAType is the PCK CA that issued a PCK certificate.
type CAType int

const (
	// UnknownCA is the zero value. It is never returned together with a nil error.
	UnknownCA CAType = iota
	// PlatformCA is the Intel SGX PCK Platform CA.
	PlatformCA
	// ProcessorCA is the Intel SGX PCK Processor CA.
	ProcessorCA
)

// String returns the name Intel's PCS uses for the CA type in its "ca" query parameter.
func (c CAType) String() string {
	switch c {
	case PlatformCA:
		return "platform"
	case ProcessorCA:
		return "processor"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c CAType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *CAType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "platform":
		*c = PlatformCA
	case "processor":
		*c = ProcessorCA
	default:
		return fmt.Errorf("unknown CA type %q", text)
	}
	return nil
}

// FMSPC is the Family-Model-Stepping-Platform-CustomSKU of a platform.
type FMSPC [FMSPCLength]byte

// String returns the FMSPC as lowercase hex, the form used for TCB Info lookups.
func (f FMSPC) String() string {
	return hex.EncodeToString(f[:])
}

// MarshalText implements encoding.TextMarshaler.
func (f FMSPC) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *FMSPC) UnmarshalText(text []byte) error {
	out, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("decoding FMSPC: %w", err)
	}
	if len(out) != FMSPCLength {
		return fmt.Errorf("%w: expected %d bytes, but got %d", ErrInvalidFMSPCLength, FMSPCLength, len(out))
	}
	*f = FMSPC(out)
	return nil
}

// PlatformIdentity is the identity of an attested platform as recorded in its PCK certificate.
type PlatformIdentity struct {
	FMSPC    FMSPC  `json:"fmspc"`
	CAType   CAType `json:"caType"`
	IssuerCN string `json:"issuerCN"`
}

// ClassifyIssuer returns the PCK CA type and the issuer common name of a PCK certificate.
// The first common name of the issuer is used if there is more than one.
func ClassifyIssuer(pckCert *x509.Certificate) (CAType, string, error) {
	cn, ok := issuerCommonName(pckCert)
	if !ok {
		return UnknownCA, "", ErrMissingIssuerCN
	}

	switch cn {
	case PlatformIssuer:
		return PlatformCA, cn, nil
	case ProcessorIssuer:
		return ProcessorCA, cn, nil
	default:
		return UnknownCA, cn, &UnknownIssuerError{CommonName: cn}
	}
}

// issuerCommonName returns the first common name attribute of the certificate's issuer, in DER order.
// pkix.Name.CommonName is only a fallback since it holds the last one, and is the only source
// for certificates that were not parsed from DER.
func issuerCommonName(cert *x509.Certificate) (string, bool) {
	for _, atv := range cert.Issuer.Names {
		if !atv.Type.Equal(oidCommonName) {
			continue
		}
		cn, ok := atv.Value.(string)
		return cn, ok
	}
	if len(cert.Issuer.Names) == 0 && cert.Issuer.CommonName != "" {
		return cert.Issuer.CommonName, true
	}
	return "", false
}
