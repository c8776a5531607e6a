package types

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedQuote is returned if the quote is too short for the offsets it declares.
	ErrMalformedQuote = errors.New("malformed quote")
	// ErrCertificateDecode is returned if the certification data is not a valid PEM encoded X.509 chain.
	ErrCertificateDecode = errors.New("invalid PCK certificate chain")
	// ErrEmptyChain is returned if the certification data holds no certificate at all.
	ErrEmptyChain = errors.New("PCK certificate chain is empty")
	// ErrUnknownIssuer is returned if the PCK certificate was not issued by one of the PCK CAs.
	ErrUnknownIssuer = errors.New("unknown PCK certificate issuer")
	// ErrMissingIssuerCN is returned if the issuer of the PCK certificate has no common name.
	ErrMissingIssuerCN = errors.New("PCK certificate issuer has no common name")
	// ErrExtensionNotFound is returned if the PCK certificate carries no SGX extension.
	ErrExtensionNotFound = errors.New("no SGX extension found in certificate")
	// ErrDuplicateExtension is returned if the PCK certificate carries more than one SGX extension.
	ErrDuplicateExtension = errors.New("duplicate SGX extension in certificate")
	// ErrMalformedExtension is returned if the SGX extension is not valid DER.
	ErrMalformedExtension = errors.New("malformed SGX extension")
	// ErrFMSPCNotFound is returned if the SGX extension holds no FMSPC entry.
	ErrFMSPCNotFound = errors.New("no FMSPC entry in SGX extension")
	// ErrInvalidFMSPCLength is returned if the FMSPC entry is not exactly 6 bytes.
	ErrInvalidFMSPCLength = errors.New("invalid FMSPC length")
)

// UnknownIssuerError is returned by ClassifyIssuer for an issuer common name that names neither PCK CA.
// It matches ErrUnknownIssuer with errors.Is.
type UnknownIssuerError struct {
	CommonName string
}

func (e *UnknownIssuerError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownIssuer, e.CommonName)
}

// Is reports whether target is ErrUnknownIssuer.
func (e *UnknownIssuerError) Is(target error) bool {
	return target == ErrUnknownIssuer
}

// errorKinds is ordered so more specific kinds are matched first.
var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrMalformedQuote, "MalformedQuote"},
	{ErrEmptyChain, "EmptyChain"},
	{ErrCertificateDecode, "CertificateDecodeError"},
	{ErrUnknownIssuer, "UnknownIssuer"},
	{ErrMissingIssuerCN, "MissingIssuerCN"},
	{ErrExtensionNotFound, "ExtensionNotFound"},
	{ErrDuplicateExtension, "DuplicateExtension"},
	{ErrMalformedExtension, "MalformedExtension"},
	{ErrFMSPCNotFound, "FmspcNotFound"},
	{ErrInvalidFMSPCLength, "InvalidFmspcLength"},
}

// ErrorKind returns the stable name of the extraction error kind err belongs to.
// It returns an empty string for a nil error and "Unknown" for errors of no known kind.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Unknown"
}
