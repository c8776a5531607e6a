package types

import (
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

/*
   PCK certificate SGX extension
   Based on:
   https://api.trustedservices.intel.com/documents/Intel_SGX_PCK_Certificate_CRL_Spec-1.5.pdf

   The extension value is a SEQUENCE of entries, each entry a SEQUENCE holding an OID followed by its value:

   SGXExtensions ::= SEQUENCE {
       SEQUENCE { ppid        OID, OCTET STRING (16) },
       SEQUENCE { tcb         OID, SEQUENCE { ... } },
       SEQUENCE { pceid       OID, OCTET STRING (2) },
       SEQUENCE { fmspc       OID, OCTET STRING (6) },
       SEQUENCE { sgxType     OID, ENUMERATED },
       ...
   }
*/

var (
	// SGXExtensionOID is the OID for Intel's custom x509 SGX extension.
	SGXExtensionOID = asn1.ObjectIdentifier{1, 2, 840, 113741, 1, 13, 1}

	// FMSPCOID is the OID of the FMSPC entry inside the SGX extension.
	FMSPCOID = asn1.ObjectIdentifier{1, 2, 840, 113741, 1, 13, 1, 4}
)

// errEntryNotFound is returned by the walker if it reached the end of the extension without a match.
var errEntryNotFound = errors.New("entry not found")

// FindSGXExtension returns the raw DER value of the SGX extension of a PCK certificate.
func FindSGXExtension(pckCert *x509.Certificate) ([]byte, error) {
	var sgxExtension []byte
	matches := 0
	for _, ext := range pckCert.Extensions {
		if !ext.Id.Equal(SGXExtensionOID) {
			continue
		}
		matches++
		sgxExtension = ext.Value
	}

	switch matches {
	case 0:
		return nil, ErrExtensionNotFound
	case 1:
		return sgxExtension, nil
	default:
		return nil, fmt.Errorf("%w: found %d extensions with OID %s", ErrDuplicateExtension, matches, SGXExtensionOID)
	}
}

// CountSGXExtensions returns how often the SGX extension occurs in a DER encoded certificate.
// Unlike x509.ParseCertificate, it accepts certificates with duplicate extensions.
func CountSGXExtensions(rawCert []byte) (int, error) {
	input := cryptobyte.String(rawCert)
	var cert, tbs cryptobyte.String
	if !input.ReadASN1(&cert, cryptobyte_asn1.SEQUENCE) || !cert.ReadASN1(&tbs, cryptobyte_asn1.SEQUENCE) {
		return 0, fmt.Errorf("%w: certificate is not a SEQUENCE", ErrCertificateDecode)
	}

	// version, serialNumber, then signature, issuer, validity, subject and subjectPublicKeyInfo
	if !tbs.SkipOptionalASN1(cryptobyte_asn1.Tag(0).Constructed().ContextSpecific()) || !tbs.SkipASN1(cryptobyte_asn1.INTEGER) {
		return 0, fmt.Errorf("%w: malformed TBS certificate header", ErrCertificateDecode)
	}
	for range 5 {
		if !tbs.SkipASN1(cryptobyte_asn1.SEQUENCE) {
			return 0, fmt.Errorf("%w: malformed TBS certificate", ErrCertificateDecode)
		}
	}
	// issuerUniqueID, subjectUniqueID
	if !tbs.SkipOptionalASN1(cryptobyte_asn1.Tag(1).ContextSpecific()) || !tbs.SkipOptionalASN1(cryptobyte_asn1.Tag(2).ContextSpecific()) {
		return 0, fmt.Errorf("%w: malformed unique identifiers", ErrCertificateDecode)
	}

	var extensions cryptobyte.String
	var present bool
	if !tbs.ReadOptionalASN1(&extensions, &present, cryptobyte_asn1.Tag(3).Constructed().ContextSpecific()) {
		return 0, fmt.Errorf("%w: malformed extensions", ErrCertificateDecode)
	}
	if !present {
		return 0, nil
	}
	var entries cryptobyte.String
	if !extensions.ReadASN1(&entries, cryptobyte_asn1.SEQUENCE) {
		return 0, fmt.Errorf("%w: extensions are not a SEQUENCE", ErrCertificateDecode)
	}

	count := 0
	for !entries.Empty() {
		var ext cryptobyte.String
		var oid asn1.ObjectIdentifier
		if !entries.ReadASN1(&ext, cryptobyte_asn1.SEQUENCE) || !ext.ReadASN1ObjectIdentifier(&oid) {
			return 0, fmt.Errorf("%w: malformed extension %d", ErrCertificateDecode, count)
		}
		if oid.Equal(SGXExtensionOID) {
			count++
		}
	}
	return count, nil
}

// ExtractFMSPC returns the FMSPC recorded in the SGX extension of a PCK certificate.
func ExtractFMSPC(pckCert *x509.Certificate) (FMSPC, error) {
	sgxExtension, err := FindSGXExtension(pckCert)
	if err != nil {
		return FMSPC{}, err
	}

	value, err := lookupSGXExtensionEntry(sgxExtension, FMSPCOID)
	if errors.Is(err, errEntryNotFound) {
		return FMSPC{}, ErrFMSPCNotFound
	} else if err != nil {
		return FMSPC{}, err
	}

	var fmspc cryptobyte.String
	if !value.ReadASN1(&fmspc, cryptobyte_asn1.OCTET_STRING) {
		return FMSPC{}, fmt.Errorf("%w: FMSPC value is not an OCTET STRING", ErrMalformedExtension)
	}
	if !value.Empty() {
		return FMSPC{}, fmt.Errorf("%w: %d trailing bytes after FMSPC value", ErrMalformedExtension, len(value))
	}
	if len(fmspc) != FMSPCLength {
		return FMSPC{}, fmt.Errorf("%w: expected %d bytes, but got %d", ErrInvalidFMSPCLength, FMSPCLength, len(fmspc))
	}

	return FMSPC(fmspc), nil
}

// lookupSGXExtensionEntry returns the undecoded value of the first entry of the SGX extension whose OID is target.
func lookupSGXExtensionEntry(sgxExtension []byte, target asn1.ObjectIdentifier) (cryptobyte.String, error) {
	input := cryptobyte.String(sgxExtension)
	var entries cryptobyte.String
	if !input.ReadASN1(&entries, cryptobyte_asn1.SEQUENCE) {
		return nil, fmt.Errorf("%w: extension value is not a SEQUENCE", ErrMalformedExtension)
	}
	if !input.Empty() {
		return nil, fmt.Errorf("%w: %d trailing bytes after extension SEQUENCE", ErrMalformedExtension, len(input))
	}

	w := &sgxExtensionWalker{entries: entries, target: target}
	for w.state != entryMatched {
		if err := w.step(); err != nil {
			return nil, err
		}
	}
	return w.entry, nil
}

// walkState is the position of an sgxExtensionWalker.
type walkState int

const (
	// atEntryStart is positioned at the start of the next entry SEQUENCE, or at the end of the entries.
	atEntryStart walkState = iota
	// oidDecoded has consumed the current entry and the OID at its head. The value is left in entry.
	oidDecoded
	// entryMatched has found the target OID. The walk is over.
	entryMatched
)

// sgxExtensionWalker walks the entries of an SGX extension in a single forward pass.
// Every entry is consumed as a whole, so the walker never reads past the length the entry declares.
type sgxExtensionWalker struct {
	entries cryptobyte.String
	entry   cryptobyte.String
	oid     asn1.ObjectIdentifier
	target  asn1.ObjectIdentifier
	index   int
	state   walkState
}

func (w *sgxExtensionWalker) step() error {
	switch w.state {
	case atEntryStart:
		if w.entries.Empty() {
			return fmt.Errorf("%w: OID %s (scanned %d entries)", errEntryNotFound, w.target, w.index)
		}
		if !w.entries.ReadASN1(&w.entry, cryptobyte_asn1.SEQUENCE) {
			return fmt.Errorf("%w: entry %d is not a SEQUENCE", ErrMalformedExtension, w.index)
		}
		if !w.entry.ReadASN1ObjectIdentifier(&w.oid) {
			return fmt.Errorf("%w: entry %d does not start with an OID", ErrMalformedExtension, w.index)
		}
		w.state = oidDecoded

	case oidDecoded:
		if w.oid.Equal(w.target) {
			w.state = entryMatched
			return nil
		}
		w.index++
		w.state = atEntryStart

	case entryMatched:
		// nothing left to do
	}
	return nil
}
