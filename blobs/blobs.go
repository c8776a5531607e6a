// Package blobs generates SGX quotes, PCK certificate chains and SGX extensions for tests.
//
// The generated blobs follow the layout of real DCAP quotes, but are signed by throwaway keys.
package blobs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

const (
	// qeAuthDataSizeOffset is the offset of the QE authentication data size in an SGX v3 quote.
	qeAuthDataSizeOffset = 1012
	// pckCertChainType is the CertificationData type of a PEM encoded PCK cert chain.
	pckCertChainType = 5
)

var (
	sgxExtensionOID = asn1.ObjectIdentifier{1, 2, 840, 113741, 1, 13, 1}

	// PPIDOID is the OID of the PPID entry of the SGX extension.
	PPIDOID = asn1.ObjectIdentifier{1, 2, 840, 113741, 1, 13, 1, 1}
	// TCBOID is the OID of the TCB entry of the SGX extension.
	TCBOID = asn1.ObjectIdentifier{1, 2, 840, 113741, 1, 13, 1, 2}
	// PCEIDOID is the OID of the PCEID entry of the SGX extension.
	PCEIDOID = asn1.ObjectIdentifier{1, 2, 840, 113741, 1, 13, 1, 3}
	// FMSPCOID is the OID of the FMSPC entry of the SGX extension.
	FMSPCOID = asn1.ObjectIdentifier{1, 2, 840, 113741, 1, 13, 1, 4}
	// SGXTypeOID is the OID of the SGX type entry of the SGX extension.
	SGXTypeOID = asn1.ObjectIdentifier{1, 2, 840, 113741, 1, 13, 1, 5}

	// PCSIssueDate is the NotBefore of all generated certificates.
	PCSIssueDate = time.Date(2024, time.May, 21, 10, 45, 10, 0, time.UTC)
)

// Entry is a single OID/value pair of an SGX extension.
// Value holds the complete DER encoding (tag, length and content) of the entry's value.
type Entry struct {
	OID   asn1.ObjectIdentifier
	Value []byte
}

// OctetStringEntry returns an entry whose value is an OCTET STRING.
func OctetStringEntry(oid asn1.ObjectIdentifier, value []byte) Entry {
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1OctetString(value)
	return Entry{OID: oid, Value: b.BytesOrPanic()}
}

// SGXExtension encodes entries as the value of an SGX extension.
func SGXExtension(entries ...Entry) []byte {
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		for _, entry := range entries {
			addEntry(b, entry)
		}
	})
	return b.BytesOrPanic()
}

// PCKSGXExtension returns an SGX extension as found in PCK certificates, holding the given FMSPC.
// The FMSPC entry is preceded by the PPID, TCB and PCEID entries and followed by the SGX type.
func PCKSGXExtension(fmspc []byte) []byte {
	ppid := make([]byte, 16)
	for i := range ppid {
		ppid[i] = byte(i)
	}
	return SGXExtension(
		OctetStringEntry(PPIDOID, ppid),
		TCBEntry(),
		OctetStringEntry(PCEIDOID, []byte{0x00, 0x00}),
		OctetStringEntry(FMSPCOID, fmspc),
		sgxTypeEntry(),
	)
}

// TCBEntry returns the TCB entry of a PCK certificate. Its value is itself a SEQUENCE of entries.
func TCBEntry() Entry {
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		for i := 1; i <= 16; i++ {
			svn := cryptobyte.NewBuilder(nil)
			svn.AddASN1Int64(int64(i % 4))
			addEntry(b, Entry{OID: append(append(asn1.ObjectIdentifier{}, TCBOID...), i), Value: svn.BytesOrPanic()})
		}
		pceSVN := cryptobyte.NewBuilder(nil)
		pceSVN.AddASN1Int64(13)
		addEntry(b, Entry{OID: append(append(asn1.ObjectIdentifier{}, TCBOID...), 17), Value: pceSVN.BytesOrPanic()})
		addEntry(b, OctetStringEntry(append(append(asn1.ObjectIdentifier{}, TCBOID...), 18), make([]byte, 16)))
	})
	return Entry{OID: TCBOID, Value: b.BytesOrPanic()}
}

func sgxTypeEntry() Entry {
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1Enum(0) // standard
	return Entry{OID: SGXTypeOID, Value: b.BytesOrPanic()}
}

func addEntry(b *cryptobyte.Builder, entry Entry) {
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1ObjectIdentifier(entry.OID)
		b.AddBytes(entry.Value)
	})
}

// PCKCertificate describes a generated PCK certificate chain.
type PCKCertificate struct {
	// IssuerCN is the common name of the issuing CA. If empty, the issuer has no common name.
	IssuerCN string
	// SGXExtension is the value of the SGX extension. If nil, the certificate has no SGX extension.
	SGXExtension []byte
	// ExtraExtensions are added to the PCK certificate after the SGX extension.
	// Duplicates are not rejected, so a certificate with two SGX extensions can be built.
	ExtraExtensions []pkix.Extension
}

// ChainPEM returns the PEM encoded chain of the PCK certificate followed by its issuing CA certificate.
func (p PCKCertificate) ChainPEM() ([]byte, error) {
	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating CA key: %w", err)
	}
	pckKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating PCK key: %w", err)
	}

	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"Intel Corporation"}, CommonName: p.IssuerCN},
		NotBefore:             PCSIssueDate,
		NotAfter:              PCSIssueDate.AddDate(7, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("creating CA certificate: %w", err)
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		return nil, fmt.Errorf("parsing CA certificate: %w", err)
	}

	pckTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{Organization: []string{"Intel Corporation"}, CommonName: "Intel SGX PCK Certificate"},
		NotBefore:    PCSIssueDate,
		NotAfter:     PCSIssueDate.AddDate(7, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
	}
	if p.SGXExtension != nil {
		pckTemplate.ExtraExtensions = []pkix.Extension{{Id: sgxExtensionOID, Value: p.SGXExtension}}
	}
	pckTemplate.ExtraExtensions = append(pckTemplate.ExtraExtensions, p.ExtraExtensions...)
	pckDER, err := x509.CreateCertificate(rand.Reader, pckTemplate, caCert, &pckKey.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("creating PCK certificate: %w", err)
	}

	chain := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: pckDER})
	chain = append(chain, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caDER})...)
	return chain, nil
}

// MustChainPEM is like ChainPEM, but panics on error.
func (p PCKCertificate) MustChainPEM() []byte {
	chain, err := p.ChainPEM()
	if err != nil {
		panic(err)
	}
	return chain
}

// Quote returns an SGX v3 quote carrying authData as QE authentication data and certChainPEM as
// PCK certificate chain. Like real quotes, the chain is terminated with a \0 byte.
// Everything in front of the QE authentication data is zeroed apart from the header's version fields.
func Quote(authData []byte, certChainPEM []byte) []byte {
	quote := make([]byte, qeAuthDataSizeOffset, qeAuthDataSizeOffset+2+len(authData)+6+len(certChainPEM)+1)
	binary.LittleEndian.PutUint16(quote[0:2], 3) // version
	binary.LittleEndian.PutUint16(quote[2:4], 2) // attestation key type: ECDSA-256-with-P-256

	quote = binary.LittleEndian.AppendUint16(quote, uint16(len(authData)))
	quote = append(quote, authData...)
	quote = binary.LittleEndian.AppendUint16(quote, pckCertChainType)
	quote = binary.LittleEndian.AppendUint32(quote, uint32(len(certChainPEM)+1))
	quote = append(quote, certChainPEM...)
	return append(quote, 0x00)
}

// PCKQuote returns a quote with 32 bytes of QE authentication data and a PCK certificate chain
// issued by issuerCN, whose SGX extension holds fmspc.
func PCKQuote(issuerCN string, fmspc []byte) ([]byte, error) {
	chain, err := PCKCertificate{IssuerCN: issuerCN, SGXExtension: PCKSGXExtension(fmspc)}.ChainPEM()
	if err != nil {
		return nil, err
	}
	authData := make([]byte, 32)
	for i := range authData {
		authData[i] = byte(i)
	}
	return Quote(authData, chain), nil
}
