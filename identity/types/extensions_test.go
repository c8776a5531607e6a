package types

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"testing"

	"github.com/edgelesssys/go-pckid/blobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFMSPC(t *testing.T) {
	fmspc := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	integerValue := blobs.Entry{OID: FMSPCOID, Value: []byte{0x02, 0x01, 0x05}}

	testCases := map[string]struct {
		cert      *x509.Certificate
		wantFMSPC FMSPC
		wantErr   error
	}{
		"generated PCK certificate": {
			cert:      generatePCKCert(t, blobs.PCKCertificate{IssuerCN: PlatformIssuer, SGXExtension: blobs.PCKSGXExtension(fmspc)}),
			wantFMSPC: FMSPC{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
		},
		"FMSPC is the only entry": {
			cert:      certWithSGXExtensions(blobs.SGXExtension(blobs.OctetStringEntry(FMSPCOID, fmspc))),
			wantFMSPC: FMSPC{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
		},
		"first FMSPC entry wins": {
			cert: certWithSGXExtensions(blobs.SGXExtension(
				blobs.OctetStringEntry(blobs.PPIDOID, make([]byte, 16)),
				blobs.OctetStringEntry(FMSPCOID, []byte{0, 0, 0, 0, 0, 1}),
				blobs.OctetStringEntry(FMSPCOID, fmspc),
			)),
			wantFMSPC: FMSPC{0, 0, 0, 0, 0, 1},
		},
		"FMSPC after malformed-length entry is not reached": {
			cert: certWithSGXExtensions(blobs.SGXExtension(
				blobs.OctetStringEntry(FMSPCOID, fmspc[:5]),
				blobs.OctetStringEntry(FMSPCOID, fmspc),
			)),
			wantErr: ErrInvalidFMSPCLength,
		},
		"FMSPC truncated to 5 bytes": {
			cert:    generatePCKCert(t, blobs.PCKCertificate{IssuerCN: PlatformIssuer, SGXExtension: blobs.PCKSGXExtension(fmspc[:5])}),
			wantErr: ErrInvalidFMSPCLength,
		},
		"FMSPC too long": {
			cert:    certWithSGXExtensions(blobs.PCKSGXExtension(append(fmspc, 0x00))),
			wantErr: ErrInvalidFMSPCLength,
		},
		"empty FMSPC": {
			cert:    certWithSGXExtensions(blobs.PCKSGXExtension([]byte{})),
			wantErr: ErrInvalidFMSPCLength,
		},
		"no SGX extension": {
			cert:    generatePCKCert(t, blobs.PCKCertificate{IssuerCN: PlatformIssuer}),
			wantErr: ErrExtensionNotFound,
		},
		"duplicate SGX extension": {
			cert:    certWithSGXExtensions(blobs.PCKSGXExtension(fmspc), blobs.PCKSGXExtension(fmspc)),
			wantErr: ErrDuplicateExtension,
		},
		"no FMSPC entry": {
			cert: certWithSGXExtensions(blobs.SGXExtension(
				blobs.OctetStringEntry(blobs.PPIDOID, make([]byte, 16)),
				blobs.TCBEntry(),
				blobs.OctetStringEntry(blobs.PCEIDOID, []byte{0, 0}),
			)),
			wantErr: ErrFMSPCNotFound,
		},
		"empty SGX extension": {
			cert:    certWithSGXExtensions(blobs.SGXExtension()),
			wantErr: ErrFMSPCNotFound,
		},
		"FMSPC is not an OCTET STRING": {
			cert:    certWithSGXExtensions(blobs.SGXExtension(integerValue)),
			wantErr: ErrMalformedExtension,
		},
		"trailing bytes after FMSPC value": {
			cert: certWithSGXExtensions(blobs.SGXExtension(blobs.Entry{
				OID:   FMSPCOID,
				Value: []byte{0x04, 0x06, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x05, 0x00},
			})),
			wantErr: ErrMalformedExtension,
		},
		"extension is not a SEQUENCE": {
			cert:    certWithSGXExtensions([]byte{0x04, 0x02, 0x00, 0x01}),
			wantErr: ErrMalformedExtension,
		},
		"trailing bytes after extension": {
			cert:    certWithSGXExtensions(append(blobs.PCKSGXExtension(fmspc), 0x00)),
			wantErr: ErrMalformedExtension,
		},
		"truncated extension": {
			cert:    certWithSGXExtensions([]byte{0x30, 0x10, 0x30, 0x00}),
			wantErr: ErrMalformedExtension,
		},
		"entry is not a SEQUENCE": {
			cert:    certWithSGXExtensions([]byte{0x30, 0x03, 0x04, 0x01, 0x00}),
			wantErr: ErrMalformedExtension,
		},
		"entry does not start with an OID": {
			cert:    certWithSGXExtensions([]byte{0x30, 0x05, 0x30, 0x03, 0x04, 0x01, 0x00}),
			wantErr: ErrMalformedExtension,
		},
		"entry length exceeds extension": {
			cert:    certWithSGXExtensions([]byte{0x30, 0x04, 0x30, 0x08, 0x06, 0x00}),
			wantErr: ErrMalformedExtension,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			fmspc, err := ExtractFMSPC(tc.cert)
			if tc.wantErr != nil {
				assert.ErrorIs(err, tc.wantErr)
				assert.Equal(FMSPC{}, fmspc)
				return
			}
			assert.NoError(err)
			assert.Equal(tc.wantFMSPC, fmspc)
		})
	}
}

func TestFindSGXExtension(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	ext := blobs.PCKSGXExtension(make([]byte, FMSPCLength))
	cert := certWithSGXExtensions(ext)
	cert.Extensions = append([]pkix.Extension{{Id: asn1.ObjectIdentifier{2, 5, 29, 19}, Value: []byte{0x30, 0x00}}}, cert.Extensions...)

	value, err := FindSGXExtension(cert)
	require.NoError(err)
	assert.Equal(ext, value)

	_, err = FindSGXExtension(&x509.Certificate{})
	assert.ErrorIs(err, ErrExtensionNotFound)
}

func TestCountSGXExtensions(t *testing.T) {
	sgxExtension := blobs.PCKSGXExtension(make([]byte, 6))
	sgxExtra := pkix.Extension{Id: SGXExtensionOID, Value: sgxExtension}
	otherExtra := pkix.Extension{Id: asn1.ObjectIdentifier{1, 2, 3, 4}, Value: []byte{0x05, 0x00}}
	single := leafDER(t, blobs.PCKCertificate{IssuerCN: PlatformIssuer, SGXExtension: sgxExtension})

	testCases := map[string]struct {
		rawCert   []byte
		wantCount int
		wantErr   bool
	}{
		"no SGX extension": {
			rawCert: leafDER(t, blobs.PCKCertificate{IssuerCN: PlatformIssuer}),
		},
		"single SGX extension": {
			rawCert:   single,
			wantCount: 1,
		},
		"two SGX extensions": {
			rawCert: leafDER(t, blobs.PCKCertificate{
				IssuerCN:        PlatformIssuer,
				SGXExtension:    sgxExtension,
				ExtraExtensions: []pkix.Extension{sgxExtra},
			}),
			wantCount: 2,
		},
		"three SGX extensions between others": {
			rawCert: leafDER(t, blobs.PCKCertificate{
				IssuerCN:        PlatformIssuer,
				SGXExtension:    sgxExtension,
				ExtraExtensions: []pkix.Extension{otherExtra, sgxExtra, otherExtra, sgxExtra},
			}),
			wantCount: 3,
		},
		"empty": {
			rawCert: nil,
			wantErr: true,
		},
		"truncated": {
			rawCert: single[:len(single)/2],
			wantErr: true,
		},
		"not a certificate": {
			rawCert: []byte{0x30, 0x03, 0x02, 0x01, 0x01},
			wantErr: true,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			count, err := CountSGXExtensions(tc.rawCert)
			if tc.wantErr {
				assert.ErrorIs(err, ErrCertificateDecode)
				return
			}
			assert.NoError(err)
			assert.Equal(tc.wantCount, count)
		})
	}
}

func TestLookupSGXExtensionEntry(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	ext := blobs.PCKSGXExtension([]byte{1, 2, 3, 4, 5, 6})

	value, err := lookupSGXExtensionEntry(ext, blobs.PCEIDOID)
	require.NoError(err)
	assert.Equal([]byte{0x04, 0x02, 0x00, 0x00}, []byte(value))

	value, err = lookupSGXExtensionEntry(ext, blobs.SGXTypeOID)
	require.NoError(err)
	assert.Equal([]byte{0x0A, 0x01, 0x00}, []byte(value))

	// TCB components are nested in the TCB entry and must not be found at the top level.
	_, err = lookupSGXExtensionEntry(ext, append(append(asn1.ObjectIdentifier{}, blobs.TCBOID...), 1))
	assert.ErrorIs(err, errEntryNotFound)
}

func TestSGXExtensionWalker(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	ext := blobs.SGXExtension(
		blobs.OctetStringEntry(blobs.PPIDOID, make([]byte, 16)),
		blobs.OctetStringEntry(FMSPCOID, make([]byte, FMSPCLength)),
	)
	// strip the outer SEQUENCE header, the extension is short enough for a single length byte
	require.Less(len(ext), 0x80)

	w := &sgxExtensionWalker{entries: ext[2:], target: FMSPCOID}
	wantStates := []walkState{oidDecoded, atEntryStart, oidDecoded, entryMatched, entryMatched}
	for _, want := range wantStates {
		require.NoError(w.step())
		assert.Equal(want, w.state)
	}
	assert.Equal(1, w.index)
	assert.True(w.entries.Empty())

	w = &sgxExtensionWalker{target: FMSPCOID}
	assert.ErrorIs(w.step(), errEntryNotFound)
}

func FuzzExtractFMSPC(f *testing.F) {
	f.Add(blobs.PCKSGXExtension(make([]byte, FMSPCLength)))
	f.Add(blobs.SGXExtension())
	f.Fuzz(func(t *testing.T, a []byte) {
		assert := assert.New(t)
		assert.NotPanics(func() {
			fmspc, err := ExtractFMSPC(certWithSGXExtensions(a))
			if err != nil {
				assert.Equal(FMSPC{}, fmspc)
			}
		})
	})
}

// leafDER returns the DER encoded PCK certificate of a generated chain.
func leafDER(t *testing.T, pckCert blobs.PCKCertificate) []byte {
	t.Helper()
	block, _ := pem.Decode(pckCert.MustChainPEM())
	require.NotNil(t, block)
	return block.Bytes
}

func certWithSGXExtensions(values ...[]byte) *x509.Certificate {
	cert := &x509.Certificate{}
	for _, value := range values {
		cert.Extensions = append(cert.Extensions, pkix.Extension{Id: SGXExtensionOID, Value: value})
	}
	return cert
}
