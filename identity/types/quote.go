package types

import (
	"encoding/binary"
	"fmt"
)

/*
   SGX Quote (v3) certification data locator
   Based on:
   https://github.com/intel/SGXDataCenterAttestationPrimitives/blob/c057b236790834cf7e547ebf90da91c53c7ed7f9/QuoteGeneration/quote_wrapper/common/inc/sgx_quote_3.h
*/

const (
	// QEAuthDataSizeOffset is the offset of the QE authentication data size field within an SGX quote.
	QEAuthDataSizeOffset = 1012

	// qeAuthDataSizeLength is the width of the QE authentication data size field.
	qeAuthDataSizeLength = 2
	// certDataTypeLength is the width of the CertificationData type field following the QE authentication data.
	certDataTypeLength = 2
	// certDataSizeLength is the width of the CertificationData size field following the type.
	certDataSizeLength = 4
)

// LocateCertData returns the offset at which the PEM encoded PCK certificate chain starts in rawQuote.
func LocateCertData(rawQuote []byte) (int, error) {
	quoteLength := len(rawQuote)
	if quoteLength < QEAuthDataSizeOffset+qeAuthDataSizeLength {
		return 0, fmt.Errorf("%w: quote is too short to hold the QE authentication data size (requires at least: %d bytes, received: %d bytes)",
			ErrMalformedQuote, QEAuthDataSizeOffset+qeAuthDataSizeLength, quoteLength)
	}

	authDataSize := binary.LittleEndian.Uint16(rawQuote[QEAuthDataSizeOffset : QEAuthDataSizeOffset+qeAuthDataSizeLength])

	// Upgrade to uint64 so a 16 bit size close to its maximum cannot overflow on any platform.
	certDataOffset := uint64(QEAuthDataSizeOffset+qeAuthDataSizeLength) + uint64(authDataSize) + certDataTypeLength + certDataSizeLength
	if certDataOffset > uint64(quoteLength) {
		return 0, fmt.Errorf("%w: QEAuthData size is either incorrect or data is truncated (requires at least: %d bytes, received: %d bytes)",
			ErrMalformedQuote, certDataOffset, quoteLength)
	}

	return int(certDataOffset), nil
}

// CertificationData returns the PCK certificate chain region of rawQuote.
// The returned slice shares its backing array with rawQuote.
func CertificationData(rawQuote []byte) ([]byte, error) {
	offset, err := LocateCertData(rawQuote)
	if err != nil {
		return nil, err
	}
	return rawQuote[offset:], nil
}
