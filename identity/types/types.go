/*
# PCK Identity Data Types

This package contains the data types and parsing functions used to recover the platform identity
(FMSPC and PCK CA type) of an Intel SGX DCAP quote.

## SGX Quote Certification Data

	Only the part of the quote leading up to the PCK certificate chain is interpreted.
	Everything before the QE authentication data is skipped by its fixed size:


	      Raw quote (v3)                                  LocateCertData
	┌─────────────────────────┐  0
	│       Quote header      │
	│        (48 bytes)       │
	├─────────────────────────┤  48
	│    ISV enclave report   │
	│       (384 bytes)       │
	├─────────────────────────┤  432
	│  Signature data length  │
	│        (4 bytes)        │
	├─────────────────────────┤  436
	│ ECDSA256 sig + att. key │
	│       (128 bytes)       │
	├─────────────────────────┤  564
	│  QE report + signature  │
	│       (448 bytes)       │
	├─────────────────────────┤  1012  QEAuthDataSizeOffset
	│    QEAuthData size N    │ ─────────────────┐
	│        (2 bytes)        │                  │
	├─────────────────────────┤  1014            │
	│       QEAuthData        │                  │  offset = 1012 + 2 + N + 2 + 4
	│       (N bytes)         │                  │
	├─────────────────────────┤                  │
	│  CertificationData type │                  │
	│        (2 bytes)        │                  │
	├─────────────────────────┤                  │
	│  CertificationData size │                  │
	│        (4 bytes)        │                  │
	├─────────────────────────┤  ◄───────────────┘
	│    PCK cert chain (PEM) │
	│  leaf, intermediate, CA │
	│   terminated with \0    │
	└─────────────────────────┘
*/
package types
