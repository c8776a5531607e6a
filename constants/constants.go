// Package constants holds the environment variable names and defaults of the pckid service and prover.
package constants

import "time"

const DefaultServicePort = 8080
const ServicePortEnv = "PCKID_SERVICE_PORT"

const DefaultBatchConcurrency = 8
const BatchConcurrencyEnv = "PCKID_BATCH_CONCURRENCY"

// MaxQuoteSize is the upper bound for a quote accepted by the service.
const MaxQuoteSize = 1 << 20

// Bonsai configuration
const BonsaiAPIURLEnv = "BONSAI_API_URL"
const BonsaiAPIKeyEnv = "BONSAI_API_KEY"

const DefaultRiscZeroVersion = "1.0.1"
const RiscZeroVersionEnv = "RISC_ZERO_VERSION"

// DefaultImageIDEnv names the image ID used when a proof is requested without an ELF.
const DefaultImageIDEnv = "PCKID_DEFAULT_IMAGE_ID"

const DefaultPollIntervalInSeconds = 15
const PollIntervalInSecondsEnv = "PCKID_POLL_INTERVAL_SECONDS"

const DefaultRequestTimeout = 2 * time.Minute
const RequestTimeoutInSecondsEnv = "PCKID_REQUEST_TIMEOUT_SECONDS"

// VerifierSelectorEnv holds the 4 byte selector, hex encoded, of the Groth16 verifier the seal is encoded for.
const VerifierSelectorEnv = "PCKID_VERIFIER_SELECTOR"
