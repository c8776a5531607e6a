package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/edgelesssys/go-pckid/constants"
)

// ServiceConfig holds all configuration for the identity service
type ServiceConfig struct {
	ServicePort int

	// BatchConcurrency is the maximum number of quotes of a batch processed at once
	BatchConcurrency int
}

// LoadServiceConfig loads the service configuration from environment variables
func LoadServiceConfig() (*ServiceConfig, error) {
	servicePort, err := intFromEnv(constants.ServicePortEnv, constants.DefaultServicePort)
	if err != nil {
		return nil, fmt.Errorf("invalid service port: %w", err)
	}
	if servicePort < 1 || servicePort > 65535 {
		return nil, fmt.Errorf("service port out of range: %d", servicePort)
	}

	concurrency, err := intFromEnv(constants.BatchConcurrencyEnv, constants.DefaultBatchConcurrency)
	if err != nil {
		return nil, fmt.Errorf("invalid batch concurrency: %w", err)
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("batch concurrency must be at least 1, got %d", concurrency)
	}

	return &ServiceConfig{
		ServicePort:      servicePort,
		BatchConcurrency: concurrency,
	}, nil
}

// ProverConfig holds all configuration for the Bonsai prover
type ProverConfig struct {
	// Bonsai API
	APIURL          string // From BONSAI_API_URL, without trailing slash
	APIKey          string // From BONSAI_API_KEY
	RiscZeroVersion string

	// DefaultImageID is used if no ELF is given. May be empty, in which case an ELF is required.
	DefaultImageID string

	// VerifierSelector is prepended to the ABI encoded Groth16 seal
	VerifierSelector [4]byte

	// HTTP client settings
	RequestTimeout time.Duration

	// PollInterval is the time between two status requests of a running session
	PollInterval time.Duration
}

// LoadProverConfig loads the prover configuration from environment variables
func LoadProverConfig() (*ProverConfig, error) {
	config := &ProverConfig{
		RiscZeroVersion: constants.DefaultRiscZeroVersion,
		RequestTimeout:  constants.DefaultRequestTimeout,
	}

	rawURL := strings.TrimSpace(os.Getenv(constants.BonsaiAPIURLEnv))
	if rawURL == "" {
		return nil, fmt.Errorf("%s must be set", constants.BonsaiAPIURLEnv)
	}
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Bonsai API URL '%s': %w", rawURL, err)
	}
	if parsedURL.Scheme != "https" && parsedURL.Scheme != "http" {
		return nil, fmt.Errorf("Bonsai API URL must use HTTP(S): '%s'", rawURL)
	}
	config.APIURL = strings.TrimSuffix(rawURL, "/")

	config.APIKey = os.Getenv(constants.BonsaiAPIKeyEnv)
	if config.APIKey == "" {
		return nil, fmt.Errorf("%s must be set", constants.BonsaiAPIKeyEnv)
	}

	if version := os.Getenv(constants.RiscZeroVersionEnv); version != "" {
		config.RiscZeroVersion = version
	}

	config.DefaultImageID = strings.TrimSpace(os.Getenv(constants.DefaultImageIDEnv))

	selector, err := parseVerifierSelector(os.Getenv(constants.VerifierSelectorEnv))
	if err != nil {
		return nil, fmt.Errorf("invalid verifier selector: %w", err)
	}
	config.VerifierSelector = selector

	// Load poll interval
	pollSeconds, err := intFromEnv(constants.PollIntervalInSecondsEnv, constants.DefaultPollIntervalInSeconds)
	if err != nil {
		return nil, fmt.Errorf("invalid poll interval: %w", err)
	}
	if pollSeconds < 1 {
		return nil, fmt.Errorf("poll interval must be at least 1 second, got %d", pollSeconds)
	}
	config.PollInterval = time.Duration(pollSeconds) * time.Second

	// Load request timeout
	if timeoutEnv := os.Getenv(constants.RequestTimeoutInSecondsEnv); timeoutEnv != "" {
		parsed, err := strconv.Atoi(timeoutEnv)
		if err != nil {
			return nil, fmt.Errorf("invalid request timeout: %w", err)
		}
		if parsed < 1 {
			return nil, fmt.Errorf("request timeout must be at least 1 second, got %d", parsed)
		}
		config.RequestTimeout = time.Duration(parsed) * time.Second
	}

	return config, nil
}

func parseVerifierSelector(raw string) ([4]byte, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if raw == "" {
		return [4]byte{}, errors.New(constants.VerifierSelectorEnv + " must be set")
	}
	selector, err := hex.DecodeString(raw)
	if err != nil {
		return [4]byte{}, err
	}
	if len(selector) != 4 {
		return [4]byte{}, fmt.Errorf("expected 4 bytes, got %d", len(selector))
	}
	return [4]byte(selector), nil
}

func intFromEnv(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
