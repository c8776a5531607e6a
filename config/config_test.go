package config

import (
	"testing"
	"time"

	"github.com/edgelesssys/go-pckid/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServiceConfig(t *testing.T) {
	testCases := map[string]struct {
		env             map[string]string
		wantPort        int
		wantConcurrency int
		wantErr         bool
	}{
		"defaults": {
			wantPort:        constants.DefaultServicePort,
			wantConcurrency: constants.DefaultBatchConcurrency,
		},
		"custom values": {
			env: map[string]string{
				constants.ServicePortEnv:      "9090",
				constants.BatchConcurrencyEnv: "2",
			},
			wantPort:        9090,
			wantConcurrency: 2,
		},
		"invalid port": {
			env:     map[string]string{constants.ServicePortEnv: "http"},
			wantErr: true,
		},
		"port out of range": {
			env:     map[string]string{constants.ServicePortEnv: "70000"},
			wantErr: true,
		},
		"zero concurrency": {
			env:     map[string]string{constants.BatchConcurrencyEnv: "0"},
			wantErr: true,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			setEnv(t, tc.env)

			cfg, err := LoadServiceConfig()
			if tc.wantErr {
				assert.Error(err)
				return
			}
			assert.NoError(err)
			assert.Equal(tc.wantPort, cfg.ServicePort)
			assert.Equal(tc.wantConcurrency, cfg.BatchConcurrency)
		})
	}
}

func TestLoadProverConfig(t *testing.T) {
	validEnv := func(overrides map[string]string) map[string]string {
		env := map[string]string{
			constants.BonsaiAPIURLEnv:     "https://api.bonsai.xyz/",
			constants.BonsaiAPIKeyEnv:     "secret",
			constants.VerifierSelectorEnv: "310fe598",
		}
		for k, v := range overrides {
			env[k] = v
		}
		return env
	}

	testCases := map[string]struct {
		env     map[string]string
		wantErr bool
		check   func(*assert.Assertions, *ProverConfig)
	}{
		"defaults": {
			env: validEnv(nil),
			check: func(assert *assert.Assertions, cfg *ProverConfig) {
				assert.Equal("https://api.bonsai.xyz", cfg.APIURL)
				assert.Equal("secret", cfg.APIKey)
				assert.Equal(constants.DefaultRiscZeroVersion, cfg.RiscZeroVersion)
				assert.Empty(cfg.DefaultImageID)
				assert.Equal([4]byte{0x31, 0x0f, 0xe5, 0x98}, cfg.VerifierSelector)
				assert.Equal(15*time.Second, cfg.PollInterval)
				assert.Equal(constants.DefaultRequestTimeout, cfg.RequestTimeout)
			},
		},
		"custom values": {
			env: validEnv(map[string]string{
				constants.BonsaiAPIURLEnv:            "http://localhost:8081",
				constants.RiscZeroVersionEnv:         "1.1.0",
				constants.DefaultImageIDEnv:          "  abcdef  ",
				constants.VerifierSelectorEnv:        "0xdeadbeef",
				constants.PollIntervalInSecondsEnv:   "1",
				constants.RequestTimeoutInSecondsEnv: "30",
			}),
			check: func(assert *assert.Assertions, cfg *ProverConfig) {
				assert.Equal("http://localhost:8081", cfg.APIURL)
				assert.Equal("1.1.0", cfg.RiscZeroVersion)
				assert.Equal("abcdef", cfg.DefaultImageID)
				assert.Equal([4]byte{0xde, 0xad, 0xbe, 0xef}, cfg.VerifierSelector)
				assert.Equal(time.Second, cfg.PollInterval)
				assert.Equal(30*time.Second, cfg.RequestTimeout)
			},
		},
		"missing API URL": {
			env:     validEnv(map[string]string{constants.BonsaiAPIURLEnv: ""}),
			wantErr: true,
		},
		"API URL without HTTP(S)": {
			env:     validEnv(map[string]string{constants.BonsaiAPIURLEnv: "ftp://api.bonsai.xyz"}),
			wantErr: true,
		},
		"missing API key": {
			env:     validEnv(map[string]string{constants.BonsaiAPIKeyEnv: ""}),
			wantErr: true,
		},
		"missing verifier selector": {
			env:     validEnv(map[string]string{constants.VerifierSelectorEnv: ""}),
			wantErr: true,
		},
		"short verifier selector": {
			env:     validEnv(map[string]string{constants.VerifierSelectorEnv: "310fe5"}),
			wantErr: true,
		},
		"verifier selector not hex": {
			env:     validEnv(map[string]string{constants.VerifierSelectorEnv: "310fe5zz"}),
			wantErr: true,
		},
		"invalid poll interval": {
			env:     validEnv(map[string]string{constants.PollIntervalInSecondsEnv: "0"}),
			wantErr: true,
		},
		"invalid request timeout": {
			env:     validEnv(map[string]string{constants.RequestTimeoutInSecondsEnv: "soon"}),
			wantErr: true,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			setEnv(t, tc.env)

			cfg, err := LoadProverConfig()
			if tc.wantErr {
				assert.Error(err)
				return
			}
			require.NoError(t, err)
			tc.check(assert, cfg)
		})
	}
}

// setEnv sets every variable the config reads, so the host environment does not leak into the test.
func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for _, name := range []string{
		constants.ServicePortEnv,
		constants.BatchConcurrencyEnv,
		constants.BonsaiAPIURLEnv,
		constants.BonsaiAPIKeyEnv,
		constants.RiscZeroVersionEnv,
		constants.DefaultImageIDEnv,
		constants.PollIntervalInSecondsEnv,
		constants.RequestTimeoutInSecondsEnv,
		constants.VerifierSelectorEnv,
	} {
		t.Setenv(name, env[name])
	}
}
