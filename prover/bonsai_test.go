package prover

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/edgelesssys/go-pckid/config"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProveAgainstBonsaiAPI(t *testing.T) {
	testCases := map[string]struct {
		imageExists bool
	}{
		"image is uploaded":      {},
		"image already uploaded": {imageExists: true},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			bonsai := newFakeBonsai(t, tc.imageExists)
			defer bonsai.Close()

			p, err := New(testr.New(t), &config.ProverConfig{
				APIURL:           bonsai.URL,
				APIKey:           "secret",
				RiscZeroVersion:  "1.0.1",
				VerifierSelector: [4]byte{0x31, 0x0f, 0xe5, 0x98},
				RequestTimeout:   10 * time.Second,
				PollInterval:     time.Millisecond,
			}, nil)
			require.NoError(err)

			elf := []byte("\x7fELF guest")
			receipt, err := p.Prove(context.Background(), elf, []byte("quote"))
			require.NoError(err)

			assert.Equal([]byte("journal"), []byte(receipt.Journal))
			assert.Len(receipt.Seal, 4+8*32)

			bonsai.mux.Lock()
			defer bonsai.mux.Unlock()
			if tc.imageExists {
				assert.Nil(bonsai.uploadedImage)
			} else {
				assert.Equal(elf, bonsai.uploadedImage)
			}
			assert.Equal([]byte("quote"), bonsai.uploadedInput)
			assert.Equal(proofRequest{
				Image:       contentImageID(elf),
				Input:       "input-uuid",
				Assumptions: []string{},
			}, bonsai.proofRequest)
			assert.Equal("session-uuid", bonsai.snarkRequest.SessionID)
			assert.Equal(2, bonsai.sessionPolls)
		})
	}
}

func TestBonsaiClientErrors(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid API key", http.StatusUnauthorized)
	}))
	defer server.Close()

	client, err := newBonsaiClient(server.URL, "wrong", "1.0.1", server.Client())
	require.NoError(err)

	_, err = client.uploadInput(context.Background(), []byte("quote"))
	assert.ErrorIs(err, ErrUnexpectedStatus)
	assert.ErrorContains(err, "invalid API key")

	_, err = client.sessionStatus(context.Background(), "session-uuid")
	assert.ErrorIs(err, ErrUnexpectedStatus)
}

func TestBonsaiClientEndpoint(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	client, err := newBonsaiClient("https://api.bonsai.xyz/v1", "", "", http.DefaultClient)
	require.NoError(err)
	assert.Equal("https://api.bonsai.xyz/v1/sessions/status/1234", client.endpoint(sessionStatusPath, "1234"))

	client, err = newBonsaiClient("http://localhost:8081", "", "", http.DefaultClient)
	require.NoError(err)
	assert.Equal("http://localhost:8081/inputs/upload", client.endpoint(inputUploadPath))
}

func TestByteListJSON(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var b byteList
	require.NoError(json.Unmarshal([]byte(`[0, 1, 255]`), &b))
	assert.Equal(byteList{0x00, 0x01, 0xFF}, b)

	out, err := json.Marshal(b)
	require.NoError(err)
	assert.JSONEq(`[0, 1, 255]`, string(out))

	assert.Error(json.Unmarshal([]byte(`[256]`), &b))
	assert.Error(json.Unmarshal([]byte(`"AAE="`), &b))
}

type fakeBonsai struct {
	*httptest.Server

	mux           sync.Mutex
	imageExists   bool
	uploadedImage []byte
	uploadedInput []byte
	proofRequest  proofRequest
	snarkRequest  snarkRequest
	sessionPolls  int
}

func newFakeBonsai(t *testing.T, imageExists bool) *fakeBonsai {
	f := &fakeBonsai{imageExists: imageExists}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /images/upload/{id}", func(w http.ResponseWriter, _ *http.Request) {
		if f.imageExists {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(t, w, uploadResponse{URL: f.URL + "/upload/image"})
	})
	mux.HandleFunc("PUT /upload/image", func(_ http.ResponseWriter, r *http.Request) {
		f.mux.Lock()
		defer f.mux.Unlock()
		f.uploadedImage = readBody(t, r)
	})
	mux.HandleFunc("GET /inputs/upload", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, uploadResponse{URL: f.URL + "/upload/input", UUID: "input-uuid"})
	})
	mux.HandleFunc("PUT /upload/input", func(_ http.ResponseWriter, r *http.Request) {
		f.mux.Lock()
		defer f.mux.Unlock()
		f.uploadedInput = readBody(t, r)
	})
	mux.HandleFunc("POST /sessions/create", func(w http.ResponseWriter, r *http.Request) {
		f.mux.Lock()
		defer f.mux.Unlock()
		assert.NoError(t, json.Unmarshal(readBody(t, r), &f.proofRequest))
		writeJSON(t, w, createResponse{UUID: "session-uuid"})
	})
	mux.HandleFunc("GET /sessions/status/session-uuid", func(w http.ResponseWriter, _ *http.Request) {
		f.mux.Lock()
		defer f.mux.Unlock()
		f.sessionPolls++
		if f.sessionPolls == 1 {
			writeJSON(t, w, sessionStatus{Status: statusRunning})
			return
		}
		receiptURL := f.URL + "/receipts/session-uuid"
		writeJSON(t, w, sessionStatus{Status: statusSucceeded, ReceiptURL: &receiptURL})
	})
	mux.HandleFunc("POST /snark/create", func(w http.ResponseWriter, r *http.Request) {
		f.mux.Lock()
		defer f.mux.Unlock()
		assert.NoError(t, json.Unmarshal(readBody(t, r), &f.snarkRequest))
		writeJSON(t, w, createResponse{UUID: "snark-uuid"})
	})
	mux.HandleFunc("GET /snark/status/snark-uuid", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, snarkStatus{Status: statusSucceeded, Output: testSnarkReceipt()})
	})

	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(apiKeyHeader) != "secret" || r.Header.Get(versionHeader) != "1.0.1" {
			http.Error(w, "missing headers", http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	return f
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	assert.NoError(t, json.NewEncoder(w).Encode(v))
}

func readBody(t *testing.T, r *http.Request) []byte {
	body, err := io.ReadAll(r.Body)
	assert.NoError(t, err)
	return body
}
