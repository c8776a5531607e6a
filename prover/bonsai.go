package prover

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
)

const (
	// apiKeyHeader carries the Bonsai API key.
	apiKeyHeader = "x-api-key"
	// versionHeader carries the RISC Zero version the proof is requested for.
	versionHeader = "x-risc0-version"

	imageUploadPath   = "images/upload"
	inputUploadPath   = "inputs/upload"
	sessionCreatePath = "sessions/create"
	sessionStatusPath = "sessions/status"
	snarkCreatePath   = "snark/create"
	snarkStatusPath   = "snark/status"

	// maxErrorBodySize limits how much of an error response is included in errors.
	maxErrorBodySize = 1024
)

// ErrUnexpectedStatus is returned if the Bonsai API answers with an unexpected HTTP status code.
var ErrUnexpectedStatus = errors.New("unexpected HTTP status")

type bonsaiAPI interface {
	// uploadImage uploads elf under imageID, unless an image with that ID already exists.
	uploadImage(ctx context.Context, imageID string, elf []byte) error
	uploadInput(ctx context.Context, input []byte) (inputID string, err error)
	createSession(ctx context.Context, imageID, inputID string) (sessionID string, err error)
	sessionStatus(ctx context.Context, sessionID string) (sessionStatus, error)
	createSnark(ctx context.Context, sessionID string) (snarkID string, err error)
	snarkStatus(ctx context.Context, snarkID string) (snarkStatus, error)
}

// sessionStatus is the state of a STARK proving session.
type sessionStatus struct {
	Status      string   `json:"status"`
	ReceiptURL  *string  `json:"receipt_url"`
	ErrorMsg    *string  `json:"error_msg"`
	State       *string  `json:"state"`
	ElapsedTime *float64 `json:"elapsed_time"`
}

// snarkStatus is the state of a STARK to SNARK session.
type snarkStatus struct {
	Status   string        `json:"status"`
	Output   *snarkReceipt `json:"output"`
	ErrorMsg *string       `json:"error_msg"`
}

type snarkReceipt struct {
	Snark           groth16Seal `json:"snark"`
	PostStateDigest byteList    `json:"post_state_digest"`
	Journal         byteList    `json:"journal"`
}

// groth16Seal holds the big-endian encoded coordinates of a Groth16 proof.
type groth16Seal struct {
	A []byteList   `json:"a"`
	B [][]byteList `json:"b"`
	C []byteList   `json:"c"`
}

// byteList is a byte slice that is encoded as a JSON array of numbers instead of base64.
type byteList []byte

func (b byteList) MarshalJSON() ([]byte, error) {
	numbers := make([]uint16, len(b))
	for i, v := range b {
		numbers[i] = uint16(v)
	}
	return json.Marshal(numbers)
}

func (b *byteList) UnmarshalJSON(data []byte) error {
	var numbers []uint16
	if err := json.Unmarshal(data, &numbers); err != nil {
		return err
	}
	out := make([]byte, len(numbers))
	for i, v := range numbers {
		if v > 0xFF {
			return fmt.Errorf("byte %d out of range: %d", i, v)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

type uploadResponse struct {
	URL  string `json:"url"`
	UUID string `json:"uuid"`
}

type createResponse struct {
	UUID string `json:"uuid"`
}

type proofRequest struct {
	Image       string   `json:"img"`
	Input       string   `json:"input"`
	Assumptions []string `json:"assumptions"`
	ExecuteOnly bool     `json:"execute_only"`
}

type snarkRequest struct {
	SessionID string `json:"session_id"`
}

// bonsaiClient talks to the Bonsai REST API.
type bonsaiClient struct {
	baseURL *url.URL
	apiKey  string
	version string
	client  *http.Client
}

func newBonsaiClient(baseURL, apiKey, version string, client *http.Client) (*bonsaiClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing Bonsai API URL: %w", err)
	}
	return &bonsaiClient{
		baseURL: u,
		apiKey:  apiKey,
		version: version,
		client:  client,
	}, nil
}

func (c *bonsaiClient) uploadImage(ctx context.Context, imageID string, elf []byte) error {
	var res uploadResponse
	status, err := c.do(ctx, http.MethodGet, c.endpoint(imageUploadPath, imageID), nil, &res)
	if err != nil {
		return fmt.Errorf("requesting image upload: %w", err)
	}
	if status == http.StatusNoContent {
		// image already exists
		return nil
	}
	if err := c.put(ctx, res.URL, elf); err != nil {
		return fmt.Errorf("uploading image: %w", err)
	}
	return nil
}

func (c *bonsaiClient) uploadInput(ctx context.Context, input []byte) (string, error) {
	var res uploadResponse
	if _, err := c.do(ctx, http.MethodGet, c.endpoint(inputUploadPath), nil, &res); err != nil {
		return "", fmt.Errorf("requesting input upload: %w", err)
	}
	if err := c.put(ctx, res.URL, input); err != nil {
		return "", fmt.Errorf("uploading input: %w", err)
	}
	return res.UUID, nil
}

func (c *bonsaiClient) createSession(ctx context.Context, imageID, inputID string) (string, error) {
	req := proofRequest{
		Image:       imageID,
		Input:       inputID,
		Assumptions: []string{},
	}
	var res createResponse
	if _, err := c.do(ctx, http.MethodPost, c.endpoint(sessionCreatePath), req, &res); err != nil {
		return "", err
	}
	return res.UUID, nil
}

func (c *bonsaiClient) sessionStatus(ctx context.Context, sessionID string) (sessionStatus, error) {
	var res sessionStatus
	if _, err := c.do(ctx, http.MethodGet, c.endpoint(sessionStatusPath, sessionID), nil, &res); err != nil {
		return sessionStatus{}, err
	}
	return res, nil
}

func (c *bonsaiClient) createSnark(ctx context.Context, sessionID string) (string, error) {
	var res createResponse
	if _, err := c.do(ctx, http.MethodPost, c.endpoint(snarkCreatePath), snarkRequest{SessionID: sessionID}, &res); err != nil {
		return "", err
	}
	return res.UUID, nil
}

func (c *bonsaiClient) snarkStatus(ctx context.Context, snarkID string) (snarkStatus, error) {
	var res snarkStatus
	if _, err := c.do(ctx, http.MethodGet, c.endpoint(snarkStatusPath, snarkID), nil, &res); err != nil {
		return snarkStatus{}, err
	}
	return res, nil
}

// endpoint returns the URL of an API path below the base URL.
func (c *bonsaiClient) endpoint(elem ...string) string {
	u := *c.baseURL
	u.Path = path.Join(append([]string{"/", u.Path}, elem...)...)
	return u.String()
}

// do sends a JSON request to the Bonsai API and decodes a JSON response into out.
// A 204 response leaves out untouched. It returns the HTTP status code of the response.
func (c *bonsaiClient) do(ctx context.Context, method, uri string, body, out any) (int, error) {
	reqBody := io.Reader(http.NoBody)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, uri, reqBody)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// continue
	case http.StatusNoContent:
		return resp.StatusCode, nil
	default:
		return resp.StatusCode, statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
	}
	return resp.StatusCode, nil
}

// put uploads data to a presigned URL returned by the Bonsai API.
func (c *bonsaiClient) put(ctx context.Context, uri string, data []byte) error {
	if uri == "" {
		return errors.New("no upload URL in response")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uri, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *bonsaiClient) setHeaders(req *http.Request) {
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set(versionHeader, c.version)
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	return fmt.Errorf("%w %s: %s", ErrUnexpectedStatus, resp.Status, strings.TrimSpace(string(msg)))
}
