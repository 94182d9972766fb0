package loadgen

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Config drives synthetic device traffic against a running gateway.
// Every device walks the full flow: obtain a challenge, sign it, create
// a session, flip the online flag, and read the session back.
type Config struct {
	BaseURL           string
	Devices           int
	SessionsPerDevice int
	Concurrency       int
	Timeout           time.Duration
}

type Result struct {
	TotalRequests int64
	Failures      int64
}

func Run(ctx context.Context, cfg Config) (Result, error) {
	if cfg.BaseURL == "" {
		return Result{}, fmt.Errorf("base url is required")
	}
	if cfg.Devices <= 0 {
		cfg.Devices = 1
	}
	if cfg.SessionsPerDevice <= 0 {
		cfg.SessionsPerDevice = 1
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: cfg.Timeout}
	var result Result

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for i := 0; i < cfg.Devices; i++ {
		g.Go(func() error {
			device, err := newSyntheticDevice()
			if err != nil {
				return err
			}
			for j := 0; j < cfg.SessionsPerDevice; j++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				device.runFlow(ctx, client, cfg.BaseURL, &result)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

type syntheticDevice struct {
	deviceID string
	priv     ed25519.PrivateKey
	pubPEM   string
}

func newSyntheticDevice() (*syntheticDevice, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate device key: %w", err)
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal device key: %w", err)
	}
	suffix := make([]byte, 32)
	if _, err := rand.Read(suffix); err != nil {
		return nil, fmt.Errorf("generate device id: %w", err)
	}
	return &syntheticDevice{
		deviceID: "mobile:" + hex.EncodeToString(suffix),
		priv:     priv,
		pubPEM:   string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})),
	}, nil
}

func (d *syntheticDevice) runFlow(ctx context.Context, client *http.Client, baseURL string, result *Result) {
	var challenge struct {
		ToSign string `json:"to_sign"`
	}
	if !d.call(ctx, client, result, http.MethodPost, baseURL+"/api/v1/device/challenge",
		map[string]any{"device_id": d.deviceID}, &challenge) {
		return
	}

	signature := base64.StdEncoding.EncodeToString(ed25519.Sign(d.priv, []byte(challenge.ToSign)))
	var session struct {
		SessionID string `json:"session_id"`
	}
	if !d.call(ctx, client, result, http.MethodPost, baseURL+"/api/v1/device/sessions", map[string]any{
		"device_id":    d.deviceID,
		"public_key":   d.pubPEM,
		"signature":    signature,
		"device_type":  0,
		"app_version":  "loadgen",
		"device_os":    "loadgen",
		"notify_token": "loadgen",
	}, &session) {
		return
	}

	if !d.call(ctx, client, result, http.MethodPut,
		fmt.Sprintf("%s/api/v1/device/sessions/%s/online", baseURL, session.SessionID),
		map[string]any{"is_online": true}, nil) {
		return
	}
	d.call(ctx, client, result, http.MethodGet,
		fmt.Sprintf("%s/api/v1/device/sessions/%s", baseURL, session.SessionID), nil, nil)
}

func (d *syntheticDevice) call(ctx context.Context, client *http.Client, result *Result, method, url string, body map[string]any, out any) bool {
	atomic.AddInt64(&result.TotalRequests, 1)

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			atomic.AddInt64(&result.Failures, 1)
			return false
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		atomic.AddInt64(&result.Failures, 1)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		atomic.AddInt64(&result.Failures, 1)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		atomic.AddInt64(&result.Failures, 1)
		return false
	}
	if out == nil {
		return true
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		atomic.AddInt64(&result.Failures, 1)
		return false
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		atomic.AddInt64(&result.Failures, 1)
		return false
	}
	return true
}
