package signals

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"
)

// Pusher 把信号以 JSON POST 推到宿主回调地址。
// 每个请求带 HMAC-SHA256 签名头，宿主可据此校验来源与完整性。
// 5xx 和网络错误按退避序列重试，4xx 视为终态不重试。
type Pusher struct {
	Client  *http.Client
	APIKey  string
	Secret  string
	Retries int
	Backoff []time.Duration
}

func NewPusher(client *http.Client, apiKey, secret string) *Pusher {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Pusher{
		Client:  client,
		APIKey:  apiKey,
		Secret:  secret,
		Retries: 5,
		Backoff: []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 500 * time.Millisecond, time.Second, 2 * time.Second},
	}
}

// SendJSON 序列化 payload 并推送到 endpoint，返回最终的状态码和响应体
func (p *Pusher) SendJSON(ctx context.Context, endpoint string, payload any) (int, []byte, error) {
	if p == nil || p.Client == nil {
		return 0, nil, errors.New("nil pusher")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return 0, nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	var (
		code     int
		respBody []byte
		lastErr  error
	)
	for attempt := 0; attempt <= p.Retries; attempt++ {
		code, respBody, lastErr = p.doOnce(ctx, endpoint, u.Path, body)
		if lastErr == nil {
			if code >= 200 && code < 300 {
				return code, respBody, nil
			}
			// 4xx 是宿主明确拒绝，重试没有意义
			if code < 500 {
				return code, respBody, nil
			}
		}
		if attempt == p.Retries {
			break
		}
		backoff := p.Backoff[len(p.Backoff)-1]
		if attempt < len(p.Backoff) {
			backoff = p.Backoff[attempt]
		}
		select {
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if lastErr != nil {
		return 0, nil, lastErr
	}
	return code, respBody, fmt.Errorf("http %d", code)
}

// doOnce 单次请求。每次调用重建 request，body reader 不能跨重试复用。
func (p *Pusher) doOnce(ctx context.Context, endpoint, path string, body []byte) (int, []byte, error) {
	ts := time.Now().Unix()
	nonce := fmt.Sprintf("%08x", rand.Uint32())
	canonical := buildCanonical(http.MethodPost, path, ts, nonce, hashHex(body))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", p.APIKey)
	req.Header.Set("X-Signature", SignHMAC(p.Secret, canonical))
	req.Header.Set("X-Timestamp", fmt.Sprintf("%d", ts))
	req.Header.Set("X-Nonce", nonce)

	resp, err := p.Client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	respBody, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, respBody, nil
}
