package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Baidu API endpoints. Overridable for tests.
const (
	defaultTokenURL = "https://aip.baidubce.com/oauth/2.0/token"
	defaultASRURL   = "https://vop.baidu.com/server_api"
	defaultTTSURL   = "https://tsn.baidu.com/text2audio"
)

// tokenSlack refreshes the access token this long before Baidu expires it.
const tokenSlack = 5 * time.Minute

// BaiduConfig holds Baidu speech platform credentials and voice settings.
type BaiduConfig struct {
	AppID     string
	APIKey    string
	SecretKey string

	// Voice selects the TTS speaker (Baidu "per" parameter). 0 is the
	// standard female voice.
	Voice int
	// Speed and Pitch range 0-15, 5 is neutral.
	Speed int
	Pitch int

	// Endpoint overrides, empty means the public API.
	TokenURL string
	ASRURL   string
	TTSURL   string
}

// BaiduClient implements Transcriber and Synthesizer against the Baidu
// short-speech REST APIs. Safe for concurrent use.
type BaiduClient struct {
	cfg    BaiduConfig
	client *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewBaiduClient creates a client. Credentials are validated lazily on the
// first call, when the OAuth token is fetched.
func NewBaiduClient(cfg BaiduConfig) (*BaiduClient, error) {
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("baidu api key and secret key are required")
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.ASRURL == "" {
		cfg.ASRURL = defaultASRURL
	}
	if cfg.TTSURL == "" {
		cfg.TTSURL = defaultTTSURL
	}

	return &BaiduClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// accessToken returns a cached OAuth token, refreshing it when it is close
// to expiry.
func (c *BaiduClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.cfg.APIKey)
	form.Set("client_secret", c.cfg.SecretKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch access token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
		Error       string `json:"error"`
		ErrorDesc   string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}
	if tok.Error != "" {
		return "", fmt.Errorf("token request rejected: %s (%s)", tok.Error, tok.ErrorDesc)
	}
	if tok.AccessToken == "" {
		return "", errors.New("token response missing access_token")
	}

	c.token = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenSlack)
	return c.token, nil
}

// Transcribe implements Transcriber via the short-speech recognition API.
func (c *BaiduClient) Transcribe(ctx context.Context, audio []byte, format string, sampleRate int) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("audio payload is empty")
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"format":  format,
		"rate":    sampleRate,
		"channel": 1,
		"cuid":    c.cuid(),
		"token":   token,
		"speech":  base64.StdEncoding.EncodeToString(audio),
		"len":     len(audio),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal asr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ASRURL, strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("speech recognition request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read asr response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("asr endpoint returned %d: %s", resp.StatusCode, truncate(respBody, 200))
	}

	var result struct {
		ErrNo  int      `json:"err_no"`
		ErrMsg string   `json:"err_msg"`
		Result []string `json:"result"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("parse asr response: %w", err)
	}
	if result.ErrNo != 0 {
		return "", fmt.Errorf("speech recognition failed: err_no=%d %s", result.ErrNo, result.ErrMsg)
	}
	if len(result.Result) == 0 {
		return "", nil
	}
	return strings.TrimSpace(result.Result[0]), nil
}

// Synthesize implements Synthesizer via the text-to-speech API. Returns
// MP3 bytes; Baidu signals errors by answering with a JSON body instead
// of audio.
func (c *BaiduClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("synthesis text is empty")
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("tex", text)
	form.Set("tok", token)
	form.Set("cuid", c.cuid())
	form.Set("ctp", "1")
	form.Set("lan", "zh")
	form.Set("per", strconv.Itoa(c.cfg.Voice))
	form.Set("spd", strconv.Itoa(clampVoiceParam(c.cfg.Speed)))
	form.Set("pit", strconv.Itoa(clampVoiceParam(c.cfg.Pitch)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TTSURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech synthesis request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tts response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts endpoint returned %d: %s", resp.StatusCode, truncate(body, 200))
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") || (len(body) > 0 && body[0] == '{') {
		var apiErr struct {
			ErrNo  int    `json:"err_no"`
			ErrMsg string `json:"err_msg"`
		}
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.ErrNo != 0 {
			return nil, fmt.Errorf("speech synthesis failed: err_no=%d %s", apiErr.ErrNo, apiErr.ErrMsg)
		}
		return nil, fmt.Errorf("speech synthesis failed: %s", truncate(body, 200))
	}

	return body, nil
}

func (c *BaiduClient) cuid() string {
	if c.cfg.AppID != "" {
		return c.cfg.AppID
	}
	return "ainarrativerpg"
}

// clampVoiceParam keeps spd/pit inside Baidu's 0-15 range, defaulting to
// neutral when unset.
func clampVoiceParam(v int) int {
	if v <= 0 {
		return 5
	}
	if v > 15 {
		return 15
	}
	return v
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
