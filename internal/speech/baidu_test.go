package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenHandler(t *testing.T, calls *atomic.Int32) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "tok-123", "expires_in": 2592000}`))
	}
}

func newTestClient(t *testing.T, cfg BaiduConfig) *BaiduClient {
	t.Helper()
	if cfg.APIKey == "" {
		cfg.APIKey = "key"
	}
	if cfg.SecretKey == "" {
		cfg.SecretKey = "secret"
	}
	c, err := NewBaiduClient(cfg)
	require.NoError(t, err)
	return c
}

func TestNewBaiduClientValidation(t *testing.T) {
	_, err := NewBaiduClient(BaiduConfig{APIKey: "key"})
	assert.Error(t, err, "missing secret key must be rejected")

	_, err = NewBaiduClient(BaiduConfig{SecretKey: "secret"})
	assert.Error(t, err, "missing api key must be rejected")
}

func TestAccessTokenCached(t *testing.T) {
	var calls atomic.Int32
	tokenSrv := httptest.NewServer(tokenHandler(t, &calls))
	defer tokenSrv.Close()

	c := newTestClient(t, BaiduConfig{TokenURL: tokenSrv.URL})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tok, err := c.accessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "tok-123", tok)
	}
	assert.Equal(t, int32(1), calls.Load(), "token must be fetched once and cached")
}

func TestAccessTokenRejected(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error": "invalid_client", "error_description": "unknown client id"}`))
	}))
	defer tokenSrv.Close()

	c := newTestClient(t, BaiduConfig{TokenURL: tokenSrv.URL})

	_, err := c.accessToken(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_client")
}

func TestTranscribe(t *testing.T) {
	tokenSrv := httptest.NewServer(tokenHandler(t, nil))
	defer tokenSrv.Close()

	audio := []byte("fake-pcm-audio")
	asrSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Format string `json:"format"`
			Rate   int    `json:"rate"`
			Token  string `json:"token"`
			Speech string `json:"speech"`
			Len    int    `json:"len"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "wav", req.Format)
		assert.Equal(t, 16000, req.Rate)
		assert.Equal(t, "tok-123", req.Token)
		assert.Equal(t, base64.StdEncoding.EncodeToString(audio), req.Speech)
		assert.Equal(t, len(audio), req.Len)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"err_no": 0, "result": ["我们开始吧。"]}`))
	}))
	defer asrSrv.Close()

	c := newTestClient(t, BaiduConfig{TokenURL: tokenSrv.URL, ASRURL: asrSrv.URL})

	text, err := c.Transcribe(context.Background(), audio, "wav", 16000)
	require.NoError(t, err)
	assert.Equal(t, "我们开始吧。", text)
}

func TestTranscribeEmptyResult(t *testing.T) {
	tokenSrv := httptest.NewServer(tokenHandler(t, nil))
	defer tokenSrv.Close()

	asrSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"err_no": 0, "result": []}`))
	}))
	defer asrSrv.Close()

	c := newTestClient(t, BaiduConfig{TokenURL: tokenSrv.URL, ASRURL: asrSrv.URL})

	text, err := c.Transcribe(context.Background(), []byte("silence"), "wav", 16000)
	require.NoError(t, err, "empty recognition is not an error")
	assert.Empty(t, text)
}

func TestTranscribeAPIError(t *testing.T) {
	tokenSrv := httptest.NewServer(tokenHandler(t, nil))
	defer tokenSrv.Close()

	asrSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"err_no": 3301, "err_msg": "speech quality error"}`))
	}))
	defer asrSrv.Close()

	c := newTestClient(t, BaiduConfig{TokenURL: tokenSrv.URL, ASRURL: asrSrv.URL})

	_, err := c.Transcribe(context.Background(), []byte("noise"), "wav", 16000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3301")
}

func TestTranscribeEmptyAudio(t *testing.T) {
	c := newTestClient(t, BaiduConfig{})

	_, err := c.Transcribe(context.Background(), nil, "wav", 16000)
	assert.Error(t, err)
}

func TestSynthesize(t *testing.T) {
	tokenSrv := httptest.NewServer(tokenHandler(t, nil))
	defer tokenSrv.Close()

	mp3 := []byte{0xFF, 0xFB, 0x90, 0x00, 0x01, 0x02}
	ttsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "夜色深沉。", r.Form.Get("tex"))
		assert.Equal(t, "tok-123", r.Form.Get("tok"))
		assert.Equal(t, "1", r.Form.Get("ctp"))
		assert.Equal(t, "zh", r.Form.Get("lan"))
		assert.Equal(t, "4", r.Form.Get("per"))

		w.Header().Set("Content-Type", "audio/mp3")
		_, _ = w.Write(mp3)
	}))
	defer ttsSrv.Close()

	c := newTestClient(t, BaiduConfig{TokenURL: tokenSrv.URL, TTSURL: ttsSrv.URL, Voice: 4})

	audio, err := c.Synthesize(context.Background(), "夜色深沉。")
	require.NoError(t, err)
	assert.Equal(t, mp3, audio)
}

func TestSynthesizeAPIError(t *testing.T) {
	tokenSrv := httptest.NewServer(tokenHandler(t, nil))
	defer tokenSrv.Close()

	ttsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"err_no": 502, "err_msg": "speech quota exceeded"}`))
	}))
	defer ttsSrv.Close()

	c := newTestClient(t, BaiduConfig{TokenURL: tokenSrv.URL, TTSURL: ttsSrv.URL})

	_, err := c.Synthesize(context.Background(), "你好")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestSynthesizeEmptyText(t *testing.T) {
	c := newTestClient(t, BaiduConfig{})

	_, err := c.Synthesize(context.Background(), "   ")
	assert.Error(t, err)
}

func TestClampVoiceParam(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, 5},
		{-2, 5},
		{7, 7},
		{15, 15},
		{99, 15},
	}
	for _, tt := range tests {
		if got := clampVoiceParam(tt.in); got != tt.want {
			t.Errorf("clampVoiceParam(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
