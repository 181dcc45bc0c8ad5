package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"mango/internal/config"
	"mango/internal/pkg/id"
)

// Client TTS 客户端封装
// 用于调用火山引擎的 TTS API（文本转语音）
// 参考: https://openspeech.bytedance.com/api/v1/tts
//
// 解说音频没有替代来源，本客户端不做降级：传输或提供商错误
// 直接以 ProviderError 上抛，由调用方终止该场景
type Client struct {
	apiURL      string
	accessToken string
	appID       string
	cluster     string
	voiceType   string
	sampleRate  int
	speedRatio  float64
	httpClient  *http.Client
}

// NewClient 创建 TTS 客户端
func NewClient(cfg config.TTSConfig) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("TTS access token is required")
	}

	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = "https://openspeech.bytedance.com/api/v1/tts"
	}

	cluster := cfg.Cluster
	if cluster == "" {
		cluster = "volcano_tts"
	}

	voiceType := cfg.VoiceType
	if voiceType == "" {
		voiceType = "BV115_streaming"
	}

	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = 44100
	}

	speedRatio := cfg.SpeedRatio
	if speedRatio == 0 {
		speedRatio = 1.0
	}

	return &Client{
		apiURL:      apiURL,
		accessToken: cfg.AccessToken,
		appID:       cfg.AppID,
		cluster:     cluster,
		voiceType:   voiceType,
		sampleRate:  sampleRate,
		speedRatio:  speedRatio,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Result TTS生成结果
type Result struct {
	AudioData []byte  // 音频数据（mp3）
	Duration  float64 // 提供商上报的音频时长（秒，可能为0；以 ffprobe 实测为准）
}

// ProviderError 提供商返回的业务错误，携带状态码和原始消息
type ProviderError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("tts provider error: status=%d code=%d message=%s",
		e.StatusCode, e.Code, e.Message)
}

// Synthesize 合成语音
// 返回音频数据和提供商上报的时长，不负责落盘
func (c *Client) Synthesize(ctx context.Context, text string) (*Result, error) {
	requestID := id.New()
	requestConfig := c.buildRequestConfig(text, requestID)

	reqBody, err := json.Marshal(requestConfig)
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create tts request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer; %s", c.accessToken))
	req.Header.Set("Content-Type", "application/json")

	log.Debug().
		Str("request_id", requestID).
		Str("voice_type", c.voiceType).
		Int("text_len", len([]rune(text))).
		Msg("sending TTS request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send tts request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tts response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	var apiResp struct {
		Code     int    `json:"code"`
		Message  string `json:"message"`
		Data     string `json:"data"`
		Addition struct {
			Duration string `json:"duration"` // 毫秒，字符串形式
		} `json:"addition"`
	}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("parse tts response: %w", err)
	}

	// openspeech 成功码为 3000
	if apiResp.Code != 3000 {
		message := apiResp.Message
		if message == "" {
			message = "unknown error"
		}
		return nil, &ProviderError{
			StatusCode: resp.StatusCode,
			Code:       apiResp.Code,
			Message:    message,
		}
	}

	if apiResp.Data == "" {
		return nil, fmt.Errorf("audio data not found in tts response")
	}

	audioData, err := base64.StdEncoding.DecodeString(apiResp.Data)
	if err != nil {
		return nil, fmt.Errorf("decode audio data: %w", err)
	}

	result := &Result{
		AudioData: audioData,
		Duration:  parseDurationMillis(apiResp.Addition.Duration),
	}

	log.Debug().
		Str("request_id", requestID).
		Int("bytes", len(audioData)).
		Float64("duration", result.Duration).
		Msg("TTS synthesis succeeded")

	return result, nil
}

// buildRequestConfig 构建请求配置
// 参考官方文档: https://openspeech.bytedance.com/api/v1/tts
func (c *Client) buildRequestConfig(text, requestID string) map[string]interface{} {
	appConfig := map[string]interface{}{
		"token":   c.accessToken,
		"cluster": c.cluster,
	}
	if c.appID != "" {
		appConfig["appid"] = c.appID
	}

	audioConfig := map[string]interface{}{
		"voice_type":       c.voiceType,
		"encoding":         "mp3",
		"compression_rate": 1,
		"rate":             c.sampleRate,
		"speed_ratio":      c.speedRatio,
		"volume_ratio":     1.0,
		"pitch_ratio":      1.0,
	}

	requestConfig := map[string]interface{}{
		"reqid":            requestID,
		"text":             text,
		"text_type":        "plain",
		"operation":        "query",
		"silence_duration": "125",
	}

	return map[string]interface{}{
		"app":     appConfig,
		"user":    map[string]interface{}{"uid": requestID},
		"audio":   audioConfig,
		"request": requestConfig,
	}
}

// parseDurationMillis 解析毫秒字符串为秒
func parseDurationMillis(s string) float64 {
	if s == "" {
		return 0
	}
	var ms float64
	if _, err := fmt.Sscanf(s, "%f", &ms); err != nil {
		return 0
	}
	return ms / 1000.0
}
