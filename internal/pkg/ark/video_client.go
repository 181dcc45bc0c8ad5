package ark

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"mango/internal/config"
)

// TaskStatus 图生视频任务的规范状态
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskRunning   TaskStatus = "RUNNING"
	TaskSucceeded TaskStatus = "SUCCEEDED"
	TaskFailed    TaskStatus = "FAILED"
	TaskTimedOut  TaskStatus = "TIMED_OUT"
)

// ErrPollTimeout 轮询超过墙钟上限
// 已提交的任务不会被取消（fire-and-timeout），调用方自行降级
var ErrPollTimeout = errors.New("animation task poll timeout")

// TaskFailedError 提供商侧任务失败，携带原始响应供调用方记录
type TaskFailedError struct {
	TaskID  string
	Payload string
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("animation task failed: task_id=%s payload=%s", e.TaskID, e.Payload)
}

// VideoClient Ark 图生视频任务客户端
// 调用火山引擎 Ark 的 contents/generations 异步任务接口：
// 提交任务 → 固定间隔轮询 → 提取结果 URL → 下载
//
// 本客户端不做降级，只上抛带类型的错误（失败/超时），
// 由 pipeline 层决定重试、降级或中止
type VideoClient struct {
	apiKey       string
	baseURL      string
	model        string
	ratio        string
	maxDuration  int
	pollInterval time.Duration
	pollTimeout  time.Duration
	httpClient   *http.Client

	// 能力探测：提供商拒绝 duration 字段后，本次运行内不再发送
	mu               sync.Mutex
	durationRejected bool
}

// NewVideoClient 创建图生视频任务客户端
func NewVideoClient(cfg config.AnimationConfig) (*VideoClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("animation API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://ark.cn-beijing.volces.com/api/v3"
	}

	model := cfg.Model
	if model == "" {
		model = "doubao-seedance-1-0-lite-i2v-250428"
	}

	ratio := cfg.Ratio
	if ratio == "" {
		ratio = "9:16"
	}

	maxDuration := cfg.MaxDuration
	if maxDuration <= 0 {
		maxDuration = 12
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 900 * time.Second
	}

	return &VideoClient{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		model:        model,
		ratio:        ratio,
		maxDuration:  maxDuration,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// UploadImage 上传场景静帧，返回资产标识
// Ark 接口接受内联 data URL，上传即编码
func (c *VideoClient) UploadImage(imageData []byte, mimeType string) string {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(imageData))
}

// CreateTask 提交图生视频任务，返回 task_id
// durationSecs 超过提供商上限时截断；提供商以校验错误拒绝 duration
// 字段时，去掉该字段原样重发一次（能力探测），而不是中止
func (c *VideoClient) CreateTask(ctx context.Context, assetID, motionPrompt string, durationSecs int) (string, error) {
	if motionPrompt == "" {
		motionPrompt = "画面有明显的动态效果，镜头缓慢推进，整体流畅自然，动作幅度适中"
	}

	if durationSecs > c.maxDuration {
		log.Warn().Int("requested", durationSecs).Int("limited", c.maxDuration).
			Msg("任务时长超过提供商上限，已截断")
		durationSecs = c.maxDuration
	}

	c.mu.Lock()
	withDuration := !c.durationRejected && durationSecs > 0
	c.mu.Unlock()

	taskID, err := c.submitTask(ctx, assetID, motionPrompt, durationSecs, withDuration)
	if err == nil {
		return taskID, nil
	}

	// 能力探测：仅当失败明确指向 duration 字段时才去字段重试
	if withDuration && isDurationRejected(err) {
		log.Warn().Err(err).Msg("提供商拒绝 duration 字段，去字段重试")
		c.mu.Lock()
		c.durationRejected = true
		c.mu.Unlock()
		return c.submitTask(ctx, assetID, motionPrompt, 0, false)
	}

	return "", err
}

// requestError 创建任务时的 HTTP 层错误，保留状态码和响应体用于能力探测
type requestError struct {
	StatusCode int
	Body       string
}

func (e *requestError) Error() string {
	return fmt.Sprintf("animation API request failed: status %d, body: %s", e.StatusCode, e.Body)
}

// isDurationRejected 判断创建失败是否为提供商不支持 duration 字段
// 约束：HTTP 400 且响应体中点名 duration
func isDurationRejected(err error) bool {
	var reqErr *requestError
	if !errors.As(err, &reqErr) {
		return false
	}
	if reqErr.StatusCode != http.StatusBadRequest {
		return false
	}
	return strings.Contains(strings.ToLower(reqErr.Body), "duration")
}

func (c *VideoClient) submitTask(ctx context.Context, assetID, motionPrompt string, durationSecs int, withDuration bool) (string, error) {
	requestBody := map[string]interface{}{
		"model": c.model,
		"content": []map[string]interface{}{
			{
				"type": "text",
				"text": motionPrompt,
			},
			{
				"type": "image_url",
				"image_url": map[string]interface{}{
					"url": assetID,
				},
			},
		},
		"ratio":     c.ratio,
		"watermark": false,
	}
	if withDuration {
		requestBody["duration"] = durationSecs
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("marshal task request: %w", err)
	}

	apiURL := fmt.Sprintf("%s/contents/generations/tasks", c.baseURL)

	log.Debug().
		Str("api_url", apiURL).
		Str("model", c.model).
		Bool("with_duration", withDuration).
		Msg("创建图生视频任务")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Error().
			Int("status_code", resp.StatusCode).
			Str("response_body", string(body)).
			Msg("创建任务失败")
		return "", &requestError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var apiResp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if apiResp.ID == "" {
		return "", fmt.Errorf("task ID is empty in response")
	}

	return apiResp.ID, nil
}

// TaskState 单次查询的任务状态
type TaskState struct {
	Status    TaskStatus
	ResultURL string
	Raw       string // 原始响应，失败时带给调用方
}

// GetTask 查询任务状态（单次）
func (c *VideoClient) GetTask(ctx context.Context, taskID string) (*TaskState, error) {
	apiURL := fmt.Sprintf("%s/contents/generations/tasks/%s", c.baseURL, taskID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &requestError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	status, url := parseTaskStatus(raw)
	return &TaskState{Status: status, ResultURL: url, Raw: string(body)}, nil
}

// WaitForTask 固定间隔轮询任务直到成功/失败/超时
// 成功返回结果 URL；失败返回 *TaskFailedError；超时返回 ErrPollTimeout
func (c *VideoClient) WaitForTask(ctx context.Context, taskID string) (string, error) {
	deadline := time.Now().Add(c.pollTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		state, err := c.GetTask(ctx, taskID)
		if err != nil {
			return "", fmt.Errorf("get task status: %w", err)
		}

		switch state.Status {
		case TaskSucceeded:
			if state.ResultURL == "" {
				return "", fmt.Errorf("task succeeded but result URL is empty: task_id=%s", taskID)
			}
			log.Info().Str("task_id", taskID).Msg("图生视频任务完成")
			return state.ResultURL, nil
		case TaskFailed:
			return "", &TaskFailedError{TaskID: taskID, Payload: state.Raw}
		}

		if time.Now().After(deadline) {
			log.Warn().Str("task_id", taskID).Dur("timeout", c.pollTimeout).
				Msg("图生视频任务轮询超时")
			return "", ErrPollTimeout
		}

		log.Debug().Str("task_id", taskID).Str("status", string(state.Status)).
			Msg("任务生成中，继续等待")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// DownloadVideo 下载生成的视频
func (c *VideoClient) DownloadVideo(ctx context.Context, videoURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download video: status code %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read video data: %w", err)
	}

	return data, nil
}

// GenerateClip 完整流程：上传 → 提交 → 轮询 → 下载
func (c *VideoClient) GenerateClip(ctx context.Context, imageData []byte, mimeType, motionPrompt string, durationSecs int) ([]byte, error) {
	assetID := c.UploadImage(imageData, mimeType)

	taskID, err := c.CreateTask(ctx, assetID, motionPrompt, durationSecs)
	if err != nil {
		return nil, fmt.Errorf("create animation task: %w", err)
	}

	log.Info().Str("task_id", taskID).Msg("图生视频任务提交成功")

	url, err := c.WaitForTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	return c.DownloadVideo(ctx, url)
}

// parseTaskStatus 归一化提供商的任务查询响应
// 不同版本的接口返回过多种形态，这里集中映射为规范的 {status, result_url}，
// 把提供商差异挡在适配器边界之内
func parseTaskStatus(raw map[string]interface{}) (TaskStatus, string) {
	// data 包一层的旧形态
	if data, ok := raw["data"].(map[string]interface{}); ok {
		if _, hasStatus := data["status"]; hasStatus {
			raw = data
		}
	}

	statusStr, _ := raw["status"].(string)
	status := normalizeStatus(statusStr)

	if status != TaskSucceeded {
		return status, ""
	}

	// 已知的结果 URL 形态，按新到旧依次尝试
	if content, ok := raw["content"].(map[string]interface{}); ok {
		if url, ok := content["video_url"].(string); ok && url != "" {
			return status, url
		}
	}
	if result, ok := raw["result"].(map[string]interface{}); ok {
		for _, field := range []string{"video_url", "url"} {
			if url, ok := result[field].(string); ok && url != "" {
				return status, url
			}
		}
	}
	if url, ok := raw["video_url"].(string); ok && url != "" {
		return status, url
	}
	if outputs, ok := raw["outputs"].([]interface{}); ok && len(outputs) > 0 {
		switch first := outputs[0].(type) {
		case string:
			if first != "" {
				return status, first
			}
		case map[string]interface{}:
			for _, field := range []string{"video_url", "url"} {
				if url, ok := first[field].(string); ok && url != "" {
					return status, url
				}
			}
		}
	}

	return status, ""
}

// normalizeStatus 提供商状态字符串 → 规范状态
func normalizeStatus(s string) TaskStatus {
	switch strings.ToLower(s) {
	case "succeeded", "completed", "success":
		return TaskSucceeded
	case "failed", "error", "cancelled":
		return TaskFailed
	case "running", "processing", "in_progress":
		return TaskRunning
	default:
		return TaskPending
	}
}
