package ark

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"

	"mango/internal/config"
)

// ImageClient Ark 图片生成客户端
// 用于在场景缺少静帧时按 image_prompt 生成（t2i，同步接口）
type ImageClient struct {
	client *arkruntime.Client
	model  string
	size   string
}

// NewImageClient 创建图片生成客户端
func NewImageClient(cfg config.ImageConfig) (*ImageClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("image API key is required")
	}

	imageModel := cfg.Model
	if imageModel == "" {
		imageModel = "doubao-seedream-3-0-t2i-250415"
	}

	size := cfg.Size
	if size == "" {
		size = "720x1280"
	}

	var opts []arkruntime.ConfigOption
	if cfg.BaseURL != "" {
		opts = append(opts, arkruntime.WithBaseUrl(cfg.BaseURL))
	}

	arkClient := arkruntime.NewClientWithApiKey(cfg.APIKey, opts...)

	return &ImageClient{
		client: arkClient,
		model:  imageModel,
		size:   size,
	}, nil
}

// GenerateImage 按提示词生成图片，返回图片字节
func (c *ImageClient) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	responseFormat := "b64_json"
	watermark := false
	size := c.size

	input := model.GenerateImagesRequest{
		Model:          c.model,
		Prompt:         prompt,
		Size:           &size,
		ResponseFormat: &responseFormat,
		Watermark:      &watermark,
	}

	output, err := c.client.GenerateImages(ctx, input)
	if err != nil {
		log.Error().Err(err).Msg("failed to call Ark GenerateImages API")
		return nil, fmt.Errorf("Ark GenerateImages API call failed: %w", err)
	}

	if len(output.Data) == 0 {
		return nil, fmt.Errorf("no image data in response")
	}

	first := output.Data[0]
	if first.B64Json == nil {
		return nil, fmt.Errorf("no b64_json in response data")
	}

	imageData, err := base64.StdEncoding.DecodeString(*first.B64Json)
	if err != nil {
		return nil, fmt.Errorf("decode base64 image data: %w", err)
	}

	return imageData, nil
}
