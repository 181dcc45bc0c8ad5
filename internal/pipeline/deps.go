package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"mango/internal/pkg/ffmpeg"
	"mango/internal/pkg/id"
	"mango/internal/pkg/storage"
	"mango/internal/pkg/tts"
)

// speechClient 语音合成边界（*tts.Client 实现）
type speechClient interface {
	Synthesize(ctx context.Context, text string) (*tts.Result, error)
}

// animationClient 图生视频边界（*ark.VideoClient 实现）
// 任何错误（失败/超时/能力不符）都由调用方降级处理
type animationClient interface {
	GenerateClip(ctx context.Context, imageData []byte, mimeType, motionPrompt string, durationSecs int) ([]byte, error)
}

// imageGenerator 场景静帧生成边界（*ark.ImageClient 实现）
type imageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// mediaTools 渲染管线用到的 FFmpeg 能力（*ffmpeg.Client 实现）
type mediaTools interface {
	GetVideoInfo(ctx context.Context, videoPath string) (*ffmpeg.VideoInfo, error)
	GetAudioDuration(ctx context.Context, audioPath string) (float64, error)
	CreateKenBurnsVideo(ctx context.Context, imagePath, outputPath string, duration float64, width, height, fps int) error
	ConcatVideos(ctx context.Context, videoPaths []string, outputPath string) error
	TrimVideo(ctx context.Context, inputPath, outputPath string, duration float64) error
	StandardizeVideo(ctx context.Context, inputPath, outputPath string, width, height, fps int, duration float64) error
	AddSubtitles(ctx context.Context, videoPath, assPath, outputPath string) error
	ReplaceAudio(ctx context.Context, videoPath, audioPath, outputPath string, audioLimit float64) error
	AddSilentAudio(ctx context.Context, videoPath, outputPath string) error
	ConcatWithCrossfade(ctx context.Context, videoPaths []string, durations []float64, outputPath string, fade float64, opts ffmpeg.ExportOptions) error
	MixBackgroundMusic(ctx context.Context, videoPath, musicPath, outputPath string, gain float64) error
}

// fetchToTemp 把产物从存储取到临时文件，返回本地路径
func fetchToTemp(ctx context.Context, store storage.Storage, key, tmpDir, suffix string) (string, error) {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	path := filepath.Join(tmpDir, id.New()+suffix)
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		os.Remove(path)
		return "", err
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// putFile 把本地文件写入存储
func putFile(ctx context.Context, store storage.Storage, key, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return store.Put(ctx, key, file)
}
