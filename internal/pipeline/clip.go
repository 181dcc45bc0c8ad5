package pipeline

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"mango/internal/config"
	"mango/internal/model/storyboard"
	"mango/internal/pkg/id"
	"mango/internal/pkg/storage"
)

// 视频实际时长允许比目标短这么多秒（约一帧）再触发循环补长
const durationTolerance = 0.05

// clipAdapter 时长保证适配器
// 对外承诺：EnsureSceneVideo 之后，场景视频落盘且时长 ≥ 目标时长。
// 获取顺序：缓存复用 → 远端图生视频 → 本地静帧推近降级；
// 不足目标时长时同源硬切循环再裁剪。音频完整性优先于画面新鲜感
type clipAdapter struct {
	store  storage.Storage
	remote animationClient // 可为 nil（未配置 API key 时纯本地降级）
	media  mediaTools
	render config.RenderConfig
	tmpDir string
}

// EnsureSceneVideo 保证场景视频存在且时长达标
// 远端任一环节出错（提交失败/任务失败/轮询超时）都不上抛，
// 改走确定性的本地降级；只有本地降级也失败才算错误
func (a *clipAdapter) EnsureSceneVideo(ctx context.Context, scene *storyboard.Scene, targetDuration float64) error {
	key := VideoKey(scene.Index)

	exists, err := a.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check video cache: %w", err)
	}
	if exists {
		log.Debug().Int("scene_index", scene.Index).Str("key", key).Msg("场景视频命中缓存")
		return nil
	}

	imageData, err := a.readSceneImage(ctx, scene.Index)
	if err != nil {
		return err
	}

	videoPath, err := a.generateRemote(ctx, scene, imageData, targetDuration)
	if err != nil {
		// 远端失败的唯一设计内吞错误点：降级为本地静帧推近
		log.Warn().Err(err).
			Int("scene_index", scene.Index).
			Msg("远端图生视频失败，降级为本地静帧推近")

		videoPath, err = a.generateKenBurns(ctx, scene.Index, imageData, targetDuration)
		if err != nil {
			return fmt.Errorf("ken burns fallback: %w", err)
		}
	}
	defer os.Remove(videoPath)

	// 生成型提供商常无视请求时长返回固定长度片段（约5s），
	// 不足时同源循环再硬裁到目标
	videoPath, err = a.loopToFit(ctx, videoPath, targetDuration)
	if err != nil {
		return fmt.Errorf("loop to fit: %w", err)
	}

	if err := putFile(ctx, a.store, key, videoPath); err != nil {
		return fmt.Errorf("store video: %w", err)
	}

	log.Info().
		Int("scene_index", scene.Index).
		Str("key", key).
		Float64("target_duration", targetDuration).
		Msg("场景视频就绪")

	return nil
}

// readSceneImage 读取场景静帧
func (a *clipAdapter) readSceneImage(ctx context.Context, sceneIndex int) ([]byte, error) {
	reader, err := a.store.Get(ctx, ImageKey(sceneIndex))
	if err != nil {
		return nil, fmt.Errorf("read scene image: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read scene image: %w", err)
	}
	return data, nil
}

// generateRemote 走远端图生视频全流程，产出临时文件
func (a *clipAdapter) generateRemote(ctx context.Context, scene *storyboard.Scene, imageData []byte, targetDuration float64) (string, error) {
	if a.remote == nil {
		return "", fmt.Errorf("animation client not configured")
	}

	requestSecs := int(math.Ceil(targetDuration))
	videoData, err := a.remote.GenerateClip(ctx, imageData, "image/jpeg", scene.MotionPrompt, requestSecs)
	if err != nil {
		return "", err
	}

	path := filepath.Join(a.tmpDir, id.New()+".mp4")
	if err := os.WriteFile(path, videoData, 0o644); err != nil {
		return "", fmt.Errorf("write remote video: %w", err)
	}
	return path, nil
}

// generateKenBurns 本地降级：静帧连续推近，精确渲染目标时长
func (a *clipAdapter) generateKenBurns(ctx context.Context, sceneIndex int, imageData []byte, targetDuration float64) (string, error) {
	imagePath := filepath.Join(a.tmpDir, id.New()+".jpg")
	if err := os.WriteFile(imagePath, imageData, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	defer os.Remove(imagePath)

	videoPath := filepath.Join(a.tmpDir, id.New()+".mp4")
	if err := a.media.CreateKenBurnsVideo(ctx, imagePath, videoPath,
		targetDuration, a.render.Width, a.render.Height, a.render.FPS); err != nil {
		return "", err
	}
	return videoPath, nil
}

// loopToFit 视频不足目标时长时：repeats = ceil(target/dur) 份同源硬切拼接，
// 再裁剪到恰好 target。同源循环之间不做交叉淡化（交叉淡化只用于场景之间）
func (a *clipAdapter) loopToFit(ctx context.Context, videoPath string, targetDuration float64) (string, error) {
	info, err := a.media.GetVideoInfo(ctx, videoPath)
	if err != nil {
		return "", fmt.Errorf("probe video: %w", err)
	}
	if info.Duration <= 0 {
		return "", fmt.Errorf("probed non-positive video duration %.3f", info.Duration)
	}

	if info.Duration >= targetDuration-durationTolerance {
		return videoPath, nil
	}

	repeats := loopRepeats(info.Duration, targetDuration)
	log.Info().
		Float64("clip_duration", info.Duration).
		Float64("target_duration", targetDuration).
		Int("repeats", repeats).
		Msg("场景视频不足目标时长，循环补齐")

	paths := make([]string, repeats)
	for i := range paths {
		paths[i] = videoPath
	}

	loopedPath := filepath.Join(a.tmpDir, id.New()+".mp4")
	if err := a.media.ConcatVideos(ctx, paths, loopedPath); err != nil {
		return "", err
	}
	defer os.Remove(loopedPath)

	trimmedPath := filepath.Join(a.tmpDir, id.New()+".mp4")
	if err := a.media.TrimVideo(ctx, loopedPath, trimmedPath, targetDuration); err != nil {
		return "", err
	}

	os.Remove(videoPath)
	return trimmedPath, nil
}

// loopRepeats 覆盖目标时长所需的同源份数
func loopRepeats(clipDuration, targetDuration float64) int {
	repeats := int(math.Ceil(targetDuration / clipDuration))
	if repeats < 1 {
		repeats = 1
	}
	return repeats
}
