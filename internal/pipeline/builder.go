package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"mango/internal/model/storyboard"
	"mango/internal/pkg/id"
)

// BuildSceneClip 把场景素材合成为成品片段（画面+字幕+音轨）
// 成品 key 存在即跳过（幂等缓存）。画面统一规格并精确裁到
// 重排后的场景时长；有解说则烧入字幕并换上解说音轨，
// 无解说补静音轨，保证每个片段都有音频流可供交叉淡化
func (p *Pipeline) BuildSceneClip(ctx context.Context, scene *storyboard.Scene) (*storyboard.SceneClip, error) {
	key := ClipKey(scene.Index)
	duration := scene.TEnd - scene.TStart

	exists, err := p.store.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("check clip cache: %w", err)
	}
	if exists {
		log.Debug().Int("scene_index", scene.Index).Str("key", key).Msg("场景片段命中缓存")
		return &storyboard.SceneClip{SceneIndex: scene.Index, Key: key, Duration: duration}, nil
	}

	videoPath, err := fetchToTemp(ctx, p.store, VideoKey(scene.Index), p.tmpDir, ".mp4")
	if err != nil {
		return nil, fmt.Errorf("fetch scene video: %w", err)
	}
	defer os.Remove(videoPath)

	// 统一分辨率/帧率并精确裁到场景时长
	standardPath := filepath.Join(p.tmpDir, id.New()+".mp4")
	if err := p.media.StandardizeVideo(ctx, videoPath, standardPath,
		p.cfg.Render.Width, p.cfg.Render.Height, p.cfg.Render.FPS, duration); err != nil {
		return nil, fmt.Errorf("standardize video: %w", err)
	}
	defer os.Remove(standardPath)

	currentPath := standardPath

	if p.cfg.Subtitle.Enabled && scene.HasNarration() {
		subtitledPath, err := p.burnSubtitles(ctx, scene, currentPath, duration)
		if err != nil {
			return nil, err
		}
		defer os.Remove(subtitledPath)
		currentPath = subtitledPath
	}

	finalPath, err := p.attachAudio(ctx, scene, currentPath, duration)
	if err != nil {
		return nil, err
	}
	defer os.Remove(finalPath)

	if err := putFile(ctx, p.store, key, finalPath); err != nil {
		return nil, fmt.Errorf("store clip: %w", err)
	}

	log.Info().
		Int("scene_index", scene.Index).
		Str("key", key).
		Float64("duration", duration).
		Msg("场景片段合成完成")

	return &storyboard.SceneClip{SceneIndex: scene.Index, Key: key, Duration: duration}, nil
}

// burnSubtitles 切分解说并烧入字幕
func (p *Pipeline) burnSubtitles(ctx context.Context, scene *storyboard.Scene, videoPath string, duration float64) (string, error) {
	segments := p.segmenter.Segment(scene.Narration, duration)
	if len(segments) == 0 {
		return videoPath, nil
	}

	assPath := filepath.Join(p.tmpDir, id.New()+".ass")
	content := p.ass.Generate(segments, fmt.Sprintf("scene_%03d", scene.Index))
	if err := os.WriteFile(assPath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write subtitle file: %w", err)
	}
	defer os.Remove(assPath)

	outputPath := filepath.Join(p.tmpDir, id.New()+".mp4")
	if err := p.media.AddSubtitles(ctx, videoPath, assPath, outputPath); err != nil {
		return "", fmt.Errorf("burn subtitles: %w", err)
	}
	return outputPath, nil
}

// attachAudio 给片段配音轨
// 有解说用合成音频，音频超出画面超过容忍值时裁到场景时长；
// 无解说补静音轨
func (p *Pipeline) attachAudio(ctx context.Context, scene *storyboard.Scene, videoPath string, duration float64) (string, error) {
	outputPath := filepath.Join(p.tmpDir, id.New()+".mp4")

	if !scene.HasNarration() {
		if err := p.media.AddSilentAudio(ctx, videoPath, outputPath); err != nil {
			return "", fmt.Errorf("add silent audio: %w", err)
		}
		return outputPath, nil
	}

	audioPath, err := fetchToTemp(ctx, p.store, AudioKey(scene.Index), p.tmpDir, ".mp3")
	if err != nil {
		return "", fmt.Errorf("fetch narration audio: %w", err)
	}
	defer os.Remove(audioPath)

	// 容忍毫秒级探测抖动，超过容忍值才硬裁音频
	audioLimit := 0.0
	audioDuration, err := p.media.GetAudioDuration(ctx, audioPath)
	if err != nil {
		return "", fmt.Errorf("probe narration duration: %w", err)
	}
	if audioDuration > duration+p.cfg.Render.AudioTrimTol {
		audioLimit = duration
	}

	if err := p.media.ReplaceAudio(ctx, videoPath, audioPath, outputPath, audioLimit); err != nil {
		return "", fmt.Errorf("replace audio: %w", err)
	}
	return outputPath, nil
}
