package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"mango/internal/model/storyboard"
)

// synthesizeAll 为所有含解说的场景合成音频并实测时长
// 已存在的音频直接复用（幂等缓存）；时长一律用 ffprobe 对落盘文件实测，
// 缓存命中与新合成走同一条测量路径。解说无替代来源，任何合成失败
// 都终止整次运行
func (p *Pipeline) synthesizeAll(ctx context.Context, scenes []*storyboard.Scene) (map[int]float64, error) {
	durations := make(map[int]float64, len(scenes))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Render.Workers)

	for _, scene := range scenes {
		if !scene.HasNarration() {
			continue
		}
		scene := scene
		g.Go(func() error {
			audio, err := p.ensureSceneAudio(gctx, scene)
			if err != nil {
				return fmt.Errorf("scene %d: synthesize narration: %w", scene.Index, err)
			}
			mu.Lock()
			durations[audio.SceneIndex] = audio.Duration
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return durations, nil
}

// ensureSceneAudio 保证场景音频已落盘，返回带实测时长的音频产物
func (p *Pipeline) ensureSceneAudio(ctx context.Context, scene *storyboard.Scene) (*storyboard.SynthesizedAudio, error) {
	key := AudioKey(scene.Index)

	exists, err := p.store.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("check audio cache: %w", err)
	}

	if !exists {
		if p.speech == nil {
			return nil, fmt.Errorf("tts access token is required to synthesize narration")
		}

		result, err := p.speech.Synthesize(ctx, scene.Narration)
		if err != nil {
			return nil, err
		}

		if err := p.store.Put(ctx, key, bytes.NewReader(result.AudioData)); err != nil {
			return nil, fmt.Errorf("store audio: %w", err)
		}

		log.Info().
			Int("scene_index", scene.Index).
			Str("key", key).
			Int("bytes", len(result.AudioData)).
			Msg("场景解说合成完成")
	} else {
		log.Debug().Int("scene_index", scene.Index).Str("key", key).Msg("场景解说命中缓存")
	}

	// 实测时长
	path, err := fetchToTemp(ctx, p.store, key, p.tmpDir, ".mp3")
	if err != nil {
		return nil, fmt.Errorf("fetch audio for probing: %w", err)
	}
	defer os.Remove(path)

	duration, err := p.media.GetAudioDuration(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("probe audio duration: %w", err)
	}

	return &storyboard.SynthesizedAudio{
		SceneIndex: scene.Index,
		Key:        key,
		Duration:   duration,
	}, nil
}
