package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"mango/internal/config"
	"mango/internal/model/storyboard"
	"mango/internal/pkg/ark"
	"mango/internal/pkg/ffmpeg"
	"mango/internal/pkg/storage"
	"mango/internal/pkg/storagefactory"
	"mango/internal/pkg/subtitle"
	"mango/internal/pkg/tts"
)

// Pipeline 渲染管线
// 每个阶段的产物按确定性 key 落盘，key 存在即该步骤已完成，
// 重跑只补缺失环节。全部产物齐备时整次运行可以零网络调用完成
type Pipeline struct {
	cfg       *config.Config
	store     storage.Storage
	speech    speechClient    // 未配置 access token 时为 nil
	animation animationClient // 未配置 API key 时为 nil
	imageGen  imageGenerator  // 仅 generate_missing 且配置了 API key 时非 nil
	media     mediaTools
	segmenter *subtitle.Segmenter
	ass       *subtitle.ASSGenerator
	tmpDir    string
}

// New 按配置装配生产管线
// 远端客户端只在凭证存在时构建；产物全部命中缓存的重跑不需要任何凭证
func New(cfg *config.Config) (*Pipeline, error) {
	store, err := storagefactory.NewStorage(&cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("create storage: %w", err)
	}

	p := &Pipeline{
		cfg:       cfg,
		store:     store,
		media:     ffmpeg.NewClient(),
		segmenter: subtitle.NewSegmenter(cfg.Subtitle),
		ass: subtitle.NewASSGenerator(subtitle.ASSStyle{
			FontName: cfg.Subtitle.FontName,
			FontSize: cfg.Subtitle.FontSize,
			PlayResX: cfg.Render.Width,
			PlayResY: cfg.Render.Height,
		}),
	}

	if cfg.TTS.AccessToken != "" {
		speech, err := tts.NewClient(cfg.TTS)
		if err != nil {
			return nil, fmt.Errorf("create tts client: %w", err)
		}
		p.speech = speech
	}

	if cfg.Animation.APIKey != "" {
		animation, err := ark.NewVideoClient(cfg.Animation)
		if err != nil {
			return nil, fmt.Errorf("create animation client: %w", err)
		}
		p.animation = animation
	}

	if cfg.Image.GenerateMissing && cfg.Image.APIKey != "" {
		imageGen, err := ark.NewImageClient(cfg.Image)
		if err != nil {
			return nil, fmt.Errorf("create image client: %w", err)
		}
		p.imageGen = imageGen
	}

	return p, nil
}

// Run 执行整条渲染管线
// 阶段顺序：加载校验 → 静帧就位 → 语音合成 → 时间轴重排（严格串行）
// → 场景视频与片段合成（并发受限）→ 交叉淡化装配
func (p *Pipeline) Run(ctx context.Context, storyboardPath, outputPath, musicPath string) error {
	board, err := storyboard.Load(storyboardPath)
	if err != nil {
		return fmt.Errorf("load storyboard: %w", err)
	}
	if err := board.Validate(); err != nil {
		return fmt.Errorf("validate storyboard: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "mango-*")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	p.tmpDir = tmpDir
	defer os.RemoveAll(tmpDir)

	log.Info().
		Str("title", board.Title).
		Int("scenes", len(board.Scenes)).
		Str("storyboard", storyboardPath).
		Msg("开始渲染")

	if err := p.ensureImages(ctx, board.Scenes); err != nil {
		return err
	}

	measured, err := p.synthesizeAll(ctx, board.Scenes)
	if err != nil {
		return err
	}

	// 时间轴重排必须在任何依赖场景时长的阶段之前完成，且严格串行
	if err := ReconcileTimeline(board.Scenes, measured); err != nil {
		return fmt.Errorf("reconcile timeline: %w", err)
	}
	for _, scene := range board.Scenes {
		log.Debug().
			Int("scene_index", scene.Index).
			Float64("t_start", scene.TStart).
			Float64("t_end", scene.TEnd).
			Msg("场景时间窗口")
	}

	clips, err := p.buildAllClips(ctx, board.Scenes)
	if err != nil {
		return err
	}

	if err := p.Assemble(ctx, clips, outputPath, musicPath); err != nil {
		return err
	}

	log.Info().Str("output", outputPath).Msg("渲染完成")
	return nil
}

// ensureImages 保证每个场景的静帧都已落盘
// 缺图且开启 generate_missing 时按提示词生成，否则视为致命输入错误
func (p *Pipeline) ensureImages(ctx context.Context, scenes []*storyboard.Scene) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Render.Workers)

	for _, scene := range scenes {
		scene := scene
		g.Go(func() error {
			key := ImageKey(scene.Index)

			exists, err := p.store.Exists(gctx, key)
			if err != nil {
				return fmt.Errorf("scene %d: check image: %w", scene.Index, err)
			}
			if exists {
				return nil
			}

			if p.imageGen == nil {
				return fmt.Errorf("scene %d: image %s missing and image generation disabled",
					scene.Index, key)
			}
			if scene.ImagePrompt == "" {
				return fmt.Errorf("scene %d: image %s missing and no image prompt", scene.Index, key)
			}

			data, err := p.imageGen.GenerateImage(gctx, scene.ImagePrompt)
			if err != nil {
				return fmt.Errorf("scene %d: generate image: %w", scene.Index, err)
			}
			if err := p.store.Put(gctx, key, bytes.NewReader(data)); err != nil {
				return fmt.Errorf("scene %d: store image: %w", scene.Index, err)
			}

			log.Info().Int("scene_index", scene.Index).Str("key", key).Msg("场景静帧生成完成")
			return nil
		})
	}

	return g.Wait()
}

// buildAllClips 并发合成所有场景的成品片段
// 单场景内部顺序执行（视频就位 → 片段合成），场景之间并发受 Workers 限制
func (p *Pipeline) buildAllClips(ctx context.Context, scenes []*storyboard.Scene) ([]*storyboard.SceneClip, error) {
	adapter := &clipAdapter{
		store:  p.store,
		remote: p.animation,
		media:  p.media,
		render: p.cfg.Render,
		tmpDir: p.tmpDir,
	}

	clips := make([]*storyboard.SceneClip, len(scenes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Render.Workers)

	for i, scene := range scenes {
		i, scene := i, scene
		g.Go(func() error {
			target := scene.TEnd - scene.TStart
			if err := adapter.EnsureSceneVideo(gctx, scene, target); err != nil {
				return fmt.Errorf("scene %d: ensure video: %w", scene.Index, err)
			}
			clip, err := p.BuildSceneClip(gctx, scene)
			if err != nil {
				return fmt.Errorf("scene %d: build clip: %w", scene.Index, err)
			}
			clips[i] = clip
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return clips, nil
}
