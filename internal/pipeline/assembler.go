package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"

	"mango/internal/model/storyboard"
	"mango/internal/pkg/ffmpeg"
	"mango/internal/pkg/id"
)

// Assemble 把全部场景片段交叉淡化拼成成片
// 开工前整体校验片段齐全，缺任何一个都在编码前失败。
// 交叉淡化偏移按重排后的场景时长计算，成片总时长 = Σ时长 − (n−1)×fade。
// 输出先落临时文件再原子挪到目标路径，失败不会留下半成品
func (p *Pipeline) Assemble(ctx context.Context, clips []*storyboard.SceneClip, outputPath, musicPath string) error {
	if len(clips) == 0 {
		return fmt.Errorf("no scene clips to assemble")
	}

	sort.Slice(clips, func(i, j int) bool {
		return clips[i].SceneIndex < clips[j].SceneIndex
	})

	// 编码前整体校验
	for _, clip := range clips {
		exists, err := p.store.Exists(ctx, clip.Key)
		if err != nil {
			return fmt.Errorf("check clip %s: %w", clip.Key, err)
		}
		if !exists {
			return fmt.Errorf("scene %d: clip %s missing before assembly", clip.SceneIndex, clip.Key)
		}
	}

	paths := make([]string, len(clips))
	durations := make([]float64, len(clips))
	for i, clip := range clips {
		path, err := fetchToTemp(ctx, p.store, clip.Key, p.tmpDir, ".mp4")
		if err != nil {
			return fmt.Errorf("fetch clip %s: %w", clip.Key, err)
		}
		defer os.Remove(path)
		paths[i] = path
		durations[i] = clip.Duration
	}

	mergedPath := filepath.Join(p.tmpDir, id.New()+".mp4")
	opts := ffmpeg.ExportOptions{
		Width:        p.cfg.Render.Width,
		Height:       p.cfg.Render.Height,
		FPS:          p.cfg.Render.FPS,
		VideoBitrate: p.cfg.Render.VideoBitrate,
		AudioBitrate: p.cfg.Render.AudioBitrate,
	}
	if err := p.media.ConcatWithCrossfade(ctx, paths, durations, mergedPath,
		p.cfg.Render.Crossfade, opts); err != nil {
		return fmt.Errorf("concat with crossfade: %w", err)
	}
	defer os.Remove(mergedPath)

	finalPath := mergedPath
	if musicPath != "" {
		mixedPath := filepath.Join(p.tmpDir, id.New()+".mp4")
		if err := p.media.MixBackgroundMusic(ctx, mergedPath, musicPath, mixedPath,
			p.cfg.Render.MusicGain); err != nil {
			return fmt.Errorf("mix background music: %w", err)
		}
		defer os.Remove(mixedPath)
		finalPath = mixedPath
	}

	if err := moveFile(finalPath, outputPath); err != nil {
		return fmt.Errorf("move output: %w", err)
	}

	total := 0.0
	for _, d := range durations {
		total += d
	}
	if len(durations) > 1 {
		total -= float64(len(durations)-1) * p.cfg.Render.Crossfade
	}

	log.Info().
		Str("output", outputPath).
		Int("scenes", len(clips)).
		Float64("total_duration", total).
		Msg("成片装配完成")

	return nil
}

// moveFile 原子落盘：先 rename，跨设备时退化为拷贝加删除
func moveFile(srcPath, dstPath string) error {
	if dir := filepath.Dir(dstPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	if err := os.Rename(srcPath, dstPath); err == nil {
		return nil
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	tmpPath := dstPath + ".part"
	dst, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dstPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	os.Remove(srcPath)
	return nil
}
