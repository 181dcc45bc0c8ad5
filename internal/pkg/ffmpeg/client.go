package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"mango/internal/pkg/id"
)

// Client FFmpeg 客户端
// 封装渲染管线用到的 FFmpeg/FFprobe 命令
type Client struct {
	ffmpegPath  string // FFmpeg 可执行文件路径（默认: ffmpeg）
	ffprobePath string // FFprobe 可执行文件路径（默认: ffprobe）
}

// NewClient 创建 FFmpeg 客户端
func NewClient() *Client {
	ffmpegPath := os.Getenv("FFMPEG_PATH")
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	ffprobePath := os.Getenv("FFPROBE_PATH")
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}

	return &Client{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

// VideoInfo 视频信息
type VideoInfo struct {
	Width    int
	Height   int
	FPS      float64
	Duration float64 // 秒
}

// probeOutput ffprobe -of json 的输出结构
type probeOutput struct {
	Streams []struct {
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"` // 形如 "30000/1001"
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// GetVideoInfo 获取视频信息
func (c *Client) GetVideoInfo(ctx context.Context, videoPath string) (*VideoInfo, error) {
	cmd := exec.CommandContext(ctx, c.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate",
		"-show_entries", "format=duration",
		"-of", "json",
		videoPath,
	)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probed probeOutput
	if err := json.Unmarshal(output, &probed); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &VideoInfo{}
	if len(probed.Streams) > 0 {
		s := probed.Streams[0]
		info.Width = s.Width
		info.Height = s.Height
		if num, den, ok := parseFrameRate(s.RFrameRate); ok && den > 0 {
			info.FPS = float64(num) / float64(den)
		}
	}
	if probed.Format.Duration != "" {
		info.Duration, _ = strconv.ParseFloat(probed.Format.Duration, 64)
	}

	return info, nil
}

// GetAudioDuration 获取音频时长（秒）
func (c *Client) GetAudioDuration(ctx context.Context, audioPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, c.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		audioPath,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probed probeOutput
	if err := json.Unmarshal(output, &probed); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if probed.Format.Duration == "" {
		return 0, fmt.Errorf("no duration in ffprobe output for %s", audioPath)
	}

	duration, err := strconv.ParseFloat(probed.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return duration, nil
}

// parseFrameRate 解析 "num/den" 形式的帧率
func parseFrameRate(s string) (num, den int, ok bool) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	num, err1 := strconv.Atoi(parts[0])
	den, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return num, den, true
}

// CreateKenBurnsVideo 从静帧生成带连续推近效果的视频
// 线性缩放 1.0 → 1.05、中心裁剪到输出画幅，精确渲染 duration 秒，
// 不依赖任何网络资源（图生视频失败时的确定性降级）
func (c *Client) CreateKenBurnsVideo(ctx context.Context, imagePath, outputPath string, duration float64, width, height, fps int) error {
	totalFrames := int(duration * float64(fps))
	if totalFrames < 1 {
		totalFrames = 1
	}

	// 每帧增量使缩放在片尾正好到 1.05
	zoomStep := 0.05 / float64(totalFrames)
	zoomEffect := fmt.Sprintf("zoompan=z='min(1.0+on*%.8f,1.05)':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=%d:s=%dx%d:fps=%d",
		zoomStep, totalFrames, width, height, fps)

	args := []string{
		"-y",
		"-loop", "1",
		"-i", imagePath,
		"-t", fmt.Sprintf("%.3f", duration),
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,%s",
			width, height, width, height, zoomEffect),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(fps),
		outputPath,
	}

	if err := c.run(ctx, args); err != nil {
		return fmt.Errorf("ffmpeg ken burns failed: %w", err)
	}

	log.Info().
		Str("image", imagePath).
		Str("output", outputPath).
		Float64("duration", duration).
		Msg("静帧推近视频生成成功")

	return nil
}

// ConcatVideos 按 concat demuxer 硬切拼接视频
// 同源循环补时长走这里（硬切，不做交叉淡化）
func (c *Client) ConcatVideos(ctx context.Context, videoPaths []string, outputPath string) error {
	if len(videoPaths) == 0 {
		return fmt.Errorf("no videos to concat")
	}

	tempDir := filepath.Dir(outputPath)
	concatListFile := filepath.Join(tempDir, fmt.Sprintf("concat_list_%s.txt", id.New()))

	file, err := os.Create(concatListFile)
	if err != nil {
		return fmt.Errorf("create concat list file: %w", err)
	}
	defer os.Remove(concatListFile)

	for _, videoPath := range videoPaths {
		absPath, err := filepath.Abs(videoPath)
		if err != nil {
			file.Close()
			return fmt.Errorf("get absolute path: %w", err)
		}
		fmt.Fprintf(file, "file '%s'\n", absPath)
	}
	file.Close()

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", concatListFile,
		"-c", "copy", // 同编码拼接，避免重新编码
		outputPath,
	}

	if err := c.run(ctx, args); err != nil {
		return fmt.Errorf("ffmpeg concat failed: %w", err)
	}

	return nil
}

// TrimVideo 裁剪视频到指定时长
func (c *Client) TrimVideo(ctx context.Context, inputPath, outputPath string, duration float64) error {
	args := []string{
		"-y",
		"-i", inputPath,
		"-t", fmt.Sprintf("%.3f", duration),
		"-c", "copy",
		outputPath,
	}

	if err := c.run(ctx, args); err != nil {
		return fmt.Errorf("ffmpeg trim failed: %w", err)
	}
	return nil
}

// StandardizeVideo 标准化视频（分辨率、帧率、编码）
// duration > 0 时同时把输出硬裁到该时长（重编码下裁剪逐帧精确）
func (c *Client) StandardizeVideo(ctx context.Context, inputPath, outputPath string, width, height, fps int, duration float64) error {
	vf := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d:(in_w-%d)/2:(in_h-%d)/2,setsar=1",
		width, height, width, height, width, height)

	args := []string{
		"-y",
		"-i", inputPath,
	}
	if duration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.3f", duration))
	}
	args = append(args,
		"-map", "0:v:0",
		"-map", "0:a?", // 可选音频流
		"-vf", vf,
		"-r", strconv.Itoa(fps),
		"-c:v", "libx264",
		"-crf", "20",
		"-preset", "medium",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "160k",
		"-movflags", "+faststart",
		outputPath,
	)

	if err := c.run(ctx, args); err != nil {
		return fmt.Errorf("ffmpeg standardize failed: %w", err)
	}

	return nil
}

// AddSubtitles 烧录字幕到视频（ASS 格式）
func (c *Client) AddSubtitles(ctx context.Context, videoPath, assPath, outputPath string) error {
	args := []string{
		"-y",
		"-i", videoPath,
		"-vf", fmt.Sprintf("ass=%s", assPath),
		"-c:v", "libx264",
		"-c:a", "copy",
		outputPath,
	}

	if err := c.run(ctx, args); err != nil {
		return fmt.Errorf("ffmpeg add subtitles failed: %w", err)
	}

	return nil
}

// ReplaceAudio 用场景解说音频替换视频音轨
// audioLimit > 0 时把音频硬裁到该时长（音频超出画面的场景）；
// 音频偏短时用 apad 补静音，保证画面时长不被 -shortest 截短
func (c *Client) ReplaceAudio(ctx context.Context, videoPath, audioPath, outputPath string, audioLimit float64) error {
	af := "apad"
	if audioLimit > 0 {
		af = fmt.Sprintf("atrim=0:%.3f,apad", audioLimit)
	}

	args := []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "160k",
		"-af", af,
		"-shortest",
		outputPath,
	}

	if err := c.run(ctx, args); err != nil {
		return fmt.Errorf("ffmpeg replace audio failed: %w", err)
	}
	return nil
}

// AddSilentAudio 为无解说场景补一条静音音轨
// 交叉淡化拼接要求每个片段都有音频流
func (c *Client) AddSilentAudio(ctx context.Context, videoPath, outputPath string) error {
	args := []string{
		"-y",
		"-i", videoPath,
		"-f", "lavfi",
		"-i", "anullsrc=channel_layout=stereo:sample_rate=44100",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		outputPath,
	}

	if err := c.run(ctx, args); err != nil {
		return fmt.Errorf("ffmpeg add silent audio failed: %w", err)
	}
	return nil
}

// ExportOptions 最终导出参数
type ExportOptions struct {
	Width        int
	Height       int
	FPS          int
	VideoBitrate string
	AudioBitrate string
}

// ConcatWithCrossfade 按场景顺序交叉淡化拼接片段
// 相邻边界各吃掉 fade 秒（负毗连重叠），总时长 = Σ时长 − (n−1)·fade
func (c *Client) ConcatWithCrossfade(ctx context.Context, videoPaths []string, durations []float64, outputPath string, fade float64, opts ExportOptions) error {
	if len(videoPaths) == 0 {
		return fmt.Errorf("no videos to concat")
	}
	if len(videoPaths) != len(durations) {
		return fmt.Errorf("paths/durations length mismatch: %d != %d", len(videoPaths), len(durations))
	}

	args := []string{"-y"}
	for _, p := range videoPaths {
		args = append(args, "-i", p)
	}

	encodeArgs := []string{
		"-c:v", "libx264",
		"-b:v", opts.VideoBitrate,
		"-preset", "medium",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(opts.FPS),
		"-c:a", "aac",
		"-b:a", opts.AudioBitrate,
		"-movflags", "+faststart",
	}

	if len(videoPaths) == 1 {
		// 单场景无需淡化，仅统一导出编码
		args = append(args, encodeArgs...)
		args = append(args, outputPath)
		if err := c.run(ctx, args); err != nil {
			return fmt.Errorf("ffmpeg export failed: %w", err)
		}
		return nil
	}

	graph, err := BuildCrossfadeGraph(durations, fade)
	if err != nil {
		return err
	}

	args = append(args, "-filter_complex", graph,
		"-map", "[vout]",
		"-map", "[aout]",
	)
	args = append(args, encodeArgs...)
	args = append(args, outputPath)

	if err := c.run(ctx, args); err != nil {
		return fmt.Errorf("ffmpeg crossfade concat failed: %w", err)
	}

	log.Info().
		Int("count", len(videoPaths)).
		Float64("fade", fade).
		Str("output", outputPath).
		Msg("交叉淡化拼接成功")

	return nil
}

// BuildCrossfadeGraph 构造 xfade/acrossfade 滤镜图
// 第 k 次淡化的 offset = Σd(0..k) − (k+1)·fade
func BuildCrossfadeGraph(durations []float64, fade float64) (string, error) {
	n := len(durations)
	if n < 2 {
		return "", fmt.Errorf("crossfade graph needs at least 2 clips")
	}
	for i, d := range durations {
		if d <= fade {
			return "", fmt.Errorf("clip %d duration %.3f must exceed fade %.3f", i, d, fade)
		}
	}

	var sb strings.Builder

	// 视频链: [0:v][1:v]xfade[v1]; [v1][2:v]xfade[v2]; ...
	prev := "[0:v]"
	elapsed := durations[0]
	for i := 1; i < n; i++ {
		offset := elapsed - float64(i)*fade
		out := fmt.Sprintf("[v%d]", i)
		if i == n-1 {
			out = "[vout]"
		}
		sb.WriteString(fmt.Sprintf("%s[%d:v]xfade=transition=fade:duration=%.3f:offset=%.3f%s;",
			prev, i, fade, offset, out))
		prev = out
		elapsed += durations[i]
	}

	// 音频链: [0:a][1:a]acrossfade[a1]; ...
	prev = "[0:a]"
	for i := 1; i < n; i++ {
		out := fmt.Sprintf("[a%d]", i)
		if i == n-1 {
			out = "[aout]"
		}
		sb.WriteString(fmt.Sprintf("%s[%d:a]acrossfade=d=%.3f%s", prev, i, fade, out))
		if i != n-1 {
			sb.WriteString(";")
		}
		prev = out
	}

	return sb.String(), nil
}

// MixBackgroundMusic 将背景音乐循环/裁剪到视频时长并衰减混入
func (c *Client) MixBackgroundMusic(ctx context.Context, videoPath, musicPath, outputPath string, gain float64) error {
	filter := fmt.Sprintf("[1:a]volume=%.3f[bgm];[0:a][bgm]amix=inputs=2:duration=first:dropout_transition=0[aout]", gain)

	args := []string{
		"-y",
		"-i", videoPath,
		"-stream_loop", "-1",
		"-i", musicPath,
		"-filter_complex", filter,
		"-map", "0:v:0",
		"-map", "[aout]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "160k",
		"-shortest",
		outputPath,
	}

	if err := c.run(ctx, args); err != nil {
		return fmt.Errorf("ffmpeg mix music failed: %w", err)
	}

	log.Info().
		Str("video", videoPath).
		Str("music", musicPath).
		Float64("gain", gain).
		Msg("背景音乐混入成功")

	return nil
}

// run 执行 ffmpeg 命令
func (c *Client) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// 只保留末尾输出，ffmpeg 的报错在最后几行
		out := stderr.String()
		if len(out) > 2048 {
			out = out[len(out)-2048:]
		}
		return fmt.Errorf("%w: %s", err, out)
	}
	return nil
}
