package config

import (
	"errors"
	"time"
)

// Config 应用配置根结构
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	TTS       TTSConfig       `mapstructure:"tts"`
	Animation AnimationConfig `mapstructure:"animation"`
	Image     ImageConfig     `mapstructure:"image"`
	Render    RenderConfig    `mapstructure:"render"`
	Subtitle  SubtitleConfig  `mapstructure:"subtitle"`
}

// LogConfig 日志配置 (Zerolog)
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	TimeFormat string `mapstructure:"time_format"`
}

// StorageConfig 产物存储配置
type StorageConfig struct {
	Type  string       `mapstructure:"type"` // local, oss
	Local *LocalConfig `mapstructure:"local,omitempty"`
	OSS   *OSSConfig   `mapstructure:"oss,omitempty"`
}

// LocalConfig 本地文件系统配置
type LocalConfig struct {
	BasePath string `mapstructure:"base_path"` // 工作目录，按场景编号存放产物
}

// OSSConfig 阿里云OSS配置
type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
}

// TTSConfig 语音合成配置（火山引擎 openspeech）
type TTSConfig struct {
	APIURL      string  `mapstructure:"api_url"`
	AccessToken string  `mapstructure:"access_token"`
	AppID       string  `mapstructure:"app_id"`
	Cluster     string  `mapstructure:"cluster"`
	VoiceType   string  `mapstructure:"voice_type"`
	SampleRate  int     `mapstructure:"sample_rate"`
	SpeedRatio  float64 `mapstructure:"speed_ratio"`
}

// AnimationConfig 图生视频任务配置（Ark contents/generations）
type AnimationConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	Ratio        string        `mapstructure:"ratio"`         // 如 "9:16"
	MaxDuration  int           `mapstructure:"max_duration"`  // 提供商单次生成上限（秒）
	PollInterval time.Duration `mapstructure:"poll_interval"` // 轮询间隔
	PollTimeout  time.Duration `mapstructure:"poll_timeout"`  // 轮询墙钟超时
}

// ImageConfig 场景静帧生成配置（Ark t2i，可选）
type ImageConfig struct {
	GenerateMissing bool   `mapstructure:"generate_missing"` // 缺图时是否生成，否则视为致命输入错误
	APIKey          string `mapstructure:"api_key"`
	BaseURL         string `mapstructure:"base_url"`
	Model           string `mapstructure:"model"`
	Size            string `mapstructure:"size"`
}

// RenderConfig 视频渲染配置
type RenderConfig struct {
	Width         int     `mapstructure:"width"`
	Height        int     `mapstructure:"height"`
	FPS           int     `mapstructure:"fps"`
	Crossfade     float64 `mapstructure:"crossfade"`      // 场景间交叉淡化时长（秒）
	MusicGain     float64 `mapstructure:"music_gain"`     // 背景音乐线性衰减
	Workers       int     `mapstructure:"workers"`        // 场景级并发上限
	AudioTrimTol  float64 `mapstructure:"audio_trim_tol"` // 音频超出画面的容忍（秒）
	VideoBitrate  string  `mapstructure:"video_bitrate"`
	AudioBitrate  string  `mapstructure:"audio_bitrate"`
}

// SubtitleConfig 字幕配置
type SubtitleConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	ReadingSpeed    float64 `mapstructure:"reading_speed"`      // 目标阅读速度（词/秒）
	MaxSegmentSecs  float64 `mapstructure:"max_segment_secs"`   // 单条字幕最长显示时间（秒）
	MaxCharsPerLine int     `mapstructure:"max_chars_per_line"` // 单行最大字符数
	FontName        string  `mapstructure:"font_name"`
	FontSize        int     `mapstructure:"font_size"`
}

// Validate 验证配置有效性
func (c *Config) Validate() error {
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return errors.New("invalid render resolution")
	}
	if c.Render.FPS <= 0 {
		return errors.New("invalid render fps")
	}
	if c.Render.Crossfade < 0 {
		return errors.New("crossfade must not be negative")
	}
	if c.Render.Workers <= 0 {
		return errors.New("render workers must be positive")
	}
	if c.Animation.PollInterval <= 0 || c.Animation.PollTimeout <= 0 {
		return errors.New("animation poll interval/timeout must be positive")
	}
	validStorage := map[string]bool{"local": true, "oss": true}
	if !validStorage[c.Storage.Type] {
		return errors.New("invalid storage type, must be local/oss")
	}
	return nil
}
