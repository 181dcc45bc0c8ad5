package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mango/internal/config"
	"mango/internal/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "mango",
	Short: "Mango - storyboard to short video renderer",
	Long: `Mango turns a structured storyboard into a finished vertical video.
Scene pacing is driven by the measured duration of synthesized narration,
scene visuals come from an image-to-video provider with a deterministic
local fallback, and everything is composited with FFmpeg.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ./configs/config.yaml)")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.mango")
	}

	// 环境变量设置
	viper.SetEnvPrefix("MANGO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 设置默认值
	setDefaults()

	// 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			fmt.Fprintln(os.Stderr, "No config file found, using defaults and environment variables")
		} else {
			fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
			os.Exit(1)
		}
	}

	// 反序列化到结构体
	cfg = &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to unmarshal config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	log.Debug().Str("config_file", viper.ConfigFileUsed()).Msg("configuration loaded")
}

func setDefaults() {
	// Log
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.time_format", "RFC3339")

	// Storage
	viper.SetDefault("storage.type", "local")
	viper.SetDefault("storage.local.base_path", "./workdir")

	// TTS
	viper.SetDefault("tts.api_url", "https://openspeech.bytedance.com/api/v1/tts")
	viper.SetDefault("tts.cluster", "volcano_tts")
	viper.SetDefault("tts.voice_type", "BV115_streaming")
	viper.SetDefault("tts.sample_rate", 44100)
	viper.SetDefault("tts.speed_ratio", 1.0)

	// Animation (图生视频)
	viper.SetDefault("animation.base_url", "https://ark.cn-beijing.volces.com/api/v3")
	viper.SetDefault("animation.model", "doubao-seedance-1-0-lite-i2v-250428")
	viper.SetDefault("animation.ratio", "9:16")
	viper.SetDefault("animation.max_duration", 12)
	viper.SetDefault("animation.poll_interval", "5s")
	viper.SetDefault("animation.poll_timeout", "900s")

	// Image (场景静帧生成)
	viper.SetDefault("image.generate_missing", false)
	viper.SetDefault("image.base_url", "https://ark.cn-beijing.volces.com/api/v3")
	viper.SetDefault("image.model", "doubao-seedream-3-0-t2i-250415")
	viper.SetDefault("image.size", "720x1280")

	// Render
	viper.SetDefault("render.width", 720)
	viper.SetDefault("render.height", 1280)
	viper.SetDefault("render.fps", 30)
	viper.SetDefault("render.crossfade", 0.18)
	viper.SetDefault("render.music_gain", 0.25)
	viper.SetDefault("render.workers", 2)
	viper.SetDefault("render.audio_trim_tol", 0.05)
	viper.SetDefault("render.video_bitrate", "2500k")
	viper.SetDefault("render.audio_bitrate", "160k")

	// Subtitle
	viper.SetDefault("subtitle.enabled", true)
	viper.SetDefault("subtitle.reading_speed", 2.5)
	viper.SetDefault("subtitle.max_segment_secs", 3.0)
	viper.SetDefault("subtitle.max_chars_per_line", 14)
	viper.SetDefault("subtitle.font_name", "Microsoft YaHei")
	viper.SetDefault("subtitle.font_size", 36)
}

// GetConfig returns the global configuration
func GetConfig() *config.Config {
	return cfg
}
