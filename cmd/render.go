package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mango/internal/pipeline"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a storyboard into a single video file",
	Long: `Render reads a storyboard document, synthesizes narration for each
scene, reconciles the scene timeline from measured audio durations,
obtains a duration-matched video per scene and assembles the final file.
Already-produced per-scene artifacts in the working directory are reused.`,
	RunE: runRender,
}

var (
	storyboardPath string
	outputPath     string
	musicPath      string
)

func init() {
	rootCmd.AddCommand(renderCmd)

	flags := renderCmd.Flags()

	flags.StringVarP(&storyboardPath, "storyboard", "s", "", "storyboard JSON file (required)")
	flags.StringVarP(&outputPath, "output", "o", "output.mp4", "output video file")
	flags.StringVarP(&musicPath, "music", "m", "", "background music file (optional)")

	// Storage / render flags
	flags.StringP("workdir", "w", "./workdir", "working directory for per-scene artifacts")
	flags.Bool("subtitles", true, "burn subtitles into scene clips")
	flags.Int("workers", 2, "max concurrent scenes for synthesis and animation")

	// TTS / animation flags
	flags.String("voice", "BV115_streaming", "TTS voice type")
	flags.String("tts-token", "", "TTS access token (recommend env: MANGO_TTS_ACCESS_TOKEN)")
	flags.String("ark-api-key", "", "Ark API key (recommend env: MANGO_ANIMATION_API_KEY)")

	_ = renderCmd.MarkFlagRequired("storyboard")

	// Bind flags to viper
	_ = viper.BindPFlag("storage.local.base_path", flags.Lookup("workdir"))
	_ = viper.BindPFlag("subtitle.enabled", flags.Lookup("subtitles"))
	_ = viper.BindPFlag("render.workers", flags.Lookup("workers"))
	_ = viper.BindPFlag("tts.voice_type", flags.Lookup("voice"))
	_ = viper.BindPFlag("tts.access_token", flags.Lookup("tts-token"))
	_ = viper.BindPFlag("animation.api_key", flags.Lookup("ark-api-key"))
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	// Validate config
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	// Ctrl-C 中止：已落盘的产物保留，重跑时从断点续作
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	if err := p.Run(ctx, storyboardPath, outputPath, musicPath); err != nil {
		log.Error().Err(err).Msg("render failed")
		return err
	}

	log.Info().Str("output", outputPath).Msg("render completed")
	return nil
}
