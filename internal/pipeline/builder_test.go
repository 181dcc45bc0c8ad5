package pipeline

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"mango/internal/config"
	"mango/internal/model/storyboard"
	"mango/internal/pkg/subtitle"
)

func newTestPipeline(t *testing.T, store *memStore, media *stubMedia) *Pipeline {
	t.Helper()
	cfg := &config.Config{
		Render: config.RenderConfig{
			Width: 720, Height: 1280, FPS: 30,
			Crossfade: 0.18, Workers: 2, AudioTrimTol: 0.05,
		},
		Subtitle: config.SubtitleConfig{
			Enabled: true, ReadingSpeed: 2.5, MaxSegmentSecs: 3.0, MaxCharsPerLine: 14,
		},
	}
	return &Pipeline{
		cfg:       cfg,
		store:     store,
		media:     media,
		segmenter: subtitle.NewSegmenter(cfg.Subtitle),
		ass:       subtitle.NewASSGenerator(subtitle.ASSStyle{PlayResX: 720, PlayResY: 1280}),
		tmpDir:    t.TempDir(),
	}
}

func TestPipeline_BuildSceneClip(t *testing.T) {
	Convey("BuildSceneClip 合成场景成品片段", t, func() {
		ctx := context.Background()

		Convey("有解说场景烧字幕并换上解说音轨", func() {
			store := newMemStore()
			store.put(VideoKey(0), []byte("video"))
			store.put(AudioKey(0), []byte("audio"))
			media := &stubMedia{audioDuration: 4.2}
			p := newTestPipeline(t, store, media)

			sc := &storyboard.Scene{Index: 0, TStart: 0, TEnd: 4.2, Narration: "这是场景解说文本"}
			clip, err := p.BuildSceneClip(ctx, sc)
			So(err, ShouldBeNil)
			So(clip.SceneIndex, ShouldEqual, 0)
			So(clip.Key, ShouldEqual, ClipKey(0))
			So(clip.Duration, ShouldAlmostEqual, 4.2)

			So(media.called("StandardizeVideo"), ShouldEqual, 1)
			So(media.called("AddSubtitles"), ShouldEqual, 1)
			So(media.called("ReplaceAudio"), ShouldEqual, 1)
			So(media.called("AddSilentAudio"), ShouldEqual, 0)

			exists, _ := store.Exists(ctx, ClipKey(0))
			So(exists, ShouldBeTrue)
		})

		Convey("无解说场景不烧字幕并补静音轨", func() {
			store := newMemStore()
			store.put(VideoKey(1), []byte("video"))
			media := &stubMedia{}
			p := newTestPipeline(t, store, media)

			sc := &storyboard.Scene{Index: 1, TStart: 4.2, TEnd: 6.7}
			clip, err := p.BuildSceneClip(ctx, sc)
			So(err, ShouldBeNil)
			So(clip.Duration, ShouldAlmostEqual, 2.5)

			So(media.called("AddSubtitles"), ShouldEqual, 0)
			So(media.called("AddSilentAudio"), ShouldEqual, 1)
			So(media.called("ReplaceAudio"), ShouldEqual, 0)
		})

		Convey("关闭字幕时有解说场景也不烧字幕", func() {
			store := newMemStore()
			store.put(VideoKey(0), []byte("video"))
			store.put(AudioKey(0), []byte("audio"))
			media := &stubMedia{audioDuration: 4.2}
			p := newTestPipeline(t, store, media)
			p.cfg.Subtitle.Enabled = false

			sc := &storyboard.Scene{Index: 0, TStart: 0, TEnd: 4.2, Narration: "解说"}
			_, err := p.BuildSceneClip(ctx, sc)
			So(err, ShouldBeNil)
			So(media.called("AddSubtitles"), ShouldEqual, 0)
			So(media.called("ReplaceAudio"), ShouldEqual, 1)
		})

		Convey("成品已缓存时不发任何合成调用", func() {
			store := newMemStore()
			store.put(ClipKey(0), []byte("cached"))
			media := &stubMedia{}
			p := newTestPipeline(t, store, media)

			sc := &storyboard.Scene{Index: 0, TStart: 0, TEnd: 4.2, Narration: "解说"}
			clip, err := p.BuildSceneClip(ctx, sc)
			So(err, ShouldBeNil)
			So(clip.Duration, ShouldAlmostEqual, 4.2)
			So(media.calls, ShouldBeEmpty)
		})

		Convey("场景视频缺失时报错", func() {
			store := newMemStore()
			media := &stubMedia{}
			p := newTestPipeline(t, store, media)

			sc := &storyboard.Scene{Index: 0, TStart: 0, TEnd: 4.2}
			_, err := p.BuildSceneClip(ctx, sc)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestPipeline_Assemble(t *testing.T) {
	Convey("Assemble 把场景片段拼成成片", t, func() {
		ctx := context.Background()

		Convey("全部片段齐备时交叉淡化拼接并落到输出路径", func() {
			store := newMemStore()
			store.put(ClipKey(0), []byte("c0"))
			store.put(ClipKey(1), []byte("c1"))
			media := &stubMedia{}
			p := newTestPipeline(t, store, media)

			clips := []*storyboard.SceneClip{
				{SceneIndex: 0, Key: ClipKey(0), Duration: 4.2},
				{SceneIndex: 1, Key: ClipKey(1), Duration: 3.0},
			}
			outputPath := t.TempDir() + "/final.mp4"

			err := p.Assemble(ctx, clips, outputPath, "")
			So(err, ShouldBeNil)
			So(media.called("ConcatWithCrossfade"), ShouldEqual, 1)
			So(media.called("MixBackgroundMusic"), ShouldEqual, 0)
			So(fileExists(outputPath), ShouldBeTrue)
		})

		Convey("指定背景音乐时混入音乐", func() {
			store := newMemStore()
			store.put(ClipKey(0), []byte("c0"))
			media := &stubMedia{}
			p := newTestPipeline(t, store, media)

			clips := []*storyboard.SceneClip{{SceneIndex: 0, Key: ClipKey(0), Duration: 4.2}}
			outputPath := t.TempDir() + "/final.mp4"

			err := p.Assemble(ctx, clips, outputPath, "music.mp3")
			So(err, ShouldBeNil)
			So(media.called("MixBackgroundMusic"), ShouldEqual, 1)
		})

		Convey("任一片段缺失时在编码前失败", func() {
			store := newMemStore()
			store.put(ClipKey(0), []byte("c0"))
			media := &stubMedia{}
			p := newTestPipeline(t, store, media)

			clips := []*storyboard.SceneClip{
				{SceneIndex: 0, Key: ClipKey(0), Duration: 4.2},
				{SceneIndex: 1, Key: ClipKey(1), Duration: 3.0},
			}

			err := p.Assemble(ctx, clips, t.TempDir()+"/final.mp4", "")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "missing before assembly")
			So(media.called("ConcatWithCrossfade"), ShouldEqual, 0)
		})

		Convey("空片段列表报错", func() {
			p := newTestPipeline(t, newMemStore(), &stubMedia{})
			err := p.Assemble(ctx, nil, t.TempDir()+"/final.mp4", "")
			So(err, ShouldNotBeNil)
		})
	})
}
