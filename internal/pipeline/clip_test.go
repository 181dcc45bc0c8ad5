package pipeline

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"mango/internal/config"
	"mango/internal/model/storyboard"
)

func newTestAdapter(t *testing.T, store *memStore, remote animationClient, media *stubMedia) *clipAdapter {
	t.Helper()
	return &clipAdapter{
		store:  store,
		remote: remote,
		media:  media,
		render: config.RenderConfig{Width: 720, Height: 1280, FPS: 30},
		tmpDir: t.TempDir(),
	}
}

func TestClipAdapter_EnsureSceneVideo(t *testing.T) {
	Convey("EnsureSceneVideo 保证场景视频落盘且时长达标", t, func() {
		ctx := context.Background()
		sc := &storyboard.Scene{Index: 0, TEnd: 8.0, Narration: "解说", MotionPrompt: "缓慢推近"}

		Convey("远端返回 5s 片段、目标 8s 时循环两份再裁到 8s", func() {
			store := newMemStore()
			store.put(ImageKey(0), []byte("jpeg"))
			remote := &stubAnimation{video: []byte("mp4")}
			media := &stubMedia{videoDuration: 5.0}
			adapter := newTestAdapter(t, store, remote, media)

			err := adapter.EnsureSceneVideo(ctx, sc, 8.0)
			So(err, ShouldBeNil)

			So(remote.calls, ShouldEqual, 1)
			So(remote.requestedSecs[0], ShouldEqual, 8)
			So(media.concatCounts, ShouldResemble, []int{2})
			So(media.trimDurations, ShouldHaveLength, 1)
			So(media.trimDurations[0], ShouldAlmostEqual, 8.0)

			exists, _ := store.Exists(ctx, VideoKey(0))
			So(exists, ShouldBeTrue)
		})

		Convey("片段时长已达标时不做循环裁剪", func() {
			store := newMemStore()
			store.put(ImageKey(0), []byte("jpeg"))
			remote := &stubAnimation{video: []byte("mp4")}
			media := &stubMedia{videoDuration: 8.0}
			adapter := newTestAdapter(t, store, remote, media)

			err := adapter.EnsureSceneVideo(ctx, sc, 8.0)
			So(err, ShouldBeNil)
			So(media.called("ConcatVideos"), ShouldEqual, 0)
			So(media.called("TrimVideo"), ShouldEqual, 0)
		})

		Convey("远端失败时降级为本地静帧推近且不上抛错误", func() {
			store := newMemStore()
			store.put(ImageKey(0), []byte("jpeg"))
			remote := &stubAnimation{err: errors.New("poll timed out after 900s")}
			media := &stubMedia{videoDuration: 8.0}
			adapter := newTestAdapter(t, store, remote, media)

			err := adapter.EnsureSceneVideo(ctx, sc, 8.0)
			So(err, ShouldBeNil)

			So(media.called("CreateKenBurnsVideo"), ShouldEqual, 1)
			So(media.kenBurnsDurations[0], ShouldAlmostEqual, 8.0)

			exists, _ := store.Exists(ctx, VideoKey(0))
			So(exists, ShouldBeTrue)
		})

		Convey("未配置远端客户端时直接走本地降级", func() {
			store := newMemStore()
			store.put(ImageKey(0), []byte("jpeg"))
			media := &stubMedia{videoDuration: 8.0}
			adapter := newTestAdapter(t, store, nil, media)

			err := adapter.EnsureSceneVideo(ctx, sc, 8.0)
			So(err, ShouldBeNil)
			So(media.called("CreateKenBurnsVideo"), ShouldEqual, 1)
		})

		Convey("视频已缓存时不发任何生成请求", func() {
			store := newMemStore()
			store.put(VideoKey(0), []byte("cached"))
			remote := &stubAnimation{video: []byte("mp4")}
			media := &stubMedia{videoDuration: 8.0}
			adapter := newTestAdapter(t, store, remote, media)

			err := adapter.EnsureSceneVideo(ctx, sc, 8.0)
			So(err, ShouldBeNil)
			So(remote.calls, ShouldEqual, 0)
			So(media.calls, ShouldBeEmpty)
		})

		Convey("场景静帧缺失时报错", func() {
			store := newMemStore()
			media := &stubMedia{videoDuration: 8.0}
			adapter := newTestAdapter(t, store, nil, media)

			err := adapter.EnsureSceneVideo(ctx, sc, 8.0)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestLoopRepeats(t *testing.T) {
	Convey("loopRepeats 计算覆盖目标时长所需的份数", t, func() {
		So(loopRepeats(5.0, 8.0), ShouldEqual, 2)
		So(loopRepeats(5.0, 5.0), ShouldEqual, 1)
		So(loopRepeats(5.0, 15.0), ShouldEqual, 3)
		So(loopRepeats(5.0, 15.1), ShouldEqual, 4)
		So(loopRepeats(12.0, 3.0), ShouldEqual, 1)
	})
}
