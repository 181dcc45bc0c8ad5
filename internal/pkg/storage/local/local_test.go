package local

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLocalStorage(t *testing.T) {
	Convey("LocalStorage 本地产物存储", t, func() {
		ctx := context.Background()
		base := t.TempDir()

		store, err := NewLocalStorage(base)
		So(err, ShouldBeNil)
		So(store.GetStorageType(), ShouldEqual, "local")

		Convey("Put 后 Exists 可见且 Get 读回原内容", func() {
			key := "audio/scene_000.mp3"
			content := []byte("mp3-bytes")

			So(store.Put(ctx, key, bytes.NewReader(content)), ShouldBeNil)

			exists, err := store.Exists(ctx, key)
			So(err, ShouldBeNil)
			So(exists, ShouldBeTrue)

			reader, err := store.Get(ctx, key)
			So(err, ShouldBeNil)
			defer reader.Close()
			got, err := io.ReadAll(reader)
			So(err, ShouldBeNil)
			So(got, ShouldResemble, content)
		})

		Convey("Put 自动创建嵌套目录", func() {
			key := "clips/deep/scene_001.mp4"
			So(store.Put(ctx, key, strings.NewReader("v")), ShouldBeNil)

			_, err := os.Stat(filepath.Join(base, key))
			So(err, ShouldBeNil)
		})

		Convey("Put 完成后目录中不残留临时文件", func() {
			key := "videos/scene_000.mp4"
			So(store.Put(ctx, key, strings.NewReader("v")), ShouldBeNil)

			entries, err := os.ReadDir(filepath.Join(base, "videos"))
			So(err, ShouldBeNil)
			for _, e := range entries {
				So(strings.HasPrefix(e.Name(), ".put-"), ShouldBeFalse)
			}
		})

		Convey("同一 key 重复 Put 覆盖旧内容", func() {
			key := "audio/scene_000.mp3"
			So(store.Put(ctx, key, strings.NewReader("old")), ShouldBeNil)
			So(store.Put(ctx, key, strings.NewReader("new")), ShouldBeNil)

			reader, err := store.Get(ctx, key)
			So(err, ShouldBeNil)
			defer reader.Close()
			got, _ := io.ReadAll(reader)
			So(string(got), ShouldEqual, "new")
		})

		Convey("不存在的 key：Exists 为假、Get 报错、Delete 幂等", func() {
			exists, err := store.Exists(ctx, "missing/key.bin")
			So(err, ShouldBeNil)
			So(exists, ShouldBeFalse)

			_, err = store.Get(ctx, "missing/key.bin")
			So(err, ShouldNotBeNil)

			So(store.Delete(ctx, "missing/key.bin"), ShouldBeNil)
		})

		Convey("Delete 后 Exists 为假", func() {
			key := "images/scene_000.jpg"
			So(store.Put(ctx, key, strings.NewReader("jpg")), ShouldBeNil)
			So(store.Delete(ctx, key), ShouldBeNil)

			exists, _ := store.Exists(ctx, key)
			So(exists, ShouldBeFalse)
		})
	})
}
