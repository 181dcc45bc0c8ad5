package subtitle

import (
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"mango/internal/config"
)

func defaultSegmenter() *Segmenter {
	return NewSegmenter(config.SubtitleConfig{
		ReadingSpeed:    2.5,
		MaxSegmentSecs:  3.0,
		MaxCharsPerLine: 14,
	})
}

func TestSegmenter_Segment(t *testing.T) {
	Convey("Segmenter.Segment 把解说切成覆盖整段时长的字幕窗口", t, func() {
		s := defaultSegmenter()

		Convey("空文本返回空列表", func() {
			So(s.Segment("", 5.0), ShouldBeNil)
			So(s.Segment("   \n  ", 5.0), ShouldBeNil)
		})

		Convey("时长非正返回空列表", func() {
			So(s.Segment("有内容", 0), ShouldBeNil)
			So(s.Segment("有内容", -1), ShouldBeNil)
		})

		Convey("窗口首尾相接且总跨度严格等于片段时长", func() {
			text := "主角推开沉重的石门，火把的光照亮了尘封千年的墓室，四壁的壁画在摇曳的光影里仿佛活了过来"
			segments := s.Segment(text, 9.37)
			So(len(segments), ShouldBeGreaterThan, 1)

			So(segments[0].Start, ShouldAlmostEqual, 0)
			for i := 1; i < len(segments); i++ {
				So(segments[i].Start, ShouldAlmostEqual, segments[i-1].End)
			}
			So(segments[len(segments)-1].End, ShouldAlmostEqual, 9.37)

			for _, seg := range segments {
				So(seg.End, ShouldBeGreaterThan, seg.Start)
			}
		})

		Convey("短文本落在单个窗口", func() {
			segments := s.Segment("你好", 2.0)
			So(segments, ShouldHaveLength, 1)
			So(segments[0].Start, ShouldAlmostEqual, 0)
			So(segments[0].End, ShouldAlmostEqual, 2.0)
		})

		Convey("每行不超过单行字符上限", func() {
			text := "这是一段相当长的解说文本，用来验证折行逻辑是否会把任何一行撑到超过设定的单行字符上限"
			segments := s.Segment(text, 12.0)
			So(len(segments), ShouldBeGreaterThan, 0)

			for _, seg := range segments {
				for _, line := range strings.Split(seg.Text, "\n") {
					So(len([]rune(line)), ShouldBeLessThanOrEqualTo, 14)
				}
			}
		})

		Convey("拉丁词之间保留空格且不在词内断行", func() {
			segments := s.Segment("the quick brown fox jumps over", 4.0)
			So(len(segments), ShouldBeGreaterThan, 0)

			for _, seg := range segments {
				for _, line := range strings.Split(seg.Text, "\n") {
					So(len(line), ShouldBeLessThanOrEqualTo, 14)
					for _, word := range strings.Fields(line) {
						So("the quick brown fox jumps over", ShouldContainSubstring, word)
					}
				}
			}
		})
	})
}

func TestSegmenter_Defaults(t *testing.T) {
	Convey("非法配置回落到默认值", t, func() {
		s := NewSegmenter(config.SubtitleConfig{})
		So(s.readingSpeed, ShouldAlmostEqual, 2.5)
		So(s.maxSegmentSecs, ShouldAlmostEqual, 3.0)
		So(s.maxCharsPerLine, ShouldEqual, 14)
	})
}

func TestSegmenter_Tokenize(t *testing.T) {
	Convey("tokenize 在有无分词器时都产出可用的词序列", t, func() {
		Convey("NewSegmenter 构造的切分器可直接切分", func() {
			s := defaultSegmenter()
			words := s.tokenize("镜头缓慢推进")
			So(len(words), ShouldBeGreaterThan, 0)
			So(strings.Join(words, ""), ShouldEqual, "镜头缓慢推进")
		})

		Convey("无分词器时降级为按字符切词", func() {
			s := defaultSegmenter()
			s.segmenter = nil

			words := s.tokenize("镜头推进")
			So(words, ShouldResemble, []string{"镜", "头", "推", "进"})

			segments := s.Segment("镜头缓慢推进照亮墓室", 4.0)
			So(len(segments), ShouldBeGreaterThan, 0)
			So(segments[len(segments)-1].End, ShouldAlmostEqual, 4.0)
		})
	})
}

func TestASSGenerator_Generate(t *testing.T) {
	Convey("ASSGenerator.Generate 输出合法的 ASS 文档", t, func() {
		g := NewASSGenerator(ASSStyle{FontName: "Microsoft YaHei", FontSize: 36})

		segments := []Segment{
			{Text: "第一句", Start: 0, End: 2.5},
			{Text: "第二句\n折行了", Start: 2.5, End: 5.0},
		}
		doc := g.Generate(segments, "scene_000")

		So(doc, ShouldContainSubstring, "[Script Info]")
		So(doc, ShouldContainSubstring, "[V4+ Styles]")
		So(doc, ShouldContainSubstring, "[Events]")
		So(doc, ShouldContainSubstring, "Microsoft YaHei")

		Convey("时间格式为 H:MM:SS.CC", func() {
			So(doc, ShouldContainSubstring, "0:00:00.00")
			So(doc, ShouldContainSubstring, "0:00:02.50")
		})

		Convey("换行转义为 ASS 的 \\N", func() {
			So(doc, ShouldContainSubstring, `第二句\N折行了`)
			So(strings.Count(doc, "Dialogue:"), ShouldEqual, 2)
		})
	})
}
