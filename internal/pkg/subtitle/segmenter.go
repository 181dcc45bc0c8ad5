package subtitle

import (
	"strings"

	"github.com/go-ego/gse"

	"mango/internal/config"
)

// Segment 单条字幕窗口
// 同一片段内的窗口首尾相接、互不重叠，总跨度恰好等于片段时长
type Segment struct {
	Text  string  // 已换行的展示文本
	Start float64 // 秒
	End   float64 // 秒
}

// Segmenter 字幕切分器
// 按目标阅读速度把解说文本切成时间盒窗口，在词边界换行
type Segmenter struct {
	readingSpeed    float64 // 词/秒
	maxSegmentSecs  float64 // 单窗口最长显示时间
	maxCharsPerLine int     // 单行最大字符数
	segmenter       *gse.Segmenter
}

// NewSegmenter 创建字幕切分器
func NewSegmenter(cfg config.SubtitleConfig) *Segmenter {
	readingSpeed := cfg.ReadingSpeed
	if readingSpeed <= 0 {
		readingSpeed = 2.5
	}
	maxSegmentSecs := cfg.MaxSegmentSecs
	if maxSegmentSecs <= 0 {
		maxSegmentSecs = 3.0
	}
	maxCharsPerLine := cfg.MaxCharsPerLine
	if maxCharsPerLine <= 0 {
		maxCharsPerLine = 14
	}

	// gse 初始化失败时降级为按字符切词
	var segmenter *gse.Segmenter
	if seg, err := gse.New(); err == nil {
		segmenter = &seg
	}

	return &Segmenter{
		readingSpeed:    readingSpeed,
		maxSegmentSecs:  maxSegmentSecs,
		maxCharsPerLine: maxCharsPerLine,
		segmenter:       segmenter,
	}
}

// Segment 把解说文本切成覆盖整个片段的字幕窗口
// 空文本返回空列表，不报错；窗口时间戳按词量加权分配，
// 末窗口吸收舍入余量，使总跨度严格等于 clipDuration
func (s *Segmenter) Segment(text string, clipDuration float64) []Segment {
	text = strings.TrimSpace(text)
	if text == "" || clipDuration <= 0 {
		return nil
	}

	words := s.tokenize(text)
	if len(words) == 0 {
		return nil
	}

	// 每窗口词数由阅读速度和窗口上限推出
	wordsPerSegment := int(s.readingSpeed * s.maxSegmentSecs)
	if wordsPerSegment < 1 {
		wordsPerSegment = 1
	}

	var groups [][]string
	for start := 0; start < len(words); start += wordsPerSegment {
		end := start + wordsPerSegment
		if end > len(words) {
			end = len(words)
		}
		groups = append(groups, words[start:end])
	}

	totalWords := len(words)
	segments := make([]Segment, 0, len(groups))
	cursor := 0.0
	for i, group := range groups {
		var end float64
		if i == len(groups)-1 {
			end = clipDuration // 末窗口吸收余量
		} else {
			end = cursor + clipDuration*float64(len(group))/float64(totalWords)
		}
		segments = append(segments, Segment{
			Text:  s.wrap(group),
			Start: cursor,
			End:   end,
		})
		cursor = end
	}

	return segments
}

// tokenize 文本 → 词序列（gse 词边界，过滤空白）
func (s *Segmenter) tokenize(text string) []string {
	var raw []string
	if s.segmenter != nil {
		raw = s.segmenter.Cut(text, false)
	} else {
		for _, r := range text {
			raw = append(raw, string(r))
		}
	}

	words := make([]string, 0, len(raw))
	for _, w := range raw {
		w = strings.TrimSpace(w)
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}

// wrap 把一组词折行，只在词边界断开，每行不超过 maxCharsPerLine
// 超长单词独占一行（词内不可断）
func (s *Segmenter) wrap(words []string) string {
	var lines []string
	var line strings.Builder
	lineLen := 0

	flush := func() {
		if lineLen > 0 {
			lines = append(lines, line.String())
			line.Reset()
			lineLen = 0
		}
	}

	for _, w := range words {
		wLen := len([]rune(w))
		// 拉丁词之间保留空格，中文词直接毗连
		sep := 0
		if lineLen > 0 && needsSpace(line.String(), w) {
			sep = 1
		}
		if lineLen > 0 && lineLen+sep+wLen > s.maxCharsPerLine {
			flush()
			sep = 0
		}
		if sep == 1 {
			line.WriteString(" ")
			lineLen++
		}
		line.WriteString(w)
		lineLen += wLen
	}
	flush()

	return strings.Join(lines, "\n")
}

// needsSpace 相邻两词之间是否需要空格（拉丁/数字词间需要）
func needsSpace(left, right string) bool {
	lr := []rune(left)
	rr := []rune(right)
	if len(lr) == 0 || len(rr) == 0 {
		return false
	}
	return isLatin(lr[len(lr)-1]) && isLatin(rr[0])
}

func isLatin(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
