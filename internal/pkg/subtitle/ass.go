package subtitle

import (
	"fmt"
	"strings"
)

// ASSStyle ASS 字幕样式
type ASSStyle struct {
	FontName string
	FontSize int
	PlayResX int
	PlayResY int
}

// ASSGenerator ASS字幕生成器
type ASSGenerator struct {
	style ASSStyle
}

// NewASSGenerator 创建ASS字幕生成器实例
func NewASSGenerator(style ASSStyle) *ASSGenerator {
	if style.FontName == "" {
		style.FontName = "Microsoft YaHei"
	}
	if style.FontSize <= 0 {
		style.FontSize = 36
	}
	if style.PlayResX <= 0 {
		style.PlayResX = 720
	}
	if style.PlayResY <= 0 {
		style.PlayResY = 1280
	}
	return &ASSGenerator{style: style}
}

// Generate 由字幕窗口生成ASS格式内容
func (g *ASSGenerator) Generate(segments []Segment, title string) string {
	if title == "" {
		title = "Generated Subtitle"
	}

	header := fmt.Sprintf(`[Script Info]
Title: %s
ScriptType: v4.00+
WrapStyle: 0
ScaledBorderAndShadow: yes
YCbCr Matrix: TV.601
PlayResX: %d
PlayResY: %d

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Default,%s,%d,&H00FFFFFF,&H000000FF,&H00000000,&H80000000,0,0,0,0,100,100,0,0,1,2,2,2,10,10,80,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`, title, g.style.PlayResX, g.style.PlayResY, g.style.FontName, g.style.FontSize)

	events := make([]string, 0, len(segments))
	for _, segment := range segments {
		text := escapeASSText(segment.Text)
		events = append(events, fmt.Sprintf("Dialogue: 0,%s,%s,Default,,0,0,0,,%s",
			formatTimeForASS(segment.Start), formatTimeForASS(segment.End), text))
	}

	return header + strings.Join(events, "\n")
}

// escapeASSText 转义ASS事件文本：换行转 \N，双引号归一
func escapeASSText(text string) string {
	text = strings.ReplaceAll(text, "\n", "\\N")
	text = strings.ReplaceAll(text, "“", "\"") // 左双引号
	text = strings.ReplaceAll(text, "”", "\"") // 右双引号
	return text
}

// formatTimeForASS 将秒数转换为ASS时间格式 (H:MM:SS.CC)
func formatTimeForASS(seconds float64) string {
	hours := int(seconds / 3600)
	minutes := int((int(seconds) % 3600) / 60)
	secs := seconds - float64(hours*3600) - float64(minutes*60)
	return fmt.Sprintf("%d:%02d:%05.2f", hours, minutes, secs)
}
