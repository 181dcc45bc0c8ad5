package pipeline

import "fmt"

// 产物按场景编号落盘，key 存在即代表该步骤已完成。
// 工作目录布局：
//
//	images/scene_000.jpg  场景静帧（输入或按提示词生成）
//	audio/scene_000.mp3   合成解说
//	videos/scene_000.mp4  时长达标的场景视频（远端生成或本地降级）
//	clips/scene_000.mp4   合成完毕的场景片段（画面+音频+字幕）

// ImageKey 场景静帧
func ImageKey(index int) string {
	return fmt.Sprintf("images/scene_%03d.jpg", index)
}

// AudioKey 场景解说音频
func AudioKey(index int) string {
	return fmt.Sprintf("audio/scene_%03d.mp3", index)
}

// VideoKey 场景视频（生成/降级产物，时长 ≥ 目标时长）
func VideoKey(index int) string {
	return fmt.Sprintf("videos/scene_%03d.mp4", index)
}

// ClipKey 场景成品片段
func ClipKey(index int) string {
	return fmt.Sprintf("clips/scene_%03d.mp4", index)
}
