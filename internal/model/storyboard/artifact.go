package storyboard

// SynthesizedAudio 场景解说音频产物
// 每场景生成一次，落盘后不可变；Duration 为 ffprobe 实测时长
type SynthesizedAudio struct {
	SceneIndex int     `json:"scene_index"`
	Key        string  `json:"key"`
	Duration   float64 `json:"duration"`
}

// SceneClip 场景成品片段
// 不变式：画面时长 ≥ 音频时长；有解说时最终时长等于音频时长，
// 否则等于对齐后的作者时长
type SceneClip struct {
	SceneIndex int     `json:"scene_index"`
	Key        string  `json:"key"`
	Duration   float64 `json:"duration"`
}
