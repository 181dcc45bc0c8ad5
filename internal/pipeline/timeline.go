package pipeline

import (
	"fmt"

	"mango/internal/model/storyboard"
)

// ReconcileTimeline 以实测语音时长重算场景时间窗口（原地修改）
// 解说长度才是节奏的真值：沿用作者估计会截断音频或让画面停滞。
//
// 规则：
//   - scene[0].TStart = 0
//   - scene[i].TEnd = scene[i].TStart + duration(i)
//   - scene[i+1].TStart = scene[i].TEnd（连续无缝隙）
//   - 有解说的场景用实测音频时长；无解说的场景保留作者时长
//   - 零或负时长是校验错误，不做静默接受
func ReconcileTimeline(scenes []*storyboard.Scene, measured map[int]float64) error {
	cursor := 0.0

	for _, scene := range scenes {
		var duration float64

		if scene.HasNarration() {
			d, ok := measured[scene.Index]
			if !ok {
				return fmt.Errorf("scene %d: narration audio duration not measured", scene.Index)
			}
			if d <= 0 {
				return fmt.Errorf("scene %d: non-positive measured audio duration %.3f", scene.Index, d)
			}
			duration = d
		} else {
			duration = scene.AuthorDuration()
			if duration <= 0 {
				return fmt.Errorf("scene %d: no narration and non-positive author duration %.3f",
					scene.Index, duration)
			}
		}

		scene.TStart = cursor
		scene.TEnd = cursor + duration
		cursor = scene.TEnd
	}

	return nil
}
