package storyboard

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Intensity 场景动态强度
type Intensity string

const (
	IntensityHigh   Intensity = "HIGH"
	IntensityMedium Intensity = "MEDIUM"
	IntensityLow    Intensity = "LOW"
)

// Scene 单个解说场景
// TStart/TEnd 在对齐前是作者估计值，对齐后以实测语音时长为准且场景间连续
type Scene struct {
	Index        int       `json:"index"`
	TStart       float64   `json:"t_start"`
	TEnd         float64   `json:"t_end"`
	Narration    string    `json:"narration"`
	ImagePrompt  string    `json:"image_prompt"`
	MotionPrompt string    `json:"motion_prompt"`
	Intensity    Intensity `json:"intensity"`
}

// HasNarration 场景是否包含解说文本
func (s *Scene) HasNarration() bool {
	return strings.TrimSpace(s.Narration) != ""
}

// AuthorDuration 作者预估的场景时长（对齐前）
func (s *Scene) AuthorDuration() float64 {
	return s.TEnd - s.TStart
}

// Storyboard 分镜脚本：有序的解说场景列表
type Storyboard struct {
	Title  string   `json:"title"`
	Scenes []*Scene `json:"scenes"`
}

// Load 从 JSON 文件加载分镜脚本并校验
func Load(path string) (*Storyboard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read storyboard: %w", err)
	}

	var sb Storyboard
	if err := json.Unmarshal(data, &sb); err != nil {
		return nil, fmt.Errorf("parse storyboard: %w", err)
	}

	if err := sb.Validate(); err != nil {
		return nil, err
	}

	return &sb, nil
}

// Validate 校验分镜脚本
// 规则：
//   - 至少一个场景
//   - 场景按 Index 全序排列（加载时排序并要求无重复）
//   - 无解说文本的场景必须携带正的作者时长，否则无法确定其画面时长
func (sb *Storyboard) Validate() error {
	if len(sb.Scenes) == 0 {
		return fmt.Errorf("storyboard has no scenes")
	}

	sort.Slice(sb.Scenes, func(i, j int) bool {
		return sb.Scenes[i].Index < sb.Scenes[j].Index
	})

	seen := make(map[int]bool, len(sb.Scenes))
	for _, scene := range sb.Scenes {
		if scene == nil {
			return fmt.Errorf("storyboard contains a null scene")
		}
		if seen[scene.Index] {
			return fmt.Errorf("duplicate scene index %d", scene.Index)
		}
		seen[scene.Index] = true

		switch scene.Intensity {
		case IntensityHigh, IntensityMedium, IntensityLow:
		case "":
			scene.Intensity = IntensityMedium
		default:
			return fmt.Errorf("scene %d: invalid intensity %q", scene.Index, scene.Intensity)
		}

		if !scene.HasNarration() && scene.AuthorDuration() <= 0 {
			return fmt.Errorf("scene %d: no narration and non-positive author duration %.3f",
				scene.Index, scene.AuthorDuration())
		}
	}

	return nil
}
