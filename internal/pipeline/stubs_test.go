package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"mango/internal/pkg/ffmpeg"
	"mango/internal/pkg/tts"
)

// memStore 内存实现的产物存储，供管线测试使用
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (s *memStore) Put(ctx context.Context, key string, data io.Reader) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = buf
	return nil
}

func (s *memStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(buf)), nil
}

func (s *memStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memStore) GetStorageType() string {
	return "memory"
}

// put 测试预置产物
func (s *memStore) put(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
}

// stubSpeech 固定返回预设音频的语音合成桩
type stubSpeech struct {
	mu    sync.Mutex
	calls int
	audio []byte
	err   error
}

func (s *stubSpeech) Synthesize(ctx context.Context, text string) (*tts.Result, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &tts.Result{AudioData: s.audio}, nil
}

// stubAnimation 图生视频桩
type stubAnimation struct {
	mu            sync.Mutex
	calls         int
	video         []byte
	err           error
	requestedSecs []int
}

func (s *stubAnimation) GenerateClip(ctx context.Context, imageData []byte, mimeType, motionPrompt string, durationSecs int) ([]byte, error) {
	s.mu.Lock()
	s.calls++
	s.requestedSecs = append(s.requestedSecs, durationSecs)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.video, nil
}

// stubMedia FFmpeg 桩：输出只写空壳文件并记录调用轨迹
// videoDuration 决定 GetVideoInfo 的探测结果，模拟提供商返回的片段长度
type stubMedia struct {
	mu sync.Mutex

	videoDuration float64
	audioDuration float64

	kenBurnsDurations []float64
	concatCounts      []int
	trimDurations     []float64
	calls             []string
}

func (m *stubMedia) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func touch(path string) error {
	return os.WriteFile(path, []byte("stub"), 0o644)
}

func (m *stubMedia) GetVideoInfo(ctx context.Context, videoPath string) (*ffmpeg.VideoInfo, error) {
	m.record("GetVideoInfo")
	return &ffmpeg.VideoInfo{Width: 720, Height: 1280, FPS: 30, Duration: m.videoDuration}, nil
}

func (m *stubMedia) GetAudioDuration(ctx context.Context, audioPath string) (float64, error) {
	m.record("GetAudioDuration")
	return m.audioDuration, nil
}

func (m *stubMedia) CreateKenBurnsVideo(ctx context.Context, imagePath, outputPath string, duration float64, width, height, fps int) error {
	m.record("CreateKenBurnsVideo")
	m.mu.Lock()
	m.kenBurnsDurations = append(m.kenBurnsDurations, duration)
	m.mu.Unlock()
	return touch(outputPath)
}

func (m *stubMedia) ConcatVideos(ctx context.Context, videoPaths []string, outputPath string) error {
	m.record("ConcatVideos")
	m.mu.Lock()
	m.concatCounts = append(m.concatCounts, len(videoPaths))
	m.mu.Unlock()
	return touch(outputPath)
}

func (m *stubMedia) TrimVideo(ctx context.Context, inputPath, outputPath string, duration float64) error {
	m.record("TrimVideo")
	m.mu.Lock()
	m.trimDurations = append(m.trimDurations, duration)
	m.mu.Unlock()
	return touch(outputPath)
}

func (m *stubMedia) StandardizeVideo(ctx context.Context, inputPath, outputPath string, width, height, fps int, duration float64) error {
	m.record("StandardizeVideo")
	return touch(outputPath)
}

func (m *stubMedia) AddSubtitles(ctx context.Context, videoPath, assPath, outputPath string) error {
	m.record("AddSubtitles")
	return touch(outputPath)
}

func (m *stubMedia) ReplaceAudio(ctx context.Context, videoPath, audioPath, outputPath string, audioLimit float64) error {
	m.record("ReplaceAudio")
	return touch(outputPath)
}

func (m *stubMedia) AddSilentAudio(ctx context.Context, videoPath, outputPath string) error {
	m.record("AddSilentAudio")
	return touch(outputPath)
}

func (m *stubMedia) ConcatWithCrossfade(ctx context.Context, videoPaths []string, durations []float64, outputPath string, fade float64, opts ffmpeg.ExportOptions) error {
	m.record("ConcatWithCrossfade")
	return touch(outputPath)
}

func (m *stubMedia) MixBackgroundMusic(ctx context.Context, videoPath, musicPath, outputPath string, gain float64) error {
	m.record("MixBackgroundMusic")
	return touch(outputPath)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (m *stubMedia) called(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == name {
			n++
		}
	}
	return n
}
