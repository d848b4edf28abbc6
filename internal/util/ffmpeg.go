package util

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// ProbeDuration 使用 ffprobe 读取视频时长（秒）
func ProbeDuration(videoPath string) (float64, error) {
	jsonOutput, err := ffmpeg.Probe(videoPath)
	if err != nil {
		return 0, fmt.Errorf("probe video: %w", err)
	}

	var result struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(jsonOutput), &result); err != nil {
		return 0, fmt.Errorf("decode probe output: %w", err)
	}

	duration, err := strconv.ParseFloat(result.Format.Duration, 64)
	if err != nil {
		return 0, nil
	}
	return duration, nil
}

// ExtractFrames 按固定间隔从视频抽取 JPEG 帧，返回帧文件路径
func ExtractFrames(videoPath, outDir string, count int) ([]string, error) {
	if count <= 0 {
		count = 1
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create frame dir: %w", err)
	}

	duration, err := ProbeDuration(videoPath)
	if err != nil {
		return nil, err
	}

	frames := make([]string, 0, count)
	for i := 0; i < count; i++ {
		offset := 0.0
		if duration > 0 {
			offset = duration * float64(i+1) / float64(count+1)
		}
		framePath := filepath.Join(outDir, fmt.Sprintf("frame_%02d.jpg", i))
		err := ffmpeg.Input(videoPath, ffmpeg.KwArgs{
			"ss": strconv.FormatFloat(offset, 'f', 2, 64),
		}).
			Output(framePath, ffmpeg.KwArgs{
				"vframes": "1",
				"q:v":     "2",
			}).
			OverWriteOutput().
			Run()
		if err != nil {
			return frames, fmt.Errorf("extract frame %d: %w", i, err)
		}
		frames = append(frames, framePath)
	}
	return frames, nil
}
