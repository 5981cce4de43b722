// Package fixtures 提供测试样例数据。
package fixtures

import (
	"encoding/json"

	"github.com/BaSui01/speechflow/audio"
)

// ZeroF32Chunk 为 "AAAAAA==" 形式的片段：一个 0.0 的 f32 采样。
const ZeroF32Chunk = "AAAAAA=="

// F32Chunk 把浮点采样编码为 base64 片段。
func F32Chunk(samples ...float32) string {
	return audio.EncodeChunk(samples).Data()
}

// S16Chunk 把 16 位采样编码为 base64 片段。
func S16Chunk(samples ...int16) string {
	return audio.EncodeChunk(samples).Data()
}

// Ramp 生成 n 个递增采样，便于校验顺序。
func Ramp(n int, start float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = start + float32(i)/float32(n*4)
	}
	return out
}

func frame(v map[string]any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// ChunkFrame 服务端音频帧。
func ChunkFrame(contextID, data string) string {
	return frame(map[string]any{
		"context_id":  contextID,
		"status_code": 206,
		"done":        false,
		"type":        "chunk",
		"data":        data,
		"step_time":   42.5,
	})
}

// DoneFrame 服务端结束帧。
func DoneFrame(contextID string) string {
	return frame(map[string]any{
		"context_id":  contextID,
		"status_code": 200,
		"done":        true,
		"type":        "done",
	})
}

// TimestampsFrame 服务端词时间戳帧。
func TimestampsFrame(contextID string, words []string, start, end []float64) string {
	return frame(map[string]any{
		"context_id":  contextID,
		"status_code": 206,
		"done":        false,
		"type":        "timestamps",
		"word_timestamps": map[string]any{
			"words": words,
			"start": start,
			"end":   end,
		},
	})
}

// ErrorFrame 服务端错误帧。
func ErrorFrame(contextID, msg string) string {
	return frame(map[string]any{
		"context_id":  contextID,
		"status_code": 500,
		"done":        false,
		"type":        "error",
		"error":       msg,
	})
}
