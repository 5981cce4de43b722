package tts

import (
	"github.com/BaSui01/speechflow/audio"
)

// 入站帧类型
const (
	TypeChunk      = "chunk"
	TypeTimestamps = "timestamps"
	TypeError      = "error"
	TypeDone       = "done"
)

// VoiceMode 声音指定方式
type VoiceMode string

const (
	VoiceModeID        VoiceMode = "id"
	VoiceModeEmbedding VoiceMode = "embedding"
)

// Voice 指定合成使用的声音，ID 与 Embedding 二选一。
type Voice struct {
	Mode      VoiceMode      `json:"mode,omitempty"`
	ID        string         `json:"id,omitempty"`
	Embedding []float64      `json:"embedding,omitempty"`
	Controls  *VoiceControls `json:"__experimental_controls,omitempty"`
}

// VoiceControls 实验性的语速与情绪控制。
// Speed 取 "slowest" 到 "fastest" 的档位名或数值。
type VoiceControls struct {
	Speed   any      `json:"speed,omitempty"`
	Emotion []string `json:"emotion,omitempty"`
}

// VoiceByID 按声音 ID 指定
func VoiceByID(id string) Voice {
	return Voice{Mode: VoiceModeID, ID: id}
}

// VoiceByEmbedding 按声纹向量指定
func VoiceByEmbedding(embedding []float64) Voice {
	return Voice{Mode: VoiceModeEmbedding, Embedding: embedding}
}

// Request 生成请求（WebSocket 出站帧）。
type Request struct {
	ContextID     string        `json:"context_id,omitempty"`
	ModelID       string        `json:"model_id"`
	Transcript    string        `json:"transcript"`
	Voice         Voice         `json:"voice"`
	OutputFormat  *audio.Format `json:"output_format,omitempty"`
	Duration      float64       `json:"duration,omitempty"`
	Language      string        `json:"language,omitempty"`
	Continue      bool          `json:"continue,omitempty"`
	AddTimestamps bool          `json:"add_timestamps,omitempty"`
}

// BytesRequest 一次性合成请求，不含上下文相关字段。
type BytesRequest struct {
	ModelID      string        `json:"model_id"`
	Transcript   string        `json:"transcript"`
	Voice        Voice         `json:"voice"`
	OutputFormat *audio.Format `json:"output_format,omitempty"`
	Duration     float64       `json:"duration,omitempty"`
	Language     string        `json:"language,omitempty"`
}

// WordTimestamps 词级时间戳，单位秒。
type WordTimestamps struct {
	Words []string  `json:"words"`
	Start []float64 `json:"start"`
	End   []float64 `json:"end"`
}

// Response 入站帧。
type Response struct {
	ContextID      string          `json:"context_id"`
	StatusCode     int             `json:"status_code"`
	Done           bool            `json:"done"`
	Type           string          `json:"type"`
	Data           string          `json:"data,omitempty"`
	StepTime       float64         `json:"step_time,omitempty"` // 毫秒
	WordTimestamps *WordTimestamps `json:"word_timestamps,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// Frame 分发给某个上下文的一帧。
type Frame struct {
	Response
	// Raw 原始 JSON 文本
	Raw string

	chunk    audio.Chunk
	hasChunk bool
}

// Chunk 返回帧携带的音频片段。done 帧返回哨兵；没有音频时 ok 为 false。
func (f Frame) Chunk() (c audio.Chunk, ok bool) {
	return f.chunk, f.hasChunk
}

// newFrame 把 done 转换为哨兵，chunk 帧取出 data。
func newFrame(raw string, resp Response) Frame {
	f := Frame{Response: resp, Raw: raw}
	switch {
	case resp.Done:
		f.chunk, f.hasChunk = audio.Sentinel(), true
	case resp.Type == TypeChunk:
		f.chunk, f.hasChunk = audio.DataChunk(resp.Data), true
	}
	return f
}
