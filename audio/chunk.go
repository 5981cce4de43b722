package audio

// Chunk 是线上音频片段：base64 数据或流结束哨兵。
// 哨兵由独立标志位表示，空字符串仍是合法（空）片段。
type Chunk struct {
	data     string
	sentinel bool
}

// DataChunk 包装一个 base64 片段。
func DataChunk(b64 string) Chunk {
	return Chunk{data: b64}
}

// Sentinel 返回流结束标记。
func Sentinel() Chunk {
	return Chunk{sentinel: true}
}

// IsSentinel 判断是否为结束标记。
func (c Chunk) IsSentinel() bool { return c.sentinel }

// Data 返回 base64 数据，哨兵返回空串。
func (c Chunk) Data() string { return c.data }

// IsComplete 判断片段序列是否以哨兵结尾。
func IsComplete(chunks []Chunk) bool {
	return len(chunks) > 0 && chunks[len(chunks)-1].IsSentinel()
}

// FilterSentinel 去掉序列中的哨兵，保持原有顺序。
func FilterSentinel(chunks []Chunk) []Chunk {
	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if !c.sentinel {
			out = append(out, c)
		}
	}
	return out
}
