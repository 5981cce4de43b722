package audio

// G.711 展开表，按 ITU-T 参考实现生成。
var (
	mulawTable = buildTable(mulawToLinear)
	alawTable  = buildTable(alawToLinear)
)

func buildTable(fn func(uint8) int16) [256]int16 {
	var t [256]int16
	for i := range t {
		t[i] = fn(uint8(i))
	}
	return t
}

func mulawToLinear(u uint8) int16 {
	const bias = 0x84
	u = ^u
	t := (int32(u&0x0F) << 3) + bias
	t <<= (u & 0x70) >> 4
	if u&0x80 != 0 {
		return int16(bias - t)
	}
	return int16(t - bias)
}

func alawToLinear(a uint8) int16 {
	a ^= 0x55
	t := int32(a&0x0F) << 4
	switch seg := (a & 0x70) >> 4; seg {
	case 0:
		t += 8
	case 1:
		t += 0x108
	default:
		t += 0x108
		t <<= seg - 1
	}
	if a&0x80 != 0 {
		return int16(t)
	}
	return int16(-t)
}

// MulawToLinear 展开一个 μ-law 字节为 16 位线性采样。
func MulawToLinear(u uint8) int16 { return mulawTable[u] }

// AlawToLinear 展开一个 A-law 字节为 16 位线性采样。
func AlawToLinear(a uint8) int16 { return alawTable[a] }

// ToFloat32 把任意元素类型的采样转换为 [-1, 1) 浮点。
// uint8 视为律编码字节，enc 决定展开方式。
func ToFloat32[T Sample](dst []float32, src []T, enc Encoding) int {
	n := min(len(dst), len(src))
	switch s := any(src).(type) {
	case []float32:
		copy(dst, s[:n])
	case []int16:
		for i := 0; i < n; i++ {
			dst[i] = float32(s[i]) / 32768
		}
	case []uint8:
		table := &mulawTable
		if enc == EncodingAlaw {
			table = &alawTable
		}
		for i := 0; i < n; i++ {
			dst[i] = float32(table[s[i]]) / 32768
		}
	}
	return n
}
