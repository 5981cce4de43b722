// Package audio 提供流式语音管线的采样层。
//
// # 概述
//
// 服务端以 base64 编码的 PCM 片段推送音频。本包负责三件事：
//
//   - 片段编解码：Chunk 表示一个数据片段或流结束哨兵，
//     DecodeChunks 按编码宽度把片段还原为采样数组。
//   - 采样缓冲：Source 是按倍增扩容的单生产者/单消费者缓冲，
//     读取在数据不足时挂起而非轮询，关闭后永久唤醒。
//   - 输出：G.711 展开与 WAV 导出，供播放器和离线渲染使用。
//
// Stream 接口擦除了 Source 的元素类型，会话与播放器只依赖它。
package audio
