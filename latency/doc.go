// Package latency 根据到服务端的往返时延推导播放预缓冲时长。
//
// 时延越高，播放前积累的音频越多，以降低卡顿风险；时延很低时几乎不缓冲。
// Controller 周期性重新测量，使缓冲策略随网络状况变化。
package latency
