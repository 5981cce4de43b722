// Package player 以实时速率消费 audio.Stream。
//
// Player 按缓冲时长把流切成分段，依次交给 Renderer 在指定时刻播放，
// 每段的开始时刻恰好是上一段的结束时刻。Renderer 是渲染时钟的抽象：
// VirtualRenderer 用软件时钟模拟实时播放，FileRenderer 把分段写入 WAV 文件。
package player
