// Package config 提供 speechflow 的配置管理功能。
//
// 配置分为 client、stream、playback、latency、log、telemetry、metrics
// 七个部分，加载顺序为默认值 → YAML 文件 → 环境变量（前缀 SPEECHFLOW），
// 环境变量名由字段的 env 标签逐层拼接而成，例如 SPEECHFLOW_CLIENT_API_KEY。
package config
