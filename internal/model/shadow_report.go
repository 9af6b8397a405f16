package model

import (
	"encoding/json"
	"strings"
)

// ShadowReportType 是嵌入在 AI 回复里的结构化报告的类型标记。
const ShadowReportType = "shadow_report"

// ShadowReport 是从 AI 自由文本回复中解析出的结构化报告。
// 不单独持久化，每次渲染时重新解析。
type ShadowReport struct {
	Type      string   `json:"type"`
	Archetype string   `json:"archetype"`
	Analysis  string   `json:"analysis"`
	Homework  []string `json:"homework"`
}

// ParseShadowReport 尝试从消息内容中提取嵌入的报告 JSON。
// 内容可能是纯 JSON，也可能是夹在自由文本中的 JSON 片段。
// 解析失败一律返回 (nil, false)，调用方按纯文本渲染。
func ParseShadowReport(content string) (*ShadowReport, bool) {
	start := strings.Index(content, "{")
	if start < 0 {
		return nil, false
	}
	// 从第一个 { 开始逐个尝试配对的 }，容忍 JSON 前后的散文。
	for end := strings.LastIndex(content, "}"); end > start; end = strings.LastIndex(content[:end], "}") {
		var report ShadowReport
		if err := json.Unmarshal([]byte(content[start:end+1]), &report); err != nil {
			continue
		}
		if report.Type != ShadowReportType {
			return nil, false
		}
		return &report, true
	}
	return nil, false
}
