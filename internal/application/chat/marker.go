package chat

import "strings"

// EscalationMarker 模型被指示在满足升级条件时输出的控制标记
// 大小写敏感，按字面量精确匹配
const EscalationMarker = "[ESCALATION_REQUESTED]"

// DefaultEscalationReason 首次识别到标记时记录的升级原因
const DefaultEscalationReason = "assistant requested human handoff"

// MarkerFilter 流式标记过滤器
// 有状态扫描器：逐分片消费模型原始输出，剥离其中的升级标记。
// 标记可能被任意切分到多个分片，因此维护一个容量为
// len(marker)-1 的待定缓冲，持有可能是标记开头的窗口尾部。
// 不变式：
//   - 标记的任何字节都不会进入可见输出
//   - 输出顺序与生成顺序一致，延迟上界为 len(marker)-1 字节
//   - 升级事件至多触发一次（后续出现仍被剥离但不再触发）
//
// 每次管线调用独占一个实例，不做并发保护
type MarkerFilter struct {
	marker    string
	pending   string // 可能是被切分标记开头的窗口尾部
	triggered bool
}

// NewMarkerFilter 创建标记过滤器
func NewMarkerFilter() *MarkerFilter {
	return &MarkerFilter{marker: EscalationMarker}
}

// Feed 消费一个原始分片，返回可安全下发的文本
// fired 仅在本分片首次完整识别到标记时为 true
func (f *MarkerFilter) Feed(chunk string) (out string, fired bool) {
	// 待定缓冲拼接新分片，形成候选窗口
	window := f.pending + chunk
	f.pending = ""

	// 剥离窗口内所有完整标记；只有第一次触发升级
	for {
		idx := strings.Index(window, f.marker)
		if idx < 0 {
			break
		}
		if !f.triggered {
			f.triggered = true
			fired = true
		}
		window = window[:idx] + window[idx+len(f.marker):]
	}

	// 窗口尾部若是标记前缀则扣下，等待后续分片补齐
	hold := f.suffixPrefixLen(window)
	f.pending = window[len(window)-hold:]
	return window[:len(window)-hold], fired
}

// Flush 流终止时原样放出待定缓冲
// 扣下的尾部始终没有补成完整标记，说明它只是碰巧
// 与标记前缀相同的普通文本
func (f *MarkerFilter) Flush() string {
	out := f.pending
	f.pending = ""
	return out
}

// Triggered 是否已识别到升级标记
func (f *MarkerFilter) Triggered() bool {
	return f.triggered
}

// suffixPrefixLen 计算 window 尾部与标记前缀的最长重合长度
// 上界为 len(marker)-1：完整标记已在 Feed 中剥离
func (f *MarkerFilter) suffixPrefixLen(window string) int {
	max := len(f.marker) - 1
	if len(window) < max {
		max = len(window)
	}
	for l := max; l > 0; l-- {
		if window[len(window)-l:] == f.marker[:l] {
			return l
		}
	}
	return 0
}

// StripMarker 阻塞模式下对完整文本做一次性标记剥离
// 与流式路径同一规则：剥离所有出现，仅首个触发升级
func StripMarker(text string) (clean string, escalated bool) {
	escalated = strings.Contains(text, EscalationMarker)
	clean = strings.ReplaceAll(text, EscalationMarker, "")
	return clean, escalated
}
