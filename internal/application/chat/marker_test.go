package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// collectFiltered 把文本按给定切分点送入过滤器，返回可见输出和触发次数
func collectFiltered(t *testing.T, chunks []string) (string, int) {
	t.Helper()
	f := NewMarkerFilter()
	var out strings.Builder
	fires := 0
	for _, c := range chunks {
		text, fired := f.Feed(c)
		out.WriteString(text)
		if fired {
			fires++
		}
	}
	out.WriteString(f.Flush())
	return out.String(), fires
}

// splitAt 把文本切成以 size 为步长的分片
func splitAt(text string, size int) []string {
	var chunks []string
	for len(text) > 0 {
		n := size
		if n > len(text) {
			n = len(text)
		}
		chunks = append(chunks, text[:n])
		text = text[n:]
	}
	return chunks
}

// TestMarkerFilter_AllSplitPositions 测试标记被任意切分时均被剥离且只触发一次
func TestMarkerFilter_AllSplitPositions(t *testing.T) {
	inputs := []string{
		EscalationMarker + " at the start",
		"in the " + EscalationMarker + " middle",
		"at the end " + EscalationMarker,
	}

	for _, input := range inputs {
		want := strings.ReplaceAll(input, EscalationMarker, "")
		// 从单字节分片到整段一次送入
		for size := 1; size <= len(input); size++ {
			got, fires := collectFiltered(t, splitAt(input, size))
			assert.Equal(t, want, got, "input %q chunk size %d", input, size)
			assert.Equal(t, 1, fires, "input %q chunk size %d", input, size)
			assert.NotContains(t, got, EscalationMarker)
		}
	}
}

// TestMarkerFilter_SplitAtEveryBoundary 测试标记内部每个切分点
func TestMarkerFilter_SplitAtEveryBoundary(t *testing.T) {
	prefix := "I understand. "
	suffix := " Connecting you now."

	for cut := 1; cut < len(EscalationMarker); cut++ {
		chunks := []string{
			prefix + EscalationMarker[:cut],
			EscalationMarker[cut:] + suffix,
		}
		got, fires := collectFiltered(t, chunks)
		assert.Equal(t, prefix+suffix, got, "cut at %d", cut)
		assert.Equal(t, 1, fires, "cut at %d", cut)
	}
}

// TestMarkerFilter_DoubleOccurrence 测试重复标记均被剥离但只触发一次
func TestMarkerFilter_DoubleOccurrence(t *testing.T) {
	input := "a " + EscalationMarker + " b " + EscalationMarker + " c"

	for size := 1; size <= len(input); size++ {
		got, fires := collectFiltered(t, splitAt(input, size))
		assert.Equal(t, "a  b  c", got, "chunk size %d", size)
		assert.Equal(t, 1, fires, "chunk size %d", size)
	}
}

// TestMarkerFilter_PassThrough 测试无标记文本逐字节透传
func TestMarkerFilter_PassThrough(t *testing.T) {
	input := "Our support hours are 9am to 5pm, Monday through Friday."

	for size := 1; size <= len(input); size++ {
		got, fires := collectFiltered(t, splitAt(input, size))
		assert.Equal(t, input, got, "chunk size %d", size)
		assert.Zero(t, fires)
	}
}

// TestMarkerFilter_PrefixNeverCompleted 测试碰巧与标记前缀相同的尾部在流终止时放出
func TestMarkerFilter_PrefixNeverCompleted(t *testing.T) {
	input := "see the attachment [ESCALATION_"

	f := NewMarkerFilter()
	out, fired := f.Feed(input)
	assert.False(t, fired)
	// 前缀被扣下，尚未下发
	assert.Equal(t, "see the attachment ", out)

	// 流结束：扣下的尾部是普通文本
	assert.Equal(t, "[ESCALATION_", f.Flush())
	assert.False(t, f.Triggered())
}

// TestMarkerFilter_BracketOnlyNotHeld 测试非标记前缀不被扣留
func TestMarkerFilter_BracketOnlyNotHeld(t *testing.T) {
	f := NewMarkerFilter()
	out, fired := f.Feed("list[0] = 1")
	assert.False(t, fired)
	assert.Equal(t, "list[0] = 1", out)
	assert.Empty(t, f.Flush())
}

// TestMarkerFilter_ScenarioB 测试规格场景：标记在 "[ESCALATION_" 后被切分
func TestMarkerFilter_ScenarioB(t *testing.T) {
	chunks := []string{
		"I understand. [ESCALATION_",
		"REQUESTED] Connecting you now.",
	}

	got, fires := collectFiltered(t, chunks)
	assert.Equal(t, "I understand.  Connecting you now.", got)
	assert.Equal(t, 1, fires)
}

// TestMarkerFilter_OrderingDelayBound 测试扣留量不超过标记长度减一
func TestMarkerFilter_OrderingDelayBound(t *testing.T) {
	f := NewMarkerFilter()
	input := strings.Repeat("[ESCALATION", 4)
	emitted, _ := f.Feed(input)
	held := len(input) - len(emitted)
	assert.LessOrEqual(t, held, len(EscalationMarker)-1)
}

// TestStripMarker 测试阻塞模式的一次性剥离
func TestStripMarker(t *testing.T) {
	clean, escalated := StripMarker("I understand. " + EscalationMarker + " Connecting you now.")
	assert.Equal(t, "I understand.  Connecting you now.", clean)
	assert.True(t, escalated)

	clean, escalated = StripMarker("no marker here")
	assert.Equal(t, "no marker here", clean)
	assert.False(t, escalated)
}
