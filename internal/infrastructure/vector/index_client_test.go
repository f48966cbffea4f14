package vector

import (
	"testing"

	"github.com/answerdesk/backend/internal/domain/chat"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scoredPoint(uuid string, score float32, payload map[string]*qdrant.Value) *qdrant.ScoredPoint {
	return &qdrant.ScoredPoint{
		Id:      qdrant.NewID(uuid),
		Score:   score,
		Payload: payload,
	}
}

func TestHitToSource(t *testing.T) {
	c := &IndexClient{sourceType: chat.SourceTypeOrgDocument}

	hit := scoredPoint("point-uuid", 0.87, map[string]*qdrant.Value{
		"title":   qdrant.NewValueString("退款政策"),
		"snippet": qdrant.NewValueString("30 天内可全额退款。"),
	})

	source := c.hitToSource(hit)
	require.NotNil(t, source)
	assert.Equal(t, "point-uuid", source.ID)
	assert.Equal(t, "退款政策", source.Title)
	assert.Equal(t, "30 天内可全额退款。", source.Snippet)
	assert.Equal(t, chat.SourceTypeOrgDocument, source.SourceType)
	assert.InDelta(t, 0.87, source.Score, 0.001)
}

func TestHitToSource_PayloadIDOverridesPointID(t *testing.T) {
	c := &IndexClient{sourceType: chat.SourceTypeContextBlock}

	hit := scoredPoint("point-uuid", 0.5, map[string]*qdrant.Value{
		"id":    qdrant.NewValueString("block-42"),
		"title": qdrant.NewValueString("T"),
	})

	source := c.hitToSource(hit)
	require.NotNil(t, source)
	assert.Equal(t, "block-42", source.ID)
	assert.Equal(t, chat.SourceTypeContextBlock, source.SourceType)
}

func TestHitToSource_NilPayloadSkipped(t *testing.T) {
	c := &IndexClient{sourceType: chat.SourceTypeOrgDocument}

	hit := &qdrant.ScoredPoint{Id: qdrant.NewID("x"), Score: 0.3}
	assert.Nil(t, c.hitToSource(hit))
}

func TestExtractPointID(t *testing.T) {
	assert.Equal(t, "abc", extractPointID(qdrant.NewID("abc")))
	assert.Equal(t, "7", extractPointID(qdrant.NewIDNum(7)))
	assert.Equal(t, "", extractPointID(nil))
}
