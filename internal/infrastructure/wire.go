package infrastructure

import (
	"github.com/answerdesk/backend/internal/infrastructure/config"
	"github.com/answerdesk/backend/internal/infrastructure/embedding"
	"github.com/answerdesk/backend/internal/infrastructure/llm"
	"github.com/answerdesk/backend/internal/infrastructure/storage"
	"github.com/answerdesk/backend/internal/infrastructure/vector"
	"github.com/google/wire"
)

// ProviderSet Infrastructure 层总 ProviderSet
var ProviderSet = wire.NewSet(
	config.ProviderSet,
	storage.ProviderSet,
	embedding.ProviderSet,
	vector.ProviderSet,
	llm.ProviderSet,
)
