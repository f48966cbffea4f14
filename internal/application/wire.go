package application

import (
	"github.com/answerdesk/backend/internal/application/chat"
	"github.com/google/wire"
)

// ProviderSet Application 层总 ProviderSet
var ProviderSet = wire.NewSet(
	chat.ProviderSet,
)
