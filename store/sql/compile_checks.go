package sqlstore

import (
	"github.com/goliatone/go-gradspeech/core"
	"github.com/goliatone/go-gradspeech/webhooks"
)

var (
	_ core.CompletionStore    = (*CompletionStore)(nil)
	_ core.CompletionStore    = (*CachedCompletionStore)(nil)
	_ webhooks.DeliveryLedger = (*WebhookDeliveryStore)(nil)
)
