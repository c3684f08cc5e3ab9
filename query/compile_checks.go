package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-gradspeech/core"
)

var (
	_ gocmd.Querier[GetCompletionMessage, core.CompletionRecord] = (*GetCompletionQuery)(nil)
	_ gocmd.Querier[ListPendingMessage, []core.CompletionRecord] = (*ListPendingQuery)(nil)
)
