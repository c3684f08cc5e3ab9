package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[StoreCompletionMessage] = (*StoreCompletionCommand)(nil)
	_ gocmd.Commander[MarkProcessedMessage]   = (*MarkProcessedCommand)(nil)
)
