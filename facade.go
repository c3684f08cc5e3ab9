package gradspeech

import (
	"fmt"

	gradcommand "github.com/goliatone/go-gradspeech/command"
	"github.com/goliatone/go-gradspeech/core"
	gradquery "github.com/goliatone/go-gradspeech/query"
)

// CompletionService is the processor side the facade drives.
type CompletionService interface {
	core.CompletionProcessor
	gradcommand.CompletionMarker
}

type Commands struct {
	StoreCompletion *gradcommand.StoreCompletionCommand
	MarkProcessed   *gradcommand.MarkProcessedCommand
}

type Queries struct {
	GetCompletion *gradquery.GetCompletionQuery
	ListPending   *gradquery.ListPendingQuery
}

// Facade exposes the completion commands and queries without going through
// the dispatcher.
type Facade struct {
	service  CompletionService
	commands Commands
	queries  Queries
}

func NewFacade(service CompletionService, reader core.CompletionReader) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("gradspeech: completion service is required")
	}
	if reader == nil {
		return nil, fmt.Errorf("gradspeech: completion reader is required")
	}
	return &Facade{
		service: service,
		commands: Commands{
			StoreCompletion: gradcommand.NewStoreCompletionCommand(service),
			MarkProcessed:   gradcommand.NewMarkProcessedCommand(service),
		},
		queries: Queries{
			GetCompletion: gradquery.NewGetCompletionQuery(reader),
			ListPending:   gradquery.NewListPendingQuery(reader),
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CompletionService {
	if f == nil {
		return nil
	}
	return f.service
}
