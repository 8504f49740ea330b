package events

import (
	"context"

	"github.com/ssuji15/docbuilder/model"
)

// Subject used for build outcome events; the queue worker publishes one per
// processed entry.
const BuildFinished = "docbuilder.build.finished"

type Publisher interface {
	Publish(ctx context.Context, ev model.BuildEvent) error
	Close()
}

// Nop drops every event. It is used when EVENTS_TYPE is none.
type Nop struct{}

func (Nop) Publish(context.Context, model.BuildEvent) error { return nil }
func (Nop) Close()                                          {}
