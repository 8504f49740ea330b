package jetstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	component "github.com/ssuji15/docbuilder/internal/component/jetstream"
	"github.com/ssuji15/docbuilder/internal/config"
	"github.com/ssuji15/docbuilder/internal/events"
	"github.com/ssuji15/docbuilder/internal/job_tracer"
	"github.com/ssuji15/docbuilder/internal/util"
	"github.com/ssuji15/docbuilder/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Publisher sends build outcome events to a JetStream stream.
type Publisher struct {
	connection *nats.Conn
	context    nats.JetStreamContext
}

func NewPublisher(cfg *config.NatsConfig) (*Publisher, error) {
	nc, err := component.NewJetStreamClient(cfg)
	if err != nil {
		return nil, err
	}
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     cfg.STREAM_NAME,
		Subjects: []string{"docbuilder.>"},
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return nil, fmt.Errorf("failed to create stream %s: %w", cfg.STREAM_NAME, err)
	}

	return &Publisher{connection: nc, context: js}, nil
}

func (p *Publisher) Publish(ctx context.Context, ev model.BuildEvent) error {
	tracer := job_tracer.GetTracer()
	ctx, span := tracer.Start(ctx, "Nats/PublishBuildEvent")
	defer span.End()

	span.AddEvent("build.context",
		trace.WithAttributes(
			attribute.String("name", ev.Name),
			attribute.String("version", ev.Version),
			attribute.String("status", string(ev.Status)),
		),
	)

	data, err := json.Marshal(ev)
	if err != nil {
		util.RecordSpanError(span, err)
		return err
	}

	msg := nats.NewMsg(events.BuildFinished)
	msg.Data = data
	propagation.TraceContext{}.Inject(ctx, propagation.HeaderCarrier(msg.Header))

	if _, err := p.context.PublishMsg(msg, nats.Context(ctx)); err != nil {
		util.RecordSpanError(span, err)
		return fmt.Errorf("failed to publish build event: %w", err)
	}
	return nil
}

func (p *Publisher) Close() {
	if err := p.connection.Drain(); err != nil {
		p.connection.Close()
	}
	component.ResetJetStreamClient()
}
