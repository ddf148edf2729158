package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/voice-orchestrator/internal/core"
)

const dispatchAckTimeout = 5 * time.Second

var (
	// ErrNoWorkers indicates that no worker is subscribed to the synthesis subject.
	ErrNoWorkers = errors.New("no synthesis workers available")
	// ErrDispatchRejected indicates that a worker refused the request.
	ErrDispatchRejected = errors.New("synthesis request rejected by worker")
)

// SynthesisRequestedEvent is published for every submitted job.
type SynthesisRequestedEvent struct {
	Header    events.EventHeader `json:"header"`
	JobID     string             `json:"job_id"`
	Text      string             `json:"text"`
	Emotion   string             `json:"emotion"`
	SpeakerID string             `json:"speaker_id,omitempty"`
}

// dispatchAck is the worker's reply confirming it took the job.
type dispatchAck struct {
	JobID string `json:"job_id"`
	Error string `json:"error,omitempty"`
}

var _ core.Dispatcher = (*NatsDispatcher)(nil)

// NatsDispatcher publishes jobs on a subject served by a NatsWorker queue
// group. Dispatch waits only for the receiving worker's acknowledgement.
type NatsDispatcher struct {
	natsConnection *nats.Conn
	subject        string
}

// NewNatsDispatcher creates a dispatcher publishing on subject.
func NewNatsDispatcher(natsConnection *nats.Conn, subject string) *NatsDispatcher {
	return &NatsDispatcher{natsConnection: natsConnection, subject: subject}
}

// Dispatch publishes req and waits for a worker to acknowledge it.
func (d *NatsDispatcher) Dispatch(ctx context.Context, req core.SynthesisRequest) error {
	event := SynthesisRequestedEvent{
		Header: events.EventHeader{
			Timestamp:  time.Now(),
			WorkflowID: req.JobID,
			EventID:    uuid.NewString(),
		},
		JobID:     req.JobID,
		Text:      req.Text,
		Emotion:   req.Emotion,
		SpeakerID: req.SpeakerID,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal synthesis event: %w", err)
	}

	ackCtx, cancel := context.WithTimeout(ctx, dispatchAckTimeout)
	defer cancel()

	reply, err := d.natsConnection.RequestWithContext(ackCtx, d.subject, data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return fmt.Errorf("%w on subject %s", ErrNoWorkers, d.subject)
		}

		return fmt.Errorf("failed to publish synthesis event on %s: %w", d.subject, err)
	}

	var ack dispatchAck

	err = json.Unmarshal(reply.Data, &ack)
	if err != nil {
		return fmt.Errorf("failed to decode worker acknowledgement: %w", err)
	}

	if ack.Error != "" {
		return fmt.Errorf("%w: %s", ErrDispatchRejected, ack.Error)
	}

	return nil
}

// NatsWorker listens for synthesis requests on a NATS subject as a member of
// a queue group, so each job is delivered to exactly one instance, and hands
// them to a local Pool.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	queue          string
	pool           core.Dispatcher
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	queue string,
	pool core.Dispatcher,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		queue:          queue,
		pool:           pool,
		log:            log,
	}
}

// Subscribe joins the queue group and returns the subscription.
func (w *NatsWorker) Subscribe() (*nats.Subscription, error) {
	sub, err := w.natsConnection.QueueSubscribe(w.subject, w.queue, w.handleMessage)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	return sub, nil
}

// Run subscribes and serves until ctx is cancelled, then drains.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.Subscribe()
	if err != nil {
		return err
	}

	w.log.System("Synthesis worker listening on %s (queue %s)", w.subject, w.queue)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	event, err := w.parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)
		w.respond(msg, dispatchAck{Error: err.Error()})

		return
	}

	err = w.pool.Dispatch(context.Background(), core.SynthesisRequest{
		JobID:     event.JobID,
		Text:      event.Text,
		Emotion:   event.Emotion,
		SpeakerID: event.SpeakerID,
	})
	if err != nil {
		w.log.Error("Failed to schedule synthesis job %s: %v", event.JobID, err)
		w.respond(msg, dispatchAck{JobID: event.JobID, Error: err.Error()})

		return
	}

	w.respond(msg, dispatchAck{JobID: event.JobID})
}

func (w *NatsWorker) respond(msg *nats.Msg, ack dispatchAck) {
	if msg.Reply == "" {
		return
	}

	replyData, err := json.Marshal(ack)
	if err != nil {
		w.log.Error("Failed to marshal acknowledgement: %v", err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error("Failed to acknowledge synthesis job %s: %v", ack.JobID, err)
	}
}

func (w *NatsWorker) parseAndValidateEvent(msg *nats.Msg) (*SynthesisRequestedEvent, error) {
	var event SynthesisRequestedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.JobID == "" {
		return nil, core.Invalid("synthesis event without job id")
	}

	return &event, nil
}
