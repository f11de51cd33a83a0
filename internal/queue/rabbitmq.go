package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Job é o arquivo que o watcher deixou em processing para o worker gerar
// o relatório.
type Job struct {
	ID       string `json:"id"`
	Path     string `json:"path"`
	Filename string `json:"filename"`
	Kind     string `json:"kind"` // "xml" ou "zip"
}

// NewJob cria um job com ID novo para rastrear o arquivo nos logs.
func NewJob(path, filename, kind string) Job {
	return Job{
		ID:       uuid.NewString(),
		Path:     path,
		Filename: filename,
		Kind:     kind,
	}
}

func (j Job) logAttrs() []any {
	return []any{
		"job_id", j.ID,
		"path", j.Path,
		"filename", j.Filename,
		"kind", j.Kind,
	}
}

// Publisher é o lado do watcher.
type Publisher interface {
	PublishJob(ctx context.Context, job Job) error
	Close() error
}

// Consumer é o lado do worker.
type Consumer interface {
	ConsumeJobs(ctx context.Context, handler func(Job) error) error
	Close() error
}

// Options vem da config (NFSE_REPORT_RABBITMQ_*).
type Options struct {
	URL        string
	Queue      string
	MaxRetries int
	Prefetch   int
}

func (o Options) withDefaults() Options {
	if o.Queue == "" {
		o.Queue = "nfse-report-jobs"
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.Prefetch <= 0 {
		o.Prefetch = 10
	}
	return o
}

const (
	retriesHeader  = "x-retries"
	publishTimeout = 5 * time.Second
)

var errNotConfirmed = errors.New("mensagem não confirmada pelo broker")

type RabbitMQ struct {
	conn      *amqp.Connection
	ch        *amqp.Channel
	opts      Options
	confirmCh <-chan amqp.Confirmation

	// republish devolve o job à fila numa nova tentativa; nil usa publish
	republish func(ctx context.Context, body []byte, headers amqp.Table) error
}

var (
	_ Publisher = (*RabbitMQ)(nil)
	_ Consumer  = (*RabbitMQ)(nil)
)

// NewRabbitMQ conecta, declara fila + DLX/DLQ e liga publisher confirms.
func NewRabbitMQ(opts Options) (*RabbitMQ, error) {
	opts = opts.withDefaults()

	conn, err := amqp.Dial(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("erro conectando no RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("erro abrindo canal no RabbitMQ: %w", err)
	}

	if err := declareTopology(ch, opts); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &RabbitMQ{
		conn:      conn,
		ch:        ch,
		opts:      opts,
		confirmCh: ch.NotifyPublish(make(chan amqp.Confirmation, opts.Prefetch*2)),
	}, nil
}

func declareTopology(ch *amqp.Channel, opts Options) error {
	dlx, dlq := deadLetterNames(opts.Queue)

	if err := ch.ExchangeDeclare(dlx, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("erro declarando exchange DLX %q: %w", dlx, err)
	}
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("erro declarando fila DLQ %q: %w", dlq, err)
	}
	if err := ch.QueueBind(dlq, dlq, dlx, false, nil); err != nil {
		return fmt.Errorf("erro bindando DLQ %q no DLX %q: %w", dlq, dlx, err)
	}

	// fila principal (durable) com DLX configurado
	args := amqp.Table{
		"x-dead-letter-exchange":    dlx,
		"x-dead-letter-routing-key": dlq,
	}
	if _, err := ch.QueueDeclare(opts.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("erro declarando fila %q: %w", opts.Queue, err)
	}

	if err := ch.Qos(opts.Prefetch, 0, false); err != nil {
		return fmt.Errorf("erro configurando QoS (prefetch=%d): %w", opts.Prefetch, err)
	}
	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("erro habilitando publisher confirms: %w", err)
	}
	return nil
}

func deadLetterNames(queue string) (dlx, dlq string) {
	return queue + ".dlx", queue + ".dlq"
}

func (r *RabbitMQ) PublishJob(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("erro serializando job: %w", err)
	}
	return r.publish(ctx, body, amqp.Table{retriesHeader: int32(0)})
}

func (r *RabbitMQ) publish(ctx context.Context, body []byte, headers amqp.Table) error {
	err := r.ch.PublishWithContext(ctx, "", r.opts.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      headers,
	})
	if err != nil {
		return fmt.Errorf("erro publicando mensagem no RabbitMQ: %w", err)
	}

	select {
	case conf := <-r.confirmCh:
		if !conf.Ack {
			return errNotConfirmed
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConsumeJobs entrega cada job ao handler. Erro do handler reenfileira até
// MaxRetries vezes; depois disso a mensagem vai para a DLQ.
func (r *RabbitMQ) ConsumeJobs(ctx context.Context, handler func(Job) error) error {
	msgs, err := r.ch.Consume(r.opts.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("erro iniciando consumo do RabbitMQ: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("canal de mensagens encerrado")
			}
			r.deliver(ctx, msg, handler)
		}
	}
}

func (r *RabbitMQ) deliver(ctx context.Context, msg amqp.Delivery, handler func(Job) error) {
	var job Job
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		// mensagem inválida não adianta reprocessar
		slog.Error("erro de unmarshal de job do RabbitMQ", "err", err)
		_ = msg.Ack(false)
		return
	}

	herr := handler(job)
	if herr == nil {
		_ = msg.Ack(false)
		return
	}

	retries := extractRetries(msg.Headers)
	headers, requeue := nextAttempt(msg.Headers, retries, r.opts.MaxRetries)
	attrs := append(job.logAttrs(),
		"retries", retries,
		"max_retries", r.opts.MaxRetries,
		"err", herr,
	)

	if !requeue {
		slog.Error("erro processando job, enviando para DLQ", attrs...)
		// Nack sem requeue → DLQ via DLX
		_ = msg.Nack(false, false)
		return
	}

	slog.Warn("erro processando job, reenfileirando", attrs...)
	republish := r.republish
	if republish == nil {
		republish = r.publish
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := republish(pubCtx, msg.Body, headers); err != nil {
		// sem a cópia nova, a original volta para a fila com o contador antigo
		slog.Error("falha ao reenfileirar job", append(job.logAttrs(), "err", err)...)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

func (r *RabbitMQ) Close() error {
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// nextAttempt decide entre reenfileirar (com o contador incrementado) ou
// mandar para a DLQ. Os headers originais não são alterados.
func nextAttempt(h amqp.Table, retries, maxRetries int) (amqp.Table, bool) {
	if retries >= maxRetries {
		return nil, false
	}
	headers := amqp.Table{}
	for k, v := range h {
		headers[k] = v
	}
	headers[retriesHeader] = int32(retries + 1)
	return headers, true
}

func extractRetries(h amqp.Table) int {
	v, ok := h[retriesHeader]
	if !ok {
		return 0
	}

	switch t := v.(type) {
	case int16:
		return int(t)
	case int32:
		return int(t)
	case int64:
		return int(t)
	case float32:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}
