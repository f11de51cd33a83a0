package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRetries(t *testing.T) {
	cases := []struct {
		name string
		h    amqp.Table
		want int
	}{
		{"nil", nil, 0},
		{"sem header", amqp.Table{"outro": "x"}, 0},
		{"int16", amqp.Table{retriesHeader: int16(1)}, 1},
		{"int32", amqp.Table{retriesHeader: int32(2)}, 2},
		{"int64", amqp.Table{retriesHeader: int64(3)}, 3},
		{"float64", amqp.Table{retriesHeader: float64(4)}, 4},
		{"string", amqp.Table{retriesHeader: "5"}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractRetries(tc.h))
		})
	}
}

func TestNextAttempt(t *testing.T) {
	orig := amqp.Table{retriesHeader: int32(1), "origem": "watcher"}

	headers, requeue := nextAttempt(orig, 1, 3)
	require.True(t, requeue)
	assert.Equal(t, int32(2), headers[retriesHeader])
	assert.Equal(t, "watcher", headers["origem"])
	assert.Equal(t, int32(1), orig[retriesHeader])

	_, requeue = nextAttempt(orig, 3, 3)
	assert.False(t, requeue)

	headers, requeue = nextAttempt(nil, 0, 1)
	require.True(t, requeue)
	assert.Equal(t, int32(1), headers[retriesHeader])
}

func TestNewJob(t *testing.T) {
	a := NewJob("/tmp/processing/lote.zip", "lote.zip", "zip")
	b := NewJob("/tmp/processing/lote.zip", "lote.zip", "zip")

	_, err := uuid.Parse(a.ID)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	body, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+a.ID+`","path":"/tmp/processing/lote.zip","filename":"lote.zip","kind":"zip"}`, string(body))
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, "nfse-report-jobs", o.Queue)
	assert.Equal(t, 3, o.MaxRetries)
	assert.Equal(t, 10, o.Prefetch)

	dlx, dlq := deadLetterNames(o.Queue)
	assert.Equal(t, "nfse-report-jobs.dlx", dlx)
	assert.Equal(t, "nfse-report-jobs.dlq", dlq)
}

type ackRecorder struct {
	acks    int
	nacks   int
	requeue bool
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error {
	a.acks++
	return nil
}

func (a *ackRecorder) Nack(tag uint64, multiple, requeue bool) error {
	a.nacks++
	a.requeue = requeue
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func delivery(t *testing.T, ack *ackRecorder, headers amqp.Table) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(NewJob("/tmp/processing/a.xml", "a.xml", "xml"))
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, Body: body, Headers: headers}
}

func TestDeliverAcksOnSuccess(t *testing.T) {
	r := &RabbitMQ{opts: Options{MaxRetries: 3}}
	ack := &ackRecorder{}

	r.deliver(context.Background(), delivery(t, ack, nil), func(Job) error { return nil })
	assert.Equal(t, 1, ack.acks)
	assert.Zero(t, ack.nacks)
}

func TestDeliverRepublishesFailedJob(t *testing.T) {
	var got amqp.Table
	r := &RabbitMQ{
		opts: Options{MaxRetries: 3},
		republish: func(_ context.Context, _ []byte, h amqp.Table) error {
			got = h
			return nil
		},
	}
	ack := &ackRecorder{}

	r.deliver(context.Background(), delivery(t, ack, nil), func(Job) error { return errors.New("falhou") })
	assert.Equal(t, 1, ack.acks)
	assert.Zero(t, ack.nacks)
	assert.Equal(t, 1, extractRetries(got))
}

func TestDeliverRequeuesWhenRepublishFails(t *testing.T) {
	r := &RabbitMQ{
		opts: Options{MaxRetries: 3},
		republish: func(context.Context, []byte, amqp.Table) error {
			return errors.New("canal fechado")
		},
	}
	ack := &ackRecorder{}

	r.deliver(context.Background(), delivery(t, ack, nil), func(Job) error { return errors.New("falhou") })
	assert.Zero(t, ack.acks, "o job não pode ser descartado")
	assert.Equal(t, 1, ack.nacks)
	assert.True(t, ack.requeue)
}

func TestDeliverSendsExhaustedJobToDLQ(t *testing.T) {
	r := &RabbitMQ{
		opts: Options{MaxRetries: 2},
		republish: func(context.Context, []byte, amqp.Table) error {
			t.Fatal("não deveria reenfileirar")
			return nil
		},
	}
	ack := &ackRecorder{}

	r.deliver(context.Background(), delivery(t, ack, amqp.Table{retriesHeader: int32(2)}), func(Job) error { return errors.New("falhou") })
	assert.Equal(t, 1, ack.nacks)
	assert.False(t, ack.requeue)
}
