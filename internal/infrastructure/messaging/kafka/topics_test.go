package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digirix/Apexsaas-sub009/internal/testutil"
)

type mockKafkaConn struct {
	created    []kafka.TopicConfig
	createFunc func(topics ...kafka.TopicConfig) error
	readFunc   func(topics ...string) ([]kafka.Partition, error)
}

func (m *mockKafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	m.created = append(m.created, topics...)
	if m.createFunc != nil {
		return m.createFunc(topics...)
	}
	return nil
}

func (m *mockKafkaConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	if m.readFunc != nil {
		return m.readFunc(topics...)
	}
	return nil, nil
}

func (m *mockKafkaConn) Close() error { return nil }

func TestEventEnvelope_RoundTrip(t *testing.T) {
	env, err := NewEventEnvelope(EventTypeTaskChanged, "test", TaskChangedPayload{TenantID: "t1", EntityID: "e1"})
	require.NoError(t, err)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, SchemaVersion, env.SchemaVersion)
	env.Metadata = map[string]string{HeaderTenantID: "t1"}

	pm, err := env.ToMessage(TopicTaskChanged, []byte("e1"))
	require.NoError(t, err)
	assert.Equal(t, EventTypeTaskChanged, pm.Headers[HeaderEventType])
	assert.Equal(t, "t1", pm.Headers[HeaderTenantID])

	decoded, err := MessageToEventEnvelope(&Message{Value: pm.Value})
	require.NoError(t, err)
	var payload TaskChangedPayload
	require.NoError(t, decoded.DecodePayload(&payload))
	assert.Equal(t, "e1", payload.EntityID)
}

func TestMessageToEventEnvelope_Invalid(t *testing.T) {
	_, err := MessageToEventEnvelope(&Message{})
	assert.Error(t, err)
	_, err = MessageToEventEnvelope(&Message{Value: []byte("{not json")})
	assert.Error(t, err)
}

func TestDecodePayload_Empty(t *testing.T) {
	env := &EventEnvelope{EventID: "x"}
	var p TaskChangedPayload
	assert.Error(t, env.DecodePayload(&p))
}

func TestDefaultTopics(t *testing.T) {
	topics := DefaultTopics("", "custom.tasks", "")
	require.Len(t, topics, 3)
	assert.Equal(t, TopicComplianceAlerts, topics[0].Name)
	assert.Equal(t, "custom.tasks", topics[1].Name)
	assert.Equal(t, TopicDeadLetter, topics[2].Name)
}

func TestCreateTopic(t *testing.T) {
	conn := &mockKafkaConn{}
	m := NewTopicManagerWithConn(conn, testutil.NewMockLogger())

	err := m.CreateTopic(context.Background(), TopicConfig{Name: "a", NumPartitions: 3, ReplicationFactor: 1, RetentionMs: 1000, CleanupPolicy: "delete"})
	require.NoError(t, err)
	require.Len(t, conn.created, 1)
	assert.Len(t, conn.created[0].ConfigEntries, 2)

	assert.Error(t, m.CreateTopic(context.Background(), TopicConfig{Name: "b"}))
}

func TestCreateTopic_AlreadyExists(t *testing.T) {
	conn := &mockKafkaConn{createFunc: func(...kafka.TopicConfig) error { return kafka.TopicAlreadyExists }}
	m := NewTopicManagerWithConn(conn, nil)
	assert.NoError(t, m.CreateTopic(context.Background(), TopicConfig{Name: "a", NumPartitions: 1, ReplicationFactor: 1}))
}

func TestEnsureTopics_StopsOnFailure(t *testing.T) {
	conn := &mockKafkaConn{createFunc: func(...kafka.TopicConfig) error { return errors.New("not controller") }}
	m := NewTopicManagerWithConn(conn, nil)

	err := m.EnsureTopics(context.Background(), DefaultTopics("", "", ""))
	require.Error(t, err)
	assert.Len(t, conn.created, 1)
}
