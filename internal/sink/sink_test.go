package sink

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/fxamacker/cbor/v2"
	"github.com/leandrodaf/midiscan/internal/config"
	"github.com/leandrodaf/midiscan/internal/logger"
	"github.com/leandrodaf/midiscan/sdk/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	messages     []published
	err          error
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	}
	c.messages = append(c.messages, published{topic: topic, qos: qos, retained: retained, payload: data})
	return newFakeToken(c.err)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) sent() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.messages...)
}

func testSink(client *fakeClient, format string) *MQTTSink {
	s := newMQTTSink(client, config.MQTTConfig{TopicPrefix: "studio/", QoS: 1, Format: format}, logger.NewNopLogger())
	s.now = func() time.Time { return time.Unix(0, 42) }
	return s
}

func TestNewRecord(t *testing.T) {
	rec := NewRecord("dev", contracts.NoteOn{Note: 60, Velocity: 0}, 7)
	require.NotNil(t, rec.Note)
	require.NotNil(t, rec.Velocity)
	assert.Equal(t, byte(60), *rec.Note)
	assert.Equal(t, byte(0), *rec.Velocity)
	assert.Nil(t, rec.Controller)
	assert.Equal(t, "note_on", rec.Kind)

	rec = NewRecord("dev", contracts.ControlChange{Controller: 7, Value: 64}, 7)
	assert.Nil(t, rec.Note)
	assert.Equal(t, byte(64), *rec.Value)
	assert.Equal(t, "control_change", rec.Kind)
}

func TestEncode_JSONKeepsZeroVelocity(t *testing.T) {
	data, err := Encode(config.FormatJSON, NewRecord("dev", contracts.NoteOn{Note: 60}, 1))
	require.NoError(t, err)
	assert.JSONEq(t, `{"device_id":"dev","kind":"note_on","timestamp":1,"note":60,"velocity":0}`, string(data))
}

func TestEncode_CBOR(t *testing.T) {
	data, err := Encode(config.FormatCBOR, NewRecord("dev", contracts.ControlChange{Controller: 7, Value: 64}, 1))
	require.NoError(t, err)

	var decoded map[int]interface{}
	require.NoError(t, cbor.Unmarshal(data, &decoded))
	assert.Equal(t, "dev", decoded[1])
	assert.Equal(t, "control_change", decoded[2])
	assert.EqualValues(t, 7, decoded[6])
	assert.EqualValues(t, 64, decoded[7])
	assert.NotContains(t, decoded, 4)
}

func TestEncode_UnknownFormat(t *testing.T) {
	_, err := Encode("xml", Record{})
	assert.True(t, errors.Is(err, ErrUnknownFormat))
}

func TestTopic_SanitisesDeviceID(t *testing.T) {
	s := testSink(&fakeClient{}, config.FormatJSON)
	assert.Equal(t, "studio/coremidi:1_Keys_2/note_on", s.Topic("coremidi:1/Keys#2", contracts.KindNoteOn))
}

func TestHandle_PublishesAndClose(t *testing.T) {
	client := &fakeClient{}
	s := testSink(client, config.FormatJSON)

	s.Handle("winmm:0:Pads", contracts.NoteOn{Note: 36, Velocity: 90})
	require.NoError(t, s.Close())

	msgs := client.sent()
	require.Len(t, msgs, 2)
	assert.Equal(t, "studio/winmm:0:Pads/note_on", msgs[0].topic)
	assert.Equal(t, byte(1), msgs[0].qos)
	assert.False(t, msgs[0].retained)

	var rec Record
	require.NoError(t, json.Unmarshal(msgs[0].payload, &rec))
	assert.Equal(t, uint64(42), rec.Timestamp)
	assert.Equal(t, byte(90), *rec.Velocity)

	assert.Equal(t, "studio/status", msgs[1].topic)
	assert.True(t, msgs[1].retained)
	assert.Equal(t, "offline", string(msgs[1].payload))
	assert.True(t, client.disconnected)
}

func TestHandle_PublishErrorIsNotFatal(t *testing.T) {
	client := &fakeClient{err: errors.New("broker gone")}
	s := testSink(client, config.FormatCBOR)

	s.Handle("dev", contracts.ControlChange{Controller: 1, Value: 2})
	require.NoError(t, s.Close())
	assert.Len(t, client.sent(), 2)
}

func TestHandle_AfterCloseDropped(t *testing.T) {
	client := &fakeClient{}
	s := testSink(client, config.FormatJSON)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s.Handle("dev", contracts.NoteOn{Note: 1, Velocity: 1})
	assert.Len(t, client.sent(), 1)
}

func TestBuildClientOptions(t *testing.T) {
	opts := buildClientOptions(config.MQTTConfig{
		Broker:      "tcp://broker:1883",
		ClientID:    "midiscan",
		TopicPrefix: "studio",
		Username:    "user",
		Password:    "pass",
	})

	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "broker:1883", opts.Servers[0].Host)
	assert.Equal(t, "midiscan", opts.ClientID)
	assert.Equal(t, "user", opts.Username)
	assert.True(t, opts.WillEnabled)
	assert.Equal(t, "studio/status", opts.WillTopic)
	assert.True(t, opts.AutoReconnect)
}
