package ipc

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstehr/vimy/vimy-colony/model"
)

func TestEnvelopeFraming(t *testing.T) {
	var buf bytes.Buffer
	env, err := NewEnvelope(TypeAck, AckMessage{Status: "ok", ColonyID: "c1"})
	require.NoError(t, err)
	require.NoError(t, WriteEnvelope(&buf, env))

	var length uint32
	require.NoError(t, binary.Read(bytes.NewReader(buf.Bytes()[:4]), binary.LittleEndian, &length))
	assert.Equal(t, buf.Len()-4, int(length))

	got, err := ReadEnvelope(&buf)
	require.NoError(t, err)
	assert.Equal(t, TypeAck, got.Type)
	var ack AckMessage
	require.NoError(t, got.Decode(&ack))
	assert.Equal(t, AckMessage{Status: "ok", ColonyID: "c1"}, ack)
}

func TestReadEnvelopeRejectsBadLength(t *testing.T) {
	for _, n := range []uint32{0, MaxFrame + 1} {
		var buf bytes.Buffer
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, n))
		_, err := ReadEnvelope(&buf)
		assert.ErrorContains(t, err, "invalid message length")
	}
}

func TestReadEnvelopeTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(10)))
	buf.WriteString("{}")
	_, err := ReadEnvelope(&buf)
	assert.ErrorContains(t, err, "read payload")
}

func TestTerrainGrid(t *testing.T) {
	td := &TerrainData{Cols: 2, Rows: 1, CellW: 10, CellH: 10, Grid: []int{1, 9}}
	g := td.TerrainGrid()
	require.NotNil(t, g)
	assert.Equal(t, []model.TerrainType{model.TerrainWater, model.TerrainLand}, g.Grid)

	var none *TerrainData
	assert.Nil(t, none.TerrainGrid())
}

func TestConnectionDispatchesAndReplies(t *testing.T) {
	server, client := net.Pipe()
	c := NewConnection(server, nil, nil)
	c.RegisterHandler(TypeHello, func(env Envelope) (*Envelope, error) {
		var hello HelloMessage
		if err := env.Decode(&hello); err != nil {
			return nil, err
		}
		reply, err := NewEnvelope(TypeAck, AckMessage{Status: "ok", ColonyID: hello.ColonyID})
		return &reply, err
	})
	done := make(chan struct{})
	go func() {
		c.ReadLoop()
		close(done)
	}()

	require.NoError(t, client.SetDeadline(time.Now().Add(5*time.Second)))
	// Unknown types are skipped without a reply.
	unknown := Envelope{Type: "bogus", Data: json.RawMessage(`{}`)}
	require.NoError(t, WriteEnvelope(client, unknown))
	hello, err := NewEnvelope(TypeHello, HelloMessage{ColonyID: "c1", Personality: model.Builder})
	require.NoError(t, err)
	require.NoError(t, WriteEnvelope(client, hello))

	reply, err := ReadEnvelope(client)
	require.NoError(t, err)
	assert.Equal(t, TypeAck, reply.Type)
	var ack AckMessage
	require.NoError(t, reply.Decode(&ack))
	assert.Equal(t, "c1", ack.ColonyID)

	client.Close()
	<-done
}
