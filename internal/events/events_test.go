package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func TestNATSPublisher_Envelope(t *testing.T) {
	conn := &fakeConn{}
	p := NewNATSPublisher(conn, "interlock")

	require.NoError(t, p.Publish(context.Background(), SubjectLogFlagged, map[string]string{"log_id": "abc"}))
	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "interlock.logs.flagged", conn.subjects[0])

	var env struct {
		Subject string            `json:"subject"`
		Data    map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(conn.payloads[0], &env))
	assert.Equal(t, "interlock.logs.flagged", env.Subject)
	assert.Equal(t, "abc", env.Data["log_id"])
}

func TestNATSPublisher_Error(t *testing.T) {
	p := NewNATSPublisher(&fakeConn{err: errors.New("closed")}, "")
	assert.Error(t, p.Publish(context.Background(), SubjectActionExecuted, nil))
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), SubjectActionExecuted, 1))
}
