package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veselov/meetsync/internal/core"
	"github.com/veselov/meetsync/internal/domain"
)

type inboundRecorder struct {
	mu       sync.Mutex
	messages []domain.Message
	channels []string
}

func (r *inboundRecorder) sink() core.MessageSink {
	return func(msg domain.Message, channel string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.messages = append(r.messages, msg)
		r.channels = append(r.channels, channel)
	}
}

func (r *inboundRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func (r *inboundRecorder) first() (domain.Message, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages[0], r.channels[0]
}

func TestAPIClient_FetchStateAndAcknowledge(t *testing.T) {
	req := require.New(t)
	var gotAck domain.Acknowledgment

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/sessions/s1/state":
			json.NewEncoder(w).Encode(map[string]any{"session_status": "active"})
		case "/api/sessions/s1/commands/acknowledge":
			req.Equal(http.MethodPost, r.Method)
			req.NoError(json.NewDecoder(r.Body).Decode(&gotAck))
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	api := NewAPIClient(srv.URL, "s1", time.Second)

	state, err := api.FetchState(context.Background())
	req.NoError(err)
	req.Equal("active", state["session_status"])

	err = api.PostAcknowledgment(context.Background(), domain.Acknowledgment{
		MessageID:     "m1",
		ParticipantID: "p1",
	})
	req.NoError(err)
	req.Equal(domain.MessageID("m1"), gotAck.MessageID)
}

func TestPollingChannel_DrainsCommands(t *testing.T) {
	req := require.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req.Equal("/api/sessions/s1/commands", r.URL.Path)
		json.NewEncoder(w).Encode([]domain.Message{
			{ID: "m1", Command: domain.CmdAnnouncement},
			{ID: "m2", Command: domain.CmdMuteAllStudents},
		})
	}))
	defer srv.Close()

	rec := &inboundRecorder{}
	p := NewPollingChannel(NewAPIClient(srv.URL, "s1", time.Second), rec.sink(), 20*time.Millisecond)
	req.NoError(p.Activate(context.Background()))
	defer p.Deactivate()

	req.Eventually(func() bool { return rec.count() >= 2 }, time.Second, 10*time.Millisecond)
	msg, channel := rec.first()
	req.Equal(domain.MessageID("m1"), msg.ID)
	req.Equal(core.ChannelPolling, channel)
}

func TestSSEChannel_ParsesEventStream(t *testing.T) {
	req := require.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req.Equal("/api/sessions/s1/events", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "data: {\"message_id\":\"m1\",\"command\":\"session_announcement\"}\n\n")
		fmt.Fprint(w, "{\"message_id\":\"m2\",\"command\":\"sync_state\"}\n")
		w.(http.Flusher).Flush()
		// hold the stream open briefly so the client reads everything
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	rec := &inboundRecorder{}
	s := NewSSEChannel(NewAPIClient(srv.URL, "s1", time.Second), rec.sink(), 5)
	req.NoError(s.Activate(context.Background()))
	defer s.Deactivate()

	req.Eventually(func() bool { return rec.count() >= 2 }, time.Second, 10*time.Millisecond)
	msg, channel := rec.first()
	req.Equal(domain.MessageID("m1"), msg.ID)
	req.Equal(core.ChannelServerPush, channel)
}

func TestSSEChannel_DegradesAfterMaxAttempts(t *testing.T) {
	req := require.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rec := &inboundRecorder{}
	// One attempt keeps the backoff wait out of the test.
	s := NewSSEChannel(NewAPIClient(srv.URL, "s1", time.Second), rec.sink(), 1)
	req.NoError(s.Activate(context.Background()))

	req.Eventually(func() bool { return s.Degraded() }, time.Second, 10*time.Millisecond)
	req.False(s.Active())

	// A connectivity-triggered Activate resets the degraded flag.
	req.NoError(s.Activate(context.Background()))
	time.Sleep(10 * time.Millisecond)
	s.Deactivate()
}

func TestDataChannel_InjectAndSend(t *testing.T) {
	req := require.New(t)
	rec := &inboundRecorder{}
	d := NewDataChannel(rec.sink())

	// Inactive channel drops payloads.
	d.Inject([]byte(`{"message_id":"early","command":"x"}`))
	req.Zero(rec.count())

	req.NoError(d.Activate(context.Background()))
	d.Inject([]byte(`{"message_id":"m1","command":"chat_message"}`))
	req.Equal(1, rec.count())

	d.Inject([]byte(`not json`)) // dropped, not fatal
	req.Equal(1, rec.count())

	// Sending requires a bound publisher.
	req.ErrorIs(d.TrySend(domain.Message{ID: "out"}), ErrNoPublisher)

	var published []byte
	d.BindPublisher(func(payload []byte) error {
		published = payload
		return nil
	})
	req.NoError(d.TrySend(domain.Message{ID: "out", Command: domain.CmdChatMessage}))

	var round domain.Message
	req.NoError(json.Unmarshal(published, &round))
	req.Equal(domain.MessageID("out"), round.ID)
}

func TestSSEChannel_SendUnsupported(t *testing.T) {
	s := NewSSEChannel(NewAPIClient("http://unused", "s1", time.Second), (&inboundRecorder{}).sink(), 5)
	require.ErrorIs(t, s.TrySend(domain.Message{}), core.ErrSendUnsupported)
}
