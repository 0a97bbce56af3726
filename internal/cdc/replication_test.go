package cdc

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeStream struct {
	messages []RawMessage
	idx      int
	failAt   int // index at which Next returns failErr instead; -1 disables
	failErr  error
}

func (s *fakeStream) Next(ctx context.Context) (RawMessage, error) {
	if s.failAt >= 0 && s.idx == s.failAt {
		return RawMessage{}, s.failErr
	}
	if s.idx >= len(s.messages) {
		return RawMessage{}, ErrStreamExhausted
	}
	m := s.messages[s.idx]
	s.idx++
	return m, nil
}

func (s *fakeStream) Close() error { return nil }

type passthroughDecoder struct{}

func (passthroughDecoder) Decode(raw []byte, position int64) ([]ChangeRecord, error) {
	return []ChangeRecord{{Relation: "metrics", Columns: map[string]any{"metric_id": string(raw)}, Position: position}}, nil
}

func TestReplicationClientProcessesAndPersistsCheckpoint(t *testing.T) {
	checkpoints := NewMemoryCheckpointStore()
	stream := &fakeStream{
		messages: []RawMessage{
			{Data: []byte("m1"), Position: 10},
			{Data: []byte("m2"), Position: 20},
		},
		failAt: -1,
	}
	factory := func(ctx context.Context, startPosition int64) (MessageStream, error) {
		return stream, nil
	}

	client := NewReplicationClient("slot1", factory, passthroughDecoder{}, checkpoints, 10, NewBackoff(10*time.Millisecond, 2, time.Second, false, 0))

	var seen []string
	delay, err := client.Poll(context.Background(), func(rec ChangeRecord) error {
		seen = append(seen, rec.Columns["metric_id"].(string))
		return nil
	})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if delay != 0 {
		t.Fatalf("expected no delay on success, got %s", delay)
	}
	if len(seen) != 2 || seen[0] != "m1" || seen[1] != "m2" {
		t.Fatalf("unexpected handled records: %v", seen)
	}

	pos, ok, err := checkpoints.Load("slot1")
	if err != nil || !ok || pos != 20 {
		t.Fatalf("expected checkpoint 20, got pos=%d ok=%v err=%v", pos, ok, err)
	}
}

func TestReplicationClientRespectsMaxBatchMessages(t *testing.T) {
	checkpoints := NewMemoryCheckpointStore()
	stream := &fakeStream{
		messages: []RawMessage{
			{Data: []byte("m1"), Position: 1},
			{Data: []byte("m2"), Position: 2},
			{Data: []byte("m3"), Position: 3},
		},
		failAt: -1,
	}
	factory := func(ctx context.Context, startPosition int64) (MessageStream, error) {
		return stream, nil
	}
	client := NewReplicationClient("slot1", factory, passthroughDecoder{}, checkpoints, 2, NewBackoff(10*time.Millisecond, 2, time.Second, false, 0))

	var count int
	_, err := client.Poll(context.Background(), func(rec ChangeRecord) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected exactly 2 records processed (batch cap), got %d", count)
	}
	pos, _, _ := checkpoints.Load("slot1")
	if pos != 2 {
		t.Fatalf("expected checkpoint at the batch boundary (2), got %d", pos)
	}
}

func TestReplicationClientResumesFromCheckpoint(t *testing.T) {
	checkpoints := NewMemoryCheckpointStore()
	if err := checkpoints.Save("slot1", 100); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	var gotStart int64
	stream := &fakeStream{failAt: -1}
	factory := func(ctx context.Context, startPosition int64) (MessageStream, error) {
		gotStart = startPosition
		return stream, nil
	}
	client := NewReplicationClient("slot1", factory, passthroughDecoder{}, checkpoints, 10, NewBackoff(10*time.Millisecond, 2, time.Second, false, 0))

	if _, err := client.Poll(context.Background(), func(rec ChangeRecord) error { return nil }); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if gotStart != 100 {
		t.Fatalf("expected stream factory to resume from 100, got %d", gotStart)
	}
}

func TestReplicationClientStreamErrorReturnsBackoffDelay(t *testing.T) {
	checkpoints := NewMemoryCheckpointStore()
	streamErr := errors.New("connection reset")
	stream := &fakeStream{
		messages: []RawMessage{{Data: []byte("m1"), Position: 1}},
		failAt:   1,
		failErr:  streamErr,
	}
	factory := func(ctx context.Context, startPosition int64) (MessageStream, error) {
		return stream, nil
	}
	backoff := NewBackoff(50*time.Millisecond, 2, time.Second, false, 0)
	client := NewReplicationClient("slot1", factory, passthroughDecoder{}, checkpoints, 10, backoff)

	delay, err := client.Poll(context.Background(), func(rec ChangeRecord) error { return nil })
	if err == nil {
		t.Fatalf("expected error from stream failure")
	}
	if delay != 50*time.Millisecond {
		t.Fatalf("expected first backoff delay 50ms, got %s", delay)
	}

	pos, ok, _ := checkpoints.Load("slot1")
	if !ok || pos != 1 {
		t.Fatalf("expected checkpoint saved up to the last good message (1), got pos=%d ok=%v", pos, ok)
	}
}

func TestReplicationClientFactoryErrorReturnsBackoffDelay(t *testing.T) {
	checkpoints := NewMemoryCheckpointStore()
	factoryErr := errors.New("dial failed")
	factory := func(ctx context.Context, startPosition int64) (MessageStream, error) {
		return nil, factoryErr
	}
	backoff := NewBackoff(20*time.Millisecond, 2, time.Second, false, 0)
	client := NewReplicationClient("slot1", factory, passthroughDecoder{}, checkpoints, 10, backoff)

	delay, err := client.Poll(context.Background(), func(rec ChangeRecord) error { return nil })
	if err == nil {
		t.Fatalf("expected factory error to surface")
	}
	if delay != 20*time.Millisecond {
		t.Fatalf("expected backoff delay 20ms, got %s", delay)
	}
}

func TestReplicationClientSuccessResetsBackoff(t *testing.T) {
	checkpoints := NewMemoryCheckpointStore()
	backoff := NewBackoff(20*time.Millisecond, 2, time.Second, false, 0)

	failingStream := &fakeStream{failAt: 0, failErr: errors.New("boom")}
	failFactory := func(ctx context.Context, startPosition int64) (MessageStream, error) {
		return failingStream, nil
	}
	client := NewReplicationClient("slot1", failFactory, passthroughDecoder{}, checkpoints, 10, backoff)
	if _, err := client.Poll(context.Background(), func(rec ChangeRecord) error { return nil }); err == nil {
		t.Fatalf("expected error")
	}
	if backoff.Attempt() != 1 {
		t.Fatalf("expected 1 recorded attempt, got %d", backoff.Attempt())
	}

	okStream := &fakeStream{failAt: -1}
	client.streamFactory = func(ctx context.Context, startPosition int64) (MessageStream, error) {
		return okStream, nil
	}
	if _, err := client.Poll(context.Background(), func(rec ChangeRecord) error { return nil }); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if backoff.Attempt() != 0 {
		t.Fatalf("expected backoff reset to 0 after success, got %d", backoff.Attempt())
	}
}
