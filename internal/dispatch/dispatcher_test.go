package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/wolfman30/leadflow/internal/orchestrator"
	"github.com/wolfman30/leadflow/internal/session"
	"github.com/wolfman30/leadflow/pkg/logging"
)

type recordingHandler struct {
	mu       sync.Mutex
	seen     map[string][]string
	inFlight map[string]int
	overlap  bool
	delay    time.Duration
	block    chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{seen: map[string][]string{}, inFlight: map[string]int{}}
}

func (h *recordingHandler) Handle(_ context.Context, in orchestrator.Inbound) (orchestrator.Outbound, error) {
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	h.inFlight[in.SessionID]++
	if h.inFlight[in.SessionID] > 1 {
		h.overlap = true
	}
	h.mu.Unlock()

	time.Sleep(h.delay)

	h.mu.Lock()
	h.inFlight[in.SessionID]--
	h.seen[in.SessionID] = append(h.seen[in.SessionID], in.Text)
	h.mu.Unlock()

	if in.Text == "fail" {
		return orchestrator.Outbound{}, orchestrator.ErrEmptyMessage
	}
	return orchestrator.Outbound{SessionID: in.SessionID, ReplyText: "echo: " + in.Text}, nil
}

func newTestDispatcher(t *testing.T, h Handler, opts ...Option) *Dispatcher {
	t.Helper()
	opts = append([]Option{WithReceiveWaitSeconds(0), WithReceiveBatchSize(1)}, opts...)
	d := New(h, NewMemoryQueue(64), logging.Discard(), opts...)
	t.Cleanup(func() { _ = d.Shutdown(context.Background()) })
	return d
}

func TestDispatcher_Dispatch(t *testing.T) {
	d := newTestDispatcher(t, newRecordingHandler())

	out, err := d.Dispatch(context.Background(), orchestrator.Inbound{SessionID: "s1", Text: "hello"})
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if out.ReplyText != "echo: hello" {
		t.Fatalf("unexpected reply %q", out.ReplyText)
	}
}

func TestDispatcher_PropagatesHandlerError(t *testing.T) {
	d := newTestDispatcher(t, newRecordingHandler())

	_, err := d.Dispatch(context.Background(), orchestrator.Inbound{SessionID: "s1", Text: "fail"})
	if !errors.Is(err, orchestrator.ErrEmptyMessage) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestDispatcher_PerSessionOrder(t *testing.T) {
	h := newRecordingHandler()
	h.delay = time.Millisecond
	d := newTestDispatcher(t, h, WithLanes(3))

	const sessions, perSession = 6, 15
	var wg sync.WaitGroup
	for s := 0; s < sessions; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", s)
			for i := 0; i < perSession; i++ {
				if _, err := d.Dispatch(context.Background(), orchestrator.Inbound{SessionID: id, Text: fmt.Sprint(i)}); err != nil {
					t.Errorf("dispatch %s/%d: %v", id, i, err)
					return
				}
			}
		}(s)
	}
	wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.overlap {
		t.Fatalf("messages of one session were processed concurrently")
	}
	for s := 0; s < sessions; s++ {
		got := h.seen[fmt.Sprintf("s%d", s)]
		if len(got) != perSession {
			t.Fatalf("session s%d: expected %d messages, got %d", s, perSession, len(got))
		}
		for i, text := range got {
			if text != fmt.Sprint(i) {
				t.Fatalf("session s%d out of order at %d: %v", s, i, got)
			}
		}
	}
}

func TestDispatcher_ContextCancellation(t *testing.T) {
	h := newRecordingHandler()
	h.block = make(chan struct{})
	d := newTestDispatcher(t, h)
	defer close(h.block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := d.Dispatch(ctx, orchestrator.Inbound{SessionID: "s1", Text: "hello"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDispatcher_ShutdownRejectsNewWork(t *testing.T) {
	d := New(newRecordingHandler(), NewMemoryQueue(4), logging.Discard(), WithReceiveWaitSeconds(0))
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	_, err := d.Dispatch(context.Background(), orchestrator.Inbound{SessionID: "s1", Text: "late"})
	if !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("expected ErrDispatcherClosed, got %v", err)
	}
}

func TestDispatcher_ShutdownFailsPendingCallers(t *testing.T) {
	h := newRecordingHandler()
	h.block = make(chan struct{})
	d := New(h, NewMemoryQueue(4), logging.Discard(), WithReceiveWaitSeconds(0), WithLanes(1))

	errCh := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			_, err := d.Dispatch(context.Background(), orchestrator.Inbound{SessionID: "s1", Text: fmt.Sprint(i)})
			errCh <- err
		}(i)
	}
	time.Sleep(50 * time.Millisecond)

	shutdownErr := make(chan error, 1)
	go func() { shutdownErr <- d.Shutdown(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	close(h.block)

	if err := <-shutdownErr; err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	closed := 0
	for i := 0; i < 2; i++ {
		select {
		case err := <-errCh:
			if errors.Is(err, ErrDispatcherClosed) {
				closed++
			}
		case <-time.After(time.Second):
			t.Fatalf("caller %d never returned", i)
		}
	}
	if closed == 0 {
		t.Fatalf("expected at least one caller to see ErrDispatcherClosed")
	}
}

func TestDispatcher_WithEngine(t *testing.T) {
	engine := orchestrator.New(orchestrator.Config{
		Store:  session.NewMemoryStore(),
		Logger: logging.Discard(),
	})
	d := newTestDispatcher(t, engine)

	out, err := d.Dispatch(context.Background(), orchestrator.Inbound{SessionID: "s1", Text: "Hi"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if out.Phase != session.PhaseDiscovery || out.ReplyText == "" {
		t.Fatalf("unexpected outbound %+v", out)
	}
}

func TestLaneForIsStable(t *testing.T) {
	for _, id := range []string{"a", "session-42", ""} {
		first := laneFor(id, 7)
		if first < 0 || first >= 7 {
			t.Fatalf("lane %d out of range", first)
		}
		if laneFor(id, 7) != first {
			t.Fatalf("lane for %q not stable", id)
		}
	}
}

func TestMemoryQueue_ReceiveTimesOut(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := q.Receive(ctx, 1, 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestMemoryQueue_ReceiveBatches(t *testing.T) {
	q := NewMemoryQueue(8)
	for i := 0; i < 3; i++ {
		if err := q.Send(context.Background(), "g", fmt.Sprint(i)); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	msgs, err := q.Receive(context.Background(), 10, 1)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(msgs) != 3 || msgs[0].Body != "0" || msgs[2].Body != "2" {
		t.Fatalf("unexpected batch %+v", msgs)
	}
}

type fakeSQS struct {
	sent    []*sqs.SendMessageInput
	deleted []string
	recv    []sqstypes.Message
	err     error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, in)
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.ReceiveMessageOutput{Messages: f.recv}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSQueue_FIFOGroupsBySession(t *testing.T) {
	api := &fakeSQS{}
	q := NewSQSQueue(api, "https://sqs.us-east-1.amazonaws.com/123/leadflow-jobs.fifo")
	if err := q.Send(context.Background(), "s1", "{}"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := aws.ToString(api.sent[0].MessageGroupId); got != "s1" {
		t.Fatalf("expected group s1, got %q", got)
	}
	if aws.ToString(api.sent[0].MessageDeduplicationId) == "" {
		t.Fatalf("expected dedup id on fifo queue")
	}

	std := &fakeSQS{}
	if err := NewSQSQueue(std, "https://sqs.us-east-1.amazonaws.com/123/leadflow-jobs").Send(context.Background(), "s1", "{}"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if std.sent[0].MessageGroupId != nil {
		t.Fatalf("standard queue must not set a group id")
	}
}

func TestSQSQueue_ReceiveAndDelete(t *testing.T) {
	api := &fakeSQS{recv: []sqstypes.Message{{MessageId: aws.String("m1"), Body: aws.String("b"), ReceiptHandle: aws.String("r1")}}}
	q := NewSQSQueue(api, "url")
	msgs, err := q.Receive(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ReceiptHandle != "r1" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	if err := q.Delete(context.Background(), "r1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := q.Delete(context.Background(), ""); err != nil {
		t.Fatalf("delete empty: %v", err)
	}
	if len(api.deleted) != 1 {
		t.Fatalf("expected one delete, got %v", api.deleted)
	}
}

func TestSQSQueue_Errors(t *testing.T) {
	q := NewSQSQueue(&fakeSQS{err: errors.New("denied")}, "url")
	if err := q.Send(context.Background(), "s", "b"); err == nil {
		t.Fatalf("expected send error")
	}
	if _, err := q.Receive(context.Background(), 1, 0); err == nil {
		t.Fatalf("expected receive error")
	}
}
