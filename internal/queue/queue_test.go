package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	ierrors "github.com/adverant/nexus/idextract-worker/internal/errors"
	"github.com/adverant/nexus/idextract-worker/internal/extract"
	"github.com/adverant/nexus/idextract-worker/internal/processor"
	"github.com/adverant/nexus/idextract-worker/internal/storage"
)

type fakeProcessor struct {
	mu       sync.Mutex
	err      error
	block    bool
	requests []*processor.ProcessRequest
	statuses []string
}

func (f *fakeProcessor) ProcessDocument(ctx context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &processor.ProcessResult{
		RecordID:         11,
		Record:           &extract.Record{Name: "Anil Sharma", DOB: "12/04/1988", Age: 36},
		ProcessingTimeMs: 5,
	}, nil
}

func (f *fakeProcessor) UpdateJobStatus(ctx context.Context, jobID string, status string, metadata map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	return nil
}

func newTestQueue(t *testing.T, proc *fakeProcessor) (*miniredis.Miniredis, *RedisProducer, *RedisConsumer) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	consumer, err := NewRedisConsumerFromClient(client, &RedisConsumerConfig{
		QueueName:   "q",
		Processor:   proc,
		PollTimeout: time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	return mr, NewRedisProducer(client, "q", 2), consumer
}

func TestJobPayloadUnmarshalFileBuffer(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		want    []byte
		wantErr bool
	}{
		{"base64", `{"jobId":"a","fileBuffer":"AQID"}`, []byte{1, 2, 3}, false},
		{"node buffer", `{"jobId":"a","fileBuffer":{"type":"Buffer","data":[1,2,3]}}`, []byte{1, 2, 3}, false},
		{"absent", `{"jobId":"a"}`, nil, false},
		{"bad base64", `{"fileBuffer":"***"}`, nil, true},
		{"wrong type", `{"fileBuffer":{"type":"Blob","data":[1]}}`, nil, true},
		{"out of range", `{"fileBuffer":{"type":"Buffer","data":[300]}}`, nil, true},
		{"number", `{"fileBuffer":7}`, nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var p JobPayload
			err := json.Unmarshal([]byte(tc.json), &p)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if !tc.wantErr && !bytes.Equal(p.FileBuffer, tc.want) {
				t.Errorf("FileBuffer = %v, want %v", p.FileBuffer, tc.want)
			}
		})
	}
}

func TestRedisQueueCompletesJob(t *testing.T) {
	proc := &fakeProcessor{}
	mr, producer, consumer := newTestQueue(t, proc)
	ctx := context.Background()

	id, err := producer.Submit(ctx, &JobPayload{Filename: "card.png", FileBuffer: []byte{0x89, 'P'}})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if id == "" {
		t.Fatal("Submit() returned empty id")
	}

	if err := consumer.processNextJob(ctx); err != nil {
		t.Fatalf("processNextJob() error = %v", err)
	}

	if len(proc.requests) != 1 || proc.requests[0].JobID != id || !bytes.Equal(proc.requests[0].FileBuffer, []byte{0x89, 'P'}) {
		t.Fatalf("requests = %+v", proc.requests)
	}
	if ok, _ := mr.IsMember("q:completed", id); !ok {
		t.Error("job not in completed set")
	}
	if ok, _ := mr.IsMember("q:processing", id); ok {
		t.Error("job still in processing set")
	}
	if got := mr.HGet("q:results", id); got == "" {
		t.Error("no result stored")
	}
	want := []string{storage.JobStatusProcessing, storage.JobStatusCompleted}
	if len(proc.statuses) != 2 || proc.statuses[0] != want[0] || proc.statuses[1] != want[1] {
		t.Errorf("statuses = %v, want %v", proc.statuses, want)
	}

	stats, err := consumer.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats["completed"] != 1 || stats["waiting"] != 0 {
		t.Errorf("stats = %v", stats)
	}
}

func TestRedisQueueRetriesThenFails(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("connection reset")}
	mr, producer, consumer := newTestQueue(t, proc)
	ctx := context.Background()

	id, err := producer.Submit(ctx, &JobPayload{JobID: "job-1", Filename: "card.png"})
	if err != nil {
		t.Fatal(err)
	}

	if err := consumer.processNextJob(ctx); err != nil {
		t.Fatal(err)
	}
	if list, _ := mr.List("q"); len(list) != 1 || list[0] != id {
		t.Fatalf("queue after first failure = %v", list)
	}
	var job RedisJobData
	if err := json.Unmarshal([]byte(mr.HGet("q:data", id)), &job); err != nil {
		t.Fatal(err)
	}
	if job.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", job.Attempts)
	}

	if err := consumer.processNextJob(ctx); err != nil {
		t.Fatal(err)
	}
	if ok, _ := mr.IsMember("q:failed", id); !ok {
		t.Error("job not in failed set after max retries")
	}
	if mr.HGet("q:errors", id) == "" {
		t.Error("no error stored")
	}
}

func TestRedisQueueDecodeFailureSkipsRetry(t *testing.T) {
	proc := &fakeProcessor{err: ierrors.NewImageDecodeError("job-2", errors.New("unknown format"))}
	mr, producer, consumer := newTestQueue(t, proc)
	ctx := context.Background()

	id, err := producer.Submit(ctx, &JobPayload{JobID: "job-2"})
	if err != nil {
		t.Fatal(err)
	}
	if err := consumer.processNextJob(ctx); err != nil {
		t.Fatal(err)
	}
	if ok, _ := mr.IsMember("q:failed", id); !ok {
		t.Error("decode failure should fail without retry")
	}
	var meta map[string]interface{}
	if err := json.Unmarshal([]byte(mr.HGet("q:errors", id)), &meta); err != nil {
		t.Fatal(err)
	}
	if meta["error_code"] != string(ierrors.ErrorImageDecodeFailed) {
		t.Errorf("error meta = %v", meta)
	}
}

func TestRedisQueueEmpty(t *testing.T) {
	_, _, consumer := newTestQueue(t, &fakeProcessor{})
	if err := consumer.processNextJob(context.Background()); !errors.Is(err, errNoJobs) {
		t.Errorf("err = %v, want errNoJobs", err)
	}
}

func TestRunJobTimeout(t *testing.T) {
	proc := &fakeProcessor{block: true}
	_, err := runJob(context.Background(), proc, &JobPayload{JobID: "job-3"}, 20*time.Millisecond)
	if code, ok := ierrors.CodeOf(err); !ok || code != ierrors.ErrorProcessingTimeout {
		t.Fatalf("err = %v, want PROCESSING_TIMEOUT", err)
	}
	if !retryable(err) {
		t.Error("timeouts should be retryable")
	}
}

func TestFailedMetadataCarriesCode(t *testing.T) {
	err := ierrors.NewStorageFailedError("job-4", errors.New("disk full"))
	meta := failedMetadata(err, 2, 1500*time.Millisecond)
	if meta["error_code"] != "STORAGE_FAILED" || meta["attempts"] != 2 || meta["processingTime"] != int64(1500) {
		t.Errorf("meta = %v", meta)
	}
	if meta["error"] == "" {
		t.Error("missing error message")
	}
}
