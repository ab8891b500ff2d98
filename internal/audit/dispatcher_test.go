package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type blockingRecorder struct {
	release chan struct{}

	mu     sync.Mutex
	events []Event
}

func (r *blockingRecorder) Record(ctx context.Context, event Event) error {
	<-r.release

	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)

	return nil
}

func TestDispatcher(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	actor := Actor{UserId: "user-1", UserName: "Ada"}

	t.Run("records dispatched events in order", func(t *testing.T) {
		recorder := NewMockRecorder(t)
		first := NewEvent(KindDocumentUpdated, "doc1", actor, map[string]any{"page": 1})
		second := NewEvent(KindDocumentUpdated, "doc1", actor, map[string]any{"page": 2})

		var recorded []string
		recorder.On("Record", mock.Anything, mock.AnythingOfType("audit.Event")).
			Run(func(args mock.Arguments) {
				recorded = append(recorded, args.Get(1).(Event).Id)
			}).
			Return(nil).
			Twice()

		dispatcher := NewDispatcher(logger, recorder, 8, time.Second)
		dispatcher.Dispatch(first)
		dispatcher.Dispatch(second)
		dispatcher.Stop()

		assert.Equal(t, []string{first.Id, second.Id}, recorded)
	})

	t.Run("recorder failure is swallowed", func(t *testing.T) {
		recorder := NewMockRecorder(t)
		recorder.On("Record", mock.Anything, mock.Anything).
			Return(errors.New("audit store unavailable")).
			Once()

		dispatcher := NewDispatcher(logger, recorder, 8, time.Second)

		assert.NotPanics(t, func() {
			dispatcher.Dispatch(NewEvent(KindDocumentUpdated, "doc1", actor, nil))
			dispatcher.Stop()
		})
	})

	t.Run("record runs with a deadline", func(t *testing.T) {
		recorder := NewMockRecorder(t)
		recorder.On("Record", mock.MatchedBy(func(ctx context.Context) bool {
			_, ok := ctx.Deadline()
			return ok
		}), mock.Anything).Return(nil).Once()

		dispatcher := NewDispatcher(logger, recorder, 8, time.Second)
		dispatcher.Dispatch(NewEvent(KindDocumentUpdated, "doc1", actor, nil))
		dispatcher.Stop()
	})

	t.Run("dispatch does not block when the queue is full", func(t *testing.T) {
		recorder := &blockingRecorder{release: make(chan struct{})}
		dispatcher := NewDispatcher(logger, recorder, 1, time.Second)

		done := make(chan struct{})
		go func() {
			for i := 0; i < 10; i++ {
				dispatcher.Dispatch(NewEvent(KindDocumentUpdated, "doc1", actor, i))
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("dispatch blocked on a full queue")
		}

		close(recorder.release)
		dispatcher.Stop()

		recorder.mu.Lock()
		defer recorder.mu.Unlock()
		assert.NotEmpty(t, recorder.events)
		assert.Less(t, len(recorder.events), 10)
	})

	t.Run("dispatch after stop is dropped", func(t *testing.T) {
		recorder := NewMockRecorder(t)
		dispatcher := NewDispatcher(logger, recorder, 1, time.Second)
		dispatcher.Stop()

		assert.NotPanics(t, func() {
			dispatcher.Dispatch(NewEvent(KindDocumentUpdated, "doc1", actor, nil))
			dispatcher.Stop()
		})
	})
}
