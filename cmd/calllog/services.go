package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/broady/calllog"
	"github.com/broady/calllog/middleware"
	"github.com/broady/calllog/rpc"
)

var errDivideByZero = errors.New("divide by zero")

type AddRequest struct {
	A int `json:"a" schema:"a"`
	B int `json:"b" schema:"b"`
}

type DivideRequest struct {
	A int `json:"a"`
	B int `json:"b"`
}

type CreateTaskRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

type Task struct {
	ID      uuid.UUID `json:"id"`
	Title   string    `json:"title"`
	Created time.Time `json:"created"`
}

type CountRequest struct {
	N        int           `json:"n" validate:"gte=0,lte=1000"`
	Interval time.Duration `json:"interval"`
}

func add(ctx context.Context, a, b int) (int, error) {
	return a + b, nil
}

func divide(ctx context.Context, a, b int) (int, error) {
	if b == 0 {
		return 0, errDivideByZero
	}
	return a / b, nil
}

func ping(ctx context.Context) (any, error) {
	return nil, nil
}

// taskStore keeps created tasks in memory.
type taskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*Task
	now   func() time.Time
}

func newTaskStore() *taskStore {
	return &taskStore{tasks: make(map[uuid.UUID]*Task), now: time.Now}
}

func (s *taskStore) Create(ctx context.Context, req *CreateTaskRequest) (*Task, error) {
	t := &Task{ID: uuid.New(), Title: req.Title, Created: s.now().UTC()}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
	return t, nil
}

type GetTaskRequest struct {
	ID string `schema:"id" validate:"required,uuid"`
}

func (s *taskStore) Get(ctx context.Context, req *GetTaskRequest) (*Task, error) {
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return nil, rpc.Errorf(rpc.CodeInvalidArgument, "id: %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, rpc.Errorf(rpc.CodeNotFound, "task %s not found", id)
	}
	return t, nil
}

func count(ctx context.Context, req *CountRequest, e rpc.Emitter[int]) error {
	var tick <-chan time.Time
	if req.Interval > 0 {
		t := time.NewTicker(req.Interval)
		defer t.Stop()
		tick = t.C
	}
	for i := range req.N {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}
		if err := e.Send(i); err != nil {
			return err
		}
	}
	return nil
}

// transformError reports domain errors as invalid arguments. The handlers
// return them unchanged so the call log shows the original error.
func transformError(err error) *rpc.Error {
	if errors.Is(err, errDivideByZero) {
		return rpc.NewError(rpc.CodeInvalidArgument, err.Error())
	}
	return nil
}

// newApp builds the demo services. Calls to endpoints matching within are
// logged with l; every endpoint is measured by metrics when it is non-nil.
func newApp(appLog *slog.Logger, l *calllog.Logger, within []string, metrics *middleware.Metrics) *rpc.App {
	app := rpc.NewApp().WithLogger(appLog).WithErrorTransformer(transformError)
	if metrics != nil {
		app.WithUnaryInterceptor(metrics.Interceptor())
	}
	app.Intercept(rpc.Within(within...),
		middleware.LoggingInterceptor(l),
		middleware.StreamLoggingInterceptor(l))

	math := app.Service("Math")
	math.Register("Add", rpc.Query(func(ctx context.Context, req *AddRequest) (int, error) {
		return add(ctx, req.A, req.B)
	}))
	math.Register("Divide", rpc.Exec(func(ctx context.Context, req *DivideRequest) (int, error) {
		return divide(ctx, req.A, req.B)
	}))

	app.Service("Status").Register("Ping", rpc.Exec(func(ctx context.Context, _ rpc.Empty) (rpc.Empty, error) {
		return nil, nil
	}))

	store := newTaskStore()
	tasks := app.Service("Tasks")
	tasks.Register("Create", rpc.Exec(store.Create))
	tasks.Register("Get", rpc.Query(store.Get))

	app.Service("Clock").Register("Count", rpc.Stream(count))
	return app
}
