package tasks

import (
	"context"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"greendrake/r1/internal/config"
	"greendrake/r1/internal/services"
)

// TaskType defines the type of a background task.
const (
	// TypePaymentReconcile repairs completed contact payments that are
	// missing their contact case (a webhook acked but the case insert failed).
	TypePaymentReconcile = "payment:reconcile"
	// TypePaymentPoll queries the gateway for payments stuck in pending,
	// covering callbacks that never arrived.
	TypePaymentPoll = "payment:poll_pending"
)

// Enqueuer is the subset of asynq.Client the task handlers need to
// schedule their own next run.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	opts := rdb.Options()
	clientOpt := asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
	return asynq.NewClient(clientOpt)
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg            *config.Config
	paymentService services.IPaymentService
	taskClient     Enqueuer
}

func NewTaskProcessor(cfg *config.Config, paymentService services.IPaymentService, taskClient Enqueuer) *TaskProcessor {
	return &TaskProcessor{
		cfg:            cfg,
		paymentService: paymentService,
		taskClient:     taskClient,
	}
}

// Bootstrap enqueues the first run of each periodic sweep. Both handlers
// re-enqueue themselves, so this only needs to happen once per worker start;
// duplicate sweeps caused by restarts are harmless because the underlying
// service operations are idempotent.
func (p *TaskProcessor) Bootstrap(ctx context.Context) error {
	if _, err := p.taskClient.EnqueueContext(ctx, asynq.NewTask(TypePaymentReconcile, nil)); err != nil {
		return fmt.Errorf("failed to enqueue initial reconcile sweep: %w", err)
	}
	if _, err := p.taskClient.EnqueueContext(ctx, asynq.NewTask(TypePaymentPoll, nil)); err != nil {
		return fmt.Errorf("failed to enqueue initial pending poll: %w", err)
	}
	return nil
}

// SetupServer configures and returns an Asynq server instance.
func SetupServer(rdb *redis.Client, processor *TaskProcessor, isBgWorker bool) *asynq.Server {
	opts := rdb.Options()
	serverOpt := asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				fmt.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v\n", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	if !isBgWorker {
		fmt.Println("Running in API mode, no task server started.")
		return nil
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypePaymentReconcile, processor.HandlePaymentReconcileTask)
	mux.HandleFunc(TypePaymentPoll, processor.HandlePaymentPollTask)
	fmt.Println("Registered payment reconciliation task handlers.")

	if err := srv.Start(mux); err != nil {
		log.Fatalf("Could not start Asynq server: %v", err)
	}

	return srv
}

// --- Task Handlers ---

// HandlePaymentReconcileTask sweeps for completed contact payments whose
// contact case was never created and repairs them, then schedules the next
// sweep.
func (p *TaskProcessor) HandlePaymentReconcileTask(ctx context.Context, t *asynq.Task) error {
	repaired, err := p.paymentService.ReconcileMissingCases(ctx)
	if err != nil {
		log.Printf("Reconcile sweep finished with error after repairing %d payments: %v", repaired, err)
		// Return the error so asynq retries; the next periodic run is still
		// scheduled below so a poisoned batch cannot stall the sweep.
	}
	if repaired > 0 {
		log.Printf("Reconcile sweep repaired %d completed payments missing a contact case.", repaired)
	}

	if _, enqErr := p.taskClient.EnqueueContext(ctx, asynq.NewTask(TypePaymentReconcile, nil), asynq.ProcessIn(p.cfg.ReconcileSweepInterval)); enqErr != nil {
		log.Printf("ERROR failed to schedule next reconcile sweep: %v", enqErr)
		if err == nil {
			err = enqErr
		}
	}
	return err
}

// HandlePaymentPollTask queries the gateway for the status of stale pending
// payments and applies any terminal result, then schedules the next poll.
func (p *TaskProcessor) HandlePaymentPollTask(ctx context.Context, t *asynq.Task) error {
	resolved, err := p.paymentService.PollPendingPayments(ctx)
	if err != nil {
		log.Printf("Pending payment poll finished with error after resolving %d payments: %v", resolved, err)
	}
	if resolved > 0 {
		log.Printf("Pending payment poll resolved %d stale payments.", resolved)
	}

	if _, enqErr := p.taskClient.EnqueueContext(ctx, asynq.NewTask(TypePaymentPoll, nil), asynq.ProcessIn(p.cfg.PendingPollInterval)); enqErr != nil {
		log.Printf("ERROR failed to schedule next pending payment poll: %v", enqErr)
		if err == nil {
			err = enqErr
		}
	}
	return err
}
