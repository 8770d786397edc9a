package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/config"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/model"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/pkg/logger"
)

// ReplyTaskData holds the data for one reply generation task.
type ReplyTaskData struct {
	Ctx          context.Context // Context derived for the task, NOT the original request context
	Conversation model.Conversation
	Contact      model.Contact
	InboundText  string
}

// IReplyWorker defines the interface for the reply worker pool.
type IReplyWorker interface {
	SubmitTask(taskData ReplyTaskData) error
	Stop()
}

// ReplyWorker manages the worker pool that generates and sends AI replies.
// Generation runs off the webhook path so the provider gets its ack fast.
type ReplyWorker struct {
	pool         *ants.PoolWithFunc
	orchestrator *Orchestrator
	handoff      *HandoffCoordinator
	gate         *OutboundGate
	contactRepo  storage.ContactRepo
	cfg          config.ReplyWorkerPoolConfig
	baseLogger   *zap.Logger
}

// Ensure ReplyWorker implements IReplyWorker
var _ IReplyWorker = (*ReplyWorker)(nil)

// NewReplyWorker creates and initializes a new reply worker pool.
func NewReplyWorker(
	cfg config.ReplyWorkerPoolConfig,
	orchestrator *Orchestrator,
	handoff *HandoffCoordinator,
	gate *OutboundGate,
	contactRepo storage.ContactRepo,
	baseLogger *zap.Logger,
) (*ReplyWorker, error) {
	worker := &ReplyWorker{
		orchestrator: orchestrator,
		handoff:      handoff,
		gate:         gate,
		contactRepo:  contactRepo,
		cfg:          cfg,
		baseLogger:   baseLogger.Named("reply_worker"),
	}

	pool, err := ants.NewPoolWithFunc(cfg.PoolSize, func(i interface{}) {
		taskData, ok := i.(ReplyTaskData)
		if !ok {
			worker.baseLogger.Error("Invalid task data type received", zap.Any("data", i))
			return
		}
		worker.processReplyTask(taskData)
	},
		ants.WithExpiryDuration(cfg.ExpiryTime),
		ants.WithNonblocking(false), // Block when the queue is full, bounded by MaxBlockingTasks
		ants.WithMaxBlockingTasks(cfg.QueueSize),
		ants.WithPanicHandler(func(err interface{}) {
			worker.baseLogger.Error("Panic recovered in reply worker", zap.Any("panic_error", err), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reply worker pool: %w", err)
	}
	worker.pool = pool
	worker.baseLogger.Info("Reply worker pool initialized",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("queue_size", cfg.QueueSize),
		zap.Duration("expiry_time", cfg.ExpiryTime),
		zap.Duration("max_block_time", cfg.MaxBlock),
	)
	return worker, nil
}

// SubmitTask submits a reply generation task to the worker pool.
func (w *ReplyWorker) SubmitTask(taskData ReplyTaskData) error {
	start := time.Now()
	observer.IncReplyTasksSubmitted(taskData.Conversation.CompanyID)
	observer.SetReplyQueueLength(w.pool.Waiting()) // Approximate queue length

	err := w.pool.Invoke(taskData)

	duration := time.Since(start)

	if err != nil {
		w.baseLogger.Warn("Failed to submit reply task to pool",
			zap.String("conversation_id", taskData.Conversation.ID),
			zap.String("company_id", taskData.Conversation.CompanyID),
			zap.Duration("submit_duration", duration),
			zap.Error(err),
		)
		observer.IncReplyTasksProcessed(taskData.Conversation.CompanyID, "submit_error")
		if errors.Is(err, ants.ErrPoolOverload) {
			return fmt.Errorf("reply pool overload: %w", err)
		}
		return fmt.Errorf("failed to invoke reply task: %w", err)
	}

	w.baseLogger.Debug("Successfully submitted reply task",
		zap.String("conversation_id", taskData.Conversation.ID),
		zap.Duration("submit_duration", duration),
	)
	return nil
}

// processReplyTask contains the actual logic executed by a worker goroutine.
func (w *ReplyWorker) processReplyTask(taskData ReplyTaskData) {
	log := logger.FromContextOr(taskData.Ctx, w.baseLogger).With(
		zap.String("task_conversation_id", taskData.Conversation.ID),
		zap.String("task_company_id", taskData.Conversation.CompanyID),
	)

	start := time.Now()
	status := "success"

	log.Debug("Processing reply task")

	taskCtx := tenant.WithCompanyID(taskData.Ctx, taskData.Conversation.CompanyID)
	conversation := taskData.Conversation
	contact := taskData.Contact

	result := w.orchestrator.GenerateReply(taskCtx, &conversation, &contact, taskData.InboundText)

	if result.ShouldEscalate {
		if err := w.handoff.RequestEscalation(taskCtx, &conversation, &contact, result.EscalationReason); err != nil {
			log.Error("Failed to request escalation", zap.Error(err))
			status = "failure_escalation"
		} else {
			status = "escalated"
		}
	} else {
		if _, err := w.gate.SendText(taskCtx, &conversation, &contact, result.ReplyText, model.SenderAI); err != nil {
			// The gate can close between submission and send. Those are
			// terminal for this task, not failures.
			switch {
			case apperrors.IsSessionClosedError(err):
				log.Debug("Reply dropped, session closed before send")
				status = "blocked_session"
			case apperrors.IsOptedOutError(err):
				log.Debug("Reply dropped, contact opted out before send")
				status = "blocked_optout"
			default:
				log.Error("Failed to send AI reply", zap.Error(err))
				status = "failure_send"
			}
		}
	}

	if status == "success" && result.Qualification != "" && result.Qualification != contact.Qualification {
		if err := w.contactRepo.UpdateQualification(taskCtx, contact.ID, result.Qualification); err != nil {
			log.Warn("Failed to update contact qualification",
				zap.String("contact_id", contact.ID),
				zap.String("qualification", result.Qualification),
				zap.Error(err))
		}
	}

	duration := time.Since(start)
	observer.ObserveReplyProcessingDuration(conversation.CompanyID, duration)
	observer.IncReplyTasksProcessed(conversation.CompanyID, status)

	log.Debug("Finished processing reply task", zap.Duration("duration", duration), zap.String("final_status", status))
}

// Stop gracefully shuts down the worker pool.
func (w *ReplyWorker) Stop() {
	if w.pool != nil {
		w.baseLogger.Info("Releasing reply worker pool")
		start := time.Now()
		w.pool.Release()
		w.baseLogger.Info("Reply worker pool released", zap.Duration("duration", time.Since(start)))
	}
}
