package usecase

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/agent"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/config"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/model"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/pkg/logger"
)

// EscalationReasonCollaboratorFailure marks escalations forced by a failed
// reply-generation call rather than by the collaborator's own decision.
const EscalationReasonCollaboratorFailure = "collaborator_failure"

// Orchestrator turns an inbound customer message into a reply decision. The
// collaborator is not trusted to be available: any failure degrades to a
// forced escalation so the customer is never left without a path to a human.
type Orchestrator struct {
	agentClient agent.Client
	messageRepo storage.MessageRepo
	cfg         config.AgentConfig
}

// NewOrchestrator creates a reply orchestrator.
func NewOrchestrator(agentClient agent.Client, messageRepo storage.MessageRepo, cfg config.AgentConfig) *Orchestrator {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	return &Orchestrator{
		agentClient: agentClient,
		messageRepo: messageRepo,
		cfg:         cfg,
	}
}

// GenerateReply asks the collaborator for a reply to the inbound message.
// It always returns a usable result: collaborator errors produce a forced
// escalation with an empty reply text instead of propagating upward.
func (o *Orchestrator) GenerateReply(ctx context.Context, conversation *model.Conversation, contact *model.Contact, inboundText string) *agent.GenerateResult {
	log := logger.FromContext(ctx)

	// Keyword safety net runs before the collaborator call: an explicit
	// request for a human never depends on the AI noticing it.
	if o.matchesEscalationKeyword(inboundText) {
		observer.ObserveAIGeneration(conversation.CompanyID, "escalate", 0, 0)
		return &agent.GenerateResult{
			Intent:           agent.IntentHandoffRequest,
			ShouldEscalate:   true,
			EscalationReason: "escalation_keyword",
		}
	}

	req := agent.GenerateRequest{
		CompanyID:      conversation.CompanyID,
		ConversationID: conversation.ID,
		ContactPhone:   contact.PhoneNumber,
		ContactName:    contact.PushName,
		MessageText:    inboundText,
		History:        o.loadHistory(ctx, conversation.ID),
	}

	start := time.Now()
	result, err := o.agentClient.Generate(ctx, req)
	if err != nil {
		log.Warn("Reply generation failed, forcing escalation",
			zap.String("conversation_id", conversation.ID),
			zap.Error(err))
		observer.ObserveAIGeneration(conversation.CompanyID, "fallback", time.Since(start), 0)
		return &agent.GenerateResult{
			ShouldEscalate:   true,
			EscalationReason: EscalationReasonCollaboratorFailure,
		}
	}

	// The same safety net runs over the generated reply: a collaborator
	// that talks about transferring without setting the structured flag
	// still opens a handoff.
	if !result.ShouldEscalate && o.matchesEscalationKeyword(result.ReplyText) {
		result.ShouldEscalate = true
		result.EscalationReason = "escalation_keyword_reply"
		result.ReplyText = ""
	}

	outcome := "reply"
	if result.ShouldEscalate {
		outcome = "escalate"
	}
	observer.ObserveAIGeneration(conversation.CompanyID, outcome, time.Since(start), result.TokensUsed)
	return result
}

// loadHistory builds the collaborator's context from the recent ledger.
// History is best effort; the collaborator can answer without it.
func (o *Orchestrator) loadHistory(ctx context.Context, conversationID string) []agent.HistoryEntry {
	messages, err := o.messageRepo.ListRecentByConversation(ctx, conversationID, o.cfg.HistoryLimit)
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to load conversation history",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
		return nil
	}

	history := make([]agent.HistoryEntry, 0, len(messages))
	for _, m := range messages {
		if m.MessageText == "" {
			continue
		}
		role := "assistant"
		if m.Flow == model.MessageFlowIncoming {
			role = "customer"
		} else if m.Sender == model.SenderSystem {
			role = "system"
		}
		history = append(history, agent.HistoryEntry{Role: role, Text: m.MessageText})
	}
	return history
}

func (o *Orchestrator) matchesEscalationKeyword(text string) bool {
	normalized := strings.ToLower(text)
	for _, keyword := range o.cfg.EscalationKeywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" && strings.Contains(normalized, keyword) {
			return true
		}
	}
	return false
}
