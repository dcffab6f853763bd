package steps

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/platform/logger"
	"github.com/vantler/adcomply-backend/internal/services"
)

// DefaultEvaluationBatchSize caps evaluation tasks running at once. This is
// a second backpressure layer on top of the call throttler's own bound.
const DefaultEvaluationBatchSize = 3

type ScheduleEvaluationsDeps struct {
	Log       *logger.Logger
	Gateway   services.ModelGateway
	Librarian services.Librarian
}

type ScheduleEvaluationsInput struct {
	Item     *domain.ContentItem
	Mentions []*domain.ExtractedMention
	// ProductRules maps each target product to its resolved applicable set.
	ProductRules map[uuid.UUID][]*domain.Rule
	// GlobalRules apply to mentions with no product association.
	GlobalRules []*domain.Rule
	BatchSize   int
}

// FlagCandidate pairs one proposal with the mention that produced it, so
// persistence can carry source location and context onto the flag.
type FlagCandidate struct {
	Mention  *domain.ExtractedMention
	Proposal *domain.FlagProposal
}

type ScheduleEvaluationsOutput struct {
	Candidates []*FlagCandidate
	// Violations counts candidates with a violation ruling.
	Violations int
	// FailedMentions counts mentions whose evaluation errored out after the
	// throttler's retries. Their siblings still complete.
	FailedMentions int
}

// evaluationTask is one independent unit: all mentions sharing a product
// context, evaluated sequentially against that context's rule set.
type evaluationTask struct {
	productID *uuid.UUID
	mentions  []*domain.ExtractedMention
	rules     []*domain.Rule
}

// ScheduleEvaluations partitions the mention list into one task per product
// plus one global task, then runs tasks in fully-awaited batches. Products
// with no mentions or no applicable rules contribute no task. Per-mention
// failures are logged and contained.
func ScheduleEvaluations(ctx context.Context, deps ScheduleEvaluationsDeps, in ScheduleEvaluationsInput) (ScheduleEvaluationsOutput, error) {
	out := ScheduleEvaluationsOutput{Candidates: []*FlagCandidate{}}
	if deps.Log == nil || deps.Gateway == nil {
		return out, fmt.Errorf("schedule evaluations: missing deps")
	}
	if in.Item == nil {
		return out, fmt.Errorf("schedule evaluations: missing content item")
	}

	tasks := buildTasks(in)
	if len(tasks) == 0 {
		return out, nil
	}
	batchSize := in.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultEvaluationBatchSize
	}

	var mu sync.Mutex
	for start := 0; start < len(tasks); start += batchSize {
		end := start + batchSize
		if end > len(tasks) {
			end = len(tasks)
		}
		g, gctx := errgroup.WithContext(ctx)
		for _, task := range tasks[start:end] {
			task := task
			g.Go(func() error {
				candidates, failed := runTask(gctx, deps, in, task)
				mu.Lock()
				out.Candidates = append(out.Candidates, candidates...)
				out.FailedMentions += failed
				mu.Unlock()
				return nil
			})
		}
		// Tasks contain their own failures, so this only propagates ctx
		// cancellation. Each batch is awaited fully before the next starts.
		if err := g.Wait(); err != nil {
			return out, err
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
	}

	for _, c := range out.Candidates {
		if c.Proposal.Ruling == domain.RulingViolation {
			out.Violations++
		}
	}
	deps.Log.Info("Evaluation complete",
		"content_item_id", in.Item.ID,
		"tasks", len(tasks),
		"candidates", len(out.Candidates),
		"violations", out.Violations,
		"failed_mentions", out.FailedMentions,
	)
	return out, nil
}

func buildTasks(in ScheduleEvaluationsInput) []*evaluationTask {
	byProduct := map[uuid.UUID][]*domain.ExtractedMention{}
	var global []*domain.ExtractedMention
	for _, m := range in.Mentions {
		if m == nil {
			continue
		}
		if m.ProductID == nil {
			global = append(global, m)
			continue
		}
		byProduct[*m.ProductID] = append(byProduct[*m.ProductID], m)
	}

	var tasks []*evaluationTask
	for productID, mentions := range byProduct {
		rules := in.ProductRules[productID]
		if len(rules) == 0 {
			continue
		}
		id := productID
		tasks = append(tasks, &evaluationTask{productID: &id, mentions: mentions, rules: rules})
	}
	if len(global) > 0 && len(in.GlobalRules) > 0 {
		tasks = append(tasks, &evaluationTask{mentions: global, rules: in.GlobalRules})
	}
	return tasks
}

// runTask evaluates one task's mentions in order. An error on one mention is
// logged and counted; the rest of the task continues.
func runTask(ctx context.Context, deps ScheduleEvaluationsDeps, in ScheduleEvaluationsInput, task *evaluationTask) ([]*FlagCandidate, int) {
	var candidates []*FlagCandidate
	failed := 0
	for _, mention := range task.mentions {
		res, err := EvaluateMention(ctx, EvaluateMentionDeps{
			Log:       deps.Log,
			Gateway:   deps.Gateway,
			Librarian: deps.Librarian,
		}, EvaluateMentionInput{
			OrganizationID: in.Item.OrganizationID,
			ContentItemID:  in.Item.ID,
			Title:          in.Item.Title,
			Caption:        in.Item.Caption,
			Mention:        mention,
			Rules:          task.rules,
		})
		if err != nil {
			failed++
			deps.Log.Warn("Mention evaluation failed, continuing with siblings",
				"content_item_id", in.Item.ID,
				"source_location", mention.SourceLocation,
				"error", err,
			)
			continue
		}
		for _, p := range res.Proposals {
			candidates = append(candidates, &FlagCandidate{Mention: mention, Proposal: p})
		}
	}
	return candidates, failed
}
