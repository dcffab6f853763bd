package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	"github.com/vantler/adcomply-backend/internal/data/repos/ops"
	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/observability"
	"github.com/vantler/adcomply-backend/internal/platform/dbctx"
	"github.com/vantler/adcomply-backend/internal/platform/envutil"
	"github.com/vantler/adcomply-backend/internal/platform/logger"
	"github.com/vantler/adcomply-backend/internal/platform/openai"
)

// GatewayCall carries one model invocation plus the attribution written to
// the ai_call_log.
type GatewayCall struct {
	CallType       string
	OrganizationID *uuid.UUID
	ContentItemID  *uuid.UUID
	Priority       int
	Request        openai.InvokeRequest
}

// ModelGateway is the single choke point for the remote model: every call
// goes through the throttler, gets a per-call timeout, and is usage-logged.
type ModelGateway interface {
	Invoke(ctx context.Context, call GatewayCall) (*openai.InvokeResult, error)
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	DefaultModel() string
}

type modelGateway struct {
	log         *logger.Logger
	client      openai.Client
	throttler   *CallThrottler
	callLogs    ops.AICallLogRepo
	callTimeout time.Duration
}

func NewModelGateway(baseLog *logger.Logger, client openai.Client, throttler *CallThrottler, callLogs ops.AICallLogRepo) ModelGateway {
	timeoutSec := envutil.GetEnvAsInt("MODEL_CALL_TIMEOUT_SECONDS", 120, baseLog)
	return &modelGateway{
		log:         baseLog.With("service", "ModelGateway"),
		client:      client,
		throttler:   throttler,
		callLogs:    callLogs,
		callTimeout: time.Duration(timeoutSec) * time.Second,
	}
}

func (g *modelGateway) DefaultModel() string { return g.client.DefaultModel() }

func (g *modelGateway) Invoke(ctx context.Context, call GatewayCall) (*openai.InvokeResult, error) {
	model := call.Request.Model
	if model == "" {
		model = g.client.DefaultModel()
	}

	ctx, span := observability.Tracer().Start(ctx, "model.invoke")
	span.SetAttributes(
		attribute.String("model", model),
		attribute.String("call_type", call.CallType),
	)
	defer span.End()

	started := time.Now()
	var result *openai.InvokeResult
	err := g.throttler.Do(ctx, call.Priority, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
		defer cancel()
		res, invokeErr := g.client.Invoke(callCtx, call.Request)
		if invokeErr != nil {
			return invokeErr
		}
		result = res
		return nil
	})
	latency := time.Since(started)

	g.recordCall(ctx, call, model, result, err, latency)

	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	g.log.Debug("Model call completed",
		"call_type", call.CallType,
		"model", model,
		"latency_ms", latency.Milliseconds(),
		"total_tokens", result.Usage.TotalTokens,
		"function_calls", len(result.FunctionCalls),
	)
	return result, nil
}

func (g *modelGateway) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	var out [][]float32
	err := g.throttler.Do(ctx, 0, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
		defer cancel()
		vecs, embedErr := g.client.Embed(callCtx, inputs)
		if embedErr != nil {
			return embedErr
		}
		out = vecs
		return nil
	})
	return out, err
}

// recordCall appends an ai_call_log row. Logging failures never fail the
// call itself.
func (g *modelGateway) recordCall(ctx context.Context, call GatewayCall, model string, result *openai.InvokeResult, callErr error, latency time.Duration) {
	if g.callLogs == nil {
		return
	}
	row := &domain.AICallLog{
		OrganizationID: call.OrganizationID,
		ContentItemID:  call.ContentItemID,
		CallType:       call.CallType,
		Model:          model,
		Success:        callErr == nil,
		LatencyMS:      latency.Milliseconds(),
	}
	if callErr != nil {
		row.Error = callErr.Error()
	}
	if result != nil {
		if raw, err := json.Marshal(result.Usage); err == nil {
			row.Usage = datatypes.JSON(raw)
		}
	}
	if _, err := g.callLogs.Create(dbctx.Context{Ctx: ctx}, []*domain.AICallLog{row}); err != nil {
		g.log.Warn("Failed to write ai_call_log row", "call_type", call.CallType, "error", err)
	}
}
