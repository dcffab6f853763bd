package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vantler/adcomply-backend/internal/data/repos/ops"
	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/platform/dbctx"
)

// Context is the execution handle for one claimed job run. Handlers report
// their outcome only through Heartbeat/Succeed/Fail; they never write the
// job_run row directly.
type Context struct {
	Ctx     context.Context
	DB      *gorm.DB
	Job     *domain.JobRun
	Repo    ops.JobRunRepo
	payload map[string]any
}

// NewContext eagerly decodes the payload so handlers read inputs via
// Payload()/PayloadUUID(). A malformed payload yields an empty map; handlers
// validate required fields themselves.
func NewContext(ctx context.Context, db *gorm.DB, job *domain.JobRun, repo ops.JobRunRepo) *Context {
	c := &Context{Ctx: ctx, DB: db, Job: job, Repo: repo}
	_ = c.decodePayload()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil {
		return nil
	}
	if len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(fmt.Sprint(v))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (c *Context) Heartbeat() {
	if c == nil || c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	_ = c.Repo.Heartbeat(dbctx.Context{Ctx: c.Ctx}, c.Job.ID)
}

// Succeed marks the job done and stores the result payload.
func (c *Context) Succeed(result map[string]any) {
	if c == nil || c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	now := time.Now()
	updates := map[string]any{
		"status":     domain.JobStatusSucceeded,
		"error":      "",
		"locked_at":  nil,
		"updated_at": now,
	}
	if result != nil {
		if raw, err := json.Marshal(result); err == nil {
			updates["result"] = datatypes.JSON(raw)
		}
	}
	if err := c.Repo.UpdateFields(dbctx.Context{Ctx: c.Ctx}, c.Job.ID, updates); err == nil {
		c.Job.Status = domain.JobStatusSucceeded
	}
}

// Fail records a terminal failure and releases the lock so the claim query
// can retry the job if attempts remain.
func (c *Context) Fail(stage string, err error) {
	if c == nil || c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	now := time.Now()
	msg := stage
	if err != nil {
		msg = stage + ": " + err.Error()
	}
	if uErr := c.Repo.UpdateFields(dbctx.Context{Ctx: c.Ctx}, c.Job.ID, map[string]any{
		"status":        domain.JobStatusFailed,
		"error":         msg,
		"last_error_at": now,
		"locked_at":     nil,
		"updated_at":    now,
	}); uErr == nil {
		c.Job.Status = domain.JobStatusFailed
		c.Job.Error = msg
	}
}
