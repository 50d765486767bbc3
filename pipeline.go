package teamgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avrelium/teamgate/store"
)

// Handler executes one request inside the pipeline's unit of work. The
// returned Result decides whether the transaction commits; a returned error
// is a fault and always rolls back.
type Handler[TReq Carrier, TRes any] func(ctx context.Context, req TReq, tx store.Tx) (Result[TRes], error)

// Pipeline runs a request through the fixed stage order: logging wraps
// everything, then validation, principal attachment, optional user and team
// resolution, and finally the transactional handler. Which resolution
// stages run is decided once per request type at construction from the
// marker interfaces, never per instance.
type Pipeline[TReq Carrier, TRes any] struct {
	engine  *Engine
	name    string
	handler Handler[TReq, TRes]

	validators []Validator[TReq]

	resolveUser          bool
	resolveTeam          bool
	commitOnPrecondition bool
}

// NewPipeline composes a pipeline for one request type. Capability markers
// on TReq select the resolution stages.
func NewPipeline[TReq Carrier, TRes any](
	engine *Engine,
	name string,
	handler Handler[TReq, TRes],
	validators ...Validator[TReq],
) *Pipeline[TReq, TRes] {
	var zero TReq
	_, resolveUser := any(zero).(UserAware)
	_, resolveTeam := any(zero).(TeamAware)
	_, commitOnPrecondition := any(zero).(preconditionCommitter)

	return &Pipeline[TReq, TRes]{
		engine:               engine,
		name:                 name,
		handler:              handler,
		validators:           validators,
		resolveUser:          resolveUser,
		resolveTeam:          resolveTeam,
		commitOnPrecondition: commitOnPrecondition,
	}
}

// Dispatch executes req through every stage. The returned error is reserved
// for faults (infrastructure failures, panics in collaborators); domain
// failures travel inside the Result.
func (p *Pipeline[TReq, TRes]) Dispatch(ctx context.Context, req TReq) (Result[TRes], error) {
	if p == nil || p.engine == nil {
		return Result[TRes]{}, ErrEngineNotReady
	}

	start := time.Now()
	logger := p.engine.logger.With(slog.String("request", p.name))
	logger.DebugContext(ctx, "dispatch start")
	p.engine.emitAudit(ctx, AuditEvent{
		EventType: auditEventRequestStarted,
		Request:   p.name,
		UserID:    req.Base().UserID,
		TeamID:    req.Base().TeamID,
	})

	result, err := p.dispatch(ctx, req, logger)

	elapsed := time.Since(start)
	p.engine.metrics.Observe(MetricDispatchLatency, elapsed)

	if err != nil {
		logger.ErrorContext(ctx, "dispatch fault",
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()))
		p.engine.emitAudit(ctx, AuditEvent{
			EventType: auditEventRequestFault,
			Request:   p.name,
			UserID:    req.Base().UserID,
			TeamID:    req.Base().TeamID,
			Error:     err.Error(),
		})
		return result, err
	}

	logger.InfoContext(ctx, "dispatch done",
		slog.Duration("elapsed", elapsed),
		slog.String("status", result.Status.String()))
	p.engine.emitAudit(ctx, AuditEvent{
		EventType: auditEventRequestCompleted,
		Request:   p.name,
		UserID:    req.Base().UserID,
		TeamID:    req.Base().TeamID,
		Success:   result.Succeeded(),
		Metadata:  map[string]string{"status": result.Status.String()},
	})
	return result, nil
}

func (p *Pipeline[TReq, TRes]) dispatch(ctx context.Context, req TReq, logger *slog.Logger) (Result[TRes], error) {
	// Every validator runs; failures merge into a single classified outcome.
	var failures []Failure
	for _, v := range p.validators {
		failures = append(failures, v.Validate(ctx, req)...)
	}
	if len(failures) > 0 {
		p.engine.metrics.Inc(MetricRequestValidationFailed)
		return FailAs[TRes](classifyFailures(failures)), nil
	}

	base := req.Base()
	principal := p.engine.principals.Current(ctx)
	base.applyPrincipal(principal)
	if base.DeviceID == "" {
		base.DeviceID = deviceIDFromContext(ctx)
	}
	// Tier flags fall back to the position ranges when the principal source
	// leaves them unset.
	if base.IsAuthenticated && !base.IsCustomer && !base.IsMaintenance && !base.IsSuper {
		base.IsCustomer, base.IsMaintenance, base.IsSuper =
			p.engine.config.Team.RoleFlags(base.TeamPosition)
	}

	if p.resolveUser {
		if outcome, err := p.hydrateUser(ctx, base); err != nil {
			return Result[TRes]{}, err
		} else if !outcome.Succeeded() {
			return FailAs[TRes](outcome), nil
		}
	}

	if p.resolveTeam {
		if outcome, err := p.hydrateTeam(ctx, base); err != nil {
			return Result[TRes]{}, err
		} else if !outcome.Succeeded() {
			return FailAs[TRes](outcome), nil
		}
	}

	return p.runInTx(ctx, req, logger)
}

func (p *Pipeline[TReq, TRes]) hydrateUser(ctx context.Context, base *Request) (Outcome, error) {
	if base.UserID == "" {
		return Unauthorized("no acting user"), nil
	}

	// The composite (team, user) key binds the claimed membership; a
	// principal pointing at the wrong team fails here, not at team
	// resolution.
	var (
		user *store.User
		err  error
	)
	if base.TeamID != "" {
		user, err = p.engine.store.Users().GetByKey(ctx, base.TeamID, base.UserID)
	} else {
		user, err = p.engine.store.Users().FindByID(ctx, base.UserID)
	}
	if errors.Is(err, store.ErrUserNotFound) {
		return Unauthorized(fmt.Sprintf("no acting user %q", base.UserID)), nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve user: %w", err)
	}

	base.PrincipalUser = user
	if base.TeamID == "" {
		base.TeamID = user.TeamID
	}
	return Success(), nil
}

func (p *Pipeline[TReq, TRes]) hydrateTeam(ctx context.Context, base *Request) (Outcome, error) {
	if base.TeamID == "" {
		return NotFound("team not found"), nil
	}

	team, err := p.engine.store.Teams().Get(ctx, base.TeamID)
	if errors.Is(err, store.ErrTeamNotFound) {
		return NotFound("team not found"), nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve team: %w", err)
	}

	base.PrincipalTeam = team
	// Leadership is derived from the loaded aggregate, not trusted from
	// the inbound claims.
	base.IsLeader = base.UserID != "" && team.LeaderID == base.UserID
	return Success(), nil
}

func (p *Pipeline[TReq, TRes]) runInTx(ctx context.Context, req TReq, logger *slog.Logger) (result Result[TRes], err error) {
	tx, err := p.engine.store.Begin(ctx)
	if err != nil {
		return Result[TRes]{}, fmt.Errorf("begin transaction: %w", err)
	}

	finished := false
	defer func() {
		if finished {
			return
		}
		// Reached on a handler panic: release the transaction, then let
		// the panic continue up.
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, store.ErrTxDone) {
			logger.ErrorContext(ctx, "rollback after panic failed",
				slog.String("error", rbErr.Error()))
		}
		p.engine.metrics.Inc(MetricRequestRolledBack)
	}()

	result, err = p.handler(ctx, req, tx)
	finished = true

	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, store.ErrTxDone) {
			logger.ErrorContext(ctx, "rollback failed", slog.String("error", rbErr.Error()))
		}
		p.engine.metrics.Inc(MetricRequestRolledBack)
		return Result[TRes]{}, err
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, store.ErrTxDone) {
			logger.ErrorContext(ctx, "rollback failed", slog.String("error", rbErr.Error()))
		}
		p.engine.metrics.Inc(MetricRequestRolledBack)
		return Result[TRes]{}, ctxErr
	}

	if p.shouldCommit(result.Outcome) {
		if commitErr := tx.Commit(); commitErr != nil {
			p.engine.metrics.Inc(MetricRequestRolledBack)
			return Result[TRes]{}, fmt.Errorf("commit transaction: %w", commitErr)
		}
		p.engine.metrics.Inc(MetricRequestCommitted)
		return result, nil
	}

	if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, store.ErrTxDone) {
		logger.ErrorContext(ctx, "rollback failed", slog.String("error", rbErr.Error()))
	}
	p.engine.metrics.Inc(MetricRequestRolledBack)
	return result, nil
}

func (p *Pipeline[TReq, TRes]) shouldCommit(o Outcome) bool {
	if o.Succeeded() {
		return true
	}
	return p.commitOnPrecondition && o.Status == StatusPreconditionRequired
}
