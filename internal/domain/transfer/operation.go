// Package transfer implements the validate, execute and rollback protocol
// that every change to a ranking goes through.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/positions"
	"github.com/okian/podium/internal/domain/session"
	"github.com/okian/podium/internal/domain/validation"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// State is the lifecycle position of an operation.
type State string

const (
	StateCreated    State = "created"
	StateValidating State = "validating"
	StateValidated  State = "validated"
	StateRejected   State = "rejected"
	StateExecuting  State = "executing"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateRolledBack State = "rolled-back"
)

// FromBacklog is the From of assign results.
const FromBacklog = -1

// Operation is one transfer. Validate and Execute run at most once each.
type Operation interface {
	ID() string
	Kind() validation.Kind
	State() State
	Validate(ctx context.Context) validation.Result
	Execute(ctx context.Context) Result
	Rollback(ctx context.Context, res Result) error
}

// Result reports an executed (or refused) operation with enough metadata to
// roll it back.
type Result struct {
	OperationID string             `json:"operation_id"`
	Kind        validation.Kind    `json:"kind"`
	Success     bool               `json:"success"`
	Code        validation.Code    `json:"code,omitempty"`
	Message     string             `json:"message,omitempty"`
	Transient   bool               `json:"transient,omitempty"`
	Item        model.ItemSnapshot `json:"item"`
	From        int                `json:"from"`
	To          int                `json:"to"`
	Changes     []positions.Change `json:"-"`
	UsedBefore  map[string]bool    `json:"-"`
	UsedAfter   map[string]bool    `json:"-"`
	CompletedAt time.Time          `json:"completed_at"`
}

// Err returns nil for a successful result and a *validation.Error otherwise.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return &validation.Error{Code: r.Code, Message: r.Message, Transient: r.Transient}
}

// Op is the single implementation of Operation; its kind selects the plan.
type Op struct {
	mu      sync.Mutex
	id      string
	kind    validation.Kind
	sess    *session.Session
	req     validation.Request
	cfg     settings
	state   State
	checked validation.Result
	held    map[string]struct{}
	log     logger.Logger
}

var _ Operation = (*Op)(nil)

// NewAssign places backlog item itemID at position to
// (validation.AutoPosition for the first empty one).
func NewAssign(s *session.Session, itemID string, to int, opts ...Option) *Op {
	return newOp(s, validation.KindAssign, validation.Request{ItemID: itemID, From: FromBacklog, To: to}, opts)
}

// NewMove relocates the occupant of from onto to.
func NewMove(s *session.Session, from, to int, opts ...Option) *Op {
	return newOp(s, validation.KindMove, validation.Request{From: from, To: to}, opts)
}

// NewSwap exchanges the occupants of a and b.
func NewSwap(s *session.Session, a, b int, opts ...Option) *Op {
	return newOp(s, validation.KindSwap, validation.Request{From: a, To: b}, opts)
}

// NewRemove returns the occupant of position to the backlog.
func NewRemove(s *session.Session, position int, opts ...Option) *Op {
	return newOp(s, validation.KindRemove, validation.Request{From: position, To: position}, opts)
}

func newOp(s *session.Session, kind validation.Kind, req validation.Request, opts []Option) *Op {
	var cfg settings
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.id == "" {
		cfg.id = uuid.NewString()
	}
	req.Kind = kind
	req.Owner = cfg.id
	req.AllowOverwrite = cfg.overwrite
	if kind != validation.KindAssign {
		req.ItemID = cfg.itemID
	}
	return &Op{
		id:    cfg.id,
		kind:  kind,
		sess:  s,
		req:   req,
		cfg:   cfg,
		state: StateCreated,
		held:  make(map[string]struct{}),
		log:   s.Logger.Named("transfer"),
	}
}

func (o *Op) ID() string { return o.id }

func (o *Op) Kind() validation.Kind { return o.kind }

func (o *Op) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Validate takes the item locks first, then asks the authority. A rejected
// operation holds no locks when Validate returns.
func (o *Op) Validate(ctx context.Context) (res validation.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateCreated {
		return validation.Reject(validation.CodeUnknownError,
			fmt.Sprintf("%s: validate in state %s", ErrInvalidState, o.state), nil)
	}
	o.state = StateValidating

	defer func() {
		if r := recover(); r != nil {
			o.log.Error(ctx, "validation panicked",
				logger.String("operationID", o.id),
				logger.Any("panic", r),
			)
			metrics.RecordErrorByComponent("transfer", "validate_panic")
			res = validation.Reject(validation.CodeUnknownError, fmt.Sprintf("validation failed: %v", r), nil)
		}
		o.checked = res
		if res.Valid {
			o.state = StateValidated
			return
		}
		o.state = StateRejected
		o.releaseAll(ctx)
		metrics.RecordTransfer(string(o.kind), "rejected")
		metrics.RecordTransferRejection(string(o.kind), string(res.Code))
	}()

	for _, id := range o.claims() {
		if !o.acquire(ctx, id) {
			return o.blocked(id)
		}
	}
	res = o.sess.Authority.CanTransfer(ctx, o.req, o.sess.Table, o.sess.Source, o.sess.Locks)
	if !res.Valid {
		return res
	}
	// The authority may have resolved occupants other than the ones peeked above.
	for _, id := range []string{res.Item.ID, res.Displaced.ID} {
		if id != "" && !o.acquire(ctx, id) {
			return o.blocked(id)
		}
	}
	return res
}

// Execute applies the table change and the paired backlog flags together.
// Locks are released on every path before it returns.
func (o *Op) Execute(ctx context.Context) Result {
	o.mu.Lock()
	switch o.state {
	case StateValidated:
		o.state = StateExecuting
	case StateRejected:
		checked := o.checked
		o.mu.Unlock()
		return o.rejection(checked)
	default:
		state := o.state
		o.mu.Unlock()
		return o.failure(validation.Result{}, validation.CodeUnknownError,
			fmt.Sprintf("%s: execute in state %s", ErrInvalidState, state), false)
	}
	checked := o.checked
	o.mu.Unlock()

	start := time.Now()
	res := o.run(ctx, checked)

	o.mu.Lock()
	if res.Success {
		o.state = StateSucceeded
	} else {
		o.state = StateFailed
	}
	o.releaseAll(ctx)
	o.mu.Unlock()

	kind := string(o.kind)
	metrics.RecordTransferLatency(kind, float64(time.Since(start).Microseconds())/1000)
	if res.Success {
		metrics.RecordTransfer(kind, "succeeded")
		o.log.Debug(ctx, "transfer succeeded",
			logger.String("operationID", o.id),
			logger.String("kind", kind),
			logger.String("itemID", res.Item.ID),
			logger.Int("from", res.From),
			logger.Int("to", res.To),
			logger.Int("changes", len(res.Changes)),
		)
	} else {
		metrics.RecordTransfer(kind, "failed")
		o.log.Warn(ctx, "transfer failed",
			logger.String("operationID", o.id),
			logger.String("kind", kind),
			logger.String("code", string(res.Code)),
			logger.String("message", res.Message),
		)
	}
	return res
}

// Rollback reverses a successful Execute. Rolling back twice is a no-op.
func (o *Op) Rollback(ctx context.Context, res Result) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case o.state == StateRolledBack:
		return nil
	case o.state != StateSucceeded:
		return fmt.Errorf("%w: rollback in state %s", ErrInvalidState, o.state)
	case res.OperationID != o.id:
		return fmt.Errorf("%w: result belongs to operation %s", ErrInvalidState, res.OperationID)
	}
	if err := Revert(ctx, o.sess, res); err != nil {
		return err
	}
	o.state = StateRolledBack
	return nil
}

type usedFlag struct {
	id   string
	used bool
}

type plan struct {
	expect []positions.Expect
	writes []positions.Write
	used   []usedFlag
}

func (o *Op) run(ctx context.Context, checked validation.Result) (res Result) {
	release := o.sess.Table.HoldNotifications()
	defer release()

	usedBefore := make(map[string]bool)
	var changes []positions.Change

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		o.log.Error(ctx, "transfer panicked, reverting",
			logger.String("operationID", o.id),
			logger.String("kind", string(o.kind)),
			logger.Any("panic", r),
		)
		metrics.RecordErrorByComponent("transfer", "unknown_error")
		o.revert(ctx, changes, usedBefore)
		res = o.failure(checked, validation.CodeUnknownError, fmt.Sprintf("transfer failed: %v", r), false)
	}()

	p, err := o.plan(checked)
	if err != nil {
		return o.failure(checked, validation.CodeTargetPositionInvalid, err.Error(), true)
	}
	if o.kind == validation.KindAssign {
		if _, ok := o.sess.Source.GetItemByID(checked.Item.ID); !ok {
			return o.failure(checked, validation.CodeSourceNotFound,
				fmt.Sprintf("item %s left the source before execution", checked.Item.ID), false)
		}
	}
	for _, u := range p.used {
		usedBefore[u.id] = o.sess.Source.IsItemUsed(u.id)
	}

	changes, err = o.sess.Table.CompareAndUpdate(p.expect, p.writes)
	if err != nil {
		if errors.Is(err, positions.ErrConflict) {
			return o.failure(checked, validation.CodeTargetPositionInvalid, err.Error(), true)
		}
		return o.failure(checked, validation.CodeUnknownError, err.Error(), false)
	}

	usedAfter := make(map[string]bool, len(p.used))
	for _, u := range p.used {
		o.sess.Source.MarkItemAsUsed(u.id, u.used)
		usedAfter[u.id] = u.used
	}

	return Result{
		OperationID: o.id,
		Kind:        o.kind,
		Success:     true,
		Item:        checked.Item,
		From:        o.req.From,
		To:          checked.Target,
		Changes:     changes,
		UsedBefore:  usedBefore,
		UsedAfter:   usedAfter,
		CompletedAt: time.Now(),
	}
}

func (o *Op) plan(v validation.Result) (plan, error) {
	switch o.kind {
	case validation.KindAssign:
		a := &model.Assignment{Item: v.Item, Source: model.SourceDirect}
		o.decorate(a)
		p := plan{
			expect: []positions.Expect{{Position: v.Target, ItemID: v.Displaced.ID}},
			writes: []positions.Write{{Position: v.Target, Assignment: a}},
			used:   []usedFlag{{id: v.Item.ID, used: true}},
		}
		if !v.Displaced.IsZero() {
			p.used = append(p.used, usedFlag{id: v.Displaced.ID})
		}
		return p, nil

	case validation.KindMove:
		from := o.req.From
		if from == v.Target {
			return plan{expect: []positions.Expect{{Position: from, ItemID: v.Item.ID}}}, nil
		}
		moved, err := o.current(from, v.Item.ID)
		if err != nil {
			return plan{}, err
		}
		p := plan{
			expect: []positions.Expect{
				{Position: from, ItemID: v.Item.ID},
				{Position: v.Target, ItemID: v.Displaced.ID},
			},
			writes: []positions.Write{
				{Position: from},
				{Position: v.Target, Assignment: moved},
			},
		}
		if !v.Displaced.IsZero() {
			p.used = append(p.used, usedFlag{id: v.Displaced.ID})
		}
		return p, nil

	case validation.KindSwap:
		first, err := o.current(o.req.From, v.Item.ID)
		if err != nil {
			return plan{}, err
		}
		second, err := o.current(v.Target, v.Displaced.ID)
		if err != nil {
			return plan{}, err
		}
		return plan{
			expect: []positions.Expect{
				{Position: o.req.From, ItemID: v.Item.ID},
				{Position: v.Target, ItemID: v.Displaced.ID},
			},
			writes: []positions.Write{
				{Position: o.req.From, Assignment: second},
				{Position: v.Target, Assignment: first},
			},
		}, nil

	case validation.KindRemove:
		return plan{
			expect: []positions.Expect{{Position: o.req.From, ItemID: v.Item.ID}},
			writes: []positions.Write{{Position: o.req.From}},
			used:   []usedFlag{{id: v.Item.ID}},
		}, nil
	}
	return plan{}, fmt.Errorf("unknown transfer kind %q", o.kind)
}

// current returns a fresh copy of the assignment at position for rewriting
// elsewhere. An empty itemID expects an empty slot and yields nil.
func (o *Op) current(position int, itemID string) (*model.Assignment, error) {
	a, ok := o.sess.Table.Get(position)
	curID := ""
	if ok {
		curID = a.Item.ID
	}
	if curID != itemID {
		return nil, fmt.Errorf("%w: position %d holds %q, want %q", positions.ErrConflict, position, curID, itemID)
	}
	if !ok {
		return nil, nil
	}
	a.AssignedAt = time.Time{}
	o.decorate(&a)
	return &a, nil
}

func (o *Op) decorate(a *model.Assignment) {
	if o.cfg.source != "" {
		a.Source = o.cfg.source
	}
	if o.cfg.matched != nil {
		a.Matched = *o.cfg.matched
	}
}

// revert undoes a half-applied run. Errors are logged, never raised.
func (o *Op) revert(ctx context.Context, changes []positions.Change, usedBefore map[string]bool) {
	if len(changes) > 0 {
		writes := make([]positions.Write, 0, len(changes))
		for _, c := range changes {
			writes = append(writes, positions.Write{Position: c.Position, Assignment: c.Prev})
		}
		if _, err := o.sess.Table.BatchUpdate(writes); err != nil {
			o.log.Error(ctx, "reverting table failed", logger.String("operationID", o.id), logger.Error(err))
		}
	}
	for id, used := range usedBefore {
		if err := safeMark(o.sess.Source, id, used); err != nil {
			o.log.Error(ctx, "restoring used flag failed",
				logger.String("operationID", o.id),
				logger.String("itemID", id),
				logger.Error(err),
			)
		}
	}
}

func (o *Op) claims() []string {
	var ids []string
	add := func(id string) {
		if id != "" {
			ids = append(ids, id)
		}
	}
	switch o.kind {
	case validation.KindAssign:
		add(o.req.ItemID)
	case validation.KindSwap:
		add(o.occupantID(o.req.From))
		add(o.occupantID(o.req.To))
	default:
		add(o.occupantID(o.req.From))
	}
	return ids
}

func (o *Op) occupantID(position int) string {
	a, ok := o.sess.Table.Get(position)
	if !ok {
		return ""
	}
	return a.Item.ID
}

// acquire must be called with o.mu held.
func (o *Op) acquire(ctx context.Context, itemID string) bool {
	if _, ok := o.held[itemID]; ok {
		return true
	}
	if !o.sess.Locks.TryAcquire(ctx, itemID, o.id) {
		return false
	}
	o.held[itemID] = struct{}{}
	return true
}

// releaseAll must be called with o.mu held.
func (o *Op) releaseAll(ctx context.Context) {
	for id := range o.held {
		o.sess.Locks.Release(ctx, id, o.id)
		delete(o.held, id)
	}
}

func (o *Op) blocked(itemID string) validation.Result {
	holder, _ := o.sess.Locks.Holder(itemID)
	return validation.Blocked(itemID, holder)
}

func (o *Op) rejection(v validation.Result) Result {
	return Result{
		OperationID: o.id,
		Kind:        o.kind,
		Code:        v.Code,
		Message:     v.Message,
		Transient:   v.Transient,
		Item:        v.Item,
		From:        o.req.From,
		To:          o.req.To,
		CompletedAt: time.Now(),
	}
}

func (o *Op) failure(v validation.Result, code validation.Code, msg string, transient bool) Result {
	res := o.rejection(v)
	res.Code = code
	res.Message = msg
	res.Transient = transient
	return res
}

// Run validates op and executes it. A rejected op comes back as a failed
// result carrying the rejection code.
func Run(ctx context.Context, op Operation) Result {
	op.Validate(ctx)
	return op.Execute(ctx)
}

// RunAll runs ops in order. If one does not succeed, the steps that did are
// rolled back in reverse order and the failure is returned as the error.
func RunAll(ctx context.Context, ops ...Operation) ([]Result, error) {
	results := make([]Result, 0, len(ops))
	for i, op := range ops {
		res := Run(ctx, op)
		results = append(results, res)
		if res.Success {
			continue
		}
		errs := []error{fmt.Errorf("step %d (%s): %w", i, op.Kind(), res.Err())}
		for j := i - 1; j >= 0; j-- {
			if err := ops[j].Rollback(ctx, results[j]); err != nil {
				errs = append(errs, fmt.Errorf("rolling back step %d: %w", j, err))
			}
		}
		return results, errors.Join(errs...)
	}
	return results, nil
}

// Revert restores the table and backlog flags recorded in res. It is a no-op
// when the table already shows the pre-operation state and fails with
// ErrRollbackConflict when only part of it does.
func Revert(ctx context.Context, s *session.Session, res Result) error {
	if !res.Success {
		return ErrNotRollbackable
	}
	kind := string(res.Kind)
	log := s.Logger.Named("transfer")
	owner := "rollback-" + res.OperationID

	var held []string
	defer func() {
		for _, id := range held {
			s.Locks.Release(ctx, id, owner)
		}
	}()
	for _, id := range touchedItems(res) {
		if !s.Locks.TryAcquire(ctx, id, owner) {
			metrics.RecordRollback(kind, "blocked")
			return fmt.Errorf("%w: item %s", ErrRollbackBlocked, id)
		}
		held = append(held, id)
	}

	expect := make([]positions.Expect, 0, len(res.Changes))
	writes := make([]positions.Write, 0, len(res.Changes))
	applied, reverted := 0, 0
	for _, c := range res.Changes {
		cur := ""
		if a, ok := s.Table.Get(c.Position); ok {
			cur = a.Item.ID
		}
		switch cur {
		case itemID(c.Next):
			applied++
		case itemID(c.Prev):
			reverted++
		}
		expect = append(expect, positions.Expect{Position: c.Position, ItemID: itemID(c.Next)})
		writes = append(writes, positions.Write{Position: c.Position, Assignment: c.Prev})
	}

	switch {
	case applied == len(res.Changes):
	case reverted == len(res.Changes):
		metrics.RecordRollback(kind, "noop")
		log.Debug(ctx, "rollback found state already reverted", logger.String("operationID", res.OperationID))
		return nil
	default:
		metrics.RecordRollback(kind, "conflict")
		return fmt.Errorf("%w: operation %s", ErrRollbackConflict, res.OperationID)
	}

	release := s.Table.HoldNotifications()
	defer release()
	if _, err := s.Table.CompareAndUpdate(expect, writes); err != nil {
		metrics.RecordRollback(kind, "conflict")
		return fmt.Errorf("%w: %w", ErrRollbackConflict, err)
	}
	var errs []error
	for id, used := range res.UsedBefore {
		if err := safeMark(s.Source, id, used); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		metrics.RecordRollback(kind, "partial")
		return errors.Join(errs...)
	}

	metrics.RecordRollback(kind, "reverted")
	log.Info(ctx, "transfer rolled back",
		logger.String("operationID", res.OperationID),
		logger.String("kind", kind),
		logger.Int("changes", len(res.Changes)),
	)
	return nil
}

func touchedItems(res Result) []string {
	seen := make(map[string]struct{})
	for _, c := range res.Changes {
		if id := itemID(c.Prev); id != "" {
			seen[id] = struct{}{}
		}
		if id := itemID(c.Next); id != "" {
			seen[id] = struct{}{}
		}
	}
	for id := range res.UsedBefore {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func itemID(a *model.Assignment) string {
	if a == nil {
		return ""
	}
	return a.Item.ID
}

func safeMark(src session.Source, id string, used bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("marking %s used=%t: %v", id, used, r)
		}
	}()
	src.MarkItemAsUsed(id, used)
	return nil
}
