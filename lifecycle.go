/*
Package dynamo – table lifecycle.

Provisioner drives one table to ACTIVE:

	UNKNOWN → describe ─┬─ absent  → MISSING → create → CREATING ─┐
	                    └─ present → UPDATING → update ────────────┤
	                                                               ▼
	                          describe until ACTIVE (PENDING between polls)

Any admin or poll failure moves to ERROR and ends the run immediately.
*/
package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DefaultPollInterval is the wait between describe polls.
const DefaultPollInterval = time.Second

// ProvisioningState is a step of the table lifecycle.
type ProvisioningState int

const (
	StateUnknown ProvisioningState = iota
	StateMissing
	StateCreating
	StateUpdating
	StatePending
	StateActive
	StateError
)

func (s ProvisioningState) String() string {
	switch s {
	case StateMissing:
		return "MISSING"
	case StateCreating:
		return "CREATING"
	case StateUpdating:
		return "UPDATING"
	case StatePending:
		return "PENDING"
	case StateActive:
		return "ACTIVE"
	case StateError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// TableOptions carry the capacity used when creating or updating a table.
// Zero capacities default to one unit.
type TableOptions struct {
	ReadCapacity  int64 `yaml:"readCapacity"`
	WriteCapacity int64 `yaml:"writeCapacity"`
	// OnDemand creates the table with PAY_PER_REQUEST billing.
	OnDemand bool `yaml:"onDemand"`
}

// TableAdmin is the table-admin surface the Provisioner drives. *Table implements it.
type TableAdmin interface {
	TableName() string
	// DescribeTable returns nil, nil when the table does not exist.
	DescribeTable(ctx context.Context) (*types.TableDescription, error)
	CreateTable(ctx context.Context, opts *TableOptions) error
	UpdateTable(ctx context.Context, opts *TableOptions) error
}

var _ TableAdmin = (*Table)(nil)

// Provisioner runs the table lifecycle.
type Provisioner struct {
	// Interval between polls; DefaultPollInterval when zero.
	Interval time.Duration
	// Timeout bounds the whole run; zero polls until ACTIVE or ctx is done.
	Timeout time.Duration
	Logger  Logger
	// OnTransition, when set, observes every state change.
	OnTransition func(table string, from, to ProvisioningState)
}

// EnsureActive creates or updates the table behind admin and waits until it is ACTIVE.
func (p *Provisioner) EnsureActive(ctx context.Context, admin TableAdmin, opts *TableOptions) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	log := p.Logger
	if log == nil {
		log = NopLogger()
	}
	name := admin.TableName()
	parent := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	state := StateUnknown
	move := func(to ProvisioningState) {
		if to == state {
			return
		}
		log.Trace("table state", map[string]any{"table": name, "from": state.String(), "to": to.String()})
		if p.OnTransition != nil {
			p.OnTransition(name, state, to)
		}
		state = to
	}
	fail := func(err error) error {
		at := state
		move(StateError)
		ctxInfo := map[string]any{"table": name, "state": at.String()}
		if p.Timeout > 0 && ctx.Err() != nil && parent.Err() == nil {
			log.Error("table provisioning timed out", ctxInfo)
			return NewError(fmt.Sprintf(`table "%s" not active after %s`, name, p.Timeout),
				WithCode(CodeTimeout), WithContext(ctxInfo), WithCause(ErrProvisioningTimeout))
		}
		log.Error("table provisioning failed", ctxInfo)
		return NewError(fmt.Sprintf(`cannot provision table "%s"`, name),
			WithCode(CodeProvisioning), WithContext(ctxInfo), WithCause(err))
	}

	desc, err := admin.DescribeTable(ctx)
	if err != nil {
		return fail(err)
	}
	if desc == nil {
		move(StateMissing)
		if err := admin.CreateTable(ctx, opts); err != nil {
			return fail(err)
		}
		move(StateCreating)
	} else {
		move(StateUpdating)
		if err := admin.UpdateTable(ctx, opts); err != nil {
			return fail(err)
		}
	}

	for {
		desc, err := admin.DescribeTable(ctx)
		if err != nil {
			return fail(err)
		}
		if desc != nil && desc.TableStatus == types.TableStatusActive {
			move(StateActive)
			log.Info("table active", map[string]any{"table": name})
			return nil
		}
		move(StatePending)
		if err := sleep(ctx, interval); err != nil {
			return fail(err)
		}
	}
}
