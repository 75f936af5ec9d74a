package dynamo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transition struct{ from, to ProvisioningState }

func recordingProvisioner(log *[]transition) *Provisioner {
	return &Provisioner{
		Interval: time.Millisecond,
		OnTransition: func(_ string, from, to ProvisioningState) {
			*log = append(*log, transition{from, to})
		},
	}
}

func TestEnsureActive_CreatesAndPolls(t *testing.T) {
	fc := newFakeClient()
	fc.pending = 2
	docs := newTestRegistry(fc).MustDefine("Doc", ModelConfig{HashKey: "id"})
	var seen []transition

	err := recordingProvisioner(&seen).EnsureActive(bg(), docs, &TableOptions{ReadCapacity: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, fc.count("CreateTable"))
	assert.Equal(t, 4, fc.count("DescribeTable"), "absent, creating, creating, active")
	assert.Equal(t, []transition{
		{StateUnknown, StateMissing},
		{StateMissing, StateCreating},
		{StateCreating, StatePending},
		{StatePending, StateActive},
	}, seen)
}

func TestEnsureActive_PollFailureStops(t *testing.T) {
	fc := newFakeClient()
	fc.pending = 5
	boom := errors.New("describe exploded")
	fc.failOn("DescribeTable", func(n int) error {
		if n == 3 {
			return boom
		}
		return nil
	})
	docs := newTestRegistry(fc).MustDefine("Doc", ModelConfig{HashKey: "id"})
	var seen []transition

	err := recordingProvisioner(&seen).EnsureActive(bg(), docs, nil)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeProvisioning))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, fc.count("DescribeTable"), "no poll after the failure")
	assert.Equal(t, transition{StatePending, StateError}, seen[len(seen)-1])

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "docs", e.Context["table"])
	assert.Equal(t, "PENDING", e.Context["state"])
}

func TestEnsureActive_CreateFailure(t *testing.T) {
	fc := newFakeClient()
	fc.failOn("CreateTable", func(int) error { return errors.New("limit exceeded") })
	docs := newTestRegistry(fc).MustDefine("Doc", ModelConfig{HashKey: "id"})
	var seen []transition

	err := recordingProvisioner(&seen).EnsureActive(bg(), docs, nil)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeProvisioning))
	assert.Equal(t, []transition{
		{StateUnknown, StateMissing},
		{StateMissing, StateError},
	}, seen)
	assert.Equal(t, 1, fc.count("DescribeTable"))
}

func TestEnsureActive_UpdatesExistingTable(t *testing.T) {
	fc := newFakeClient()
	fc.addTable("docs", "id", "")
	fc.pending = 1
	docs := newTestRegistry(fc).MustDefine("Doc", ModelConfig{HashKey: "id", Indexes: []IndexConfig{
		{Name: "ByOwner", Type: IndexGlobal, HashKey: "owner"},
	}})
	var seen []transition

	err := recordingProvisioner(&seen).EnsureActive(bg(), docs, nil)
	require.NoError(t, err)
	assert.Zero(t, fc.count("CreateTable"))
	assert.Equal(t, 1, fc.count("UpdateTable"))
	assert.Equal(t, []transition{
		{StateUnknown, StateUpdating},
		{StateUpdating, StatePending},
		{StatePending, StateActive},
	}, seen)
}

func TestEnsureActive_UpToDateTable(t *testing.T) {
	fc := newFakeClient()
	fc.addTable("docs", "id", "")
	docs := newTestRegistry(fc).MustDefine("Doc", ModelConfig{HashKey: "id"})
	var seen []transition

	require.NoError(t, recordingProvisioner(&seen).EnsureActive(bg(), docs, nil))
	assert.Zero(t, fc.count("UpdateTable"))
	assert.Equal(t, []transition{
		{StateUnknown, StateUpdating},
		{StateUpdating, StateActive},
	}, seen)
}

func TestEnsureActive_Timeout(t *testing.T) {
	fc := newFakeClient()
	fc.pending = 100000
	docs := newTestRegistry(fc).MustDefine("Doc", ModelConfig{HashKey: "id"})
	p := &Provisioner{Interval: time.Millisecond, Timeout: 20 * time.Millisecond}

	err := p.EnsureActive(bg(), docs, nil)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeTimeout))
	assert.ErrorIs(t, err, ErrProvisioningTimeout)
}

func TestEnsureActive_ParentCancelled(t *testing.T) {
	fc := newFakeClient()
	fc.pending = 1
	docs := newTestRegistry(fc).MustDefine("Doc", ModelConfig{HashKey: "id"})
	ctx, cancel := context.WithCancel(bg())
	cancel()

	err := (&Provisioner{Interval: time.Hour, Timeout: time.Hour}).EnsureActive(ctx, docs, nil)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeProvisioning))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProvisioningState_String(t *testing.T) {
	assert.Equal(t, "MISSING", StateMissing.String())
	assert.Equal(t, "ACTIVE", StateActive.String())
	assert.Equal(t, "UNKNOWN", ProvisioningState(42).String())
}
