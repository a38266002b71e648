package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "memberportal/pkg/domain"
	audit "memberportal/pkg/platform/audit"
	"memberportal/pkg/platform/audit/store/memory"
)

var member = id.Member{BusinessGroup: "RBS", ReferenceNumber: "1234567"}

var testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func TestWorker_DrainsUntilInboxClosed(t *testing.T) {
	store := memory.NewInMemoryStore()
	inbox := make(chan audit.Event, 3)
	for range 3 {
		inbox <- audit.Prepare(audit.Event{Member: member, Action: string(audit.EventStepSubmitted)}, testNow)
	}
	close(inbox)

	err := NewWorker(store, inbox, nil).Run(context.Background())
	require.NoError(t, err)

	events, err := store.ListByMember(context.Background(), member)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestWorker_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewWorker(memory.NewInMemoryStore(), make(chan audit.Event), nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type failingStore struct{ calls int }

func (f *failingStore) Append(context.Context, audit.Event) error {
	f.calls++
	return errors.New("disk full")
}

func (f *failingStore) ListByMember(context.Context, id.Member) ([]audit.Event, error) {
	return nil, nil
}

func TestWorker_KeepsGoingAfterStoreFailure(t *testing.T) {
	store := &failingStore{}
	inbox := make(chan audit.Event, 2)
	inbox <- audit.Event{Member: member, Action: string(audit.EventJourneyStarted)}
	inbox <- audit.Event{Member: member, Action: string(audit.EventJourneySubmitted)}
	close(inbox)

	require.NoError(t, NewWorker(store, inbox, nil).Run(context.Background()))
	assert.Equal(t, 2, store.calls)
}
