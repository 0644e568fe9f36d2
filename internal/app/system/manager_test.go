package system

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recorder(name string, log *[]string, startErr error) Func {
	return Func{
		ServiceName: name,
		OnStart: func(context.Context) error {
			*log = append(*log, "start "+name)
			return startErr
		},
		OnStop: func(context.Context) error {
			*log = append(*log, "stop "+name)
			return nil
		},
	}
}

func TestManager_StartStopOrder(t *testing.T) {
	var log []string
	m := NewManager()
	require.NoError(t, m.Register(recorder("store", &log, nil)))
	require.NoError(t, m.Register(recorder("refresher", &log, nil)))
	assert.Equal(t, []string{"store", "refresher"}, m.Names())

	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Start(ctx), "second start is a no-op")
	assert.ErrorIs(t, m.Register(recorder("late", &log, nil)), ErrStarted)

	require.NoError(t, m.Stop(ctx))
	require.NoError(t, m.Stop(ctx))
	assert.Equal(t, []string{"start store", "start refresher", "stop refresher", "stop store"}, log)
}

func TestManager_StartFailureStopsStartedServices(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	m := NewManager()
	require.NoError(t, m.Register(recorder("store", &log, nil)))
	require.NoError(t, m.Register(recorder("refresher", &log, boom)))

	err := m.Start(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "start refresher")
	assert.Equal(t, []string{"start store", "start refresher", "stop store"}, log)
}

func TestManager_RejectsDuplicatesAndNil(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(Func{ServiceName: "store"}))
	assert.Error(t, m.Register(Func{ServiceName: "store"}))
	assert.Error(t, m.Register(nil))
}
