package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, cfg ServiceConfig) *Service {
	t.Helper()
	svc, err := NewService(cfg)
	require.NoError(t, err)
	t.Cleanup(svc.CloseAll)
	return svc
}

func TestService_CreateSession(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})
	path := writeCSV(t, "orders.csv", ordersCSV)

	sess, err := svc.CreateSession(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, sess)

	assert.NotEmpty(t, sess.ID)
	assert.True(t, sess.Table.Loaded())
	assert.Equal(t, 3, sess.Table.RowCount())

	got, err := svc.Session(sess.ID)
	require.NoError(t, err)
	assert.Same(t, sess, got)
}

func TestService_CreateSessionKeepsSessionOnOpenFailure(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})

	sess, err := svc.CreateSession(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.True(t, IsOpenError(err))
	assert.ErrorIs(t, err, ErrMap)
	require.NotNil(t, sess)
	assert.False(t, sess.Table.Loaded())
	assert.Equal(t, 1, svc.SessionCount())

	// The same session can retry with a good file.
	_, err = svc.OpenSession(context.Background(), sess.ID, writeCSV(t, "orders.csv", ordersCSV))
	require.NoError(t, err)
	assert.True(t, sess.Table.Loaded())
}

func TestService_SessionLimit(t *testing.T) {
	svc := newTestService(t, ServiceConfig{MaxSessions: 1})
	path := writeCSV(t, "orders.csv", ordersCSV)

	_, err := svc.CreateSession(context.Background(), path)
	require.NoError(t, err)

	sess, err := svc.CreateSession(context.Background(), path)
	assert.Nil(t, sess)
	assert.ErrorIs(t, err, ErrTooManySessions)
}

func TestService_UnknownSession(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})

	_, err := svc.Session("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, svc.CloseSession("nope"), ErrSessionNotFound)
	assert.ErrorIs(t, svc.DeleteSession("nope"), ErrSessionNotFound)

	_, err = svc.OpenSession(context.Background(), "nope", "x.csv")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestService_CloseAndDeleteSession(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})
	sess, err := svc.CreateSession(context.Background(), writeCSV(t, "orders.csv", ordersCSV))
	require.NoError(t, err)

	require.NoError(t, svc.CloseSession(sess.ID))
	assert.False(t, sess.Table.Loaded())
	assert.Equal(t, 1, svc.SessionCount())

	require.NoError(t, svc.DeleteSession(sess.ID))
	assert.Zero(t, svc.SessionCount())
	_, err = svc.Session(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestService_ListSessionsOldestFirst(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	path := writeCSV(t, "orders.csv", ordersCSV)
	first, err := svc.CreateSession(context.Background(), path)
	require.NoError(t, err)
	now = now.Add(time.Second)
	second, err := svc.CreateSession(context.Background(), path)
	require.NoError(t, err)

	list := svc.ListSessions()
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
	assert.Equal(t, "3 rows • 3 columns", list[0].Table.Summary)
}

func TestService_IdleSessionsExpire(t *testing.T) {
	svc := newTestService(t, ServiceConfig{IdleTTL: 300 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.StartSessionSweeper(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	path := writeCSV(t, "orders.csv", ordersCSV)
	stale, err := svc.CreateSession(context.Background(), path)
	require.NoError(t, err)
	fresh, err := svc.CreateSession(context.Background(), path)
	require.NoError(t, err)

	// Lookups refresh the idle TTL.
	for i := 0; i < 4; i++ {
		time.Sleep(100 * time.Millisecond)
		_, err = svc.Session(fresh.ID)
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool { return !stale.Table.Loaded() }, 2*time.Second, 10*time.Millisecond)
	_, err = svc.Session(stale.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.Session(fresh.ID)
	assert.NoError(t, err)
	assert.True(t, fresh.Table.Loaded())
	assert.True(t, fresh.LastUsed().After(fresh.Created))
}

func TestService_SessionSweeperStopsOnCancel(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.StartSessionSweeper(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestService_OpenLimiterBusy(t *testing.T) {
	svc := newTestService(t, ServiceConfig{MaxConcurrentOpens: 1, OpenWaitTime: 20 * time.Millisecond})
	path := writeCSV(t, "orders.csv", ordersCSV)

	require.True(t, svc.limiter.TryAcquire())
	sess, err := svc.CreateSession(context.Background(), path)
	assert.Nil(t, sess)
	assert.ErrorIs(t, err, ErrTooManyOpens)
	assert.Zero(t, svc.SessionCount())

	svc.limiter.Release()
	sess, err = svc.CreateSession(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, sess.Table.Loaded())
	assert.Zero(t, svc.OpenLimiterStatus().Active, "slot is released after the open")
}

func TestService_ResolvePath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	svc := newTestService(t, ServiceConfig{Root: root})

	resolvedRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{"relative inside", "orders.csv", filepath.Join(resolvedRoot, "orders.csv"), false},
		{"nested", "sub/../sub/x.csv", filepath.Join(resolvedRoot, "sub", "x.csv"), false},
		{"absolute inside", filepath.Join(resolvedRoot, "a.csv"), filepath.Join(resolvedRoot, "a.csv"), false},
		{"parent escape", "../etc/passwd", "", true},
		{"absolute outside", "/etc/passwd", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.ResolvePath(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrPathOutsideRoot)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_ResolvePathWithoutRoot(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})

	got, err := svc.ResolvePath("a/../b.csv")
	require.NoError(t, err)
	assert.Equal(t, "b.csv", got)
}

func TestService_CreateSessionOutsideRoot(t *testing.T) {
	svc := newTestService(t, ServiceConfig{Root: t.TempDir()})

	sess, err := svc.CreateSession(context.Background(), "../../etc/passwd")
	assert.Nil(t, sess)
	assert.ErrorIs(t, err, ErrPathOutsideRoot)
	assert.Zero(t, svc.SessionCount())
}

func TestService_RowIndexOption(t *testing.T) {
	svc := newTestService(t, ServiceConfig{RowIndex: true})
	sess, err := svc.CreateSession(context.Background(), writeCSV(t, "orders.csv", ordersCSV))
	require.NoError(t, err)

	assert.Equal(t, []string{"3", "c, d", "30"}, sess.Table.Row(2))
	offsets, err := sess.Table.offsets()
	require.NoError(t, err)
	assert.Len(t, offsets, 3)
}

func TestService_WaitForOpens(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, svc.WaitForOpens(ctx))
	assert.Equal(t, DefaultMaxConcurrentOpens, svc.OpenLimiterStatus().MaxConcurrent)
}
