package infra

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/notif_mon/internal/domain"
)

// storeBackend builds a fresh PreferenceStore for the shared behaviour tests.
type storeBackend struct {
	name string
	open func(t *testing.T) domain.PreferenceStore
}

func storeBackends() []storeBackend {
	return []storeBackend{
		{name: "sqlcipher", open: func(t *testing.T) domain.PreferenceStore { return newTestEncryptedStore(t) }},
		{name: "file", open: func(t *testing.T) domain.PreferenceStore { return newTestFileStore(t) }},
		{name: "redis", open: func(t *testing.T) domain.PreferenceStore {
			store, _ := newTestRedisStore(t)
			return store
		}},
	}
}

// newTestEncryptedStore creates an encrypted store in a temp directory.
func newTestEncryptedStore(t *testing.T) *EncryptedPreferenceStore {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)

	store, err := NewEncryptedPreferenceStore(t.TempDir(), key)
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })
	return store
}

func newTestFileStore(t *testing.T) *FilePreferenceStore {
	t.Helper()
	store, err := NewFilePreferenceStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func newTestRedisStore(t *testing.T) (*RedisPreferenceStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := NewRedisPreferenceStore("redis://"+s.Addr(), "")
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })
	return store, s
}

// mockProcessManager is a test double for domain.ProcessManager
type mockProcessManager struct {
	names       map[int]string
	runningPIDs map[int]bool
}

func newMockProcessManager() *mockProcessManager {
	return &mockProcessManager{
		names:       make(map[int]string),
		runningPIDs: make(map[int]bool),
	}
}

func (m *mockProcessManager) NameOf(pid int) (string, error) {
	name, ok := m.names[pid]
	if !ok {
		return "", domain.ErrNotFound
	}
	return name, nil
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	return m.runningPIDs[pid]
}

func (m *mockProcessManager) GetCurrentPID() int {
	return 4242
}

// Ensure mockProcessManager implements domain.ProcessManager
var _ domain.ProcessManager = (*mockProcessManager)(nil)
