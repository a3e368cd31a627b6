package atomicmem

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNativeLoadStoreRoundTrip(t *testing.T) {
	m := NewNative(64)
	require.NoError(t, m.Store32(0, 0xDEADBEEF))
	v, err := m.Load32(0)
	require.NoError(t, err)
	require.Equal(t, uint32(0xDEADBEEF), v)
}

func TestNativeMisaligned(t *testing.T) {
	m := NewNative(64)
	_, err := m.Load32(1)
	require.ErrorIs(t, err, ErrMisaligned)
	require.ErrorIs(t, m.Store32(3, 1), ErrMisaligned)
}

func TestNativeOutOfBounds(t *testing.T) {
	m := NewNative(8)
	_, err := m.Load32(8)
	require.ErrorIs(t, err, ErrOutOfBounds)
}

func TestNativeFetchAdd(t *testing.T) {
	m := NewNative(16)
	prev, err := m.FetchAdd32(4, 5)
	require.NoError(t, err)
	require.Equal(t, uint32(0), prev)
	v, err := m.Load32(4)
	require.NoError(t, err)
	require.Equal(t, uint32(5), v)
}

func TestNativeCopyFromTo(t *testing.T) {
	m := NewNative(32)
	payload := []byte{1, 2, 3, 4, 5}
	require.NoError(t, m.CopyFrom(8, payload))
	out := make([]byte, len(payload))
	require.NoError(t, m.CopyTo(8, out))
	require.Equal(t, payload, out)

	require.ErrorIs(t, m.CopyFrom(30, payload), ErrOutOfBounds)
}

func TestNativeWait32WakesOnStore(t *testing.T) {
	m := NewNative(16)
	var wg sync.WaitGroup
	wg.Add(1)
	var result WaitResult
	go func() {
		defer wg.Done()
		r, err := m.Wait32(0, 0, int64(time.Second))
		require.NoError(t, err)
		result = r
	}()

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, m.Store32(0, 7))
	wg.Wait()
	require.Equal(t, WaitOK, result)
}

func TestNativeWait32AlreadyDiffers(t *testing.T) {
	m := NewNative(16)
	require.NoError(t, m.Store32(0, 1))
	r, err := m.Wait32(0, 0, int64(time.Second))
	require.NoError(t, err)
	require.Equal(t, WaitNotEqual, r)
}

func TestNativeWait32Timeout(t *testing.T) {
	m := NewNative(16)
	r, err := m.Wait32(0, 0, int64(10*time.Millisecond))
	require.NoError(t, err)
	require.Equal(t, WaitTimedOut, r)
}

func TestNativeNotify32Validates(t *testing.T) {
	m := NewNative(16)
	_, err := m.Notify32(1, 1)
	require.ErrorIs(t, err, ErrMisaligned)
}

func TestSharedFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fabric.sab")
	sf, err := OpenSharedFile(path, 64, true)
	require.NoError(t, err)
	defer sf.Close()

	require.NoError(t, sf.Store32(4, 42))
	v, err := sf.Load32(4)
	require.NoError(t, err)
	require.Equal(t, uint32(42), v)

	payload := []byte("hello")
	require.NoError(t, sf.CopyFrom(16, payload))
	out := make([]byte, len(payload))
	require.NoError(t, sf.CopyTo(16, out))
	require.Equal(t, payload, out)
}

func TestSharedFileReopenSeesPriorWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fabric.sab")
	a, err := OpenSharedFile(path, 64, true)
	require.NoError(t, err)
	require.NoError(t, a.Store32(0, 99))
	require.NoError(t, a.Close())

	b, err := OpenSharedFile(path, 64, false)
	require.NoError(t, err)
	defer b.Close()
	v, err := b.Load32(0)
	require.NoError(t, err)
	require.Equal(t, uint32(99), v)
}

func TestSharedFileZeroSizeRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.sab")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = OpenSharedFile(path, 0, false)
	require.Error(t, err)
}
