package lock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLock struct {
	key        string
	releaseErr error
	released   *[]string
}

func (l stubLock) Release(context.Context) error {
	*l.released = append(*l.released, l.key)
	return l.releaseErr
}

type stubLocker struct {
	obtainErr  error
	releaseErr error
	obtained   []string
	released   []string
}

func (s *stubLocker) Obtain(_ context.Context, key string) (Lock, error) {
	if s.obtainErr != nil {
		return nil, s.obtainErr
	}
	s.obtained = append(s.obtained, key)
	return stubLock{key: key, releaseErr: s.releaseErr, released: &s.released}, nil
}

func TestWithLock_Result(t *testing.T) {
	fnErr := errors.New("reserve failed")
	busy := NewBusyError("order:1")

	tests := []struct {
		name       string
		obtainErr  error
		releaseErr error
		fnErr      error
		wantErr    error
		wantRan    bool
	}{
		{name: "success", wantRan: true},
		{name: "release failure keeps success", releaseErr: errors.New("redis: connection reset"), wantRan: true},
		{name: "fn error wins over release failure", releaseErr: errors.New("lock expired"), fnErr: fnErr, wantErr: fnErr, wantRan: true},
		{name: "busy lock skips fn", obtainErr: busy, wantErr: busy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &stubLocker{obtainErr: tt.obtainErr, releaseErr: tt.releaseErr}
			ran := false

			err := WithLock(context.Background(), l, "order:1", func(context.Context) error {
				ran = true
				return tt.fnErr
			})

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantRan, ran)
			if tt.obtainErr == nil {
				assert.Equal(t, []string{"order:1"}, l.released)
			}
		})
	}
}

func TestWithLocks_SortedAndDeduplicated(t *testing.T) {
	l := &stubLocker{releaseErr: errors.New("lock expired")}

	err := WithLocks(context.Background(), l, []string{"stock:b", "stock:a", "stock:b"}, func(context.Context) error {
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"stock:a", "stock:b"}, l.obtained)
	assert.Equal(t, []string{"stock:b", "stock:a"}, l.released)
}
