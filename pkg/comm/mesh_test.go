package comm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

// exercise runs a broadcast, a barrier and a gather to root on every rank.
func exercise(ctx context.Context, c Comm) error {
	id := c.Identity()
	got, err := c.Broadcast(ctx, []byte("params"), Root)
	if err != nil {
		return err
	}
	if string(got) != "params" {
		return fmt.Errorf("rank %d: broadcast got %q", id.Rank, got)
	}
	if err := c.Barrier(ctx); err != nil {
		return err
	}
	if !id.IsRoot() {
		if err := c.Send(ctx, []byte(fmt.Sprintf("header-%d", id.Rank)), Root); err != nil {
			return err
		}
		return c.Send(ctx, []byte(fmt.Sprintf("payload-%d", id.Rank)), Root)
	}
	for r := 1; r < id.Size; r++ {
		for _, want := range []string{"header", "payload"} {
			b, err := c.Receive(ctx, r)
			if err != nil {
				return err
			}
			if string(b) != fmt.Sprintf("%s-%d", want, r) {
				return fmt.Errorf("root: from rank %d got %q", r, b)
			}
		}
	}
	return nil
}

func TestMeshCollectives(t *testing.T) {
	defer goleak.VerifyNone(t)

	for _, size := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("size=%d", size), func(t *testing.T) {
			eps, err := NewMesh(size)
			require.NoError(t, err)

			g, ctx := errgroup.WithContext(context.Background())
			for _, ep := range eps {
				g.Go(func() error {
					defer ep.Close()
					// Two rounds to check that barriers and links are reusable.
					for i := 0; i < 2; i++ {
						if err := exercise(ctx, ep); err != nil {
							return err
						}
					}
					return nil
				})
			}
			require.NoError(t, g.Wait())
		})
	}
}

func TestMeshBroadcastFromNonRoot(t *testing.T) {
	eps, err := NewMesh(3)
	require.NoError(t, err)

	g, ctx := errgroup.WithContext(context.Background())
	for _, ep := range eps {
		g.Go(func() error {
			b, err := ep.Broadcast(ctx, []byte{byte(ep.Identity().Rank)}, 2)
			if err != nil {
				return err
			}
			if len(b) != 1 || b[0] != 2 {
				return fmt.Errorf("rank %d got %v", ep.Identity().Rank, b)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestMeshSendCopiesData(t *testing.T) {
	eps, err := NewMesh(2)
	require.NoError(t, err)
	ctx := context.Background()

	data := []byte("abc")
	require.NoError(t, eps[0].Send(ctx, data, 1))
	data[0] = 'x'
	got, err := eps[1].Receive(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestMeshErrors(t *testing.T) {
	eps, err := NewMesh(2)
	require.NoError(t, err)

	err = eps[0].Send(context.Background(), nil, 7)
	assert.ErrorIs(t, err, ErrMessaging)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = eps[0].Receive(ctx, 1)
	assert.ErrorIs(t, err, ErrMessaging)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, eps[1].Close())
	_, err = eps[1].Receive(context.Background(), 0)
	assert.ErrorIs(t, err, ErrClosed)
	var me *MessagingError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "receive", me.Op)
	assert.Equal(t, 1, me.Rank)

	_, err = NewMesh(0)
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}
