package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Checker-Finance/ticker-bots/pkg/model"
)

// runStoreContract exercises the Store contract against a fresh store from newStore.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("FindBinding_NotFound", func(t *testing.T) {
		st := newStore(t)
		_, err := st.FindBinding(context.Background(), model.DefaultPool, "btc")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Claim_BindsEntry", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		require.NoError(t, st.InsertUnclaimed(ctx, model.DefaultPool, "111", "tok-111"))

		entry, err := st.ClaimUnclaimed(ctx, model.DefaultPool, "bitcoin", model.AssetCrypto)
		require.NoError(t, err)
		assert.Equal(t, "111", entry.ClientID)
		assert.Equal(t, "tok-111", entry.Token)
		assert.Equal(t, "bitcoin", entry.Ticker)
		assert.Equal(t, model.AssetCrypto, entry.AssetType)
		assert.NotNil(t, entry.ClaimedAt)

		found, err := st.FindBinding(ctx, model.DefaultPool, "bitcoin")
		require.NoError(t, err)
		assert.Equal(t, "111", found.ClientID)
	})

	t.Run("Claim_PoolExhausted_LeavesStoreUnchanged", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		require.NoError(t, st.InsertUnclaimed(ctx, model.DefaultPool, "111", "tok-111"))
		_, err := st.ClaimUnclaimed(ctx, model.DefaultPool, "bitcoin", model.AssetCrypto)
		require.NoError(t, err)

		_, err = st.ClaimUnclaimed(ctx, model.DefaultPool, "ethereum", model.AssetCrypto)
		assert.ErrorIs(t, err, ErrPoolExhausted)

		_, err = st.FindBinding(ctx, model.DefaultPool, "ethereum")
		assert.ErrorIs(t, err, ErrNotFound)
		found, err := st.FindBinding(ctx, model.DefaultPool, "bitcoin")
		require.NoError(t, err)
		assert.Equal(t, "111", found.ClientID)
	})

	t.Run("Claim_SameTickerTwice_ReturnsTickerBound", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		require.NoError(t, st.InsertUnclaimed(ctx, model.DefaultPool, "111", "tok-111"))
		require.NoError(t, st.InsertUnclaimed(ctx, model.DefaultPool, "222", "tok-222"))

		_, err := st.ClaimUnclaimed(ctx, model.DefaultPool, "aapl", model.AssetStock)
		require.NoError(t, err)
		_, err = st.ClaimUnclaimed(ctx, model.DefaultPool, "aapl", model.AssetStock)
		assert.ErrorIs(t, err, ErrTickerBound)

		n, err := st.CountUnclaimed(ctx, model.DefaultPool)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "the losing claim must not consume an entry")
	})

	t.Run("Claim_IsScopedToPool", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		require.NoError(t, st.InsertUnclaimed(ctx, "private-a", "111", "tok-111"))

		_, err := st.ClaimUnclaimed(ctx, model.DefaultPool, "bitcoin", model.AssetCrypto)
		assert.ErrorIs(t, err, ErrPoolExhausted)

		entry, err := st.ClaimUnclaimed(ctx, "private-a", "bitcoin", model.AssetCrypto)
		require.NoError(t, err)
		assert.Equal(t, model.PoolID("private-a"), entry.Pool)
	})

	t.Run("Insert_RejectsDuplicates", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		require.NoError(t, st.InsertUnclaimed(ctx, model.DefaultPool, "111", "tok-111"))

		assert.ErrorIs(t, st.InsertUnclaimed(ctx, model.DefaultPool, "111", "tok-other"), ErrDuplicate)
		assert.ErrorIs(t, st.InsertUnclaimed(ctx, model.DefaultPool, "999", "tok-111"), ErrDuplicate)

		for _, c := range []struct{ clientID, token string }{{"111", "x"}, {"x", "tok-111"}} {
			found, err := st.HasCredential(ctx, c.clientID, c.token)
			require.NoError(t, err)
			assert.True(t, found, c)
		}
		found, err := st.HasCredential(ctx, "999", "tok-999")
		require.NoError(t, err)
		assert.False(t, found)

		n, err := st.CountUnclaimed(ctx, model.DefaultPool)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		entry, err := st.ClaimUnclaimed(ctx, model.DefaultPool, "bitcoin", model.AssetCrypto)
		require.NoError(t, err)
		assert.Equal(t, "tok-111", entry.Token, "existing row must be untouched")
	})

	t.Run("InsertBound_IsFindable", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		require.NoError(t, st.InsertBound(ctx, model.PoolEntry{
			Pool: "desk", ClientID: "333", Token: "tok-333", Ticker: "tsla", AssetType: model.AssetStock,
		}))

		found, err := st.FindBinding(ctx, "desk", "tsla")
		require.NoError(t, err)
		assert.Equal(t, "333", found.ClientID)

		n, err := st.CountUnclaimed(ctx, "desk")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("Claim_UniqueUnderRace", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		const unclaimed, callers = 5, 20
		for i := 0; i < unclaimed; i++ {
			require.NoError(t, st.InsertUnclaimed(ctx, model.DefaultPool, fmt.Sprintf("c-%d", i), fmt.Sprintf("t-%d", i)))
		}

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			winners   = map[string]string{}
			exhausted int
			failures  []error
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ticker := fmt.Sprintf("tick-%d", i)
				entry, err := st.ClaimUnclaimed(ctx, model.DefaultPool, ticker, model.AssetCrypto)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					if prev, dup := winners[entry.ClientID]; dup {
						failures = append(failures, fmt.Errorf("entry %s claimed by %s and %s", entry.ClientID, prev, ticker))
					}
					winners[entry.ClientID] = ticker
				case errors.Is(err, ErrPoolExhausted):
					exhausted++
				default:
					failures = append(failures, err)
				}
			}(i)
		}
		wg.Wait()

		require.Empty(t, failures)
		assert.Len(t, winners, unclaimed)
		assert.Equal(t, callers-unclaimed, exhausted)

		n, err := st.CountUnclaimed(ctx, model.DefaultPool)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
