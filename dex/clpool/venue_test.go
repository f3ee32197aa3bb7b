package clpool

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HWyn2020/flash-arbitrage-ethereum/dex"
)

type fakeStateReader struct {
	sqrtPriceX96 *big.Int
	liquidity    *big.Int
	err          error
	reads        int
}

func (f *fakeStateReader) Slot0(ctx context.Context, pool common.Address) (*big.Int, *big.Int, error) {
	f.reads++
	if f.err != nil {
		return nil, nil, f.err
	}
	return new(big.Int).Set(f.sqrtPriceX96), new(big.Int).Set(f.liquidity), nil
}

func TestVirtualReservesAtUnitPrice(t *testing.T) {
	// sqrtP = 2^96 means price 1: both virtual reserves equal liquidity.
	liquidity := big.NewInt(1_000_000)
	r0, r1 := VirtualReserves(new(big.Int).Set(Q96), liquidity)

	assert.Equal(t, liquidity, r0)
	assert.Equal(t, liquidity, r1)
}

func TestVirtualReservesPriceSkew(t *testing.T) {
	// sqrtP = 2*2^96 means price 4: reserve1/reserve0 = 4.
	sqrtP := new(big.Int).Lsh(Q96, 1)
	r0, r1 := VirtualReserves(sqrtP, big.NewInt(1_000_000))

	assert.Equal(t, big.NewInt(500_000), r0)
	assert.Equal(t, big.NewInt(2_000_000), r1)
}

func TestVirtualReservesDegenerate(t *testing.T) {
	r0, r1 := VirtualReserves(nil, big.NewInt(1))
	assert.Equal(t, 0, r0.Sign())
	assert.Equal(t, 0, r1.Sign())

	r0, r1 = VirtualReserves(new(big.Int).Set(Q96), big.NewInt(0))
	assert.Equal(t, 0, r0.Sign())
	assert.Equal(t, 0, r1.Sign())
}

func TestSqrtPriceRoundTrip(t *testing.T) {
	liquidity := big.NewInt(1_000_000)
	sqrtP := new(big.Int).Lsh(Q96, 1)
	_, r1 := VirtualReserves(sqrtP, liquidity)

	assert.Equal(t, sqrtP, SqrtPriceFromReserve1(r1, liquidity))
}

func TestVenueKeyIncludesFeeTier(t *testing.T) {
	reader := &fakeStateReader{sqrtPriceX96: new(big.Int).Set(Q96), liquidity: big.NewInt(1)}
	pool := common.HexToAddress("0x01")
	t0 := common.HexToAddress("0xa0")
	t1 := common.HexToAddress("0xb0")

	v5 := New("uniswap_v3", pool, t0, t1, 5, reader)
	v30 := New("uniswap_v3", pool, t0, t1, 30, reader)

	assert.Equal(t, "uniswap_v3@5bps", v5.Key())
	assert.Equal(t, "uniswap_v3@30bps", v30.Key())
	assert.NotEqual(t, v5.Key(), v30.Key())
}

func TestVenueReservesOrientation(t *testing.T) {
	// Price 4 with L=1e6: reserve0=500k, reserve1=2m.
	reader := &fakeStateReader{
		sqrtPriceX96: new(big.Int).Lsh(Q96, 1),
		liquidity:    big.NewInt(1_000_000),
	}
	pool := common.HexToAddress("0x01")
	t0 := common.HexToAddress("0xa0")
	t1 := common.HexToAddress("0xb0")
	v := New("uniswap_v3", pool, t0, t1, 30, reader)

	fwd, err := v.Reserves(context.Background(), t0, t1)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(500_000), fwd.In)
	assert.Equal(t, big.NewInt(2_000_000), fwd.Out)

	rev, err := v.Reserves(context.Background(), t1, t0)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(2_000_000), rev.In)
	assert.Equal(t, big.NewInt(500_000), rev.Out)
}

func TestVenueQuoteIsFreshAndNonMutating(t *testing.T) {
	reader := &fakeStateReader{sqrtPriceX96: new(big.Int).Set(Q96), liquidity: big.NewInt(1_000_000)}
	t0 := common.HexToAddress("0xa0")
	t1 := common.HexToAddress("0xb0")
	v := New("uniswap_v3", common.HexToAddress("0x01"), t0, t1, 30, reader)

	first, err := v.Quote(context.Background(), t0, t1, big.NewInt(1000))
	require.NoError(t, err)
	second, err := v.Quote(context.Background(), t0, t1, big.NewInt(1000))
	require.NoError(t, err)

	// Quoting reads state but never moves it.
	assert.Equal(t, first, second)
	assert.Equal(t, 2, reader.reads)
	assert.Equal(t, dex.AmountOut(big.NewInt(1000), big.NewInt(1_000_000), big.NewInt(1_000_000), 30), first)
}

func TestVenueRejectsUnsupportedPair(t *testing.T) {
	reader := &fakeStateReader{sqrtPriceX96: new(big.Int).Set(Q96), liquidity: big.NewInt(1)}
	v := New("uniswap_v3", common.HexToAddress("0x01"),
		common.HexToAddress("0xa0"), common.HexToAddress("0xb0"), 30, reader)

	_, err := v.Reserves(context.Background(), common.HexToAddress("0xa0"), common.HexToAddress("0xcc"))
	assert.Error(t, err)
}

func TestVenuePropagatesReadError(t *testing.T) {
	readErr := errors.New("node unreachable")
	reader := &fakeStateReader{err: readErr}
	v := New("uniswap_v3", common.HexToAddress("0x01"),
		common.HexToAddress("0xa0"), common.HexToAddress("0xb0"), 30, reader)

	_, err := v.Reserves(context.Background(), common.HexToAddress("0xa0"), common.HexToAddress("0xb0"))
	assert.ErrorIs(t, err, readErr)
}
