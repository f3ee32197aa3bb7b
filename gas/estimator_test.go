package gas

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticEstimateFee(t *testing.T) {
	// (2*baseFee + tip) * gasLimit = (2*100 + 10) * 1000 = 210000.
	e := NewStatic(big.NewInt(100), big.NewInt(10))
	assert.Equal(t, big.NewInt(210_000), e.EstimateFee(1000))
}

func TestEstimateFeeScalesWithLimit(t *testing.T) {
	e := NewStatic(big.NewInt(100), big.NewInt(10))
	single := e.EstimateFee(1)
	double := e.EstimateFee(2)
	assert.Equal(t, new(big.Int).Lsh(single, 1), double)
}

func TestZeroPricesYieldZeroFee(t *testing.T) {
	e := NewStatic(new(big.Int), new(big.Int))
	assert.Equal(t, 0, e.EstimateFee(600_000).Sign())
}
