package curve

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateFee(t *testing.T) {
	assert.EqualValues(t, 0, CalculateFee(0, 100))
	assert.EqualValues(t, 0, CalculateFee(1_000, 0))
	assert.EqualValues(t, 1, CalculateFee(1, 100))
	assert.EqualValues(t, 1, CalculateFee(50, 100))
	assert.EqualValues(t, 1, CalculateFee(100, 100))
	assert.EqualValues(t, 2, CalculateFee(101, 100))
	assert.EqualValues(t, 25, CalculateFee(1_000, 250))
	assert.EqualValues(t, 1_000, CalculateFee(1_000, MaxFeeBps))
	assert.EqualValues(t, uint64(math.MaxUint64/100+1), CalculateFee(math.MaxUint64, 100))
}

func TestEstimateBuy(t *testing.T) {
	received, fees, err := EstimateBuy(&EstimateBuyArgs{
		BuyAmountInQuarks:    100_000_000, // $100
		AnchorSupplyInQuarks: 1_000_000 * QuarksPerToken,
		AnchorPriceInQuarks:  10_000, // $0.01
		ReserveRatio:         500_000,
		BuyFeeBps:            0,
	})
	require.NoError(t, err)
	fmt.Printf("%d total, %d received, %d fees\n", received+fees, received, fees)
	assert.Zero(t, fees)

	withFees, fees, err := EstimateBuy(&EstimateBuyArgs{
		BuyAmountInQuarks:    100_000_000, // $100
		AnchorSupplyInQuarks: 1_000_000 * QuarksPerToken,
		AnchorPriceInQuarks:  10_000, // $0.01
		ReserveRatio:         500_000,
		BuyFeeBps:            100, // 1%
	})
	require.NoError(t, err)
	fmt.Printf("%d total, %d received, %d fees\n", withFees+fees, withFees, fees)
	assert.EqualValues(t, 1_000_000, fees)
	assert.True(t, withFees < received)

	received, fees, err = EstimateBuy(&EstimateBuyArgs{
		BuyAmountInQuarks:      100_000_000, // $100
		CurrentSupplyInQuarks:  1_000_000 * QuarksPerToken,
		CurrentReserveInQuarks: 5_000_000_000,
		ReserveRatio:           500_000,
		BuyFeeBps:              100, // 1%
	})
	require.NoError(t, err)
	fmt.Printf("%d total, %d received, %d fees\n", received+fees, received, fees)
	assert.EqualValues(t, 1_000_000, fees)
	assert.NotZero(t, received)
}

func TestEstimateSell(t *testing.T) {
	received, fees, err := EstimateSell(&EstimateSellArgs{
		SellAmountInQuarks:     265 * QuarksPerToken,
		CurrentSupplyInQuarks:  1_000_000 * QuarksPerToken,
		CurrentReserveInQuarks: 5_000_000_000, // $5000
		ReserveRatio:           500_000,
		SellFeeBps:             0,
	})
	require.NoError(t, err)
	fmt.Printf("%d total, %d received, %d fees\n", received+fees, received, fees)
	assert.Zero(t, fees)

	withFees, fees, err := EstimateSell(&EstimateSellArgs{
		SellAmountInQuarks:     265 * QuarksPerToken,
		CurrentSupplyInQuarks:  1_000_000 * QuarksPerToken,
		CurrentReserveInQuarks: 5_000_000_000, // $5000
		ReserveRatio:           500_000,
		SellFeeBps:             100, // 1%
	})
	require.NoError(t, err)
	fmt.Printf("%d total, %d received, %d fees\n", withFees+fees, withFees, fees)
	assert.Equal(t, received, withFees+fees)
	assert.Equal(t, CalculateFee(received, 100), fees)

	_, _, err = EstimateSell(&EstimateSellArgs{
		SellAmountInQuarks:     2,
		CurrentSupplyInQuarks:  1,
		CurrentReserveInQuarks: 1,
		ReserveRatio:           500_000,
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}
