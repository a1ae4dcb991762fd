// Package payout computes each staked item's share of a settlement pool.
//
// An item at rank r among n staked items receives
//
//	ratio(r, n) = (2n - 2r) / (n + n^2) = (n - r) / (1 + 2 + ... + n)
//
// so rank 0 (the earliest stake) earns the most and the shares sum to one.
package payout

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/locker/pkg/fixed"
	"github.com/holiman/uint256"
)

var (
	ErrRankOutOfRange = errors.New("rank out of range")
	ErrBadRankSum     = errors.New("rank sum does not match item count")
)

// RankSum returns 1 + 2 + ... + n = n(n+1)/2.
func RankSum(n uint64) *uint256.Int {
	s := new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(n))
	s.AddUint64(s, n)
	return s.Rsh(s, 1)
}

func checkRank(rank, n uint64) error {
	if n == 0 || rank >= n {
		return fmt.Errorf("%w: rank %d of %d", ErrRankOutOfRange, rank, n)
	}
	return nil
}

// Ratio returns (2n - 2rank) / (n + n^2) as an 18-decimal fraction, rounded down.
func Ratio(rank, n uint64) (*uint256.Int, error) {
	if err := checkRank(rank, n); err != nil {
		return nil, err
	}
	num := uint256.NewInt(2 * (n - rank))
	den := new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(n))
	den.AddUint64(den, n)
	return fixed.MulDiv(num, fixed.One(), den)
}

// RatioWithSum is Ratio with a precomputed RankSum(n). The result is
// identical to Ratio(rank, n).
func RatioWithSum(rank, n uint64, rankSum *uint256.Int) (*uint256.Int, error) {
	if err := checkRank(rank, n); err != nil {
		return nil, err
	}
	if rankSum == nil || !rankSum.Eq(RankSum(n)) {
		return nil, fmt.Errorf("%w: n=%d", ErrBadRankSum, n)
	}
	return fixed.MulDiv(uint256.NewInt(n-rank), fixed.One(), rankSum)
}

// Share returns floor(pool * (n - rank) / rankSum), the exact base-unit
// amount credited to the item at rank.
func Share(pool *uint256.Int, rank, n uint64, rankSum *uint256.Int) (*uint256.Int, error) {
	if err := checkRank(rank, n); err != nil {
		return nil, err
	}
	if rankSum == nil || rankSum.IsZero() {
		return nil, fmt.Errorf("%w: n=%d", ErrBadRankSum, n)
	}
	return fixed.MulDiv(pool, uint256.NewInt(n-rank), rankSum)
}

// Split divides pool across n ranks. shares[r] is the amount for rank r and
// dust is what rounding left undistributed (always < n base units).
func Split(pool *uint256.Int, n uint64) (shares []*uint256.Int, dust *uint256.Int, err error) {
	if n == 0 {
		return nil, fixed.Clone(pool), nil
	}
	sum := RankSum(n)
	shares = make([]*uint256.Int, n)
	distributed := new(uint256.Int)
	for r := uint64(0); r < n; r++ {
		s, err := Share(pool, r, n, sum)
		if err != nil {
			return nil, nil, err
		}
		shares[r] = s
		distributed.Add(distributed, s)
	}
	return shares, new(uint256.Int).Sub(pool, distributed), nil
}
