package main

import (
	"fmt"
	"strconv"

	"github.com/Klingon-tech/locker/internal/rpc"
	cli "gopkg.in/urfave/cli.v1"
)

var stakeCommand = cli.Command{
	Name:      "stake",
	Usage:     "stake items owned by the signing key",
	ArgsUsage: "<id> [id...]",
	Action: func(ctx *cli.Context) error {
		return stakeOp(ctx, true)
	},
}

var unstakeCommand = cli.Command{
	Name:      "unstake",
	Usage:     "return staked items to the signing key",
	ArgsUsage: "<id> [id...]",
	Action: func(ctx *cli.Context) error {
		return stakeOp(ctx, false)
	},
}

var claimCommand = cli.Command{
	Name:   "claim",
	Usage:  "mint the signing key's pending rewards",
	Action: claim,
}

var settleCommand = cli.Command{
	Name:   "settle",
	Usage:  "distribute the rewards accrued since the last settlement",
	Action: settle,
}

var payoutCommand = cli.Command{
	Name:      "payout",
	Usage:     "show settled and previewed rewards of an address",
	ArgsUsage: "[address]",
	Action:    payout,
}

var earningsCommand = cli.Command{
	Name:   "earnings",
	Usage:  "show pending rewards and cumulative curve output",
	Action: earningsQuery,
}

var statsCommand = cli.Command{
	Name:      "stats",
	Usage:     "show ledger totals, reward token and stakes of an address",
	ArgsUsage: "[address]",
	Action:    stats,
}

func stakeOp(ctx *cli.Context, stake bool) error {
	ids, err := parseIDs(ctx.Args())
	if err != nil {
		return err
	}
	key, err := loadKey(ctx)
	if err != nil {
		return err
	}
	defer key.Zero()

	client := newClient(ctx)
	var res *rpc.StakeOpResult
	if stake {
		res, err = client.Stake(key, ids)
	} else {
		res, err = client.Unstake(key, ids)
	}
	if err != nil {
		return err
	}
	return printJSON(res)
}

func claim(ctx *cli.Context) error {
	key, err := loadKey(ctx)
	if err != nil {
		return err
	}
	defer key.Zero()

	res, err := newClient(ctx).Claim(key)
	if err != nil {
		return err
	}
	fmt.Printf("claimed %s tokens, balance %s\n", res.Claimed.Tokens, res.Balance.Tokens)
	return nil
}

func settle(ctx *cli.Context) error {
	res, err := newClient(ctx).SetPayouts()
	if err != nil {
		return err
	}
	return printJSON(res)
}

func payout(ctx *cli.Context) error {
	addr, err := holderAddress(ctx)
	if err != nil {
		return err
	}
	res, err := newClient(ctx).Payout(addr.String())
	if err != nil {
		return err
	}
	return printJSON(res)
}

func earningsQuery(ctx *cli.Context) error {
	client := newClient(ctx)
	var pending, era rpc.EarningsResult
	if err := client.Call("staking_getEarnings", nil, &pending); err != nil {
		return err
	}
	if err := client.Call("staking_getEarningsForEra", nil, &era); err != nil {
		return err
	}
	return printJSON(map[string]rpc.EarningsResult{
		"pending": pending,
		"era":     era,
	})
}

func stats(ctx *cli.Context) error {
	client := newClient(ctx)
	totals, err := client.Totals()
	if err != nil {
		return err
	}
	var tok rpc.TokenInfoResult
	if err := client.Call("token_getInfo", nil, &tok); err != nil {
		return err
	}
	out := map[string]interface{}{
		"totals": totals,
		"token":  tok,
	}
	if ctx.Args().First() != "" {
		var stakes rpc.StakesResult
		if err := client.Call("staking_getStakes", rpc.StakesParam{Address: ctx.Args().First()}, &stakes); err != nil {
			return err
		}
		out["stakes"] = stakes
	}
	return printJSON(out)
}

var mathCommand = cli.Command{
	Name:  "math",
	Usage: "evaluate the reward formulas on the node",
	Subcommands: []cli.Command{
		{
			Name:      "earnings",
			Usage:     "cumulative emission E(t) for rates given in tokens",
			ArgsUsage: "<t> <p0> <ptotal>",
			Action:    mathEarnings,
		},
		{
			Name:      "ratio",
			Usage:     "payout share of rank among n stakes",
			ArgsUsage: "<rank> <n>",
			Action:    mathRatio,
		},
	},
}

func mathEarnings(ctx *cli.Context) error {
	args := ctx.Args()
	if len(args) != 3 {
		return fmt.Errorf("usage: math earnings <t> <p0> <ptotal>")
	}
	t, err := strconv.ParseUint(args.Get(0), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid t %q", args.Get(0))
	}
	var res rpc.Amount
	if err := newClient(ctx).Call("math_calculateEarnings", rpc.EarningsParam{
		T: t, P0: args.Get(1), PTotal: args.Get(2),
	}, &res); err != nil {
		return err
	}
	return printJSON(res)
}

func mathRatio(ctx *cli.Context) error {
	args := ctx.Args()
	if len(args) != 2 {
		return fmt.Errorf("usage: math ratio <rank> <n>")
	}
	rank, err := strconv.ParseUint(args.Get(0), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid rank %q", args.Get(0))
	}
	n, err := strconv.ParseUint(args.Get(1), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid n %q", args.Get(1))
	}
	var res rpc.RatioResult
	if err := newClient(ctx).Call("math_calculatePayoutRatio", rpc.RatioParam{Rank: rank, N: n}, &res); err != nil {
		return err
	}
	return printJSON(res)
}
