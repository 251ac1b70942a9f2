package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/qupredict/qupredict/internal/client"
	"github.com/qupredict/qupredict/internal/domain"
)

var betCmd = &cobra.Command{
	Use:   "bet",
	Short: "Place, inspect and cancel bets",
}

var betPlaceCmd = &cobra.Command{
	Use:   "place",
	Short: "Open an escrow for a bet",
	RunE:  runBetPlace,
}

var betStatusCmd = &cobra.Command{
	Use:   "status <bet-id>",
	Short: "Show the current escrow status of a bet",
	Args:  cobra.ExactArgs(1),
	RunE:  runBetStatus,
}

var betWatchCmd = &cobra.Command{
	Use:   "watch <bet-id>",
	Short: "Follow a bet until it settles",
	Args:  cobra.ExactArgs(1),
	RunE:  runBetWatch,
}

var betCancelCmd = &cobra.Command{
	Use:   "cancel <escrow-id>",
	Short: "Cancel an escrow that has not been funded yet",
	Args:  cobra.ExactArgs(1),
	RunE:  runBetCancel,
}

// Flags
var (
	betMarket   string
	betOption   int
	betSlots    int64
	betAddress  string
	betInterval time.Duration
)

func init() {
	betPlaceCmd.Flags().StringVar(&betMarket, "market", "", "market ID (required)")
	betPlaceCmd.Flags().IntVar(&betOption, "option", 0, "option index to back")
	betPlaceCmd.Flags().Int64Var(&betSlots, "slots", 1, "number of slots to buy")
	betPlaceCmd.Flags().StringVar(&betAddress, "address", "", "payout address (defaults to the stored one)")
	betPlaceCmd.MarkFlagRequired("market")

	betWatchCmd.Flags().DurationVar(&betInterval, "interval", 5*time.Second, "poll interval")

	betCmd.AddCommand(betPlaceCmd)
	betCmd.AddCommand(betStatusCmd)
	betCmd.AddCommand(betWatchCmd)
	betCmd.AddCommand(betCancelCmd)
}

func runBetPlace(cmd *cobra.Command, args []string) error {
	address := betAddress
	if address == "" {
		stored, err := storedPayoutAddress(cmd.Context())
		if err != nil {
			return fmt.Errorf("no --address given and no stored payout address (run: quctl address set)")
		}
		address = stored
	}

	bet, err := api().PlaceBet(cmd.Context(), domain.BetRequest{
		MarketID:      betMarket,
		PayoutAddress: address,
		Option:        betOption,
		Slots:         betSlots,
	})
	if err != nil {
		return err
	}

	fmt.Printf("bet placed: %s\n", bet.BetID)
	fmt.Printf("  escrow:  %s\n", bet.EscrowID)
	fmt.Printf("  send %d qu to: %s\n", bet.ExpectedAmountQu, bet.EscrowAddress)
	fmt.Printf("  before: %s (in %s)\n",
		bet.ExpiresAt.Local().Format(time.RFC1123),
		time.Until(bet.ExpiresAt).Round(time.Second),
	)
	fmt.Printf("\nfollow it with: quctl bet watch %s\n", bet.BetID)
	return nil
}

func runBetStatus(cmd *cobra.Command, args []string) error {
	bet, err := api().BetStatus(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printBet(bet)
	return nil
}

func runBetWatch(cmd *cobra.Command, args []string) error {
	c := api()
	bet, err := c.BetStatus(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printBet(bet)

	if bet.Status.IsTerminal() {
		return nil
	}

	// The poller logs through slog; keep the terminal clean.
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	poller := client.NewStatusPoller(c, bet, betInterval, quiet)
	poller.OnTransition(func(from, to domain.BetStatus, latest client.Bet) {
		fmt.Printf("\r%-40s\n", fmt.Sprintf("%s -> %s", from, to))
		if to == domain.BetStatusWonAwaitingSweep || to.IsTerminal() {
			printBet(latest)
		}
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Tick the deposit deadline down while the escrow is still unfunded.
	if bet.Status == domain.BetStatusAwaitingDeposit && !bet.ExpiresAt.IsZero() {
		countdown := client.NewCountdown(bet.ExpiresAt, func(remaining time.Duration) {
			if poller.Bet().Status == domain.BetStatusAwaitingDeposit {
				fmt.Fprintf(os.Stderr, "\rdeposit window: %-12s", remaining.Round(time.Second))
			}
		})
		go countdown.Run(ctx)
	}

	if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runBetCancel(cmd *cobra.Command, args []string) error {
	if err := api().CancelBet(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("escrow %s cancelled\n", args[0])
	return nil
}

func printBet(bet client.Bet) {
	fmt.Printf("bet %s\n", bet.BetID)
	fmt.Printf("  market:  %s (option %d, %d slots)\n", bet.MarketID, bet.Option, bet.Slots)
	fmt.Printf("  status:  %s\n", bet.Status)
	fmt.Printf("  escrow:  %s -> %s\n", bet.EscrowID, bet.EscrowAddress)
	if bet.DepositTxID != "" {
		fmt.Printf("  deposit: %d qu (tx %s)\n", bet.DepositAmountQu, bet.DepositTxID)
	}
	if bet.PayoutAmountQu > 0 {
		fmt.Printf("  payout:  %d qu", bet.PayoutAmountQu)
		if bet.SweepTxID != "" {
			fmt.Printf(" (tx %s)", bet.SweepTxID)
		}
		fmt.Println()
	}
}
