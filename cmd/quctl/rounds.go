package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var roundsCmd = &cobra.Command{
	Use:   "rounds",
	Short: "Inspect flash rounds",
}

var roundsCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the current flash round",
	RunE:  runRoundsCurrent,
}

var roundsPair string

func init() {
	roundsCurrentCmd.Flags().StringVar(&roundsPair, "pair", "", "trading pair (defaults to the server's pair)")
	roundsCmd.AddCommand(roundsCurrentCmd)
}

func runRoundsCurrent(cmd *cobra.Command, args []string) error {
	round, err := api().CurrentRound(cmd.Context(), roundsPair)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Round", "Pair", "Status", "Open price", "Up pool", "Down pool", "Locks", "Closes")
	table.Append(
		round.RoundID,
		round.Pair,
		round.Status,
		strconv.FormatFloat(round.OpenPrice, 'f', -1, 64),
		strconv.FormatInt(round.UpPoolQu, 10),
		strconv.FormatInt(round.DownPoolQu, 10),
		round.LocksAt.Local().Format("15:04:05"),
		round.ClosesAt.Local().Format("15:04:05"),
	)
	table.Render()

	if until := time.Until(round.LocksAt); until > 0 {
		fmt.Printf("wagers accepted for another %s\n", until.Round(time.Second))
	}
	return nil
}
