package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/qupredict/qupredict/internal/domain"
)

var marketsCmd = &cobra.Command{
	Use:   "markets",
	Short: "List and create prediction markets",
}

var marketsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List markets",
	RunE:  runMarketsList,
}

var marketsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new market",
	RunE:  runMarketsCreate,
}

// Flags
var (
	marketStatus string
	marketLimit  int
	marketOffset int

	createQuestion    string
	createDescription string
	createType        string
	createOptions     []string
	createMinBetQu    int64
	createMaxSlots    int64
	createOracleBps   int64
	createTarget      float64
	createLow         float64
	createHigh        float64
	createCreator     string
	createCloseIn     time.Duration
	createEndIn       time.Duration
)

func init() {
	marketsListCmd.Flags().StringVar(&marketStatus, "status", "", "filter by status: active, closed, resolving, resolved, cancelled")
	marketsListCmd.Flags().IntVar(&marketLimit, "limit", 50, "maximum markets to return")
	marketsListCmd.Flags().IntVar(&marketOffset, "offset", 0, "pagination offset")

	marketsCreateCmd.Flags().StringVar(&createQuestion, "question", "", "market question, 10-100 characters (required)")
	marketsCreateCmd.Flags().StringVar(&createDescription, "description", "", "longer description")
	marketsCreateCmd.Flags().StringVar(&createType, "type", "basic", "market type: basic, price, range")
	marketsCreateCmd.Flags().StringSliceVar(&createOptions, "options", []string{"Yes", "No"}, "option labels")
	marketsCreateCmd.Flags().Int64Var(&createMinBetQu, "min-bet-qu", 10000, "minimum bet per slot in qu")
	marketsCreateCmd.Flags().Int64Var(&createMaxSlots, "max-slots", 100, "slot cap per option")
	marketsCreateCmd.Flags().Int64Var(&createOracleBps, "oracle-fee-bps", 0, "oracle fee in basis points")
	marketsCreateCmd.Flags().Float64Var(&createTarget, "target", 0, "price target (type price)")
	marketsCreateCmd.Flags().Float64Var(&createLow, "low", 0, "bracket low (type range)")
	marketsCreateCmd.Flags().Float64Var(&createHigh, "high", 0, "bracket high (type range)")
	marketsCreateCmd.Flags().StringVar(&createCreator, "creator", "", "creator address (defaults to the stored payout address)")
	marketsCreateCmd.Flags().DurationVar(&createCloseIn, "close-in", 24*time.Hour, "betting window length from now")
	marketsCreateCmd.Flags().DurationVar(&createEndIn, "end-in", 48*time.Hour, "resolution deadline from now")
	marketsCreateCmd.MarkFlagRequired("question")

	marketsCmd.AddCommand(marketsListCmd)
	marketsCmd.AddCommand(marketsCreateCmd)
}

func runMarketsList(cmd *cobra.Command, args []string) error {
	markets, err := api().Markets(cmd.Context(), marketStatus, marketLimit, marketOffset)
	if err != nil {
		return err
	}
	if len(markets) == 0 {
		fmt.Println("no markets")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Question", "Type", "Status", "Slots", "Pool (qu)", "Closes")
	for _, m := range markets {
		table.Append(
			m.MarketID,
			truncate(m.Question, 48),
			m.Type,
			m.Status,
			strconv.FormatInt(m.TotalSlots, 10),
			strconv.FormatInt(m.TotalPoolQu, 10),
			m.CloseDate.Local().Format("2006-01-02 15:04"),
		)
	}
	table.Render()
	return nil
}

func runMarketsCreate(cmd *cobra.Command, args []string) error {
	creator := createCreator
	if creator == "" {
		stored, err := storedPayoutAddress(cmd.Context())
		if err != nil {
			return fmt.Errorf("no --creator given and no stored payout address (run: quctl address set)")
		}
		creator = stored
	}

	now := time.Now().UTC()
	draft := domain.MarketDraft{
		Question:          createQuestion,
		Description:       createDescription,
		Type:              domain.MarketType(strings.ToLower(createType)),
		OptionLabels:      createOptions,
		MinBetQu:          createMinBetQu,
		MaxSlotsPerOption: createMaxSlots,
		OracleFeeBps:      createOracleBps,
		ResolutionTarget:  createTarget,
		ResolutionLow:     createLow,
		ResolutionHigh:    createHigh,
		CreatorAddress:    creator,
		CloseDate:         now.Add(createCloseIn),
		EndDate:           now.Add(createEndIn),
	}

	market, err := api().CreateMarket(cmd.Context(), draft)
	if err != nil {
		return err
	}

	fmt.Printf("market created: %s\n", market.MarketID)
	fmt.Printf("  question: %s\n", market.Question)
	fmt.Printf("  closes:   %s\n", market.CloseDate.Local().Format(time.RFC1123))
	for _, opt := range market.Options {
		fmt.Printf("  option %d: %s\n", opt.Index, opt.Label)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
