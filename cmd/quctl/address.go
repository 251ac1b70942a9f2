package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qupredict/qupredict/internal/client"
	"github.com/qupredict/qupredict/internal/domain"
)

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Manage the locally stored payout address",
}

var addressSetCmd = &cobra.Command{
	Use:   "set <address>",
	Short: "Store the payout address used by default for bets and markets",
	Args:  cobra.ExactArgs(1),
	RunE:  runAddressSet,
}

var addressShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored payout address",
	RunE:  runAddressShow,
}

func init() {
	addressCmd.AddCommand(addressSetCmd)
	addressCmd.AddCommand(addressShowCmd)
}

func runAddressSet(cmd *cobra.Command, args []string) error {
	addr := args[0]
	if !domain.ValidAddress(addr) {
		return fmt.Errorf("address must be exactly %d uppercase letters A-Z", domain.AddressLength)
	}

	store, err := openState()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Set(cmd.Context(), client.KeyPayoutAddress, addr); err != nil {
		return err
	}
	fmt.Println("payout address stored")
	return nil
}

func runAddressShow(cmd *cobra.Command, args []string) error {
	addr, err := storedPayoutAddress(cmd.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("no payout address stored (run: quctl address set)")
		}
		return err
	}
	fmt.Println(addr)
	return nil
}

// storedPayoutAddress reads the payout address from the local state database.
func storedPayoutAddress(ctx context.Context) (string, error) {
	store, err := openState()
	if err != nil {
		return "", err
	}
	defer store.Close()
	return store.Get(ctx, client.KeyPayoutAddress)
}
