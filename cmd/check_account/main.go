package main

import (
	"fmt"
	"os"

	"github.com/dkovalev/papertrade/internal/domain"
	"github.com/dkovalev/papertrade/internal/usecase"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func printBalance(account *usecase.AccountService) {
	bal := account.Balance()
	fmt.Printf("   balance: available=%s frozen=%s margin=%s upnl=%s total=%s fees=%s\n",
		bal.Available, bal.Frozen, bal.MarginUsed, bal.UnrealizedPnL, bal.Total, bal.TotalFeesPaid)
}

func checkConservation(account *usecase.AccountService) {
	bal := account.Balance()
	want := bal.Available.Add(bal.Frozen).Add(bal.UnrealizedPnL)
	if !bal.Total.Equal(want) {
		fmt.Printf("❌ Ledger identity broken: total=%s, available+frozen+upnl=%s\n", bal.Total, want)
		os.Exit(1)
	}
}

func main() {
	account := usecase.NewAccountService("BTCUSDT", nil)
	fmt.Println("Exercising the paper account engine...")

	account.OnPriceUpdate(dec("50000"))
	fmt.Println("Seeded reference price: 50000")

	// --- Long round trip ---
	fmt.Println("\n--- Long round trip ---")
	buy, err := account.SubmitMarketOrder("BTCUSDT", domain.SideBuy, dec("0.01"), "")
	if err != nil {
		fmt.Printf("❌ Market buy rejected: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Market buy filled at %s (fee %s)\n", buy.AvgPrice, buy.FeeAmount)
	printBalance(account)
	checkConservation(account)

	account.OnPriceUpdate(dec("51000"))
	fmt.Printf("Price moved to 51000, unrealized %s\n", account.Balance().UnrealizedPnL)
	checkConservation(account)

	if _, err := account.SubmitMarketOrder("BTCUSDT", domain.SideSell, dec("0.01"), ""); err != nil {
		fmt.Printf("❌ Closing sell rejected: %v\n", err)
		os.Exit(1)
	}
	if len(account.Positions()) != 0 {
		fmt.Println("❌ Position survived a full close")
		os.Exit(1)
	}
	fmt.Println("✅ Position closed, +10 realized")
	printBalance(account)
	checkConservation(account)

	// --- Resting limit and cancel ---
	fmt.Println("\n--- Resting limit and cancel ---")
	resting, err := account.SubmitLimitOrder("BTCUSDT", domain.SideBuy, dec("0.05"), dec("45000"), "")
	if err != nil {
		fmt.Printf("❌ Limit buy rejected: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Limit buy resting, frozen %s\n", resting.FrozenAmount)
	printBalance(account)

	if _, err := account.CancelOrder(resting.ID); err != nil {
		fmt.Printf("❌ Cancel failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✅ Cancel released the freeze")
	printBalance(account)
	checkConservation(account)

	// --- Reversal ---
	fmt.Println("\n--- Reversal ---")
	if _, err := account.SubmitMarketOrder("BTCUSDT", domain.SideBuy, dec("0.01"), ""); err != nil {
		fmt.Printf("❌ Market buy rejected: %v\n", err)
		os.Exit(1)
	}
	if _, err := account.SubmitMarketOrder("BTCUSDT", domain.SideSell, dec("0.03"), ""); err != nil {
		fmt.Printf("❌ Reversing sell rejected: %v\n", err)
		os.Exit(1)
	}
	positions := account.Positions()
	if len(positions) != 1 || positions[0].Side != domain.PositionShort {
		fmt.Println("❌ Expected a short position after the reversal")
		os.Exit(1)
	}
	fmt.Printf("✅ Reversed into short %s @ %s\n", positions[0].Amount, positions[0].EntryPrice)
	printBalance(account)
	checkConservation(account)

	// --- Reset ---
	fmt.Println("\n--- Reset ---")
	account.Reset()
	bal := account.Balance()
	if !bal.Available.Equal(dec("10000")) || len(account.Orders()) != 0 {
		fmt.Println("❌ Reset did not restore the starting state")
		os.Exit(1)
	}
	fmt.Println("✅ Reset restored the starting state")
	printBalance(account)

	fmt.Println("\nAll checks passed.")
}
