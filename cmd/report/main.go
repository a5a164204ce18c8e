package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"

	"kalshiEdgeBot/internal/ledger"
)

func main() {
	ledgerPath := flag.String("ledger", "./data/decisions.jsonl", "path to the decision ledger file")
	tail := flag.Int("tail", 15, "number of most recent decisions to list")
	flag.Parse()

	records, skipped, err := ledger.ReadAll(*ledgerPath)
	if err != nil {
		log.Fatalf("Error reading ledger: %v", err)
	}
	if skipped > 0 {
		fmt.Printf("warning: skipped %d unparseable ledger lines\n\n", skipped)
	}
	if len(records) == 0 {
		fmt.Println("Ledger is empty.")
		return
	}

	var decisions, settlements []ledger.Record
	for _, rec := range records {
		switch rec.Type {
		case ledger.RecordDecision:
			decisions = append(decisions, rec)
		case ledger.RecordSettlement:
			settlements = append(settlements, rec)
		}
	}

	printOverview(decisions, settlements)
	printRejectionReasons(decisions)
	printRecentDecisions(decisions, *tail)
	printSettlements(settlements)
}

func printOverview(decisions, settlements []ledger.Record) {
	accepted := 0
	for _, d := range decisions {
		if d.Outcome == "accepted" {
			accepted++
		}
	}

	wins := 0
	var totalPnL int64
	for _, s := range settlements {
		if s.Result == "won" {
			wins++
		}
		totalPnL += s.PnLCents
	}

	fmt.Println("## Overview")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Decisions", "Accepted", "Rejected", "Settled", "Wins", "Total PnL"})
	table.Append([]string{
		fmt.Sprintf("%d", len(decisions)),
		fmt.Sprintf("%d", accepted),
		fmt.Sprintf("%d", len(decisions)-accepted),
		fmt.Sprintf("%d", len(settlements)),
		fmt.Sprintf("%d", wins),
		formatCents(totalPnL),
	})
	table.Render()
	fmt.Println()
}

func printRejectionReasons(decisions []ledger.Record) {
	counts := make(map[string]int)
	for _, d := range decisions {
		if d.Outcome == "rejected" && d.Reason != "" {
			counts[d.Reason]++
		}
	}
	if len(counts) == 0 {
		return
	}

	reasons := make([]string, 0, len(counts))
	for r := range counts {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool {
		if counts[reasons[i]] != counts[reasons[j]] {
			return counts[reasons[i]] > counts[reasons[j]]
		}
		return reasons[i] < reasons[j]
	})

	fmt.Println("## Rejection Reasons")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Reason", "Count"})
	for _, r := range reasons {
		table.Append([]string{r, fmt.Sprintf("%d", counts[r])})
	}
	table.Render()
	fmt.Println()
}

func printRecentDecisions(decisions []ledger.Record, tail int) {
	if len(decisions) == 0 {
		return
	}
	start := len(decisions) - tail
	if start < 0 {
		start = 0
	}

	fmt.Printf("## Last %d Decisions\n", len(decisions)-start)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Ticker", "Side", "Outcome", "Edge", "Price", "Contracts", "Reason"})
	for _, d := range decisions[start:] {
		table.Append([]string{
			d.Timestamp,
			d.Ticker,
			d.Side,
			d.Outcome,
			fmt.Sprintf("%.3f", d.Edge),
			fmt.Sprintf("%d¢", d.PriceCents),
			fmt.Sprintf("%d", d.Contracts),
			d.Reason,
		})
	}
	table.Render()
	fmt.Println()
}

func printSettlements(settlements []ledger.Record) {
	if len(settlements) == 0 {
		return
	}

	fmt.Println("## Settlements")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Ticker", "Side", "Result", "Contracts", "PnL"})
	for _, s := range settlements {
		table.Append([]string{
			s.Timestamp,
			s.Ticker,
			s.Side,
			s.Result,
			fmt.Sprintf("%d", s.Contracts),
			formatCents(s.PnLCents),
		})
	}
	table.Render()
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
