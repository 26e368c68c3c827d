package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"crypto-tracker-go/internal/ledger"
	"crypto-tracker-go/internal/models"
	"crypto-tracker-go/internal/portfolio"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

// ledgerService is the part of the portfolio service the CLI drives.
type ledgerService interface {
	ListCoins(ctx context.Context, q portfolio.CoinQuery) (*portfolio.CoinPage, error)
	CreateCoin(ctx context.Context, in *models.Coin) (*models.Coin, error)
	ListTransactions(ctx context.Context) ([]models.Transaction, error)
	ListTransactionsByCoin(ctx context.Context, symbol string) ([]models.Transaction, error)
	CreateTransaction(ctx context.Context, in *models.Transaction) (*models.Transaction, error)
}

// tool carries what every command needs.
type tool struct {
	out     io.Writer
	connect func(ctx context.Context) (ledgerService, func(), error)
}

func (t *tool) commands() []subcommands.Command {
	return []subcommands.Command{
		&migrateCmd{tool: t},
		&coinsCmd{tool: t},
		&addCoinCmd{tool: t},
		&tradeCmd{tool: t, side: ledger.Buy},
		&tradeCmd{tool: t, side: ledger.Sell},
		&transactionsCmd{tool: t},
	}
}

// open connects and reports a failure the way every command does.
func (t *tool) open(ctx context.Context) (ledgerService, func(), subcommands.ExitStatus) {
	svc, closeFn, err := t.connect(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return nil, nil, subcommands.ExitFailure
	}
	return svc, closeFn, subcommands.ExitSuccess
}

type migrateCmd struct {
	*tool
}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "create or update the database schema" }
func (*migrateCmd) Usage() string {
	return `migrate

  Connects to the configured database and migrates the coin and transaction
  tables. Existing rows are kept.
`
}
func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (c *migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	_, closeFn, status := c.open(ctx)
	if status != subcommands.ExitSuccess {
		return status
	}
	defer closeFn()

	fmt.Fprintln(c.out, "Schema is up to date.")
	return subcommands.ExitSuccess
}

type coinsCmd struct {
	*tool
	filter string
	sort   string
	desc   bool
}

func (*coinsCmd) Name() string     { return "coins" }
func (*coinsCmd) Synopsis() string { return "list tracked coins with their current value" }
func (*coinsCmd) Usage() string {
	return `coins [-filter <text>] [-sort <key>] [-desc]

  Lists every tracked coin. Sort keys: symbol, name, quoteAsset, totalQuantity,
  averageBuyPrice, currentPrice, currentValue.
`
}

func (c *coinsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.filter, "filter", "", "only coins whose symbol or name contains this text")
	f.StringVar(&c.sort, "sort", portfolio.SortSymbol, "sort key")
	f.BoolVar(&c.desc, "desc", false, "sort descending")
}

func (c *coinsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	svc, closeFn, status := c.open(ctx)
	if status != subcommands.ExitSuccess {
		return status
	}
	defer closeFn()

	q := portfolio.CoinQuery{Filter: c.filter, Sort: c.sort, Order: "asc", Page: 1, PageSize: 100}
	if c.desc {
		q.Order = "desc"
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tQUANTITY\tAVG PRICE\tPRICE\tVALUE")
	total := decimal.Zero
	for {
		page, err := svc.ListCoins(ctx, q)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing coins: %v\n", err)
			return subcommands.ExitFailure
		}
		for _, coin := range page.Data {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", coin.Symbol, coin.TotalQuantity, coin.AverageBuyPrice.StringFixed(2), coin.CurrentPrice, coin.CurrentValue.StringFixed(2))
			total = total.Add(coin.CurrentValue)
		}
		if q.Page*q.PageSize >= page.TotalCount {
			break
		}
		q.Page++
	}
	fmt.Fprintf(w, "TOTAL\t\t\t\t%s\n", total.StringFixed(2))
	w.Flush()
	return subcommands.ExitSuccess
}

type addCoinCmd struct {
	*tool
	symbol   string
	quantity string
	average  string
	image    string
}

func (*addCoinCmd) Name() string     { return "add-coin" }
func (*addCoinCmd) Synopsis() string { return "register a symbol listed on Binance" }
func (*addCoinCmd) Usage() string {
	return `add-coin -symbol <symbol> [-quantity <qty> -average <price>] [-image <url>]

  Registers a coin. The base and quote assets are resolved from Binance, so the
  symbol must be listed there (e.g. BTCUSDT).
`
}

func (c *addCoinCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbol, "symbol", "", "exchange symbol (required)")
	f.StringVar(&c.quantity, "quantity", "0", "opening quantity")
	f.StringVar(&c.average, "average", "0", "opening average buy price")
	f.StringVar(&c.image, "image", "", "image URL")
}

func (c *addCoinCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.symbol == "" {
		fmt.Fprintln(os.Stderr, "Error: -symbol is required.")
		return subcommands.ExitUsageError
	}
	qty, err := decimal.NewFromString(c.quantity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing quantity %q: %v\n", c.quantity, err)
		return subcommands.ExitUsageError
	}
	avg, err := decimal.NewFromString(c.average)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing average %q: %v\n", c.average, err)
		return subcommands.ExitUsageError
	}

	svc, closeFn, status := c.open(ctx)
	if status != subcommands.ExitSuccess {
		return status
	}
	defer closeFn()

	in := &models.Coin{Symbol: c.symbol, TotalQuantity: qty, AverageBuyPrice: avg}
	if c.image != "" {
		in.Image = &c.image
	}
	coin, err := svc.CreateCoin(ctx, in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error adding %s: %v\n", c.symbol, err)
		return subcommands.ExitFailure
	}

	fmt.Fprintf(c.out, "Added %s (%s/%s)\n", coin.Symbol, coin.Name, coin.QuoteAsset)
	return subcommands.ExitSuccess
}

// tradeCmd records a buy or a sell, depending on side.
type tradeCmd struct {
	*tool
	side     ledger.TransactionType
	symbol   string
	quantity string
	price    string
	fee      string
	date     string
	exchange string
	notes    string
}

func (c *tradeCmd) Name() string {
	if c.side == ledger.Sell {
		return "sell"
	}
	return "buy"
}

func (c *tradeCmd) Synopsis() string { return fmt.Sprintf("record a %s of a tracked coin", c.Name()) }

func (c *tradeCmd) Usage() string {
	return c.Name() + ` -symbol <symbol> -quantity <qty> -price <price> [-fee <fee>] [-date YYYY-MM-DD] [-exchange <name>] [-notes <text>]

  Records a transaction and updates the coin's quantity and average buy price.
`
}

func (c *tradeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbol, "symbol", "", "exchange symbol (required)")
	f.StringVar(&c.quantity, "quantity", "", "quantity (required)")
	f.StringVar(&c.price, "price", "", "unit price (required)")
	f.StringVar(&c.fee, "fee", "", "fee paid")
	f.StringVar(&c.date, "date", "", "transaction date as YYYY-MM-DD[THH:MM] or RFC 3339, defaults to now")
	f.StringVar(&c.exchange, "exchange", "", "exchange the trade happened on")
	f.StringVar(&c.notes, "notes", "", "free text")
}

func (c *tradeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.symbol == "" || c.quantity == "" || c.price == "" {
		fmt.Fprintln(os.Stderr, "Error: -symbol, -quantity and -price are required.")
		return subcommands.ExitUsageError
	}

	in := &models.Transaction{CoinID: c.symbol, TransactionType: c.side}
	var err error
	if in.Quantity, err = decimal.NewFromString(c.quantity); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing quantity %q: %v\n", c.quantity, err)
		return subcommands.ExitUsageError
	}
	if in.Price, err = decimal.NewFromString(c.price); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing price %q: %v\n", c.price, err)
		return subcommands.ExitUsageError
	}
	if c.fee != "" {
		fee, err := decimal.NewFromString(c.fee)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing fee %q: %v\n", c.fee, err)
			return subcommands.ExitUsageError
		}
		in.Fee = decimal.NewNullDecimal(fee)
	}
	if c.date != "" {
		if in.TransactionDate, err = models.ParseTransactionDate(c.date); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing date %q: %v\n", c.date, err)
			return subcommands.ExitUsageError
		}
	}
	if c.exchange != "" {
		in.Exchange = &c.exchange
	}
	if c.notes != "" {
		in.Notes = &c.notes
	}

	svc, closeFn, status := c.open(ctx)
	if status != subcommands.ExitSuccess {
		return status
	}
	defer closeFn()

	t, err := svc.CreateTransaction(ctx, in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error recording %s: %v\n", c.Name(), err)
		return subcommands.ExitFailure
	}

	fmt.Fprintf(c.out, "Recorded transaction %d: %s %s %s @ %s\n", t.ID, t.TransactionType, t.Quantity, t.CoinID, t.Price)
	return subcommands.ExitSuccess
}

type transactionsCmd struct {
	*tool
	symbol string
}

func (*transactionsCmd) Name() string     { return "transactions" }
func (*transactionsCmd) Synopsis() string { return "list recorded transactions, newest first" }
func (*transactionsCmd) Usage() string {
	return `transactions [-symbol <symbol>]
`
}

func (c *transactionsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbol, "symbol", "", "only transactions of this coin")
}

func (c *transactionsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	svc, closeFn, status := c.open(ctx)
	if status != subcommands.ExitSuccess {
		return status
	}
	defer closeFn()

	var transactions []models.Transaction
	var err error
	if c.symbol != "" {
		transactions, err = svc.ListTransactionsByCoin(ctx, c.symbol)
	} else {
		transactions, err = svc.ListTransactions(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing transactions: %v\n", err)
		return subcommands.ExitFailure
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tSYMBOL\tTYPE\tQUANTITY\tPRICE\tFEE")
	for _, t := range transactions {
		fee := "-"
		if t.Fee.Valid {
			fee = t.Fee.Decimal.String()
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", t.ID, t.TransactionDate.Format(time.DateOnly), t.CoinID, t.TransactionType, t.Quantity, t.Price, fee)
	}
	w.Flush()
	return subcommands.ExitSuccess
}
