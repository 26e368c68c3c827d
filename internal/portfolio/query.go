package portfolio

import (
	"slices"
	"strings"

	"crypto-tracker-go/internal/models"
)

// Sort keys accepted by CoinQuery.Sort.
const (
	SortSymbol          = "symbol"
	SortName            = "name"
	SortQuoteAsset      = "quoteAsset"
	SortTotalQuantity   = "totalQuantity"
	SortAverageBuyPrice = "averageBuyPrice"
	SortCurrentPrice    = "currentPrice"
	SortCurrentValue    = "currentValue"
)

// CoinQuery selects one page of the coin list.
type CoinQuery struct {
	Filter   string // case-insensitive substring of symbol or name
	Sort     string
	Order    string // "asc" or "desc"
	Page     int    // 1-based
	PageSize int
}

// CoinPage is one page of coins and the number of coins matching the filter.
type CoinPage struct {
	Data       []models.Coin `json:"data"`
	TotalCount int           `json:"totalCount"`
}

type coinCompare func(a, b *models.Coin) int

func compareFold(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

var coinComparators = map[string]coinCompare{
	strings.ToLower(SortSymbol):          func(a, b *models.Coin) int { return strings.Compare(a.Symbol, b.Symbol) },
	strings.ToLower(SortName):            func(a, b *models.Coin) int { return compareFold(a.Name, b.Name) },
	strings.ToLower(SortQuoteAsset):      func(a, b *models.Coin) int { return compareFold(a.QuoteAsset, b.QuoteAsset) },
	strings.ToLower(SortTotalQuantity):   func(a, b *models.Coin) int { return a.TotalQuantity.Cmp(b.TotalQuantity) },
	strings.ToLower(SortAverageBuyPrice): func(a, b *models.Coin) int { return a.AverageBuyPrice.Cmp(b.AverageBuyPrice) },
	strings.ToLower(SortCurrentPrice):    func(a, b *models.Coin) int { return a.CurrentPrice.Cmp(b.CurrentPrice) },
	strings.ToLower(SortCurrentValue):    func(a, b *models.Coin) int { return a.CurrentValue.Cmp(b.CurrentValue) },
}

// normalize clamps paging to sane values.
func (q CoinQuery) normalize(defaultPageSize, maxPageSize int) CoinQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if maxPageSize > 0 && q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	return q
}

// filterCoins keeps the coins whose symbol or name contains filter, ignoring case.
func filterCoins(coins []models.Coin, filter string) []models.Coin {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		return coins
	}

	matched := make([]models.Coin, 0, len(coins))
	for _, c := range coins {
		if strings.Contains(strings.ToLower(c.Symbol), filter) || strings.Contains(strings.ToLower(c.Name), filter) {
			matched = append(matched, c)
		}
	}
	return matched
}

// sortCoins orders coins in place. Unknown keys sort by symbol ascending;
// equal keys are always ordered by symbol so pages stay stable.
func sortCoins(coins []models.Coin, key, order string) {
	compare, ok := coinComparators[strings.ToLower(key)]
	desc := strings.EqualFold(order, "desc")
	if !ok {
		compare = coinComparators[SortSymbol]
		desc = false
	}

	slices.SortStableFunc(coins, func(a, b models.Coin) int {
		c := compare(&a, &b)
		if desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return strings.Compare(a.Symbol, b.Symbol)
	})
}

// paginate returns the requested 1-based page, which is empty past the end.
func paginate(coins []models.Coin, page, pageSize int) []models.Coin {
	if pageSize < 1 {
		return []models.Coin{}
	}
	// Compare page counts first: (page-1)*pageSize overflows for huge pages.
	pages := (len(coins) + pageSize - 1) / pageSize
	if page < 1 || page-1 >= pages {
		return []models.Coin{}
	}
	start := (page - 1) * pageSize
	end := min(start+pageSize, len(coins))
	return coins[start:end]
}
