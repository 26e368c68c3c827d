package portfolio

import "errors"

var (
	// ErrNotFound is returned when a coin or transaction does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateSymbol is returned when registering a symbol that is already tracked.
	ErrDuplicateSymbol = errors.New("coin with this symbol already exists")
	// ErrInvalidSymbol is returned when the market does not list the symbol being registered.
	ErrInvalidSymbol = errors.New("invalid symbol")
	// ErrInvalidCoin is returned for a coin with a missing symbol or negative position.
	ErrInvalidCoin = errors.New("invalid coin")
	// ErrIDMismatch is returned when the identifier in a request body disagrees with the path.
	ErrIDMismatch = errors.New("id mismatch")
	// ErrCoinInUse is returned when deleting a coin that still owns transactions.
	ErrCoinInUse = errors.New("coin has associated transactions")
	// ErrStorageConflict is returned when the position was modified concurrently.
	ErrStorageConflict = errors.New("concurrent modification, retry the request")
)
