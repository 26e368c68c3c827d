package portfolio

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSymbolLocks_SerialisesSameSymbol(t *testing.T) {
	locks := newSymbolLocks()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("BTCUSDT")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Empty(t, locks.locks, "released locks are forgotten")
}

func TestSymbolLocks_IndependentSymbols(t *testing.T) {
	locks := newSymbolLocks()

	unlockBTC := locks.lock("BTCUSDT")
	done := make(chan struct{})
	go func() {
		unlock := locks.lock("ETHUSDT")
		unlock()
		close(done)
	}()
	<-done
	unlockBTC()

	assert.Empty(t, locks.locks)
}
