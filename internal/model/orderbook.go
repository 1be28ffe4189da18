package model

// BookLevel is one price level of an orderbook side.
type BookLevel struct {
	Price float64
	Size  float64
}

// OrderBook is an ephemeral snapshot of one outcome token's book.
// Bids are sorted descending by price, asks ascending.
type OrderBook struct {
	TokenID string
	Bids    []BookLevel
	Asks    []BookLevel
}

// BestBid returns the highest bid price, if any level exists.
func (b OrderBook) BestBid() (float64, bool) {
	if len(b.Bids) == 0 {
		return 0, false
	}
	return b.Bids[0].Price, true
}

// BestAsk returns the lowest ask price, if any level exists.
func (b OrderBook) BestAsk() (float64, bool) {
	if len(b.Asks) == 0 {
		return 0, false
	}
	return b.Asks[0].Price, true
}

// BidVolume returns the aggregated size across all bid levels.
func (b OrderBook) BidVolume() float64 {
	var total float64
	for _, lvl := range b.Bids {
		total += lvl.Size
	}
	return total
}

// AskVolume returns the aggregated size across all ask levels.
func (b OrderBook) AskVolume() float64 {
	var total float64
	for _, lvl := range b.Asks {
		total += lvl.Size
	}
	return total
}
