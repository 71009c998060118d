package events

// Topic constants for domain events emitted by the POS.
const (
	TopicSaleFinalized       = "sale.finalized"
	TopicPOSSessionOpened    = "pos.session_opened"
	TopicPOSSessionDiscarded = "pos.session_discarded"
	TopicStockInsufficient   = "inventory.stock_insufficient"
)

// DefaultTopics returns the canonical list of topics.
func DefaultTopics() []string {
	return []string{
		TopicSaleFinalized,
		TopicPOSSessionOpened,
		TopicPOSSessionDiscarded,
		TopicStockInsufficient,
	}
}
