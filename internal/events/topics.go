package events

// Topic constants for domain events emitted by the checkout.
const (
	TopicSaleCommitted     = "sale.committed"
	TopicLoyaltyTierChange = "loyalty.tier_changed"
)

// TierChanged is the payload of TopicLoyaltyTierChange.
type TierChanged struct {
	CustomerID string `json:"customerId"`
	OldTier    string `json:"oldTier"`
	NewTier    string `json:"newTier"`
	Balance    int64  `json:"balance"`
}

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicSaleCommitted,
		TopicLoyaltyTierChange,
	}
}
