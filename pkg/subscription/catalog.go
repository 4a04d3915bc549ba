package subscription

import "strings"

// PriceIDs holds the Stripe price ids configured per tier and interval.
type PriceIDs struct {
	ProMonthly             string `env:"PRICE_PRO_MONTHLY"`
	ProAnnual              string `env:"PRICE_PRO_ANNUAL"`
	PowerMonthly           string `env:"PRICE_POWER_MONTHLY"`
	PowerAnnual            string `env:"PRICE_POWER_ANNUAL"`
	BusinessStarterMonthly string `env:"PRICE_BUSINESS_STARTER_MONTHLY"`
	BusinessStarterAnnual  string `env:"PRICE_BUSINESS_STARTER_ANNUAL"`
	BusinessProMonthly     string `env:"PRICE_BUSINESS_PRO_MONTHLY"`
	BusinessProAnnual      string `env:"PRICE_BUSINESS_PRO_ANNUAL"`
}

type PriceDetails struct {
	Tier     Tier            `json:"tier"`
	Interval BillingInterval `json:"interval"`
}

// Catalog resolves processor price ids to tiers.
type Catalog struct {
	prices map[string]PriceDetails
}

func NewCatalog(ids PriceIDs) *Catalog {
	c := &Catalog{prices: make(map[string]PriceDetails)}
	c.add(ids.ProMonthly, Pro, Monthly)
	c.add(ids.ProAnnual, Pro, Annual)
	c.add(ids.PowerMonthly, Power, Monthly)
	c.add(ids.PowerAnnual, Power, Annual)
	c.add(ids.BusinessStarterMonthly, BusinessStarter, Monthly)
	c.add(ids.BusinessStarterAnnual, BusinessStarter, Annual)
	c.add(ids.BusinessProMonthly, BusinessPro, Monthly)
	c.add(ids.BusinessProAnnual, BusinessPro, Annual)
	return c
}

func (c *Catalog) add(priceID string, tier Tier, interval BillingInterval) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return
	}
	c.prices[priceID] = PriceDetails{Tier: tier, Interval: interval}
}

// PriceDetails returns the tier and interval for a price id. Unknown and
// empty ids report false.
func (c *Catalog) PriceDetails(priceID string) (PriceDetails, bool) {
	if c == nil || priceID == "" {
		return PriceDetails{}, false
	}
	details, ok := c.prices[priceID]
	return details, ok
}
