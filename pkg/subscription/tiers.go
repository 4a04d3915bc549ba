package subscription

// TierSchemaVersion identifies the tier/credit model below. Rows written
// under it keep the credit balance in the dedicated column.
const TierSchemaVersion = 2

// Unlimited marks a quota with no ceiling.
const Unlimited int64 = -1

type Tier string

const (
	Free            Tier = "free"
	Pro             Tier = "pro"
	Power           Tier = "power"
	BusinessFree    Tier = "business_free"
	BusinessStarter Tier = "business_starter"
	BusinessPro     Tier = "business_pro"
)

type BillingInterval string

const (
	Monthly BillingInterval = "monthly"
	Annual  BillingInterval = "annual"
)

// Status mirrors the processor's subscription status verbatim.
type Status string

const (
	StatusActive     Status = "active"
	StatusCanceled   Status = "canceled"
	StatusPastDue    Status = "past_due"
	StatusIncomplete Status = "incomplete"
)

// Limits holds per-tier quotas. A nil field is not applicable to the tier,
// Unlimited means there is no ceiling.
type Limits struct {
	MessagesPerMonth  *int64   `json:"maxMessagesPerMonth,omitempty"`
	MessagesPerDay    *int64   `json:"maxMessagesPerDay,omitempty"`
	MessageCredits    *int64   `json:"messageCredits,omitempty"`
	FinetuneStorageMB *float64 `json:"finetuneStorageMB,omitempty"`
	AIAgentCount      *int64   `json:"aiAgentCount,omitempty"`
	SavedRecipes      int64    `json:"maxSavedRecipes"`
	VectorDocs        int64    `json:"maxVectorDocs"`
	TeamSeats         *int64   `json:"teamSeats,omitempty"`
}

var TierLimits = map[Tier]Limits{
	Free: {
		MessagesPerMonth: Int(100),
		MessagesPerDay:   Int(10),
		SavedRecipes:     5,
		VectorDocs:       50,
	},
	Pro: {
		MessagesPerMonth: Int(500),
		SavedRecipes:     Unlimited,
		VectorDocs:       1000,
	},
	Power: {
		MessagesPerMonth: Int(3000),
		SavedRecipes:     Unlimited,
		VectorDocs:       5000,
	},
	BusinessFree: {
		MessageCredits:    Int(100),
		FinetuneStorageMB: Float(0.5),
		AIAgentCount:      Int(1),
		SavedRecipes:      Unlimited,
		VectorDocs:        100,
	},
	BusinessStarter: {
		MessageCredits:    Int(10000),
		FinetuneStorageMB: Float(20),
		AIAgentCount:      Int(3),
		SavedRecipes:      Unlimited,
		VectorDocs:        1000,
		TeamSeats:         Int(1),
	},
	BusinessPro: {
		MessageCredits:    Int(Unlimited),
		FinetuneStorageMB: Float(60),
		AIAgentCount:      Int(10),
		SavedRecipes:      Unlimited,
		VectorDocs:        Unlimited,
		TeamSeats:         Int(1),
	},
}

// GuestLimits applies to sessions without an account.
var GuestLimits = Limits{
	MessagesPerMonth: Int(20),
	MessagesPerDay:   Int(5),
	SavedRecipes:     0,
	VectorDocs:       0,
}

// tierCredits is the credit allowance per billing period. Tiers absent
// from the map do not use the credit model.
var tierCredits = map[Tier]int64{
	Pro:             500,
	Power:           3000,
	BusinessFree:    100,
	BusinessStarter: 10000,
	BusinessPro:     Unlimited,
}

func (t Tier) Valid() bool {
	_, ok := TierLimits[t]
	return ok
}

// IsBusiness reports whether the tier belongs to the business account class.
func (t Tier) IsBusiness() bool {
	switch t {
	case BusinessFree, BusinessStarter, BusinessPro:
		return true
	}
	return false
}

// CreditAllowance returns the per-period credit grant for the tier.
func CreditAllowance(t Tier) (int64, bool) {
	credits, ok := tierCredits[t]
	return credits, ok
}

// SupportsTopUp reports whether the tier may buy one-time credit packs.
func SupportsTopUp(t Tier) bool {
	return t == Pro || t == Power
}

// GetTierLimits returns a copy of the tier's limits, falling back to free.
func GetTierLimits(t Tier) Limits {
	limits, ok := TierLimits[t]
	if !ok {
		limits = TierLimits[Free]
	}
	return limits.clone()
}

func (l Limits) clone() Limits {
	out := l
	out.MessagesPerMonth = cloneInt(l.MessagesPerMonth)
	out.MessagesPerDay = cloneInt(l.MessagesPerDay)
	out.MessageCredits = cloneInt(l.MessageCredits)
	out.AIAgentCount = cloneInt(l.AIAgentCount)
	out.TeamSeats = cloneInt(l.TeamSeats)
	if l.FinetuneStorageMB != nil {
		out.FinetuneStorageMB = Float(*l.FinetuneStorageMB)
	}
	return out
}

func cloneInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	return Int(*v)
}

func Int(v int64) *int64 { return &v }

func Float(v float64) *float64 { return &v }

// GetGuestLimits returns a copy of the guest limits.
func GetGuestLimits() Limits {
	return GuestLimits.clone()
}
