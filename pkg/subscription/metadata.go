package subscription

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Metadata keys shared between processor product metadata and the stored
// subscription metadata.
const (
	MetaMessagesPerMonth  = "maxMessagesPerMonth"
	MetaMessagesPerDay    = "maxMessagesPerDay"
	MetaMessageCredits    = "messageCredits"
	MetaFinetuneStorageMB = "finetuneStorageMB"
	MetaAIAgentCount      = "aiAgentCount"
	MetaSavedRecipes      = "maxSavedRecipes"
	MetaVectorDocs        = "maxVectorDocs"
	MetaTeamSeats         = "teamSeats"
)

// MetadataFloat reads a numeric metadata value. Product metadata from Stripe
// is string typed, values written back by the ledger are JSON numbers.
func MetadataFloat(meta map[string]any, key string) (float64, bool) {
	if meta == nil {
		return 0, false
	}
	raw, ok := meta[key]
	if !ok || raw == nil {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

// MetadataInt is MetadataFloat truncated to an integer.
func MetadataInt(meta map[string]any, key string) (int64, bool) {
	f, ok := MetadataFloat(meta, key)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

// StringMetadata converts processor metadata into the stored shape.
func StringMetadata(in map[string]string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
