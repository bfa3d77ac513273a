package model

import (
	"math"
	"strings"
)

// ErrorKind is the closed error taxonomy.
type ErrorKind string

const (
	KindCodeBug         ErrorKind = "code_bug"
	KindStringHandling  ErrorKind = "string_handling"
	KindNullPointer     ErrorKind = "null_pointer"
	KindMissingConfig   ErrorKind = "missing_config"
	KindMissingData     ErrorKind = "missing_data"
	KindDatabaseError   ErrorKind = "database_error"
	KindCacheError      ErrorKind = "cache_error"
	KindExternalService ErrorKind = "external_service"
	KindUnknown         ErrorKind = "unknown"
)

// Kinds lists the taxonomy in display order, excluding unknown.
var Kinds = []ErrorKind{
	KindCodeBug,
	KindStringHandling,
	KindNullPointer,
	KindMissingConfig,
	KindMissingData,
	KindDatabaseError,
	KindCacheError,
	KindExternalService,
}

var kindAliases = map[string]ErrorKind{
	"bug":              KindCodeBug,
	"logic_error":      KindCodeBug,
	"string":           KindStringHandling,
	"string_error":     KindStringHandling,
	"null":             KindNullPointer,
	"null_reference":   KindNullPointer,
	"nullptr":          KindNullPointer,
	"config":           KindMissingConfig,
	"configuration":    KindMissingConfig,
	"config_error":     KindMissingConfig,
	"data":             KindMissingData,
	"data_error":       KindMissingData,
	"database":         KindDatabaseError,
	"db_error":         KindDatabaseError,
	"cache":            KindCacheError,
	"redis_error":      KindCacheError,
	"external":         KindExternalService,
	"network_error":    KindExternalService,
	"upstream_error":   KindExternalService,
	"external_service": KindExternalService,
}

// ParseKind maps a collaborator-supplied label onto the taxonomy.
// Anything that does not map cleanly becomes KindUnknown.
func ParseKind(s string) ErrorKind {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	for _, k := range Kinds {
		if norm == string(k) {
			return k
		}
	}
	if k, ok := kindAliases[norm]; ok {
		return k
	}
	return KindUnknown
}

// Category says where a fix belongs.
type Category string

const (
	CategoryCode   Category = "code"
	CategoryConfig Category = "config"
	CategoryData   Category = "data"
)

// ParseCategory returns the category and whether s named one.
func ParseCategory(s string) (Category, bool) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryCode:
		return CategoryCode, true
	case CategoryConfig:
		return CategoryConfig, true
	case CategoryData:
		return CategoryData, true
	}
	return "", false
}

// CategoryFor is the default category for a kind.
func CategoryFor(k ErrorKind) Category {
	switch k {
	case KindMissingConfig:
		return CategoryConfig
	case KindMissingData, KindDatabaseError, KindCacheError:
		return CategoryData
	}
	return CategoryCode
}

// ErrorReport is the classification of one group.
type ErrorReport struct {
	Key               GroupKey  `json:"key"`
	Kind              ErrorKind `json:"kind"`
	Severity          string    `json:"severity"`
	Confidence        float64   `json:"confidence"`
	Explanation       string    `json:"explanation"`
	SuggestedApproach string    `json:"suggested_approach,omitempty"`
	Category          Category  `json:"category"`
	Provider          string    `json:"provider,omitempty"`
	Model             string    `json:"model,omitempty"`
	Attempts          int       `json:"attempts,omitempty"`
}

// ClampConfidence limits c to [0, 1].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0 || math.IsNaN(c):
		return 0
	case c > 1:
		return 1
	}
	return c
}
