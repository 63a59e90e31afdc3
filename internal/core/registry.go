package core

import (
	"fmt"
	"sort"
	"sync"
)

// ParserType tags the format a CSV file was recognized as.
type ParserType string

const (
	ParserLinkedIn ParserType = "linkedin"
	ParserGoogle   ParserType = "google"
	ParserRolodex  ParserType = "rolodex"
	// ParserCustom means no deterministic parser matched; rows go through
	// the Normalizer instead.
	ParserCustom ParserType = "custom"
)

// DetectFunc reports whether a header row belongs to a format.
type DetectFunc func(headers []string) bool

// ParseFunc maps one data row to a Contact. It returns false when the row
// carries no usable information and must be dropped. rowNum is 1-based.
type ParseFunc func(row Row, rowNum int) (Contact, bool)

// FormatDefinition contains everything needed to recognize and parse one
// export format.
type FormatDefinition struct {
	Type  ParserType
	Label string // Display name: "LinkedIn Connections"
	// Order is the detection precedence; lower runs first.
	Order  int
	Source Source
	Detect DetectFunc
	Parse  ParseFunc
}

var (
	formats   = make(map[ParserType]FormatDefinition)
	formatsMu sync.RWMutex
)

// RegisterFormat adds a format definition to the registry.
// Panics if the type is already registered or is ParserCustom.
func RegisterFormat(def FormatDefinition) {
	formatsMu.Lock()
	defer formatsMu.Unlock()

	if def.Type == ParserCustom {
		panic("core: custom is reserved for unrecognized formats")
	}
	if _, exists := formats[def.Type]; exists {
		panic(fmt.Sprintf("format already registered: %s", def.Type))
	}
	if def.Detect == nil || def.Parse == nil {
		panic(fmt.Sprintf("format %s: Detect and Parse are required", def.Type))
	}

	formats[def.Type] = def
}

// Format returns a format definition by type.
func Format(t ParserType) (FormatDefinition, bool) {
	formatsMu.RLock()
	defer formatsMu.RUnlock()

	def, ok := formats[t]
	return def, ok
}

// Formats returns all registered formats in detection order.
func Formats() []FormatDefinition {
	formatsMu.RLock()
	defer formatsMu.RUnlock()

	result := make([]FormatDefinition, 0, len(formats))
	for _, def := range formats {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].Type < result[j].Type
	})

	return result
}

// FormatCount returns the number of registered formats.
func FormatCount() int {
	formatsMu.RLock()
	defer formatsMu.RUnlock()
	return len(formats)
}

// DetectFormat classifies a header row. The first registered format (by
// Order) whose detector accepts the headers wins; otherwise ParserCustom.
func DetectFormat(headers []string) ParserType {
	for _, def := range Formats() {
		if def.Detect(headers) {
			return def.Type
		}
	}
	return ParserCustom
}
