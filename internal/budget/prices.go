package budget

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Ledger service categories.
const (
	ServiceApify      = "apify"
	ServiceGemini     = "gemini"
	ServiceClaude     = "claude"
	ServiceOpenAI     = "openai"
	ServiceVeo        = "veo"
	ServiceElevenLabs = "elevenlabs"
	ServiceEdgeTTS    = "edge-tts"
)

// ErrUnknownService is returned when a service has no configured price.
var ErrUnknownService = errors.New("unknown service")

// perThousand lists services whose configured price covers 1000 units
// (results for apify, characters for elevenlabs).
var perThousand = map[string]bool{
	ServiceApify:      true,
	ServiceElevenLabs: true,
}

// Counts maps a service to the number of units to price: results, videos,
// strategies, clips, or characters depending on the service.
type Counts map[string]int

// Quote is a pure pricing result.
type Quote struct {
	Items map[string]USD `json:"items"`
	Total USD            `json:"total"`
}

// Prices converts unit counts into cost. The zero value prices nothing.
type Prices struct {
	unit       map[string]USD
	renderMode string
}

// NewPrices builds a price table from configured USD values. Keys for
// per-thousand services carry the price per 1000 units; veo is resolved from
// veo_<mode>.
func NewPrices(table map[string]float64, renderMode string) Prices {
	unit := make(map[string]USD, len(table))
	for service, price := range table {
		key := strings.ToLower(strings.TrimSpace(service))
		if perThousand[key] {
			unit[key] = FromDollars(price / 1000)
			continue
		}
		unit[key] = FromDollars(price)
	}
	mode := strings.ToLower(strings.TrimSpace(renderMode))
	if mode == "" {
		mode = "test"
	}
	return Prices{unit: unit, renderMode: mode}
}

// DefaultPrices returns the built-in price table for the given render mode.
func DefaultPrices(renderMode string) Prices {
	return NewPrices(map[string]float64{
		ServiceApify:      2.30,
		ServiceGemini:     0.002,
		ServiceClaude:     0.005,
		ServiceOpenAI:     0.01,
		"veo_test":        0.25,
		"veo_production":  0.50,
		ServiceElevenLabs: 0.30,
		ServiceEdgeTTS:    0,
	}, renderMode)
}

// Unit returns the price of one unit of service.
func (p Prices) Unit(service string) (USD, error) {
	key := strings.ToLower(strings.TrimSpace(service))
	if key == ServiceVeo {
		key = "veo_" + p.renderMode
	}
	price, ok := p.unit[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownService, service)
	}
	return price, nil
}

// Price returns the cost of units of service.
func (p Prices) Price(service string, units int) (USD, error) {
	if units < 0 {
		return 0, fmt.Errorf("negative unit count %d for %s", units, service)
	}
	unit, err := p.Unit(service)
	if err != nil {
		return 0, err
	}
	return unit * USD(units), nil
}

// Quote prices every service in counts. Services are priced in sorted order
// so a failure always names the same service.
func (p Prices) Quote(counts Counts) (Quote, error) {
	q := Quote{Items: make(map[string]USD, len(counts))}
	for _, service := range slices.Sorted(maps.Keys(counts)) {
		cost, err := p.Price(service, counts[service])
		if err != nil {
			return Quote{}, err
		}
		q.Items[service] += cost
		q.Total += cost
	}
	return q, nil
}

// CountCharacters counts billable characters after NFC normalisation, so a
// decomposed "é" costs the same as a precomposed one.
func CountCharacters(text string) int {
	return utf8.RuneCountInString(norm.NFC.String(text))
}
