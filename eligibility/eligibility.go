// Package eligibility decides which listing candidates are worth acquiring.
package eligibility

import (
	"github.com/pevans/promobot/capacity"
	"github.com/pevans/promobot/listing"
)

// Defaults for Policy.
const (
	DefaultStrictThreshold = 20
	DefaultNormalRatio     = 0.6
	DefaultStrictRatio     = 20.0
	DefaultStrictFloorGiB  = 20
)

// DefaultPromotions are the promotions acquired when none are configured.
var DefaultPromotions = []listing.Promotion{
	listing.PromotionFree,
	listing.PromotionFreeDoubleUpload,
}

// Lookup answers ledger membership. *ledger.Ledger satisfies it.
type Lookup interface {
	Contains(id string) bool
}

// Policy holds the thresholds Select applies.
type Policy struct {
	Promotions map[listing.Promotion]bool

	// StrictThreshold is the number of promoted candidates at which a tick
	// escalates to strict mode.
	StrictThreshold int

	// Minimum leechers/seeders ratio in each mode.
	NormalRatio float64
	StrictRatio float64

	FloorBytes       int64
	CeilingBytes     int64
	StrictFloorBytes int64
}

// NewPolicy builds a policy from promotions and the capacity limits. An empty
// promotions list selects DefaultPromotions.
func NewPolicy(promotions []listing.Promotion, cfg capacity.Config) Policy {
	if len(promotions) == 0 {
		promotions = DefaultPromotions
	}

	p := Policy{
		Promotions:       make(map[listing.Promotion]bool, len(promotions)),
		StrictThreshold:  DefaultStrictThreshold,
		NormalRatio:      DefaultNormalRatio,
		StrictRatio:      DefaultStrictRatio,
		FloorBytes:       cfg.ItemSizeFloorBytes,
		CeilingBytes:     cfg.ItemSizeCeilingBytes,
		StrictFloorBytes: capacity.GiBToBytes(DefaultStrictFloorGiB),
	}
	for _, promo := range promotions {
		p.Promotions[promo] = true
	}
	return p
}

// Result is the outcome of one Select call.
type Result struct {
	Selected []listing.Candidate
	Promoted int  // candidates with a wanted promotion
	Strict   bool // strict thresholds applied
}

// Select filters cands down to the ones to acquire, preserving order. It has
// no side effects.
func Select(cands []listing.Candidate, seen Lookup, p Policy) Result {
	var promoted []listing.Candidate
	for _, c := range cands {
		if p.Promotions[c.Promotion] {
			promoted = append(promoted, c)
		}
	}

	res := Result{
		Promoted: len(promoted),
		Strict:   len(promoted) >= p.StrictThreshold,
	}

	ratio := p.NormalRatio
	floor := p.FloorBytes
	if res.Strict {
		ratio = p.StrictRatio
		floor = max(floor, p.StrictFloorBytes)
	}

	for _, c := range promoted {
		if c.AlreadySeeding || c.AlreadyFinished {
			continue
		}
		if seen != nil && seen.Contains(c.ID) {
			continue
		}

		if c.Seeders <= 0 || c.Leechers < 0 {
			continue
		}
		if float64(c.Leechers)/float64(c.Seeders) < ratio {
			continue
		}

		size := c.SizeBytes()
		if size < floor || size > p.CeilingBytes {
			continue
		}

		res.Selected = append(res.Selected, c)
	}

	return res
}
