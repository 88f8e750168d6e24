package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"crypto-flow-forensics/internal/domain/entity"
)

const (
	maxPatternSample = 100

	roundAmountThreshold = 0.3
	roundAmountHigh      = 0.5

	rapidPairGap       = 60 * time.Second
	rapidPairThreshold = 5

	layeringBalance      = 0.9
	layeringMaxDelay     = 2 * time.Hour
	layeringMinOutgoing  = 5
	highVelocityMinCount = 20
	highVelocityPerDay   = 10.0
)

var mixerKeywords = []string{"tornado", "mixer", "tumbler", "cash", "blur", "cyclone"}

// DetectPatterns runs every detector over the whole indexed set and returns
// their findings highest score first. Each detector yields at most one
// pattern; an empty set yields none.
func DetectPatterns(idx *Index) []entity.SuspiciousPattern {
	detectors := []func(*Index) *entity.SuspiciousPattern{
		detectRoundAmounts,
		detectRapidTransfers,
		detectCircularFlow,
		detectLayering,
		detectMixerUsage,
		detectHighVelocity,
	}

	patterns := []entity.SuspiciousPattern{}
	for _, detect := range detectors {
		if p := detect(idx); p != nil {
			patterns = append(patterns, *p)
		}
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].Score > patterns[j].Score
	})
	return patterns
}

func detectRoundAmounts(idx *Index) *entity.SuspiciousPattern {
	txs := idx.Transactions()
	if len(txs) == 0 {
		return nil
	}

	var round []entity.Transaction
	addresses := newAddressSet()
	for _, tx := range txs {
		if IsRoundAmount(tx.Amount) {
			round = append(round, tx)
			addresses.add(tx.FromAddress)
			addresses.add(tx.ToAddress)
		}
	}

	ratio := float64(len(round)) / float64(len(txs))
	if ratio <= roundAmountThreshold {
		return nil
	}

	severity := entity.SeverityMedium
	if ratio > roundAmountHigh {
		severity = entity.SeverityHigh
	}

	return &entity.SuspiciousPattern{
		Type:              entity.PatternTypeRoundAmounts,
		Severity:          severity,
		Score:             math.Min(ratio*100, 100),
		AffectedAddresses: addresses.list,
		Transactions:      sample(round),
		Description:       fmt.Sprintf("%.1f%% of transactions use round amounts", ratio*100),
		Metadata: map[string]interface{}{
			"round_count": len(round),
			"ratio":       ratio,
		},
	}
}

func detectRapidTransfers(idx *Index) *entity.SuspiciousPattern {
	var flagged []string
	var txs []entity.Transaction
	pairCounts := make(map[string]int)

	for _, address := range idx.Addresses() {
		outgoing := sortedByTime(idx.Outgoing(address))
		if len(outgoing) < 2 {
			continue
		}

		var pairs []entity.Transaction
		count := 0
		for i := 1; i < len(outgoing); i++ {
			if outgoing[i].Timestamp.Sub(outgoing[i-1].Timestamp) < rapidPairGap {
				count++
				pairs = append(pairs, outgoing[i])
			}
		}

		if count > rapidPairThreshold {
			flagged = append(flagged, address)
			pairCounts[address] = count
			txs = append(txs, pairs...)
		}
	}

	if len(flagged) == 0 {
		return nil
	}

	return &entity.SuspiciousPattern{
		Type:              entity.PatternTypeRapidTransfers,
		Severity:          entity.SeverityHigh,
		Score:             math.Min(float64(len(flagged))*10, 100),
		AffectedAddresses: flagged,
		Transactions:      sample(txs),
		Description:       fmt.Sprintf("%d addresses sent bursts of transfers less than a minute apart", len(flagged)),
		Metadata: map[string]interface{}{
			"rapid_pairs": pairCounts,
		},
	}
}

func detectCircularFlow(idx *Index) *entity.SuspiciousPattern {
	cycles := DetectCircularFlows(idx)
	if len(cycles) == 0 {
		return nil
	}

	addresses := newAddressSet()
	var txs []entity.Transaction
	for _, cycle := range cycles {
		for i, from := range cycle {
			addresses.add(from)
			to := cycle[(i+1)%len(cycle)]
			for _, tx := range idx.Outgoing(from) {
				if tx.ToAddress == to {
					txs = append(txs, tx)
					break
				}
			}
		}
	}

	return &entity.SuspiciousPattern{
		Type:              entity.PatternTypeCircularFlow,
		Severity:          entity.SeverityCritical,
		Score:             90,
		AffectedAddresses: addresses.list,
		Transactions:      sample(txs),
		Description:       fmt.Sprintf("Funds return to their origin through %d circular routes", len(cycles)),
		Metadata: map[string]interface{}{
			"cycles": cycles,
		},
	}
}

// detectLayering flags addresses that forward nearly all they receive in
// many outgoing transfers soon after receiving. avg_delay_hours is, per
// address, the mean time from the latest incoming transfer at or before each
// outgoing transfer to that outgoing transfer.
func detectLayering(idx *Index) *entity.SuspiciousPattern {
	var flagged []string
	var txs []entity.Transaction
	delays := make(map[string]float64)

	for _, address := range idx.Addresses() {
		outgoing := idx.Outgoing(address)
		inflow := idx.TotalInflow(address)
		outflow := idx.TotalOutflow(address)
		if inflow == 0 || outflow == 0 {
			continue
		}
		if math.Min(inflow, outflow)/math.Max(inflow, outflow) <= layeringBalance {
			continue
		}
		if len(outgoing) <= layeringMinOutgoing {
			continue
		}

		delay, ok := averageHoldingDelay(idx.Incoming(address), outgoing)
		if !ok || delay >= layeringMaxDelay {
			continue
		}

		flagged = append(flagged, address)
		delays[address] = delay.Hours()
		txs = append(txs, outgoing...)
	}

	if len(flagged) == 0 {
		return nil
	}

	return &entity.SuspiciousPattern{
		Type:              entity.PatternTypeLayering,
		Severity:          entity.SeverityHigh,
		Score:             85,
		AffectedAddresses: flagged,
		Transactions:      sample(txs),
		Description:       fmt.Sprintf("%d addresses pass funds through almost unchanged within hours", len(flagged)),
		Metadata: map[string]interface{}{
			"avg_delay_hours": delays,
		},
	}
}

// averageHoldingDelay measures, for each outgoing transfer, the time since
// the latest incoming transfer at or before it. Outgoing transfers with no
// earlier incoming transfer are ignored; ok is false when none remain.
func averageHoldingDelay(incoming, outgoing []entity.Transaction) (time.Duration, bool) {
	received := sortedByTime(incoming)

	var total time.Duration
	n := 0
	for _, out := range outgoing {
		i := sort.Search(len(received), func(i int) bool {
			return received[i].Timestamp.After(out.Timestamp)
		})
		if i == 0 {
			continue
		}
		total += out.Timestamp.Sub(received[i-1].Timestamp)
		n++
	}

	if n == 0 {
		return 0, false
	}
	return total / time.Duration(n), true
}

func detectMixerUsage(idx *Index) *entity.SuspiciousPattern {
	addresses := newAddressSet()
	mixers := newAddressSet()
	var txs []entity.Transaction

	for _, tx := range idx.Transactions() {
		fromMixer := isMixerAddress(tx.FromAddress)
		toMixer := isMixerAddress(tx.ToAddress)
		if !fromMixer && !toMixer {
			continue
		}
		if fromMixer {
			mixers.add(tx.FromAddress)
		}
		if toMixer {
			mixers.add(tx.ToAddress)
		}
		addresses.add(tx.FromAddress)
		addresses.add(tx.ToAddress)
		txs = append(txs, tx)
	}

	if len(txs) == 0 {
		return nil
	}

	return &entity.SuspiciousPattern{
		Type:              entity.PatternTypeMixerUsage,
		Severity:          entity.SeverityCritical,
		Score:             95,
		AffectedAddresses: addresses.list,
		Transactions:      sample(txs),
		Description:       fmt.Sprintf("%d transactions interact with known mixing services", len(txs)),
		Metadata: map[string]interface{}{
			"mixer_addresses": mixers.list,
		},
	}
}

func isMixerAddress(address string) bool {
	lower := strings.ToLower(address)
	for _, keyword := range mixerKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

func detectHighVelocity(idx *Index) *entity.SuspiciousPattern {
	var flagged []string
	var txs []entity.Transaction
	rates := make(map[string]float64)

	for _, address := range idx.Addresses() {
		outgoing := idx.Outgoing(address)
		if len(outgoing) < highVelocityMinCount {
			continue
		}

		first, last := outgoing[0].Timestamp, outgoing[0].Timestamp
		for _, tx := range outgoing[1:] {
			if tx.Timestamp.Before(first) {
				first = tx.Timestamp
			}
			if tx.Timestamp.After(last) {
				last = tx.Timestamp
			}
		}

		days := math.Max(last.Sub(first).Hours()/24, 1)
		perDay := float64(len(outgoing)) / days
		if perDay <= highVelocityPerDay {
			continue
		}

		flagged = append(flagged, address)
		rates[address] = perDay
		txs = append(txs, outgoing...)
	}

	if len(flagged) == 0 {
		return nil
	}

	return &entity.SuspiciousPattern{
		Type:              entity.PatternTypeHighVelocity,
		Severity:          entity.SeverityMedium,
		Score:             70,
		AffectedAddresses: flagged,
		Transactions:      sample(txs),
		Description:       fmt.Sprintf("%d addresses send more than %.0f transactions per day", len(flagged), highVelocityPerDay),
		Metadata: map[string]interface{}{
			"tx_per_day": rates,
		},
	}
}

// addressSet keeps distinct addresses in insertion order
type addressSet struct {
	seen map[string]bool
	list []string
}

func newAddressSet() *addressSet {
	return &addressSet{seen: make(map[string]bool), list: []string{}}
}

func (s *addressSet) add(address string) {
	if !s.seen[address] {
		s.seen[address] = true
		s.list = append(s.list, address)
	}
}

func sample(txs []entity.Transaction) []entity.Transaction {
	if len(txs) > maxPatternSample {
		txs = txs[:maxPatternSample]
	}
	out := make([]entity.Transaction, len(txs))
	copy(out, txs)
	return out
}

func sortedByTime(txs []entity.Transaction) []entity.Transaction {
	sorted := make([]entity.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}
