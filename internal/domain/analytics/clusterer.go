package analytics

import (
	"fmt"
	"math"
	"strings"

	"crypto-flow-forensics/internal/domain/entity"
)

const (
	clusterSimilarityThreshold = 0.7
	primaryCounterpartyLimit   = 5
)

// ExtractFeatures computes the behavioural fingerprint of address. Size,
// hour and round-amount figures describe outgoing transfers only; an address
// that never sends has zeros there.
func ExtractFeatures(idx *Index, address string) entity.AddressFeatures {
	outgoing := idx.Outgoing(address)
	incoming := idx.Incoming(address)

	features := entity.AddressFeatures{
		Address:               address,
		PrimaryCounterparties: []string{},
		TxCount:               len(outgoing) + len(incoming),
		TotalSent:             sumAmounts(outgoing),
		TotalReceived:         sumAmounts(incoming),
	}

	if len(outgoing) > 0 {
		features.AvgTransactionSize = features.TotalSent / float64(len(outgoing))

		var hours [24]int
		round := 0
		for _, tx := range outgoing {
			hours[tx.Timestamp.UTC().Hour()]++
			if IsRoundAmount(tx.Amount) {
				round++
			}
		}
		for h := range hours {
			if hours[h] > hours[features.PeakActivityHour] {
				features.PeakActivityHour = h
			}
		}
		features.RoundAmountRatio = float64(round) / float64(len(outgoing))
	}

	counterparties := newAddressSet()
	for _, tx := range outgoing {
		counterparties.add(tx.ToAddress)
	}
	for _, tx := range incoming {
		counterparties.add(tx.FromAddress)
	}
	if len(counterparties.list) > primaryCounterpartyLimit {
		features.PrimaryCounterparties = counterparties.list[:primaryCounterpartyLimit]
	} else {
		features.PrimaryCounterparties = counterparties.list
	}

	return features
}

// ClusterAddresses groups addresses with similar behaviour.
//
// This is a greedy heuristic, not an optimal clustering. Addresses are taken
// in first-seen order; each one not yet assigned seeds a cluster and pulls in
// every later unassigned address whose similarity to the seed exceeds 0.7.
// Similarity normalises by the larger value of the two addresses compared,
// so it is neither transitive nor independent of input order. Clusters with a
// single member are dropped.
func ClusterAddresses(idx *Index) []entity.AddressCluster {
	addresses := idx.Addresses()
	features := make([]entity.AddressFeatures, len(addresses))
	for i, address := range addresses {
		features[i] = ExtractFeatures(idx, address)
	}

	clusters := []entity.AddressCluster{}
	processed := make([]bool, len(addresses))

	for i, seed := range features {
		if processed[i] {
			continue
		}
		processed[i] = true

		members := []entity.AddressFeatures{seed}
		similaritySum := 0.0
		for j := i + 1; j < len(features); j++ {
			if processed[j] {
				continue
			}
			similarity := FeatureSimilarity(seed, features[j])
			if similarity > clusterSimilarityThreshold {
				processed[j] = true
				members = append(members, features[j])
				similaritySum += similarity
			}
		}

		if len(members) < 2 {
			continue
		}

		cluster := entity.AddressCluster{
			ClusterID:       fmt.Sprintf("cluster-%d", len(clusters)+1),
			Addresses:       make([]string, 0, len(members)),
			CommonBehavior:  describeBehavior(seed),
			ConfidenceScore: similaritySum / float64(len(members)-1),
			Features:        seed,
		}
		for _, m := range members {
			cluster.Addresses = append(cluster.Addresses, m.Address)
			cluster.TotalVolume += m.TotalSent
			cluster.TransactionCount += m.TxCount
		}
		clusters = append(clusters, cluster)
	}

	return clusters
}

// FeatureSimilarity is the cosine similarity of two normalised feature
// vectors; it is 0 when either vector is all zeros.
func FeatureSimilarity(a, b entity.AddressFeatures) float64 {
	maxAvg := math.Max(a.AvgTransactionSize, b.AvgTransactionSize)
	maxTx := math.Max(float64(a.TxCount), float64(b.TxCount))

	va := featureVector(a, maxAvg, maxTx)
	vb := featureVector(b, maxAvg, maxTx)

	var dot, na, nb float64
	for i := range va {
		dot += va[i] * vb[i]
		na += va[i] * va[i]
		nb += vb[i] * vb[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func featureVector(f entity.AddressFeatures, maxAvg, maxTx float64) [4]float64 {
	v := [4]float64{0, float64(f.PeakActivityHour) / 24, f.RoundAmountRatio, 0}
	if maxAvg > 0 {
		v[0] = f.AvgTransactionSize / maxAvg
	}
	if maxTx > 0 {
		v[3] = float64(f.TxCount) / maxTx
	}
	return v
}

func describeBehavior(f entity.AddressFeatures) string {
	var traits []string

	if f.RoundAmountRatio > 0.5 {
		traits = append(traits, "Round amount transfers")
	}

	switch {
	case f.PeakActivityHour < 6:
		traits = append(traits, "Night activity")
	case f.PeakActivityHour < 12:
		traits = append(traits, "Morning activity")
	case f.PeakActivityHour < 18:
		traits = append(traits, "Afternoon activity")
	default:
		traits = append(traits, "Evening activity")
	}

	switch {
	case f.AvgTransactionSize > 10000:
		traits = append(traits, "Large transfers")
	case f.AvgTransactionSize < 100:
		traits = append(traits, "Small transfers")
	default:
		traits = append(traits, "Medium transfers")
	}

	if f.TxCount > 50 {
		traits = append(traits, "High frequency")
	}

	return strings.Join(traits, ", ")
}
