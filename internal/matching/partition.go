// Package matching pairs a season's participants into anonymous gift rings.
//
// Participants are first split into geographic clusters (Partition), each
// cluster is arranged into a single giver to receiver cycle (AssignRing),
// and the Coordinator persists the result for a whole season in one
// transaction guarded by the season's address-match stamp.
package matching

import (
	"strings"

	"giftclub/internal/types"
)

// CatchAllLabel identifies the trailing cluster that takes every participant
// no configured country set claims.
const CatchAllLabel = "*"

// Cluster is a disjoint group of participants matched independently.
type Cluster struct {
	// Label is the comma-joined country set, or CatchAllLabel.
	Label string
	// Countries is nil for the catch-all cluster.
	Countries []string
	Members   []types.Participant
}

// Partition splits participants by country. The first definition whose set
// contains a participant's country claims them; everyone else, including
// participants without a country, lands in the catch-all cluster.
//
// The result always has len(defs)+1 clusters in definition order with the
// catch-all last, and together they hold every input participant exactly
// once. Member order follows input order.
func Partition(participants []types.Participant, defs [][]string) []Cluster {
	clusters := make([]Cluster, 0, len(defs)+1)
	owner := make(map[string]int)
	for i, set := range defs {
		clusters = append(clusters, Cluster{
			Label:     strings.Join(set, ","),
			Countries: set,
		})
		for _, code := range set {
			if _, taken := owner[code]; !taken {
				owner[code] = i
			}
		}
	}
	clusters = append(clusters, Cluster{Label: CatchAllLabel})
	catchAll := len(clusters) - 1

	for _, p := range participants {
		idx := catchAll
		if code := p.CountryCode(); code != "" {
			if i, ok := owner[code]; ok {
				idx = i
			}
		}
		clusters[idx].Members = append(clusters[idx].Members, p)
	}
	return clusters
}
