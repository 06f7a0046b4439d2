package client

import (
	"math/big"
	"sort"

	x402 "github.com/x402-labs/x402-go"
)

// SelectorFilter narrows the candidate set before DefaultSelector picks
// the first survivor, mirroring spec.md §4.3's "optional network/scheme/
// max-value filters supplied by the caller".
type SelectorFilter func(x402.PaymentRequirements) bool

// FilterByNetwork keeps only candidates on one of the given networks.
func FilterByNetwork(networks ...x402.Network) SelectorFilter {
	allowed := make(map[x402.Network]bool, len(networks))
	for _, n := range networks {
		allowed[n] = true
	}
	return func(req x402.PaymentRequirements) bool { return allowed[req.Network] }
}

// FilterByScheme keeps only candidates using one of the given schemes.
func FilterByScheme(schemeNames ...string) SelectorFilter {
	allowed := make(map[string]bool, len(schemeNames))
	for _, s := range schemeNames {
		allowed[s] = true
	}
	return func(req x402.PaymentRequirements) bool { return allowed[req.Scheme] }
}

// FilterByMaxValue drops candidates whose required amount exceeds max
// (atomic units, same asset-specific precision the server advertised).
func FilterByMaxValue(max string) SelectorFilter {
	maxAmount := new(big.Int)
	if _, ok := maxAmount.SetString(max, 10); !ok {
		return func(x402.PaymentRequirements) bool { return false }
	}
	return func(req x402.PaymentRequirements) bool {
		amount := new(big.Int)
		if _, ok := amount.SetString(req.GetAmount(), 10); !ok {
			return false
		}
		return amount.Cmp(maxAmount) <= 0
	}
}

// NewFilteredSelector builds a Selector that applies every filter (a
// candidate survives only if all filters pass it), then returns the
// first survivor in server order — DefaultSelector's contract applied to
// a caller-narrowed candidate set.
func NewFilteredSelector(filters ...SelectorFilter) Selector {
	return func(version int, candidates []x402.PaymentRequirements) (x402.PaymentRequirements, error) {
		var survivors []x402.PaymentRequirements
		for _, c := range candidates {
			ok := true
			for _, f := range filters {
				if !f(c) {
					ok = false
					break
				}
			}
			if ok {
				survivors = append(survivors, c)
			}
		}
		return DefaultSelector(version, survivors)
	}
}

// CheapestFirstSelector sorts by required amount ascending and returns the
// cheapest mutually-supported candidate, grounded on teacher's
// selectPaymentMethodForSigner (priority-then-amount sort, simplified
// here to amount-only since the Client Engine has no per-signer priority
// concept of its own).
func CheapestFirstSelector(version int, candidates []x402.PaymentRequirements) (x402.PaymentRequirements, error) {
	if len(candidates) == 0 {
		return x402.PaymentRequirements{}, &x402.Error{Code: x402.NoMatchingRequirements, Message: "no mutually-supported payment requirements"}
	}
	sorted := make([]x402.PaymentRequirements, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		ai := new(big.Int)
		aj := new(big.Int)
		ai.SetString(sorted[i].GetAmount(), 10)
		aj.SetString(sorted[j].GetAmount(), 10)
		return ai.Cmp(aj) < 0
	})
	return sorted[0], nil
}
