// Package group implements the post-pass that relates transactions sharing
// a group key. The conversion engine emits group keys; this pass is their
// only consumer.
package group

import (
	"github.com/rumor-ml/commons.systems/banksync/internal/domain"
)

// AdjustTransactions merges transactions sharing a group key into a single
// transaction and returns the adjusted list. Transactions without group
// keys pass through unchanged, and relative order is preserved: a merged
// transaction takes the position of its first member.
//
// When a group's members together carry two or more movements on owned
// accounts (both real legs of a transfer or exchange were converted in this
// run), the merged transaction keeps exactly those owned legs and drops the
// synthetic counterparty movements they superseded. Otherwise the first
// member's movements are kept as-is: a lone grouped leg still shows its
// counterparty side.
func AdjustTransactions(transactions []domain.Transaction) []domain.Transaction {
	groups := make(map[string][]int)
	for i, txn := range transactions {
		if key, ok := groupKey(txn); ok {
			groups[key] = append(groups[key], i)
		}
	}

	merged := make(map[int]domain.Transaction)
	dropped := make(map[int]bool)
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		merged[members[0]] = mergeGroup(transactions, members)
		for _, i := range members[1:] {
			dropped[i] = true
		}
	}

	adjusted := make([]domain.Transaction, 0, len(transactions))
	for i, txn := range transactions {
		if dropped[i] {
			continue
		}
		if m, ok := merged[i]; ok {
			adjusted = append(adjusted, m)
			continue
		}
		adjusted = append(adjusted, txn)
	}
	return adjusted
}

// groupKey returns the transaction's group key, if any.
func groupKey(txn domain.Transaction) (string, bool) {
	if len(txn.GroupKeys) == 0 {
		return "", false
	}
	return txn.GroupKeys[0], true
}

// mergeGroup collapses the group's members into one transaction based on
// the first member.
func mergeGroup(transactions []domain.Transaction, members []int) domain.Transaction {
	base := transactions[members[0]]

	var owned []domain.Movement
	for _, i := range members {
		owned = append(owned, transactions[i].OwnMovements()...)
	}

	if len(owned) >= 2 {
		base.Movements = owned
	}
	return base
}
