package executor

import (
	"sort"
	"sync"

	"github.com/mezonai/mmn-replay/transaction"
	"github.com/mezonai/mmn-replay/types"
)

// txJob is one parsed transaction with its declared position in the block.
type txJob struct {
	Index int
	Tx    *transaction.Transaction
}

// ExecutionResult is what one worker produces for one transaction. Updated
// holds the worker's write-isolated output accounts; merging back into slot
// state happens under the engine after the group join.
type ExecutionResult struct {
	Index   int
	Tx      *transaction.Transaction
	Success bool
	Err     error
	Updated map[string]*types.Account
	Meta    *types.TransactionMeta
}

// writeAccounts is the declared write set of a transfer.
func writeAccounts(tx *transaction.Transaction) []string {
	return []string{tx.Sender, tx.Recipient}
}

// buildDependencyGraph links each job to the previous writer of any account
// in its write set.
func buildDependencyGraph(jobs []txJob) map[int][]int {
	graph := make(map[int][]int, len(jobs))
	lastWriter := make(map[string]int)

	for i := range jobs {
		graph[i] = []int{}
	}

	for i, job := range jobs {
		for _, acc := range writeAccounts(job.Tx) {
			if prev, ok := lastWriter[acc]; ok {
				graph[i] = append(graph[i], prev)
			}
			lastWriter[acc] = i
		}
	}

	return graph
}

// groupByDependencyLevel peels the dependency graph into antichains: every
// job in a level conflicts with none of its peers, only with earlier levels.
func groupByDependencyLevel(graph map[int][]int, totalTxs int) [][]int {
	groups := [][]int{}
	processed := make(map[int]bool)

	for len(processed) < totalTxs {
		var currentGroup []int

		for i := 0; i < totalTxs; i++ {
			if processed[i] {
				continue
			}

			canExecute := true
			for _, dep := range graph[i] {
				if !processed[dep] {
					canExecute = false
					break
				}
			}

			if canExecute {
				currentGroup = append(currentGroup, i)
			}
		}

		if len(currentGroup) == 0 {
			break
		}

		groups = append(groups, currentGroup)
		for _, txIdx := range currentGroup {
			processed[txIdx] = true
		}
	}

	return groups
}

// executeGroup runs one dependency level through the bounded worker pool and
// joins before returning. Results come back ordered by declared tx index.
func executeGroup(
	group []int,
	jobs []txJob,
	readPrior func(addr string) *types.Account,
	workerCount int,
	slot uint64,
	blockHash string,
) []ExecutionResult {
	var wg sync.WaitGroup
	results := make([]ExecutionResult, len(group))

	if workerCount < 1 {
		workerCount = 1
	}
	semaphore := make(chan struct{}, workerCount)

	for i, txIdx := range group {
		wg.Add(1)
		go func(index, jobIndex int) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			results[index] = executeTransaction(jobs[jobIndex], readPrior, slot, blockHash)
		}(i, txIdx)
	}

	wg.Wait()

	sort.Slice(results, func(a, b int) bool { return results[a].Index < results[b].Index })
	return results
}

// executeTransaction applies one transaction against a private copy of its
// accounts. A failed apply still advances the sender nonce so replay of
// deterministic faults stays reproducible.
func executeTransaction(
	job txJob,
	readPrior func(addr string) *types.Account,
	slot uint64,
	blockHash string,
) ExecutionResult {
	tx := job.Tx
	state := make(map[string]*types.Account)

	for _, addr := range []string{tx.Sender, tx.Recipient} {
		if _, ok := state[addr]; ok {
			continue
		}
		if acc := readPrior(addr); acc != nil {
			state[addr] = acc
		}
	}

	txHash := tx.Hash()
	if err := applyTx(state, tx); err != nil {
		sender := state[tx.Sender]
		sender.Nonce++
		return ExecutionResult{
			Index:   job.Index,
			Tx:      tx,
			Success: false,
			Err:     err,
			Updated: map[string]*types.Account{tx.Sender: sender},
			Meta:    types.NewTxMeta(txHash, slot, blockHash, types.TxStatusFailed, err.Error()),
		}
	}

	addHistory(state[tx.Sender], tx)
	if tx.Recipient != tx.Sender {
		addHistory(state[tx.Recipient], tx)
	}

	return ExecutionResult{
		Index:   job.Index,
		Tx:      tx,
		Success: true,
		Updated: state,
		Meta:    types.NewTxMeta(txHash, slot, blockHash, types.TxStatusSuccess, ""),
	}
}
