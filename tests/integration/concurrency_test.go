package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConcurrentDeposits fires 50 concurrent deposits against one
// wallet. The per-wallet lease serializes them, so the final balance is
// exact, not merely non-negative.
func TestConcurrentDeposits(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	walletID := app.createWallet(t, "alice")

	concurrency := 50

	var wg sync.WaitGroup
	var successCount atomic.Int64

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			body := fmt.Sprintf(`{"amount":1.00,"description":"concurrent deposit %d"}`, idx)
			resp := app.post(t, "/wallets/"+walletID+"/deposit", body, nil)
			defer resp.Body.Close()
			_, _ = io.ReadAll(resp.Body)

			if resp.StatusCode == http.StatusOK {
				successCount.Add(1)
			}
		}(i)
	}

	wg.Wait()

	t.Logf("Concurrent deposits: %d succeeded (out of %d)", successCount.Load(), concurrency)

	assert.Equal(t, int64(concurrency), successCount.Load())
	assert.Equal(t, 50.0, app.balance(t, walletID))

	resp := app.get(t, "/wallets/"+walletID+"/ledger?limit=100")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decodeList(t, resp)
	assert.Len(t, entries, concurrency)
}

// TestConcurrentWithdrawals_InsufficientFunds issues five concurrent
// 50.00 withdrawals against a 100.00 balance. Exactly two may succeed.
func TestConcurrentWithdrawals_InsufficientFunds(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	walletID := app.createWallet(t, "alice")
	app.deposit(t, walletID, "100.00")

	concurrency := 5

	var wg sync.WaitGroup
	var successCount atomic.Int64
	var insufficientCount atomic.Int64

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			resp := app.post(t, "/wallets/"+walletID+"/withdraw", `{"amount":50.00}`, nil)
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)

			switch resp.StatusCode {
			case http.StatusOK:
				successCount.Add(1)
			case http.StatusBadRequest:
				var errResp struct {
					ErrorCode string `json:"error_code"`
				}
				if json.Unmarshal(body, &errResp) == nil && errResp.ErrorCode == "INSUFFICIENT_FUNDS" {
					insufficientCount.Add(1)
				}
			}
		}()
	}

	wg.Wait()

	t.Logf("Concurrent withdrawals: %d succeeded, %d refused (out of %d)",
		successCount.Load(), insufficientCount.Load(), concurrency)

	assert.Equal(t, int64(2), successCount.Load(), "only two withdrawals fit the balance")
	assert.Equal(t, int64(3), insufficientCount.Load())
	assert.Equal(t, 0.0, app.balance(t, walletID))
}

// TestConcurrentSameKeyInitiations sends ten transfer initiations that
// share one idempotency key. Exactly one creates the transfer; the rest
// adopt it. The source is debited once.
func TestConcurrentSameKeyInitiations(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	aliceID := app.createWallet(t, "alice")
	bobID := app.createWallet(t, "bob")
	app.registerKey(t, bobID, "bob@example.com", "EMAIL")
	app.deposit(t, aliceID, "100.00")

	concurrency := 10

	var wg sync.WaitGroup
	var createdCount atomic.Int64
	var replayedCount atomic.Int64
	var mu sync.Mutex
	transferIDs := make(map[string]struct{})
	endToEndIDs := make(map[string]struct{})

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			resp := app.initiate(t, "race-key", aliceID, "bob@example.com", "10.00")
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)

			switch resp.StatusCode {
			case http.StatusCreated:
				createdCount.Add(1)
			case http.StatusOK:
				replayedCount.Add(1)
			default:
				return
			}

			var transfer struct {
				ID         string `json:"id"`
				EndToEndID string `json:"endToEndId"`
			}
			if json.Unmarshal(body, &transfer) == nil {
				mu.Lock()
				transferIDs[transfer.ID] = struct{}{}
				endToEndIDs[transfer.EndToEndID] = struct{}{}
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	t.Logf("Racing initiations: %d created, %d replayed (out of %d)",
		createdCount.Load(), replayedCount.Load(), concurrency)

	assert.Equal(t, int64(1), createdCount.Load(), "exactly one initiation wins")
	assert.Equal(t, int64(concurrency-1), replayedCount.Load())
	assert.Len(t, transferIDs, 1, "every response carries the same transfer")
	assert.Len(t, endToEndIDs, 1)

	// Compensated loser debits cancel out; the net effect is one debit
	assert.Equal(t, 90.0, app.balance(t, aliceID))

	var endToEndID string
	for id := range endToEndIDs {
		endToEndID = id
	}
	resp := app.webhook(t, endToEndID, "evt-1", "CONFIRMED")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, 10.0, app.balance(t, bobID))
}

// TestConcurrentDistinctInitiations runs five transfers with distinct
// keys from the same wallet and settles them all.
func TestConcurrentDistinctInitiations(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	aliceID := app.createWallet(t, "alice")
	bobID := app.createWallet(t, "bob")
	app.registerKey(t, bobID, "bob@example.com", "EMAIL")
	app.deposit(t, aliceID, "100.00")

	concurrency := 5

	var wg sync.WaitGroup
	var mu sync.Mutex
	var endToEndIDs []string

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			resp := app.initiate(t, fmt.Sprintf("key-%d", idx), aliceID, "bob@example.com", "10.00")
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)

			if resp.StatusCode != http.StatusCreated {
				t.Errorf("initiation %d: unexpected status %d: %s", idx, resp.StatusCode, body)
				return
			}
			var transfer struct {
				EndToEndID string `json:"endToEndId"`
			}
			if json.Unmarshal(body, &transfer) == nil {
				mu.Lock()
				endToEndIDs = append(endToEndIDs, transfer.EndToEndID)
				mu.Unlock()
			}
		}(i)
	}

	wg.Wait()

	require.Len(t, endToEndIDs, concurrency)
	assert.Equal(t, 50.0, app.balance(t, aliceID))

	// Settle all five concurrently
	for i, endToEndID := range endToEndIDs {
		wg.Add(1)
		go func(idx int, e2e string) {
			defer wg.Done()
			resp := app.webhook(t, e2e, fmt.Sprintf("settle-%d", idx), "CONFIRMED")
			defer resp.Body.Close()
			_, _ = io.ReadAll(resp.Body)
		}(i, endToEndID)
	}
	wg.Wait()

	assert.Equal(t, 50.0, app.balance(t, aliceID))
	assert.Equal(t, 50.0, app.balance(t, bobID))
}

// TestConcurrentInitiations_InsufficientFunds races five transfers of
// 50.00 against a balance of 100.00. The wallet lease serializes the
// debits, so exactly two transfers reserve funds and three are refused.
func TestConcurrentInitiations_InsufficientFunds(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	aliceID := app.createWallet(t, "alice")
	bobID := app.createWallet(t, "bob")
	app.registerKey(t, bobID, "bob@example.com", "EMAIL")
	app.deposit(t, aliceID, "100.00")

	concurrency := 5

	var wg sync.WaitGroup
	var createdCount atomic.Int64
	var insufficientCount atomic.Int64
	var mu sync.Mutex
	var endToEndIDs []string

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			resp := app.initiate(t, fmt.Sprintf("broke-key-%d", idx), aliceID, "bob@example.com", "50.00")
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)

			switch resp.StatusCode {
			case http.StatusCreated:
				createdCount.Add(1)
				var transfer struct {
					EndToEndID string `json:"endToEndId"`
				}
				if json.Unmarshal(body, &transfer) == nil {
					mu.Lock()
					endToEndIDs = append(endToEndIDs, transfer.EndToEndID)
					mu.Unlock()
				}
			case http.StatusBadRequest:
				var errResp struct {
					ErrorCode string `json:"error_code"`
				}
				if json.Unmarshal(body, &errResp) == nil && errResp.ErrorCode == "INSUFFICIENT_FUNDS" {
					insufficientCount.Add(1)
				}
			}
		}(i)
	}

	wg.Wait()

	t.Logf("Racing initiations: %d created, %d refused (out of %d)",
		createdCount.Load(), insufficientCount.Load(), concurrency)

	assert.Equal(t, int64(2), createdCount.Load(), "only two transfers fit the balance")
	assert.Equal(t, int64(3), insufficientCount.Load())
	assert.Equal(t, 0.0, app.balance(t, aliceID))

	// The two reserved transfers still settle normally.
	for i, endToEndID := range endToEndIDs {
		resp := app.webhook(t, endToEndID, fmt.Sprintf("broke-settle-%d", i), "CONFIRMED")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}
	assert.Equal(t, 100.0, app.balance(t, bobID))
}

// TestConcurrentWebhookSettlement redelivers the settlement of one
// transfer from ten goroutines with distinct event ids. The state
// machine lets exactly one apply the credit.
func TestConcurrentWebhookSettlement(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	aliceID := app.createWallet(t, "alice")
	bobID := app.createWallet(t, "bob")
	app.registerKey(t, bobID, "bob@example.com", "EMAIL")
	app.deposit(t, aliceID, "100.00")

	resp := app.initiate(t, "key-1", aliceID, "bob@example.com", "10.00")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody(t, resp)
	endToEndID := created["endToEndId"].(string)

	concurrency := 10

	var wg sync.WaitGroup
	var okCount atomic.Int64

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			resp := app.webhook(t, endToEndID, fmt.Sprintf("evt-%d", idx), "CONFIRMED")
			defer resp.Body.Close()
			_, _ = io.ReadAll(resp.Body)

			if resp.StatusCode == http.StatusOK {
				okCount.Add(1)
			}
		}(i)
	}

	wg.Wait()

	assert.Equal(t, int64(concurrency), okCount.Load(), "every delivery is acknowledged")
	assert.Equal(t, 90.0, app.balance(t, aliceID))
	assert.Equal(t, 10.0, app.balance(t, bobID), "destination credited exactly once")

	resp = app.get(t, "/wallets/"+bobID+"/ledger")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decodeList(t, resp)
	assert.Len(t, entries, 1)
}

// TestConcurrentConflictingSettlements races CONFIRMED and REJECTED
// deliveries for the same transfer. Whichever claims the transfer first
// wins; money is conserved either way.
func TestConcurrentConflictingSettlements(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	aliceID := app.createWallet(t, "alice")
	bobID := app.createWallet(t, "bob")
	app.registerKey(t, bobID, "bob@example.com", "EMAIL")
	app.deposit(t, aliceID, "100.00")

	resp := app.initiate(t, "key-1", aliceID, "bob@example.com", "10.00")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody(t, resp)
	endToEndID := created["endToEndId"].(string)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		eventType := "CONFIRMED"
		if i%2 == 1 {
			eventType = "REJECTED"
		}
		wg.Add(1)
		go func(idx int, eventType string) {
			defer wg.Done()
			resp := app.webhook(t, endToEndID, fmt.Sprintf("evt-%d", idx), eventType)
			defer resp.Body.Close()
			_, _ = io.ReadAll(resp.Body)
		}(i, eventType)
	}
	wg.Wait()

	// Replaying the initiation reports the settled state
	resp = app.initiate(t, "key-1", aliceID, "bob@example.com", "10.00")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	settled := decodeBody(t, resp)
	status := settled["status"].(string)

	aliceBalance := app.balance(t, aliceID)
	bobBalance := app.balance(t, bobID)

	t.Logf("Conflicting settlements resolved to %s (alice=%.2f, bob=%.2f)", status, aliceBalance, bobBalance)

	switch status {
	case "CONFIRMED":
		assert.Equal(t, 90.0, aliceBalance)
		assert.Equal(t, 10.0, bobBalance)
	case "REJECTED":
		assert.Equal(t, 100.0, aliceBalance)
		assert.Equal(t, 0.0, bobBalance)
	default:
		t.Fatalf("transfer left non-terminal: %s", status)
	}
	assert.Equal(t, 100.0, aliceBalance+bobBalance, "money is conserved")
}
