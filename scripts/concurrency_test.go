//go:build ignore
// +build ignore

// Package main provides a manual concurrency stress test for the borrow API.
//
// Usage:
//
//	go run ./scripts/concurrency_test.go <copy_id> <reader1_id> [reader2_id ...]
//
// Or use the convenience environment variables:
//
//	COPY_ID=<uuid>  READER_IDS=<uuid1>,<uuid2>,...  go run ./scripts/concurrency_test.go
//
// What it does:
//  1. Fires N goroutines (one per reader) all attempting to borrow the same
//     copy simultaneously.
//  2. Prints how many won the copy (201) vs. lost the availability race (409).
//     Exactly one winner is the correct outcome for a single AVAILABLE copy.
//
// Prerequisites:
//   - Server must be running and migrated.
//   - The copy and all readers must exist; the copy must be AVAILABLE.

package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultServerAddr = "http://localhost:8080"

type borrowResult struct {
	ReaderID   string
	StatusCode int
	Body       string
	Err        error
}

func main() {
	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = defaultServerAddr
	}

	copyID := os.Getenv("COPY_ID")
	readerIDsEnv := os.Getenv("READER_IDS")

	var readerIDs []string
	if readerIDsEnv != "" {
		readerIDs = strings.Split(readerIDsEnv, ",")
	}

	// Support positional args: script <copy_id> [reader_ids...]
	args := os.Args[1:]
	if len(args) >= 1 {
		copyID = args[0]
	}
	if len(args) >= 2 {
		readerIDs = args[1:]
	}

	if copyID == "" {
		log.Fatal("Usage: COPY_ID=<uuid> READER_IDS=<u1,u2,...> go run ./scripts/concurrency_test.go\n" +
			"  or: go run ./scripts/concurrency_test.go <copy_id> <reader1_id> [reader2_id ...]")
	}
	if len(readerIDs) == 0 {
		log.Fatal("At least one reader ID must be provided via READER_IDS env or positional args")
	}

	fmt.Printf("=== Borrow Concurrency Test ===\n")
	fmt.Printf("Server  : %s\n", serverAddr)
	fmt.Printf("Copy    : %s\n", copyID)
	fmt.Printf("Readers : %d\n\n", len(readerIDs))

	results := make([]borrowResult, len(readerIDs))
	var wg sync.WaitGroup

	// Fire all goroutines simultaneously using a barrier.
	start := make(chan struct{})

	for i, rid := range readerIDs {
		wg.Add(1)
		go func(idx int, readerID string) {
			defer wg.Done()
			<-start // wait for the barrier
			results[idx] = attemptBorrow(serverAddr, copyID, strings.TrimSpace(readerID))
		}(i, rid)
	}

	fmt.Println("Firing all requests simultaneously...")
	close(start)

	wg.Wait()
	fmt.Println("All requests completed.")
	fmt.Println()

	var wins, conflicts, failures int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failures++
			fmt.Printf("  [ERR ] reader=%-38s err=%v\n", r.ReaderID, r.Err)
		case r.StatusCode == http.StatusCreated:
			wins++
			fmt.Printf("  [WIN ] reader=%-38s status=%d\n", r.ReaderID, r.StatusCode)
		case r.StatusCode == http.StatusConflict:
			conflicts++
			fmt.Printf("  [LOST] reader=%-38s status=%d\n", r.ReaderID, r.StatusCode)
		default:
			failures++
			fmt.Printf("  [FAIL] reader=%-38s status=%d body=%s\n", r.ReaderID, r.StatusCode, r.Body)
		}
	}

	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Winners   : %d\n", wins)
	fmt.Printf("Conflicts : %d\n", conflicts)
	fmt.Printf("Failures  : %d\n", failures)
	fmt.Printf("Total     : %d\n\n", len(readerIDs))

	fmt.Println("--- Invariant Check ---")
	fmt.Println("The availability compare-and-swap admits exactly one borrower per copy;")
	fmt.Println("the partial unique index (idx_one_active_loan) backs it at the DB level.")
	if wins != 1 {
		fmt.Printf("\n[FAILURE] expected exactly 1 winner, got %d\n", wins)
		os.Exit(1)
	}
	if failures > 0 {
		fmt.Printf("\n[WARNING] %d request(s) failed, check server logs for details.\n", failures)
		os.Exit(1)
	}
	fmt.Println("\nOK: exactly one winner, everyone else got a clean conflict.")
}

// attemptBorrow sends POST /copies/{copyID}/borrow for the given readerID.
func attemptBorrow(serverAddr, copyID, readerID string) borrowResult {
	url := fmt.Sprintf("%s/copies/%s/borrow", serverAddr, copyID)
	body := fmt.Sprintf(`{"reader_id":%q}`, readerID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		return borrowResult{ReaderID: readerID, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	return borrowResult{
		ReaderID:   readerID,
		StatusCode: resp.StatusCode,
		Body:       string(raw),
	}
}
