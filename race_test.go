package pgbroker_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	pgbroker "github.com/pgbroker/pgbroker"
	"github.com/pgbroker/pgbroker/internal/errprompt"
)

// Run with -race. These tests have no assertions beyond "no data race and no
// lost update" — the registry is the broker's main shared structure.

func TestRace_RegisterSameString(t *testing.T) {
	provider := newFakeProvider()
	r := pgbroker.NewRegistry(provider.provide, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := r.Register(context.Background(), "postgres://localhost/shared"); err != nil {
					t.Errorf("Register failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := provider.createdCount("postgres://localhost/shared"); got != 1 {
		t.Errorf("expected 1 pool creation total, got %d", got)
	}
}

func TestRace_RegisterDistinctStrings(t *testing.T) {
	provider := newFakeProvider()
	r := pgbroker.NewRegistry(provider.provide, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connString := fmt.Sprintf("postgres://localhost/db%d", i)
			for j := 0; j < 50; j++ {
				if _, err := r.Register(context.Background(), connString); err != nil {
					t.Errorf("Register failed: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	if r.Len() != 10 {
		t.Errorf("expected 10 handles, got %d", r.Len())
	}
}

func TestRace_RegisterCloseAcquire(t *testing.T) {
	provider := newFakeProvider()
	r := pgbroker.NewRegistry(provider.provide, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connString := fmt.Sprintf("postgres://localhost/churn%d", i%4)
			for j := 0; j < 50; j++ {
				id, err := r.Register(context.Background(), connString)
				if err != nil {
					t.Errorf("Register failed: %v", err)
					return
				}
				// Acquire may race with another goroutine's Close; unknown
				// ID is an acceptable outcome, a panic is not.
				if conn, err := r.Acquire(context.Background(), id); err == nil {
					conn.Release()
				}
				_ = r.Close(id)
			}
		}(i)
	}
	wg.Wait()

	r.CloseAll()
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
}

func TestRace_ConcurrentErrorPrompt(t *testing.T) {
	m, err := errprompt.NewMatcher([]errprompt.Rule{
		{Pattern: `permission denied`, Message: "You don't have permission."},
		{Pattern: `syntax error`, Message: "Check your SQL syntax."},
		{Pattern: `does not exist`, Message: "The table or column may not exist."},
	})
	if err != nil {
		t.Fatalf("NewMatcher failed: %v", err)
	}

	errorMsgs := []string{
		"permission denied for table users",
		"syntax error at or near SELECT",
		`relation "foo" does not exist`,
		"connection refused",
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				msg := errorMsgs[(id+j)%len(errorMsgs)]
				_ = m.Match(msg)
				_ = m.MatchedPatterns(msg)
			}
		}(i)
	}
	wg.Wait()
}

func TestRace_ConcurrentQueriesOneBroker(t *testing.T) {
	provider := func(ctx context.Context, connString string) (pgbroker.Pool, error) {
		return &fakePool{}, nil
	}
	b, err := pgbroker.New(defaultConfig(), testLogger(), pgbroker.WithPoolProvider(provider))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	connID, err := b.Connect(context.Background(), "postgres://localhost/fake")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				output := b.Query(context.Background(), pgbroker.QueryInput{ConnID: connID, SQL: "SELECT 1"})
				if output.Error != "" {
					t.Errorf("Query failed: %s", output.Error)
					return
				}
			}
		}()
	}
	wg.Wait()
}
