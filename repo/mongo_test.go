package repo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"eventdesk/clock"
	"eventdesk/db"
)

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("TEST_MONGODB_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Transactions need a replica set; TEST_MONGODB_TRANSACTIONS opts in.
	transactions := os.Getenv("TEST_MONGODB_TRANSACTIONS") == "true"

	var n int
	runStoreContract(t, transactions, func(t *testing.T) Store {
		n++
		conn, err := db.Connect(ctx, uri, fmt.Sprintf("eventdesk_test_%d_%d", time.Now().UnixNano(), n))
		if err != nil {
			t.Skipf("skipping Mongo integration tests: %v", err)
		}
		if err := conn.EnsureIndexes(ctx); err != nil {
			t.Fatalf("indexes: %v", err)
		}
		t.Cleanup(func() {
			_ = conn.Events.Database().Drop(context.Background())
			_ = conn.Close(context.Background())
		})
		return NewMongoStore(conn, clock.NewFixed(fixedNow), transactions)
	})
}
