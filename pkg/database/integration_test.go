package database

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestFullDatabaseWorkflow tests a complete end-to-end workflow with real disk I/O
func TestFullDatabaseWorkflow(t *testing.T) {
	// Create temporary data directory
	dataDir := filepath.Join(os.TempDir(), fmt.Sprintf("test-db-integration-%d", time.Now().UnixNano()))
	defer os.RemoveAll(dataDir)

	// Open database
	db, err := Open(DefaultConfig(dataDir))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// Create collection
	coll := db.Collection("users")

	// Insert documents
	docs := []map[string]interface{}{
		{"name": "Alice", "age": int64(30), "email": "alice@example.com", "active": true},
		{"name": "Bob", "age": int64(25), "email": "bob@example.com", "active": true},
		{"name": "Charlie", "age": int64(35), "email": "charlie@example.com", "active": false},
		{"name": "Diana", "age": int64(28), "email": "diana@example.com", "active": true},
	}

	var insertedIDs []interface{}
	for _, doc := range docs {
		id, err := coll.InsertOne(doc)
		if err != nil {
			t.Fatalf("Failed to insert document: %v", err)
		}
		insertedIDs = append(insertedIDs, id)
	}

	// Query by a single field
	results, err := coll.Find(map[string]interface{}{"age": map[string]interface{}{"$gte": int64(28)}})
	if err != nil {
		t.Fatalf("Failed to find documents: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("Expected 3 results, got %d", len(results))
	}

	// Query on multiple fields at once
	results, err = coll.Find(map[string]interface{}{"name": "Alice", "age": int64(30)})
	if err != nil {
		t.Fatalf("Failed to find with a multi-field filter: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Expected 1 result, got %d", len(results))
	}

	// Update document
	err = coll.UpdateOne(
		map[string]interface{}{"name": "Alice"},
		map[string]interface{}{"$set": map[string]interface{}{"age": int64(31)}},
	)
	if err != nil {
		t.Fatalf("Failed to update document: %v", err)
	}

	// Verify update
	results, err = coll.Find(map[string]interface{}{"name": "Alice"})
	if err != nil {
		t.Fatalf("Failed to find updated document: %v", err)
	}
	if age, _ := results[0].Get("age"); age.(int64) != 31 {
		t.Errorf("Expected age 31, got %d", age)
	}

	// Delete document
	err = coll.DeleteOne(map[string]interface{}{"name": "Charlie"})
	if err != nil {
		t.Fatalf("Failed to delete document: %v", err)
	}

	// Verify deletion
	results, err = coll.Find(map[string]interface{}{})
	if err != nil {
		t.Fatalf("Failed to find all documents: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("Expected 3 documents remaining, got %d", len(results))
	}

	// Close and reopen database
	db.Close()

	db, err = Open(DefaultConfig(dataDir))
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db.Close()

	// Verify data persisted
	coll = db.Collection("users")
	results, err = coll.Find(map[string]interface{}{})
	if err != nil {
		t.Fatalf("Failed to find documents after reopen: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("Expected 3 documents after reopen, got %d", len(results))
	}
}

// TestTransactionIntegration tests MVCC transactions with real storage
func TestTransactionIntegration(t *testing.T) {
	dataDir := filepath.Join(os.TempDir(), fmt.Sprintf("test-txn-integration-%d", time.Now().UnixNano()))
	defer os.RemoveAll(dataDir)

	db, err := Open(DefaultConfig(dataDir))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	coll := db.Collection("accounts")

	// Insert initial documents
	_, err = coll.InsertOne(map[string]interface{}{"account": "A", "balance": int64(1000)})
	if err != nil {
		t.Fatalf("Failed to insert document: %v", err)
	}
	_, err = coll.InsertOne(map[string]interface{}{"account": "B", "balance": int64(500)})
	if err != nil {
		t.Fatalf("Failed to insert document: %v", err)
	}

	// Start transaction
	session := db.StartSession()

	// Transfer money from A to B
	results, err := coll.Find(map[string]interface{}{"account": "A"})
	if err != nil {
		t.Fatalf("Failed to find account A: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 account A, got %d", len(results))
	}

	// Update both accounts
	err = coll.UpdateOne(
		map[string]interface{}{"account": "A"},
		map[string]interface{}{"$inc": map[string]interface{}{"balance": int64(-200)}},
	)
	if err != nil {
		t.Fatalf("Failed to update account A: %v", err)
	}

	err = coll.UpdateOne(
		map[string]interface{}{"account": "B"},
		map[string]interface{}{"$inc": map[string]interface{}{"balance": int64(200)}},
	)
	if err != nil {
		t.Fatalf("Failed to update account B: %v", err)
	}

	// Commit transaction
	if err := session.CommitTransaction(); err != nil {
		t.Fatalf("Failed to commit transaction: %v", err)
	}

	// Verify final balances
	results, err = coll.Find(map[string]interface{}{"account": "A"})
	if err != nil {
		t.Fatalf("Failed to find account A after commit: %v", err)
	}
	if balance, _ := results[0].Get("balance"); balance != nil {
		// Handle both int64 and float64
		var balanceVal int64
		switch v := balance.(type) {
		case int64:
			balanceVal = v
		case float64:
			balanceVal = int64(v)
		}
		if balanceVal != 800 {
			t.Errorf("Expected balance 800, got %d", balanceVal)
		}
	}

	results, err = coll.Find(map[string]interface{}{"account": "B"})
	if err != nil {
		t.Fatalf("Failed to find account B after commit: %v", err)
	}
	if balance, _ := results[0].Get("balance"); balance != nil {
		// Handle both int64 and float64
		var balanceVal int64
		switch v := balance.(type) {
		case int64:
			balanceVal = v
		case float64:
			balanceVal = int64(v)
		}
		if balanceVal != 700 {
			t.Errorf("Expected balance 700, got %d", balanceVal)
		}
	}
}

// TestCursorIntegration tests cursor functionality with large result sets
func TestCursorIntegration(t *testing.T) {
	dataDir := filepath.Join(os.TempDir(), fmt.Sprintf("test-cursor-integration-%d", time.Now().UnixNano()))
	defer os.RemoveAll(dataDir)

	db, err := Open(DefaultConfig(dataDir))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	coll := db.Collection("items")

	// Insert many documents
	numDocs := 250
	for i := 0; i < numDocs; i++ {
		doc := map[string]interface{}{
			"item":  fmt.Sprintf("item-%d", i),
			"value": int64(i * 10),
			"index": int64(i),
		}
		if _, err := coll.InsertOne(doc); err != nil {
			t.Fatalf("Failed to insert document: %v", err)
		}
	}

	// Create cursor with batch size of 50
	cursorOpts := &CursorOptions{BatchSize: 50, Timeout: 5 * time.Minute}
	cursor, err := coll.FindCursor(map[string]interface{}{}, cursorOpts)
	if err != nil {
		t.Fatalf("Failed to open cursor: %v", err)
	}

	// Iterate through all documents
	count := 0
	for cursor.HasNext() {
		_, err := cursor.Next()
		if err != nil {
			t.Fatalf("Failed to get next document: %v", err)
		}
		count++
	}

	if count != numDocs {
		t.Errorf("Expected %d documents from cursor, got %d", numDocs, count)
	}

	// Close cursor
	cursor.Close()
}

// TestMultiCollectionIntegration tests multiple collections in one database
func TestMultiCollectionIntegration(t *testing.T) {
	dataDir := filepath.Join(os.TempDir(), fmt.Sprintf("test-multi-coll-integration-%d", time.Now().UnixNano()))
	defer os.RemoveAll(dataDir)

	db, err := Open(DefaultConfig(dataDir))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// Create multiple collections
	users := db.Collection("users")
	orders := db.Collection("orders")
	products := db.Collection("products")

	// Insert into users
	userId, err := users.InsertOne(map[string]interface{}{"name": "John", "email": "john@example.com"})
	if err != nil {
		t.Fatalf("Failed to insert user: %v", err)
	}

	// Insert into products
	productId, err := products.InsertOne(map[string]interface{}{"name": "Widget", "price": int64(99)})
	if err != nil {
		t.Fatalf("Failed to insert product: %v", err)
	}

	// Insert into orders (referencing user and product)
	_, err = orders.InsertOne(map[string]interface{}{
		"userId":    userId,
		"productId": productId,
		"quantity":  int64(2),
		"total":     int64(198),
	})
	if err != nil {
		t.Fatalf("Failed to insert order: %v", err)
	}

	// Verify each collection has data
	userResults, _ := users.Find(map[string]interface{}{})
	if len(userResults) != 1 {
		t.Errorf("Expected 1 user, got %d", len(userResults))
	}

	productResults, _ := products.Find(map[string]interface{}{})
	if len(productResults) != 1 {
		t.Errorf("Expected 1 product, got %d", len(productResults))
	}

	orderResults, _ := orders.Find(map[string]interface{}{})
	if len(orderResults) != 1 {
		t.Errorf("Expected 1 order, got %d", len(orderResults))
	}

	// List all collections
	collections := db.ListCollections()
	if len(collections) != 3 {
		t.Errorf("Expected 3 collections, got %d", len(collections))
	}

	// Drop a collection
	if err := db.DropCollection("orders"); err != nil {
		t.Fatalf("Failed to drop collection: %v", err)
	}

	collections = db.ListCollections()
	if len(collections) != 2 {
		t.Errorf("Expected 2 collections after drop, got %d", len(collections))
	}
}

// TestUpdateOperatorsIntegration tests all update operators together
func TestUpdateOperatorsIntegration(t *testing.T) {
	dataDir := filepath.Join(os.TempDir(), fmt.Sprintf("test-update-integration-%d", time.Now().UnixNano()))
	defer os.RemoveAll(dataDir)

	db, err := Open(DefaultConfig(dataDir))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	coll := db.Collection("documents")

	// Insert test document
	docData := map[string]interface{}{
		"counter":  int64(10),
		"score":    int64(100),
		"tags":     []interface{}{"tag1", "tag2"},
		"oldField": "value",
		"numbers":  []interface{}{int64(1), int64(2), int64(3), int64(4)},
		"bits":     int64(5), // binary: 0101
	}
	_, err = coll.InsertOne(docData)
	if err != nil {
		t.Fatalf("Failed to insert document: %v", err)
	}

	// Test $inc (use counter field as filter instead of _id)
	err = coll.UpdateOne(
		map[string]interface{}{"counter": int64(10)},
		map[string]interface{}{"$inc": map[string]interface{}{"counter": int64(5)}},
	)
	if err != nil {
		t.Fatalf("Failed to $inc: %v", err)
	}

	// Test $mul
	err = coll.UpdateOne(
		map[string]interface{}{"score": int64(100)},
		map[string]interface{}{"$mul": map[string]interface{}{"score": int64(2)}},
	)
	if err != nil {
		t.Fatalf("Failed to $mul: %v", err)
	}

	// Test $push
	err = coll.UpdateOne(
		map[string]interface{}{"counter": int64(15)}, // counter is now 15 after $inc
		map[string]interface{}{"$push": map[string]interface{}{"tags": "tag3"}},
	)
	if err != nil {
		t.Fatalf("Failed to $push: %v", err)
	}

	// Test $pull
	err = coll.UpdateOne(
		map[string]interface{}{"counter": int64(15)},
		map[string]interface{}{"$pull": map[string]interface{}{"tags": "tag1"}},
	)
	if err != nil {
		t.Fatalf("Failed to $pull: %v", err)
	}

	// Test $rename
	err = coll.UpdateOne(
		map[string]interface{}{"counter": int64(15)},
		map[string]interface{}{"$rename": map[string]interface{}{"oldField": "newField"}},
	)
	if err != nil {
		t.Fatalf("Failed to $rename: %v", err)
	}

	// Test $pop (remove last element)
	err = coll.UpdateOne(
		map[string]interface{}{"counter": int64(15)},
		map[string]interface{}{"$pop": map[string]interface{}{"numbers": int64(1)}},
	)
	if err != nil {
		t.Fatalf("Failed to $pop: %v", err)
	}

	// Test $bit (bitwise AND with 3 = 0011, so 0101 & 0011 = 0001 = 1)
	err = coll.UpdateOne(
		map[string]interface{}{"counter": int64(15)},
		map[string]interface{}{"$bit": map[string]interface{}{
			"bits": map[string]interface{}{"and": int64(3)},
		}},
	)
	if err != nil {
		t.Fatalf("Failed to $bit: %v", err)
	}

	// Verify all updates
	results, err := coll.Find(map[string]interface{}{"counter": int64(15)})
	if err != nil {
		t.Fatalf("Failed to find document: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 document, got %d", len(results))
	}

	doc := results[0]

	// Verify $inc: 10 + 5 = 15
	if counter, _ := doc.Get("counter"); counter != nil {
		var counterVal int64
		switch v := counter.(type) {
		case int64:
			counterVal = v
		case float64:
			counterVal = int64(v)
		}
		if counterVal != 15 {
			t.Errorf("Expected counter 15, got %d", counterVal)
		}
	}

	// Verify $mul: 100 * 2 = 200
	if score, _ := doc.Get("score"); score != nil {
		var scoreVal int64
		switch v := score.(type) {
		case int64:
			scoreVal = v
		case float64:
			scoreVal = int64(v)
		}
		if scoreVal != 200 {
			t.Errorf("Expected score 200, got %d", scoreVal)
		}
	}

	// Verify $push and $pull: ["tag2", "tag3"]
	if tagsVal, _ := doc.Get("tags"); tagsVal != nil {
		tags := tagsVal.([]interface{})
		if len(tags) != 2 {
			t.Errorf("Expected 2 tags, got %d", len(tags))
		}
	}

	// Verify $rename
	if _, exists := doc.Get("newField"); !exists {
		t.Error("Expected newField to exist after rename")
	}
	if _, exists := doc.Get("oldField"); exists {
		t.Error("Expected oldField to not exist after rename")
	}

	// Verify $pop: [1, 2, 3] (removed last element 4)
	if numbersVal, _ := doc.Get("numbers"); numbersVal != nil {
		numbers := numbersVal.([]interface{})
		if len(numbers) != 3 {
			t.Errorf("Expected 3 numbers after pop, got %d", len(numbers))
		}
	}

	// Verify $bit: 5 & 3 = 1
	if bits, _ := doc.Get("bits"); bits != nil {
		var bitsVal int64
		switch v := bits.(type) {
		case int64:
			bitsVal = v
		case float64:
			bitsVal = int64(v)
		}
		if bitsVal != 1 {
			t.Errorf("Expected bits 1, got %d", bitsVal)
		}
	}
}

// TestConcurrentOperationsIntegration tests concurrent database operations
func TestConcurrentOperationsIntegration(t *testing.T) {
	dataDir := filepath.Join(os.TempDir(), fmt.Sprintf("test-concurrent-integration-%d", time.Now().UnixNano()))
	defer os.RemoveAll(dataDir)

	db, err := Open(DefaultConfig(dataDir))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	coll := db.Collection("concurrent")

	// Insert initial document with a unique identifier
	docData := map[string]interface{}{"name": "test-counter", "counter": int64(0)}
	_, err = coll.InsertOne(docData)
	if err != nil {
		t.Fatalf("Failed to insert document: %v", err)
	}

	// Run 100 concurrent increments
	numGoroutines := 100
	done := make(chan bool, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			err := coll.UpdateOne(
				map[string]interface{}{"name": "test-counter"},
				map[string]interface{}{"$inc": map[string]interface{}{"counter": int64(1)}},
			)
			if err != nil {
				t.Errorf("Concurrent update failed: %v", err)
			}
			done <- true
		}()
	}

	// Wait for all goroutines
	for i := 0; i < numGoroutines; i++ {
		<-done
	}

	// Verify final counter value
	results, err := coll.Find(map[string]interface{}{"name": "test-counter"})
	if err != nil {
		t.Fatalf("Failed to find document: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 document, got %d", len(results))
	}

	if counter, _ := results[0].Get("counter"); counter != nil {
		var counterVal int64
		switch v := counter.(type) {
		case int64:
			counterVal = v
		case float64:
			counterVal = int64(v)
		}
		if counterVal != int64(numGoroutines) {
			t.Errorf("Expected counter %d, got %d", numGoroutines, counterVal)
		}
	}
}
