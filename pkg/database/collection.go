package database

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mnohosten/laura-db/pkg/document"
	"github.com/mnohosten/laura-db/pkg/mvcc"
)

// Collection represents a collection of documents
type Collection struct {
	name      string
	documents map[string]*document.Document // _id -> document
	txnMgr    *mvcc.TransactionManager
	mu        sync.RWMutex
}

// NewCollection creates a new collection
func NewCollection(name string, txnMgr *mvcc.TransactionManager) *Collection {
	return &Collection{
		name:      name,
		documents: make(map[string]*document.Document),
		txnMgr:    txnMgr,
	}
}

// InsertOne inserts a single document
func (c *Collection) InsertOne(doc map[string]interface{}) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Create document
	d := document.NewDocumentFromMap(doc)

	// Generate _id if not provided
	var id string
	if idVal, exists := d.Get("_id"); exists {
		id = fmt.Sprintf("%v", idVal)
	} else {
		objectID := document.NewObjectID()
		d.Set("_id", objectID)
		id = objectID.Hex()
	}

	// Check if document already exists
	if _, exists := c.documents[id]; exists {
		return "", fmt.Errorf("document with _id %s already exists", id)
	}

	c.documents[id] = d

	return id, nil
}

// InsertMany inserts multiple documents
func (c *Collection) InsertMany(docs []map[string]interface{}) ([]string, error) {
	ids := make([]string, 0, len(docs))

	for _, doc := range docs {
		id, err := c.InsertOne(doc)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// FindOne finds a single document matching the filter
func (c *Collection) FindOne(filter map[string]interface{}) (*document.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.findOneInternal(filter)
}

// Find finds all documents matching the filter
func (c *Collection) Find(filter map[string]interface{}) ([]*document.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.findInternal(filter)
}

// FindCursor returns a server-side cursor over the documents matching filter.
func (c *Collection) FindCursor(filter map[string]interface{}, options *CursorOptions) (*Cursor, error) {
	return NewCursor(c, filter, options)
}

// FindCursorWithOptions returns a server-side cursor over the documents
// matching filter, after applying projection, sort, skip, and limit.
func (c *Collection) FindCursorWithOptions(filter map[string]interface{}, queryOptions *QueryOptions, options *CursorOptions) (*Cursor, error) {
	results, err := c.FindWithOptions(filter, queryOptions)
	if err != nil {
		return nil, err
	}
	return newResultCursor(c, filter, results, options)
}

// FindWithOptions finds documents with query options: sort, skip, limit,
// and projection, applied in that order after the filter scan.
func (c *Collection) FindWithOptions(filter map[string]interface{}, options *QueryOptions) ([]*document.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	docs, err := c.findInternal(filter)
	if err != nil {
		return nil, err
	}

	if options == nil {
		return docs, nil
	}

	if len(options.Sort) > 0 {
		sortDocuments(docs, options.Sort)
	}

	if options.Skip > 0 {
		if options.Skip >= len(docs) {
			docs = []*document.Document{}
		} else {
			docs = docs[options.Skip:]
		}
	}

	if options.Limit > 0 && options.Limit < len(docs) {
		docs = docs[:options.Limit]
	}

	if options.Projection != nil {
		for i, doc := range docs {
			docs[i] = applyProjection(doc, options.Projection)
		}
	}

	return docs, nil
}

// sortDocuments orders docs in place by the given sort fields, applied in
// priority order: later fields only break ties left by earlier ones.
func sortDocuments(docs []*document.Document, fields []SortField) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			vi, _ := docs[i].Get(f.Field)
			vj, _ := docs[j].Get(f.Field)
			cmp := compareOrdered(vi, vj)
			if cmp == 0 {
				continue
			}
			if f.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})
}

// applyProjection returns a copy of doc restricted to (or excluding) the
// fields named in projection, following the inclusion-vs-exclusion rule:
// a projection mixing any "true" entries is treated as inclusion-only.
func applyProjection(doc *document.Document, projection map[string]bool) *document.Document {
	isInclusion := false
	for _, include := range projection {
		if include {
			isInclusion = true
			break
		}
	}

	result := document.NewDocument()
	if isInclusion {
		for field, include := range projection {
			if include {
				if value, exists := doc.Get(field); exists {
					result.Set(field, value)
				}
			}
		}
		return result
	}

	for _, key := range doc.Keys() {
		if exclude, exists := projection[key]; !exists || !exclude {
			if value, exists := doc.Get(key); exists {
				result.Set(key, value)
			}
		}
	}
	return result
}

// UpdateOne updates a single document matching the filter
func (c *Collection) UpdateOne(filter map[string]interface{}, update map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.findOneInternal(filter)
	if err != nil {
		return err
	}

	return c.applyUpdate(doc, update)
}

// UpdateMany updates all documents matching the filter
func (c *Collection) UpdateMany(filter map[string]interface{}, update map[string]interface{}) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	docs, err := c.findInternal(filter)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, doc := range docs {
		if err := c.applyUpdate(doc, update); err != nil {
			return count, err
		}
		count++
	}

	return count, nil
}

// applyUpdate applies an update to a document
func (c *Collection) applyUpdate(doc *document.Document, update map[string]interface{}) error {
	for key, value := range update {
		if key == "$set" {
			// $set operator
			if setMap, ok := value.(map[string]interface{}); ok {
				for field, val := range setMap {
					doc.Set(field, val)
				}
			}
		} else if key == "$unset" {
			// $unset operator
			if unsetMap, ok := value.(map[string]interface{}); ok {
				for field := range unsetMap {
					doc.Delete(field)
				}
			}
		} else if key == "$inc" {
			// $inc operator
			if incMap, ok := value.(map[string]interface{}); ok {
				for field, incVal := range incMap {
					if currentVal, exists := doc.Get(field); exists {
						if currentNum, ok := toFloat64(currentVal); ok {
							if incNum, ok := toFloat64(incVal); ok {
								doc.Set(field, currentNum+incNum)
							}
						}
					}
				}
			}
		} else if key == "$mul" {
			// $mul operator - multiply field by value
			if mulMap, ok := value.(map[string]interface{}); ok {
				for field, mulVal := range mulMap {
					if currentVal, exists := doc.Get(field); exists {
						if currentNum, ok := toFloat64(currentVal); ok {
							if mulNum, ok := toFloat64(mulVal); ok {
								doc.Set(field, currentNum*mulNum)
							}
						}
					} else {
						// Field doesn't exist, set to 0 (MongoDB behavior)
						doc.Set(field, 0)
					}
				}
			}
		} else if key == "$min" {
			// $min operator - update field if value is less than current
			if minMap, ok := value.(map[string]interface{}); ok {
				for field, minVal := range minMap {
					if currentVal, exists := doc.Get(field); exists {
						if currentNum, ok := toFloat64(currentVal); ok {
							if minNum, ok := toFloat64(minVal); ok {
								if minNum < currentNum {
									doc.Set(field, minNum)
								}
							}
						}
					} else {
						// Field doesn't exist, set to minVal (MongoDB behavior)
						doc.Set(field, minVal)
					}
				}
			}
		} else if key == "$max" {
			// $max operator - update field if value is greater than current
			if maxMap, ok := value.(map[string]interface{}); ok {
				for field, maxVal := range maxMap {
					if currentVal, exists := doc.Get(field); exists {
						if currentNum, ok := toFloat64(currentVal); ok {
							if maxNum, ok := toFloat64(maxVal); ok {
								if maxNum > currentNum {
									doc.Set(field, maxNum)
								}
							}
						}
					} else {
						// Field doesn't exist, set to maxVal (MongoDB behavior)
						doc.Set(field, maxVal)
					}
				}
			}
		} else if key == "$push" {
			// $push operator - add element(s) to array
			if pushMap, ok := value.(map[string]interface{}); ok {
				for field, pushVal := range pushMap {
					// Check if using $each modifier for bulk push
					var valuesToPush []interface{}
					if modifierMap, ok := pushVal.(map[string]interface{}); ok {
						if eachValues, hasEach := modifierMap["$each"]; hasEach {
							// $each modifier - push multiple values
							if eachArray, ok := eachValues.([]interface{}); ok {
								valuesToPush = eachArray
							}
						}
					}

					// If no $each modifier, push single value
					if valuesToPush == nil {
						valuesToPush = []interface{}{pushVal}
					}

					if currentVal, exists := doc.Get(field); exists {
						// Field exists, append to array
						if arr, ok := currentVal.([]interface{}); ok {
							arr = append(arr, valuesToPush...)
							doc.Set(field, arr)
						}
					} else {
						// Field doesn't exist, create new array
						doc.Set(field, valuesToPush)
					}
				}
			}
		} else if key == "$pull" {
			// $pull operator - remove elements matching value
			if pullMap, ok := value.(map[string]interface{}); ok {
				for field, pullVal := range pullMap {
					if currentVal, exists := doc.Get(field); exists {
						if arr, ok := currentVal.([]interface{}); ok {
							newArr := make([]interface{}, 0)
							for _, elem := range arr {
								if !compareValues2(elem, pullVal) {
									newArr = append(newArr, elem)
								}
							}
							doc.Set(field, newArr)
						}
					}
				}
			}
		} else if key == "$addToSet" {
			// $addToSet operator - add element(s) only if not already in array
			if addMap, ok := value.(map[string]interface{}); ok {
				for field, addVal := range addMap {
					// Check if using $each modifier for bulk addToSet
					var valuesToAdd []interface{}
					if modifierMap, ok := addVal.(map[string]interface{}); ok {
						if eachValues, hasEach := modifierMap["$each"]; hasEach {
							// $each modifier - add multiple unique values
							if eachArray, ok := eachValues.([]interface{}); ok {
								valuesToAdd = eachArray
							}
						}
					}

					// If no $each modifier, add single value
					if valuesToAdd == nil {
						valuesToAdd = []interface{}{addVal}
					}

					if currentVal, exists := doc.Get(field); exists {
						// Field exists, check each value and add if not present
						if arr, ok := currentVal.([]interface{}); ok {
							for _, val := range valuesToAdd {
								found := false
								for _, elem := range arr {
									if compareValues2(elem, val) {
										found = true
										break
									}
								}
								if !found {
									arr = append(arr, val)
								}
							}
							doc.Set(field, arr)
						}
					} else {
						// Field doesn't exist, create new array with unique values
						uniqueVals := make([]interface{}, 0)
						for _, val := range valuesToAdd {
							found := false
							for _, existing := range uniqueVals {
								if compareValues2(existing, val) {
									found = true
									break
								}
							}
							if !found {
								uniqueVals = append(uniqueVals, val)
							}
						}
						doc.Set(field, uniqueVals)
					}
				}
			}
		} else if key == "$pop" {
			// $pop operator - remove first (-1) or last (1) element from array
			if popMap, ok := value.(map[string]interface{}); ok {
				for field, popVal := range popMap {
					if currentVal, exists := doc.Get(field); exists {
						if arr, ok := currentVal.([]interface{}); ok {
							if len(arr) > 0 {
								if popInt, ok := toFloat64(popVal); ok {
									if popInt < 0 {
										// Remove first element
										doc.Set(field, arr[1:])
									} else {
										// Remove last element
										doc.Set(field, arr[:len(arr)-1])
									}
								}
							}
						}
					}
				}
			}
		} else if key == "$rename" {
			// $rename operator - rename a field
			if renameMap, ok := value.(map[string]interface{}); ok {
				for oldField, newFieldVal := range renameMap {
					if newField, ok := newFieldVal.(string); ok {
						// Get value from old field
						if val, exists := doc.Get(oldField); exists {
							// Set new field
							doc.Set(newField, val)
							// Delete old field
							doc.Delete(oldField)
						}
					}
				}
			}
		} else if key == "$currentDate" {
			// $currentDate operator - set field to current date/time
			if dateMap, ok := value.(map[string]interface{}); ok {
				for field, typeSpec := range dateMap {
					// Check if user wants timestamp or date (default is date)
					useTimestamp := false
					if specMap, ok := typeSpec.(map[string]interface{}); ok {
						if typeVal, ok := specMap["$type"]; ok {
							if typeStr, ok := typeVal.(string); ok {
								useTimestamp = (typeStr == "timestamp")
							}
						}
					}

					// Set current time
					if useTimestamp {
						doc.Set(field, time.Now().Unix())
					} else {
						doc.Set(field, time.Now())
					}
				}
			}
		} else if key == "$pullAll" {
			// $pullAll operator - remove all instances of multiple values from array
			if pullAllMap, ok := value.(map[string]interface{}); ok {
				for field, pullValues := range pullAllMap {
					if currentVal, exists := doc.Get(field); exists {
						if arr, ok := currentVal.([]interface{}); ok {
							if valuesToRemove, ok := pullValues.([]interface{}); ok {
								// Create a map for O(1) lookup
								removeMap := make(map[interface{}]bool)
								for _, v := range valuesToRemove {
									removeMap[v] = true
								}

								// Filter array
								newArr := make([]interface{}, 0)
								for _, elem := range arr {
									// Check if element should be removed
									shouldRemove := false
									for removeVal := range removeMap {
										if compareValues2(elem, removeVal) {
											shouldRemove = true
											break
										}
									}
									if !shouldRemove {
										newArr = append(newArr, elem)
									}
								}
								doc.Set(field, newArr)
							}
						}
					}
				}
			}
		} else if key == "$bit" {
			// $bit operator - perform bitwise operations (and, or, xor)
			if bitMap, ok := value.(map[string]interface{}); ok {
				for field, operations := range bitMap {
					if opMap, ok := operations.(map[string]interface{}); ok {
						if currentVal, exists := doc.Get(field); exists {
							if currentInt, ok := toInt64(currentVal); ok {
								result := currentInt

								// Apply bitwise AND
								if andVal, hasAnd := opMap["and"]; hasAnd {
									if andInt, ok := toInt64(andVal); ok {
										result = result & andInt
									}
								}

								// Apply bitwise OR
								if orVal, hasOr := opMap["or"]; hasOr {
									if orInt, ok := toInt64(orVal); ok {
										result = result | orInt
									}
								}

								// Apply bitwise XOR
								if xorVal, hasXor := opMap["xor"]; hasXor {
									if xorInt, ok := toInt64(xorVal); ok {
										result = result ^ xorInt
									}
								}

								doc.Set(field, result)
							}
						} else {
							// Field doesn't exist, initialize to 0 and apply operations
							result := int64(0)

							// Apply bitwise AND
							if andVal, hasAnd := opMap["and"]; hasAnd {
								if andInt, ok := toInt64(andVal); ok {
									result = result & andInt
								}
							}

							// Apply bitwise OR
							if orVal, hasOr := opMap["or"]; hasOr {
								if orInt, ok := toInt64(orVal); ok {
									result = result | orInt
								}
							}

							// Apply bitwise XOR
							if xorVal, hasXor := opMap["xor"]; hasXor {
								if xorInt, ok := toInt64(xorVal); ok {
									result = result ^ xorInt
								}
							}

							doc.Set(field, result)
						}
					}
				}
			}
		} else {
			// Direct field update
			doc.Set(key, value)
		}
	}

	return nil
}

// DeleteOne deletes a single document matching the filter
func (c *Collection) DeleteOne(filter map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.findOneInternal(filter)
	if err != nil {
		return err
	}

	idVal, _ := doc.Get("_id")
	id := fmt.Sprintf("%v", idVal)
	delete(c.documents, id)

	return nil
}

// DeleteMany deletes all documents matching the filter
func (c *Collection) DeleteMany(filter map[string]interface{}) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	docs, err := c.findInternal(filter)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, doc := range docs {
		idVal, _ := doc.Get("_id")
		id := fmt.Sprintf("%v", idVal)
		delete(c.documents, id)
		count++
	}

	return count, nil
}

// Count returns the number of documents matching the filter
func (c *Collection) Count(filter map[string]interface{}) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	docs, err := c.findInternal(filter)
	return len(docs), err
}

// Name returns the collection name
func (c *Collection) Name() string {
	return c.name
}

// Stats returns collection statistics
func (c *Collection) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]interface{}{
		"name":  c.name,
		"count": len(c.documents),
	}
}

// findOneInternal finds one document (caller must hold lock)
func (c *Collection) findOneInternal(filter map[string]interface{}) (*document.Document, error) {
	docs, err := c.findInternal(filter)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrDocumentNotFound
	}
	return docs[0], nil
}

// findInternal finds documents (caller must hold lock)
func (c *Collection) findInternal(filter map[string]interface{}) ([]*document.Document, error) {
	docs := make([]*document.Document, 0, len(c.documents))
	for _, doc := range c.documents {
		matches, err := matchesQuery(doc, filter)
		if err != nil {
			return nil, err
		}
		if matches {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	default:
		return 0, false
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case float64:
		return int64(val), true
	default:
		return 0, false
	}
}

// compareValues2 compares two values for equality (for array operations)
func compareValues2(a, b interface{}) bool {
	// Try numeric comparison
	aVal, aOk := toFloat64(a)
	bVal, bOk := toFloat64(b)
	if aOk && bOk {
		return aVal == bVal
	}

	// String comparison
	aStr, aOk := a.(string)
	bStr, bOk := b.(string)
	if aOk && bOk {
		return aStr == bStr
	}

	// Boolean comparison
	aBool, aOk := a.(bool)
	bBool, bOk := b.(bool)
	if aOk && bOk {
		return aBool == bBool
	}

	// Direct comparison for other types
	return a == b
}
