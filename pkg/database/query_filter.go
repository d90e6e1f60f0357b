package database

import (
	"fmt"
	"reflect"
	"regexp"

	"github.com/mnohosten/laura-db/pkg/document"
)

// matchesQuery reports whether doc satisfies filter. It supports the
// comparison operators ($eq, $ne, $gt, $gte, $lt, $lte, $in, $nin), the
// element operator $exists, the evaluation operator $regex, and the
// logical operators $and/$or, alongside plain field equality.
func matchesQuery(doc *document.Document, filter map[string]interface{}) (bool, error) {
	for key, value := range filter {
		switch key {
		case "$and":
			ok, err := matchesConjunction(doc, value, true)
			if err != nil || !ok {
				return false, err
			}
			continue
		case "$or":
			ok, err := matchesConjunction(doc, value, false)
			if err != nil || !ok {
				return false, err
			}
			continue
		}

		fieldValue, exists := doc.Get(key)

		operatorMap, ok := value.(map[string]interface{})
		if !ok {
			if !exists || !valuesEqual(fieldValue, value) {
				return false, nil
			}
			continue
		}

		for op, opValue := range operatorMap {
			result, err := evaluateOperator(op, fieldValue, exists, opValue)
			if err != nil {
				return false, err
			}
			if !result {
				return false, nil
			}
		}
	}

	return true, nil
}

// matchesConjunction evaluates an $and (all=true) or $or (all=false) clause.
func matchesConjunction(doc *document.Document, value interface{}, all bool) (bool, error) {
	conditions, ok := value.([]interface{})
	if !ok {
		return false, fmt.Errorf("expected an array of conditions")
	}

	for _, condition := range conditions {
		condMap, ok := condition.(map[string]interface{})
		if !ok {
			return false, fmt.Errorf("invalid condition: %v", condition)
		}

		result, err := matchesQuery(doc, condMap)
		if err != nil {
			return false, err
		}
		if result && !all {
			return true, nil
		}
		if !result && all {
			return false, nil
		}
	}

	return all, nil
}

func evaluateOperator(op string, fieldValue interface{}, exists bool, opValue interface{}) (bool, error) {
	if op == "$exists" {
		want, ok := opValue.(bool)
		if !ok {
			return false, fmt.Errorf("$exists requires a boolean value")
		}
		return exists == want, nil
	}

	if !exists {
		return false, nil
	}

	switch op {
	case "$eq":
		return valuesEqual(fieldValue, opValue), nil
	case "$ne":
		return !valuesEqual(fieldValue, opValue), nil
	case "$gt":
		return compareOrdered(fieldValue, opValue) > 0, nil
	case "$gte":
		return compareOrdered(fieldValue, opValue) >= 0, nil
	case "$lt":
		return compareOrdered(fieldValue, opValue) < 0, nil
	case "$lte":
		return compareOrdered(fieldValue, opValue) <= 0, nil
	case "$in":
		return valueInSlice(fieldValue, opValue), nil
	case "$nin":
		return !valueInSlice(fieldValue, opValue), nil
	case "$regex":
		return evaluateRegex(fieldValue, opValue)
	default:
		return false, fmt.Errorf("unsupported operator: %s", op)
	}
}

func valuesEqual(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	return compareValues2(a, b)
}

// compareOrdered returns -1, 0, or 1 comparing a to b numerically if both
// are numbers, lexically if both are strings, and 0 (unordered) otherwise.
func compareOrdered(a, b interface{}) int {
	if aVal, ok := toFloat64(a); ok {
		if bVal, ok := toFloat64(b); ok {
			switch {
			case aVal > bVal:
				return 1
			case aVal < bVal:
				return -1
			default:
				return 0
			}
		}
	}
	if aStr, ok := a.(string); ok {
		if bStr, ok := b.(string); ok {
			switch {
			case aStr > bStr:
				return 1
			case aStr < bStr:
				return -1
			default:
				return 0
			}
		}
	}
	return 0
}

func valueInSlice(value, slice interface{}) bool {
	arr := reflect.ValueOf(slice)
	if arr.Kind() != reflect.Slice && arr.Kind() != reflect.Array {
		return false
	}
	for i := 0; i < arr.Len(); i++ {
		if valuesEqual(value, arr.Index(i).Interface()) {
			return true
		}
	}
	return false
}

func evaluateRegex(value, pattern interface{}) (bool, error) {
	str, ok := value.(string)
	if !ok {
		return false, nil
	}
	patternStr, ok := pattern.(string)
	if !ok {
		return false, fmt.Errorf("$regex requires a string pattern")
	}
	matched, err := regexp.MatchString(patternStr, str)
	if err != nil {
		return false, fmt.Errorf("invalid regex pattern: %w", err)
	}
	return matched, nil
}
