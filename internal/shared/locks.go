package shared

import "fmt"

// NumberingLockKey builds the advisory lock key serialising a number sequence.
func NumberingLockKey(prefix, period string) string {
	return fmt.Sprintf("numbering:%s:%s:lock", prefix, period)
}

// TotalsCacheKey builds the redis key holding a document totals snapshot.
func TotalsCacheKey(documentID int64) string {
	return fmt.Sprintf("documents:%d:totals", documentID)
}

// TotalsGenerationKey builds the redis counter bumped whenever a document's
// totals change.
func TotalsGenerationKey(documentID int64) string {
	return fmt.Sprintf("documents:%d:totals:gen", documentID)
}
