// Package batch splits contact records into chunks that fit under the bulk
// import payload ceiling.
package batch

import (
	"encoding/json"
	"fmt"

	"github.com/hri/contact-sync/internal/contacts"
)

// Batch is the half-open slice [Lo, Hi) of the partitioned records.
type Batch struct {
	Index   int
	Lo, Hi  int
	Records []contacts.Record
}

// Len returns the number of records in the batch.
func (b Batch) Len() int { return b.Hi - b.Lo }

// Boundaries returns [0, i1, ..., N] for records under a byte ceiling.
//
// The step assumes uniform record size: it is derived from the serialized
// size of the whole collection as floor(ceiling/total*N)+1 and the last
// boundary is clamped to N. A single oversized record can still push a batch
// over the ceiling; see Oversized. For N == 0 the result is [0].
func Boundaries(records []contacts.Record, ceiling int) ([]int, error) {
	n := len(records)
	if n == 0 {
		return []int{0}, nil
	}
	if ceiling <= 0 {
		return nil, fmt.Errorf("payload ceiling must be positive, got %d", ceiling)
	}

	payload, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to measure records: %w", err)
	}

	step := int(float64(ceiling)/float64(len(payload))*float64(n)) + 1

	bounds := make([]int, 0, n/step+2)
	for i := 0; i < n; i += step {
		bounds = append(bounds, i)
	}
	return append(bounds, n), nil
}

// Split partitions records into batches. The batches cover records exactly,
// in order, with no overlap.
func Split(records []contacts.Record, ceiling int) ([]Batch, error) {
	bounds, err := Boundaries(records, ceiling)
	if err != nil {
		return nil, err
	}

	batches := make([]Batch, 0, len(bounds)-1)
	for k := 0; k+1 < len(bounds); k++ {
		lo, hi := bounds[k], bounds[k+1]
		batches = append(batches, Batch{Index: k, Lo: lo, Hi: hi, Records: records[lo:hi]})
	}
	return batches, nil
}

// Encode serializes the batch records as a JSON array.
func (b Batch) Encode() (json.RawMessage, error) {
	payload, err := json.Marshal(b.Records)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch %d: %w", b.Index, err)
	}
	return payload, nil
}

// Oversized reports whether an encoded batch exceeds the ceiling.
func Oversized(payload json.RawMessage, ceiling int) bool {
	return len(payload) > ceiling
}
