package warehouse

import (
	"fmt"
)

// KeyFunc extracts the natural key of a row, failing on a null or unparseable key
type KeyFunc[K comparable, R any] func(R) (K, error)

// Result is the new state of a table after a merge
type Result[R any] struct {
	Rows     []R
	Inserted int
	Updated  int
}

// ValidateBatch checks that every candidate has a valid key and that no key
// repeats. It returns the position of each key in candidates.
func ValidateBatch[K comparable, R any](candidates []R, keyOf KeyFunc[K, R]) (map[K]int, error) {
	index := make(map[K]int, len(candidates))
	for i, c := range candidates {
		key, err := keyOf(c)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		if first, dup := index[key]; dup {
			return nil, fmt.Errorf("candidates %d and %d: %w: %v", first, i, ErrDuplicateKey, key)
		}
		index[key] = i
	}
	return index, nil
}

// Merge reconciles candidates against existing rows by natural key.
//
// A candidate whose key matches an existing row replaces that row entirely,
// null measures included. A candidate with a new key is appended. Existing
// rows whose key is not among the candidates are kept as they are. The input
// slices are not modified.
func Merge[K comparable, R any](existing, candidates []R, keyOf KeyFunc[K, R]) (Result[R], error) {
	index, err := ValidateBatch(candidates, keyOf)
	if err != nil {
		return Result[R]{}, err
	}

	res := Result[R]{Rows: make([]R, 0, len(existing)+len(candidates))}
	matched := make(map[K]struct{}, len(index))

	for i, row := range existing {
		key, err := keyOf(row)
		if err != nil {
			return Result[R]{}, fmt.Errorf("persisted row %d: %w", i, err)
		}
		if _, seen := matched[key]; seen {
			return Result[R]{}, fmt.Errorf("persisted row %d: %w: %v", i, ErrDuplicateKey, key)
		}

		j, ok := index[key]
		if !ok {
			res.Rows = append(res.Rows, row)
			continue
		}
		matched[key] = struct{}{}
		res.Rows = append(res.Rows, candidates[j])
		res.Updated++
	}

	for _, c := range candidates {
		key, _ := keyOf(c)
		if _, ok := matched[key]; ok {
			continue
		}
		res.Rows = append(res.Rows, c)
		res.Inserted++
	}

	return res, nil
}

// MergeDates merges date dimension candidates by date_id
func MergeDates(existing, candidates []DateDim) (Result[DateDim], error) {
	return Merge(existing, candidates, DateKeyOf)
}

// MergeFacts merges fact candidates by (location_id, date_id, hour)
func MergeFacts(existing, candidates []FactWeather) (Result[FactWeather], error) {
	return Merge(existing, candidates, FactKeyOf)
}

// MergeLocations merges location rows by location_id
func MergeLocations(existing, candidates []Location) (Result[Location], error) {
	return Merge(existing, candidates, LocationKeyOf)
}

// Stats converts a merge result into MergeStats for the given table
func Stats[R any](table string, candidates int, res Result[R]) MergeStats {
	return MergeStats{
		Table:      table,
		Candidates: candidates,
		Inserted:   res.Inserted,
		Updated:    res.Updated,
	}
}
