// Package seasonal picks the highest zonal mean of every plot over a season.
package seasonal

import (
	"math"
	"sort"
	"sync"

	"github.com/forest-guardian/vegetation-indices/internal/plots"
	"github.com/forest-guardian/vegetation-indices/internal/zonal"
)

type MaxRecord struct {
	UID     string  `json:"uid" csv:"uid"`
	MaxMean float64 `json:"max_mean" csv:"max_mean"`
	MaxDate string  `json:"max_date" csv:"max_date"`
}

// Reducer keeps a running maximum per uid. It is safe for concurrent use.
// Equal maxima keep the earliest date, so the result does not depend on
// the order records arrive in.
type Reducer struct {
	mu   sync.Mutex
	best map[string]MaxRecord
}

func NewReducer() *Reducer {
	return &Reducer{best: map[string]MaxRecord{}}
}

// Add folds one record into the running maximum. Records without a mean
// are ignored.
func (r *Reducer) Add(rec zonal.Record) {
	if rec.Mean == nil || math.IsNaN(*rec.Mean) {
		return
	}
	mean := *rec.Mean

	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.best[rec.UID]
	if !ok || mean > current.MaxMean || (mean == current.MaxMean && rec.Date < current.MaxDate) {
		r.best[rec.UID] = MaxRecord{UID: rec.UID, MaxMean: mean, MaxDate: rec.Date}
	}
}

// Results returns one record per uid seen, ordered by uid.
func (r *Reducer) Results() []MaxRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	results := make([]MaxRecord, 0, len(r.best))
	for _, rec := range r.best {
		results = append(results, rec)
	}
	sort.Slice(results, func(i, j int) bool {
		return plots.LessUID(results[i].UID, results[j].UID)
	})
	return results
}

func Reduce(records []zonal.Record) []MaxRecord {
	r := NewReducer()
	for _, rec := range records {
		r.Add(rec)
	}
	return r.Results()
}
