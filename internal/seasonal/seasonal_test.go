package seasonal

import (
	"math/rand"
	"testing"

	"github.com/forest-guardian/vegetation-indices/internal/zonal"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func rec(uid, date string, mean float64) zonal.Record {
	return zonal.Record{UID: uid, Date: date, Mean: &mean, Count: 1, Sum: mean}
}

func TestReduceSinglePlot(t *testing.T) {
	records := []zonal.Record{
		rec("1", "2020-07-01", 0.42),
		rec("1", "2020-08-15", 0.51),
		{UID: "1", Date: "2020-09-10"},
	}
	want := []MaxRecord{{UID: "1", MaxMean: 0.51, MaxDate: "2020-08-15"}}
	if diff := cmp.Diff(want, Reduce(records)); diff != "" {
		t.Errorf("Reduce mismatch (-want +got):\n%s", diff)
	}
}

func TestReduceDropsPlotsWithoutMeans(t *testing.T) {
	records := []zonal.Record{
		{UID: "cloudy", Date: "2020-07-01"},
		{UID: "cloudy", Date: "2020-08-01"},
		rec("2", "2020-07-01", 0.3),
	}
	got := Reduce(records)
	assert.Len(t, got, 1)
	assert.Equal(t, "2", got[0].UID)
}

func TestReduceTieKeepsEarliestDate(t *testing.T) {
	forward := []zonal.Record{rec("1", "2020-07-01", 0.5), rec("1", "2020-08-01", 0.5)}
	backward := []zonal.Record{rec("1", "2020-08-01", 0.5), rec("1", "2020-07-01", 0.5)}

	assert.Equal(t, "2020-07-01", Reduce(forward)[0].MaxDate)
	assert.Equal(t, "2020-07-01", Reduce(backward)[0].MaxDate)
}

func TestReduceOneRecordPerUIDWithGroupMax(t *testing.T) {
	var records []zonal.Record
	uids := []string{"10", "2", "1", "a"}
	maxima := map[string]float64{}
	r := rand.New(rand.NewSource(7))
	for _, uid := range uids {
		for day := 1; day <= 28; day++ {
			mean := r.Float64()*2 - 1
			records = append(records, rec(uid, "2020-07-"+twoDigits(day), mean))
			if m, ok := maxima[uid]; !ok || mean > m {
				maxima[uid] = mean
			}
		}
	}

	got := Reduce(records)
	assert.Len(t, got, len(uids))
	for _, m := range got {
		assert.Equal(t, maxima[m.UID], m.MaxMean)
	}

	var order []string
	for _, m := range got {
		order = append(order, m.UID)
	}
	assert.Equal(t, []string{"1", "2", "10", "a"}, order)
}

func TestReduceIdempotentAndOrderIndependent(t *testing.T) {
	records := []zonal.Record{
		rec("1", "2020-07-01", 0.1),
		rec("2", "2020-07-01", 0.7),
		rec("1", "2020-08-01", 0.6),
		rec("2", "2020-08-01", 0.2),
	}
	first := Reduce(records)

	shuffled := append([]zonal.Record(nil), records...)
	rand.New(rand.NewSource(1)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if diff := cmp.Diff(first, Reduce(shuffled)); diff != "" {
		t.Errorf("Reduce depends on input order (-first +shuffled):\n%s", diff)
	}
	if diff := cmp.Diff(first, Reduce(records)); diff != "" {
		t.Errorf("Reduce is not idempotent (-first +second):\n%s", diff)
	}
}

func TestReduceEmpty(t *testing.T) {
	assert.Empty(t, Reduce(nil))
}

func twoDigits(n int) string {
	return string([]byte{byte('0' + n/10), byte('0' + n%10)})
}
