package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waste-patrol-service/internal/domain/detection"
	"waste-patrol-service/internal/domain/report"
)

var base = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *MemoryStore, n int, mutate func(i int, r *report.Report)) []*report.Report {
	t.Helper()
	out := make([]*report.Report, 0, n)
	for i := 0; i < n; i++ {
		r := &report.Report{
			ID:          fmt.Sprintf("id-%02d", i),
			Code:        fmt.Sprintf("WR-%03d", i+1),
			SubmitterID: "citizen-1",
			Location:    &report.Location{Latitude: 23.8103, Longitude: 90.4125},
			Images:      report.ImageRefs{Original: "originals/x.jpg"},
			Status:      report.StatusPending,
			Priority:    report.PriorityLow,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		if mutate != nil {
			mutate(i, r)
		}
		require.NoError(t, s.Insert(context.Background(), r))
		out = append(out, r)
	}
	return out
}

func TestMemoryStore_Insert(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seed(t, s, 1, nil)

	err := s.Insert(ctx, &report.Report{ID: "other", Code: "WR-001"})
	assert.ErrorIs(t, err, ErrDuplicateCode)

	err = s.Insert(ctx, &report.Report{ID: "id-00", Code: "WR-999"})
	assert.ErrorIs(t, err, report.ErrConflict)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seed(t, s, 1, nil)

	r, err := s.Get(ctx, "id-00")
	require.NoError(t, err)
	r.Status = report.StatusResolved
	r.Location.Latitude = 0

	again, err := s.Get(ctx, "id-00")
	require.NoError(t, err)
	assert.Equal(t, report.StatusPending, again.Status)
	assert.Equal(t, 23.8103, again.Location.Latitude)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, report.ErrNotFound)
}

func TestMemoryStore_UpdateIsAllOrNothing(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seed(t, s, 1, nil)

	_, err := s.Update(ctx, "id-00", func(r *report.Report) error {
		r.Status = report.StatusInProgress
		return report.ErrConflict
	})
	assert.ErrorIs(t, err, report.ErrConflict)

	r, err := s.Get(ctx, "id-00")
	require.NoError(t, err)
	assert.Equal(t, report.StatusPending, r.Status)

	updated, err := s.Update(ctx, "id-00", func(r *report.Report) error {
		r.Status = report.StatusInProgress
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, report.StatusInProgress, updated.Status)

	_, err = s.Update(ctx, "missing", func(*report.Report) error { return nil })
	assert.ErrorIs(t, err, report.ErrNotFound)
}

func TestMemoryStore_ConcurrentAttachExactlyOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seed(t, s, 1, nil)

	const workers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := s.Update(ctx, "id-00", func(r *report.Report) error {
				return r.AttachDetection(detection.Result{TotalWasteArea: float64(i + 1)}, nil, report.DefaultSeverityThresholds(), base)
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if assert.ErrorIs(t, err, report.ErrConflict) {
				conflicts++
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seed(t, s, 2, nil)

	_, err := s.Delete(ctx, "id-00", func(*report.Report) error { return report.ErrForbidden })
	assert.ErrorIs(t, err, report.ErrForbidden)
	_, err = s.Get(ctx, "id-00")
	require.NoError(t, err)

	deleted, err := s.Delete(ctx, "id-00", nil)
	require.NoError(t, err)
	assert.Equal(t, "WR-001", deleted.Code)

	_, err = s.Get(ctx, "id-00")
	assert.ErrorIs(t, err, report.ErrNotFound)
	_, err = s.Delete(ctx, "id-00", nil)
	assert.ErrorIs(t, err, report.ErrNotFound)

	// the code is free again once the record is gone
	require.NoError(t, s.Insert(ctx, &report.Report{ID: "id-new", Code: "WR-001"}))
}

func TestMemoryStore_List(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seed(t, s, 6, func(i int, r *report.Report) {
		switch i {
		case 0:
			r.SubmitterID = "citizen-2"
		case 1:
			r.Status = report.StatusInProgress
			r.Detection = &detection.Result{TotalWasteArea: 10, EstimatedVolume: 1}
		case 2:
			r.HideFromPublic = true
			r.Detection = &detection.Result{TotalWasteArea: 0}
		case 3:
			r.Location = &report.Location{Latitude: 51.5, Longitude: -0.12}
			r.Detection = &detection.Result{TotalWasteArea: 5}
		}
	})

	all, err := s.List(ctx, Filter{}, Page{})
	require.NoError(t, err)
	require.Len(t, all, 6)
	assert.Equal(t, "id-05", all[0].ID, "newest first")
	assert.Equal(t, "id-00", all[5].ID)

	mine, err := s.List(ctx, Filter{SubmitterID: "citizen-2"}, Page{})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	inProgress, err := s.List(ctx, Filter{Statuses: []report.Status{report.StatusInProgress}}, Page{})
	require.NoError(t, err)
	assert.Len(t, inProgress, 1)

	public, err := s.List(ctx, Filter{PublicOnly: true}, Page{})
	require.NoError(t, err)
	assert.Len(t, public, 5)

	withWaste, err := s.List(ctx, Filter{HasWaste: true}, Page{})
	require.NoError(t, err)
	assert.Len(t, withWaste, 2)

	dhaka := orb.Bound{Min: orb.Point{90, 23}, Max: orb.Point{91, 24}}
	inDhaka, err := s.List(ctx, Filter{HasWaste: true, Bound: &dhaka}, Page{})
	require.NoError(t, err)
	require.Len(t, inDhaka, 1)
	assert.Equal(t, "id-01", inDhaka[0].ID)

	page, err := s.List(ctx, Filter{}, Page{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "id-04", page[0].ID)
	assert.Equal(t, "id-03", page[1].ID)

	empty, err := s.List(ctx, Filter{}, Page{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryStore_ListDuringWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seed(t, s, 20, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = s.Update(ctx, id, func(r *report.Report) error {
				return r.Transition(report.StatusInProgress, base)
			})
		}(fmt.Sprintf("id-%02d", i))
	}
	for i := 0; i < 10; i++ {
		list, err := s.List(ctx, Filter{}, Page{})
		require.NoError(t, err)
		assert.Len(t, list, 20)
	}
	wg.Wait()

	list, err := s.List(ctx, Filter{Statuses: []report.Status{report.StatusInProgress}}, Page{})
	require.NoError(t, err)
	assert.Len(t, list, 20)
}
