package jobs_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/paperscore/internal/domain/jobs"
)

func TestTotalSteps(t *testing.T) {
	assert.Equal(t, 3, jobs.TotalSteps(jobs.TierBasic))
	assert.Equal(t, 4, jobs.TotalSteps(jobs.TierStandard))
	assert.Equal(t, 5, jobs.TotalSteps(jobs.TierComprehensive))
	assert.Equal(t, 0, jobs.TotalSteps(jobs.Tier("enterprise")))
}

func TestPlanWalk(t *testing.T) {
	tests := []struct {
		tier jobs.Tier
		want []jobs.Stage
	}{
		{jobs.TierBasic, []jobs.Stage{jobs.StageExtract, jobs.StagePreAnalyze, jobs.StageReport}},
		{jobs.TierStandard, []jobs.Stage{jobs.StageExtract, jobs.StagePreAnalyze, jobs.StageDeepAnalyze, jobs.StageReport}},
		{jobs.TierComprehensive, []jobs.Stage{
			jobs.StageExtract, jobs.StagePreAnalyze, jobs.StageDeepAnalyze, jobs.StageCrossValidate, jobs.StageReport,
		}},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			j := jobs.First(jobs.Job{ID: "j1", OwnerID: "o1", Tier: tt.tier})
			require.NoError(t, j.Validate())

			first, err := j.Stage()
			require.NoError(t, err)
			visited := []jobs.Stage{first}
			for {
				next, st, ok := jobs.Next(j)
				if !ok {
					break
				}
				require.Equal(t, j.Step+1, next.Step)
				visited = append(visited, st)
				j = next
			}

			assert.Equal(t, tt.want, visited)
			assert.True(t, jobs.IsLast(j))
			assert.Equal(t, jobs.StageReport, visited[len(visited)-1])
		})
	}
}

func TestSlotsAreStableAcrossTiers(t *testing.T) {
	seen := map[int]jobs.Stage{}
	for _, tier := range []jobs.Tier{jobs.TierBasic, jobs.TierStandard, jobs.TierComprehensive} {
		for _, st := range jobs.Stages(tier) {
			if prev, ok := seen[st.Slot()]; ok {
				assert.Equal(t, prev, st)
			}
			seen[st.Slot()] = st
		}
	}
	assert.Len(t, seen, 5)
}

func TestNewStatusKeepsFirstStart(t *testing.T) {
	t0 := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	later := t0.Add(10 * time.Minute)

	fresh := jobs.First(jobs.Job{ID: "j1", OwnerID: "o", Tier: jobs.TierBasic})
	assert.Equal(t, t0, jobs.NewStatus(fresh, jobs.StatusRunning, 0, t0).StartedAt)

	fresh.StartedAt = t0
	next, _, ok := jobs.Next(fresh)
	require.True(t, ok)
	done := jobs.NewStatus(next, jobs.StatusCompleted, 100, later)
	assert.Equal(t, t0, done.StartedAt)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, later, *done.CompletedAt)
}

func TestIncludes(t *testing.T) {
	assert.False(t, jobs.Includes(jobs.TierBasic, jobs.StageDeepAnalyze))
	assert.False(t, jobs.Includes(jobs.TierStandard, jobs.StageCrossValidate))
	assert.True(t, jobs.Includes(jobs.TierComprehensive, jobs.StageCrossValidate))
}

func TestTierForPages(t *testing.T) {
	assert.Equal(t, jobs.TierBasic, jobs.TierForPages(1))
	assert.Equal(t, jobs.TierBasic, jobs.TierForPages(29))
	assert.Equal(t, jobs.TierStandard, jobs.TierForPages(30))
	assert.Equal(t, jobs.TierStandard, jobs.TierForPages(99))
	assert.Equal(t, jobs.TierComprehensive, jobs.TierForPages(100))
}

func TestValidateRejectsMismatchedSteps(t *testing.T) {
	j := jobs.Job{ID: "j1", OwnerID: "o1", Tier: jobs.TierBasic, Step: 1, TotalSteps: 5}
	err := j.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, jobs.ErrInvalidJob))

	j.TotalSteps = 3
	j.Step = 4
	assert.ErrorIs(t, j.Validate(), jobs.ErrInvalidJob)
}

func TestIsFatal(t *testing.T) {
	assert.True(t, jobs.IsFatal(jobs.ErrMissingDependency))
	assert.True(t, jobs.IsFatal(errors.Join(errors.New("ctx"), jobs.ErrInsufficientContent)))
	assert.False(t, jobs.IsFatal(jobs.ErrQueueUnavailable))
	assert.False(t, jobs.IsFatal(errors.New("redis: connection refused")))
}
