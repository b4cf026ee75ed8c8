package report

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/rollstats/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 1, 0, 0, 0, time.UTC)
}

func sampleRolls() []domain.Roll {
	return []domain.Roll{
		{UserID: 1, UserName: "alice", Value: 7, CreatedAt: day(2024, 1, 15)},
		{UserID: 1, UserName: "alice", Value: 12, CreatedAt: day(2024, 1, 16)},
		{UserID: 1, UserName: "alice", Value: 3, CreatedAt: day(2024, 2, 2)},
		{UserID: 2, UserName: "Bob Smith", Value: 12, CreatedAt: day(2024, 2, 1)},
	}
}

type mockSource struct {
	users []domain.User
	rolls []domain.Roll
	err   error
}

func (m *mockSource) ListUsers(context.Context) ([]domain.User, error) { return m.users, m.err }
func (m *mockSource) ListRolls(context.Context) ([]domain.Roll, error) { return m.rolls, m.err }

func TestRollsPerUser(t *testing.T) {
	series := rollsPerUser(sampleRolls(), "")
	require.Len(t, series, 2)
	assert.Equal(t, "Bob Smith", series[0].User)
	assert.Equal(t, "alice", series[1].User)
	assert.Equal(t, []float64{7, 12, 3}, series[1].Values)

	only := rollsPerUser(sampleRolls(), "alice")
	require.Len(t, only, 1)
	assert.Equal(t, "alice", only[0].User)
}

func TestFaceCounts(t *testing.T) {
	counts := faceCounts(sampleRolls())
	assert.Equal(t, 2, counts[11])
	assert.Equal(t, 1, counts[6])
	assert.Equal(t, 1, counts[2])
	assert.Equal(t, 0, counts[0])
}

func TestDistributionPerMonth(t *testing.T) {
	months, counts := distributionPerMonth(sampleRolls())
	require.Len(t, months, 2)
	assert.Equal(t, "January '24", monthLabel(months[0]))
	assert.Equal(t, "February '24", monthLabel(months[1]))
	assert.Equal(t, 1, counts[0][6])
	assert.Equal(t, 1, counts[0][11])
	assert.Equal(t, 1, counts[1][2])
	assert.Equal(t, 1, counts[1][11])
}

func TestMeanGroups(t *testing.T) {
	var rolls []domain.Roll
	for i := 0; i < 12; i++ {
		rolls = append(rolls, domain.Roll{UserID: 1, UserName: "alice", Value: 6, CreatedAt: day(2024, 1, i+1)})
	}
	rolls = append(rolls,
		domain.Roll{UserID: 2, UserName: "bob", Value: 3, CreatedAt: day(2024, 1, 1)},
		domain.Roll{UserID: 2, UserName: "bob", Value: 4, CreatedAt: day(2024, 1, 2)},
		domain.Roll{UserID: 3, UserName: "carol", Value: 5, CreatedAt: day(2024, 1, 1)},
	)

	groups := meanGroups(rolls, 10)
	require.Len(t, groups, 2)

	assert.Equal(t, rollGroup{Low: 1, High: 10, Mean: 4, Rolls: 3, Users: 2}, groups[0])
	assert.Equal(t, rollGroup{Low: 11, High: 20, Mean: 6, Rolls: 12, Users: 1}, groups[1])

	assert.Nil(t, meanGroups(nil, 10))
}

func TestMeanGroups_RoundsToTwoDecimals(t *testing.T) {
	rolls := []domain.Roll{
		{UserID: 1, Value: 1}, {UserID: 1, Value: 1}, {UserID: 1, Value: 2},
	}
	groups := meanGroups(rolls, 10)
	require.Len(t, groups, 1)
	assert.Equal(t, 1.33, groups[0].Mean)
}

func TestPossibleRollsPerMonth(t *testing.T) {
	out := possibleRollsPerMonth(sampleRolls(), 2)
	require.Len(t, out, 1, "users with fewer than two rolls are skipped")

	alice := out[0]
	assert.Equal(t, "alice", alice.User)
	assert.Equal(t, []float64{19, 3}, alice.Sums)
	assert.Equal(t, []float64{24, 12}, alice.Possible)
}

func TestGenerator_RegenerateAllAndClean(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	store := NewImageStore(fs, "/images")
	gen := NewGenerator(&mockSource{rolls: sampleRolls()}, store, Settings{Width: 640, Height: 480, StatsBy: "tests"})

	paths, err := gen.RegenerateAll(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"/images/line_rolls_user/bob_smith.png",
		"/images/line_rolls_user/alice.png",
		"/images/radar_rolls_distribution/distribution_rolls.png",
		"/images/histogram_distribution_per_month/distribution_per_month.png",
		"/images/histogram_avg_rolls_groups/mean_avg.png",
		"/images/histogram_possible_rolls_per_month_per_user/alice.png",
	}, paths)

	for _, p := range paths {
		data, err := afero.ReadFile(fs, p)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")), p)
	}

	listed, err := gen.Images()
	require.NoError(t, err)
	assert.ElementsMatch(t, paths, listed)

	require.NoError(t, gen.Clean(ctx))
	require.NoError(t, gen.Clean(ctx))
	listed, err = gen.Images()
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestGenerator_EmptyStore(t *testing.T) {
	gen := NewGenerator(&mockSource{}, NewImageStore(afero.NewMemMapFs(), "/images"), Settings{})

	paths, err := gen.RegenerateAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestGenerator_Run(t *testing.T) {
	ctx := context.Background()
	gen := NewGenerator(&mockSource{rolls: sampleRolls()}, NewImageStore(afero.NewMemMapFs(), "/images"), Settings{})

	paths, err := gen.Run(ctx, "line_rolls_user", map[string]string{"user": "alice"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/images/line_rolls_user/alice.png"}, paths)

	_, err = gen.Run(ctx, "nope", nil)
	assert.ErrorIs(t, err, ErrReportNotFound)

	_, err = gen.Run(ctx, "histogram_avg_rolls_groups", map[string]string{"group_size": "many"})
	assert.ErrorIs(t, err, ErrInvalidOptionType)

	_, err = gen.Run(ctx, "radar_rolls_distribution", map[string]string{"colour": "red"})
	assert.ErrorIs(t, err, ErrUnknownOption)
}

func TestGenerator_SourceError(t *testing.T) {
	gen := NewGenerator(&mockSource{err: assert.AnError}, NewImageStore(afero.NewMemMapFs(), "/images"), Settings{})
	_, err := gen.RegenerateAll(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestGenerator_Register(t *testing.T) {
	gen := NewGenerator(&mockSource{}, NewImageStore(afero.NewMemMapFs(), "/images"), Settings{})
	n := len(gen.Reports())

	gen.Register(lineRollsUser{})
	assert.Len(t, gen.Reports(), n)

	r, err := gen.Report("line_rolls_user")
	require.NoError(t, err)
	assert.Equal(t, "line_rolls_user", r.Name())
}

func TestCleanFileName(t *testing.T) {
	assert.Equal(t, "bob_smith", CleanFileName("Bob Smith"))
	assert.Equal(t, "mean_avg", CleanFileName("mean-avg"))
	assert.Equal(t, "j_r_me_42", CleanFileName("J.R.me 42"))
}

func TestGenerator_CollidingNamesKeepEveryChart(t *testing.T) {
	fs := afero.NewMemMapFs()
	gen := NewGenerator(&mockSource{rolls: []domain.Roll{
		{UserID: 1, UserName: "Bob!", Value: 4, CreatedAt: day(2024, 1, 15)},
		{UserID: 2, UserName: "bob?", Value: 9, CreatedAt: day(2024, 1, 16)},
	}}, NewImageStore(fs, "/images"), Settings{})

	paths, err := gen.Run(context.Background(), "line_rolls_user", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/images/line_rolls_user/bob_.png",
		"/images/line_rolls_user/bob__2.png",
	}, paths)

	listed, err := gen.Images()
	require.NoError(t, err)
	assert.ElementsMatch(t, paths, listed)
}

func TestUniqueFileName(t *testing.T) {
	used := map[string]bool{}
	assert.Equal(t, "alice", uniqueFileName(used, "Alice"))
	assert.Equal(t, "alice_2", uniqueFileName(used, "alice"))
	assert.Equal(t, "alice_3", uniqueFileName(used, "ALICE"))
	assert.Equal(t, "alice_2_2", uniqueFileName(used, "alice 2"))
}

func TestImageStore_ReportOf(t *testing.T) {
	store := NewImageStore(afero.NewMemMapFs(), "/images")
	path, err := store.Write("line_rolls_user", "Alice", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "/images/line_rolls_user/alice.png", path)
	assert.Equal(t, "line_rolls_user", store.ReportOf(path))
}
