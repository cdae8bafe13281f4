package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog([]Definition{
		{Name: "First Steps", Description: "Reach level 5", Kind: KindLevel, Requirement: 5, Reward: 100, Icon: "🎯", Rarity: RarityCommon},
		{Name: "Dedicated Learner", Description: "Maintain a 7-day streak", Kind: KindStreak, Requirement: 7, Reward: 200, Icon: "🔥", Rarity: RarityUncommon},
		{Name: "Experience Master", Description: "Hold 1000 experience points within a single level", Kind: KindExperience, Requirement: 1000, Reward: 500, Icon: "⭐", Rarity: RarityRare},
		{Name: "Telegram Pro", Description: "Connect your Telegram account", Kind: "custom", Requirement: 1, Reward: 50, Icon: "📱"},
		{Name: "Level 10 Champion", Description: "Reach level 10", Kind: KindLevel, Requirement: 10, Reward: 300, Icon: "🏆", Rarity: RarityEpic},
	})
	require.NoError(t, err)
	return c
}

func TestNewCatalog_NormalisesAndOrders(t *testing.T) {
	c := testCatalog(t)

	require.Equal(t, 5, c.Len())
	pro, ok := c.Lookup("Telegram Pro")
	require.True(t, ok)
	assert.Equal(t, KindManual, pro.Kind)
	assert.Equal(t, RarityCommon, pro.Rarity)
	assert.Equal(t, "First Steps", c.Definitions()[0].Name)
}

func TestNewCatalog_RejectsInvalid(t *testing.T) {
	_, err := NewCatalog([]Definition{{Name: "x", Kind: "level"}, {Name: "x", Kind: "streak"}})
	assert.Error(t, err)

	_, err = NewCatalog([]Definition{{Name: "", Kind: KindLevel}})
	assert.ErrorIs(t, err, ErrInvalidDefinition)

	_, err = NewCatalog([]Definition{{Name: "y", Kind: "rank"}})
	assert.ErrorIs(t, err, ErrInvalidDefinition)

	_, err = NewCatalog([]Definition{{Name: "z", Kind: KindLevel, Requirement: -1}})
	assert.ErrorIs(t, err, ErrInvalidDefinition)
}

func TestEvaluateAchievements_UnlocksAllSatisfiedInOnePass(t *testing.T) {
	c := testCatalog(t)
	rec := NewRecord("acc-1", t0)
	rec.Level = 10
	rec.Streak = 7

	got := rec.EvaluateAchievements(c, t0)

	names := make([]string, 0, len(got))
	for _, u := range got {
		names = append(names, u.Name)
		assert.Equal(t, t0, u.UnlockedAt)
	}
	assert.Equal(t, []string{"First Steps", "Dedicated Learner", "Level 10 Champion"}, names)
	assert.Len(t, rec.Achievements, 3)
}

func TestEvaluateAchievements_Idempotent(t *testing.T) {
	c := testCatalog(t)
	rec := NewRecord("acc-1", t0)
	rec.Level = 6

	first := rec.EvaluateAchievements(c, t0)
	second := rec.EvaluateAchievements(c, t0.Add(time.Hour))

	assert.Len(t, first, 1)
	assert.Empty(t, second)
	assert.Len(t, rec.Achievements, 1)
}

func TestEvaluateAchievements_ManualNeverAutomatic(t *testing.T) {
	c := testCatalog(t)
	rec := NewRecord("acc-1", t0)
	rec.Level = 50
	rec.Streak = 50

	rec.EvaluateAchievements(c, t0)

	assert.False(t, rec.HasAchievement("Telegram Pro"))
}

func TestEvaluateAchievements_Monotone(t *testing.T) {
	c := testCatalog(t)
	rec := NewRecord("acc-1", t0)
	rec.Streak = 7
	rec.EvaluateAchievements(c, t0)

	rec.Streak = 1
	rec.EvaluateAchievements(c, t0.Add(time.Hour))

	assert.True(t, rec.HasAchievement("Dedicated Learner"))
}

func TestEvaluateAchievements_ThresholdIsInclusive(t *testing.T) {
	c := testCatalog(t)
	rec := NewRecord("acc-1", t0)
	rec.Level = 4

	assert.Empty(t, rec.EvaluateAchievements(c, t0))

	rec.Level = 5
	assert.Len(t, rec.EvaluateAchievements(c, t0), 1)
}

func TestUnlock_Idempotent(t *testing.T) {
	c := testCatalog(t)
	def, _ := c.Lookup("Telegram Pro")
	rec := NewRecord("acc-1", t0)

	u, ok := rec.Unlock(def, t0)
	require.True(t, ok)
	assert.Equal(t, "Telegram Pro", u.Name)

	_, ok = rec.Unlock(def, t0.Add(time.Minute))
	assert.False(t, ok)
	assert.Len(t, rec.Achievements, 1)
}

func TestEvaluateAchievements_AfterAward(t *testing.T) {
	c := testCatalog(t)
	rec := NewRecord("acc-1", t0)

	// 100+150+225+337 = 812 переводит на уровень 5.
	_, err := rec.AwardExperience(812, t0)
	require.NoError(t, err)
	require.Equal(t, 5, rec.Level)

	got := rec.EvaluateAchievements(c, t0)
	require.Len(t, got, 1)
	assert.Equal(t, "First Steps", got[0].Name)
}
