package quiz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exp/sessioncoordinator/internal/driver"
)

func TestNewAppliesDefaults(t *testing.T) {
	c, err := New(map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 2, c.(*Controller).numPlayers)
	assert.Equal(t, 1, c.(*Controller).numRounds)
	assert.Equal(t, "penny", c.GetRounding())
}

func TestNewAppliesParams(t *testing.T) {
	c, err := New(map[string]any{
		"numPlayers":    3,
		"numRounds":     5,
		"rounding":      "dollar",
		"showUpPayment": 4.5,
		"exchangeRate":  2.0,
		"surveyFile":    "survey.csv",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, c.GetNumPlayers())
	assert.Equal(t, "dollar", c.GetRounding())
	path, ok := c.GetSurveyFile()
	assert.True(t, ok)
	assert.Equal(t, "survey.csv", path)
}

func TestRegisteredUnderQuiz(t *testing.T) {
	c, err := driver.Build("quiz", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 2, c.GetNumPlayers())
}
