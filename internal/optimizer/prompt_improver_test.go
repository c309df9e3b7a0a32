package optimizer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univtimetable/optimizer-api/internal/llm"
	"github.com/univtimetable/optimizer-api/internal/models"
)

// staticChat replies with the same message on every call.
type staticChat struct {
	reply string
	calls int
}

func (s *staticChat) Chat(_ context.Context, _ []llm.Message) (string, error) {
	s.calls++
	return s.reply, nil
}

// failingChat always fails the transport.
type failingChat struct{}

func (failingChat) Chat(_ context.Context, _ []llm.Message) (string, error) {
	return "", errors.New("gateway timeout")
}

func dislikeProblem() *Problem {
	loads := []models.CourseLoad{testLoad("l1", "t1", "Ada", 1, "g1", 1)}
	prefs := []models.TeacherPreferences{{TeacherID: "t1", TeacherName: "Ada", Priority: 1, Cells: []models.PreferenceCell{
		{TeacherID: "t1", Day: 1, Slot: 2, IsPreferred: false, Strength: models.StrengthStrong},
		{TeacherID: "t1", Day: 3, Slot: 3, IsPreferred: true},
	}}}
	return newTestProblem(loads, prefs, nil)
}

func dislikedChromosome() *Chromosome {
	return &Chromosome{Lessons: []Lesson{testLesson("l1", "t1", "g1", 1, 2)}}
}

func TestPromptImproverAppliesValidSuggestion(t *testing.T) {
	p := dislikeProblem()
	chat := &staticChat{reply: `Sure! {"suggestions":[{"lesson_id":0,"new_day":3,"new_slot":3}]}`}
	pi := NewPromptImprover(chat, p, nil)

	c := dislikedChromosome()
	improved, actions, err := pi.Improve(context.Background(), c)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.True(t, actions[0].Success)
	assert.Equal(t, models.ActionImprove, actions[0].ActionType)

	assert.Equal(t, 3, improved.Lessons[0].Day)
	assert.Equal(t, 3, improved.Lessons[0].Slot)
	assert.Equal(t, 50.0, improved.Score())

	// The input chromosome is untouched.
	assert.Equal(t, 1, c.Lessons[0].Day)
	assert.Equal(t, 2, c.Lessons[0].Slot)
}

func TestPromptImproverReturnsInputOnTransportFailure(t *testing.T) {
	pi := NewPromptImprover(failingChat{}, dislikeProblem(), nil)

	c := dislikedChromosome()
	improved, actions, err := pi.Improve(context.Background(), c)
	require.NoError(t, err)
	assert.Same(t, c, improved)
	require.Len(t, actions, 1)
	assert.False(t, actions[0].Success)
}

func TestPromptImproverReturnsInputOnMalformedReply(t *testing.T) {
	cases := map[string]string{
		"prose":       "I would move the lesson to Wednesday.",
		"broken json": `{"suggestions":[{"lesson_id":`,
		"empty list":  `{"suggestions":[]}`,
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			pi := NewPromptImprover(&staticChat{reply: reply}, dislikeProblem(), nil)
			c := dislikedChromosome()
			improved, actions, err := pi.Improve(context.Background(), c)
			require.NoError(t, err)
			assert.Same(t, c, improved)
			require.Len(t, actions, 1)
			assert.False(t, actions[0].Success)
		})
	}
}

func TestPromptImproverSkipsOutOfRangeSuggestions(t *testing.T) {
	reply := `{"suggestions":[
		{"lesson_id":99,"new_day":2,"new_slot":2},
		{"lesson_id":0,"new_day":7,"new_slot":2},
		{"lesson_id":0,"new_day":3,"new_slot":3}
	]}`
	pi := NewPromptImprover(&staticChat{reply: reply}, dislikeProblem(), nil)

	improved, actions, err := pi.Improve(context.Background(), dislikedChromosome())
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, 1, actions[0].ActionParams["suggestions_applied"])
	assert.Equal(t, 3, improved.Lessons[0].Day)
}

func TestPromptImproverDiscardsRegression(t *testing.T) {
	// Start on a weakly disliked cell, suggest a strongly disliked one.
	worse := newTestProblem(
		[]models.CourseLoad{testLoad("l1", "t1", "Ada", 1, "g1", 1)},
		[]models.TeacherPreferences{{TeacherID: "t1", TeacherName: "Ada", Priority: 1, Cells: []models.PreferenceCell{
			{TeacherID: "t1", Day: 1, Slot: 2, IsPreferred: false, Strength: models.StrengthWeak},
			{TeacherID: "t1", Day: 2, Slot: 2, IsPreferred: false, Strength: models.StrengthStrong},
		}}},
		nil,
	)
	chat := &staticChat{reply: `{"suggestions":[{"lesson_id":0,"new_day":2,"new_slot":2}]}`}
	pi := NewPromptImprover(chat, worse, nil)

	c := dislikedChromosome()
	improved, actions, err := pi.Improve(context.Background(), c)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.False(t, actions[0].Success)
	assert.Same(t, c, improved)
	assert.Equal(t, 1, c.Lessons[0].Day)
}

func TestPromptImproverNoViolationsSkipsChat(t *testing.T) {
	chat := &staticChat{reply: `{"suggestions":[]}`}
	pi := NewPromptImprover(chat, dislikeProblem(), nil)

	c := &Chromosome{Lessons: []Lesson{testLesson("l1", "t1", "g1", 5, 4)}}
	improved, actions, err := pi.Improve(context.Background(), c)
	require.NoError(t, err)
	assert.Same(t, c, improved)
	assert.Empty(t, actions)
	assert.Zero(t, chat.calls)
}

func TestExtractJSONObject(t *testing.T) {
	cases := map[string]struct {
		in   string
		want string
	}{
		"bare":            {`{"a":1}`, `{"a":1}`},
		"surrounded":      {"Here you go:\n{\"a\":1}\nHope that helps!", `{"a":1}`},
		"nested":          {`{"a":{"b":2}}`, `{"a":{"b":2}}`},
		"brace in string": {`{"a":"}{"}`, `{"a":"}{"}`},
		"escaped quote":   {`{"a":"say \"hi\""}`, `{"a":"say \"hi\""}`},
		"unbalanced":      {`{"a":1`, ""},
		"no object":       {"nothing here", ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractJSONObject(tc.in))
		})
	}
}
