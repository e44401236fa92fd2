package export

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollpulse/internal/domain/poll"
	"pollpulse/internal/engine"
)

func TestResults(t *testing.T) {
	p := poll.Poll{
		ID:       uuid.New(),
		Question: "Favorite color?",
		Options:  poll.OptionList{"Red", "Blue"},
	}

	tests := []struct {
		name  string
		tally engine.Tally
		want  string
	}{
		{
			name: "two-thirds one-third split",
			tally: engine.Tally{
				PollID: p.ID,
				Counts: map[string]int{"Red": 2, "Blue": 1},
				Total:  3,
			},
			want: "Option,Votes,Percent\nRed,2,66.67%\nBlue,1,33.33%\n",
		},
		{
			name: "zero votes render 0% rows",
			tally: engine.Tally{
				PollID: p.ID,
				Counts: map[string]int{"Red": 0, "Blue": 0},
				Total:  0,
			},
			want: "Option,Votes,Percent\nRed,0,0%\nBlue,0,0%\n",
		},
		{
			name: "even split",
			tally: engine.Tally{
				PollID: p.ID,
				Counts: map[string]int{"Red": 1, "Blue": 1},
				Total:  2,
			},
			want: "Option,Votes,Percent\nRed,1,50.00%\nBlue,1,50.00%\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Results(p, tt.tally)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
		})
	}
}

func TestResultsFollowDeclaredOptionOrder(t *testing.T) {
	p := poll.Poll{
		ID:      uuid.New(),
		Options: poll.OptionList{"Zebra", "Apple", "Mango"},
	}
	tally := engine.Tally{
		PollID: p.ID,
		Counts: map[string]int{"Zebra": 1, "Apple": 1, "Mango": 0},
		Total:  2,
	}
	out, err := Results(p, tally)
	require.NoError(t, err)
	assert.Equal(t, "Option,Votes,Percent\nZebra,1,50.00%\nApple,1,50.00%\nMango,0,0.00%\n", string(out))
}

func TestDefinition(t *testing.T) {
	p := poll.Poll{
		ID:       uuid.New(),
		Question: "Favorite color?",
		Options:  poll.OptionList{"Red", "Blue", "Green"},
	}
	out, err := Definition(p)
	require.NoError(t, err)
	assert.Equal(t, "Question,Options\nFavorite color?,\"Red, Blue, Green\"\n", string(out))
}

func TestDefinitionQuotesCommasInQuestion(t *testing.T) {
	p := poll.Poll{
		ID:       uuid.New(),
		Question: "Tabs, or spaces?",
		Options:  poll.OptionList{"Tabs", "Spaces"},
	}
	out, err := Definition(p)
	require.NoError(t, err)
	assert.Equal(t, "Question,Options\n\"Tabs, or spaces?\",\"Tabs, Spaces\"\n", string(out))
}
