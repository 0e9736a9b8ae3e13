package automatic

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matryer/is"

	"github.com/domino14/trialrunner/stats"
)

const results = `W,X,3.7,15,1200
L,O,3.1,22,800
D,X,1.1,81,1000
W,O,9.9,30,1400
`

func TestAnalyzeResults(t *testing.T) {
	is := is.New(t)
	s, err := analyzeResults(strings.NewReader(results))
	is.NoErr(err)
	is.Equal(s.Games(), 4)
	is.Equal(s.Wins(), 2)
	is.Equal(s.agentFirst, tally{games: 2, wins: 1, draws: 1})
	is.Equal(s.agentSecond, tally{games: 2, wins: 1, losses: 1})
	is.Equal(s.byBoard[3], tally{games: 2, wins: 1, losses: 1})
	is.True(stats.FuzzyEqual(s.turns.Mean(), 37))
	is.True(stats.FuzzyEqual(s.thinkMs.Mean(), 1100))

	out := s.String()
	is.True(strings.Contains(out, "Games played: 4\n"))
	is.True(strings.Contains(out, "Agent moved first: 2 games, W 1 (50.000%)  L 0 (0.000%)  D 1 (50.000%)"))
	is.True(strings.Contains(out, "opening board 9: 1 games"))
}

func TestAnalyzeResultsRejectsGarbage(t *testing.T) {
	for _, in := range []string{
		"W,O,3.7,15\n",
		"Q,O,3.7,15,1\n",
		"W,Z,3.7,15,1\n",
		"W,O,37,15,1\n",
		"W,O,0.7,15,1\n",
		"W,O,3.7,x,1\n",
	} {
		_, err := analyzeResults(strings.NewReader(in))
		if err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}

func TestAnalyzeResultFile(t *testing.T) {
	is := is.New(t)
	path := filepath.Join(t.TempDir(), "res.csv")
	is.NoErr(os.WriteFile(path, []byte(results), 0o644))
	s, err := AnalyzeResultFile(path)
	is.NoErr(err)
	is.Equal(s.Games(), 4)

	_, err = AnalyzeResultFile(filepath.Join(t.TempDir(), "nope.csv"))
	is.True(os.IsNotExist(err))
}
