package automatic

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/domino14/trialrunner/job"
	"github.com/domino14/trialrunner/stats"
)

// X always moves first.
const firstMark = "X"

type tally struct {
	games               int
	wins, losses, draws int
}

func (t *tally) add(result string) error {
	switch result {
	case "W":
		t.wins++
	case "L":
		t.losses++
	case "D":
		t.draws++
	default:
		return fmt.Errorf("unknown result %q", result)
	}
	t.games++
	return nil
}

func pct(n, of int) float64 {
	if of == 0 {
		return 0
	}
	return 100.0 * float64(n) / float64(of)
}

func (t *tally) String() string {
	return fmt.Sprintf("%d games, W %d (%.3f%%)  L %d (%.3f%%)  D %d (%.3f%%)",
		t.games, t.wins, pct(t.wins, t.games), t.losses, pct(t.losses, t.games),
		t.draws, pct(t.draws, t.games))
}

// ResultSummary is what AnalyzeResultFile found.
type ResultSummary struct {
	overall, agentFirst, agentSecond tally
	turns, thinkMs                   stats.Statistic
	byBoard                          [job.NumBoards + 1]tally
}

func (s *ResultSummary) Games() int { return s.overall.games }
func (s *ResultSummary) Wins() int  { return s.overall.wins }

func (s *ResultSummary) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Games played: %d\n", s.overall.games)
	fmt.Fprintf(&sb, "Agent overall: %v\n", &s.overall)
	fmt.Fprintf(&sb, "Agent moved first: %v\n", &s.agentFirst)
	fmt.Fprintf(&sb, "Agent moved second: %v\n", &s.agentSecond)
	for b := 1; b <= job.NumBoards; b++ {
		if s.byBoard[b].games > 0 {
			fmt.Fprintf(&sb, "  opening board %d: %v\n", b, &s.byBoard[b])
		}
	}
	fmt.Fprintf(&sb, "Turns: mean %.3f  stdev %.3f\n", s.turns.Mean(), s.turns.Stdev())
	fmt.Fprintf(&sb, "Think time (ms): mean %.3f  stdev %.3f\n", s.thinkMs.Mean(), s.thinkMs.Stdev())
	return sb.String()
}

// AnalyzeResultFile reads a result store and summarizes the agent's games.
// Each record looks like:
// result,mark,board.square,turns,thinkMs
func AnalyzeResultFile(path string) (*ResultSummary, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return analyzeResults(file)
}

func analyzeResults(in io.Reader) (*ResultSummary, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = 5
	r.TrimLeadingSpace = true

	s := &ResultSummary{}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := r.FieldPos(0)
		if err := s.add(record); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	return s, nil
}

func (s *ResultSummary) add(record []string) error {
	result, mark := record[0], record[1]
	board, _, ok := strings.Cut(record[2], ".")
	if !ok {
		return fmt.Errorf("bad opening move %q", record[2])
	}
	b, err := strconv.Atoi(board)
	if err != nil || b < 1 || b > job.NumBoards {
		return fmt.Errorf("bad opening move %q", record[2])
	}
	turns, err := strconv.Atoi(record[3])
	if err != nil {
		return err
	}
	think, err := strconv.ParseFloat(record[4], 64)
	if err != nil {
		return err
	}
	if mark != "X" && mark != "O" {
		return fmt.Errorf("unknown mark %q", mark)
	}

	if err := s.overall.add(result); err != nil {
		return err
	}
	if mark == firstMark {
		s.agentFirst.add(result)
	} else {
		s.agentSecond.add(result)
	}
	s.byBoard[b].add(result)
	s.turns.Push(float64(turns))
	s.thinkMs.Push(think)
	return nil
}
