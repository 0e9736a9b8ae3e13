package runner

import (
	"strconv"

	"github.com/domino14/trialrunner/config"
	"github.com/domino14/trialrunner/job"
)

// Role is one of the three processes in a trial.
type Role int

const (
	RoleReferee Role = iota
	RoleAgent
	RoleHeuristic
)

func (r Role) String() string {
	switch r {
	case RoleReferee:
		return "referee"
	case RoleAgent:
		return "agent"
	case RoleHeuristic:
		return "heuristic"
	}
	return "unknown"
}

// PrimaryRole is the player whose exit ends the trial. The other player is
// detached once started.
const PrimaryRole = RoleAgent

// launchOrders maps "the agent makes the forced opening move" to the order
// the two players are started in. The player that connects first moves first.
var launchOrders = map[bool][2]Role{
	true:  {RoleAgent, RoleHeuristic},
	false: {RoleHeuristic, RoleAgent},
}

// LaunchOrder returns the player start order for a job.
func LaunchOrder(agentFirst bool) [2]Role {
	return launchOrders[agentFirst]
}

// Argv builds the full command line for a role.
func Argv(s *config.Settings, role Role, port int, j job.Job) []string {
	p := strconv.Itoa(port)
	var argv []string
	switch role {
	case RoleReferee:
		argv = append(argv, s.RefereeCmd...)
		argv = append(argv, "-p", p, "-m",
			strconv.Itoa(j.FirstMove.Board()), strconv.Itoa(j.FirstMove.Square()))
	case RoleHeuristic:
		argv = append(argv, s.HeuristicCmd...)
		argv = append(argv, "-p", p, "-d", strconv.Itoa(s.SearchDepth))
	case RoleAgent:
		argv = append(argv, s.AgentCmd...)
		argv = append(argv, "-p", p)
	}
	return argv
}
