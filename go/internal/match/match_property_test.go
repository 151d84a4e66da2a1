package match

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// No sequence of joins, bans and removals leaves two roster entries with the same name.
func TestProperty_RosterNamesStayUnique(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	names := gen.OneConstOf("alice", "Alice", "bob", "manager", "tester", "carol", "")
	ops := gen.SliceOf(gen.IntRange(0, 3))

	properties.Property("roster names are unique and name validity agrees with AddPlayer", prop.ForAll(
		func(seq []string, kinds []int) bool {
			m := New("1234", testGame(), false)
			for i, name := range seq {
				kind := 0
				if i < len(kinds) {
					kind = kinds[i]
				}
				switch kind {
				case 0:
					banned := m.IsBanned(name)
					valid := m.IsPlayerNameValid(name)
					err := m.AddPlayer(NewPlayer(name))
					if banned && err == nil {
						return false
					}
					if valid != (err == nil) {
						return false
					}
				case 1:
					m.RemovePlayer(name)
					m.BanPlayerName(name)
				case 2:
					m.UnbanPlayerName(name)
				case 3:
					_ = m.DisablePlayer(name)
				}
			}
			seen := make(map[string]bool)
			for _, p := range m.Players {
				if seen[p.Name] || IsReservedName(p.Name) {
					return false
				}
				seen[p.Name] = true
			}
			return true
		},
		gen.SliceOf(names),
		ops,
	))

	properties.TestingRun(t)
}

// AllPlayersResponded matches the count of final answers of active players.
func TestProperty_AggregationEquality(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("all responded iff finals == active", prop.ForAll(
		func(final []bool, disabled []bool) bool {
			m := New("1234", testGame(), false)
			for i := range final {
				name := fmt.Sprintf("p%d", i)
				if err := m.AddPlayer(NewPlayer(name)); err != nil {
					return false
				}
				if final[i] {
					if _, err := m.RecordAnswer(AnswerUpdate{PlayerName: name, QuestionID: "q1", Choices: []int{0}, IsFinal: true}, 10); err != nil {
						return false
					}
				}
			}
			for i := range disabled {
				if i < len(final) && disabled[i] {
					_ = m.DisablePlayer(fmt.Sprintf("p%d", i))
				}
			}

			active, finals := 0, 0
			for i := range final {
				isDisabled := i < len(disabled) && disabled[i]
				if !isDisabled {
					active++
					if final[i] {
						finals++
					}
				}
			}
			return m.AllPlayersResponded("q1") == (active == finals)
		},
		gen.SliceOfN(6, gen.Bool()),
		gen.SliceOfN(6, gen.Bool()),
	))

	properties.TestingRun(t)
}

// Only a unique maximal remaining time earns a bonus, and only for its holder.
func TestProperty_BonusExclusivity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("bonus goes to the sole fastest or nobody", prop.ForAll(
		func(times []int) bool {
			m := New("1234", testGame(), false)
			best, holders := -1, 0
			for i, tm := range times {
				name := fmt.Sprintf("p%d", i)
				if err := m.AddPlayer(NewPlayer(name)); err != nil {
					return false
				}
				if _, err := m.RecordAnswer(AnswerUpdate{PlayerName: name, QuestionID: "q1", Choices: []int{0}, IsFinal: true}, tm); err != nil {
					return false
				}
				switch {
				case tm > best:
					best, holders = tm, 1
				case tm == best:
					holders++
				}
			}
			// score in reverse order to exercise out-of-order updates
			for i := len(times) - 1; i >= 0; i-- {
				if _, err := m.ScoreQuestion(fmt.Sprintf("p%d", i), "q1", 0); err != nil {
					return false
				}
			}

			bonuses := 0
			for i, tm := range times {
				p := m.Player(fmt.Sprintf("p%d", i))
				bonuses += p.BonusCount
				if p.BonusCount == 1 && (tm != best || holders != 1) {
					return false
				}
			}
			if holders == 1 {
				return bonuses == 1
			}
			return bonuses == 0
		},
		gen.SliceOfN(4, gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}
