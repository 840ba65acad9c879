package app

import (
	"errors"
	"fmt"

	"github.com/pterm/pterm"

	"github.com/ultiledger/go-benor/cluster"
	"github.com/ultiledger/go-benor/consensus"
	"github.com/ultiledger/go-benor/journal"
)

func optional[T any](p *T) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprint(*p)
}

func renderStates(states []consensus.NodeState) error {
	data := pterm.TableData{{"node", "faulty", "killed", "decided", "x", "k"}}
	for id, st := range states {
		decided := "-"
		if !st.Faulty {
			decided = fmt.Sprint(st.Decided)
		}
		data = append(data, []string{
			fmt.Sprint(id),
			fmt.Sprint(st.Faulty),
			fmt.Sprint(st.Killed),
			decided,
			optional(st.Estimate),
			optional(st.Iteration),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}

	v, err := cluster.Agreement(states)
	switch {
	case err == nil:
		pterm.Success.Printfln("agreement on %s", v)
	case errors.Is(err, cluster.ErrNoDecision):
		pterm.Warning.Println("no node decided")
	default:
		pterm.Error.Println(err.Error())
	}
	if ids := cluster.Undecided(states); len(ids) > 0 && !errors.Is(err, cluster.ErrNoDecision) {
		pterm.Warning.Printfln("undecided live nodes: %v", ids)
	}
	return nil
}

func renderDecisions(ds []journal.Decision) error {
	data := pterm.TableData{{"run", "node", "value", "k", "decided at"}}
	for _, d := range ds {
		data = append(data, []string{
			d.Run,
			fmt.Sprint(d.NodeID),
			d.Value.String(),
			fmt.Sprint(d.Iteration),
			d.DecidedAt.Format("2006-01-02 15:04:05.000"),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
