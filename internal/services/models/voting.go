package models

import (
	"fmt"

	dm "AdaptiveEnsemble/internal/domain/models"
	domsvc "AdaptiveEnsemble/internal/domain/service"
)

// MinVotingMembers is the smallest ensemble worth building.
const MinVotingMembers = 2

// VotingRegressor averages the predictions of its members.
type VotingRegressor struct {
	Members []domsvc.Regressor
	// Prefit skips refitting members that were already fit on the same data.
	Prefit bool
}

func NewVoting(members ...domsvc.Regressor) *VotingRegressor {
	return &VotingRegressor{Members: members}
}

func (m *VotingRegressor) Name() string { return Voting }

// MemberNames lists the member families in order.
func (m *VotingRegressor) MemberNames() []string {
	out := make([]string, len(m.Members))
	for i, r := range m.Members {
		out[i] = r.Name()
	}
	return out
}

func (m *VotingRegressor) Fit(X [][]float64, y []float64) error {
	if len(m.Members) < MinVotingMembers {
		return dm.Errorf(dm.KindNoCandidateModel, "voting needs at least %d members, got %d", MinVotingMembers, len(m.Members))
	}
	if _, err := checkFit(X, y); err != nil {
		return err
	}
	if m.Prefit {
		return nil
	}
	for _, r := range m.Members {
		if err := r.Fit(X, y); err != nil {
			return fmt.Errorf("voting member %s: %w", r.Name(), err)
		}
	}
	return nil
}

func (m *VotingRegressor) Predict(X [][]float64) ([]float64, error) {
	if len(m.Members) == 0 {
		return nil, ErrNotFitted
	}
	out := make([]float64, len(X))
	for _, r := range m.Members {
		p, err := r.Predict(X)
		if err != nil {
			return nil, fmt.Errorf("voting member %s: %w", r.Name(), err)
		}
		for i, v := range p {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float64(len(m.Members))
	}
	return out, nil
}

var _ domsvc.Regressor = (*VotingRegressor)(nil)
