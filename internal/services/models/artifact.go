package models

import (
	"encoding/json"
	"fmt"

	domsvc "AdaptiveEnsemble/internal/domain/service"
)

// Artifact is the serialized form of a fitted regressor, tagged by family.
type Artifact struct {
	Kind  string          `json:"kind"`
	State json.RawMessage `json:"state"`
}

type votingState struct {
	Members []Artifact `json:"members"`
}

// Encode serializes a fitted regressor.
func Encode(r domsvc.Regressor) (Artifact, error) {
	var state interface{}
	switch m := r.(type) {
	case *LinearRegression, *Forest, *Booster:
		state = m
	case *VotingRegressor:
		vs := votingState{}
		for _, member := range m.Members {
			a, err := Encode(member)
			if err != nil {
				return Artifact{}, err
			}
			vs.Members = append(vs.Members, a)
		}
		state = vs
	default:
		return Artifact{}, fmt.Errorf("encode: unsupported regressor %T", r)
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return Artifact{}, fmt.Errorf("encode %s: %w", r.Name(), err)
	}
	return Artifact{Kind: r.Name(), State: raw}, nil
}

// Decode restores a regressor from its artifact.
func Decode(a Artifact) (domsvc.Regressor, error) {
	switch a.Kind {
	case Linear:
		m := &LinearRegression{}
		if err := json.Unmarshal(a.State, m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", a.Kind, err)
		}
		return m, nil
	case RandomForest:
		m := &Forest{}
		if err := json.Unmarshal(a.State, m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", a.Kind, err)
		}
		return m, nil
	case XGBoost, LightGBM, CatBoost, GradientBoosting:
		m := &Booster{}
		if err := json.Unmarshal(a.State, m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", a.Kind, err)
		}
		if m.Family != a.Kind {
			return nil, fmt.Errorf("decode %s: state belongs to %s", a.Kind, m.Family)
		}
		return m, nil
	case Voting:
		var vs votingState
		if err := json.Unmarshal(a.State, &vs); err != nil {
			return nil, fmt.Errorf("decode %s: %w", a.Kind, err)
		}
		v := &VotingRegressor{Prefit: true}
		for _, ma := range vs.Members {
			member, err := Decode(ma)
			if err != nil {
				return nil, err
			}
			v.Members = append(v.Members, member)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("decode: unknown artifact kind %q", a.Kind)
	}
}
