package types

import (
	"encoding/json"
	"path"
	"strconv"

	"github.com/pkg/errors"
	"github.com/zeu5/dqn-cartpole/util"
)

// Generic Dataset that contains information after processing the episodes
type DataSet interface{}

// Analyzer observes every completed episode of a run
type Analyzer interface {
	// run id, episode result, rolling mean, solved
	Analyze(string, *EpisodeResult, float64, bool)
	// Resulting dataset
	DataSet() DataSet
	// Reset the analyzer
	Reset()
}

// RewardDataSet is the learning curve of a run
type RewardDataSet struct {
	Run     string    `json:"run"`
	Rewards []float64 `json:"rewards"`
	Steps   []int     `json:"steps"`
	Means   []float64 `json:"means"`
	Solved  bool      `json:"solved"`
	// SolvedAt is the episode that solved the task, -1 if not solved
	SolvedAt int `json:"solved_at"`
}

// RewardAnalyzer records rewards, steps and rolling means per episode
type RewardAnalyzer struct {
	data *RewardDataSet
}

var _ Analyzer = &RewardAnalyzer{}

func NewRewardAnalyzer() *RewardAnalyzer {
	r := &RewardAnalyzer{}
	r.Reset()
	return r
}

func (r *RewardAnalyzer) Analyze(run string, result *EpisodeResult, mean float64, solved bool) {
	r.data.Run = run
	r.data.Rewards = append(r.data.Rewards, result.TotalReward)
	r.data.Steps = append(r.data.Steps, result.Steps)
	r.data.Means = append(r.data.Means, mean)
	if solved && !r.data.Solved {
		r.data.Solved = true
		r.data.SolvedAt = result.Episode
	}
}

func (r *RewardAnalyzer) DataSet() DataSet {
	return r.data
}

func (r *RewardAnalyzer) Reset() {
	r.data = &RewardDataSet{
		Rewards:  make([]float64, 0),
		Steps:    make([]int, 0),
		Means:    make([]float64, 0),
		SolvedAt: -1,
	}
}

// RecordDataSets writes the dataset of each analyzer as json under savePath,
// one file per analyzer named <name>_<analyzer>_<run>.json
func RecordDataSets(savePath string, run int, name string, analyzers map[string]Analyzer) error {
	if savePath == "" {
		return nil
	}
	if err := util.EnsureDir(savePath); err != nil {
		return err
	}
	for aName, a := range analyzers {
		bs, err := json.Marshal(a.DataSet())
		if err != nil {
			return errors.Wrapf(err, "failed to encode dataset %s", aName)
		}
		filePath := path.Join(savePath, name+"_"+aName+"_"+strconv.Itoa(run)+".json")
		if err := util.WriteToFile(filePath, string(bs)); err != nil {
			return errors.Wrapf(err, "failed to write dataset %s", aName)
		}
	}
	return nil
}
