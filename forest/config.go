package forest

import "runtime"

// Config configures the tree ensemble
type Config struct {
	Estimators      int   `json:"estimators"`        // number of trees
	MaxDepth        int   `json:"max_depth"`         // maximum depth of a tree, root is depth 0
	MinSamplesSplit int   `json:"min_samples_split"` // a node with fewer samples becomes a leaf
	MaxFeatures     int   `json:"max_features"`      // features tried per split, 0 means sqrt(features)
	Bootstrap       bool  `json:"bootstrap"`         // sample rows with replacement per tree
	Seed            int64 `json:"seed"`              // base seed, tree i uses Seed+i
	Workers         int   `json:"workers"`           // trees fitted concurrently
}

func DefaultConf() Config {
	return Config{
		Estimators:      100,
		MaxDepth:        5,
		MinSamplesSplit: 2,
		Bootstrap:       true,
		Seed:            1,
		Workers:         runtime.NumCPU(),
	}
}

func (conf Config) IsValid() bool {
	return conf.Estimators >= 1 &&
		conf.MaxDepth >= 1 &&
		conf.MinSamplesSplit >= 2 &&
		conf.MaxFeatures >= 0 &&
		conf.Workers >= 1
}
