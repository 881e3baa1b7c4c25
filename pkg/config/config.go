package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// ErrEnvNotSet is returned when a path that must come from the environment is empty.
var ErrEnvNotSet = errors.New("environment variable not set")

// DefaultDatasets is the dataset registry used by the MCPS experiments.
var DefaultDatasets = []string{
	"abalone", "amazon", "car", "cifar10", "cifar10small", "convex", "dexter",
	"dorothea", "germancredit", "gisette", "kddcup09appetency", "krvskp", "madelon",
	"mnist", "mnistrotationbackimagenew", "secom", "semeion", "shuttle", "waveform",
	"winequalitywhite", "yeast",
}

// DefaultMethods lists the Weka predictors evaluated with default hyperparameters.
var DefaultMethods = []string{
	"weka.classifiers.bayes.BayesNet",
	"weka.classifiers.bayes.NaiveBayes",
	"weka.classifiers.functions.Logistic",
	"weka.classifiers.functions.MultilayerPerceptron",
	"weka.classifiers.functions.SimpleLogistic",
	"weka.classifiers.lazy.IBk",
	"weka.classifiers.lazy.KStar",
	"weka.classifiers.rules.DecisionTable",
	"weka.classifiers.rules.JRip",
	"weka.classifiers.rules.OneR",
	"weka.classifiers.rules.PART",
	"weka.classifiers.rules.ZeroR",
	"weka.classifiers.trees.DecisionStump",
	"weka.classifiers.trees.J48",
	"weka.classifiers.trees.LMT",
	"weka.classifiers.trees.RandomForest",
	"weka.classifiers.trees.RandomTree",
	"weka.classifiers.trees.REPTree",
	"weka.classifiers.lazy.LWL",
	"weka.classifiers.meta.AdaBoostM1",
	"weka.classifiers.meta.AttributeSelectedClassifier",
	"weka.classifiers.meta.Bagging",
	"weka.classifiers.meta.ClassificationViaRegression",
	"weka.classifiers.meta.LogitBoost",
	"weka.classifiers.meta.MultiClassClassifier",
	"weka.classifiers.meta.MyFilteredClassifier",
	"weka.classifiers.meta.RandomCommittee",
	"weka.classifiers.meta.RandomSubSpace",
	"weka.classifiers.meta.Stacking",
	"weka.classifiers.meta.Vote",
}

// Config manages experiment configuration using Viper
type Config struct {
	v *viper.Viper
}

// NewConfig creates a new configuration with defaults
func NewConfig() *Config {
	v := viper.New()

	// Experiment axes
	v.SetDefault("experiment.datasets", DefaultDatasets)
	v.SetDefault("experiment.strategies", []string{"RAND", "SMAC", "TPE"})
	v.SetDefault("experiment.generations", []string{"CV"})
	v.SetDefault("experiment.number_seeds", 25)
	v.SetDefault("experiment.methods", DefaultMethods)
	v.SetDefault("experiment.is_regression", false)
	v.SetDefault("experiment.num_folds", 10)
	v.SetDefault("experiment.time_limit_hours", 30)

	// Filesystem layout
	v.SetDefault("paths.experiments_folder", "experiments")
	v.SetDefault("paths.database_file", "results.db")
	v.SetDefault("paths.datasets_folder", "datasets")
	v.SetDefault("paths.tables_dir", "../tables")
	v.SetDefault("paths.plots_dir", "../plots")
	v.SetDefault("paths.distances_dir", "../distances")
	v.SetDefault("output.suffix", "")

	// Cluster submission
	v.SetDefault("cluster.submit_command", "qsub")
	v.SetDefault("cluster.queue", "compute")
	v.SetDefault("cluster.single_script", "./single-experiment.sh")
	v.SetDefault("cluster.adaptive_script", "./single-adaptive-experiment.sh")
	v.SetDefault("cluster.default_script", "scripts/default_experiment.sh")
	v.SetDefault("cluster.cv_script", "./run_10x10cv.sh")

	v.SetDefault("java.max_heap", "2000M")

	v.SetDefault("logging.level", "info")

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetEnvPrefix("awtool")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("paths.autoweka_path", "AUTOWEKA_PATH")
	_ = v.BindEnv("paths.java_path", "MY_JAVA_PATH")

	return &Config{v: v}
}

// LoadFromFile loads configuration from file
func (c *Config) LoadFromFile(path string) error {
	c.v.SetConfigFile(path)
	if err := c.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return nil
}

func (c *Config) Datasets() []string    { return c.v.GetStringSlice("experiment.datasets") }
func (c *Config) Strategies() []string  { return c.v.GetStringSlice("experiment.strategies") }
func (c *Config) Generations() []string { return c.v.GetStringSlice("experiment.generations") }
func (c *Config) NumberSeeds() int      { return c.v.GetInt("experiment.number_seeds") }
func (c *Config) Methods() []string     { return c.v.GetStringSlice("experiment.methods") }
func (c *Config) IsRegression() bool    { return c.v.GetBool("experiment.is_regression") }
func (c *Config) NumFolds() int         { return c.v.GetInt("experiment.num_folds") }

// TimeLimit is the wall-clock budget of one optimization run.
func (c *Config) TimeLimit() time.Duration {
	return time.Duration(c.v.GetFloat64("experiment.time_limit_hours") * float64(time.Hour))
}

// Seeds returns the seed identifiers "0".."n-1" as Auto-WEKA names them.
func (c *Config) Seeds() []string {
	n := c.NumberSeeds()
	seeds := make([]string, n)
	for i := 0; i < n; i++ {
		seeds[i] = strconv.Itoa(i)
	}
	return seeds
}

func (c *Config) ExperimentsFolder() string { return c.v.GetString("paths.experiments_folder") }
func (c *Config) DatabaseFile() string      { return c.v.GetString("paths.database_file") }
func (c *Config) DatasetsFolder() string    { return c.v.GetString("paths.datasets_folder") }
func (c *Config) TablesDir() string         { return c.v.GetString("paths.tables_dir") }
func (c *Config) PlotsDir() string          { return c.v.GetString("paths.plots_dir") }
func (c *Config) DistancesDir() string      { return c.v.GetString("paths.distances_dir") }
func (c *Config) Suffix() string            { return c.v.GetString("output.suffix") }

func (c *Config) SubmitCommand() string  { return c.v.GetString("cluster.submit_command") }
func (c *Config) Queue() string          { return c.v.GetString("cluster.queue") }
func (c *Config) SingleScript() string   { return c.v.GetString("cluster.single_script") }
func (c *Config) AdaptiveScript() string { return c.v.GetString("cluster.adaptive_script") }
func (c *Config) DefaultScript() string  { return c.v.GetString("cluster.default_script") }
func (c *Config) CVScript() string       { return c.v.GetString("cluster.cv_script") }

func (c *Config) JavaMaxHeap() string { return c.v.GetString("java.max_heap") }

func (c *Config) LogLevel() string { return c.v.GetString("logging.level") }

func (c *Config) ServerAddress() string    { return c.v.GetString("server.address") }
func (c *Config) AllowedOrigins() []string { return c.v.GetStringSlice("server.allowed_origins") }

// AutowekaPath returns the Auto-WEKA installation directory (AUTOWEKA_PATH).
func (c *Config) AutowekaPath() (string, error) {
	p := c.v.GetString("paths.autoweka_path")
	if p == "" {
		return "", fmt.Errorf("AUTOWEKA_PATH: %w", ErrEnvNotSet)
	}
	return p, nil
}

// JavaBinary returns the java executable, located through MY_JAVA_PATH when set.
func (c *Config) JavaBinary() string {
	if p := c.v.GetString("paths.java_path"); p != "" {
		return filepath.Join(p, "java")
	}
	return "java"
}

// Set allows dynamic configuration changes
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// CreateLogger creates a zerolog logger based on config
func (c *Config) CreateLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}).Level(level).With().Timestamp().Str("service", "awtool").Logger()
}
