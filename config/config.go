// Package config charge la configuration optionnelle d'une base depuis
// config.yaml : taille du pool de buffers, seuil de fusion, nombre de
// workers de transaction et intervalle de checkpoint.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Checkpoint contrôle la cadence du janitor périodique (flush + checkpoint
// du WAL).
type Checkpoint struct {
	Disabled bool          `yaml:"disabled"`
	Interval time.Duration `yaml:"interval"`
}

// Config rassemble les paramètres ajustables du moteur. Les zéros sont
// remplacés par Defaults() avant usage.
type Config struct {
	BufferFrames   int        `yaml:"buffer_frames"`
	MergeThreshold int        `yaml:"merge_threshold"`
	WorkerCount    int        `yaml:"worker_count"`
	Checkpoint     Checkpoint `yaml:"checkpoint"`
}

// Defaults retourne la configuration utilisée quand aucun config.yaml n'est
// présent.
func Defaults() Config {
	return Config{
		BufferFrames:   256,
		MergeThreshold: 16,
		WorkerCount:    4,
		Checkpoint: Checkpoint{
			Disabled: false,
			Interval: 5 * time.Second,
		},
	}
}

// Load lit path (s'il existe) et le fusionne sur Defaults(). L'absence du
// fichier n'est pas une erreur : la base tourne avec les valeurs par défaut.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyZeroDefaults()
	return cfg, nil
}

// applyZeroDefaults restaure la valeur par défaut de tout champ laissé à sa
// valeur zéro par un config.yaml partiel.
func (c *Config) applyZeroDefaults() {
	d := Defaults()
	if c.BufferFrames == 0 {
		c.BufferFrames = d.BufferFrames
	}
	if c.MergeThreshold == 0 {
		c.MergeThreshold = d.MergeThreshold
	}
	if c.WorkerCount == 0 {
		c.WorkerCount = d.WorkerCount
	}
	if c.Checkpoint.Interval == 0 {
		c.Checkpoint.Interval = d.Checkpoint.Interval
	}
}
