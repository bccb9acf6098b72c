package config

import "time"

// Config is the top-level shepherd configuration.
type Config struct {
	Forge   ForgeConfig   `json:"forge"`
	Monitor MonitorConfig `json:"monitor"`
	Review  ReviewConfig  `json:"review"`
}

// ForgeConfig holds settings for the gh/git subprocess boundary and
// the optional direct API client.
type ForgeConfig struct {
	GHPath  string `json:"gh_path"`
	GitPath string `json:"git_path"`
	// Token authenticates the direct API client used for thread
	// resolution and reaction lookups. When empty, shepherd falls back
	// to GITHUB_TOKEN/GH_TOKEN and finally to `gh auth token`.
	Token string `json:"token"`

	LightTimeout  string `json:"light_timeout"`
	MediumTimeout string `json:"medium_timeout"`
	HeavyTimeout  string `json:"heavy_timeout"`
}

// ParseLightTimeout returns the deadline for metadata lookups.
func (f ForgeConfig) ParseLightTimeout() time.Duration {
	return parseDuration(f.LightTimeout, 5*time.Second)
}

// ParseMediumTimeout returns the deadline for list and GraphQL calls.
func (f ForgeConfig) ParseMediumTimeout() time.Duration {
	return parseDuration(f.MediumTimeout, 10*time.Second)
}

// ParseHeavyTimeout returns the deadline for mutating git operations.
func (f ForgeConfig) ParseHeavyTimeout() time.Duration {
	return parseDuration(f.HeavyTimeout, 30*time.Second)
}

// MonitorConfig holds polling-loop settings.
type MonitorConfig struct {
	PollInterval string `json:"poll_interval"`
	Timeout      string `json:"timeout"`
	// HintInterval is the number of poll iterations between wait-time
	// suggestions. Zero or negative disables them.
	HintInterval int `json:"hint_interval"`
}

// ParsePollInterval returns the sleep between poll iterations.
func (m MonitorConfig) ParsePollInterval() time.Duration {
	return parseDuration(m.PollInterval, 30*time.Second)
}

// ParseTimeout returns the overall monitoring budget.
func (m MonitorConfig) ParseTimeout() time.Duration {
	return parseDuration(m.Timeout, 45*time.Minute)
}

// ReviewConfig identifies AI reviewers and bounds changed-file lookups.
type ReviewConfig struct {
	// AIReviewers are reviewer handles treated as bots. Handles ending
	// in "[bot]" are always treated as bots regardless of this list.
	AIReviewers []string `json:"ai_reviewers"`
	// CodexBot is the handle mentioned to request a cloud review
	// ("@codex review") and the author completed reviews arrive from.
	CodexBot string `json:"codex_bot"`
	// ChangedFilesLimit is the per-page ceiling of the changed-files
	// listing. Hitting it exactly means the set may be truncated.
	ChangedFilesLimit int `json:"changed_files_limit"`
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Forge: ForgeConfig{
			GHPath:        "gh",
			GitPath:       "git",
			LightTimeout:  "5s",
			MediumTimeout: "10s",
			HeavyTimeout:  "30s",
		},
		Monitor: MonitorConfig{
			PollInterval: "30s",
			Timeout:      "45m",
			HintInterval: 10,
		},
		Review: ReviewConfig{
			AIReviewers: []string{
				"chatgpt-codex-connector",
				"copilot-pull-request-reviewer",
			},
			CodexBot:          "codex",
			ChangedFilesLimit: 100,
		},
	}
}
