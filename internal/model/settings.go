package model

// AutoSyncFrequency enumerates the supported recurring-sync intervals.
type AutoSyncFrequency string

const (
	FrequencyTwoMinutes  AutoSyncFrequency = "two_minutes"
	FrequencyFiveMinutes AutoSyncFrequency = "five_minutes"
	FrequencyHourly      AutoSyncFrequency = "hourly"
	FrequencyDaily       AutoSyncFrequency = "daily"
)

// Settings is the runtime-tunable configuration of the loyalty engine,
// persisted in the settings table and editable by operators. The threshold
// table is read once per sync run; the remaining knobs are read wherever
// they apply.
type Settings struct {
	Thresholds      ThresholdTable    `json:"thresholds"`
	BatchSize       int               `json:"batch_size"`
	AutoSyncEnabled bool              `json:"auto_sync_enabled"`
	AutoSyncFreq    AutoSyncFrequency `json:"auto_sync_frequency"`
	UseNetPrice     bool              `json:"use_net_price"`
}

// DefaultSettings returns the configuration a fresh install starts with.
func DefaultSettings() Settings {
	return Settings{
		Thresholds:      DefaultThresholds(),
		BatchSize:       20,
		AutoSyncEnabled: false,
		AutoSyncFreq:    FrequencyDaily,
		UseNetPrice:     true,
	}
}

// Normalize clamps out-of-range values to their nearest legal ones: batch
// size into [1,100] (default 20 when unset) and an unknown frequency to
// daily.
func (s *Settings) Normalize() {
	if s.BatchSize == 0 {
		s.BatchSize = 20
	}
	if s.BatchSize < 1 {
		s.BatchSize = 1
	}
	if s.BatchSize > 100 {
		s.BatchSize = 100
	}
	switch s.AutoSyncFreq {
	case FrequencyTwoMinutes, FrequencyFiveMinutes, FrequencyHourly, FrequencyDaily:
	default:
		s.AutoSyncFreq = FrequencyDaily
	}
	if s.Thresholds == nil {
		s.Thresholds = DefaultThresholds()
	}
}
