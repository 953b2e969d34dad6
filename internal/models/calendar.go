package models

// SourceCalendar is one monitored calendar, defined by configuration.
type SourceCalendar struct {
	ID          string `yaml:"id"          json:"id"`
	DisplayName string `yaml:"displayName" json:"displayName"`
}
