package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"shadowcal.xdoubleu.com/internal/models"
)

var ErrInvalidCalendars = errors.New("invalid calendars file")

// Calendars is the immutable list of monitored sources and the calendar
// that receives their placeholders.
//
//	target: shadow@group.calendar.google.com
//	sources:
//	  - id: work@example.com
//	    displayName: Work
type Calendars struct {
	Target  string                  `yaml:"target"`
	Sources []models.SourceCalendar `yaml:"sources"`
}

func LoadCalendars(path string) (Calendars, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Calendars{}, fmt.Errorf("read calendars file: %w", err)
	}

	return ParseCalendars(data)
}

func ParseCalendars(data []byte) (Calendars, error) {
	var calendars Calendars

	if err := yaml.Unmarshal(data, &calendars); err != nil {
		return Calendars{}, fmt.Errorf("%w: %w", ErrInvalidCalendars, err)
	}

	for i, source := range calendars.Sources {
		if source.DisplayName == "" {
			calendars.Sources[i].DisplayName = source.ID
		}
	}

	if err := calendars.Validate(); err != nil {
		return Calendars{}, err
	}

	return calendars, nil
}

func (c Calendars) Validate() error {
	if c.Target == "" {
		return fmt.Errorf("%w: target is required", ErrInvalidCalendars)
	}

	if len(c.Sources) == 0 {
		return fmt.Errorf("%w: at least one source is required", ErrInvalidCalendars)
	}

	seen := map[string]bool{}
	for _, source := range c.Sources {
		switch {
		case source.ID == "":
			return fmt.Errorf("%w: source without id", ErrInvalidCalendars)
		case source.ID == c.Target:
			return fmt.Errorf("%w: %s is both target and source", ErrInvalidCalendars, source.ID)
		case seen[source.ID]:
			return fmt.Errorf("%w: duplicate source %s", ErrInvalidCalendars, source.ID)
		}
		seen[source.ID] = true
	}

	return nil
}

func (c Calendars) Source(id string) (models.SourceCalendar, bool) {
	for _, source := range c.Sources {
		if source.ID == id {
			return source, true
		}
	}
	return models.SourceCalendar{}, false
}

func (c Calendars) SourceIDs() []string {
	ids := make([]string, 0, len(c.Sources))
	for _, source := range c.Sources {
		ids = append(ids, source.ID)
	}
	return ids
}
