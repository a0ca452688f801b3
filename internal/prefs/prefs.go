package prefs

import "fmt"

const key = "preferences"

// Preferences are the user's on-device switches.
type Preferences struct {
	// LocationBasedSuggestEnabled picks the travel direction from the location fix.
	LocationBasedSuggestEnabled bool `json:"locationBasedSuggestEnabled"`
	// IncludeEast adds the east-side station bicycle ports to availability.
	IncludeEast bool `json:"includeEast"`
}

type Store interface {
	Get(key string, v any) (bool, error)
	Put(key string, v any) error
}

func Defaults() Preferences {
	return Preferences{LocationBasedSuggestEnabled: true}
}

// Load returns the stored preferences, or the defaults on first launch.
func Load(s Store) (Preferences, error) {
	p := Defaults()
	if _, err := s.Get(key, &p); err != nil {
		return Defaults(), fmt.Errorf("load preferences: %w", err)
	}
	return p, nil
}

func Save(s Store, p Preferences) error {
	if err := s.Put(key, p); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

// Set updates one named switch and persists the result.
func Set(s Store, name string, on bool) (Preferences, error) {
	p, err := Load(s)
	if err != nil {
		return p, err
	}
	switch name {
	case "locationBasedSuggestEnabled", "location":
		p.LocationBasedSuggestEnabled = on
	case "includeEast", "east":
		p.IncludeEast = on
	default:
		return p, fmt.Errorf("unknown preference %q", name)
	}
	return p, Save(s, p)
}
