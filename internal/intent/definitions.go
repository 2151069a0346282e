package intent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Known intent types.
const (
	TypePlayMusic     = "play_music"
	TypePause         = "pause"
	TypeResume        = "resume"
	TypeStop          = "stop"
	TypeNextTrack     = "next_track"
	TypePreviousTrack = "previous_track"
	TypeVolumeUp      = "volume_up"
	TypeVolumeDown    = "volume_down"
	TypeSetVolume     = "set_volume"
	TypeUnknown       = "unknown"
)

// Definition maps trigger phrases to one intent type.
type Definition struct {
	Type     string   `yaml:"type"`
	Triggers []string `yaml:"triggers"`
}

// File is the on-disk trigger list.
type File struct {
	Intents []Definition `yaml:"intents"`
}

// Defaults returns the built-in trigger set.
func Defaults() []Definition {
	return []Definition{
		{Type: TypeNextTrack, Triggers: []string{"next", "next song", "next track", "skip", "skip this song"}},
		{Type: TypePreviousTrack, Triggers: []string{"previous", "previous song", "go back", "last song"}},
		{Type: TypeSetVolume, Triggers: []string{"set volume to", "set the volume to", "volume to"}},
		{Type: TypeVolumeUp, Triggers: []string{"volume up", "louder", "turn it up", "turn up the volume"}},
		{Type: TypeVolumeDown, Triggers: []string{"volume down", "quieter", "turn it down", "turn down the volume"}},
		{Type: TypePause, Triggers: []string{"pause", "pause the music", "hold on"}},
		{Type: TypeResume, Triggers: []string{"resume", "continue", "unpause", "keep playing"}},
		{Type: TypeStop, Triggers: []string{"stop", "stop the music", "stop playing"}},
		{Type: TypePlayMusic, Triggers: []string{"play", "play song", "put on", "i want to hear", "listen to"}},
	}
}

// Load reads trigger definitions from disk.
func Load(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if err := Validate(f.Intents); err != nil {
		return nil, err
	}
	return f.Intents, nil
}

// LoadOrDefault returns Defaults when path is empty.
func LoadOrDefault(path string) ([]Definition, error) {
	if path == "" {
		return Defaults(), nil
	}
	return Load(path)
}

// Validate ensures each definition has a type and at least one trigger.
func Validate(defs []Definition) error {
	if len(defs) == 0 {
		return fmt.Errorf("intents must include at least one entry")
	}
	seen := make(map[string]struct{}, len(defs))
	for i, d := range defs {
		if d.Type == "" {
			return fmt.Errorf("intents[%d].type is required", i)
		}
		if d.Type == TypeUnknown {
			return fmt.Errorf("intents[%d].type %q is reserved", i, d.Type)
		}
		if _, dup := seen[d.Type]; dup {
			return fmt.Errorf("duplicate intent type %s", d.Type)
		}
		seen[d.Type] = struct{}{}
		if len(d.Triggers) == 0 {
			return fmt.Errorf("intents[%d].triggers must include at least one phrase", i)
		}
	}
	return nil
}
