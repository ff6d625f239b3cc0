// Package style holds the named prompt modifiers that steer the look of a
// generated image.
package style

import "fmt"

// Preset is a style tag selectable in the editor.
type Preset string

const (
	Natural Preset = "natural"
	Anime   Preset = "anime"
	Sketch  Preset = "sketch"
	Ghibli  Preset = "ghibli"
)

// Default is the preset a fresh or reset session starts with.
const Default = Natural

// Info describes a preset for display.
type Info struct {
	Key         Preset
	Name        string
	Description string
}

var catalogue = []Info{
	{Key: Natural, Name: "Natural", Description: "Photorealistic and clean."},
	{Key: Anime, Name: "Anime", Description: "Vibrant and cel-shaded."},
	{Key: Sketch, Name: "Pencil Sketch", Description: "Hand-drawn and detailed."},
	{Key: Ghibli, Name: "Ghibli Style", Description: "Painterly and whimsical."},
}

var modifiers = map[Preset]string{
	Natural: "The style should be warm and photorealistic, as if the two people were actually in the same location. Use consistent lighting and a natural, professional background.",
	Anime:   "Render the final image in a high-quality, modern anime style with expressive character designs and vibrant coloring.",
	Sketch:  "A sophisticated, hand-drawn pencil sketch capturing the connection between the subjects. Artistic and detailed.",
	Ghibli:  "In the style of a Studio Ghibli film. Painterly textures, soft lighting, and an emotional atmosphere.",
}

// All returns the presets in display order.
func All() []Info {
	out := make([]Info, len(catalogue))
	copy(out, catalogue)
	return out
}

// Modifier returns the prompt modifier for p. Unknown tags get the Natural
// modifier.
func Modifier(p Preset) string {
	if m, ok := modifiers[p]; ok {
		return m
	}
	return modifiers[Natural]
}

// Known reports whether p is one of the four presets.
func Known(p Preset) bool {
	_, ok := modifiers[p]
	return ok
}

// Parse validates a user-supplied tag. Edges (forms, flags) use it so typos
// fail loudly instead of silently rendering as Natural.
func Parse(s string) (Preset, error) {
	p := Preset(s)
	if !Known(p) {
		return "", fmt.Errorf("unknown style %q (valid: natural, anime, sketch, ghibli)", s)
	}
	return p, nil
}
