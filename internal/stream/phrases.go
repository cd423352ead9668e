package stream

import (
	"strings"

	"github.com/xaenox/stylist-bot/internal/models"
)

var acknowledgments = map[string][]string{
	"how_look": {
		"Let me take a look at your outfit...",
		"Ooh, let me see...",
		"Checking out your look...",
	},
	"what_think": {
		"Hmm, let me think about that...",
		"Good question, give me a second...",
		"Let me consider this...",
	},
	"color": {
		"Let me check those colors...",
		"Looking at the color palette...",
		"Ooh, interesting shades...",
	},
	"general": {
		"Got it, one moment...",
		"Let me see...",
		"On it...",
	},
}

var (
	colorCompliments = []string{
		"That {color} {item} really suits you!",
		"The {color} tone of your {item} looks fantastic!",
		"I love how the {color} {item} brightens your look!",
	}
	stylePositive = []string{
		"That {item} is a great choice!",
		"Your {item} looks well put together!",
		"Nice pick with the {item}, it suits your style!",
	}
)

// GetInstantAcknowledgment returns a short filler phrase matched to the
// shape of the question
func (e *Emitter) GetInstantAcknowledgment(userUtterance string) string {
	lower := strings.ToLower(userUtterance)

	bucket := "general"
	switch {
	case strings.Contains(lower, "how") && (strings.Contains(lower, "look") || strings.Contains(lower, "outfit")):
		bucket = "how_look"
	case strings.Contains(lower, "what") && (strings.Contains(lower, "think") || strings.Contains(lower, "about")):
		bucket = "what_think"
	case strings.Contains(lower, "color") || strings.Contains(lower, "shade"):
		bucket = "color"
	}
	return e.pick(acknowledgments[bucket])
}

// TryQuickTemplate builds a reply from image metadata alone. The second
// result is false when no template applies and a model call is needed.
func (e *Emitter) TryQuickTemplate(userUtterance string, meta *models.ImageMetadata) (string, bool) {
	if meta == nil {
		return "", false
	}

	item := meta.ClothingType
	if item == "" {
		item = "outfit"
	}

	lower := strings.ToLower(userUtterance)
	if meta.DominantColor != "" && (strings.Contains(lower, "color") || strings.Contains(lower, "look")) {
		return fill(e.pick(colorCompliments), meta.DominantColor, item), true
	}
	if meta.ClothingType != "" {
		return fill(e.pick(stylePositive), meta.DominantColor, item), true
	}
	return "", false
}

func fill(template, color, item string) string {
	return strings.NewReplacer("{color}", color, "{item}", item).Replace(template)
}
