package models

// Provider is the AI backend family that decides the wire format
type Provider string

const (
	ProviderGemini       Provider = "gemini"
	ProviderPollinations Provider = "pollinations"
	ProviderHuggingFace  Provider = "huggingface"
)

// Speed is a coarse latency class shown to users when picking a model
type Speed string

const (
	SpeedSlow     Speed = "slow"
	SpeedMedium   Speed = "medium"
	SpeedFast     Speed = "fast"
	SpeedVeryFast Speed = "very-fast"
)

// ModelDescriptor describes one AI backend option. Values are never mutated
// after the catalog is built.
type ModelDescriptor struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Provider      Provider `json:"provider"`
	ModelName     string   `json:"model_name"`
	Endpoint      string   `json:"endpoint"`
	Quality       int      `json:"quality"`
	Speed         Speed    `json:"speed"`
	Tier          int      `json:"tier"`
	IsRecommended bool     `json:"is_recommended,omitempty"`
	// Stream asks OpenAI-compatible backends for a chunked response
	Stream bool `json:"stream,omitempty"`
}

var catalog = []ModelDescriptor{
	{
		ID:            "gemini-flash",
		Name:          "Gemini 2.0 Flash",
		Provider:      ProviderGemini,
		ModelName:     "gemini-2.0-flash",
		Endpoint:      "https://generativelanguage.googleapis.com/v1beta/models",
		Quality:       5,
		Speed:         SpeedFast,
		Tier:          1,
		IsRecommended: true,
	},
	{
		ID:        "gemini-pro",
		Name:      "Gemini 1.5 Pro",
		Provider:  ProviderGemini,
		ModelName: "gemini-1.5-pro",
		Endpoint:  "https://generativelanguage.googleapis.com/v1beta/models",
		Quality:   5,
		Speed:     SpeedMedium,
		Tier:      1,
	},
	{
		ID:        "pollinations-openai",
		Name:      "Pollinations GPT",
		Provider:  ProviderPollinations,
		ModelName: "openai",
		Endpoint:  "https://text.pollinations.ai/openai",
		Quality:   4,
		Speed:     SpeedVeryFast,
		Tier:      2,
	},
	{
		ID:        "pollinations-openai-large",
		Name:      "Pollinations GPT Large",
		Provider:  ProviderPollinations,
		ModelName: "openai-large",
		Endpoint:  "https://text.pollinations.ai/openai",
		Quality:   4,
		Speed:     SpeedMedium,
		Tier:      2,
		Stream:    true,
	},
	{
		ID:        "hf-qwen-vl",
		Name:      "Qwen2.5 VL (Hugging Face)",
		Provider:  ProviderHuggingFace,
		ModelName: "Qwen/Qwen2.5-VL-7B-Instruct",
		Endpoint:  "https://router.huggingface.co/v1",
		Quality:   3,
		Speed:     SpeedSlow,
		Tier:      2,
	},
}

// Catalog returns a copy of the static model catalog
func Catalog() []ModelDescriptor {
	out := make([]ModelDescriptor, len(catalog))
	copy(out, catalog)
	return out
}

// FindModel looks up a catalog entry by id
func FindModel(id string) (ModelDescriptor, bool) {
	for _, m := range catalog {
		if m.ID == id {
			return m, true
		}
	}
	return ModelDescriptor{}, false
}

// RecommendedModel returns the catalog's designated default entry
func RecommendedModel() ModelDescriptor {
	for _, m := range catalog {
		if m.IsRecommended {
			return m
		}
	}
	return catalog[0]
}
