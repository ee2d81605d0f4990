package llms

// ModelInfo describes one selectable model.
type ModelInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Tier    string `json:"tier,omitempty"`
	Default bool   `json:"default"`
}

var knownModels = []ModelInfo{
	{ID: "anthropic/claude-sonnet-4", Name: "Claude Sonnet 4"},
	{ID: "anthropic/claude-opus-4.1", Name: "Claude Opus 4.1"},
	{ID: "anthropic/claude-3.5-haiku", Name: "Claude 3.5 Haiku"},
	{ID: "openai/gpt-4o", Name: "GPT-4o"},
	{ID: "openai/gpt-4o-mini", Name: "GPT-4o mini"},
	{ID: "google/gemini-2.5-pro", Name: "Gemini 2.5 Pro"},
	{ID: "google/gemini-2.5-flash", Name: "Gemini 2.5 Flash"},
	{ID: "deepseek/deepseek-chat-v3-0324", Name: "DeepSeek V3"},
	{ID: "qwen/qwen3-coder", Name: "Qwen3 Coder"},
}

// Catalog returns the advertised model list with the configured default and
// tier aliases marked. Configured ids outside the known list are appended so
// they always show up.
func Catalog(defaultModel, fastModel, heavyModel string) []ModelInfo {
	models := make([]ModelInfo, len(knownModels))
	copy(models, knownModels)

	seen := map[string]int{}
	for i, m := range models {
		seen[m.ID] = i
	}
	ensure := func(id string) int {
		if id == "" {
			return -1
		}
		if i, ok := seen[id]; ok {
			return i
		}
		models = append(models, ModelInfo{ID: id, Name: id})
		seen[id] = len(models) - 1
		return len(models) - 1
	}

	if i := ensure(defaultModel); i >= 0 {
		models[i].Default = true
	}
	if i := ensure(fastModel); i >= 0 {
		models[i].Tier = "fast"
	}
	if i := ensure(heavyModel); i >= 0 {
		models[i].Tier = "heavy"
	}
	return models
}
