package gemini

// responseSchema is the JSON structure the model is instructed to return.
type responseSchema struct {
	Title string `json:"title"`
	Turns []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"turns"`
}

// promptData is the data passed to the prompt template.
type promptData struct {
	TemplateBody string
	Topic        string
	Tier         string
	Parameters   map[string]any
}
